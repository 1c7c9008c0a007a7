// Command dmgcore is the ebiten-backed host for the dmgcore emulator core.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/nullterra/dmgcore/internal/cart"
	"github.com/nullterra/dmgcore/internal/machine"
	"github.com/nullterra/dmgcore/internal/ui"
)

func mustRead(path string) []byte {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return b
}

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gb)")
	bootPath := flag.String("bootrom", "", "optional DMG boot ROM")
	scale := flag.Int("scale", 3, "window scale")
	title := flag.String("title", "dmgcore", "window title")
	trace := flag.Bool("trace", false, "CPU trace (not recorded by the core)")
	stereo := flag.Bool("stereo", true, "stereo audio output")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("-rom is required")
	}
	rom := mustRead(*romPath)
	boot := mustRead(*bootPath)

	if h, err := cart.ParseHeader(rom); err == nil {
		log.Printf("ROM: %q type=%s banks=%d ram=%dB", h.Title, h.CartTypeStr, h.ROMBanks, h.RAMSizeBytes)
	}

	m := machine.New(machine.Config{Trace: *trace, BootROM: boot})
	if err := m.Load(*romPath, rom); err != nil {
		log.Fatalf("load cart: %v", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Printf("save on exit: %v", err)
		}
	}()

	if id, ok := m.CompatPaletteID(); ok {
		log.Printf("compat palette: %d", id)
	}

	uiCfg := ui.Config{Title: *title, Scale: *scale, AudioStereo: *stereo}
	app := ui.NewApp(uiCfg, m)
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}

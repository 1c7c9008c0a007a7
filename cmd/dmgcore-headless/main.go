// Command dmgcore-headless drives the emulator core without a GPU window,
// for CI/test-ROM harnesses. Flag shape grounded on valerio-go-jeebie's
// cmd/jeebie (urfave/cli front end, optional tcell terminal renderer).
package main

import (
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/nullterra/dmgcore/internal/cart"
	"github.com/nullterra/dmgcore/internal/machine"
	"github.com/urfave/cli"
)

const (
	screenW = 160
	screenH = 144
	// terminal chars are taller than wide; widen x to keep aspect ratio
	scaleX    = 2
	scaleY    = 1
	frameTime = time.Second / 60
)

var shadeChars = []rune{'█', '▓', '▒', '░'}

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
	app := cli.NewApp()
	app.Name = "dmgcore-headless"
	app.Usage = "run the emulator core without a window, for scripted test-ROM checks"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "rom", Usage: "path to ROM (.gb)"},
		cli.StringFlag{Name: "bootrom", Usage: "optional DMG boot ROM"},
		cli.IntFlag{Name: "frames", Value: 300, Usage: "frames to run before exiting"},
		cli.StringFlag{Name: "headless-png", Usage: "write the final framebuffer to this PNG path"},
		cli.StringFlag{Name: "expect-crc", Usage: "assert the final framebuffer's CRC32 (hex, optionally 0x-prefixed)"},
		cli.BoolFlag{Name: "tui", Usage: "render a live ASCII preview in the terminal instead of exiting immediately"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	romPath := c.String("rom")
	if romPath == "" {
		cli.ShowAppHelp(c)
		return fmt.Errorf("-rom is required")
	}
	rom := mustRead(romPath)
	boot := mustRead(c.String("bootrom"))

	if h, err := cart.ParseHeader(rom); err == nil {
		log.Printf("ROM: %q type=%s banks=%d ram=%dB", h.Title, h.CartTypeStr, h.ROMBanks, h.RAMSizeBytes)
	}

	m := machine.New(machine.Config{BootROM: boot})
	if err := m.Load(romPath, rom); err != nil {
		return fmt.Errorf("load cart: %w", err)
	}
	defer m.Close()

	if c.Bool("tui") {
		return runTUI(m)
	}
	return runHeadless(m, c.Int("frames"), c.String("headless-png"), c.String("expect-crc"))
}

func runHeadless(m *machine.Machine, frames int, pngPath, expectCRC string) error {
	if frames <= 0 {
		frames = 1
	}

	start := time.Now()
	for i := 0; i < frames; i++ {
		m.Update(1.0 / 59.7275)
	}
	dur := time.Since(start)

	fb := m.ReadFramebuffer()
	crc := crc32.ChecksumIEEE(fb)
	fps := float64(frames) / dur.Seconds()

	log.Printf("headless: frames=%d elapsed=%s fps=%.2f fb_crc32=%08x",
		frames, dur.Truncate(time.Millisecond), fps, crc)

	if pngPath != "" {
		if err := saveFramePNG(fb, screenW, screenH, pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", pngPath)
	}

	if expectCRC != "" {
		want := strings.TrimPrefix(strings.ToLower(expectCRC), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

func saveFramePNG(pix []byte, w, h int, path string) error {
	img := &image.RGBA{
		Pix:    make([]byte, len(pix)),
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
	copy(img.Pix, pix)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// runTUI renders a live ASCII preview of the framebuffer in the terminal,
// for headless debugging without a GPU.
func runTUI(m *machine.Machine) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer screen.Fini()

	screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	screen.Clear()

	quit := make(chan struct{})
	go func() {
		for {
			ev := screen.PollEvent()
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
					close(quit)
					return
				}
			case *tcell.EventResize:
				screen.Sync()
			}
		}
	}()

	ticker := time.NewTicker(frameTime)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return nil
		case <-ticker.C:
			m.Update(1.0 / 59.7275)
			drawFrame(screen, m.ReadFramebuffer())
			screen.Show()
		}
	}
}

func drawFrame(screen tcell.Screen, fb []byte) {
	screen.Clear()
	style := tcell.StyleDefault.Foreground(tcell.ColorWhite)
	for y := 0; y < screenH; y++ {
		for x := 0; x < screenW; x++ {
			i := (y*screenW + x) * 4
			lum := (int(fb[i]) + int(fb[i+1]) + int(fb[i+2])) / 3
			shade := 3 - lum/64
			if shade < 0 {
				shade = 0
			}
			if shade > 3 {
				shade = 3
			}
			char := shadeChars[shade]
			for sx := 0; sx < scaleX; sx++ {
				screen.SetContent(x*scaleX+sx, y*scaleY, char, nil, style)
			}
		}
	}
}

package ui

import (
	"fmt"
	"image/png"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/nullterra/dmgcore/internal/machine"
)

// App is the ebiten host: it drives a machine.Machine at the DMG's native
// 59.7275Hz refresh and renders its framebuffer to the window. A ROM
// picker, JSON settings, keybindings screen, multi-slot saves, and
// CGB palette-cycling menu are out of scope (see DESIGN.md) in favor of
// a single always-on quicksave slot.
type App struct {
	cfg    Config
	m      *machine.Machine
	tex    *ebiten.Image
	paused bool
	fast   bool

	lastTime time.Time
	frameAcc float64
	muted    bool

	audioCtx    *audio.Context
	audioPlayer *audio.Player
	audioSrc    *apuStream

	quickSavePath string

	toastMsg   string
	toastUntil time.Time
}

func NewApp(cfg Config, m *machine.Machine) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(160*cfg.Scale, 144*cfg.Scale)

	a := &App{cfg: cfg, m: m}
	a.lastTime = time.Now()
	a.tex = ebiten.NewImage(160, 144)
	a.audioCtx = audio.NewContext(48000)
	a.audioSrc = &apuStream{m: m, mono: !cfg.AudioStereo, muted: &a.muted, lowLatency: cfg.AudioLowLatency}
	player, err := a.audioCtx.NewPlayer(a.audioSrc)
	if err == nil {
		a.audioPlayer = player
		a.applyPlayerBufferSize()
		a.audioPlayer.Play()
	}
	return a
}

func (a *App) Run() error { return ebiten.RunGame(a) }

// masterFPS is the DMG's native refresh rate: 4194304 Hz / 70224 cycles/frame.
const masterFPS = 4194304.0 / 70224.0

func (a *App) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		a.paused = !a.paused
		a.m.Pause(a.paused)
		a.toast(map[bool]string{true: "Paused", false: "Resumed"}[a.paused])
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyM) {
		a.muted = !a.muted
		a.toast(map[bool]string{true: "Muted", false: "Unmuted"}[a.muted])
	}
	a.fast = ebiten.IsKeyPressed(ebiten.KeyTab)
	if a.fast {
		a.m.SetSpeed(4)
	} else {
		a.m.SetSpeed(1)
	}
	a.applyPlayerBufferSize()

	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		a.m.ResetPostBoot()
		a.toast("Reset")
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		if err := a.m.SaveStateToFile(a.statePath()); err != nil {
			a.toast("Save failed: " + err.Error())
		} else {
			a.toast("State saved")
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) {
		if err := a.m.LoadStateFromFile(a.statePath()); err != nil {
			a.toast("Load failed: " + err.Error())
		} else {
			a.toast("State loaded")
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		if err := a.saveScreenshot(); err != nil {
			a.toast("Screenshot failed: " + err.Error())
		} else {
			a.toast("Screenshot saved")
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF11) {
		ebiten.SetFullscreen(!ebiten.IsFullscreen())
	}

	a.m.SetButtons(machine.Buttons{
		Up:     ebiten.IsKeyPressed(ebiten.KeyArrowUp),
		Down:   ebiten.IsKeyPressed(ebiten.KeyArrowDown),
		Left:   ebiten.IsKeyPressed(ebiten.KeyArrowLeft),
		Right:  ebiten.IsKeyPressed(ebiten.KeyArrowRight),
		A:      ebiten.IsKeyPressed(ebiten.KeyX),
		B:      ebiten.IsKeyPressed(ebiten.KeyZ),
		Start:  ebiten.IsKeyPressed(ebiten.KeyEnter),
		Select: ebiten.IsKeyPressed(ebiten.KeyBackspace),
	})

	now := time.Now()
	dt := now.Sub(a.lastTime).Seconds()
	a.lastTime = now
	if dt > 0.25 {
		dt = 0.25
	}
	a.frameAcc += dt * masterFPS
	steps := 0
	for a.frameAcc >= 1 && steps < 10 {
		a.m.Update(1.0 / masterFPS)
		a.frameAcc--
		steps++
	}
	return nil
}

func (a *App) statePath() string {
	if a.quickSavePath != "" {
		return a.quickSavePath
	}
	return "quicksave.state"
}

func (a *App) Draw(screen *ebiten.Image) {
	a.tex.WritePixels(a.m.ReadFramebuffer())
	op := &ebiten.DrawImageOptions{}
	w, h := screen.Bounds().Dx(), screen.Bounds().Dy()
	op.GeoM.Scale(float64(w)/160, float64(h)/144)
	screen.DrawImage(a.tex, op)

	if a.paused {
		ebitenutil.DebugPrintAt(screen, "PAUSED", 4, 4)
	}
	if time.Now().Before(a.toastUntil) {
		ebitenutil.DebugPrintAt(screen, a.toastMsg, 4, h-16)
	}
}

func (a *App) Layout(outW, outH int) (int, int) { return 160, 144 }

func (a *App) toast(msg string) {
	a.toastMsg = msg
	a.toastUntil = time.Now().Add(2 * time.Second)
}

func (a *App) saveScreenshot() error {
	f, err := os.Create(fmt.Sprintf("screenshot-%d.png", time.Now().Unix()))
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, a.tex)
}

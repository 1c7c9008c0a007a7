// Package machine is the top-level aggregate the host drives: it owns the
// CPU and the bus (and, through the bus, every subsystem), and exposes the
// host-facing operations a frontend needs -- load, close, update(delta),
// button state, framebuffer/serial/audio pulls, pause, and speed control.
package machine

import (
	"bytes"
	"encoding/gob"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/nullterra/dmgcore/internal/bus"
	"github.com/nullterra/dmgcore/internal/cart"
	"github.com/nullterra/dmgcore/internal/cpu"
	"github.com/nullterra/dmgcore/internal/diag"
	"github.com/nullterra/dmgcore/internal/joypad"
	"github.com/nullterra/dmgcore/internal/rtc"
)

// masterClockHz is the DMG's fixed oscillator frequency; the scheduler
// converts a host delta_time into a target T-cycle count against it.
const masterClockHz = 4194304

// maxDelta bounds a single Update call so a debugger pause or a dropped
// frame on the host side can't demand years of emulated time in one call.
const maxDelta = 0.125

// Config holds settings that affect emulation behavior but not correctness.
type Config struct {
	Trace   bool   // not read by the core; no CPU instruction trace is recorded
	BootROM []byte // optional DMG boot ROM; nil skips straight to post-boot state
}

// Buttons mirrors the eight joypad inputs by name, for hosts that prefer a
// struct over individual SetButton calls.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// Machine is the host-facing DMG core: cartridge, CPU, and every wired
// subsystem reached through the bus.
type Machine struct {
	cfg Config

	cpu  *cpu.CPU
	bus  *bus.Bus
	cart cart.Cartridge

	header  *cart.Header
	romPath string
	savPath string

	paused     bool
	speedScale float32

	compatPaletteID  int
	hasCompatPalette bool
}

// New returns a Machine with no cartridge loaded; call Load before Update.
func New(cfg Config) *Machine {
	return &Machine{cfg: cfg, speedScale: 1}
}

var errNotLoaded = errors.New("machine: no cartridge loaded")

// Load parses romBytes as a cartridge image, wires a fresh bus and CPU
// around it, and restores any existing .sav file at path's sibling
// "<name>.sav" (cartridge RAM, plus an RTC snapshot and elapsed-time
// catch-up for MBC3+timer carts). path is used only to derive the save
// file's location; it need not exist on disk.
func (m *Machine) Load(path string, romBytes []byte) error {
	c, h, err := cart.New(romBytes, diag.NewLog(0))
	if err != nil {
		return err
	}
	m.cart = c
	m.header = h
	m.bus = bus.NewWithCartridge(c)
	m.cpu = cpu.New(m.bus)

	if len(m.cfg.BootROM) > 0 {
		m.bus.SetBootROM(m.cfg.BootROM)
	} else {
		m.cpu.ResetNoBoot()
		m.cpu.SetPC(0x0100)
	}

	m.romPath = path
	m.savPath = savPathFor(path)
	m.paused = false
	m.compatPaletteID, m.hasCompatPalette = autoCompatPaletteFromHeader(h)

	if cart.BatteryBackedType(h.CartType) {
		m.loadSaveFile()
	}
	return nil
}

// Close flushes the cartridge's battery-backed RAM (and RTC state, for
// MBC3+timer carts) to the save file. Safe to call with no cartridge loaded.
func (m *Machine) Close() error {
	if m.cart == nil {
		return nil
	}
	return m.writeSaveFile()
}

// savPathFor derives "<rom>.sav" from a ROM path by replacing its extension.
func savPathFor(path string) string {
	if path == "" {
		return ""
	}
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[:i] + ".sav"
	}
	return path + ".sav"
}

// loadSaveFile restores CRAM (and, for MBC3+timer carts, RTC state) from
// savPath: cram_size raw bytes, and for MBC3+timer cartridges the file
// additionally appends the RTC state struct then an 8-byte little-endian
// UTC timestamp. Elapsed wall-clock time since that timestamp is folded
// into the clock unless it was halted at save time.
func (m *Machine) loadSaveFile() {
	if m.savPath == "" {
		return
	}
	data, err := os.ReadFile(m.savPath)
	if err != nil {
		if !os.IsNotExist(err) {
			m.bus.Log().Logf(diag.Warn, "read save file %s: %v", m.savPath, err)
		}
		return
	}

	bb, hasRAM := m.cart.(cart.BatteryBacked)
	rc, hasRTC := m.cart.(cart.HasRTC)

	if hasRTC && cart.TimerType(m.header.CartType) {
		ramLen := 0
		if hasRAM {
			ramLen = len(bb.SaveRAM())
		}
		if len(data) < ramLen+rtc.EncodedSize+8 {
			if hasRAM {
				bb.LoadRAM(data)
			}
			return
		}
		ramBytes := data[:ramLen]
		rtcBytes := data[ramLen : ramLen+rtc.EncodedSize]
		savedUnix := int64(0)
		for i := 0; i < 8; i++ {
			savedUnix |= int64(data[ramLen+rtc.EncodedSize+i]) << (8 * uint(i))
		}

		elapsed := time.Now().Unix() - savedUnix
		if elapsed > 0 {
			// Fold elapsed wall-clock time in before handing the clock to the
			// cartridge, skipping the fold if it was halted at save time.
			clk := rtc.New()
			if clk.Unmarshal(rtcBytes) && !clk.Halted() {
				clk.AddSeconds(elapsed)
				rtcBytes = clk.Marshal()
			}
		}
		rc.LoadRTC(rtcBytes)
		if hasRAM {
			bb.LoadRAM(ramBytes)
		}
		return
	}

	if hasRAM {
		bb.LoadRAM(data)
	}
}

// writeSaveFile persists CRAM (and RTC state + timestamp, for MBC3+timer
// carts) to savPath.
func (m *Machine) writeSaveFile() error {
	if m.savPath == "" || m.header == nil {
		return nil
	}
	if !cart.BatteryBackedType(m.header.CartType) {
		return nil
	}
	bb, hasRAM := m.cart.(cart.BatteryBacked)
	if !hasRAM {
		return nil
	}
	ram := bb.SaveRAM()

	var out []byte
	if rc, ok := m.cart.(cart.HasRTC); ok && cart.TimerType(m.header.CartType) {
		rtcBytes := rc.SaveRTC()
		var ts [8]byte
		now := time.Now().Unix()
		for i := 0; i < 8; i++ {
			ts[i] = byte(now >> (8 * uint(i)))
		}
		out = make([]byte, 0, len(ram)+len(rtcBytes)+8)
		out = append(out, ram...)
		out = append(out, rtcBytes...)
		out = append(out, ts[:]...)
	} else {
		out = ram
	}
	if out == nil {
		return nil
	}
	return os.WriteFile(m.savPath, out, 0o644)
}

// Update runs the core forward by delta seconds of emulated time: clamp
// delta to 0.125s, compute target = masterClockHz * delta * speed_scale
// T-cycles, and step the CPU instruction by instruction (each instruction
// ticking every subsystem one M-cycle at a time through the bus) until the
// target is reached or the machine is paused.
func (m *Machine) Update(delta float64) {
	if m.cpu == nil || m.paused {
		return
	}
	if delta > maxDelta {
		delta = maxDelta
	}
	if delta < 0 {
		delta = 0
	}
	target := int(float64(masterClockHz) * delta * float64(m.speedScale))
	ran := 0
	for ran < target {
		ran += m.cpu.Step()
	}
}

// SetButton forwards a single button's pressed state to the joypad. mask is
// one of the joypad package's button bits (joypad.A, joypad.Up, ...).
func (m *Machine) SetButton(mask byte, pressed bool) {
	if m.bus == nil {
		return
	}
	j := m.bus.Joypad()
	cur := j.Pressed()
	if pressed {
		cur |= mask
	} else {
		cur &^= mask
	}
	j.SetState(cur)
}

// SetButtons forwards a full button snapshot to the joypad in one call.
func (m *Machine) SetButtons(b Buttons) {
	var mask byte
	set := func(pressed bool, bit byte) {
		if pressed {
			mask |= bit
		}
	}
	set(b.Right, joypad.Right)
	set(b.Left, joypad.Left)
	set(b.Up, joypad.Up)
	set(b.Down, joypad.Down)
	set(b.A, joypad.A)
	set(b.B, joypad.B)
	set(b.Select, joypad.Select)
	set(b.Start, joypad.Start)
	if m.bus != nil {
		m.bus.Joypad().SetState(mask)
	}
}

// ReadFramebuffer returns the PPU's front page: 160x144 RGBA bytes.
func (m *Machine) ReadFramebuffer() []byte {
	if m.bus == nil {
		return nil
	}
	return m.bus.PPU().Framebuffer()
}

// DrainSerialOutput returns and clears bytes shifted out over the serial
// port since the last call.
func (m *Machine) DrainSerialOutput() []byte {
	if m.bus == nil {
		return nil
	}
	return m.bus.DrainSerialOutput()
}

// AudioPull returns up to n samples per channel as separate left/right
// float32 slices in [-1, 1], converting the APU's int16 stereo frames.
func (m *Machine) AudioPull(n int) ([]float32, []float32) {
	if m.bus == nil || n <= 0 {
		return nil, nil
	}
	frames := m.bus.APU().PullStereo(n)
	left := make([]float32, 0, len(frames)/2)
	right := make([]float32, 0, len(frames)/2)
	for i := 0; i+1 < len(frames); i += 2 {
		left = append(left, float32(frames[i])/32768)
		right = append(right, float32(frames[i+1])/32768)
	}
	return left, right
}

// AudioAvailable reports how many buffered stereo frames are ready to pull.
func (m *Machine) AudioAvailable() int {
	if m.bus == nil {
		return 0
	}
	return m.bus.APU().StereoAvailable()
}

// TrimAudioBuffer discards buffered audio down to keepFrames stereo frames,
// for a host resyncing after a pause or a fast-forward burst.
func (m *Machine) TrimAudioBuffer(keepFrames int) {
	if m.bus == nil {
		return
	}
	if excess := m.bus.APU().StereoAvailable() - keepFrames; excess > 0 {
		m.bus.APU().PullStereo(excess)
	}
}

// ClearAudioBuffer discards all buffered audio.
func (m *Machine) ClearAudioBuffer() { m.TrimAudioBuffer(0) }

// ResetPostBoot resets the CPU straight to typical DMG post-boot register
// state with PC at 0x0100, skipping any configured boot ROM. Memory, the
// other subsystems and the cartridge keep their state; nothing is reloaded.
func (m *Machine) ResetPostBoot() {
	if m.cpu == nil {
		return
	}
	m.cpu.ResetNoBoot()
	m.cpu.SetPC(0x0100)
}

// SaveStateToFile writes SaveState's snapshot to path.
func (m *Machine) SaveStateToFile(path string) error {
	data := m.SaveState()
	if data == nil {
		return errNotLoaded
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadStateFromFile restores a snapshot previously written by SaveStateToFile.
func (m *Machine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.LoadState(data)
}

// Pause stops Update from advancing the core until un-paused.
func (m *Machine) Pause(p bool) { m.paused = p }

// Paused reports whether the core is currently paused.
func (m *Machine) Paused() bool { return m.paused }

// SetSpeed scales the emulated-time-per-real-second ratio Update targets;
// 1.0 is native speed.
func (m *Machine) SetSpeed(scale float32) {
	if scale <= 0 {
		scale = 1
	}
	m.speedScale = scale
}

// Header returns the parsed cartridge header, or nil if none is loaded.
func (m *Machine) Header() *cart.Header { return m.header }

// CompatPaletteID returns the CGB compatibility-palette heuristic's chosen
// ID for the loaded cartridge, and whether a cartridge is loaded at all.
func (m *Machine) CompatPaletteID() (int, bool) { return m.compatPaletteID, m.hasCompatPalette }

// Log returns the bus's diagnostic log for a host debug view to read.
func (m *Machine) Log() *diag.Log {
	if m.bus == nil {
		return nil
	}
	return m.bus.Log()
}

// --- Save/Load state (full snapshot, distinct from the .sav battery file) ---

type machineState struct {
	A, F byte
	B, C byte
	D, E byte
	H, L byte
	SP, PC uint16
	IME    bool

	Bus []byte
}

// SaveState snapshots CPU registers and the entire bus (every subsystem) to
// a single gob-encoded blob, for a host's save/load-state feature.
func (m *Machine) SaveState() []byte {
	if m.cpu == nil || m.bus == nil {
		return nil
	}
	s := machineState{
		A: m.cpu.A, F: m.cpu.F,
		B: m.cpu.B, C: m.cpu.C,
		D: m.cpu.D, E: m.cpu.E,
		H: m.cpu.H, L: m.cpu.L,
		SP: m.cpu.SP, PC: m.cpu.PC,
		IME: m.cpu.IME,
		Bus: m.bus.SaveState(),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil
	}
	return buf.Bytes()
}

// LoadState restores a snapshot previously produced by SaveState.
func (m *Machine) LoadState(data []byte) error {
	if m.cpu == nil || m.bus == nil {
		return errNotLoaded
	}
	var s machineState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	m.cpu.A, m.cpu.F = s.A, s.F
	m.cpu.B, m.cpu.C = s.B, s.C
	m.cpu.D, m.cpu.E = s.D, s.E
	m.cpu.H, m.cpu.L = s.H, s.L
	m.cpu.SP = s.SP
	m.cpu.SetPC(s.PC)
	m.cpu.IME = s.IME
	m.bus.LoadState(s.Bus)
	return nil
}

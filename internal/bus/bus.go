// Package bus implements the DMG CPU-visible address space: cartridge
// ROM/RAM banking, VRAM/OAM via the PPU, WRAM/echo RAM/HRAM, and the IO
// register block (joypad, timer, serial, APU, PPU, interrupt flags),
// fanning every T-cycle out to each subsystem's Tick. Timer, serial, and
// joypad live in their own packages, and the APU is now ticked alongside
// the rest of the IO block every cycle.
package bus

import (
	"bytes"
	"encoding/gob"

	"github.com/nullterra/dmgcore/internal/apu"
	"github.com/nullterra/dmgcore/internal/cart"
	"github.com/nullterra/dmgcore/internal/diag"
	"github.com/nullterra/dmgcore/internal/joypad"
	"github.com/nullterra/dmgcore/internal/ppu"
	"github.com/nullterra/dmgcore/internal/serial"
	"github.com/nullterra/dmgcore/internal/timer"
)

// Bus wires CPU-visible address space to the cartridge, WRAM, HRAM, and the
// IO-mapped subsystems.
type Bus struct {
	cart cart.Cartridge

	// Work RAM (WRAM) 8 KiB at 0xC000-0xDFFF; Echo 0xE000-0xFDFF mirrors C000-DDFF.
	wram [0x2000]byte

	// High RAM (HRAM) 0xFF80-0xFFFE (127 bytes)
	hram [0x7F]byte

	ppu    *ppu.PPU
	apu    *apu.APU
	timer  *timer.Timer
	serial *serial.Serial
	joypad *joypad.Joypad

	// Interrupt registers
	ie    byte // IE at 0xFFFF
	ifReg byte // IF at 0xFF0F (lower 5 bits used)

	// Boot ROM support
	bootROM     []byte
	bootEnabled bool

	log *diag.Log
}

// New constructs a Bus with a ROM-only cartridge, for tests and tooling that
// don't care about mapper type.
func New(rom []byte) *Bus {
	return NewWithCartridge(cart.NewROMOnly(rom, 0))
}

// NewWithCartridge wires a provided cartridge implementation.
func NewWithCartridge(c cart.Cartridge) *Bus {
	b := &Bus{cart: c}
	b.ppu = ppu.New(func(bit int) { b.raiseIRQ(bit) })
	b.apu = apu.New(44100)
	b.timer = timer.New(func(bit int) { b.raiseIRQ(bit) })
	b.serial = serial.New(func(bit int) { b.raiseIRQ(bit) })
	b.joypad = joypad.New(func(bit int) { b.raiseIRQ(bit) })
	b.log = diag.NewLog(0)
	return b
}

// Log returns the bus's diagnostic log, for a host debug view to drain.
func (b *Bus) Log() *diag.Log { return b.log }

func (b *Bus) raiseIRQ(bit int) { b.ifReg |= 1 << bit }

// PPU returns the internal PPU for host-facing rendering helpers.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// APU returns the internal APU for host-facing audio pull helpers.
func (b *Bus) APU() *apu.APU { return b.apu }

// Cart returns the underlying cartridge for battery/RTC persistence.
func (b *Bus) Cart() cart.Cartridge { return b.cart }

// Joypad returns the internal joypad for host input wiring.
func (b *Bus) Joypad() *joypad.Joypad { return b.joypad }

// Serial returns the internal serial port for host link-cable wiring.
func (b *Bus) Serial() *serial.Serial { return b.serial }

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if b.bootEnabled && addr < 0x0100 && len(b.bootROM) >= 0x100 {
			return b.bootROM[addr]
		}
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.wram[(addr-0x2000)-0xC000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		return b.ppu.CPURead(addr)
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFF00:
		return b.joypad.Read()
	case addr == 0xFF01:
		return b.serial.ReadSB()
	case addr == 0xFF02:
		return b.serial.ReadSC()
	case addr == 0xFF04:
		return b.timer.DIV()
	case addr == 0xFF05:
		return b.timer.TIMA()
	case addr == 0xFF06:
		return b.timer.TMA()
	case addr == 0xFF07:
		return b.timer.TAC()
	case addr == 0xFF0F:
		return 0xE0 | (b.ifReg & 0x1F)
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	case addr >= 0xFF40 && addr <= 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF50:
		return 0xFF
	case addr == 0xFFFF:
		return b.ie
	default:
		b.log.Logf(diag.Warn, "unmapped read %#04x", addr)
		return 0xFF
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.wram[addr-0xC000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		b.wram[(addr-0x2000)-0xC000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == 0xFF00:
		b.joypad.Write(value)
	case addr == 0xFF01:
		b.serial.WriteSB(value)
	case addr == 0xFF02:
		b.serial.WriteSC(value)
	case addr == 0xFF04:
		b.timer.WriteDIV()
	case addr == 0xFF05:
		b.timer.WriteTIMA(value)
	case addr == 0xFF06:
		b.timer.WriteTMA(value)
	case addr == 0xFF07:
		b.timer.WriteTAC(value)
	case addr == 0xFF0F:
		b.ifReg = value & 0x1F
	case addr >= 0xFF10 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, value)
	case addr >= 0xFF40 && addr <= 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF50:
		if value != 0x00 {
			b.bootEnabled = false
		}
	case addr == 0xFFFF:
		b.ie = value
	default:
		b.log.Logf(diag.Warn, "unmapped write %#04x = %#02x", addr, value)
	}
}

// TickMCycle advances every subsystem by one M-cycle (4 T-cycles), satisfying
// cpu.Bus. The CPU calls this once per M-cycle it spends, immediately after
// the memory access that consumes it (a write is committed before its cycle
// ticks), keeping the whole machine in lock-step the way real hardware is
// wired.
func (b *Bus) TickMCycle() {
	for i := 0; i < 4; i++ {
		b.timer.Tick()
		b.serial.Tick()
		b.cart.Tick()
		b.ppu.Tick()
		b.apu.Tick(b.timer.DIVInternal()&0x10 != 0)
	}
}

// SetBootROM loads a DMG boot ROM mapped at 0x0000-0x00FF until disabled via
// a 0xFF50 write.
func (b *Bus) SetBootROM(data []byte) {
	b.bootROM = nil
	b.bootEnabled = false
	if len(data) >= 0x100 {
		b.bootROM = make([]byte, 0x100)
		copy(b.bootROM, data[:0x100])
		b.bootEnabled = true
	}
}

// DrainSerialOutput returns and clears bytes shifted out over the serial
// port since the last call, for a host or test harness to consume.
func (b *Bus) DrainSerialOutput() []byte { return b.serial.DrainOutput() }

// --- Save/Load state ---

type busState struct {
	WRAM        [0x2000]byte
	HRAM        [0x7F]byte
	IE, IF      byte
	BootEnabled bool

	Timer  timer.State
	Serial serial.State
	Joypad joypad.State
	PPU    ppu.State

	APU  []byte
	Cart []byte
}

func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := busState{
		WRAM: b.wram, HRAM: b.hram,
		IE: b.ie, IF: b.ifReg,
		BootEnabled: b.bootEnabled,
		Timer:       b.timer.SaveState(),
		Serial:      b.serial.SaveState(),
		Joypad:      b.joypad.SaveState(),
		PPU:         b.ppu.SaveState(),
		APU:         b.apu.SaveState(),
		Cart:        b.cart.SaveState(),
	}
	_ = enc.Encode(s)
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	var s busState
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s); err != nil {
		return
	}
	b.wram, b.hram = s.WRAM, s.HRAM
	b.ie, b.ifReg = s.IE, s.IF
	b.bootEnabled = s.BootEnabled
	b.timer.LoadState(s.Timer)
	b.serial.LoadState(s.Serial)
	b.joypad.LoadState(s.Joypad)
	b.ppu.LoadState(s.PPU)
	b.apu.LoadState(s.APU)
	b.cart.LoadState(s.Cart)
}

package cart

import "github.com/nullterra/dmgcore/internal/rtc"

// MBC3 implements ROM/RAM banking plus the real-time-clock register file
// for cartridge types 0x0F/0x10 (timer variants) and the plain RAM-only
// 0x11-0x13 variants. The RTC selector (0x08-0x0C written to 0x4000-0x5FFF)
// shares the secondary register with the RAM-bank select (0x00-0x03); writes
// of values outside either range are ignored, keeping the previous selection.
type MBC3 struct {
	rom []byte
	ram []byte
	clk *rtc.Clock

	ramEnabled bool
	romBank    byte // 7 bits (1..127)
	sel        byte // 0x00-0x03 RAM bank, 0x08-0x0C RTC register

	// tickAccum counts T-cycles toward the next whole emulated second the
	// RTC clock advances by; 4,194,304 T-cycles per second at normal speed.
	tickAccum int
}

const ticksPerSecond = 4194304

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBank = 1
	m.clk = rtc.New()
	return m
}

func (m *MBC3) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.sel <= 0x03 {
			if len(m.ram) == 0 {
				return 0xFF
			}
			off := int(m.sel)*0x2000 + int(addr-0xA000)
			if off < len(m.ram) {
				return m.ram[off]
			}
			return 0xFF
		}
		return m.readRTCRegister()
	default:
		return 0xFF
	}
}

func (m *MBC3) readRTCRegister() byte {
	r := m.clk.Latched()
	switch m.sel {
	case 0x08:
		return r.Seconds
	case 0x09:
		return r.Minutes
	case 0x0A:
		return r.Hours
	case 0x0B:
		return r.DayLow
	case 0x0C:
		return r.DayHigh
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		if value <= 0x03 || (value >= 0x08 && value <= 0x0C) {
			m.sel = value
		}
	case addr < 0x8000:
		m.clk.WriteLatch(value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.sel <= 0x03 {
			if len(m.ram) == 0 {
				return
			}
			off := int(m.sel)*0x2000 + int(addr-0xA000)
			if off < len(m.ram) {
				m.ram[off] = value
			}
			return
		}
		m.clk.WriteRegister(m.sel, value)
	}
}

// Tick advances the RTC by one T-cycle, rolling whole elapsed seconds into
// the running clock in lockstep with the master clock it is ticked from.
// Making real seconds track wall-clock time regardless of emulation speed
// is a host-level concern handled at the save-file boundary, not here.
func (m *MBC3) Tick() {
	m.tickAccum++
	if m.tickAccum >= ticksPerSecond {
		m.tickAccum -= ticksPerSecond
		m.clk.AddSeconds(1)
	}
}

func (m *MBC3) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC3) LoadRAM(data []byte) {
	if len(m.ram) == 0 || len(data) == 0 {
		return
	}
	copy(m.ram, data)
}

// SaveRTC/LoadRTC persist the running clock; the machine layer appends a
// wall-clock timestamp alongside this so elapsed offline time can be folded
// in on load.
func (m *MBC3) SaveRTC() []byte     { return m.clk.Marshal() }
func (m *MBC3) LoadRTC(data []byte) { m.clk.Unmarshal(data) }

func (m *MBC3) SaveState() []byte {
	ram := m.SaveRAM()
	rtcBytes := m.clk.Marshal()
	out := make([]byte, 0, len(ram)+len(rtcBytes))
	out = append(out, rtcBytes...)
	out = append(out, ram...)
	return out
}

func (m *MBC3) LoadState(data []byte) {
	if len(data) < rtc.EncodedSize {
		return
	}
	m.clk.Unmarshal(data[:rtc.EncodedSize])
	m.LoadRAM(data[rtc.EncodedSize:])
}

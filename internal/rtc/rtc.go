// Package rtc models the MBC3 real-time-clock counter: seconds, minutes,
// hours, and a 9-bit day counter, plus the halt/day-overflow flags and the
// latch mechanism that freezes the CPU-visible registers on a 0->1 write to
// the cartridge's latch register. Grounded on LunaGB's RTC.cpp/RTC.hpp
// (original_source/Programs/LunaGB-11), adapted to Go's time package instead
// of the host's raw OS clock call.
package rtc

import "encoding/binary"

// Registers mirror the MBC3 RTC register file selected via the secondary
// bank register (0x08 S, 0x09 M, 0x0A H, 0x0B DL, 0x0C DH).
type Registers struct {
	Seconds byte
	Minutes byte
	Hours   byte
	DayLow  byte // low 8 bits of the 9-bit day counter
	DayHigh byte // bit0: day counter bit 8; bit6: halt; bit7: day-carry
}

const (
	dayHighCarryBit = 1 << 7
	dayHighHaltBit  = 1 << 6
	dayHighBit8     = 1 << 0
)

// Clock is the live RTC state: the running elapsed-seconds counter plus the
// pair of registers the CPU sees (frozen at the moment of latch).
type Clock struct {
	elapsed int64 // seconds, running total since the cartridge's own epoch

	latched    Registers
	latchPrev  byte // last byte written to 0x6000-0x7FFF, to detect 0x00->0x01
	haltedFlag bool
}

// New returns a Clock at zero.
func New() *Clock { return &Clock{} }

// AddSeconds advances the running counter by seconds if not halted; a
// non-positive count is ignored. MBC3 calls it with 1 for each emulated
// second, and the save-file loader with the wall-clock time elapsed since
// the save.
func (c *Clock) AddSeconds(seconds int64) {
	if c.haltedFlag || seconds <= 0 {
		return
	}
	c.elapsed += seconds
}

// SetHalt toggles the halt flag (DH bit 6); halting freezes AddSeconds.
func (c *Clock) SetHalt(halt bool) { c.haltedFlag = halt }
func (c *Clock) Halted() bool      { return c.haltedFlag }

// Live computes the unlatched register view from the elapsed counter.
func (c *Clock) Live() Registers {
	total := c.elapsed
	s := total % 60
	total /= 60
	m := total % 60
	total /= 60
	h := total % 24
	total /= 24
	days := total

	var dh byte
	if c.haltedFlag {
		dh |= dayHighHaltBit
	}
	if days > 511 {
		dh |= dayHighCarryBit
		days %= 512
	}
	if days&0x100 != 0 {
		dh |= dayHighBit8
	}
	return Registers{
		Seconds: byte(s),
		Minutes: byte(m),
		Hours:   byte(h),
		DayLow:  byte(days & 0xFF),
		DayHigh: dh,
	}
}

// WriteLatch feeds a byte written to 0x6000-0x7FFF; on the 0x00->0x01
// transition the live registers are copied into the latched snapshot.
func (c *Clock) WriteLatch(value byte) {
	if c.latchPrev == 0x00 && value == 0x01 {
		c.latched = c.Live()
	}
	c.latchPrev = value
}

// Latched returns the frozen register snapshot the CPU reads.
func (c *Clock) Latched() Registers { return c.latched }

// WriteRegister updates the running clock from a CPU write to the selected
// RTC register (and re-derives elapsed/halt/day-overflow so a later AddSeconds
// keeps counting from the new value).
func (c *Clock) WriteRegister(sel byte, value byte) {
	live := c.Live()
	switch sel {
	case 0x08:
		live.Seconds = value % 60
	case 0x09:
		live.Minutes = value % 60
	case 0x0A:
		live.Hours = value % 24
	case 0x0B:
		live.DayLow = value
	case 0x0C:
		live.DayHigh = value & (dayHighCarryBit | dayHighHaltBit | dayHighBit8)
	default:
		return
	}
	c.haltedFlag = live.DayHigh&dayHighHaltBit != 0
	days := int64(live.DayLow)
	if live.DayHigh&dayHighBit8 != 0 {
		days |= 0x100
	}
	c.elapsed = int64(live.Seconds) + int64(live.Minutes)*60 + int64(live.Hours)*3600 + days*86400
}

// Marshal/Unmarshal implement the on-disk RTC layout appended to battery
// save files: little-endian, fixed-width, no raw in-memory struct overlay,
// so the format stays portable across host architectures.
const EncodedSize = 8 + 5 + 1 // elapsed(int64) + 5 latched register bytes + halt flag byte

func (c *Clock) Marshal() []byte {
	out := make([]byte, EncodedSize)
	binary.LittleEndian.PutUint64(out[0:8], uint64(c.elapsed))
	l := c.latched
	out[8] = l.Seconds
	out[9] = l.Minutes
	out[10] = l.Hours
	out[11] = l.DayLow
	out[12] = l.DayHigh
	if c.haltedFlag {
		out[13] = 1
	}
	return out
}

func (c *Clock) Unmarshal(data []byte) bool {
	if len(data) < EncodedSize {
		return false
	}
	c.elapsed = int64(binary.LittleEndian.Uint64(data[0:8]))
	c.latched = Registers{
		Seconds: data[8], Minutes: data[9], Hours: data[10],
		DayLow: data[11], DayHigh: data[12],
	}
	c.haltedFlag = data[13] != 0
	return true
}

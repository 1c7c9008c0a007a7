// Package cart implements the DMG cartridge image, its header, and the
// memory-bank-controller (MBC) variants that bank ROM/RAM into the CPU's
// address space, including MBC2 and an MBC3 wired to a real internal/rtc
// clock.
package cart

import (
	"errors"

	"github.com/nullterra/dmgcore/internal/diag"
)

var (
	errBadChecksum       = errors.New("cart: header checksum mismatch")
	errUnsupportedMapper = errors.New("cart: unsupported mapper type")
)

// Cartridge is the minimal interface the bus needs for ROM/RAM banking.
type Cartridge interface {
	// Read returns a byte for ROM (0x0000-0x7FFF) and external RAM (0xA000-0xBFFF).
	Read(addr uint16) byte
	// Write handles MBC control writes (0x0000-0x7FFF) and external RAM writes (0xA000-0xBFFF).
	Write(addr uint16, value byte)
	// Tick advances any cartridge-internal clock (RTC) by one T-cycle.
	Tick()
	SaveState() []byte
	LoadState(data []byte)
}

// BatteryBacked is implemented by cartridges with external RAM that should
// be persisted to a .sav file across sessions.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// HasRTC is implemented by cartridges whose battery save must also carry an
// RTC snapshot and wall-clock timestamp (MBC3 + timer variants).
type HasRTC interface {
	SaveRTC() []byte
	LoadRTC(data []byte)
}

// New picks an implementation based on the ROM header's cartridge-type code.
// Returns an error for an unsupported mapper: "Unsupported mapper codes must
// cause cartridge load to fail."
func New(rom []byte, log *diag.Log) (Cartridge, *Header, error) {
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, nil, err
	}
	if !HeaderChecksumOK(rom) {
		return nil, nil, errBadChecksum
	}
	ramSize := h.RAMSizeBytes
	switch h.CartType {
	case 0x00, 0x08, 0x09:
		return NewROMOnly(rom, ramSize), h, nil
	case 0x01, 0x02, 0x03:
		return NewMBC1(rom, ramSize), h, nil
	case 0x05, 0x06:
		return NewMBC2(rom), h, nil
	case 0x0F, 0x10, 0x11, 0x12, 0x13:
		return NewMBC3(rom, ramSize), h, nil
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E:
		return NewMBC5(rom, ramSize), h, nil
	default:
		if log != nil {
			log.Logf(diag.Error, "unsupported cartridge type %#02x (%s)", h.CartType, h.CartTypeStr)
		}
		return nil, h, errUnsupportedMapper
	}
}

// BatteryBackedType reports whether a cartridge-type code implies a battery.
func BatteryBackedType(cartType byte) bool {
	switch cartType {
	case 0x03, 0x06, 0x0D, 0x0F, 0x10, 0x13, 0x1B, 0x1E, 0x22, 0xFF:
		return true
	default:
		return false
	}
}

// TimerType reports whether a cartridge-type code implies an MBC3 RTC.
func TimerType(cartType byte) bool {
	return cartType == 0x0F || cartType == 0x10
}

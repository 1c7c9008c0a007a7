package cart

import (
	"testing"

	"github.com/nullterra/dmgcore/internal/rtc"
)

func TestMBC3_RTC_LatchAndRead(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := NewMBC3(rom, 0x2000)

	m.Write(0x0000, 0x0A) // RAM/RTC enable

	m.clk.WriteRegister(0x08, 5) // seconds
	m.clk.WriteRegister(0x09, 6) // minutes
	m.clk.WriteRegister(0x0A, 7) // hours
	m.clk.WriteRegister(0x0C, 0x01) // day bit 8
	m.clk.WriteRegister(0x0B, 0x01) // day low

	m.Write(0x6000, 0x00)
	m.Write(0x6000, 0x01) // latch (0->1)

	m.Write(0x4000, 0x08) // select seconds
	if got := m.Read(0xA000); got != 5 {
		t.Fatalf("latched sec got %d want 5", got)
	}

	// Changing the live clock after latching must not move the latched read.
	m.clk.WriteRegister(0x08, 30)
	if got := m.Read(0xA000); got != 5 {
		t.Fatalf("latched sec changed unexpectedly: got %d", got)
	}

	m.Write(0x4000, 0x0B)
	if got := m.Read(0xA000); got != 0x01 {
		t.Fatalf("latched day low got %#02x want 0x01", got)
	}
	m.Write(0x4000, 0x0C)
	if got := m.Read(0xA000); got&0x01 == 0 {
		t.Fatalf("latched day high bit8 not set")
	}
}

func TestMBC3_RTC_AdvancesWithTick(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := NewMBC3(rom, 0)
	m.Write(0x0000, 0x0A) // RAM/RTC enable

	for i := 0; i < ticksPerSecond*90; i++ { // 90 emulated seconds
		m.Tick()
	}
	m.Write(0x6000, 0x00)
	m.Write(0x6000, 0x01)
	m.Write(0x4000, 0x09) // minutes
	if got := m.Read(0xA000); got != 1 {
		t.Fatalf("minutes after 90s got %d want 1", got)
	}
	m.Write(0x4000, 0x08) // seconds
	if got := m.Read(0xA000); got != 30 {
		t.Fatalf("seconds after 90s got %d want 30", got)
	}
}

func TestMBC3_SaveLoadState_PersistsRTCAndRAM(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := NewMBC3(rom, 0x2000)
	m.Write(0x0000, 0x0A)
	m.Write(0xA000, 0x42) // RAM bank 0 byte

	for i := 0; i < ticksPerSecond*65; i++ {
		m.Tick()
	}

	data := m.SaveState()
	if len(data) < rtc.EncodedSize {
		t.Fatalf("SaveState too short: %d bytes", len(data))
	}

	n := NewMBC3(rom, 0x2000)
	n.LoadState(data)
	n.Write(0x0000, 0x0A)
	if got := n.Read(0xA000); got != 0x42 {
		t.Fatalf("restored RAM byte got %#02x want 0x42", got)
	}

	n.Write(0x6000, 0x00)
	n.Write(0x6000, 0x01)
	n.Write(0x4000, 0x09)
	if got := n.Read(0xA000); got != 1 {
		t.Fatalf("restored minutes got %d want 1", got)
	}
}

package machine

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/nullterra/dmgcore/internal/joypad"
	"github.com/stretchr/testify/require"
)

// buildROM constructs a minimal ROM with a valid header checksum, running
// an infinite NOP loop from 0x0100 so Update has something to step through.
func buildROM(title string, cartType, ramSizeCode byte, size int) []byte {
	rom := make([]byte, size)
	for i := 0x0100; i < 0x0104; i++ {
		rom[i] = 0x00 // NOP
	}
	rom[0x0104] = 0x18 // JR -2 (loop forever)
	rom[0x0105] = 0xFE

	tbytes := []byte(title)
	if len(tbytes) > 16 {
		tbytes = tbytes[:16]
	}
	copy(rom[0x0134:0x0144], tbytes)

	rom[0x0144], rom[0x0145] = '0', '1'
	rom[0x0147] = cartType
	rom[0x0148] = 0x00
	rom[0x0149] = ramSizeCode
	rom[0x014B] = 0x33

	var hsum byte
	for addr := 0x0134; addr <= 0x014C; addr++ {
		hsum = hsum - rom[addr] - 1
	}
	rom[0x014D] = hsum

	var gsum uint16
	for i := 0; i < len(rom); i++ {
		if i == 0x014E || i == 0x014F {
			continue
		}
		gsum += uint16(rom[i])
	}
	binary.BigEndian.PutUint16(rom[0x014E:0x0150], gsum)
	return rom
}

func TestLoadAndUpdateAdvancesPC(t *testing.T) {
	rom := buildROM("TESTROM", 0x00, 0x00, 32*1024)
	m := New(Config{})
	require.NoError(t, m.Load("test.gb", rom))
	require.NotNil(t, m.cpu)

	before := m.cpu.PC
	m.Update(1.0 / 60)
	require.NotEqual(t, before, m.cpu.PC, "CPU should have advanced after Update")
}

func TestUpdateClampsDeltaAndRespectsPause(t *testing.T) {
	rom := buildROM("TESTROM", 0x00, 0x00, 32*1024)
	m := New(Config{})
	require.NoError(t, m.Load("test.gb", rom))

	m.Pause(true)
	before := m.cpu.PC
	m.Update(1.0)
	require.Equal(t, before, m.cpu.PC, "paused machine should not advance")

	m.Pause(false)
	m.Update(1000) // clamped to 0.125s internally, must not hang
	require.NotEqual(t, before, m.cpu.PC)
}

func TestSetButtonAndReadFramebuffer(t *testing.T) {
	rom := buildROM("TESTROM", 0x00, 0x00, 32*1024)
	m := New(Config{})
	require.NoError(t, m.Load("test.gb", rom))

	m.SetButton(joypad.A, true)
	require.Equal(t, byte(joypad.A), m.bus.Joypad().Pressed())
	m.SetButton(joypad.A, false)
	require.Equal(t, byte(0), m.bus.Joypad().Pressed())

	fb := m.ReadFramebuffer()
	require.Len(t, fb, 160*144*4)
}

func TestSetButtonsStruct(t *testing.T) {
	rom := buildROM("TESTROM", 0x00, 0x00, 32*1024)
	m := New(Config{})
	require.NoError(t, m.Load("test.gb", rom))

	m.SetButtons(Buttons{Up: true, A: true})
	require.Equal(t, byte(joypad.Up|joypad.A), m.bus.Joypad().Pressed())
}

func TestSaveStateRoundTrip(t *testing.T) {
	rom := buildROM("TESTROM", 0x00, 0x00, 32*1024)
	m := New(Config{})
	require.NoError(t, m.Load("test.gb", rom))
	m.Update(1.0 / 60)

	snap := m.SaveState()
	require.NotEmpty(t, snap)
	pcAfterRun := m.cpu.PC

	// Mutate state, then restore it.
	m.cpu.PC = 0x1234
	require.NoError(t, m.LoadState(snap))
	require.Equal(t, pcAfterRun, m.cpu.PC)
}

func TestBatteryRAMPersistsAcrossLoad(t *testing.T) {
	dir := t.TempDir()
	romPath := filepath.Join(dir, "game.gb")
	rom := buildROM("TESTROM", 0x03, 0x02, 32*1024) // MBC1+RAM+BATTERY, 8KiB RAM

	m := New(Config{})
	require.NoError(t, m.Load(romPath, rom))
	m.bus.Write(0x0000, 0x0A) // enable RAM
	m.bus.Write(0xA000, 0x77)
	require.NoError(t, m.Close())

	savPath := romPath[:len(romPath)-len(filepath.Ext(romPath))] + ".sav"
	_, err := os.Stat(savPath)
	require.NoError(t, err)

	n := New(Config{})
	require.NoError(t, n.Load(romPath, rom))
	n.bus.Write(0x0000, 0x0A)
	require.Equal(t, byte(0x77), n.bus.Read(0xA000))
}

func TestCompatPaletteIDForKnownTitle(t *testing.T) {
	rom := buildROM("TETRIS", 0x00, 0x00, 32*1024)
	m := New(Config{})
	require.NoError(t, m.Load("test.gb", rom))

	id, ok := m.CompatPaletteID()
	require.True(t, ok)
	require.Equal(t, 2, id)
}

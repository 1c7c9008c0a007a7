package ppu

import "testing"

func TestOAMDMACopiesAfterDelayAndStride(t *testing.T) {
	p, _ := newTestPPU(t)
	src := make([]byte, 0x10000)
	for i := range src {
		src[i] = byte(i)
	}
	p.dma.read = func(addr uint16) byte {
		if int(addr) < len(src) {
			return src[addr]
		}
		return 0xFF
	}
	p.CPUWrite(0xFF46, 0xC0) // source base 0xC000

	// One-cycle start delay, then one byte every 4 cycles for 160 bytes.
	tickN(p, 1+4*160)

	for i := 0; i < 160; i++ {
		if got := p.oam[i]; got != byte(0xC000+i) {
			t.Fatalf("OAM[%d] = %#02x, want %#02x", i, got, byte(0xC000+i))
		}
	}
}

func TestOAMDMAStillRunningMidway(t *testing.T) {
	p, _ := newTestPPU(t)
	p.dma.read = func(addr uint16) byte { return byte(addr) }
	p.CPUWrite(0xFF46, 0x00)
	tickN(p, 1+4*50)
	if !p.dma.active {
		t.Fatalf("expected DMA still active after copying only 50/160 bytes")
	}
}

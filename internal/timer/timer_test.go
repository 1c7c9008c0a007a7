package timer

import "testing"

func newTestTimer(t *testing.T) (*Timer, *[]int) {
	t.Helper()
	var irqs []int
	tm := New(func(bit int) { irqs = append(irqs, bit) })
	return tm, &irqs
}

func TestFallingEdgeOnDIVWriteIncrementsTIMA(t *testing.T) {
	tm, _ := newTestTimer(t)
	tm.tac = 0x05 // enabled, select bit3
	tm.tima = 0x10
	tm.divInternal = 0x0008 // bit3=1
	if !tm.input() {
		t.Fatalf("expected timer input true")
	}
	tm.WriteDIV()
	if tm.tima != 0x11 {
		t.Fatalf("TIMA not incremented on DIV falling edge: got %02x want 11", tm.tima)
	}
}

func TestFallingEdgeOnTACWriteIncrementsTIMA(t *testing.T) {
	tm, _ := newTestTimer(t)
	tm.tima = 0x20
	tm.divInternal = 0x0008 // bit3=1, bit5=0
	tm.tac = 0x05           // enabled, select bit3 (currently 1)
	if !tm.input() {
		t.Fatalf("expected input true before TAC change")
	}
	tm.WriteTAC(0x06) // enabled, select bit5 (currently 0) -> falling edge
	if tm.tima != 0x21 {
		t.Fatalf("TIMA not incremented on TAC falling edge: got %02x want 21", tm.tima)
	}
}

func TestOverflowReloadsAfterFourCyclesAndRaisesIRQ(t *testing.T) {
	tm, irqs := newTestTimer(t)
	tm.tac = 0x05
	tm.tma = 0xAB
	tm.tima = 0xFF
	tm.divInternal = 0x000F // next Tick flips bit3 1->0: falling edge
	tm.Tick()
	if tm.tima != 0x00 {
		t.Fatalf("after overflow, TIMA got %02x want 00", tm.tima)
	}
	for i := 0; i < 3; i++ {
		tm.Tick()
		if tm.tima != 0x00 {
			t.Fatalf("during delay cycle %d, TIMA got %02x want 00", i, tm.tima)
		}
	}
	tm.Tick()
	if tm.tima != 0xAB {
		t.Fatalf("after delay, TIMA got %02x want AB", tm.tima)
	}
	found := false
	for _, b := range *irqs {
		if b == timerIRQBit {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected timer IRQ on reload, got %v", *irqs)
	}
}

func TestTIMAWriteDuringDelayCancelsReload(t *testing.T) {
	tm, irqs := newTestTimer(t)
	tm.tac = 0x05
	tm.tma = 0x55
	tm.tima = 0xFF
	tm.divInternal = 0x000F
	tm.Tick() // overflow -> TIMA=00, reload pending
	tm.WriteTIMA(0x77)
	for i := 0; i < 8; i++ {
		tm.Tick()
	}
	if tm.tima != 0x77 {
		t.Fatalf("TIMA write during delay not retained: got %02x want 77", tm.tima)
	}
	for _, b := range *irqs {
		if b == timerIRQBit {
			t.Fatalf("timer IRQ raised despite cancelled reload")
		}
	}
}

func TestTMAWriteDuringDelayAffectsReloadedValue(t *testing.T) {
	tm, _ := newTestTimer(t)
	tm.tac = 0x05
	tm.tima = 0xFF
	tm.tma = 0x11
	tm.divInternal = 0x000F
	tm.Tick()
	tm.WriteTMA(0x22)
	for i := 0; i < 4; i++ {
		tm.Tick()
	}
	if tm.tima != 0x22 {
		t.Fatalf("TMA write during delay not reflected in reload: got %02x want 22", tm.tima)
	}
}

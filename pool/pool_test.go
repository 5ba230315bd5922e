package pool

import (
	"errors"
	"testing"
	"time"

	"github.com/moodtape/moodpipe/config"
	"github.com/moodtape/moodpipe/monitor"
)

func testCfg(ceiling, floor int) config.Pool {
	return config.Pool{
		Ceiling:             ceiling,
		Floor:               floor,
		BackpressureAfter:   50 * time.Millisecond,
		ElevatedRetainRatio: 0.8,
		CriticalRetainRatio: 0.6,
	}
}

func TestAcquireUntilExhausted(t *testing.T) {
	p := New(testCfg(10, 2), 64, nil)

	var held []*Buffer
	for i := 0; i < 10; i++ {
		b, err := p.Acquire()
		if err != nil {
			t.Fatalf("acquire %d: %v", i+1, err)
		}
		held = append(held, b)
	}
	if _, err := p.Acquire(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("11th acquire: got %v, want ErrExhausted", err)
	}
	if got := p.Utilization(); got != 1.0 {
		t.Errorf("utilization = %v, want 1.0", got)
	}
	for _, b := range held {
		p.Release(b)
	}
	if got := p.Utilization(); got != 0 {
		t.Errorf("utilization after release = %v, want 0", got)
	}
}

func TestSequenceNumbersIncrease(t *testing.T) {
	p := New(testCfg(4, 2), 16, nil)
	var last uint64
	for i := 0; i < 12; i++ {
		b, err := p.Acquire()
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if b.Seq <= last {
			t.Fatalf("seq %d not greater than previous %d", b.Seq, last)
		}
		last = b.Seq
		p.Release(b)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	p := New(testCfg(3, 2), 16, nil)

	b, err := p.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Release(b)
	p.Release(b) // double release must be a no-op
	p.Release(nil)

	// every slot must still be individually acquirable exactly once
	seen := map[uint64]bool{}
	var held []*Buffer
	for i := 0; i < 3; i++ {
		b, err := p.Acquire()
		if err != nil {
			t.Fatalf("acquire after double release: %v", err)
		}
		if seen[b.Seq] {
			t.Fatalf("duplicate handle seq %d", b.Seq)
		}
		seen[b.Seq] = true
		held = append(held, b)
	}
	if _, err := p.Acquire(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	for _, b := range held {
		p.Release(b)
	}
}

func TestApplyPressureShrinksOneWay(t *testing.T) {
	p := New(testCfg(10, 2), 16, nil)

	p.ApplyPressure(monitor.Elevated)
	if got := p.Active(); got != 8 {
		t.Fatalf("active after Elevated = %d, want 8", got)
	}

	p.ApplyPressure(monitor.Critical)
	if got := p.Active(); got != 4 {
		t.Fatalf("active after Critical = %d, want 4", got)
	}

	// retirement is one-way: Normal never restores slots
	p.ApplyPressure(monitor.Normal)
	if got := p.Active(); got != 4 {
		t.Fatalf("active after Normal = %d, want 4", got)
	}
}

func TestApplyPressureRespectsFloor(t *testing.T) {
	p := New(testCfg(4, 2), 16, nil)
	for i := 0; i < 10; i++ {
		p.ApplyPressure(monitor.Critical)
	}
	if got := p.Active(); got != 2 {
		t.Fatalf("active = %d, want floor 2", got)
	}
	// forward progress: the floor slots are still usable
	a, err := p.Acquire()
	if err != nil {
		t.Fatalf("acquire at floor: %v", err)
	}
	b, err := p.Acquire()
	if err != nil {
		t.Fatalf("second acquire at floor: %v", err)
	}
	if _, err := p.Acquire(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected exhaustion at floor, got %v", err)
	}
	p.Release(a)
	p.Release(b)
}

func TestPressureSkipsInUseBuffers(t *testing.T) {
	p := New(testCfg(4, 1), 16, nil)
	b, err := p.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.ApplyPressure(monitor.Critical) // target 2, but one slot is checked out

	// the held buffer must survive retirement and release normally
	b.Samples[0] = 1
	p.Release(b)
	if _, err := p.Acquire(); err != nil {
		t.Fatalf("acquire after pressure: %v", err)
	}
}

func TestSustainedExhaustionReportsBackpressure(t *testing.T) {
	mon := monitor.New(config.Monitor{HistorySize: 8}, nil)
	p := New(testCfg(2, 1), 16, mon)

	a, _ := p.Acquire()
	b, _ := p.Acquire()
	deadline := time.Now().Add(time.Second)
	for mon.BackpressureEvents() == 0 && time.Now().Before(deadline) {
		if _, err := p.Acquire(); !errors.Is(err, ErrExhausted) {
			t.Fatalf("expected exhaustion, got %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if mon.BackpressureEvents() == 0 {
		t.Fatal("sustained exhaustion never reported backpressure")
	}
	p.Release(a)
	p.Release(b)
}

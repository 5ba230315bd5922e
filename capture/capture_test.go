package capture

import (
	"context"
	"testing"
	"time"
)

func TestOfferDropsOldestWhenFull(t *testing.T) {
	ch := make(chan Frame, 2)
	for i := 0; i < 5; i++ {
		offer(ch, Frame{Samples: []float32{float32(i)}})
	}
	first := <-ch
	second := <-ch
	if first.Samples[0] != 3 || second.Samples[0] != 4 {
		t.Fatalf("kept frames %v and %v, want the two newest (3, 4)",
			first.Samples[0], second.Samples[0])
	}
	select {
	case f := <-ch:
		t.Fatalf("unexpected extra frame %v", f.Samples)
	default:
	}
}

func TestSyntheticProducesFramesAtCadence(t *testing.T) {
	// 64 samples at 16kHz is a 4ms frame interval
	s := NewSynthetic(16000, 64)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	for i := 0; i < 3; i++ {
		select {
		case f := <-s.Frames():
			if len(f.Samples) != 64 {
				t.Fatalf("frame length = %d, want 64", len(f.Samples))
			}
			if f.At.IsZero() {
				t.Fatal("frame missing capture time")
			}
		case <-time.After(time.Second):
			t.Fatal("no frame within 1s")
		}
	}
}

func TestSyntheticSignalShape(t *testing.T) {
	s := NewSynthetic(16000, 256)
	s.NoiseAmp = 0
	frame := s.generate()

	var peak float32
	for _, v := range frame {
		if v > peak {
			peak = v
		}
		if v > 1 || v < -1 {
			t.Fatalf("sample %v outside [-1, 1]", v)
		}
	}
	if peak < 0.3 {
		t.Errorf("peak = %v, want near Amp 0.4", peak)
	}

	// phase continues across frames, no discontinuity back to zero
	next := s.generate()
	if next[0] == frame[0] && next[1] == frame[1] {
		t.Error("second frame restarts the waveform")
	}
}

func TestSyntheticStopEndsProduction(t *testing.T) {
	s := NewSynthetic(16000, 64)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
drain:
	for {
		select {
		case <-s.Frames():
		default:
			break drain
		}
	}
	select {
	case <-s.Frames():
		t.Fatal("frame produced after Stop")
	case <-time.After(50 * time.Millisecond):
	}
}

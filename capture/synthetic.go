package capture

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Synthetic generates sine-plus-noise frames at real-time cadence. Used by
// the simulate command and by tests that need a deterministic signal shape.
type Synthetic struct {
	sampleRate int
	frameSize  int

	// Freq is the sine frequency in Hz; Amp its amplitude 0..1; NoiseAmp the
	// amplitude of added white noise.
	Freq     float64
	Amp      float64
	NoiseAmp float64

	out    chan Frame
	cancel context.CancelFunc
	wg     sync.WaitGroup
	phase  float64
	rng    *rand.Rand
}

// NewSynthetic builds a 220Hz tone source; fields may be adjusted before
// Start.
func NewSynthetic(sampleRate, frameSize int) *Synthetic {
	return &Synthetic{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		Freq:       220,
		Amp:        0.4,
		NoiseAmp:   0.02,
		out:        make(chan Frame, 4),
		rng:        rand.New(rand.NewSource(1)),
	}
}

func (s *Synthetic) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	interval := time.Duration(float64(s.frameSize) / float64(s.sampleRate) * float64(time.Second))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				offer(s.out, Frame{Samples: s.generate(), At: time.Now()})
			}
		}
	}()
	return nil
}

func (s *Synthetic) generate() []float32 {
	samples := make([]float32, s.frameSize)
	step := 2 * math.Pi * s.Freq / float64(s.sampleRate)
	for i := range samples {
		v := s.Amp * math.Sin(s.phase)
		v += s.NoiseAmp * (2*s.rng.Float64() - 1)
		samples[i] = float32(v)
		s.phase += step
	}
	if s.phase > 2*math.Pi {
		s.phase = math.Mod(s.phase, 2*math.Pi)
	}
	return samples
}

func (s *Synthetic) Frames() <-chan Frame { return s.out }

func (s *Synthetic) Stop() error {
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}
	return nil
}

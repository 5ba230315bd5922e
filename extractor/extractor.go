// Package extractor turns one audio buffer into an immutable feature vector
// (energy, tempo estimate, spectral valence proxy) via a Hann-windowed FFT.
package extractor

import (
	"errors"
	"math"
	"math/cmplx"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/moodtape/moodpipe/config"
	"github.com/moodtape/moodpipe/monitor"
	"github.com/moodtape/moodpipe/pool"
)

// ErrSkippedFrame reports that a buffer could not be processed (for example
// a length that does not match the transform size). The frame is dropped;
// the pipeline keeps running.
var ErrSkippedFrame = errors.New("extractor: skipped frame")

// Tempo bounds in BPM.
const (
	TempoMin     = 40.0
	TempoMax     = 220.0
	TempoDefault = 120.0
)

// FeatureVector is an immutable per-frame summary. Never mutated after
// creation.
type FeatureVector struct {
	Energy    float64 // 0..1 normalized magnitude sum
	Tempo     float64 // BPM, 40..220
	Valence   float64 // 0..1 spectral-centroid proxy
	Timestamp time.Time
	Seq       uint64
}

// Extractor applies the windowed transform. Not safe for concurrent use;
// the capture lane is its single caller.
type Extractor struct {
	size    int
	fft     *fourier.FFT
	win     []float64
	scratch []float64

	sampleRate int
	frameDur   time.Duration

	// rolling energy history for the periodicity-based tempo estimate
	energyHist []float64

	budget time.Duration
	mon    *monitor.Monitor

	// skip widens under pressure: process every Nth frame only
	skipEvery atomic.Int32
	frameNo   uint64

	log *logrus.Entry
}

// New builds an extractor for frames of cfg-configured size. The monitor may
// be nil in tests.
func New(cfg config.Extractor, audio config.Audio, mon *monitor.Monitor) *Extractor {
	size := audio.FrameSize
	hist := cfg.TempoHistory
	if hist < 8 {
		hist = 8
	}
	e := &Extractor{
		size:       size,
		fft:        fourier.NewFFT(size),
		win:        window.Hann(make([]float64, size)),
		scratch:    make([]float64, size),
		sampleRate: audio.SampleRate,
		frameDur:   time.Duration(float64(size) / float64(audio.SampleRate) * float64(time.Second)),
		energyHist: make([]float64, 0, hist),
		budget:     cfg.LatencyBudget,
		mon:        mon,
		log:        logrus.WithField("component", "extractor"),
	}
	e.skipEvery.Store(1)
	return e
}

// ApplyPressure widens the frame-skip interval under load: every 2nd frame
// at Elevated, every 4th at Critical.
func (e *Extractor) ApplyPressure(sig monitor.Pressure) {
	switch sig {
	case monitor.Critical:
		e.skipEvery.Store(4)
	case monitor.Elevated:
		e.skipEvery.Store(2)
	default:
		e.skipEvery.Store(1)
	}
}

// Extract computes the feature vector for one buffer. The buffer is released
// back to the pool on every exit path. Exceeding the latency budget is
// recorded as a violation but the result is still returned.
func (e *Extractor) Extract(b *pool.Buffer, p *pool.Pool) (FeatureVector, error) {
	started := time.Now()
	defer func() {
		if p != nil {
			p.Release(b)
		}
		if e.mon != nil {
			e.mon.RecordLatency(monitor.StageExtract, time.Since(started))
		}
	}()

	e.frameNo++
	if n := uint64(e.skipEvery.Load()); n > 1 && e.frameNo%n != 0 {
		return FeatureVector{}, ErrSkippedFrame
	}

	samples := b.Samples
	if len(samples) != e.size {
		e.log.WithField("len", len(samples)).Debug("malformed buffer length")
		return FeatureVector{}, ErrSkippedFrame
	}

	for i, s := range samples {
		e.scratch[i] = float64(s) * e.win[i]
	}
	coeffs := e.fft.Coefficients(nil, e.scratch)

	var magSum, weighted float64
	for i, c := range coeffs {
		mag := cmplx.Abs(c)
		magSum += mag
		weighted += mag * float64(i)
	}

	energy := normalizeEnergy(magSum, e.size)

	valence := 0.5
	if magSum > 1e-9 {
		centroid := weighted / magSum // bin index
		valence = clamp01(centroid / float64(len(coeffs)-1))
	}

	e.pushEnergy(energy)
	tempo := e.tempoEstimate()

	return FeatureVector{
		Energy:    energy,
		Tempo:     tempo,
		Valence:   valence,
		Timestamp: b.CaptureAt,
		Seq:       b.Seq,
	}, nil
}

// normalizeEnergy maps the raw magnitude sum into 0..1. A full-scale
// broadband frame saturates at 1; louder input never lowers the result.
func normalizeEnergy(magSum float64, size int) float64 {
	// Hann window halves the coherent gain; full-scale input yields a
	// magnitude sum on the order of size/2.
	return clamp01(magSum / (float64(size) / 2))
}

func (e *Extractor) pushEnergy(v float64) {
	if len(e.energyHist) == cap(e.energyHist) {
		copy(e.energyHist, e.energyHist[1:])
		e.energyHist[len(e.energyHist)-1] = v
		return
	}
	e.energyHist = append(e.energyHist, v)
}

// tempoEstimate finds the dominant periodicity in the rolling energy
// sequence by autocorrelation over lags that map into the 40..220 BPM band.
// Returns the neutral default until enough history exists or no lag stands
// out.
func (e *Extractor) tempoEstimate() float64 {
	n := len(e.energyHist)
	if n < 8 {
		return TempoDefault
	}

	mean := 0.0
	for _, v := range e.energyHist {
		mean += v
	}
	mean /= float64(n)

	framesPerMin := time.Minute.Seconds() / e.frameDur.Seconds()
	minLag := int(framesPerMin / TempoMax)
	maxLag := int(framesPerMin / TempoMin)
	if minLag < 1 {
		minLag = 1
	}
	if maxLag > n/2 {
		maxLag = n / 2
	}
	if maxLag < minLag {
		return TempoDefault
	}

	bestLag, bestCorr := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := lag; i < n; i++ {
			corr += (e.energyHist[i] - mean) * (e.energyHist[i-lag] - mean)
		}
		if corr > bestCorr {
			bestCorr, bestLag = corr, lag
		}
	}
	if bestLag == 0 || bestCorr <= 1e-12 {
		return TempoDefault
	}
	bpm := framesPerMin / float64(bestLag)
	return math.Min(TempoMax, math.Max(TempoMin, bpm))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

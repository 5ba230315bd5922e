package affect

import (
	"fmt"
	"math"
	"math/cmplx"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Ambient classification thresholds. RMS below the silence gate is silence;
// otherwise WebRTC VAD decides speech, and spectral flatness splits the rest
// into music (tonal) versus noise (flat spectrum).
const (
	silenceRMS       = 0.01
	flatnessNoiseMin = 0.35
	vadMode          = 2
)

// AmbientClassifier derives the coarse acoustic class from raw mono frames.
// It runs on its own cadence, independent of the feature-extraction lane.
type AmbientClassifier struct {
	vad        *webrtcvad.VAD
	sampleRate int
	adapter    *AmbientAdapter

	fft     *fourier.FFT
	fftSize int
}

// NewAmbientClassifier builds a classifier feeding the given adapter.
// Sample rate must be one WebRTC VAD accepts (8k/16k/32k/48k).
func NewAmbientClassifier(sampleRate int, adapter *AmbientAdapter) (*AmbientClassifier, error) {
	switch sampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return nil, fmt.Errorf("ambient: unsupported sample rate %d", sampleRate)
	}
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("ambient: vad init: %w", err)
	}
	if err := v.SetMode(vadMode); err != nil {
		return nil, fmt.Errorf("ambient: vad mode: %w", err)
	}
	return &AmbientClassifier{vad: v, sampleRate: sampleRate, adapter: adapter}, nil
}

// Process classifies one frame and pushes the class to the adapter. VAD
// errors (for example an unsupported frame length) fall back to the
// energy/flatness heuristics rather than failing.
func (c *AmbientClassifier) Process(samples []float32) AmbientClass {
	class := c.classify(samples)
	if c.adapter != nil {
		c.adapter.Update(class)
	}
	return class
}

func (c *AmbientClassifier) classify(samples []float32) AmbientClass {
	if rms(samples) < silenceRMS {
		return AmbientSilence
	}
	if c.vad != nil && c.speechDetected(samples) {
		return AmbientSpeech
	}
	if c.spectralFlatness(samples) > flatnessNoiseMin {
		return AmbientNoise
	}
	return AmbientMusic
}

// speechDetected feeds the VAD in 10ms sub-frames (the only lengths it
// accepts) and reports speech if any sub-frame is active.
func (c *AmbientClassifier) speechDetected(samples []float32) bool {
	sub := c.sampleRate / 100
	for i := 0; i+sub <= len(samples); i += sub {
		pcm := toPCM16(samples[i : i+sub])
		if ok, err := c.vad.Process(c.sampleRate, pcm); err == nil && ok {
			return true
		}
	}
	return false
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func toPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		}
		if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// spectralFlatness is the ratio of geometric to arithmetic mean of the
// power spectrum (Wiener entropy). Broadband noise approaches 1; tonal
// content approaches 0.
func (c *AmbientClassifier) spectralFlatness(samples []float32) float64 {
	n := len(samples)
	if n < 16 {
		return 1
	}
	if c.fft == nil || c.fftSize != n {
		c.fft = fourier.NewFFT(n)
		c.fftSize = n
	}
	in := make([]float64, n)
	for i, s := range samples {
		in[i] = float64(s)
	}
	coeffs := c.fft.Coefficients(nil, in)

	var logSum, sum float64
	for _, co := range coeffs[1:] { // skip DC
		p := cmplx.Abs(co)
		p = p*p + 1e-12
		logSum += math.Log(p)
		sum += p
	}
	bins := float64(len(coeffs) - 1)
	geo := math.Exp(logSum / bins)
	arith := sum / bins
	if arith <= 0 {
		return 1
	}
	return geo / arith
}

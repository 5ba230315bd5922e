// Package affect defines single-source emotional estimates and the adapters
// that produce them: a facial-expression mapper over blend-shape magnitudes
// and an ambient-sound adapter over a coarse acoustic class.
package affect

import "time"

// Source tags a sample with its producer.
type Source string

const (
	SourceFace       Source = "face"
	SourceClassifier Source = "classifier"
	SourceAmbient    Source = "ambient"
)

// Sample is an immutable single-source affect estimate.
type Sample struct {
	Valence    float64 // 0..1
	Arousal    float64 // 0..1
	Source     Source
	Timestamp  time.Time
	Confidence float64 // 0 when the producer reports none
}

// AmbientClass is the coarse acoustic category contributed by the ambient
// adapter. It modulates fusion instead of competing with the affect sources.
type AmbientClass string

const (
	AmbientSilence AmbientClass = "silence"
	AmbientSpeech  AmbientClass = "speech"
	AmbientMusic   AmbientClass = "music"
	AmbientNoise   AmbientClass = "noise"
)

// Bias is the additive fusion contribution of an ambient class.
type Bias struct {
	Valence float64
	Arousal float64
}

// BiasFor returns the fixed fusion bias for a class: music lifts valence,
// speech lowers it, noise lifts arousal.
func BiasFor(class AmbientClass) Bias {
	switch class {
	case AmbientMusic:
		return Bias{Valence: 0.05}
	case AmbientSpeech:
		return Bias{Valence: -0.05}
	case AmbientNoise:
		return Bias{Arousal: 0.05}
	default:
		return Bias{}
	}
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

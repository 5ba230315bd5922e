package clients

import (
	"context"

	"github.com/moodtape/moodpipe/affect"
	"github.com/moodtape/moodpipe/extractor"
)

// LocalModel is a deterministic linear stand-in for the external model, used
// when no classifier service is configured. Brighter spectra and faster
// tempi read as more positive and more aroused; energy drives arousal.
type LocalModel struct{}

func NewLocalModel() *LocalModel { return &LocalModel{} }

func (LocalModel) Infer(_ context.Context, fv extractor.FeatureVector) (affect.Sample, error) {
	tempoNorm := (fv.Tempo - extractor.TempoMin) / (extractor.TempoMax - extractor.TempoMin)
	return affect.Sample{
		Valence:    clamp01(0.6*fv.Valence + 0.4*tempoNorm),
		Arousal:    clamp01(0.7*fv.Energy + 0.3*tempoNorm),
		Source:     affect.SourceClassifier,
		Timestamp:  fv.Timestamp,
		Confidence: 0.5,
	}, nil
}

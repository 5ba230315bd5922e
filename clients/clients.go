// Package clients adapts the opaque mood-classification model behind a small
// interface. The HTTP client talks to an external inference service; the
// local model is a deterministic fallback for offline runs and tests.
package clients

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/moodtape/moodpipe/affect"
	"github.com/moodtape/moodpipe/extractor"
)

// ErrInferenceUnavailable reports a failed or timed-out classification. The
// fusion engine tolerates missing classifier samples and falls back to the
// other affect sources.
var ErrInferenceUnavailable = errors.New("clients: inference unavailable")

// Classifier maps a feature vector to a classifier-tagged affect sample.
// Implementations are stateless per call.
type Classifier interface {
	Infer(ctx context.Context, fv extractor.FeatureVector) (affect.Sample, error)
}

type HTTP struct{ c *http.Client }

func NewHTTP() *HTTP { return &HTTP{c: &http.Client{Timeout: 60 * time.Second}} }

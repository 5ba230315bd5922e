package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/moodtape/moodpipe/affect"
	"github.com/moodtape/moodpipe/extractor"
)

// --- Mood classifier (/classify) ---

type ClassifyReq struct {
	Energy  float64 `json:"energy"`
	Tempo   float64 `json:"tempo"`
	Valence float64 `json:"valence"`
	Seq     uint64  `json:"seq"`
}

type ClassifyResp struct {
	Valence    float64 `json:"valence"`
	Arousal    float64 `json:"arousal"`
	Confidence float64 `json:"confidence"`
}

// RemoteClassifier calls the external inference service with a hard per-call
// budget. Any transport error, non-200 status or budget overrun collapses to
// ErrInferenceUnavailable; the caller drops the sample and moves on.
type RemoteClassifier struct {
	http   *HTTP
	url    string
	budget time.Duration
}

// NewRemoteClassifier builds a classifier against url with the given
// inference budget (the documented target is 10ms).
func NewRemoteClassifier(url string, budget time.Duration) *RemoteClassifier {
	return &RemoteClassifier{http: NewHTTP(), url: url, budget: budget}
}

func (r *RemoteClassifier) Infer(ctx context.Context, fv extractor.FeatureVector) (affect.Sample, error) {
	if r.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.budget)
		defer cancel()
	}

	b, _ := json.Marshal(ClassifyReq{
		Energy:  fv.Energy,
		Tempo:   fv.Tempo,
		Valence: fv.Valence,
		Seq:     fv.Seq,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"/classify", bytes.NewReader(b))
	if err != nil {
		return affect.Sample{}, fmt.Errorf("%w: %v", ErrInferenceUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.c.Do(req)
	if err != nil {
		return affect.Sample{}, fmt.Errorf("%w: %v", ErrInferenceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return affect.Sample{}, fmt.Errorf("%w: %s: %s", ErrInferenceUnavailable, resp.Status, string(body))
	}

	var out ClassifyResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return affect.Sample{}, fmt.Errorf("%w: decode: %v", ErrInferenceUnavailable, err)
	}
	return affect.Sample{
		Valence:    clamp01(out.Valence),
		Arousal:    clamp01(out.Arousal),
		Source:     affect.SourceClassifier,
		Timestamp:  fv.Timestamp,
		Confidence: out.Confidence,
	}, nil
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

package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/moodtape/moodpipe/affect"
	"github.com/moodtape/moodpipe/extractor"
)

func TestLocalModelDeterministicAndBounded(t *testing.T) {
	fv := extractor.FeatureVector{
		Energy:    0.8,
		Tempo:     140,
		Valence:   0.6,
		Timestamp: time.Now(),
		Seq:       7,
	}
	m := NewLocalModel()

	a, err := m.Infer(context.Background(), fv)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	b, _ := m.Infer(context.Background(), fv)
	if a.Valence != b.Valence || a.Arousal != b.Arousal {
		t.Errorf("same input produced %+v then %+v", a, b)
	}
	if a.Source != affect.SourceClassifier {
		t.Errorf("source = %s, want classifier", a.Source)
	}
	if !a.Timestamp.Equal(fv.Timestamp) {
		t.Error("sample does not carry the feature timestamp")
	}

	extremes := []extractor.FeatureVector{
		{Energy: 0, Tempo: extractor.TempoMin, Valence: 0},
		{Energy: 1, Tempo: extractor.TempoMax, Valence: 1},
	}
	for _, ev := range extremes {
		s, _ := m.Infer(context.Background(), ev)
		if s.Valence < 0 || s.Valence > 1 || s.Arousal < 0 || s.Arousal > 1 {
			t.Errorf("out of range sample %+v for %+v", s, ev)
		}
	}
}

func TestRemoteClassifierSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/classify" {
			t.Errorf("path = %s, want /classify", r.URL.Path)
		}
		var req ClassifyReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Seq != 42 {
			t.Errorf("seq = %d, want 42", req.Seq)
		}
		json.NewEncoder(w).Encode(ClassifyResp{Valence: 1.4, Arousal: -0.2, Confidence: 0.9})
	}))
	defer srv.Close()

	c := NewRemoteClassifier(srv.URL, time.Second)
	s, err := c.Infer(context.Background(), extractor.FeatureVector{Seq: 42, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if s.Valence != 1 {
		t.Errorf("valence = %v, want clamped 1", s.Valence)
	}
	if s.Arousal != 0 {
		t.Errorf("arousal = %v, want clamped 0", s.Arousal)
	}
	if s.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", s.Confidence)
	}
}

func TestRemoteClassifierServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewRemoteClassifier(srv.URL, time.Second)
	_, err := c.Infer(context.Background(), extractor.FeatureVector{})
	if !errors.Is(err, ErrInferenceUnavailable) {
		t.Fatalf("err = %v, want ErrInferenceUnavailable", err)
	}
}

func TestRemoteClassifierBudgetOverrun(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewRemoteClassifier(srv.URL, 20*time.Millisecond)
	start := time.Now()
	_, err := c.Infer(context.Background(), extractor.FeatureVector{})
	if !errors.Is(err, ErrInferenceUnavailable) {
		t.Fatalf("err = %v, want ErrInferenceUnavailable", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("budget not enforced, call took %v", elapsed)
	}
}

func TestRemoteClassifierCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewRemoteClassifier(srv.URL, time.Second)
	if _, err := c.Infer(ctx, extractor.FeatureVector{}); !errors.Is(err, ErrInferenceUnavailable) {
		t.Fatalf("err = %v, want ErrInferenceUnavailable", err)
	}
}

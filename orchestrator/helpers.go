package orchestrator

import (
	"time"

	"github.com/moodtape/moodpipe/fusion"
)

// windowStates buckets published mood states into overlapping time windows
// between the first and last fusion timestamps.
func windowStates(states []fusion.MoodState, width, overlap time.Duration) []Window {
	if len(states) == 0 {
		return nil
	}
	step := width - overlap
	if step <= 0 {
		step = width
	}
	start := states[0].Timestamp
	// half-open windows; nudge the bound so the final state is covered
	end := states[len(states)-1].Timestamp.Add(time.Nanosecond)

	var out []Window
	for t0 := start; t0.Before(end); t0 = t0.Add(step) {
		t1 := t0.Add(width)
		if t1.After(end) {
			t1 = end
		}
		var slice []fusion.MoodState
		for _, s := range states {
			if s.Timestamp.Before(t0) || !s.Timestamp.Before(t1) {
				continue
			}
			slice = append(slice, s)
		}
		out = append(out, Window{T0: t0, T1: t1, States: slice})
	}
	return out
}

// aggregate fills a window's mean affect and dominant-source shares.
func aggregate(w *Window) {
	if len(w.States) == 0 {
		return
	}
	w.SourceShare = map[string]float64{}
	for _, s := range w.States {
		w.MeanValence += s.Valence
		w.MeanArousal += s.Arousal
		w.SourceShare[string(s.Source)]++
	}
	n := float64(len(w.States))
	w.MeanValence /= n
	w.MeanArousal /= n
	for k := range w.SourceShare {
		w.SourceShare[k] /= n
	}
}

// sourceKeys fixes a stable order for the share components of the vector.
var sourceKeys = []string{"classifier", "face", "ambient", "init"}

// toVector flattens a window into the feature vector used for era
// clustering.
func toVector(w Window) []float64 {
	vec := []float64{w.MeanValence, w.MeanArousal}
	for _, k := range sourceKeys {
		vec = append(vec, w.SourceShare[k])
	}
	return vec
}

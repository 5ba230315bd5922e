package orchestrator

import (
	"fmt"
	"time"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

// MoodEra is a cluster of session windows with a similar mood profile.
type MoodEra struct {
	Label       string    `json:"label"`
	Windows     []int     `json:"windows"` // indexes into the session windows
	MeanValence float64   `json:"mean_valence"`
	MeanArousal float64   `json:"mean_arousal"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// windowObservation adapts a Window vector to the clusters.Observation
// interface.
type windowObservation struct {
	index  int
	coords clusters.Coordinates
}

func (o windowObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o windowObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// clusterEras partitions windows by mood-vector similarity using k-means.
// Returns nil when there are too few windows for a meaningful partition.
func clusterEras(windows []Window, k int) ([]MoodEra, error) {
	if k <= 0 {
		k = 3
	}
	if len(windows) < k {
		return nil, nil
	}

	var obs clusters.Observations
	for i, w := range windows {
		obs = append(obs, windowObservation{index: i, coords: w.Vector})
	}

	km := kmeans.New()
	result, err := km.Partition(obs, k)
	if err != nil {
		return nil, fmt.Errorf("era clustering: %w", err)
	}

	var eras []MoodEra
	for _, c := range result {
		era := MoodEra{Label: eraLabel(c.Center)}
		first := true
		for _, o := range c.Observations {
			wo, ok := o.(windowObservation)
			if !ok {
				continue
			}
			w := windows[wo.index]
			era.Windows = append(era.Windows, wo.index)
			era.MeanValence += w.MeanValence
			era.MeanArousal += w.MeanArousal
			if first || w.T0.Before(era.Start) {
				era.Start = w.T0
			}
			if first || w.T1.After(era.End) {
				era.End = w.T1
			}
			first = false
		}
		if n := float64(len(era.Windows)); n > 0 {
			era.MeanValence /= n
			era.MeanArousal /= n
			eras = append(eras, era)
		}
	}
	return eras, nil
}

// eraLabel names a cluster center by its valence/arousal quadrant.
func eraLabel(center clusters.Coordinates) string {
	if len(center) < 2 {
		return "neutral"
	}
	v, a := center[0], center[1]
	switch {
	case v >= 0.5 && a >= 0.5:
		return "energetic"
	case v >= 0.5:
		return "calm"
	case a >= 0.5:
		return "tense"
	default:
		return "somber"
	}
}

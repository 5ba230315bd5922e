package orchestrator

import (
	"time"

	"github.com/moodtape/moodpipe/fusion"
)

// SessionEventKind enumerates what the external session coordinator can
// report. The pipeline reacts but never owns audio-device configuration.
type SessionEventKind int

const (
	RouteChanged SessionEventKind = iota
	InterruptionBegan
	InterruptionEnded
	ConfigurationChanged
)

func (k SessionEventKind) String() string {
	switch k {
	case RouteChanged:
		return "route_changed"
	case InterruptionBegan:
		return "interruption_began"
	case InterruptionEnded:
		return "interruption_ended"
	case ConfigurationChanged:
		return "configuration_changed"
	default:
		return "unknown"
	}
}

// SessionEvent is one coordinator notification. ShouldResume is only
// meaningful for InterruptionEnded.
type SessionEvent struct {
	Kind         SessionEventKind
	ShouldResume bool
}

// Window is a time slice of published mood states with its aggregates and
// the flattened vector used for era clustering.
type Window struct {
	T0, T1 time.Time
	States []fusion.MoodState
	// Aggregates
	MeanValence float64
	MeanArousal float64
	SourceShare map[string]float64 // dominant-source share within the window
	// Vector features for clustering
	Vector []float64
}

package affect

import (
	"sync"
	"time"
)

// AmbientAdapter holds the latest coarse acoustic class. It contributes a
// fusion bias, not a standalone affect estimate, so Update emits an ambient
// sample whose bias the fusion engine reads via the class.
type AmbientAdapter struct {
	mu     sync.Mutex
	latest AmbientClass
	has    bool
	emit   func(Sample, AmbientClass)
	now    func() time.Time
}

// NewAmbientAdapter wires the adapter to a sink, typically
// fusion.Engine.SubmitAmbient.
func NewAmbientAdapter(emit func(Sample, AmbientClass)) *AmbientAdapter {
	return &AmbientAdapter{emit: emit, now: time.Now}
}

// Update records the latest class (last-write-wins) and notifies the sink.
func (a *AmbientAdapter) Update(class AmbientClass) {
	a.mu.Lock()
	a.latest = class
	a.has = true
	emit := a.emit
	now := a.now()
	a.mu.Unlock()

	if emit != nil {
		emit(Sample{Source: SourceAmbient, Timestamp: now}, class)
	}
}

// Latest returns the most recent class and whether one was ever reported.
func (a *AmbientAdapter) Latest() (AmbientClass, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest, a.has
}

// Package fusion combines the latest classifier, facial and ambient signals
// into one published mood state. The engine is the single writer of the
// current state; any number of readers observe it without locking because
// each published value is immutable and atomically swapped.
package fusion

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/moodtape/moodpipe/affect"
)

// MoodState is the immutable published value. Each fusion step produces a
// new MoodState that supersedes the prior one; the engine retains no
// history.
type MoodState struct {
	Valence   float64
	Arousal   float64
	Source    affect.Source // dominant source, "init" before any sample
	Seq       uint64
	Timestamp time.Time
}

// SourceInit labels the neutral default state.
const SourceInit affect.Source = "init"

type slot struct {
	sample  affect.Sample
	arrival uint64 // engine-local arrival order
	has     bool
}

// Engine applies the deterministic fusion rule. Transitions are serialized
// by a mutex; Current is lock-free.
type Engine struct {
	mu sync.Mutex

	classifier slot
	face       slot
	ambient    affect.AmbientClass
	hasAmbient bool

	arrivals uint64
	fusions  uint64

	staleness time.Duration // zero disables expiry
	now       func() time.Time

	current atomic.Pointer[MoodState]

	subMu sync.Mutex
	subs  []chan MoodState

	log *logrus.Entry
}

// New creates an engine holding the neutral default until a sample arrives.
// A staleness window of zero keeps every source's last sample eligible
// indefinitely.
func New(staleness time.Duration) *Engine {
	e := &Engine{
		staleness: staleness,
		now:       time.Now,
		log:       logrus.WithField("component", "fusion"),
	}
	e.current.Store(&MoodState{Valence: 0.5, Arousal: 0.5, Source: SourceInit})
	return e
}

// Current returns the latest published state. Safe from any goroutine.
func (e *Engine) Current() MoodState {
	return *e.current.Load()
}

// Subscribe returns a channel receiving every published state the consumer
// keeps up with. A slow consumer has intermediate states replaced by newer
// ones; the surface never blocks the engine. Consumers must not assume a
// fixed publication rate.
func (e *Engine) Subscribe() <-chan MoodState {
	ch := make(chan MoodState, 1)
	e.subMu.Lock()
	e.subs = append(e.subs, ch)
	e.subMu.Unlock()
	return ch
}

// Submit records a classifier or face sample and runs one fusion step.
// Ambient samples go through SubmitAmbient instead. Samples are applied in
// arrival order per source; across sources the most recent wins.
func (e *Engine) Submit(s affect.Sample) {
	e.mu.Lock()
	e.arrivals++
	switch s.Source {
	case affect.SourceClassifier:
		e.classifier = slot{sample: s, arrival: e.arrivals, has: true}
	case affect.SourceFace:
		e.face = slot{sample: s, arrival: e.arrivals, has: true}
	default:
		e.mu.Unlock()
		e.log.WithField("source", s.Source).Warn("unexpected source on Submit")
		return
	}
	e.fuseLocked()
	e.mu.Unlock()
}

// SubmitAmbient records the latest ambient class. Ambient only modulates
// later fusions, except that the very first signal of any kind publishes a
// biased neutral state so downstream consumers see the ambience.
func (e *Engine) SubmitAmbient(_ affect.Sample, class affect.AmbientClass) {
	e.mu.Lock()
	first := !e.hasAmbient && !e.classifier.has && !e.face.has
	e.ambient = class
	e.hasAmbient = true
	if first {
		e.fuseLocked()
	}
	e.mu.Unlock()
}

// fuseLocked applies the transition rule: pick the freshest base estimate
// (ties favor the classifier as the higher-trust source), add the ambient
// bias, clamp, stamp and publish.
func (e *Engine) fuseLocked() {
	now := e.now()

	cls, face := e.classifier, e.face
	if e.staleness > 0 {
		if cls.has && now.Sub(cls.sample.Timestamp) > e.staleness {
			cls.has = false
		}
		if face.has && now.Sub(face.sample.Timestamp) > e.staleness {
			face.has = false
		}
	}

	base := affect.Sample{Valence: 0.5, Arousal: 0.5, Source: SourceInit}
	switch {
	case cls.has && face.has:
		if face.arrival > cls.arrival {
			base = face.sample
		} else {
			base = cls.sample
		}
	case cls.has:
		base = cls.sample
	case face.has:
		base = face.sample
	}

	v, a := base.Valence, base.Arousal
	if e.hasAmbient {
		bias := affect.BiasFor(e.ambient)
		v += bias.Valence
		a += bias.Arousal
	}

	e.fusions++
	next := &MoodState{
		Valence:   clamp01(v),
		Arousal:   clamp01(a),
		Source:    base.Source,
		Seq:       e.fusions,
		Timestamp: now,
	}
	e.current.Store(next)
	e.notify(*next)
}

// notify delivers the new state to every subscriber, replacing an unread
// older state instead of blocking.
func (e *Engine) notify(s MoodState) {
	e.subMu.Lock()
	for _, ch := range e.subs {
		for {
			select {
			case ch <- s:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
	e.subMu.Unlock()
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

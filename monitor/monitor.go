// Package monitor measures per-stage latency and memory growth for the
// sensing pipeline and derives the pressure signal that drives adaptive
// shedding in the buffer pool and the feature extractor.
package monitor

import (
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/moodtape/moodpipe/config"
)

// Pressure is the coarse resource-stress level. It only ever escalates in
// response to measured growth or peak usage and relaxes back to Normal when
// both clear.
type Pressure int

const (
	Normal Pressure = iota
	Elevated
	Critical
)

func (p Pressure) String() string {
	switch p {
	case Elevated:
		return "elevated"
	case Critical:
		return "critical"
	default:
		return "normal"
	}
}

// Stage names used by the pipeline when recording latency.
const (
	StageExtract   = "extract"
	StageInference = "inference"
	StageFusion    = "fusion"
	StagePool      = "pool"
)

type memSample struct {
	bytes uint64
	at    time.Time
}

// StageStats aggregates per-stage latency observations.
type StageStats struct {
	Count      uint64
	Max        time.Duration
	Violations uint64
}

// Monitor keeps a bounded circular history of memory samples and per-stage
// latency aggregates. All methods are safe for concurrent use.
type Monitor struct {
	mu sync.Mutex

	history []memSample
	next    int
	filled  bool

	growthThreshold float64 // bytes per minute
	peakCeiling     uint64  // bytes
	overWindows     int     // consecutive windows above 1.5x threshold

	budgets map[string]time.Duration
	stages  map[string]*StageStats

	backpressureEvents uint64

	pressure  Pressure
	listeners []func(Pressure)

	log *logrus.Entry
}

// New builds a Monitor from config. Budgets map stage name to its soft
// deadline; stages without a budget never count violations.
func New(cfg config.Monitor, budgets map[string]time.Duration) *Monitor {
	size := cfg.HistorySize
	if size < 2 {
		size = 2
	}
	if budgets == nil {
		budgets = map[string]time.Duration{}
	}
	return &Monitor{
		history:         make([]memSample, size),
		growthThreshold: cfg.GrowthThreshold * 1024 * 1024,
		peakCeiling:     uint64(cfg.PeakCeilingMB * 1024 * 1024),
		budgets:         budgets,
		stages:          map[string]*StageStats{},
		log:             logrus.WithField("component", "monitor"),
	}
}

// OnPressureChange registers a listener invoked (outside the monitor lock)
// whenever the pressure level changes.
func (m *Monitor) OnPressureChange(fn func(Pressure)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// RecordLatency records one duration for a stage and counts it as a budget
// violation when the stage's deadline is exceeded.
func (m *Monitor) RecordLatency(stage string, d time.Duration) {
	m.mu.Lock()
	st, ok := m.stages[stage]
	if !ok {
		st = &StageStats{}
		m.stages[stage] = st
	}
	st.Count++
	if d > st.Max {
		st.Max = d
	}
	budget, hasBudget := m.budgets[stage]
	violated := hasBudget && d > budget
	if violated {
		st.Violations++
	}
	m.mu.Unlock()

	if violated {
		m.log.WithFields(logrus.Fields{
			"stage":  stage,
			"took":   d,
			"budget": budget,
		}).Warn("latency budget exceeded")
	}
}

// RecordMemorySample appends one memory observation to the circular history
// and re-evaluates the pressure level.
func (m *Monitor) RecordMemorySample(bytes uint64, at time.Time) {
	m.mu.Lock()
	m.history[m.next] = memSample{bytes: bytes, at: at}
	m.next = (m.next + 1) % len(m.history)
	if m.next == 0 {
		m.filled = true
	}

	rate := m.growthRateLocked()
	prev := m.pressure
	m.pressure = m.evaluateLocked(rate, bytes)
	changed := m.pressure != prev
	p := m.pressure
	var listeners []func(Pressure)
	if changed {
		listeners = append(listeners, m.listeners...)
	}
	m.mu.Unlock()

	if changed {
		m.log.WithFields(logrus.Fields{
			"pressure":         p.String(),
			"growth_bytes_min": int64(rate),
		}).Info("pressure level changed")
		for _, fn := range listeners {
			fn(p)
		}
	}
}

// SampleRuntime records the Go heap in-use size as a memory sample.
func (m *Monitor) SampleRuntime() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.RecordMemorySample(ms.HeapInuse, time.Now())
}

// growthRateLocked estimates bytes/minute from the oldest and newest samples
// currently held.
func (m *Monitor) growthRateLocked() float64 {
	n := len(m.history)
	count := m.next
	if m.filled {
		count = n
	}
	if count < 2 {
		return 0
	}
	newestIdx := (m.next - 1 + n) % n
	oldestIdx := 0
	if m.filled {
		oldestIdx = m.next
	}
	oldest, newest := m.history[oldestIdx], m.history[newestIdx]
	mins := newest.at.Sub(oldest.at).Minutes()
	if mins <= 0 {
		return 0
	}
	return (float64(newest.bytes) - float64(oldest.bytes)) / mins
}

func (m *Monitor) evaluateLocked(rate float64, current uint64) Pressure {
	if m.peakCeiling > 0 && current > m.peakCeiling {
		m.overWindows = 0
		return Critical
	}
	if m.growthThreshold <= 0 {
		return Normal
	}
	switch {
	case rate > m.growthThreshold*1.5:
		m.overWindows++
		if m.overWindows >= 3 {
			return Critical
		}
		return Elevated
	case rate > m.growthThreshold:
		m.overWindows = 0
		return Elevated
	default:
		m.overWindows = 0
		return Normal
	}
}

// Pressure returns the current pressure level.
func (m *Monitor) Pressure() Pressure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pressure
}

// RecordBackpressure counts one sustained-exhaustion event reported by the
// buffer pool.
func (m *Monitor) RecordBackpressure() {
	m.mu.Lock()
	m.backpressureEvents++
	n := m.backpressureEvents
	m.mu.Unlock()
	m.log.WithField("events", n).Warn("pool backpressure")
}

// BackpressureEvents returns the lifetime backpressure event count.
func (m *Monitor) BackpressureEvents() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backpressureEvents
}

// StageSnapshot returns a copy of the aggregates for one stage.
func (m *Monitor) StageSnapshot(stage string) StageStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.stages[stage]; ok {
		return *st
	}
	return StageStats{}
}

// Cleanup resets latency maxima so steady-state aggregates stay bounded.
// Counts survive; only the rolling extremes are trimmed. Called on a fixed
// cadence regardless of pressure.
func (m *Monitor) Cleanup() {
	m.mu.Lock()
	for _, st := range m.stages {
		st.Max = 0
	}
	m.mu.Unlock()
	m.log.Debug("periodic cleanup")
}

// Run samples runtime memory on the configured interval and performs the
// periodic cleanup until the done channel closes.
func (m *Monitor) Run(done <-chan struct{}, sampleEvery, cleanupEvery time.Duration) {
	if sampleEvery <= 0 {
		sampleEvery = 5 * time.Second
	}
	if cleanupEvery <= 0 {
		cleanupEvery = time.Minute
	}
	sample := time.NewTicker(sampleEvery)
	cleanup := time.NewTicker(cleanupEvery)
	defer sample.Stop()
	defer cleanup.Stop()
	for {
		select {
		case <-done:
			return
		case <-sample.C:
			m.SampleRuntime()
		case <-cleanup.C:
			m.Cleanup()
		}
	}
}

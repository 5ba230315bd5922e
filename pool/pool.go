// Package pool owns the bounded set of reusable audio-frame buffers used by
// the capture lane. Buffers are pre-allocated once; acquisition is a
// non-blocking CAS so the capture lane drops frames instead of waiting, and
// release is idempotent so cleanup paths can always call it.
package pool

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/moodtape/moodpipe/config"
	"github.com/moodtape/moodpipe/monitor"
)

// ErrExhausted reports that no free buffer exists right now. The caller must
// drop the current frame; it must not wait.
var ErrExhausted = errors.New("pool: exhausted")

// Slot lifecycle states.
const (
	stateFree int32 = iota
	stateInUse
	stateRetired
)

// Buffer is one reusable audio frame. Samples length equals the configured
// frame size. A Buffer is owned by the pool; the extractor only holds
// use-rights between Acquire and Release and must not keep the slice after
// releasing.
type Buffer struct {
	Samples   []float32
	Seq       uint64
	CaptureAt time.Time

	slot  int
	state *int32
}

// Pool is a fixed slot table. The slot table is the only pipeline structure
// mutated from more than one lane, so every transition goes through an
// atomic compare-and-swap on the per-slot state word.
type Pool struct {
	buffers []*Buffer
	states  []int32

	ceiling        int
	floor          int
	elevatedRetain float64
	criticalRetain float64

	seq atomic.Uint64

	mu         sync.Mutex
	active     int // non-retired slot count
	softTarget int

	backpressureAfter time.Duration
	exhaustedSince    atomic.Int64 // unix nanos of first consecutive miss, 0 when clear
	reported          atomic.Bool

	mon *monitor.Monitor
	log *logrus.Entry
}

// New pre-allocates cfg.Ceiling buffers of frameSize samples each. The
// monitor may be nil in tests.
func New(cfg config.Pool, frameSize int, mon *monitor.Monitor) *Pool {
	elevated, critical := cfg.ElevatedRetainRatio, cfg.CriticalRetainRatio
	if elevated <= 0 || elevated > 1 {
		elevated = 0.8
	}
	if critical <= 0 || critical > 1 {
		critical = 0.6
	}
	p := &Pool{
		buffers:           make([]*Buffer, cfg.Ceiling),
		states:            make([]int32, cfg.Ceiling),
		ceiling:           cfg.Ceiling,
		floor:             cfg.Floor,
		elevatedRetain:    elevated,
		criticalRetain:    critical,
		active:            cfg.Ceiling,
		softTarget:        cfg.Ceiling,
		backpressureAfter: cfg.BackpressureAfter,
		mon:               mon,
		log:               logrus.WithField("component", "pool"),
	}
	for i := range p.buffers {
		p.buffers[i] = &Buffer{
			Samples: make([]float32, frameSize),
			slot:    i,
			state:   &p.states[i],
		}
	}
	return p
}

// Acquire hands out a free buffer or returns ErrExhausted immediately. The
// returned buffer carries a fresh sequence number and capture timestamp.
func (p *Pool) Acquire() (*Buffer, error) {
	for i := range p.states {
		if atomic.CompareAndSwapInt32(&p.states[i], stateFree, stateInUse) {
			p.exhaustedSince.Store(0)
			p.reported.Store(false)
			b := p.buffers[i]
			b.Seq = p.seq.Add(1)
			b.CapturedNow()
			return b, nil
		}
	}
	p.noteExhausted()
	return nil, ErrExhausted
}

// CapturedNow stamps the buffer with the current time. Split out so tests
// can overwrite the timestamp deterministically after acquisition.
func (b *Buffer) CapturedNow() { b.CaptureAt = time.Now() }

// Release returns a buffer to the pool. Releasing an already-free buffer is
// a no-op: the CAS fails and no duplicate handle can ever be issued for the
// same slot.
func (p *Pool) Release(b *Buffer) {
	if b == nil {
		return
	}
	atomic.CompareAndSwapInt32(b.state, stateInUse, stateFree)
}

// Utilization is the InUse share of the non-retired slots.
func (p *Pool) Utilization() float64 {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()
	if active == 0 {
		return 0
	}
	inUse := 0
	for i := range p.states {
		if atomic.LoadInt32(&p.states[i]) == stateInUse {
			inUse++
		}
	}
	return float64(inUse) / float64(active)
}

// Active returns the non-retired slot count.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// ApplyPressure shrinks the pool by permanently retiring free slots.
// Elevated lowers the soft target; Critical retires harder. Retirement is
// one-way within a session and never goes below the floor.
func (p *Pool) ApplyPressure(sig monitor.Pressure) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var target int
	switch sig {
	case monitor.Elevated:
		target = int(float64(p.active) * p.elevatedRetain)
	case monitor.Critical:
		target = int(float64(p.active) * p.criticalRetain)
	default:
		return
	}
	if target < p.floor {
		target = p.floor
	}
	if target >= p.active {
		return
	}
	p.softTarget = target

	retired := 0
	for i := range p.states {
		if p.active <= target {
			break
		}
		if atomic.CompareAndSwapInt32(&p.states[i], stateFree, stateRetired) {
			p.active--
			retired++
		}
	}
	if retired > 0 {
		p.log.WithFields(logrus.Fields{
			"pressure": sig.String(),
			"retired":  retired,
			"active":   p.active,
		}).Info("pool shrunk")
	}
}

// noteExhausted tracks consecutive acquisition misses and reports one
// backpressure event to the monitor once they persist past the threshold.
func (p *Pool) noteExhausted() {
	now := time.Now().UnixNano()
	since := p.exhaustedSince.Load()
	if since == 0 {
		p.exhaustedSince.CompareAndSwap(0, now)
		return
	}
	if p.backpressureAfter <= 0 || p.mon == nil {
		return
	}
	if time.Duration(now-since) >= p.backpressureAfter && p.reported.CompareAndSwap(false, true) {
		p.mon.RecordBackpressure()
	}
}

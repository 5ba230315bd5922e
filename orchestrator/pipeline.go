package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/moodtape/moodpipe/affect"
	"github.com/moodtape/moodpipe/capture"
	"github.com/moodtape/moodpipe/clients"
	cfg "github.com/moodtape/moodpipe/config"
	"github.com/moodtape/moodpipe/extractor"
	"github.com/moodtape/moodpipe/fusion"
	"github.com/moodtape/moodpipe/monitor"
	"github.com/moodtape/moodpipe/pool"
)

// Pipeline wires the three lanes together: capture/extraction acquires
// buffers and derives feature vectors, the inference lane classifies at most
// one vector at a time, and the fusion engine publishes mood states. The
// performance monitor observes every stage without sitting on the hot path.
type Pipeline struct {
	cfg *cfg.Root
	log *logrus.Entry

	pool   *pool.Pool
	ext    *extractor.Extractor
	cls    clients.Classifier
	engine *fusion.Engine
	mon    *monitor.Monitor

	Face       *affect.FaceAdapter
	Ambient    *affect.AmbientAdapter
	ambientCls *affect.AmbientClassifier

	// bounded handoff between the capture and inference lanes: at most one
	// vector waits; a second arrival replaces nothing and is dropped
	handoff chan extractor.FeatureVector

	paused      atomic.Bool
	inferCancel atomic.Pointer[context.CancelFunc]

	droppedExhausted atomic.Uint64
	droppedHandoff   atomic.Uint64

	histMu  sync.Mutex
	history []fusion.MoodState

	wg sync.WaitGroup
}

// NewPipeline constructs every stage from config. Components are explicitly
// owned by the pipeline and passed where needed; there are no package-level
// singletons.
func NewPipeline(c *cfg.Root) (*Pipeline, error) {
	mon := monitor.New(c.Monitor, map[string]time.Duration{
		monitor.StageExtract:   c.Extractor.LatencyBudget,
		monitor.StagePool:      c.Extractor.HandlingBudget,
		monitor.StageInference: c.Inference.Budget,
	})

	p := &Pipeline{
		cfg:     c,
		log:     logrus.WithField("component", "pipeline"),
		pool:    pool.New(c.Pool, c.Audio.FrameSize, mon),
		ext:     extractor.New(c.Extractor, c.Audio, mon),
		engine:  fusion.New(c.Fusion.StalenessWindow),
		mon:     mon,
		handoff: make(chan extractor.FeatureVector, 1),
	}

	if url := c.Services.Classifier.URL; url != "" {
		p.cls = clients.NewRemoteClassifier(url, c.Inference.Budget)
	} else {
		p.cls = clients.NewLocalModel()
	}

	p.Face = affect.NewFaceAdapter(p.engine.Submit)
	p.Ambient = affect.NewAmbientAdapter(p.engine.SubmitAmbient)
	ac, err := affect.NewAmbientClassifier(c.Audio.SampleRate, p.Ambient)
	if err != nil {
		// ambient sensing is optional; fusion degrades gracefully without it
		p.log.WithError(err).Warn("ambient classifier disabled")
	} else {
		p.ambientCls = ac
	}

	mon.OnPressureChange(p.pool.ApplyPressure)
	mon.OnPressureChange(p.ext.ApplyPressure)

	return p, nil
}

// Engine exposes the fusion engine for subscription surfaces.
func (p *Pipeline) Engine() *fusion.Engine { return p.engine }

// Monitor exposes the performance monitor.
func (p *Pipeline) Monitor() *monitor.Monitor { return p.mon }

// Run drives the pipeline until ctx is cancelled, then persists the session
// summary. The source is started and stopped by the pipeline.
func (p *Pipeline) Run(ctx context.Context, source capture.Source) error {
	if err := source.Start(ctx); err != nil {
		return err
	}
	defer source.Stop()

	done := ctx.Done()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.mon.Run(done, p.cfg.Monitor.SampleInterval, p.cfg.Monitor.CleanupInterval)
	}()

	p.wg.Add(1)
	go p.inferenceLane(ctx)

	p.wg.Add(1)
	go p.collectStates(ctx)

	p.captureLane(ctx, source)

	close(p.handoff)
	p.wg.Wait()

	return p.persistSession()
}

// captureLane acquires a buffer per frame, extracts features and hands the
// vector to the inference lane. Backpressure is handled by dropping frames,
// never by queuing unbounded work.
func (p *Pipeline) captureLane(ctx context.Context, source capture.Source) {
	frameSize := p.cfg.Audio.FrameSize
	ambientEvery := 4 // classify ambience on a slower cadence than extraction
	frameNo := 0

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source.Frames():
			if !ok {
				return
			}
			if p.paused.Load() {
				continue // interruption active: drop without acquiring
			}
			if len(frame.Samples) != frameSize {
				p.log.WithField("len", len(frame.Samples)).Debug("dropping malformed frame")
				continue
			}

			frameNo++
			if p.ambientCls != nil && frameNo%ambientEvery == 0 {
				p.ambientCls.Process(frame.Samples)
			}

			acquireStart := time.Now()
			buf, err := p.pool.Acquire()
			p.mon.RecordLatency(monitor.StagePool, time.Since(acquireStart))
			if err != nil {
				p.droppedExhausted.Add(1)
				continue
			}
			copy(buf.Samples, frame.Samples)
			buf.CaptureAt = frame.At

			fv, err := p.ext.Extract(buf, p.pool)
			if err != nil {
				if !errors.Is(err, extractor.ErrSkippedFrame) {
					p.log.WithError(err).Warn("extract failed")
				}
				continue
			}

			select {
			case p.handoff <- fv:
			default:
				p.droppedHandoff.Add(1)
			}
		}
	}
}

// inferenceLane runs at most one classification at a time. An interruption
// abandons the in-flight call via its context.
func (p *Pipeline) inferenceLane(ctx context.Context) {
	defer p.wg.Done()
	for fv := range p.handoff {
		inferCtx, cancel := context.WithCancel(ctx)
		p.inferCancel.Store(&cancel)

		started := time.Now()
		sample, err := p.cls.Infer(inferCtx, fv)
		p.mon.RecordLatency(monitor.StageInference, time.Since(started))

		cancel()
		p.inferCancel.Store(nil)

		if err != nil {
			if errors.Is(err, clients.ErrInferenceUnavailable) {
				p.log.WithError(err).Debug("inference unavailable")
				continue
			}
			p.log.WithError(err).Warn("inference failed")
			continue
		}
		fuseStart := time.Now()
		p.engine.Submit(sample)
		p.mon.RecordLatency(monitor.StageFusion, time.Since(fuseStart))
	}
}

// collectStates buffers published mood states for the session summary. The
// engine itself retains no history.
func (p *Pipeline) collectStates(ctx context.Context) {
	defer p.wg.Done()
	sub := p.engine.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-sub:
			p.histMu.Lock()
			p.history = append(p.history, st)
			p.histMu.Unlock()
		}
	}
}

// HandleSessionEvent reacts to the external session coordinator. An
// interruption pauses buffer acquisition and abandons any in-flight
// inference; resuming restarts capture from a clean buffer state.
func (p *Pipeline) HandleSessionEvent(ev SessionEvent) {
	log := p.log.WithField("event", ev.Kind.String())
	switch ev.Kind {
	case RouteChanged:
		log.Info("audio route changed")
	case InterruptionBegan:
		p.paused.Store(true)
		if cancel := p.inferCancel.Load(); cancel != nil {
			(*cancel)()
		}
		log.Info("capture paused")
	case InterruptionEnded:
		if ev.ShouldResume {
			p.paused.Store(false)
			log.Info("capture resumed")
		} else {
			log.Info("interruption ended without resume")
		}
	case ConfigurationChanged:
		log.Info("session configuration changed")
	}
}

// Stats returns drop counters for observability surfaces.
func (p *Pipeline) Stats() (exhausted, handoffDropped uint64) {
	return p.droppedExhausted.Load(), p.droppedHandoff.Load()
}

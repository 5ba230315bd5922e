package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

// PortAudio captures mono frames from the default input device.
type PortAudio struct {
	mu         sync.Mutex
	stream     *portaudio.Stream
	sampleRate int
	frameSize  int
	out        chan Frame
	running    bool
	log        *logrus.Entry
}

// NewPortAudio prepares a microphone source; the device is opened on Start.
func NewPortAudio(sampleRate, frameSize int) *PortAudio {
	return &PortAudio{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		out:        make(chan Frame, 4),
		log:        logrus.WithField("component", "capture"),
	}
}

// Start initializes PortAudio and begins streaming. The stream callback
// copies samples out of the driver buffer; frames are dropped, never queued
// unboundedly, when the consumer lags.
func (p *PortAudio) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("capture: portaudio init: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(p.sampleRate), p.frameSize,
		func(in []float32) {
			samples := make([]float32, len(in))
			copy(samples, in)
			offer(p.out, Frame{Samples: samples, At: time.Now()})
		})
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("capture: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("capture: start stream: %w", err)
	}

	p.stream = stream
	p.running = true
	p.log.WithFields(logrus.Fields{
		"sample_rate": p.sampleRate,
		"frame_size":  p.frameSize,
	}).Info("microphone capture started")

	go func() {
		<-ctx.Done()
		_ = p.Stop()
	}()
	return nil
}

func (p *PortAudio) Frames() <-chan Frame { return p.out }

// Stop ends the stream and releases the device. Idempotent.
func (p *PortAudio) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}
	p.running = false
	if err := p.stream.Stop(); err != nil {
		return fmt.Errorf("capture: stop stream: %w", err)
	}
	if err := p.stream.Close(); err != nil {
		return fmt.Errorf("capture: close stream: %w", err)
	}
	return portaudio.Terminate()
}

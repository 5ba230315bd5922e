// Package capture provides audio frame sources for the pipeline: a live
// PortAudio microphone source and a synthetic generator for simulation and
// tests. Sources never block the pipeline; when the consumer falls behind
// the oldest pending frame is dropped.
package capture

import (
	"context"
	"time"
)

// Frame is one chunk of mono samples with its capture time. The samples
// slice is owned by the receiver once delivered.
type Frame struct {
	Samples []float32
	At      time.Time
}

// Source produces frames on its own cadence until stopped.
type Source interface {
	Start(ctx context.Context) error
	Frames() <-chan Frame
	Stop() error
}

// offer delivers f to ch without blocking, evicting the oldest pending
// frame if needed.
func offer(ch chan Frame, f Frame) {
	for {
		select {
		case ch <- f:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// ABOUTME: Device-free output that discards audio at the real-time rate
// ABOUTME: Used for headless hosts and tests; tracks written frames and peak level
package output

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/locusq/locusq-go/pkg/audio"
)

// Null discards samples but sleeps so each Write takes as long as the
// audio it carries would take to play.
type Null struct {
	sampleRate int
	channels   int
	next       time.Time

	// Paced disables sleeping when false.
	Paced bool

	now   func() time.Time
	sleep func(time.Duration)

	frames atomic.Uint64
	peak   atomic.Uint32
}

// NewNull returns a paced null sink.
func NewNull() *Null {
	return &Null{Paced: true, now: time.Now, sleep: time.Sleep}
}

// Open records the stream format.
func (n *Null) Open(sampleRate, channels int) error {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid format %dHz %dch", sampleRate, channels)
	}
	n.sampleRate = sampleRate
	n.channels = channels
	n.next = time.Time{}
	return nil
}

// Write consumes one interleaved block.
func (n *Null) Write(samples []float32) error {
	if n.channels == 0 {
		return fmt.Errorf("output not initialized")
	}
	frames := len(samples) / n.channels
	n.frames.Add(uint64(frames))
	n.peak.Store(uint32(1000 * audio.Peak(samples)))

	if !n.Paced {
		return nil
	}
	now := n.now()
	if n.next.IsZero() || n.next.Before(now.Add(-time.Second)) {
		n.next = now
	}
	n.next = n.next.Add(time.Duration(frames) * time.Second / time.Duration(n.sampleRate))
	if d := n.next.Sub(now); d > 0 {
		n.sleep(d)
	}
	return nil
}

// Close is a no-op.
func (n *Null) Close() error { return nil }

// Frames returns the number of frames written since creation.
func (n *Null) Frames() uint64 { return n.frames.Load() }

// Peak returns the absolute peak of the last block.
func (n *Null) Peak() float32 { return float32(n.peak.Load()) / 1000 }

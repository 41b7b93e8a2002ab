// ABOUTME: Decodes an emitter source ahead of the audio thread
// ABOUTME: A goroutine tops up the SPSC ring; the audio thread drains planar blocks
package source

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// PrefetchBlocks is how many blocks of audio the ring holds.
const PrefetchBlocks = 8

// Prefetcher keeps a ring of decoded audio ahead of the consumer. Fill and
// Run belong to the producer goroutine; ReadBlock belongs to the audio
// thread and never allocates or blocks.
type Prefetcher struct {
	src       Source
	ring      *Ring
	channels  int
	maxFrames int
	chunk     []float32
	scratch   []float32
	underruns atomic.Uint64
	delivered atomic.Uint64
}

// NewPrefetcher sizes the ring for blockFrames-frame reads.
func NewPrefetcher(src Source, blockFrames int) *Prefetcher {
	ch := max(1, src.Channels())
	return &Prefetcher{
		src:       src,
		ring:      NewRing(PrefetchBlocks * blockFrames * ch),
		channels:  ch,
		maxFrames: blockFrames,
		chunk:     make([]float32, blockFrames*ch),
		scratch:   make([]float32, blockFrames*ch),
	}
}

// Source returns the wrapped source.
func (p *Prefetcher) Source() Source { return p.src }

// Channels returns the interleaved channel count of the source.
func (p *Prefetcher) Channels() int { return p.channels }

// Buffered returns the frames ready for the consumer.
func (p *Prefetcher) Buffered() int { return p.ring.Len() / p.channels }

// Underruns counts blocks the consumer had to pad with silence.
func (p *Prefetcher) Underruns() uint64 { return p.underruns.Load() }

// Delivered counts frames handed to the consumer.
func (p *Prefetcher) Delivered() uint64 { return p.delivered.Load() }

// Fill decodes whole chunks until the ring cannot take another and
// returns the samples added.
func (p *Prefetcher) Fill() (int, error) {
	added := 0
	for p.ring.Free() >= len(p.chunk) {
		n, err := p.src.Read(p.chunk)
		n -= n % p.channels
		added += p.ring.Write(p.chunk[:n])
		if err != nil {
			return added, fmt.Errorf("read %s: %w", p.src.Name(), err)
		}
		if n == 0 {
			break
		}
	}
	return added, nil
}

// Run tops up the ring every interval until ctx is done. A source error
// stops the prefetch; the consumer then hears silence.
func (p *Prefetcher) Run(ctx context.Context, interval time.Duration) error {
	if _, err := p.Fill(); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.Fill(); err != nil {
				logrus.WithFields(logrus.Fields{
					"source": p.src.Name(),
					"error":  err,
				}).Warn("emitter source stopped")
				return err
			}
		}
	}
}

// ReadBlock deinterleaves up to n frames into dst, one slice per source
// channel, and pads the rest of the block with silence. It returns the
// frames that carried audio.
func (p *Prefetcher) ReadBlock(dst [][]float32, n int) int {
	n = min(n, p.maxFrames)
	got := p.ring.Read(p.scratch[:n*p.channels]) / p.channels
	for ch := range dst {
		out := dst[ch][:n]
		if ch >= p.channels {
			clear(out)
			continue
		}
		for i := 0; i < got; i++ {
			out[i] = p.scratch[i*p.channels+ch]
		}
		clear(out[got:])
	}
	if got < n {
		p.underruns.Add(1)
	}
	p.delivered.Add(uint64(got))
	return got
}

// ABOUTME: Tests for the prefetching emitter reader
// ABOUTME: Planar delivery, underrun padding and the background fill loop
package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rampSource struct {
	channels int
	next     float32
}

func (r *rampSource) Read(dst []float32) (int, error) {
	for i := 0; i+r.channels <= len(dst); i += r.channels {
		for ch := 0; ch < r.channels; ch++ {
			dst[i+ch] = r.next + float32(ch)*1000
		}
		r.next++
	}
	return len(dst) - len(dst)%r.channels, nil
}

func (r *rampSource) SampleRate() int { return 48000 }
func (r *rampSource) Channels() int   { return r.channels }
func (r *rampSource) Name() string    { return "ramp" }
func (r *rampSource) Close() error    { return nil }

func planar(channels, frames int) [][]float32 {
	out := make([][]float32, channels)
	for i := range out {
		out[i] = make([]float32, frames)
	}
	return out
}

func TestPrefetcherDeinterleaves(t *testing.T) {
	p := NewPrefetcher(&rampSource{channels: 2}, 4)
	added, err := p.Fill()
	require.NoError(t, err)
	assert.Equal(t, PrefetchBlocks*4*2, added)
	assert.Equal(t, PrefetchBlocks*4, p.Buffered())

	dst := planar(3, 4)
	got := p.ReadBlock(dst, 4)
	require.Equal(t, 4, got)
	assert.Equal(t, []float32{0, 1, 2, 3}, dst[0])
	assert.Equal(t, []float32{1000, 1001, 1002, 1003}, dst[1])
	assert.Equal(t, []float32{0, 0, 0, 0}, dst[2])
	assert.Zero(t, p.Underruns())
	assert.Equal(t, uint64(4), p.Delivered())
}

func TestPrefetcherPadsUnderrun(t *testing.T) {
	p := NewPrefetcher(&rampSource{channels: 1}, 4)
	dst := planar(1, 4)
	dst[0][0] = 7

	assert.Equal(t, 0, p.ReadBlock(dst, 4))
	assert.Equal(t, []float32{0, 0, 0, 0}, dst[0])
	assert.Equal(t, uint64(1), p.Underruns())
}

func TestPrefetcherReadIsClampedToBlock(t *testing.T) {
	p := NewPrefetcher(&rampSource{channels: 1}, 4)
	_, err := p.Fill()
	require.NoError(t, err)
	dst := planar(1, 16)
	assert.Equal(t, 4, p.ReadBlock(dst, 16))
}

func TestPrefetcherRunRefills(t *testing.T) {
	p := NewPrefetcher(&rampSource{channels: 1}, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, time.Millisecond) }()

	dst := planar(1, 8)
	want := float32(0)
	for range 3 * PrefetchBlocks {
		require.Eventually(t, func() bool { return p.Buffered() >= 8 }, time.Second, time.Millisecond)
		require.Equal(t, 8, p.ReadBlock(dst, 8))
		for _, s := range dst[0] {
			require.Equal(t, want, s)
			want++
		}
	}

	cancel()
	require.NoError(t, <-done)
}

func TestPrefetcherRunStopsOnSourceError(t *testing.T) {
	src := &failingSource{Tone: *NewTone(440, 48000), left: 10}
	p := NewPrefetcher(src, 8)
	err := p.Run(context.Background(), time.Millisecond)
	require.ErrorIs(t, err, errDeviceGone)
	assert.Equal(t, 10, p.Buffered())
}

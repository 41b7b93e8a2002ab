// ABOUTME: Sample rate conversion wrapper for emitter sources
// ABOUTME: Pulls fixed input chunks and serves resampled frames on demand
package source

import (
	"github.com/locusq/locusq-go/pkg/audio/resample"
)

const resampleChunkFrames = 1024

// Resampled converts a source to a fixed output rate.
type Resampled struct {
	src    Source
	rs     *resample.Resampler
	rate   int
	in     []float32
	out    []float32
	outOff int
	outLen int
	err    error
}

// NewResampled wraps src so it reads at rate.
func NewResampled(src Source, rate int) *Resampled {
	ch := src.Channels()
	rs := resample.New(src.SampleRate(), rate, ch)
	in := make([]float32, resampleChunkFrames*ch)
	return &Resampled{
		src:  src,
		rs:   rs,
		rate: rate,
		in:   in,
		// The carried frame can add one output frame per chunk.
		out: make([]float32, rs.OutputSamplesNeeded(len(in))+2*ch),
	}
}

func (r *Resampled) Read(dst []float32) (int, error) {
	ch := r.src.Channels()
	written := 0
	for written < len(dst) {
		if r.outOff < r.outLen {
			c := copy(dst[written:], r.out[r.outOff:r.outLen])
			r.outOff += c
			written += c
			continue
		}
		if r.err != nil {
			err := r.err
			r.err = nil
			return written, err
		}
		n, err := r.src.Read(r.in)
		n -= n % ch
		r.outLen = r.rs.Resample(r.in[:n], r.out)
		r.outOff = 0
		// Frames decoded before an error are served first.
		r.err = err
		if n == 0 && err == nil {
			return written, nil
		}
	}
	return written, nil
}

func (r *Resampled) SampleRate() int { return r.rate }
func (r *Resampled) Channels() int   { return r.src.Channels() }
func (r *Resampled) Name() string    { return r.src.Name() }
func (r *Resampled) Close() error    { return r.src.Close() }

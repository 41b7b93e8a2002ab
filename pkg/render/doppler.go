// ABOUTME: Variable-delay Doppler shift for one emitter
// ABOUTME: Radial velocity drives the read delay within a bounded pitch ratio
package render

import (
	"math"

	"github.com/locusq/locusq-go/pkg/audio"
	"github.com/locusq/locusq-go/pkg/spatial"
)

const (
	speedOfSound     = 343.0
	dopplerBaseDelay = 96.0
	dopplerMinDelay  = 8.0
	dopplerMinLine   = 4096
)

// Doppler shifts pitch by moving a read head through a delay line.
type Doppler struct {
	line  []float32
	write int
	delay float64
}

// Prepare sizes the delay line for blocks up to maxBlock frames.
func (d *Doppler) Prepare(maxBlock int) {
	size := max(dopplerMinLine, maxBlock*8)
	if len(d.line) != size {
		d.line = make([]float32, size)
	}
	d.Reset()
}

// Reset clears the line and recentres the read head.
func (d *Doppler) Reset() {
	clear(d.line)
	d.write = 0
	d.delay = dopplerBaseDelay
}

// Ratio returns the playback-rate ratio for an emitter at relative
// position pos moving with velocity vel. Positive radial velocity is
// motion away from the listener and lowers pitch.
func Ratio(pos, vel spatial.Vec3, scale float64) float64 {
	dist := pos.Length()
	if dist < 1e-4 {
		return 1
	}
	radial := vel.Dot(pos) / dist
	denom := speedOfSound + radial*scale
	if denom <= 1e-6 {
		// Closing at or beyond the speed of sound.
		return 2
	}
	return spatial.Clamp(speedOfSound/denom, 0.5, 2)
}

// Process shifts buf in place. A scale of zero bypasses the stage.
func (d *Doppler) Process(buf []float32, pos, vel spatial.Vec3, scale float64) {
	scale = spatial.Clamp(scale, 0, 5)
	if scale <= 0 || len(d.line) == 0 {
		return
	}
	ratio := Ratio(pos, vel, scale)
	if math.IsNaN(ratio) {
		return
	}
	size := len(d.line)
	for i, x := range buf {
		d.line[d.write] = x
		d.delay = spatial.Clamp(d.delay+(1-ratio), dopplerMinDelay, float64(size-2))

		rp := float64(d.write) - d.delay
		for rp < 0 {
			rp += float64(size)
		}
		i0 := int(rp) % size
		i1 := (i0 + 1) % size
		frac := float32(rp - math.Floor(rp))
		s0, s1 := d.line[i0], d.line[i1]
		buf[i] = s0 + (s1-s0)*frac

		d.write = (d.write + 1) % size
		if !audio.IsFinite(buf[i]) {
			// A non-finite sample would stay in the line for a full lap.
			d.Reset()
			buf[i] = 0
		}
	}
}

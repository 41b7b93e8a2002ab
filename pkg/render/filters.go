// ABOUTME: Mono per-emitter filters ahead of panning
// ABOUTME: Distance-driven air absorption and aim-dependent directivity shelf
package render

import (
	"math"

	"github.com/locusq/locusq-go/pkg/audio"
	"github.com/locusq/locusq-go/pkg/spatial"
)

const (
	airMaxCutoff  = 20000.0
	airMinCutoff  = 200.0
	airAbsorption = 0.3

	// Shelf corner for the directivity filter. Energy above it follows the
	// cardioid; energy below passes.
	directivityShelfHz = 2500.0
)

// AirAbsorption is a one-pole low-pass whose cutoff falls with distance.
type AirAbsorption struct {
	sampleRate float64
	coef       float32
	z1         float32
}

// Prepare sets the sample rate and clears state.
func (a *AirAbsorption) Prepare(sampleRate float64) {
	a.sampleRate = sampleRate
	a.coef = 0
	a.z1 = 0
}

// Reset clears the filter state.
func (a *AirAbsorption) Reset() { a.z1 = 0 }

// Cutoff returns the low-pass corner for distance d.
func Cutoff(d float64) float64 {
	c := airMaxCutoff / (1 + d*airAbsorption)
	return spatial.Clamp(c, airMinCutoff, airMaxCutoff)
}

// SetDistance recomputes the coefficient for distance d.
func (a *AirAbsorption) SetDistance(d float64) {
	if a.sampleRate <= 0 {
		return
	}
	w := 2 * math.Pi * Cutoff(d) / a.sampleRate
	a.coef = float32(math.Exp(-w))
}

// Process filters buf in place.
func (a *AirAbsorption) Process(buf []float32) {
	a0 := 1 - a.coef
	for i, x := range buf {
		a.z1 = a0*x + a.coef*a.z1
		buf[i] = a.z1
	}
	if !audio.IsFinite(a.z1) {
		a.z1 = 0
	}
}

// Cardioid returns the first-order pattern 0.5(1+cos) for an emitter
// aimed along aim, seen from direction toListener. A zero aim is omni.
func Cardioid(aim, toListener spatial.Vec3) float64 {
	a := aim.Normalized(spatial.Vec3{})
	l := toListener.Normalized(spatial.Vec3{})
	if a == (spatial.Vec3{}) || l == (spatial.Vec3{}) {
		return 1
	}
	c := spatial.Clamp(a.Dot(l), -1, 1)
	return spatial.Clamp(0.5*(1+c), 0, 1)
}

// DirectivityShelf splits the signal at a fixed corner and scales the upper
// band by the directivity pattern, so an emitter facing away from the
// listener sounds duller rather than simply quieter.
type DirectivityShelf struct {
	alpha float32
	low   float32
}

// Prepare computes the split coefficient for sampleRate.
func (d *DirectivityShelf) Prepare(sampleRate float64) {
	d.alpha = float32(1 - math.Exp(-2*math.Pi*directivityShelfHz/math.Max(1, sampleRate)))
	d.low = 0
}

// Reset clears the filter state.
func (d *DirectivityShelf) Reset() { d.low = 0 }

// HighGain is the upper-band gain for a directivity amount in [0,1] and
// a cardioid response.
func HighGain(directivity, cardioid float64) float64 {
	dir := spatial.Clamp(directivity, 0, 1)
	return (1 - dir) + dir*cardioid
}

// Process applies the shelf with upper-band gain hg.
func (d *DirectivityShelf) Process(buf []float32, hg float64) {
	if hg >= 1 {
		// Keep the low band tracking so a later change does not click.
		for _, x := range buf {
			d.low += d.alpha * (x - d.low)
		}
	} else {
		g := float32(hg)
		for i, x := range buf {
			d.low += d.alpha * (x - d.low)
			buf[i] = d.low + (x-d.low)*g
		}
	}
	if !audio.IsFinite(d.low) {
		d.low = 0
	}
}

// Spread blends focused panning gains toward the equal-power diffuse
// distribution. spread is clamped to [0,1].
func Spread(g spatial.Gains, spread float64) spatial.Gains {
	s := spatial.Clamp(spread, 0, 1)
	if s <= 0 {
		return g
	}
	const diffuse = 0.5
	for i := range g {
		g[i] = g[i]*(1-s) + diffuse*s
	}
	return g
}

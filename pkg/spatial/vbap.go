// ABOUTME: Vector-base amplitude panning onto the internal quad speaker bed
// ABOUTME: Pair-wise inverse matrices, enclosing-pair search and elevation blend
package spatial

import "math"

// Internal bed speaker indices. The bed runs clockwise from front-left.
const (
	SpeakerFL = iota
	SpeakerFR
	SpeakerRR
	SpeakerRL
	NumSpeakers
)

// SpeakerAngles are the canonical bed azimuths in degrees.
var SpeakerAngles = [NumSpeakers]float64{-45, 45, 135, -135}

// SpeakerPositions are the canonical bed positions used for directivity.
var SpeakerPositions = [NumSpeakers]Vec3{
	{-2.5, 1.2, 2},
	{2.5, 1.2, 2},
	{2.5, 1.2, -2},
	{-2.5, 1.2, -2},
}

// Gains holds one amplitude per bed speaker.
type Gains [NumSpeakers]float64

// Panner computes 2D VBAP gains for a ring of four speakers.
type Panner struct {
	angles [NumSpeakers]float64
	inv    [NumSpeakers][4]float64
}

// NewPanner returns a panner over the canonical bed.
func NewPanner() *Panner {
	p := &Panner{}
	p.SetAngles(SpeakerAngles)
	return p
}

// SetAngles recomputes the pair inverses for a new speaker ring.
func (p *Panner) SetAngles(angles [NumSpeakers]float64) {
	p.angles = angles
	var xs, ys [NumSpeakers]float64
	for i, a := range angles {
		rad := a * math.Pi / 180
		xs[i] = math.Sin(rad)
		ys[i] = math.Cos(rad)
	}
	for i := 0; i < NumSpeakers; i++ {
		j := (i + 1) % NumSpeakers
		a, b := xs[i], ys[i]
		c, d := xs[j], ys[j]
		det := a*d - b*c
		if math.Abs(det) < 1e-8 {
			p.inv[i] = [4]float64{1, 0, 0, 1}
			continue
		}
		inv := 1 / det
		p.inv[i] = [4]float64{d * inv, -b * inv, -c * inv, a * inv}
	}
}

// Gains returns power-normalized gains for a source at azimuthDeg.
func (p *Panner) Gains(azimuthDeg float64) Gains {
	var g Gains
	az := NormalizeDegrees(azimuthDeg)
	pair := p.enclosingPair(az)
	a, b := pair, (pair+1)%NumSpeakers

	rad := az * math.Pi / 180
	sx, sy := math.Sin(rad), math.Cos(rad)
	m := p.inv[pair]
	ga := math.Max(0, m[0]*sx+m[1]*sy)
	gb := math.Max(0, m[2]*sx+m[3]*sy)
	if n := math.Hypot(ga, gb); n > 1e-6 {
		ga /= n
		gb /= n
	}
	g[a] = ga
	g[b] = gb
	return g
}

// GainsWithElevation blends the horizontal gains toward an equal-power
// spread as the source rises out of the speaker plane.
func (p *Panner) GainsWithElevation(azimuthDeg, elevationDeg float64) Gains {
	g := p.Gains(azimuthDeg)
	h := math.Cos(elevationDeg * math.Pi / 180)
	for i := range g {
		g[i] = g[i]*h + 0.5*(1-h)
	}
	return g
}

func (p *Panner) enclosingPair(az float64) int {
	for i := 0; i < NumSpeakers; i++ {
		j := (i + 1) % NumSpeakers
		if angleBetween(az, p.angles[i], p.angles[j]) {
			return i
		}
	}
	closest, best := 0, 360.0
	for i, a := range p.angles {
		if d := math.Abs(NormalizeDegrees(az - a)); d < best {
			best = d
			closest = i
		}
	}
	return closest
}

func angleBetween(angle, from, to float64) bool {
	span := NormalizeDegrees(to - from)
	off := NormalizeDegrees(angle - from)
	if span > 0 {
		return off >= 0 && off <= span
	}
	return off <= 0 && off >= span
}

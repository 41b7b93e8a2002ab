// ABOUTME: Listener orientation between pose snapshots
// ABOUTME: Shortest-arc slerp, bounded angular-velocity prediction and sensor-switch crossfade
package headtracking

import (
	"math"

	"github.com/locusq/locusq-go/pkg/spatial"
)

// Interpolator timing.
const (
	CrossfadeMs       = 50.0
	MaxPredictionMs   = 50.0
	maxPredictedAngle = math.Pi / 4
	// Prediction only starts once the query is clearly past the newest
	// sample.
	predictionLeadMs = 1.0
)

// Interpolator turns a stream of snapshots into an orientation for any
// query time. It belongs to one audio thread; none of its methods
// allocate.
type Interpolator struct {
	prev, curr Snapshot
	count      int
	location   uint8

	blendOut   spatial.Quat
	blendStart float64
	blending   bool
}

// Reset forgets every snapshot.
func (p *Interpolator) Reset() { *p = Interpolator{} }

// Ready reports whether a snapshot has been ingested.
func (p *Interpolator) Ready() bool { return p.count > 0 }

// Latest is the newest ingested snapshot.
func (p *Interpolator) Latest() Snapshot { return p.curr }

// Ingest records s. A snapshot whose sequence number matches the newest
// one is ignored. A change of sensor location starts a crossfade, anchored
// at nowMs, from the orientation in effect at nowMs.
func (p *Interpolator) Ingest(s Snapshot, nowMs float64) {
	if p.count > 0 && s.Seq == p.curr.Seq {
		return
	}
	loc := s.SensorLocation()
	if p.count == 0 {
		p.prev, p.curr = s, s
		p.count = 1
		p.location = loc
		return
	}
	if loc != p.location {
		p.blendOut = p.orientation(nowMs)
		p.blendStart = nowMs
		p.blending = true
	}
	p.prev, p.curr = p.curr, s
	p.count = 2
	p.location = loc
}

// At returns the orientation at nowMs. Before the first snapshot it is
// the identity.
func (p *Interpolator) At(nowMs float64) spatial.Quat {
	q := p.orientation(nowMs)
	if p.blending && nowMs-p.blendStart >= CrossfadeMs {
		p.blending = false
	}
	return q
}

// orientation evaluates the pose at nowMs without changing any state.
func (p *Interpolator) orientation(nowMs float64) spatial.Quat {
	if p.count == 0 {
		return spatial.Identity
	}

	prevTs, currTs := float64(p.prev.TimestampMs), float64(p.curr.TimestampMs)
	q := p.curr.Orientation
	if currTs > prevTs {
		t := (nowMs - prevTs) / (currTs - prevTs)
		q = spatial.Slerp(p.prev.Orientation, p.curr.Orientation, t)
	}

	if p.curr.HasRotationRate() && nowMs > currTs+predictionLeadMs {
		omega := p.curr.AngularVelocity
		horizon := math.Min(MaxPredictionMs/1000, maxPredictedAngle/math.Max(omega.Length(), 1e-6))
		ahead := math.Min((nowMs-currTs)/1000, horizon)
		q = spatial.Extrapolate(q, omega, ahead)
	}

	if p.blending {
		alpha := (nowMs - p.blendStart) / CrossfadeMs
		if alpha < 1 {
			q = spatial.Slerp(p.blendOut, q, alpha)
		}
	}
	return q
}

// Crossfading reports whether a sensor-switch blend was in progress at
// the last query.
func (p *Interpolator) Crossfading() bool { return p.blending }

// AgeMs is how old the newest snapshot is at nowMs.
func (p *Interpolator) AgeMs(nowMs float64) float64 {
	if p.count == 0 {
		return math.Inf(1)
	}
	return math.Max(0, nowMs-float64(p.curr.TimestampMs))
}

// Stale reports whether the newest snapshot is older than StaleAfterMs.
func (p *Interpolator) Stale(nowMs float64) bool { return p.AgeMs(nowMs) > StaleAfterMs }

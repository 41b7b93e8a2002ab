// ABOUTME: Listener head-pose rotation of the internal speaker bed
// ABOUTME: Builds a 4x4 speaker mix from the listener basis
package render

import (
	"math"

	"github.com/locusq/locusq-go/pkg/spatial"
	"gonum.org/v1/gonum/floats"
)

// HeadPose is the listener orientation handed to the renderer for a block.
// A stale pose still carries the last held orientation and is applied;
// Stale only reaches diagnostics.
type HeadPose struct {
	Orientation spatial.Quat
	Valid       bool
	Stale       bool
	Tracking    TrackingStatus
}

// TrackingStatus describes the pose transport behind a HeadPose.
type TrackingStatus struct {
	Enabled        bool
	Source         string
	Seq            uint32
	TimestampMs    uint64
	AgeMs          float64
	InvalidPackets uint32
	Consumers      int
}

// World directions of the bed speakers and their listener-frame XZ
// directions (X right, Z behind).
var (
	worldSpeakerDirs = [spatial.NumSpeakers]spatial.Vec3{
		{X: -0.70710678, Z: 0.70710678},
		{X: 0.70710678, Z: 0.70710678},
		{X: 0.70710678, Z: -0.70710678},
		{X: -0.70710678, Z: -0.70710678},
	}
	listenerSpeakerDirsXZ = [spatial.NumSpeakers][2]float64{
		{-0.70710678, -0.70710678},
		{0.70710678, -0.70710678},
		{0.70710678, 0.70710678},
		{-0.70710678, 0.70710678},
	}
)

// SpeakerMix maps source speakers onto target speakers: mix[target][source].
type SpeakerMix [spatial.NumSpeakers][spatial.NumSpeakers]float32

// IdentityMix leaves the bed untouched.
func IdentityMix() SpeakerMix {
	var m SpeakerMix
	for i := range m {
		m[i][i] = 1
	}
	return m
}

// MixFor re-projects each world speaker into the listener frame given by
// q and spreads it over the two nearest bed speakers. Each source column
// sums to one.
func MixFor(q spatial.Quat) SpeakerMix {
	b := spatial.BasisOf(q)
	var m SpeakerMix
	for src, dir := range worldSpeakerDirs {
		relX := dir.Dot(b.Right)
		relZ := dir.Dot(b.Ahead)
		px, pz := 0.0, -1.0
		if mag := math.Hypot(relX, relZ); mag > 1e-6 && !math.IsInf(mag, 0) && !math.IsNaN(mag) {
			px, pz = relX/mag, relZ/mag
		}

		best, bestDot := 0, -2.0
		var w [spatial.NumSpeakers]float64
		for dst, t := range listenerSpeakerDirsXZ {
			proj := px*t[0] + pz*t[1]
			if proj > bestDot {
				best, bestDot = dst, proj
			}
			w[dst] = math.Max(0, proj)
		}
		sum := floats.Sum(w[:])
		for dst := range w {
			switch {
			case sum > 1e-6:
				m[dst][src] = float32(w[dst] / sum)
			case dst == best:
				m[dst][src] = 1
			}
		}
	}
	return m
}

// Apply rotates one bed frame.
func (m *SpeakerMix) Apply(fl, fr, rr, rl float32) (float32, float32, float32, float32) {
	var out [spatial.NumSpeakers]float32
	for dst := range out {
		r := &m[dst]
		out[dst] = r[0]*fl + r[1]*fr + r[2]*rr + r[3]*rl
	}
	return out[0], out[1], out[2], out[3]
}

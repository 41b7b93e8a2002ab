// ABOUTME: Room profile published from the calibration side to the renderer
// ABOUTME: Speaker geometry, delay compensation and gain trims behind an atomic pointer
package scene

import (
	"math"

	"github.com/locusq/locusq-go/pkg/spatial"
)

// SpeakerProfile describes one measured speaker of the quad bed.
type SpeakerProfile struct {
	Position    spatial.Vec3 `json:"position"`
	Distance    float64      `json:"distance"`
	AngleDeg    float64      `json:"angle"`
	Height      float64      `json:"height"`
	DelayCompMs float64      `json:"delayComp"`
	GainTrimDB  float64      `json:"gainTrim"`
}

// RoomProfile is the calibrated room the renderer compensates for.
type RoomProfile struct {
	Speakers         [spatial.NumSpeakers]SpeakerProfile `json:"speakers"`
	Dimensions       spatial.Vec3                         `json:"dimensions"`
	RT60             float64                              `json:"rt60"`
	ListenerPosition spatial.Vec3                         `json:"listenerPos"`
	Valid            bool                                 `json:"valid"`
}

// DefaultRoomProfile is an uncalibrated 6x4x3 m room with the bed at its
// canonical positions.
func DefaultRoomProfile() RoomProfile {
	p := RoomProfile{
		Dimensions: spatial.Vec3{X: 6, Y: 4, Z: 3},
		RT60:       0.4,
	}
	for i := range p.Speakers {
		pos := spatial.SpeakerPositions[i]
		p.Speakers[i] = SpeakerProfile{
			Position: pos,
			Distance: 2,
			AngleDeg: spatial.SpeakerAngles[i],
			Height:   1.2,
		}
	}
	return p
}

// Sanitized returns p with non-finite or out-of-range compensation
// values replaced by neutral ones.
func (p RoomProfile) Sanitized() RoomProfile {
	for i := range p.Speakers {
		s := &p.Speakers[i]
		if math.IsNaN(s.DelayCompMs) || math.IsInf(s.DelayCompMs, 0) || s.DelayCompMs < 0 {
			s.DelayCompMs = 0
		}
		s.DelayCompMs = math.Min(s.DelayCompMs, MaxDelayCompMs)
		if math.IsNaN(s.GainTrimDB) || math.IsInf(s.GainTrimDB, 0) {
			s.GainTrimDB = 0
		}
		s.GainTrimDB = spatial.Clamp(s.GainTrimDB, -24, 12)
	}
	if !p.ListenerPosition.IsFinite() {
		p.ListenerPosition = spatial.Vec3{}
	}
	return p
}

// MaxDelayCompMs bounds per-speaker delay compensation.
const MaxDelayCompMs = 50

// PublishRoomProfile makes p visible to the renderer from the next block.
// It allocates and must not be called from an audio thread.
func (g *Graph) PublishRoomProfile(p RoomProfile) {
	sp := p.Sanitized()
	g.room.Store(&sp)
}

// RoomProfile returns the published profile, or nil before the first
// publish. Callers must treat the result as read-only.
func (g *Graph) RoomProfile() *RoomProfile {
	return g.room.Load()
}

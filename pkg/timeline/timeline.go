// ABOUTME: Multi-track keyframe timeline with its own playback clock
// ABOUTME: Advances per block, loops or clamps, and evaluates tracks by name
package timeline

import "math"

// Parameter names understood by emitters.
const (
	ParamAzimuth   = "pos_azimuth"
	ParamElevation = "pos_elevation"
	ParamDistance  = "pos_distance"
	ParamX         = "pos_x"
	ParamY         = "pos_y"
	ParamZ         = "pos_z"
	ParamSize      = "size_uniform"
	ParamGain      = "gain_db"
)

// Params lists every parameter name emitters animate.
var Params = []string{
	ParamAzimuth, ParamElevation, ParamDistance,
	ParamX, ParamY, ParamZ, ParamSize, ParamGain,
}

// Playback rate limits.
const (
	MinRate = 0.1
	MaxRate = 10.0
)

// Timeline holds at most one track per parameter and a playback clock.
// The zero value is an empty, non-looping timeline at rate 1.
type Timeline struct {
	tracks   []Track
	current  float64
	duration float64
	rate     float64
	loop     bool
}

// Reset rewinds the clock.
func (tl *Timeline) Reset() { tl.current = 0 }

// ClearTracks drops every track and rewinds.
func (tl *Timeline) ClearTracks() {
	tl.tracks = tl.tracks[:0]
	tl.duration = 0
	tl.current = 0
}

// SetTrack adds t or replaces the track with the same Param. A track
// without a name is ignored. The duration follows the longest track.
func (tl *Timeline) SetTrack(t Track) {
	if t.Param == "" {
		return
	}
	if i := tl.find(t.Param); i >= 0 {
		tl.tracks[i] = t
	} else {
		tl.tracks = append(tl.tracks, t)
	}
	tl.duration = 0
	for i := range tl.tracks {
		tl.duration = max(tl.duration, tl.tracks[i].End())
	}
	tl.current = tl.normalize(tl.current)
}

func (tl *Timeline) find(param string) int {
	for i := range tl.tracks {
		if tl.tracks[i].Param == param {
			return i
		}
	}
	return -1
}

// HasTrack reports whether param is animated.
func (tl *Timeline) HasTrack(param string) bool { return tl.find(param) >= 0 }

// HasAnyTrack reports whether any parameter is animated.
func (tl *Timeline) HasAnyTrack() bool { return len(tl.tracks) > 0 }

// Tracks returns the tracks in insertion order. The slice must not be
// modified.
func (tl *Timeline) Tracks() []Track { return tl.tracks }

// Evaluate returns param's value at sec, wrapped or clamped to the
// timeline's duration.
func (tl *Timeline) Evaluate(param string, sec float64) (float64, bool) {
	i := tl.find(param)
	if i < 0 {
		return 0, false
	}
	return tl.tracks[i].Evaluate(tl.normalize(sec))
}

// EvaluateNow evaluates param at the current clock.
func (tl *Timeline) EvaluateNow(param string) (float64, bool) {
	return tl.Evaluate(param, tl.current)
}

// Advance moves the clock by dt seconds scaled by the playback rate.
// Negative steps are ignored.
func (tl *Timeline) Advance(dt float64) {
	if !(dt > 0) {
		return
	}
	tl.SetCurrent(tl.current + dt*tl.PlaybackRate())
}

// SetCurrent moves the clock to sec.
func (tl *Timeline) SetCurrent(sec float64) {
	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		return
	}
	tl.current = tl.normalize(sec)
}

// Current returns the clock in seconds.
func (tl *Timeline) Current() float64 { return tl.current }

// SetDuration overrides the duration taken from the tracks. Negative
// values count as zero.
func (tl *Timeline) SetDuration(sec float64) {
	if math.IsNaN(sec) {
		return
	}
	tl.duration = max(sec, 0)
	tl.current = tl.normalize(tl.current)
}

// Duration returns the loop length in seconds.
func (tl *Timeline) Duration() float64 { return tl.duration }

// SetLooping chooses between wrapping and clamping at the end.
func (tl *Timeline) SetLooping(loop bool) {
	tl.loop = loop
	tl.current = tl.normalize(tl.current)
}

// Looping reports whether the clock wraps.
func (tl *Timeline) Looping() bool { return tl.loop }

// SetPlaybackRate sets the clock speed, clamped to [MinRate, MaxRate].
func (tl *Timeline) SetPlaybackRate(rate float64) {
	if math.IsNaN(rate) {
		return
	}
	tl.rate = min(max(rate, MinRate), MaxRate)
}

// PlaybackRate returns the clock speed. An unset rate is 1.
func (tl *Timeline) PlaybackRate() float64 {
	if tl.rate == 0 {
		return 1
	}
	return tl.rate
}

func (tl *Timeline) normalize(sec float64) float64 {
	if tl.duration <= 0 {
		return max(sec, 0)
	}
	if tl.loop {
		w := math.Mod(sec, tl.duration)
		if w < 0 {
			w += tl.duration
		}
		return w
	}
	return min(max(sec, 0), tl.duration)
}

// Default returns the stock eight-second looping flight path.
func Default() *Timeline {
	ease := func(pairs ...float64) []Keyframe {
		k := make([]Keyframe, 0, len(pairs)/2)
		for i := 0; i+1 < len(pairs); i += 2 {
			k = append(k, Keyframe{TimeSeconds: pairs[i], Value: pairs[i+1], Curve: EaseInOut})
		}
		return k
	}
	tl := &Timeline{}
	tl.SetTrack(NewTrack(ParamAzimuth, ease(0, -60, 2, 20, 4, 95, 6, 10, 8, -60)...))
	tl.SetTrack(NewTrack(ParamElevation, ease(0, 0, 2, 18, 4, 2, 6, -14, 8, 0)...))
	tl.SetTrack(NewTrack(ParamDistance, ease(0, 2.1, 2, 3.6, 4, 2.4, 6, 1.3, 8, 2.1)...))
	tl.SetTrack(NewTrack(ParamSize, ease(0, 0.45, 2, 0.62, 4, 0.35, 6, 0.74, 8, 0.45)...))
	tl.SetDuration(8)
	tl.SetLooping(true)
	tl.SetPlaybackRate(1)
	return tl
}

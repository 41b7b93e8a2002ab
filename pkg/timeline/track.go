// ABOUTME: One animated parameter as a sorted list of keyframes
// ABOUTME: Evaluates with hold-before-first and hold-after-last semantics
package timeline

import (
	"cmp"
	"slices"
	"sort"
)

// Segments shorter than this jump straight to the right keyframe.
const minSegmentSeconds = 1e-9

// Keyframe is one point of a track. Curve shapes the segment that leaves
// this keyframe.
type Keyframe struct {
	TimeSeconds float64 `json:"time_seconds"`
	Value       float64 `json:"value"`
	Curve       Curve   `json:"curve"`
}

// Track animates the parameter named Param.
type Track struct {
	Param string
	keys  []Keyframe
}

// NewTrack copies keys and sorts them by time. Keyframes at the same time
// keep their given order.
func NewTrack(param string, keys ...Keyframe) Track {
	k := slices.Clone(keys)
	slices.SortStableFunc(k, func(a, b Keyframe) int { return cmp.Compare(a.TimeSeconds, b.TimeSeconds) })
	return Track{Param: param, keys: k}
}

// Keyframes returns the sorted keyframes. The slice must not be modified.
func (t *Track) Keyframes() []Keyframe { return t.keys }

// Empty reports whether the track has no keyframes.
func (t *Track) Empty() bool { return len(t.keys) == 0 }

// End is the time of the last keyframe.
func (t *Track) End() float64 {
	if len(t.keys) == 0 {
		return 0
	}
	return t.keys[len(t.keys)-1].TimeSeconds
}

// Evaluate returns the value at sec. Before the first keyframe the first
// value holds; after the last the last value holds.
func (t *Track) Evaluate(sec float64) (float64, bool) {
	k := t.keys
	switch {
	case len(k) == 0:
		return 0, false
	case len(k) == 1 || sec <= k[0].TimeSeconds:
		return k[0].Value, true
	case sec >= k[len(k)-1].TimeSeconds:
		return k[len(k)-1].Value, true
	}

	upper := sort.Search(len(k), func(i int) bool { return k[i].TimeSeconds > sec })
	left, right := k[upper-1], k[upper]
	span := right.TimeSeconds - left.TimeSeconds
	if span <= minSegmentSeconds {
		return right.Value, true
	}
	x := left.Curve.Apply((sec - left.TimeSeconds) / span)
	return left.Value + (right.Value-left.Value)*x, true
}

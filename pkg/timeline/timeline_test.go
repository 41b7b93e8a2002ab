// ABOUTME: Tests for keyframe tracks and the timeline clock
// ABOUTME: Covers easing, hold semantics, looping, clamping and curve JSON
package timeline

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurveApply(t *testing.T) {
	tests := []struct {
		curve Curve
		at    float64
		want  float64
	}{
		{Linear, 0.25, 0.25},
		{EaseIn, 0.5, 0.25},
		{EaseOut, 0.5, 0.75},
		{EaseInOut, 0.25, 0.125},
		{EaseInOut, 0.75, 0.875},
		{Step, 0.9, 0},
		{Linear, 2, 1},
		{EaseIn, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.curve.String(), func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.curve.Apply(tt.at), 1e-12)
		})
	}
}

func TestTrackEvaluate(t *testing.T) {
	tr := NewTrack("x",
		Keyframe{TimeSeconds: 2, Value: 10, Curve: Step},
		Keyframe{TimeSeconds: 0, Value: 0},
		Keyframe{TimeSeconds: 4, Value: 20},
	)
	require.Len(t, tr.Keyframes(), 3)
	assert.Equal(t, 0.0, tr.Keyframes()[0].TimeSeconds)
	assert.Equal(t, 4.0, tr.End())

	tests := []struct {
		name string
		at   float64
		want float64
	}{
		{"before first", -1, 0},
		{"linear segment", 1, 5},
		{"on a keyframe", 2, 10},
		{"step holds left", 3.9, 10},
		{"after last", 9, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := tr.Evaluate(tt.at)
			require.True(t, ok)
			assert.InDelta(t, tt.want, v, 1e-12)
		})
	}

	var empty Track
	_, ok := empty.Evaluate(1)
	assert.False(t, ok)
}

func TestTrackCoincidentKeyframesJump(t *testing.T) {
	tr := NewTrack("x",
		Keyframe{TimeSeconds: 0, Value: 0},
		Keyframe{TimeSeconds: 1, Value: 1},
		Keyframe{TimeSeconds: 1, Value: 5},
		Keyframe{TimeSeconds: 2, Value: 5},
	)
	v, _ := tr.Evaluate(0.5)
	assert.InDelta(t, 0.5, v, 1e-12)
	v, _ = tr.Evaluate(1.5)
	assert.InDelta(t, 5, v, 1e-12)
}

func TestTimelineLoopAndClamp(t *testing.T) {
	tests := []struct {
		name    string
		loop    bool
		advance float64
		want    float64
	}{
		{"loop wraps", true, 5, 1},
		{"clamp holds end", false, 5, 4},
		{"inside", true, 2.5, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tl Timeline
			tl.SetTrack(NewTrack(ParamX, Keyframe{TimeSeconds: 0}, Keyframe{TimeSeconds: 4, Value: 8}))
			tl.SetLooping(tt.loop)
			assert.Equal(t, 4.0, tl.Duration())

			tl.Advance(tt.advance)
			assert.InDelta(t, tt.want, tl.Current(), 1e-12)
			v, ok := tl.EvaluateNow(ParamX)
			require.True(t, ok)
			assert.InDelta(t, 2*tt.want, v, 1e-12)
		})
	}
}

func TestTimelinePlaybackRate(t *testing.T) {
	var tl Timeline
	tl.SetTrack(NewTrack(ParamX, Keyframe{TimeSeconds: 0}, Keyframe{TimeSeconds: 100, Value: 100}))
	assert.Equal(t, 1.0, tl.PlaybackRate())

	tl.SetPlaybackRate(2)
	tl.Advance(1)
	assert.InDelta(t, 2, tl.Current(), 1e-12)

	tl.SetPlaybackRate(50)
	assert.Equal(t, MaxRate, tl.PlaybackRate())
	tl.SetPlaybackRate(0)
	assert.Equal(t, MinRate, tl.PlaybackRate())

	tl.Advance(-3)
	tl.Advance(math.NaN())
	assert.InDelta(t, 2, tl.Current(), 1e-12)
}

func TestTimelineSetTrackReplaces(t *testing.T) {
	var tl Timeline
	tl.SetTrack(NewTrack(ParamGain, Keyframe{TimeSeconds: 6, Value: -6}))
	tl.SetTrack(NewTrack(ParamGain, Keyframe{TimeSeconds: 2, Value: -3}))
	tl.SetTrack(NewTrack("", Keyframe{TimeSeconds: 10}))

	require.Len(t, tl.Tracks(), 1)
	assert.Equal(t, 2.0, tl.Duration())
	v, ok := tl.Evaluate(ParamGain, 0)
	require.True(t, ok)
	assert.Equal(t, -3.0, v)
	_, ok = tl.Evaluate(ParamX, 0)
	assert.False(t, ok)

	tl.ClearTracks()
	assert.False(t, tl.HasAnyTrack())
	assert.Zero(t, tl.Duration())
}

func TestDefaultTimeline(t *testing.T) {
	tl := Default()
	assert.True(t, tl.Looping())
	assert.Equal(t, 8.0, tl.Duration())
	for _, p := range []string{ParamAzimuth, ParamElevation, ParamDistance, ParamSize} {
		assert.True(t, tl.HasTrack(p), p)
	}

	az, _ := tl.Evaluate(ParamAzimuth, 0)
	assert.Equal(t, -60.0, az)
	az, _ = tl.Evaluate(ParamAzimuth, 8+4)
	assert.Equal(t, 95.0, az)
	d, _ := tl.Evaluate(ParamDistance, 1)
	assert.InDelta(t, 2.85, d, 1e-9)
}

func TestCurveJSON(t *testing.T) {
	var k Keyframe
	require.NoError(t, json.Unmarshal([]byte(`{"time_seconds":1,"value":2,"curve":"EASEOUT"}`), &k))
	assert.Equal(t, EaseOut, k.Curve)

	require.NoError(t, json.Unmarshal([]byte(`{"curve":9}`), &k))
	assert.Equal(t, Step, k.Curve)

	assert.Error(t, json.Unmarshal([]byte(`{"curve":"bounce"}`), &k))

	raw, err := json.Marshal(Keyframe{TimeSeconds: 1, Curve: EaseInOut})
	require.NoError(t, err)
	assert.JSONEq(t, `{"time_seconds":1,"value":0,"curve":"easeInOut"}`, string(raw))
}

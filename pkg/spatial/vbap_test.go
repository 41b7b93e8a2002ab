// ABOUTME: Tests for the quad VBAP panner and direction helpers
// ABOUTME: Checks speaker hits, power normalization and elevation blend
package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPannerOnSpeaker(t *testing.T) {
	p := NewPanner()
	tests := []struct {
		name    string
		azimuth float64
		speaker int
	}{
		{"front left", -45, SpeakerFL},
		{"front right", 45, SpeakerFR},
		{"rear right", 135, SpeakerRR},
		{"rear left", -135, SpeakerRL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := p.Gains(tt.azimuth)
			for i, v := range g {
				want := 0.0
				if i == tt.speaker {
					want = 1
				}
				assert.InDelta(t, want, v, 1e-9, "speaker %d", i)
			}
		})
	}
}

func TestPannerConstantPower(t *testing.T) {
	p := NewPanner()
	for az := -180.0; az <= 180; az += 7.5 {
		g := p.Gains(az)
		power := 0.0
		for _, v := range g {
			assert.GreaterOrEqual(t, v, 0.0)
			power += v * v
		}
		assert.InDelta(t, 1.0, power, 1e-9, "azimuth %f", az)
	}
}

func TestPannerCenterSplitsFrontPair(t *testing.T) {
	g := NewPanner().Gains(0)
	assert.InDelta(t, math.Sqrt2/2, g[SpeakerFL], 1e-9)
	assert.InDelta(t, math.Sqrt2/2, g[SpeakerFR], 1e-9)
	assert.InDelta(t, 0.0, g[SpeakerRR], 1e-9)
	assert.InDelta(t, 0.0, g[SpeakerRL], 1e-9)
}

func TestPannerOverheadIsEqual(t *testing.T) {
	g := NewPanner().GainsWithElevation(30, 90)
	for i, v := range g {
		assert.InDelta(t, 0.5, v, 1e-9, "speaker %d", i)
	}
}

func TestDirectionHelpers(t *testing.T) {
	assert.InDelta(t, 90.0, Azimuth(Vec3{X: 1}), 1e-9)
	assert.InDelta(t, 0.0, Azimuth(Vec3{Z: 2}), 1e-9)
	assert.InDelta(t, 45.0, Elevation(Vec3{Y: 1, Z: 1}), 1e-9)
	assert.Equal(t, 0.0, Elevation(Vec3{}))
	assert.InDelta(t, 5.0, Distance(Vec3{X: 3, Z: 4}), 1e-9)
}

// ABOUTME: Tests for the physics control block
// ABOUTME: Rate clamping and flag round trips
package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhysicsControl(t *testing.T) {
	g := NewGraph(4)
	p := g.Physics()

	assert.Equal(t, 30, p.RateHz())

	p.SetRateIndex(2)
	assert.Equal(t, 120, p.RateHz())

	p.SetRateIndex(99)
	assert.Equal(t, 240, p.RateHz())

	p.SetRateIndex(-3)
	assert.Equal(t, 30, p.RateHz())

	p.SetPaused(true)
	p.SetWallCollision(true)
	p.SetInteraction(true)
	assert.True(t, p.Paused())
	assert.True(t, p.WallCollision())
	assert.True(t, p.Interaction())
}

// ABOUTME: Shared control block for the external physics integrator
// ABOUTME: Step rate, pause, wall collision and emitter interaction as atomics
package scene

import "sync/atomic"

// PhysicsRates are the selectable integrator rates in Hz, by index.
var PhysicsRates = [...]int{30, 60, 120, 240}

// PhysicsControl is written by the renderer instance and read by every
// emitter's integrator. Each field is independent, so no seqlock is needed.
type PhysicsControl struct {
	rateIndex     atomic.Int32
	paused        atomic.Bool
	wallCollision atomic.Bool
	interaction   atomic.Bool
}

// SetRateIndex selects a rate from PhysicsRates. Out-of-range indices are
// clamped.
func (p *PhysicsControl) SetRateIndex(i int) {
	p.rateIndex.Store(int32(max(0, min(i, len(PhysicsRates)-1))))
}

// RateHz returns the selected integrator rate.
func (p *PhysicsControl) RateHz() int {
	return PhysicsRates[p.rateIndex.Load()]
}

// SetPaused stops or resumes integration.
func (p *PhysicsControl) SetPaused(v bool) { p.paused.Store(v) }

// Paused reports whether integration is stopped.
func (p *PhysicsControl) Paused() bool { return p.paused.Load() }

// SetWallCollision toggles bouncing off the room bounds.
func (p *PhysicsControl) SetWallCollision(v bool) { p.wallCollision.Store(v) }

// WallCollision reports whether emitters bounce off the room bounds.
func (p *PhysicsControl) WallCollision() bool { return p.wallCollision.Load() }

// SetInteraction toggles emitter-to-emitter forces.
func (p *PhysicsControl) SetInteraction(v bool) { p.interaction.Store(v) }

// Interaction reports whether emitters exert forces on each other. Those
// forces read other slots, which may be one block stale.
func (p *PhysicsControl) Interaction() bool { return p.interaction.Load() }

// Physics returns the graph's physics control block.
func (g *Graph) Physics() *PhysicsControl { return &g.physics }

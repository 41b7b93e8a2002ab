// ABOUTME: Fixed-capacity emitter arena with compare-and-swap claim tokens
// ABOUTME: Emitter and renderer role acquisition, release and occupancy queries
package scene

import (
	"fmt"
	"sync/atomic"
)

// DefaultCapacity is the number of emitter slots in a host's Graph.
const DefaultCapacity = 256

// Operation names a registration request.
type Operation uint8

const (
	OpNone Operation = iota
	OpClaimEmitter
	OpReleaseEmitter
	OpClaimRenderer
	OpReleaseRenderer
)

func (o Operation) String() string {
	switch o {
	case OpClaimEmitter:
		return "claim_emitter"
	case OpReleaseEmitter:
		return "release_emitter"
	case OpClaimRenderer:
		return "claim_renderer"
	case OpReleaseRenderer:
		return "release_renderer"
	default:
		return "none"
	}
}

// Outcome is the typed result of a claim or release. None of them are
// errors; the caller decides what to do with Contention.
type Outcome uint8

const (
	Success Outcome = iota
	Noop
	Contention
	ReleaseIncomplete
	StateDrift
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Noop:
		return "noop"
	case Contention:
		return "contention"
	case ReleaseIncomplete:
		return "release_incomplete"
	case StateDrift:
		return "state_drift"
	default:
		return "unknown"
	}
}

// IsFailure reports outcomes that left the caller without the state it asked for.
func (o Outcome) IsFailure() bool {
	return o == Contention || o == ReleaseIncomplete
}

// Role is the part an instance plays against the Graph.
type Role uint8

const (
	RoleEmitter Role = iota + 1
	RoleRenderer
)

// Token proves ownership of a slot or of the renderer role. A token is
// only honoured while its generation matches the current claim.
type Token struct {
	Role       Role
	Slot       int
	Generation uint32
}

// Valid reports whether the token was issued by a successful claim.
func (t Token) Valid() bool {
	return t.Generation != 0
}

// Graph is the shared scene. Create one per host with NewGraph, or share
// one across instances through a Service.
type Graph struct {
	slots       []Slot
	activeCount atomic.Int32

	// renderer packs the claim generation in the high word and the owned
	// bit in the low word so claim and release are a single CAS.
	renderer atomic.Uint64

	contentionCount atomic.Uint64
	staleOwnerCount atomic.Uint64

	room          atomic.Pointer[RoomProfile]
	sampleCounter atomic.Uint64

	physics PhysicsControl
}

// NewGraph allocates a Graph with capacity slots. All memory the audio
// path touches is allocated here.
func NewGraph(capacity int) *Graph {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	g := &Graph{slots: make([]Slot, capacity)}
	for i := range g.slots {
		g.slots[i].init(i)
	}
	return g
}

// Capacity returns the fixed slot count.
func (g *Graph) Capacity() int { return len(g.slots) }

// Slot returns slot i. An out-of-range index is a programming error.
func (g *Graph) Slot(i int) *Slot {
	if i < 0 || i >= len(g.slots) {
		panic(fmt.Sprintf("scene: slot index %d out of range [0,%d)", i, len(g.slots)))
	}
	return &g.slots[i]
}

// IsSlotActive reports whether slot i holds a live emitter. Out-of-range
// indices are simply inactive.
func (g *Graph) IsSlotActive(i int) bool {
	if i < 0 || i >= len(g.slots) {
		return false
	}
	return g.slots[i].State() == SlotActive
}

// ActiveEmitterCount returns the number of claimed emitter slots.
func (g *Graph) ActiveEmitterCount() int {
	return int(g.activeCount.Load())
}

// ClaimEmitterSlot takes the first free slot, writes its default record
// and returns the token. When every slot is taken it returns Contention
// and touches nothing.
func (g *Graph) ClaimEmitterSlot() (Token, Outcome) {
	for i := range g.slots {
		s := &g.slots[i]
		if !s.state.CompareAndSwap(uint32(SlotFree), uint32(SlotInitializing)) {
			continue
		}
		gen := s.generation.Add(1)
		if gen == 0 {
			gen = s.generation.Add(1)
		}
		s.Write(DefaultEmitterData(i))
		s.ClearAudio()
		s.state.Store(uint32(SlotActive))
		g.activeCount.Add(1)
		return Token{Role: RoleEmitter, Slot: i, Generation: gen}, Success
	}
	g.contentionCount.Add(1)
	return Token{}, Contention
}

// ReleaseEmitterSlot gives the slot back. Releasing a free slot is a
// Noop; releasing with a token from an older claim is StateDrift and
// leaves the current owner alone.
func (g *Graph) ReleaseEmitterSlot(t Token) Outcome {
	if t.Role != RoleEmitter || t.Slot < 0 || t.Slot >= len(g.slots) || !t.Valid() {
		return Noop
	}
	s := &g.slots[t.Slot]
	switch s.State() {
	case SlotFree:
		return Noop
	case SlotInitializing, SlotRetiring:
		if s.generation.Load() != t.Generation {
			g.staleOwnerCount.Add(1)
			return StateDrift
		}
		return ReleaseIncomplete
	}
	if s.generation.Load() != t.Generation {
		g.staleOwnerCount.Add(1)
		return StateDrift
	}
	if !s.state.CompareAndSwap(uint32(SlotActive), uint32(SlotRetiring)) {
		return ReleaseIncomplete
	}

	d := DefaultEmitterData(t.Slot)
	d.Active = false
	s.Write(d)
	s.ClearAudio()
	s.state.Store(uint32(SlotFree))
	for {
		n := g.activeCount.Load()
		if n <= 0 || g.activeCount.CompareAndSwap(n, n-1) {
			break
		}
	}
	return Success
}

// Owns reports whether t is the current claim on its slot or role.
func (g *Graph) Owns(t Token) bool {
	if !t.Valid() {
		return false
	}
	switch t.Role {
	case RoleEmitter:
		if t.Slot < 0 || t.Slot >= len(g.slots) {
			return false
		}
		return g.slots[t.Slot].ownedBy(t)
	case RoleRenderer:
		gen, owned := unpackRenderer(g.renderer.Load())
		return owned && gen == t.Generation
	}
	return false
}

func packRenderer(gen uint32, owned bool) uint64 {
	v := uint64(gen) << 32
	if owned {
		v |= 1
	}
	return v
}

func unpackRenderer(v uint64) (gen uint32, owned bool) {
	return uint32(v >> 32), v&1 == 1
}

// ClaimRenderer takes the single renderer role.
func (g *Graph) ClaimRenderer() (Token, Outcome) {
	for {
		cur := g.renderer.Load()
		gen, owned := unpackRenderer(cur)
		if owned {
			g.contentionCount.Add(1)
			return Token{}, Contention
		}
		gen++
		if gen == 0 {
			gen = 1
		}
		if g.renderer.CompareAndSwap(cur, packRenderer(gen, true)) {
			return Token{Role: RoleRenderer, Slot: -1, Generation: gen}, Success
		}
	}
}

// ReleaseRenderer gives the renderer role back.
func (g *Graph) ReleaseRenderer(t Token) Outcome {
	if t.Role != RoleRenderer || !t.Valid() {
		return Noop
	}
	for {
		cur := g.renderer.Load()
		gen, owned := unpackRenderer(cur)
		if !owned {
			return Noop
		}
		if gen != t.Generation {
			g.staleOwnerCount.Add(1)
			return StateDrift
		}
		if g.renderer.CompareAndSwap(cur, packRenderer(gen, false)) {
			return Success
		}
	}
}

// IsRendererOwned reports whether some instance holds the renderer role.
func (g *Graph) IsRendererOwned() bool {
	_, owned := unpackRenderer(g.renderer.Load())
	return owned
}

// ContentionCount is the number of claims lost since the Graph was created.
func (g *Graph) ContentionCount() uint64 { return g.contentionCount.Load() }

// StaleOwnerCount is the number of releases attempted with superseded tokens.
func (g *Graph) StaleOwnerCount() uint64 { return g.staleOwnerCount.Load() }

// AdvanceSampleCounter adds n rendered frames to the global sample clock.
func (g *Graph) AdvanceSampleCounter(n int) uint64 {
	return g.sampleCounter.Add(uint64(n))
}

// SampleCounter returns the global sample clock.
func (g *Graph) SampleCounter() uint64 { return g.sampleCounter.Load() }

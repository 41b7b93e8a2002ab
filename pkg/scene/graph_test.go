// ABOUTME: Tests for slot claiming, release outcomes and renderer ownership
// ABOUTME: Exhaustion, stale tokens and occupancy counters
package scene

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locusq/locusq-go/pkg/spatial"
)

func TestClaimAllSlotsThenContention(t *testing.T) {
	g := NewGraph(4)
	var tokens []Token
	for i := 0; i < 4; i++ {
		tok, out := g.ClaimEmitterSlot()
		require.Equal(t, Success, out)
		require.Equal(t, i, tok.Slot)
		tokens = append(tokens, tok)

		d := DefaultEmitterData(i)
		d.Position = spatial.Vec3{X: float64(i)}
		g.Slot(i).Write(d)
	}

	var before []EmitterData
	for i := 0; i < 4; i++ {
		d, ok := g.Slot(i).Read()
		require.True(t, ok)
		before = append(before, d)
	}

	tok, out := g.ClaimEmitterSlot()
	assert.Equal(t, Contention, out)
	assert.False(t, tok.Valid())
	assert.Equal(t, uint64(1), g.ContentionCount())
	assert.Equal(t, 4, g.ActiveEmitterCount())

	for i := 0; i < 4; i++ {
		d, ok := g.Slot(i).Read()
		require.True(t, ok)
		if diff := cmp.Diff(before[i], d); diff != "" {
			t.Errorf("slot %d changed after failed claim (-before +after):\n%s", i, diff)
		}
	}
	for _, tok := range tokens {
		assert.True(t, g.Owns(tok))
	}
}

func TestClaimWritesDefaults(t *testing.T) {
	g := NewGraph(8)
	tok, out := g.ClaimEmitterSlot()
	require.Equal(t, Success, out)

	d, ok := g.Slot(tok.Slot).Read()
	require.True(t, ok)
	assert.True(t, d.Active)
	assert.Equal(t, "Emitter 1", d.Label.String())
	assert.Equal(t, spatial.Vec3{Y: 1.2}, d.Position)
	assert.Equal(t, 0.5, d.Directivity)
	assert.Equal(t, spatial.Vec3{Z: -1}, d.Aim)
	assert.Less(t, d.ColorIndex, uint8(16))
	assert.True(t, g.IsSlotActive(tok.Slot))
}

func TestReleaseOutcomes(t *testing.T) {
	g := NewGraph(2)
	tok, out := g.ClaimEmitterSlot()
	require.Equal(t, Success, out)

	assert.Equal(t, Success, g.ReleaseEmitterSlot(tok))
	assert.False(t, g.IsSlotActive(tok.Slot))
	assert.Equal(t, 0, g.ActiveEmitterCount())

	d, ok := g.Slot(tok.Slot).Read()
	require.True(t, ok)
	assert.False(t, d.Active)

	assert.Equal(t, Noop, g.ReleaseEmitterSlot(tok), "second release is idempotent")
	assert.Equal(t, Noop, g.ReleaseEmitterSlot(Token{}))
	assert.Equal(t, 0, g.ActiveEmitterCount())
}

func TestReleaseWithSupersededTokenIsStateDrift(t *testing.T) {
	g := NewGraph(1)
	old, _ := g.ClaimEmitterSlot()
	require.Equal(t, Success, g.ReleaseEmitterSlot(old))

	current, out := g.ClaimEmitterSlot()
	require.Equal(t, Success, out)
	require.Equal(t, old.Slot, current.Slot)
	require.NotEqual(t, old.Generation, current.Generation)

	assert.Equal(t, StateDrift, g.ReleaseEmitterSlot(old))
	assert.Equal(t, uint64(1), g.StaleOwnerCount())
	assert.True(t, g.Owns(current), "stale release must not evict the new owner")
	assert.False(t, g.Owns(old))
}

func TestRendererRole(t *testing.T) {
	g := NewGraph(1)
	first, out := g.ClaimRenderer()
	require.Equal(t, Success, out)
	assert.True(t, g.IsRendererOwned())

	_, out = g.ClaimRenderer()
	assert.Equal(t, Contention, out)

	assert.Equal(t, Success, g.ReleaseRenderer(first))
	assert.Equal(t, Noop, g.ReleaseRenderer(first))
	assert.False(t, g.IsRendererOwned())

	second, out := g.ClaimRenderer()
	require.Equal(t, Success, out)
	assert.Equal(t, StateDrift, g.ReleaseRenderer(first))
	assert.True(t, g.Owns(second))
}

func TestRendererRoleConcurrentClaimRelease(t *testing.T) {
	g := NewGraph(1)
	const workers, rounds = 8, 500

	var (
		holders    atomic.Int32
		overlaps   atomic.Int32
		lostClaims atomic.Int32
		mu         sync.Mutex
		gens       = map[uint32]int{}
		wg         sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				tok, out := g.ClaimRenderer()
				if out != Success {
					continue
				}
				if holders.Add(1) != 1 {
					overlaps.Add(1)
				}
				if !g.Owns(tok) {
					lostClaims.Add(1)
				}
				mu.Lock()
				gens[tok.Generation]++
				mu.Unlock()
				holders.Add(-1)
				if g.ReleaseRenderer(tok) != Success {
					lostClaims.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, overlaps.Load(), "two instances held the renderer role at once")
	assert.Zero(t, lostClaims.Load(), "a claim was taken over before its release")
	assert.NotEmpty(t, gens)
	for gen, n := range gens {
		assert.Equal(t, 1, n, "generation %d issued twice", gen)
	}
	assert.False(t, g.IsRendererOwned())
	assert.Zero(t, g.StaleOwnerCount())
}

func TestSlotWriteAsRejectsSupersededToken(t *testing.T) {
	g := NewGraph(1)
	old, _ := g.ClaimEmitterSlot()
	require.Equal(t, Success, g.ReleaseEmitterSlot(old))
	current, out := g.ClaimEmitterSlot()
	require.Equal(t, Success, out)

	stale := DefaultEmitterData(0)
	stale.Position = spatial.Vec3{X: 9}
	fresh := DefaultEmitterData(0)
	fresh.Position = spatial.Vec3{X: 1}

	tests := []struct {
		name  string
		tok   Token
		write bool
	}{
		{"superseded", old, false},
		{"wrong role", Token{Role: RoleRenderer, Slot: 0, Generation: current.Generation}, false},
		{"zero token", Token{}, false},
		{"current", current, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := stale
			if tt.write {
				d = fresh
			}
			assert.Equal(t, tt.write, g.Slot(0).WriteAs(tt.tok, d))
			assert.Equal(t, tt.write, g.Slot(0).WriteAudioAs(tt.tok, [][]float32{{0.25, 0.25}}, 2))
		})
	}

	got, ok := g.Slot(0).Read()
	require.True(t, ok)
	assert.Equal(t, 1.0, got.Position.X)

	// Once released, even the last owner cannot write.
	require.Equal(t, Success, g.ReleaseEmitterSlot(current))
	assert.False(t, g.Slot(0).WriteAs(current, fresh))
	_, ok = g.Slot(0).ReadAudio(make([]float32, 4))
	assert.False(t, ok)
}

func TestSlotIndexBounds(t *testing.T) {
	g := NewGraph(3)
	assert.False(t, g.IsSlotActive(-1))
	assert.False(t, g.IsSlotActive(3))
	assert.Panics(t, func() { g.Slot(3) })
	assert.Panics(t, func() { g.Slot(-1) })
}

func TestOutcomeSpellings(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
		failure bool
	}{
		{Success, "success", false},
		{Noop, "noop", false},
		{Contention, "contention", true},
		{ReleaseIncomplete, "release_incomplete", true},
		{StateDrift, "state_drift", false},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.outcome.String())
			assert.Equal(t, tt.failure, tt.outcome.IsFailure())
		})
	}
	assert.Equal(t, "claim_emitter", OpClaimEmitter.String())
	assert.Equal(t, "release_renderer", OpReleaseRenderer.String())
}

func TestSampleCounter(t *testing.T) {
	g := NewGraph(1)
	g.AdvanceSampleCounter(512)
	assert.Equal(t, uint64(1024), g.AdvanceSampleCounter(512))
	assert.Equal(t, uint64(1024), g.SampleCounter())
}

func TestRoomProfilePublish(t *testing.T) {
	g := NewGraph(1)
	assert.Nil(t, g.RoomProfile())

	p := DefaultRoomProfile()
	p.Valid = true
	p.Speakers[0].DelayCompMs = -3
	p.Speakers[1].GainTrimDB = 40
	g.PublishRoomProfile(p)

	got := g.RoomProfile()
	require.NotNil(t, got)
	assert.True(t, got.Valid)
	assert.Equal(t, 0.0, got.Speakers[0].DelayCompMs)
	assert.Equal(t, 12.0, got.Speakers[1].GainTrimDB)
}

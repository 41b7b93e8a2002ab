// ABOUTME: Emitter instance block loop
// ABOUTME: Publishes position, motion and the prefetched source audio into the claimed slot
package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/locusq/locusq-go/internal/config"
	"github.com/locusq/locusq-go/internal/source"
	"github.com/locusq/locusq-go/pkg/scene"
	"github.com/locusq/locusq-go/pkg/spatial"
	"github.com/locusq/locusq-go/pkg/timeline"
)

type emitterPart struct {
	cfg      config.EmitterConfig
	prefetch *source.Prefetcher
	planar   [][]float32
	dt       float64
	anim     *timeline.Timeline

	gen    uint32
	data   scene.EmitterData
	center spatial.Vec3
	prev   spatial.Vec3
	phase  float64
	moved  bool
}

func newEmitterPart(cfg config.EmitterConfig, p *source.Prefetcher, opts Options) *emitterPart {
	planar := make([][]float32, p.Channels())
	for ch := range planar {
		planar[ch] = make([]float32, opts.BlockSize)
	}
	e := &emitterPart{
		cfg:      cfg,
		prefetch: p,
		planar:   planar,
		dt:       float64(opts.BlockSize) / float64(opts.SampleRate),
	}
	if cfg.Animation != nil {
		e.anim = cfg.Animation.Timeline()
	}
	return e
}

// orbit returns the position after advancing the orbit by one block.
// Emitters circle their configured position in the horizontal plane.
func (e *emitterPart) orbit() spatial.Vec3 {
	if e.cfg.OrbitRadius == 0 {
		return e.center
	}
	e.phase += 2 * math.Pi * e.cfg.OrbitHz * e.dt
	e.phase = math.Mod(e.phase, 2*math.Pi)
	return e.center.Add(spatial.Vec3{
		X: e.cfg.OrbitRadius * math.Sin(e.phase),
		Z: -e.cfg.OrbitRadius * math.Cos(e.phase),
	})
}

// animate advances the timeline by one block and applies its tracks on
// top of the configured record. Untracked parameters keep their
// configured values.
func (e *emitterPart) animate() spatial.Vec3 {
	tl := e.anim
	tl.Advance(e.dt)

	pos := e.center
	if e.cfg.Animation.Cartesian() {
		if v, ok := tl.EvaluateNow(timeline.ParamX); ok {
			pos.X = v
		}
		if v, ok := tl.EvaluateNow(timeline.ParamY); ok {
			pos.Y = v
		}
		if v, ok := tl.EvaluateNow(timeline.ParamZ); ok {
			pos.Z = v
		}
	} else {
		az, el, dist := spatial.Azimuth(pos), spatial.Elevation(pos), spatial.Distance(pos)
		if v, ok := tl.EvaluateNow(timeline.ParamAzimuth); ok {
			az = v
		}
		if v, ok := tl.EvaluateNow(timeline.ParamElevation); ok {
			el = v
		}
		if v, ok := tl.EvaluateNow(timeline.ParamDistance); ok {
			dist = max(v, 0)
		}
		pos = spatial.FromSpherical(az, el, dist)
	}

	if v, ok := tl.EvaluateNow(timeline.ParamSize); ok {
		v = max(v, 0)
		e.data.Size = spatial.Vec3{X: v, Y: v, Z: v}
	}
	if v, ok := tl.EvaluateNow(timeline.ParamGain); ok {
		e.data.GainDB = min(v, 24)
	}
	return pos
}

// step publishes one block for the slot t owns. A token that lost its
// claim publishes nothing.
func (e *emitterPart) step(g *scene.Graph, t scene.Token, n int) {
	slot := g.Slot(t.Slot)
	if t.Generation != e.gen {
		// New claim: start from the configured record.
		e.gen = t.Generation
		e.data = e.cfg.Data(t.Slot)
		e.center = e.data.Position
		e.moved = false
		if e.anim != nil {
			e.anim.Reset()
		}
	}
	var pos spatial.Vec3
	if e.anim != nil {
		pos = e.animate()
	} else {
		pos = e.orbit()
	}
	if e.moved {
		e.data.Velocity = pos.Sub(e.prev).Scale(1 / e.dt)
	}
	e.data.Position = pos
	e.prev, e.moved = pos, true
	if !slot.WriteAs(t, e.data) {
		return
	}

	e.prefetch.ReadBlock(e.planar, n)
	slot.WriteAudioAs(t, e.planar, n)
}

func (i *Instance) runEmitter(ctx context.Context) error {
	e := i.emitter
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Errors are logged by the prefetcher; the emitter keeps its slot
		// and plays silence.
		_ = e.prefetch.Run(ctx, i.opts.BlockDuration())
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	ticker := time.NewTicker(i.opts.BlockDuration())
	defer ticker.Stop()
	n := i.opts.BlockSize
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st := i.syncRegistration()
			if t, ok := i.reg.EmitterToken(); ok && st.EmitterActive {
				e.step(i.graph, t, n)
			}
			i.blocks.Add(1)
		}
	}
}

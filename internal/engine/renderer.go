// ABOUTME: Renderer instance block loop paced by the output sink
// ABOUTME: Samples the head pose, renders the scene and writes interleaved host audio
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/locusq/locusq-go/pkg/audio"
	"github.com/locusq/locusq-go/pkg/audio/output"
	"github.com/locusq/locusq-go/pkg/headtracking"
	"github.com/locusq/locusq-go/pkg/render"
	"github.com/locusq/locusq-go/pkg/scene"
)

// clockResyncMs is how far the tracker clock may appear to fall behind
// before the offset is re-learned, as after a tracker restart.
const clockResyncMs = 1000.0

// trackerClock maps local milliseconds onto the tracker's timestamp
// domain. The offset is the smallest local-minus-tracker difference seen,
// which is the delivery with the least transport delay.
type trackerClock struct {
	offset float64
	have   bool
}

func (c *trackerClock) observe(localMs float64, trackerMs uint64) {
	off := localMs - float64(trackerMs)
	if !c.have || off < c.offset || off > c.offset+clockResyncMs {
		c.offset, c.have = off, true
	}
}

func (c *trackerClock) trackerMs(localMs float64) float64 { return localMs - c.offset }

// Optional pose transport counters surfaced in renderer diagnostics.
type (
	invalidCounter  interface{ InvalidCount() uint32 }
	consumerCounter interface{ Consumers() int }
)

type rendererPart struct {
	r        *render.Renderer
	sink     output.Output
	out      *audio.Block
	inter    []float32
	pose     PoseReader
	source   string
	consumer PoseConsumer

	interp headtracking.Interpolator
	clock  trackerClock
	snap   headtracking.Snapshot
	start  time.Time
}

func newRendererPart(opts RendererOptions, host Options) (*rendererPart, error) {
	r := render.New(opts.Backend)
	if err := r.Prepare(float64(host.SampleRate), host.BlockSize, host.Capacity); err != nil {
		return nil, err
	}
	if err := opts.Sink.Open(host.SampleRate, host.OutputChannels); err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return &rendererPart{
		r:        r,
		sink:     opts.Sink,
		out:      audio.NewBlock(host.OutputChannels, host.BlockSize),
		inter:    make([]float32, host.OutputChannels*host.BlockSize),
		pose:     opts.Pose,
		source:   opts.PoseSource,
		consumer: opts.Consumer,
	}, nil
}

// headPose samples the newest tracker snapshot and interpolates the
// orientation for now. Once a pose has arrived it stays applied; past the
// staleness window the bounded interpolator holds the last orientation and
// the pose is only flagged stale.
func (p *rendererPart) headPose(now time.Time) render.HeadPose {
	if p.pose == nil {
		return render.HeadPose{}
	}
	hp := render.HeadPose{Tracking: render.TrackingStatus{Enabled: true, Source: p.source}}
	if c, ok := p.pose.(invalidCounter); ok {
		hp.Tracking.InvalidPackets = c.InvalidCount()
	}
	if c, ok := p.consumer.(consumerCounter); ok {
		hp.Tracking.Consumers = c.Consumers()
	}

	localMs := float64(now.Sub(p.start).Microseconds()) / 1000
	if p.pose.Latest(&p.snap) && (!p.interp.Ready() || p.snap.Seq != p.interp.Latest().Seq) {
		p.clock.observe(localMs, p.snap.TimestampMs)
		p.interp.Ingest(p.snap, p.clock.trackerMs(localMs))
	}
	if !p.interp.Ready() {
		return hp
	}
	t := p.clock.trackerMs(localMs)
	latest := p.interp.Latest()
	hp.Orientation = p.interp.At(t)
	hp.Valid = true
	hp.Stale = p.interp.Stale(t)
	hp.Tracking.Seq = latest.Seq
	hp.Tracking.TimestampMs = latest.TimestampMs
	hp.Tracking.AgeMs = p.interp.AgeMs(t)
	return hp
}

// step renders one block, or silence when the instance does not own the
// renderer role, and hands it to the sink.
func (p *rendererPart) step(g *scene.Graph, owned bool, now time.Time) error {
	n := p.out.Frames
	if owned {
		p.r.Process(p.out, n, g, p.headPose(now))
	} else {
		p.out.Clear(n)
	}
	written := p.out.Interleave(p.inter, n)
	return p.sink.Write(p.inter[:written])
}

func (i *Instance) runRenderer(ctx context.Context) error {
	p := i.renderer
	p.start = time.Now()
	if p.consumer != nil {
		p.consumer.Attach()
		defer p.consumer.Detach()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		st := i.syncRegistration()
		// The sink blocks for about one block, which paces the loop.
		if err := p.step(i.graph, st.RendererOwned, time.Now()); err != nil {
			return fmt.Errorf("renderer %s: write output: %w", i.name, err)
		}
		i.blocks.Add(1)
	}
}

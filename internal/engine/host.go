// ABOUTME: Plugin-host simulation sharing one scene graph between instances
// ABOUTME: Creates emitter and renderer instances and runs each on its own goroutine
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/locusq/locusq-go/internal/config"
	"github.com/locusq/locusq-go/internal/source"
	"github.com/locusq/locusq-go/pkg/audio/output"
	"github.com/locusq/locusq-go/pkg/headtracking"
	"github.com/locusq/locusq-go/pkg/render"
	"github.com/locusq/locusq-go/pkg/scene"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrHostClosed is returned when instances are added after Close.
var ErrHostClosed = errors.New("host closed")

// Options are the host's audio settings, shared by every instance.
type Options struct {
	SampleRate     int
	BlockSize      int
	OutputChannels int
	Capacity       int
}

func (o Options) withDefaults() Options {
	if o.SampleRate <= 0 {
		o.SampleRate = 48000
	}
	if o.BlockSize <= 0 {
		o.BlockSize = 512
	}
	if o.OutputChannels <= 0 {
		o.OutputChannels = 2
	}
	if o.Capacity <= 0 {
		o.Capacity = scene.DefaultCapacity
	}
	return o
}

// BlockDuration is the wall-clock length of one block.
func (o Options) BlockDuration() time.Duration {
	return time.Duration(o.BlockSize) * time.Second / time.Duration(o.SampleRate)
}

// PoseReader is where a renderer instance samples listener orientation.
// *headtracking.Publisher implements it.
type PoseReader interface {
	Latest(dst *headtracking.Snapshot) bool
}

// PoseConsumer counts instances reading poses so the sender can see them
// in its acks. *headtracking.Listener implements it.
type PoseConsumer interface {
	Attach()
	Detach()
}

// RendererOptions configure a renderer instance. PoseSource names the
// pose transport in diagnostics, for example "udp".
type RendererOptions struct {
	Name       string
	Sink       output.Output
	Backend    render.BinauralBackend
	Pose       PoseReader
	PoseSource string
	Consumer   PoseConsumer
}

// Host owns the scene service and the instances created against it. The
// host holds its own Graph reference so observers can read the scene
// while instances come and go.
type Host struct {
	opts  Options
	svc   *scene.Service
	graph *scene.Graph

	mu        sync.Mutex
	instances []*Instance
	closed    bool
}

// NewHost creates a host and its shared scene.
func NewHost(opts Options) *Host {
	opts = opts.withDefaults()
	svc := scene.NewService(opts.Capacity)
	return &Host{opts: opts, svc: svc, graph: svc.Acquire()}
}

// Options returns the effective settings.
func (h *Host) Options() Options { return h.opts }

// Graph returns the shared scene.
func (h *Host) Graph() *scene.Graph { return h.graph }

// Service returns the scene service.
func (h *Host) Service() *scene.Service { return h.svc }

func (h *Host) add(inst *Instance) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHostClosed
	}
	h.instances = append(h.instances, inst)
	return nil
}

// AddEmitter creates an emitter instance playing cfg.Source.
func (h *Host) AddEmitter(cfg config.EmitterConfig) (*Instance, error) {
	src, err := source.Open(cfg.Source, h.opts.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("open emitter source: %w", err)
	}
	name := cfg.Label
	if name == "" {
		name = src.Name()
	}
	inst := newInstance(h, name, scene.ModeEmitter)
	inst.emitter = newEmitterPart(cfg, source.NewPrefetcher(src, h.opts.BlockSize), h.opts)
	if err := h.add(inst); err != nil {
		inst.Close()
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"instance": inst.id,
		"name":     name,
		"source":   src.Name(),
	}).Info("emitter instance created")
	return inst, nil
}

// AddRenderer creates a renderer instance writing to opts.Sink.
func (h *Host) AddRenderer(opts RendererOptions) (*Instance, error) {
	if opts.Sink == nil {
		return nil, errors.New("renderer needs an output sink")
	}
	if opts.Name == "" {
		opts.Name = "renderer"
	}
	part, err := newRendererPart(opts, h.opts)
	if err != nil {
		return nil, err
	}
	inst := newInstance(h, opts.Name, scene.ModeRenderer)
	inst.renderer = part
	if err := h.add(inst); err != nil {
		inst.Close()
		return nil, err
	}
	fields := logrus.Fields{
		"instance": inst.id,
		"channels": h.opts.OutputChannels,
		"binaural": part.r.BinauralAvailable(),
	}
	if err := part.r.BackendError(); err != nil {
		fields["backend_error"] = err
	}
	logrus.WithFields(fields).Info("renderer instance created")
	return inst, nil
}

// Instances returns the instances in creation order.
func (h *Host) Instances() []*Instance {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Instance(nil), h.instances...)
}

// Renderer returns the first renderer instance, or nil.
func (h *Host) Renderer() *Instance {
	for _, inst := range h.Instances() {
		if inst.renderer != nil {
			return inst
		}
	}
	return nil
}

// Run runs every instance until ctx is done or one of them fails.
func (h *Host) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, inst := range h.Instances() {
		g.Go(func() error { return inst.Run(ctx) })
	}
	return g.Wait()
}

// Close releases every instance and the host's own scene reference.
func (h *Host) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	instances := h.instances
	h.mu.Unlock()

	for _, inst := range instances {
		inst.Close()
	}
	h.svc.Release()
	logrus.WithField("instances", len(instances)).Info("host closed")
}

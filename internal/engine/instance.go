// ABOUTME: One plugin instance bound to the shared scene graph
// ABOUTME: Runs the per-block registration sync and the emitter or renderer block loop
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/locusq/locusq-go/pkg/render"
	"github.com/locusq/locusq-go/pkg/scene"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyRunning is returned by a second concurrent Run.
var ErrAlreadyRunning = errors.New("instance already running")

// Instance is one plugin instance. Its Run goroutine plays the part of
// the host's real-time audio thread: it owns the Registration and the
// emitter or renderer state, and it is the only goroutine that touches
// them while running.
type Instance struct {
	id    uuid.UUID
	name  string
	kind  scene.Mode
	opts  Options
	svc   *scene.Service
	graph *scene.Graph
	reg   *scene.Registration
	mode  atomic.Uint32

	emitter  *emitterPart
	renderer *rendererPart

	blocks    atomic.Uint64
	running   atomic.Bool
	last      scene.RegistrationState
	closeOnce sync.Once
}

func newInstance(h *Host, name string, kind scene.Mode) *Instance {
	g := h.svc.Acquire()
	inst := &Instance{
		id:    uuid.New(),
		name:  name,
		kind:  kind,
		opts:  h.opts,
		svc:   h.svc,
		graph: g,
		reg:   scene.NewRegistration(g),
	}
	inst.last.EmitterSlot = -1
	inst.mode.Store(uint32(kind))
	return inst
}

// ID is the instance's unique id.
func (i *Instance) ID() uuid.UUID { return i.id }

// Name is the display name.
func (i *Instance) Name() string { return i.name }

// Kind is the role the instance was created for.
func (i *Instance) Kind() scene.Mode { return i.kind }

// Mode is the currently requested mode.
func (i *Instance) Mode() scene.Mode { return scene.Mode(i.mode.Load()) }

// SetMode requests a mode change, picked up at the next block. An
// instance can switch between its own role and calibrate.
func (i *Instance) SetMode(m scene.Mode) error {
	if m != i.kind && m != scene.ModeCalibrate {
		return fmt.Errorf("%s instance cannot run in %s mode", i.kind, m)
	}
	i.mode.Store(uint32(m))
	return nil
}

// Registration returns the last published registration state.
func (i *Instance) Registration() (scene.RegistrationState, bool) {
	return i.reg.Snapshot()
}

// Blocks counts processed blocks.
func (i *Instance) Blocks() uint64 { return i.blocks.Load() }

// Renderer returns the block renderer of a renderer instance, nil for an
// emitter.
func (i *Instance) Renderer() *render.Renderer {
	if i.renderer == nil {
		return nil
	}
	return i.renderer.r
}

// Underruns counts emitter blocks padded with silence.
func (i *Instance) Underruns() uint64 {
	if i.emitter == nil {
		return 0
	}
	return i.emitter.prefetch.Underruns()
}

// SourceName is the emitter's audio source, empty for a renderer.
func (i *Instance) SourceName() string {
	if i.emitter == nil {
		return ""
	}
	return i.emitter.prefetch.Source().Name()
}

// Run processes blocks until ctx is done and then releases every role.
func (i *Instance) Run(ctx context.Context) error {
	if !i.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer i.running.Store(false)
	defer i.release()

	if i.emitter != nil {
		return i.runEmitter(ctx)
	}
	return i.runRenderer(ctx)
}

// syncRegistration moves the registration toward the requested mode and
// logs when the outcome differs from the previous block.
func (i *Instance) syncRegistration() scene.RegistrationState {
	st := i.reg.Sync(i.Mode())
	i.logChange(st)
	return st
}

func (i *Instance) logChange(st scene.RegistrationState) {
	if st.Stage == i.last.Stage && st.FallbackReason == i.last.FallbackReason && st.EmitterSlot == i.last.EmitterSlot {
		i.last = st
		return
	}
	entry := logrus.WithFields(logrus.Fields{
		"instance":  i.name,
		"mode":      st.RequestedMode,
		"stage":     st.Stage,
		"slot":      st.EmitterSlot,
		"operation": st.LastOperation,
		"outcome":   st.LastOutcome,
	})
	if st.FallbackReason != scene.ReasonNone {
		entry.WithField("reason", st.FallbackReason).Warn("registration fell back")
	} else {
		entry.Info("registration changed")
	}
	i.last = st
}

func (i *Instance) release() {
	st := i.reg.Release()
	i.logChange(st)
}

// Close frees the instance's source or sink and its scene reference. Call
// it after Run has returned.
func (i *Instance) Close() {
	i.closeOnce.Do(func() {
		if !i.running.Load() {
			i.reg.Release()
		}
		if i.emitter != nil {
			if err := i.emitter.prefetch.Source().Close(); err != nil {
				logrus.WithError(err).WithField("instance", i.name).Warn("close emitter source")
			}
		}
		if i.renderer != nil {
			if err := i.renderer.sink.Close(); err != nil {
				logrus.WithError(err).WithField("instance", i.name).Warn("close output")
			}
		}
		i.svc.Release()
	})
}

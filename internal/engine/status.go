// ABOUTME: Point-in-time view of the host for the bridge and the dashboard
// ABOUTME: Scene occupancy, instance registration, emitter records and renderer diagnostics
package engine

import (
	"github.com/locusq/locusq-go/pkg/render"
	"github.com/locusq/locusq-go/pkg/scene"
	"github.com/locusq/locusq-go/pkg/spatial"
)

// InstanceStatus describes one instance.
type InstanceStatus struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	Kind         string                  `json:"kind"`
	Source       string                  `json:"source,omitempty"`
	Blocks       uint64                  `json:"blocks"`
	Underruns    uint64                  `json:"underruns"`
	Registration scene.RegistrationState `json:"registration"`
}

// EmitterStatus is the public part of an active slot.
type EmitterStatus struct {
	Slot       int          `json:"slot"`
	Label      string       `json:"label"`
	Position   spatial.Vec3 `json:"position"`
	Velocity   spatial.Vec3 `json:"velocity"`
	GainDB     float64      `json:"gainDb"`
	Spread     float64      `json:"spread"`
	ColorIndex uint8        `json:"colorIndex"`
	Muted      bool         `json:"muted"`
	Soloed     bool         `json:"soloed"`
}

// Status is a snapshot of the whole host. It is built off the audio
// threads and allocates freely.
type Status struct {
	SampleCounter   uint64              `json:"sampleCounter"`
	Capacity        int                 `json:"capacity"`
	ActiveEmitters  int                 `json:"activeEmitters"`
	RendererOwned   bool                `json:"rendererOwned"`
	ContentionCount uint64              `json:"contentionCount"`
	StaleOwnerCount uint64              `json:"staleOwnerCount"`
	Instances       []InstanceStatus    `json:"instances"`
	Emitters        []EmitterStatus     `json:"emitters"`
	Renderer        *render.Diagnostics `json:"renderer,omitempty"`
}

// Status collects the current state of the scene and every instance.
func (h *Host) Status() Status {
	g := h.graph
	st := Status{
		SampleCounter:   g.SampleCounter(),
		Capacity:        g.Capacity(),
		ActiveEmitters:  g.ActiveEmitterCount(),
		RendererOwned:   g.IsRendererOwned(),
		ContentionCount: g.ContentionCount(),
		StaleOwnerCount: g.StaleOwnerCount(),
		Instances:       []InstanceStatus{},
		Emitters:        []EmitterStatus{},
	}
	for _, inst := range h.Instances() {
		reg, _ := inst.Registration()
		st.Instances = append(st.Instances, InstanceStatus{
			ID:           inst.ID().String(),
			Name:         inst.Name(),
			Kind:         inst.Kind().String(),
			Source:       inst.SourceName(),
			Blocks:       inst.Blocks(),
			Underruns:    inst.Underruns(),
			Registration: reg,
		})
		if r := inst.Renderer(); r != nil && st.Renderer == nil {
			var d render.Diagnostics
			if r.Diagnostics(&d) {
				st.Renderer = &d
			}
		}
	}
	for i := 0; i < g.Capacity(); i++ {
		if !g.IsSlotActive(i) {
			continue
		}
		d, ok := g.Slot(i).Read()
		if !ok || !d.Active {
			continue
		}
		st.Emitters = append(st.Emitters, EmitterStatus{
			Slot:       i,
			Label:      d.Label.String(),
			Position:   d.Position,
			Velocity:   d.Velocity,
			GainDB:     d.GainDB,
			Spread:     d.Spread,
			ColorIndex: d.ColorIndex,
			Muted:      d.Muted,
			Soloed:     d.Soloed,
		})
	}
	return st
}

// ABOUTME: Per-instance registration tracker over the shared Graph
// ABOUTME: Mode-driven claim/release each block with seqlock-published diagnostics
package scene

import (
	"encoding/json"
	"sync/atomic"
)

// RegistrationSchema identifies the diagnostics layout for external tools.
const RegistrationSchema = "locusq-registration-lock-free-contract-v1"

// maxClaimBackoff caps how many blocks an instance waits between claim
// attempts after losing a race.
const maxClaimBackoff = 64

// Mode is the role an instance has been asked to play.
type Mode uint8

const (
	ModeCalibrate Mode = iota
	ModeEmitter
	ModeRenderer
)

func (m Mode) String() string {
	switch m {
	case ModeEmitter:
		return "emitter"
	case ModeRenderer:
		return "renderer"
	default:
		return "calibrate"
	}
}

// ParseMode maps a mode spelling back to its value.
func ParseMode(s string) (Mode, bool) {
	for _, m := range []Mode{ModeCalibrate, ModeEmitter, ModeRenderer} {
		if m.String() == s {
			return m, true
		}
	}
	return ModeCalibrate, false
}

// Stage summarises where registration stands for the requested mode.
type Stage uint8

const (
	StageIdle Stage = iota
	StageEmitterActive
	StageRendererActive
	StageEmitterUnregistered
	StageRendererUnregistered
)

func (s Stage) String() string {
	switch s {
	case StageEmitterActive:
		return "emitter_active"
	case StageRendererActive:
		return "renderer_active"
	case StageEmitterUnregistered:
		return "emitter_unregistered"
	case StageRendererUnregistered:
		return "renderer_unregistered"
	default:
		return "idle"
	}
}

// FallbackReason explains an unregistered stage.
type FallbackReason uint8

const (
	ReasonNone FallbackReason = iota
	ReasonSlotsExhausted
	ReasonRendererOwned
	ReasonReleaseIncomplete
	ReasonStaleOwner
)

func (r FallbackReason) String() string {
	switch r {
	case ReasonSlotsExhausted:
		return "emitter_slots_exhausted"
	case ReasonRendererOwned:
		return "renderer_already_owned"
	case ReasonReleaseIncomplete:
		return "release_incomplete"
	case ReasonStaleOwner:
		return "stale_owner"
	default:
		return "none"
	}
}

// RegistrationState is one instance's view of its roles.
type RegistrationState struct {
	RequestedMode   Mode
	Stage           Stage
	FallbackReason  FallbackReason
	EmitterSlot     int
	EmitterActive   bool
	RendererOwned   bool
	AmbiguityCount  uint64
	StaleOwnerCount uint64
	TransitionSeq   uint64
	LastOperation   Operation
	LastOutcome     Outcome
}

type registrationTransitionJSON struct {
	RequestedMode   string `json:"requestedMode"`
	Stage           string `json:"stage"`
	FallbackReason  string `json:"fallbackReason"`
	EmitterSlot     int    `json:"emitterSlot"`
	EmitterActive   bool   `json:"emitterActive"`
	RendererOwned   bool   `json:"rendererOwned"`
	AmbiguityCount  uint64 `json:"ambiguityCount"`
	StaleOwnerCount uint64 `json:"staleOwnerCount"`
	Seq             uint64 `json:"seq"`
}

// MarshalJSON emits the stable registration diagnostics keys.
func (s RegistrationState) MarshalJSON() ([]byte, error) {
	t := registrationTransitionJSON{
		RequestedMode:   s.RequestedMode.String(),
		Stage:           s.Stage.String(),
		FallbackReason:  s.FallbackReason.String(),
		EmitterSlot:     s.EmitterSlot,
		EmitterActive:   s.EmitterActive,
		RendererOwned:   s.RendererOwned,
		AmbiguityCount:  s.AmbiguityCount,
		StaleOwnerCount: s.StaleOwnerCount,
		Seq:             s.TransitionSeq,
	}
	return json.Marshal(struct {
		Schema          string                     `json:"registrationSchema"`
		TransitionSeq   uint64                     `json:"registrationTransitionSeq"`
		RequestedMode   string                     `json:"registrationRequestedMode"`
		Stage           string                     `json:"registrationStage"`
		FallbackReason  string                     `json:"registrationFallbackReason"`
		EmitterSlot     int                        `json:"registrationEmitterSlot"`
		EmitterActive   bool                       `json:"registrationEmitterActive"`
		RendererOwned   bool                       `json:"registrationRendererOwned"`
		AmbiguityCount  uint64                     `json:"registrationAmbiguityCount"`
		StaleOwnerCount uint64                     `json:"registrationStaleOwnerCount"`
		LastOperation   string                     `json:"registrationLastOperation"`
		LastOutcome     string                     `json:"registrationLastOutcome"`
		Transition      registrationTransitionJSON `json:"registrationTransition"`
	}{
		Schema:          RegistrationSchema,
		TransitionSeq:   s.TransitionSeq,
		RequestedMode:   t.RequestedMode,
		Stage:           t.Stage,
		FallbackReason:  t.FallbackReason,
		EmitterSlot:     s.EmitterSlot,
		EmitterActive:   s.EmitterActive,
		RendererOwned:   s.RendererOwned,
		AmbiguityCount:  s.AmbiguityCount,
		StaleOwnerCount: s.StaleOwnerCount,
		LastOperation:   s.LastOperation.String(),
		LastOutcome:     s.LastOutcome.String(),
		Transition:      t,
	})
}

const regWords = 5

// Registration drives one instance's claims against a Graph. Sync and
// Release belong to the instance's audio thread; Snapshot may be called
// from anywhere.
type Registration struct {
	graph    *Graph
	emitter  Token
	renderer Token
	state    RegistrationState
	backoff  int
	wait     int

	seq   atomic.Uint64
	words [regWords]atomic.Uint64
}

// NewRegistration returns an idle tracker for one instance.
func NewRegistration(g *Graph) *Registration {
	r := &Registration{graph: g}
	r.state.EmitterSlot = -1
	r.publish()
	return r
}

// EmitterToken returns the instance's emitter claim, if any.
func (r *Registration) EmitterToken() (Token, bool) {
	return r.emitter, r.emitter.Valid()
}

// RendererToken returns the instance's renderer claim, if any.
func (r *Registration) RendererToken() (Token, bool) {
	return r.renderer, r.renderer.Valid()
}

// Sync moves the instance toward mode. It performs at most one claim per
// role per call and backs off after contention, doubling the wait up to
// maxClaimBackoff calls.
func (r *Registration) Sync(mode Mode) RegistrationState {
	prev := r.state
	if mode != prev.RequestedMode {
		r.backoff, r.wait = 0, 0
	}
	r.state.RequestedMode = mode

	switch mode {
	case ModeEmitter:
		r.releaseRenderer()
		if r.emitter.Valid() && !r.graph.Owns(r.emitter) {
			r.state.StaleOwnerCount++
			r.emitter = Token{}
		}
		if !r.emitter.Valid() && r.ready() {
			t, out := r.graph.ClaimEmitterSlot()
			r.record(OpClaimEmitter, out)
			if out == Success {
				r.emitter = t
			}
		}
	case ModeRenderer:
		r.releaseEmitter()
		if r.renderer.Valid() && !r.graph.Owns(r.renderer) {
			r.state.StaleOwnerCount++
			r.renderer = Token{}
		}
		if !r.renderer.Valid() && r.ready() {
			t, out := r.graph.ClaimRenderer()
			r.record(OpClaimRenderer, out)
			if out == Success {
				r.renderer = t
			}
		}
	default:
		r.releaseEmitter()
		r.releaseRenderer()
	}

	r.derive()
	r.commit(prev)
	return r.state
}

// Release drops every role the instance holds. It is safe to call any
// number of times.
func (r *Registration) Release() RegistrationState {
	prev := r.state
	r.releaseEmitter()
	r.releaseRenderer()
	r.state.RequestedMode = ModeCalibrate
	r.derive()
	r.commit(prev)
	return r.state
}

// Snapshot reads the last published state. ok is false when the writer
// held the record for every retry.
func (r *Registration) Snapshot() (s RegistrationState, ok bool) {
	for i := 0; i < maxReadRetries; i++ {
		before := r.seq.Load()
		if before&1 == 1 {
			continue
		}
		w0 := r.words[0].Load()
		s.RequestedMode = Mode(w0)
		s.Stage = Stage(w0 >> 8)
		s.FallbackReason = FallbackReason(w0 >> 16)
		s.LastOperation = Operation(w0 >> 24)
		s.LastOutcome = Outcome(w0 >> 32)
		s.EmitterActive = w0&(1<<40) != 0
		s.RendererOwned = w0&(1<<41) != 0
		s.EmitterSlot = int(int64(r.words[1].Load()))
		s.AmbiguityCount = r.words[2].Load()
		s.StaleOwnerCount = r.words[3].Load()
		s.TransitionSeq = r.words[4].Load()
		if r.seq.Load() == before {
			return s, true
		}
	}
	return RegistrationState{}, false
}

func (r *Registration) ready() bool {
	if r.wait > 0 {
		r.wait--
		return false
	}
	return true
}

func (r *Registration) record(op Operation, out Outcome) {
	r.state.LastOperation = op
	r.state.LastOutcome = out
	switch out {
	case Contention:
		r.state.AmbiguityCount++
		if r.backoff == 0 {
			r.backoff = 1
		} else if r.backoff < maxClaimBackoff {
			r.backoff *= 2
		}
		r.wait = r.backoff
	case StateDrift:
		r.state.StaleOwnerCount++
	case Success:
		r.backoff, r.wait = 0, 0
	}
}

func (r *Registration) releaseEmitter() {
	if !r.emitter.Valid() {
		return
	}
	out := r.graph.ReleaseEmitterSlot(r.emitter)
	r.record(OpReleaseEmitter, out)
	if out != ReleaseIncomplete {
		r.emitter = Token{}
	}
}

func (r *Registration) releaseRenderer() {
	if !r.renderer.Valid() {
		return
	}
	out := r.graph.ReleaseRenderer(r.renderer)
	r.record(OpReleaseRenderer, out)
	if out != ReleaseIncomplete {
		r.renderer = Token{}
	}
}

func (r *Registration) derive() {
	r.state.EmitterActive = r.emitter.Valid()
	r.state.RendererOwned = r.renderer.Valid()
	r.state.EmitterSlot = -1
	if r.emitter.Valid() {
		r.state.EmitterSlot = r.emitter.Slot
	}

	r.state.FallbackReason = ReasonNone
	switch r.state.RequestedMode {
	case ModeEmitter:
		if r.state.EmitterActive {
			r.state.Stage = StageEmitterActive
		} else {
			r.state.Stage = StageEmitterUnregistered
			r.state.FallbackReason = ReasonSlotsExhausted
		}
	case ModeRenderer:
		if r.state.RendererOwned {
			r.state.Stage = StageRendererActive
		} else {
			r.state.Stage = StageRendererUnregistered
			r.state.FallbackReason = ReasonRendererOwned
		}
	default:
		r.state.Stage = StageIdle
	}
	switch r.state.LastOutcome {
	case ReleaseIncomplete:
		r.state.FallbackReason = ReasonReleaseIncomplete
	case StateDrift:
		r.state.FallbackReason = ReasonStaleOwner
	}
}

func (r *Registration) commit(prev RegistrationState) {
	transitioned := prev.RequestedMode != r.state.RequestedMode ||
		prev.Stage != r.state.Stage ||
		prev.FallbackReason != r.state.FallbackReason ||
		prev.EmitterSlot != r.state.EmitterSlot ||
		prev.EmitterActive != r.state.EmitterActive ||
		prev.RendererOwned != r.state.RendererOwned
	if transitioned {
		r.state.TransitionSeq++
	}
	if transitioned || prev != r.state {
		r.publish()
	}
}

func (r *Registration) publish() {
	s := &r.state
	w0 := uint64(s.RequestedMode) |
		uint64(s.Stage)<<8 |
		uint64(s.FallbackReason)<<16 |
		uint64(s.LastOperation)<<24 |
		uint64(s.LastOutcome)<<32
	if s.EmitterActive {
		w0 |= 1 << 40
	}
	if s.RendererOwned {
		w0 |= 1 << 41
	}
	r.seq.Add(1)
	r.words[0].Store(w0)
	r.words[1].Store(uint64(int64(s.EmitterSlot)))
	r.words[2].Store(s.AmbiguityCount)
	r.words[3].Store(s.StaleOwnerCount)
	r.words[4].Store(s.TransitionSeq)
	r.seq.Add(1)
}

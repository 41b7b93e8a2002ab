// ABOUTME: Emitter slot record with sequence-counter publication
// ABOUTME: Mono audio handoff buffer shared from an emitter to the renderer
package scene

import (
	"math"
	"strconv"
	"sync/atomic"

	"github.com/locusq/locusq-go/pkg/spatial"
)

const (
	// MaxAudioSamples bounds one block of handed-off emitter audio.
	MaxAudioSamples = 8192

	// LabelSize is the fixed label storage, including the terminating zero.
	LabelSize = 32

	// maxReadRetries bounds how long a reader chases a busy writer before
	// reporting no data for this block.
	maxReadRetries = 4
)

// SlotState is the lifecycle position of a slot.
type SlotState uint32

const (
	SlotFree SlotState = iota
	SlotInitializing
	SlotActive
	SlotRetiring
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotInitializing:
		return "initializing"
	case SlotActive:
		return "active"
	case SlotRetiring:
		return "retiring"
	default:
		return "unknown"
	}
}

// Label is a fixed-size, zero-terminated emitter name.
type Label [LabelSize]byte

// MakeLabel truncates s to fit a Label.
func MakeLabel(s string) Label {
	var l Label
	copy(l[:LabelSize-1], s)
	return l
}

func (l Label) String() string {
	for i, b := range l {
		if b == 0 {
			return string(l[:i])
		}
	}
	return string(l[:])
}

// EmitterData is everything an emitter publishes about itself each block.
type EmitterData struct {
	Active          bool
	Position        spatial.Vec3
	Size            spatial.Vec3
	GainDB          float64
	Spread          float64
	Directivity     float64
	Aim             spatial.Vec3
	Velocity        spatial.Vec3
	Force           spatial.Vec3
	CollisionMask   uint8
	CollisionEnergy float64
	Label           Label
	ColorIndex      uint8
	Muted           bool
	Soloed          bool
	PhysicsEnabled  bool
}

// DefaultEmitterData is the record written when slot is first claimed.
func DefaultEmitterData(slot int) EmitterData {
	return EmitterData{
		Active:      true,
		Position:    spatial.Vec3{Y: 1.2},
		Size:        spatial.Vec3{X: 0.5, Y: 0.5, Z: 0.5},
		Directivity: 0.5,
		Aim:         spatial.Vec3{Z: -1},
		Label:       defaultLabel(slot),
		ColorIndex:  ColorIndex(slot),
	}
}

// ColorIndex maps a slot to one of 16 palette entries through a seeded
// integer hash so neighbouring slots get unrelated colours.
func ColorIndex(slot int) uint8 {
	x := uint32(slot+1)*0x9e3779b1 ^ 0x7f4a7c15
	x ^= x >> 16
	x *= 0x85ebca6b
	x ^= x >> 13
	x *= 0xc2b2ae35
	x ^= x >> 16
	return uint8(x % 16)
}

func defaultLabel(slot int) Label {
	var l Label
	b := append(l[:0], "Emitter "...)
	_ = strconv.AppendInt(b, int64(slot+1), 10)
	return l
}

const (
	flagActive = 1 << iota
	flagMuted
	flagSoloed
	flagPhysics
)

const (
	wFlags = iota
	wPosition
	wSize        = wPosition + 3
	wGain        = wSize + 3
	wSpread      = wGain + 1
	wDirectivity = wSpread + 1
	wAim         = wDirectivity + 1
	wVelocity    = wAim + 3
	wForce       = wVelocity + 3
	wEnergy      = wForce + 3
	wLabel       = wEnergy + 1
	recordWords  = wLabel + LabelSize/8
)

// Slot is one entry of the Graph. Only the holder of the slot's claim
// token writes it; any instance may read it.
type Slot struct {
	index      int
	state      atomic.Uint32
	generation atomic.Uint32

	seq   atomic.Uint64
	words [recordWords]atomic.Uint64

	audioSeq atomic.Uint64
	audioLen atomic.Uint32
	audio    []atomic.Uint32
}

func (s *Slot) init(index int) {
	s.index = index
	s.audio = make([]atomic.Uint32, MaxAudioSamples)
}

// Index returns the slot's position in the Graph.
func (s *Slot) Index() int { return s.index }

// Generation returns the claim generation; it changes on every claim.
func (s *Slot) Generation() uint32 { return s.generation.Load() }

// State returns the slot's lifecycle state.
func (s *Slot) State() SlotState { return SlotState(s.state.Load()) }

func (s *Slot) ownedBy(t Token) bool {
	return t.Valid() && t.Role == RoleEmitter && t.Slot == s.index &&
		s.State() == SlotActive && s.generation.Load() == t.Generation
}

// WriteAs publishes d when t is the slot's current claim. A superseded or
// foreign token writes nothing and reports false.
func (s *Slot) WriteAs(t Token, d EmitterData) bool {
	if !s.ownedBy(t) {
		return false
	}
	s.Write(d)
	return true
}

// WriteAudioAs is WriteAudio gated on t like WriteAs.
func (s *Slot) WriteAudioAs(t Token, channels [][]float32, n int) bool {
	if !s.ownedBy(t) {
		return false
	}
	s.WriteAudio(channels, n)
	return true
}

// Write publishes d. Readers that overlap the write retry or skip.
func (s *Slot) Write(d EmitterData) {
	s.seq.Add(1)
	s.storeRecord(&d)
	s.seq.Add(1)
}

// Read returns the last complete record. ok is false when a writer kept
// the record busy for every retry.
func (s *Slot) Read() (d EmitterData, ok bool) {
	for i := 0; i < maxReadRetries; i++ {
		before := s.seq.Load()
		if before&1 == 1 {
			continue
		}
		s.loadRecord(&d)
		if s.seq.Load() == before {
			return d, true
		}
	}
	return EmitterData{}, false
}

func (s *Slot) storeRecord(d *EmitterData) {
	var flags uint64
	if d.Active {
		flags |= flagActive
	}
	if d.Muted {
		flags |= flagMuted
	}
	if d.Soloed {
		flags |= flagSoloed
	}
	if d.PhysicsEnabled {
		flags |= flagPhysics
	}
	flags |= uint64(d.ColorIndex) << 8
	flags |= uint64(d.CollisionMask) << 16
	s.words[wFlags].Store(flags)

	s.storeVec(wPosition, d.Position)
	s.storeVec(wSize, d.Size)
	s.storeFloat(wGain, d.GainDB)
	s.storeFloat(wSpread, d.Spread)
	s.storeFloat(wDirectivity, d.Directivity)
	s.storeVec(wAim, d.Aim)
	s.storeVec(wVelocity, d.Velocity)
	s.storeVec(wForce, d.Force)
	s.storeFloat(wEnergy, d.CollisionEnergy)

	for i := 0; i < LabelSize/8; i++ {
		var w uint64
		for b := 0; b < 8; b++ {
			w |= uint64(d.Label[i*8+b]) << (8 * b)
		}
		s.words[wLabel+i].Store(w)
	}
}

func (s *Slot) loadRecord(d *EmitterData) {
	flags := s.words[wFlags].Load()
	d.Active = flags&flagActive != 0
	d.Muted = flags&flagMuted != 0
	d.Soloed = flags&flagSoloed != 0
	d.PhysicsEnabled = flags&flagPhysics != 0
	d.ColorIndex = uint8(flags >> 8)
	d.CollisionMask = uint8(flags >> 16)

	d.Position = s.loadVec(wPosition)
	d.Size = s.loadVec(wSize)
	d.GainDB = s.loadFloat(wGain)
	d.Spread = s.loadFloat(wSpread)
	d.Directivity = s.loadFloat(wDirectivity)
	d.Aim = s.loadVec(wAim)
	d.Velocity = s.loadVec(wVelocity)
	d.Force = s.loadVec(wForce)
	d.CollisionEnergy = s.loadFloat(wEnergy)

	for i := 0; i < LabelSize/8; i++ {
		w := s.words[wLabel+i].Load()
		for b := 0; b < 8; b++ {
			d.Label[i*8+b] = byte(w >> (8 * b))
		}
	}
}

func (s *Slot) storeFloat(at int, v float64) { s.words[at].Store(math.Float64bits(v)) }
func (s *Slot) loadFloat(at int) float64 { return math.Float64frombits(s.words[at].Load()) }

func (s *Slot) storeVec(at int, v spatial.Vec3) {
	s.storeFloat(at, v.X)
	s.storeFloat(at+1, v.Y)
	s.storeFloat(at+2, v.Z)
}

func (s *Slot) loadVec(at int) spatial.Vec3 {
	return spatial.Vec3{X: s.loadFloat(at), Y: s.loadFloat(at + 1), Z: s.loadFloat(at + 2)}
}

// WriteAudio downmixes the first n frames of channels to mono and hands
// them to readers. Frames past MaxAudioSamples are dropped.
func (s *Slot) WriteAudio(channels [][]float32, n int) {
	if n > MaxAudioSamples {
		n = MaxAudioSamples
	}
	if len(channels) == 0 || n < 0 {
		n = 0
	}
	for _, ch := range channels {
		if len(ch) < n {
			n = len(ch)
		}
	}
	scale := float32(1)
	if len(channels) > 1 {
		scale = 1 / float32(len(channels))
	}

	s.audioSeq.Add(1)
	for i := 0; i < n; i++ {
		var sum float32
		for _, ch := range channels {
			sum += ch[i]
		}
		s.audio[i].Store(math.Float32bits(sum * scale))
	}
	s.audioLen.Store(uint32(n))
	s.audioSeq.Add(1)
}

// ClearAudio withdraws the handed-off block.
func (s *Slot) ClearAudio() {
	s.audioSeq.Add(1)
	s.audioLen.Store(0)
	s.audioSeq.Add(1)
}

// ReadAudio copies the current mono block into dst and returns the frame
// count. ok is false when no complete block could be read.
func (s *Slot) ReadAudio(dst []float32) (n int, ok bool) {
	for i := 0; i < maxReadRetries; i++ {
		before := s.audioSeq.Load()
		if before&1 == 1 {
			continue
		}
		n = int(s.audioLen.Load())
		if n > len(dst) {
			n = len(dst)
		}
		for j := 0; j < n; j++ {
			dst[j] = math.Float32frombits(s.audio[j].Load())
		}
		if s.audioSeq.Load() == before {
			return n, n > 0
		}
	}
	return 0, false
}

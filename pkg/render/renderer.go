// ABOUTME: Block renderer: emitter selection, per-emitter chain, room and topology output
// ABOUTME: Runs on the renderer instance's audio thread without allocating or locking
package render

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/locusq/locusq-go/pkg/audio"
	"github.com/locusq/locusq-go/pkg/profile"
	"github.com/locusq/locusq-go/pkg/scene"
	"github.com/locusq/locusq-go/pkg/snapshot"
	"github.com/locusq/locusq-go/pkg/spatial"
)

// Selection gates.
const (
	// Emitters whose gain times distance gain falls below this are not
	// worth ranking.
	priorityGate = 1e-5
	// A block whose peak is below this counts as inactive.
	activityGate = 1e-6
)

type emitterState struct {
	generation uint32
	primed     bool
	mono       []float32
	air        AirAbsorption
	shelf      DirectivityShelf
	doppler    Doppler
	gains      [spatial.NumSpeakers]ramp
}

type candidate struct {
	slot     int
	distance float64
}

// Renderer turns the active emitters of a scene.Graph into host output.
// Prepare must be called before Process; both belong to the audio thread.
type Renderer struct {
	controls *Controls
	backend  *Adapter
	panner   *spatial.Panner

	sampleRate float64
	maxBlock   int
	prepared   bool
	backendErr error

	emitters   []emitterState
	records    []scene.EmitterData
	readable   []bool
	candidates []candidate
	selected   []int
	processed  []int

	bed        *audio.Block
	rotated    *audio.Block
	binauralL  []float32
	binauralR  []float32
	delayLines [spatial.NumSpeakers][]float32
	delayWrite int

	reflections EarlyReflections
	fdn         FDN
	compensate  HeadphoneCompensation
	calibration CalibrationChain
	loadedCal   *Calibration
	master      ramp

	params  blockParams
	diag    Diagnostics
	frameID uint64
	publish snapshot.DoubleBuffer[Diagnostics]
}

// New returns a renderer that uses backend for binaural headphone output.
// A nil backend means binaural rendering is unavailable.
func New(backend BinauralBackend) *Renderer {
	return &Renderer{
		controls: NewControls(),
		backend:  NewAdapter(backend),
		panner:   spatial.NewPanner(),
	}
}

// Controls returns the live parameter block.
func (r *Renderer) Controls() *Controls { return r.controls }

// Prepare allocates every buffer the audio path uses for blocks of up to
// maxBlock frames and scenes of up to capacity slots. A backend that
// fails to prepare leaves the renderer usable without binaural output;
// see BackendError.
func (r *Renderer) Prepare(sampleRate float64, maxBlock, capacity int) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || maxBlock <= 0 || capacity <= 0 {
		return fmt.Errorf("prepare renderer: rate %v block %d capacity %d", sampleRate, maxBlock, capacity)
	}
	r.sampleRate = sampleRate
	r.maxBlock = maxBlock

	r.emitters = make([]emitterState, capacity)
	for i := range r.emitters {
		e := &r.emitters[i]
		e.mono = make([]float32, maxBlock)
		e.air.Prepare(sampleRate)
		e.shelf.Prepare(sampleRate)
		e.doppler.Prepare(maxBlock)
		for s := range e.gains {
			e.gains[s].prepare(sampleRate, 0)
		}
	}
	r.records = make([]scene.EmitterData, capacity)
	r.readable = make([]bool, capacity)
	r.candidates = make([]candidate, 0, capacity)
	r.selected = make([]int, 0, capacity)
	r.processed = make([]int, 0, capacity)

	r.bed = audio.NewBlock(spatial.NumSpeakers, maxBlock)
	r.rotated = audio.NewBlock(spatial.NumSpeakers, maxBlock)
	r.binauralL = make([]float32, maxBlock)
	r.binauralR = make([]float32, maxBlock)
	lineLen := int(sampleRate*scene.MaxDelayCompMs/1000) + maxBlock + 1
	for i := range r.delayLines {
		r.delayLines[i] = make([]float32, lineLen)
	}
	r.delayWrite = 0

	r.reflections.Prepare(sampleRate, maxBlock)
	r.fdn.Prepare(sampleRate)
	r.compensate.Prepare(sampleRate)
	r.calibration.SetIdentity()
	r.loadedCal = nil
	r.master.prepare(sampleRate, 1)

	r.backendErr = r.backend.Prepare(sampleRate, maxBlock)
	r.prepared = true
	return nil
}

// BackendError is the binaural backend's Prepare failure, if any. The
// renderer runs without binaural output when it is non-nil.
func (r *Renderer) BackendError() error { return r.backendErr }

// BinauralAvailable reports whether the backend can render.
func (r *Renderer) BinauralAvailable() bool { return r.backend.Available() }

// ProcessedSlots appends the slot indices rendered by the last Process
// call to dst in ascending order. Call it from the goroutine that runs
// Process.
func (r *Renderer) ProcessedSlots(dst []int) []int { return append(dst, r.processed...) }

// Diagnostics copies the last published block report into dst.
func (r *Renderer) Diagnostics(dst *Diagnostics) bool { return r.publish.Load(dst) }

// Process renders n frames of g into out. Frames past the prepared block
// size are left silent.
func (r *Renderer) Process(out *audio.Block, n int, g *scene.Graph, head HeadPose) {
	ch := out.NumChannels()
	out.Clear(out.Frames)
	if !r.prepared || n <= 0 {
		return
	}
	n = min(n, r.maxBlock, out.Frames)

	p := &r.params
	r.controls.load(p)
	r.bed.Clear(n)

	d := &r.diag
	*d = Diagnostics{OutputChannels: ch}
	r.frameID++
	d.FrameID = r.frameID
	d.TimestampSamples = g.SampleCounter()

	room := g.RoomProfile()
	var listener spatial.Vec3
	if room != nil && room.Valid {
		listener = room.ListenerPosition
	}

	r.renderEmitters(g, n, listener)
	for s := range r.bed.Channels {
		d.NonFinite += audio.Sanitize(r.bed.Channels[s][:n])
	}
	r.applyRoom(n, room)
	r.writeOutput(out, n, head)

	for c := 0; c < ch; c++ {
		d.NonFinite += audio.Sanitize(out.Channels[c][:n])
	}
	d.CodecFinite = d.NonFinite == 0
	d.CodecSignature = codecSignature(
		d.FrameID, d.TimestampSamples, uint64(profile.CodecModeOf(d.Resolution.Requested)),
		uint64(d.Resolution.Active), uint64(d.Resolution.Stage), uint64(ch),
		uint64(d.AmbiOrder()))

	g.AdvanceSampleCounter(n)
	r.publish.Publish(d)
}

func (r *Renderer) renderEmitters(g *scene.Graph, n int, listener spatial.Vec3) {
	p := &r.params
	d := &r.diag
	capacity := min(g.Capacity(), len(r.emitters))

	anySolo := false
	for i := 0; i < capacity; i++ {
		r.readable[i] = false
		if !g.IsSlotActive(i) {
			continue
		}
		rec, ok := g.Slot(i).Read()
		if !ok || !rec.Active {
			continue
		}
		r.records[i] = rec
		r.readable[i] = true
		if rec.Soloed {
			anySolo = true
		}
	}

	r.candidates = r.candidates[:0]
	for i := 0; i < capacity; i++ {
		if !r.readable[i] {
			continue
		}
		rec := &r.records[i]
		if rec.Muted || (anySolo && !rec.Soloed) || rec.GainDB <= audio.SilenceDB {
			continue
		}
		dist := spatial.Distance(rec.Position.Sub(listener))
		if math.IsNaN(dist) || math.IsInf(dist, 0) {
			continue
		}
		if audio.DBToGain(rec.GainDB)*p.attenuator.Gain(dist) < priorityGate {
			continue
		}
		r.candidates = append(r.candidates, candidate{slot: i, distance: dist})
	}
	d.Eligible = len(r.candidates)

	slices.SortFunc(r.candidates, func(a, b candidate) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return cmp.Compare(a.slot, b.slot)
	})
	keep := min(p.budget, len(r.candidates))
	d.CulledBudget = len(r.candidates) - keep
	d.GuardrailActive = len(r.candidates) > p.budget

	r.selected = r.selected[:0]
	for _, c := range r.candidates[:keep] {
		r.selected = append(r.selected, c.slot)
	}
	slices.Sort(r.selected)

	r.processed = r.processed[:0]
	for _, i := range r.selected {
		e := &r.emitters[i]
		slot := g.Slot(i)
		if gen := slot.Generation(); gen != e.generation {
			e.generation = gen
			e.reset()
		}
		got, ok := slot.ReadAudio(e.mono[:n])
		// Scrub before any stateful stage so one bad sample cannot latch
		// into filter memory.
		d.NonFinite += audio.Sanitize(e.mono[:got])
		if !ok || audio.Peak(e.mono[:got]) < activityGate {
			d.CulledActivity++
			continue
		}
		clear(e.mono[got:n])
		r.renderEmitter(e, &r.records[i], n, listener)
		r.processed = append(r.processed, i)
		d.Processed++
	}
}

func (e *emitterState) reset() {
	e.primed = false
	e.air.Reset()
	e.shelf.Reset()
	e.doppler.Reset()
}

func (r *Renderer) renderEmitter(e *emitterState, rec *scene.EmitterData, n int, listener spatial.Vec3) {
	p := &r.params
	buf := e.mono[:n]
	rel := rec.Position.Sub(listener)
	dist := spatial.Distance(rel)

	gain := float32(audio.DBToGain(rec.GainDB))
	for i := range buf {
		buf[i] *= gain
	}
	if p.airEnabled {
		e.air.SetDistance(dist)
		e.air.Process(buf)
	}
	if p.dopplerScale > 0 {
		e.doppler.Process(buf, rel, rec.Velocity, p.dopplerScale)
	}
	e.shelf.Process(buf, HighGain(rec.Directivity, Cardioid(rec.Aim, rel.Neg())))

	pan := r.panner.GainsWithElevation(spatial.Azimuth(rel), spatial.Elevation(rel))
	pan = Spread(pan, rec.Spread)
	distGain := p.attenuator.Gain(dist)
	for s := range e.gains {
		target := float32(pan[s] * distGain)
		if !e.primed {
			e.gains[s].snap(target)
		} else {
			e.gains[s].setTarget(target)
		}
	}
	e.primed = true

	for s := range e.gains {
		g := &e.gains[s]
		dst := r.bed.Channels[s][:n]
		for i, x := range buf {
			dst[i] += x * g.next()
		}
	}
}

func (r *Renderer) applyRoom(n int, room *scene.RoomProfile) {
	p := &r.params
	if p.roomEnabled {
		r.reflections.Configure(p.roomSize, p.damping, p.reverbMix, p.highQuality)
		r.reflections.Process(r.bed, n)
		if !p.erOnly {
			r.fdn.Configure(p.roomSize, p.damping, p.reverbMix, p.highQuality)
			r.fdn.Process(r.bed, n)
		}
	}

	var delays [spatial.NumSpeakers]int
	var trims [spatial.NumSpeakers]float32
	for s := range trims {
		trims[s] = 1
	}
	if room != nil && room.Valid {
		for s, spk := range room.Speakers {
			delays[s] = int(math.Round(spk.DelayCompMs * r.sampleRate / 1000))
			trims[s] = float32(audio.DBToGain(spk.GainTrimDB))
		}
	}

	size := len(r.delayLines[0])
	for s := range r.delayLines {
		line := r.delayLines[s]
		delay := min(delays[s], size-1)
		data := r.bed.Channels[s][:n]
		w := r.delayWrite
		for i, x := range data {
			line[w] = x
			rp := w - delay
			if rp < 0 {
				rp += size
			}
			data[i] = line[rp] * trims[s]
			w++
			if w >= size {
				w = 0
			}
		}
	}
	r.delayWrite = (r.delayWrite + n) % size
}

func (r *Renderer) writeOutput(out *audio.Block, n int, head HeadPose) {
	p := &r.params
	d := &r.diag
	ch := out.NumChannels()

	d.Resolution = profile.Resolve(p.profile, ch, profile.InternalSpeakers)
	d.Writer = SelectWriter(d.Resolution.Active, ch)
	d.BinauralAvailable = r.backend.Available()
	d.Headphone = profile.NegotiateHeadphone(p.headphoneMode, d.Resolution.Active, ch, d.BinauralAvailable)
	d.HeadPoseAvailable = head.Valid && head.Orientation.IsFinite()
	d.HeadPoseStale = d.HeadPoseAvailable && head.Stale
	d.Tracking = head.Tracking
	if d.HeadPoseAvailable {
		d.HeadOrientation = head.Orientation
	}

	d.HeadphoneDeviceRequested = p.headphoneDevice
	d.HeadphoneDeviceActive = profile.ActiveDevice(p.headphoneDevice, ch)
	r.compensate.SetDevice(d.HeadphoneDeviceActive)
	r.syncCalibration()
	d.CalibrationRequested = p.calibrationOn
	d.CalibrationActive = ch >= 2 && r.calibration.Active()
	d.CalibrationLatency = 0
	if d.CalibrationActive {
		d.CalibrationLatency = r.calibration.LatencySamples()
	}

	// The bed the stereo family reads, rotated by the listener's head when
	// the headphone path is in use.
	src := r.bed
	d.HeadPoseApplied = d.HeadPoseAvailable && d.Headphone.Allowed && ch >= 2 && ch < spatial.NumSpeakers
	if d.HeadPoseApplied {
		mix := MixFor(head.Orientation)
		for i := 0; i < n; i++ {
			fl, fr, rr, rl := mix.Apply(bedFrame(r.bed, i))
			r.rotated.Channels[spatial.SpeakerFL][i] = fl
			r.rotated.Channels[spatial.SpeakerFR][i] = fr
			r.rotated.Channels[spatial.SpeakerRR][i] = rr
			r.rotated.Channels[spatial.SpeakerRL][i] = rl
		}
		src = r.rotated
	}

	rendered := false
	if d.Headphone.Active == profile.SteamBinaural {
		quad := [spatial.NumSpeakers][]float32{
			src.Channels[spatial.SpeakerFL][:n],
			src.Channels[spatial.SpeakerFR][:n],
			src.Channels[spatial.SpeakerRL][:n],
			src.Channels[spatial.SpeakerRR][:n],
		}
		rendered = r.backend.Render(quad, r.binauralL, r.binauralR, n, nil)
	}
	d.Headphone = d.Headphone.AfterRender(rendered)

	r.master.setTarget(p.masterGain)
	for i := 0; i < n; i++ {
		gain := r.master.next()
		switch d.Writer {
		case Writer742, Writer721, Writer521:
			writeSurround(d.Writer, r.bed, out, i, gain)
		case WriterFOA:
			writeFOA(r.bed, out, i, gain)
		case WriterQuad:
			writeQuad(r.bed, out, i, gain)
		case WriterStereo:
			var left, right float32
			switch {
			case rendered:
				left, right = r.binauralL[i], r.binauralR[i]
			case d.Resolution.Active == profile.Virtual3dStereo:
				left, right = Virtual3d(bedFrame(src, i))
			case d.Resolution.Active.IsAmbisonic():
				left, right = AmbiStereo(bedFrame(src, i))
			default:
				left, right = Downmix(bedFrame(src, i))
			}
			left, right = r.compensate.ProcessSample(left, right)
			left, right = r.calibration.ProcessSample(left, right)
			out.Channels[0][i] = left * gain
			out.Channels[1][i] = right * gain
			zeroFrom(out, 2, i)
		case WriterMono:
			writeMono(r.bed, out, i, gain)
		}
	}
}

// syncCalibration installs a new curve published through Controls.
func (r *Renderer) syncCalibration() {
	p := &r.params
	r.calibration.SetEnabled(p.calibrationOn)
	if p.calibration == r.loadedCal {
		return
	}
	r.loadedCal = p.calibration
	if p.calibration == nil || !p.calibration.Valid(r.sampleRate) {
		r.calibration.SetIdentity()
		return
	}
	// Validated above, so LoadBands cannot fail here.
	_ = r.calibration.LoadBands(r.sampleRate, p.calibration.PreampDB, p.calibration.Bands)
}

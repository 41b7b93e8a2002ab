// ABOUTME: Room acoustics on the internal speaker bed
// ABOUTME: Early reflection taps and a feedback delay network late reverb
package render

import (
	"math"

	"github.com/locusq/locusq-go/pkg/audio"
	"github.com/locusq/locusq-go/pkg/spatial"
)

// Room size bounds shared by both stages.
const (
	RoomSizeMin = 0.5
	RoomSizeMax = 5.0
)

var (
	erDraftMs = []float64{7, 13, 19, 29, 41, 53, 67, 83}
	erHighMs  = []float64{7, 13, 19, 29, 41, 53, 67, 83, 101, 127, 149, 173, 197, 223, 251, 281}
)

const erMaxTaps = 16

// EarlyReflections adds a fixed multi-tap echo pattern per speaker.
type EarlyReflections struct {
	sampleRate float64
	lines      [spatial.NumSpeakers][]float32
	write      [spatial.NumSpeakers]int

	numTaps  int
	tapDelay [erMaxTaps]int
	tapGain  [erMaxTaps]float32
	mix      float32
	roomSize float64
	damping  float64
	high     bool
}

// Prepare allocates two seconds of history per speaker.
func (e *EarlyReflections) Prepare(sampleRate float64, maxBlock int) {
	e.sampleRate = sampleRate
	size := max(maxBlock*8, int(sampleRate*2))
	for i := range e.lines {
		e.lines[i] = make([]float32, size)
	}
	if e.roomSize == 0 {
		e.roomSize = 1
		e.damping = 0.5
		e.mix = 0.3
	}
	e.Reset()
	e.updateTaps()
}

// Reset clears the delay lines.
func (e *EarlyReflections) Reset() {
	for i := range e.lines {
		clear(e.lines[i])
		e.write[i] = 0
	}
}

// Configure updates room size, damping, mix and quality. Tap tables are
// recomputed only when something changed.
func (e *EarlyReflections) Configure(roomSize, damping, mix float64, high bool) {
	roomSize = spatial.Clamp(roomSize, RoomSizeMin, RoomSizeMax)
	damping = spatial.Clamp(damping, 0, 1)
	e.mix = float32(spatial.Clamp(mix, 0, 1))
	if roomSize == e.roomSize && damping == e.damping && high == e.high {
		return
	}
	e.roomSize, e.damping, e.high = roomSize, damping, high
	e.updateTaps()
}

func (e *EarlyReflections) updateTaps() {
	base := erDraftMs
	if e.high {
		base = erHighMs
	}
	e.numTaps = len(base)
	dampScale := 1 - e.damping*0.65
	for tap, ms := range base {
		e.tapDelay[tap] = max(1, int(ms*e.roomSize*0.001*e.sampleRate))
		e.tapGain[tap] = float32(math.Pow(0.72, float64(tap+1)) * dampScale)
	}
}

// Process adds reflections to the first n frames of the bed in place.
func (e *EarlyReflections) Process(bed *audio.Block, n int) {
	if e.mix <= 0 {
		return
	}
	for ch := 0; ch < min(spatial.NumSpeakers, bed.NumChannels()); ch++ {
		line := e.lines[ch]
		size := len(line)
		if size == 0 {
			continue
		}
		wp := e.write[ch]
		data := bed.Channels[ch][:n]
		for i, dry := range data {
			line[wp] = dry
			var wet float32
			for tap := 0; tap < e.numTaps; tap++ {
				rp := wp - e.tapDelay[tap]
				if rp < 0 {
					rp += size
				}
				wet += line[rp] * e.tapGain[tap]
			}
			data[i] = dry + wet*e.mix
			wp++
			if wp >= size {
				wp = 0
			}
		}
		e.write[ch] = wp
	}
}

const (
	fdnLines        = 8
	fdnRefRate      = 44100.0
	fdnMinDelay     = 64
	fdnMaxModDepth  = 48.0
	fdnPhaseSpacing = 0.53125
)

var (
	fdnDraftDelays = [spatial.NumSpeakers]int{1499, 1877, 2137, 2557}
	fdnHighDelays  = [fdnLines]int{1423, 1777, 2137, 2557, 2879, 3251, 3623, 3989}
	fdnModRatesHz  = [fdnLines]float64{0.071, 0.089, 0.103, 0.127, 0.149, 0.167, 0.191, 0.223}
)

// FDN is a 4-line (draft) or 8-line modulated (high quality) feedback
// delay network with Hadamard mixing and per-line damping.
type FDN struct {
	sampleRate float64
	lines      [fdnLines][]float32
	write      [fdnLines]int
	delay      [fdnLines]int
	feedback   [fdnLines]float32
	damp       [fdnLines]float32
	phase      [fdnLines]float64
	lfoInc     [fdnLines]float64
	modDepth   [fdnLines]float64

	dampCoef  float32
	injection float32
	mix       float32
	roomSize  float64
	damping   float64
	high      bool
}

// Prepare sizes the delay lines for the largest room at sampleRate.
func (f *FDN) Prepare(sampleRate float64) {
	f.sampleRate = math.Max(1, sampleRate)
	scale := f.sampleRate / fdnRefRate
	need := int(float64(fdnHighDelays[fdnLines-1])*RoomSizeMax*scale+fdnMaxModDepth*scale) + 4
	size := 1
	for size < need {
		size <<= 1
	}
	for i := range f.lines {
		f.lines[i] = make([]float32, size)
	}
	if f.roomSize == 0 {
		f.roomSize = 1
		f.damping = 0.5
		f.mix = 0.3
	}
	f.configureDelays()
	f.updateCoefficients()
	f.Reset()
}

// Reset clears lines, damping state and LFO phases.
func (f *FDN) Reset() {
	for i := range f.lines {
		clear(f.lines[i])
		f.write[i] = 0
		f.damp[i] = 0
		f.phase[i] = fdnPhaseSpacing * float64(i+1)
	}
}

// Configure updates the network; coefficients are rebuilt only on change.
func (f *FDN) Configure(roomSize, damping, mix float64, high bool) {
	roomSize = spatial.Clamp(roomSize, RoomSizeMin, RoomSizeMax)
	damping = spatial.Clamp(damping, 0, 1)
	f.mix = float32(spatial.Clamp(mix, 0, 1))
	if roomSize == f.roomSize && damping == f.damping && high == f.high {
		return
	}
	qualityChanged := high != f.high
	f.roomSize, f.damping, f.high = roomSize, damping, high
	f.configureDelays()
	f.updateCoefficients()
	if qualityChanged {
		for i := range f.phase {
			f.phase[i] = fdnPhaseSpacing * float64(i+1)
		}
	}
}

func (f *FDN) activeLines() int {
	if f.high {
		return fdnLines
	}
	return spatial.NumSpeakers
}

func (f *FDN) maxDelay() int {
	return len(f.lines[0]) - 2
}

func (f *FDN) configureDelays() {
	scale := f.sampleRate / fdnRefRate
	active := f.activeLines()
	for i := range f.delay {
		base := fdnMinDelay
		if i < active {
			if f.high {
				base = fdnHighDelays[i]
			} else {
				base = fdnDraftDelays[i]
			}
		}
		d := int(math.Round(float64(base) * f.roomSize * scale))
		f.delay[i] = max(fdnMinDelay, min(d, f.maxDelay()))
	}
}

func (f *FDN) updateCoefficients() {
	roomNorm := spatial.Clamp((f.roomSize-RoomSizeMin)/(RoomSizeMax-RoomSizeMin), 0, 1)
	baseRT60 := 0.9 + roomNorm*2.4
	if f.high {
		baseRT60 = 1.6 + roomNorm*4.6
	}
	rt60 := math.Max(0.25, baseRT60*(1-f.damping*0.45))
	f.dampCoef = float32(spatial.Clamp(0.82-f.damping*0.64, 0.08, 0.92))
	f.injection = 0.58
	if f.high {
		f.injection = 0.42
	}

	scale := f.sampleRate / fdnRefRate
	active := f.activeLines()
	for i := range f.feedback {
		if i >= active {
			f.feedback[i] = 0
			f.lfoInc[i] = 0
			f.modDepth[i] = 0
			f.damp[i] = 0
			continue
		}
		seconds := float64(f.delay[i]) / f.sampleRate
		f.feedback[i] = float32(spatial.Clamp(math.Pow(10, -3*seconds/rt60), 0.15, 0.985))

		var depth, rate float64
		if f.high {
			rate = fdnModRatesHz[i]
			depth = (2 + roomNorm*18) * (1 - f.damping*0.65) * scale
		}
		f.modDepth[i] = spatial.Clamp(depth, 0, fdnMaxModDepth*scale)
		f.lfoInc[i] = 2 * math.Pi * rate / f.sampleRate
	}
}

// FeedbackGain returns line i's feedback coefficient.
func (f *FDN) FeedbackGain(i int) float32 { return f.feedback[i] }

func (f *FDN) read(i int) float32 {
	line := f.lines[i]
	size := len(line)
	d := float64(f.delay[i])
	if f.modDepth[i] > 0 {
		d += math.Sin(f.phase[i]) * f.modDepth[i]
	}
	d = spatial.Clamp(d, fdnMinDelay, float64(size-2))
	rp := float64(f.write[i]) - d
	for rp < 0 {
		rp += float64(size)
	}
	a := int(rp)
	b := a + 1
	if b >= size {
		b = 0
	}
	frac := float32(rp - float64(a))
	return line[a] + (line[b]-line[a])*frac
}

func (f *FDN) advance(i int) {
	f.write[i]++
	if f.write[i] >= len(f.lines[i]) {
		f.write[i] = 0
	}
	f.phase[i] += f.lfoInc[i]
	if f.phase[i] >= 2*math.Pi {
		f.phase[i] -= 2 * math.Pi
	}
}

func hadamard8(v *[fdnLines]float32) {
	for stride := 1; stride < fdnLines; stride <<= 1 {
		for base := 0; base < fdnLines; base += stride << 1 {
			for i := 0; i < stride; i++ {
				a, b := v[base+i], v[base+i+stride]
				v[base+i] = a + b
				v[base+i+stride] = a - b
			}
		}
	}
	for i := range v {
		v[i] *= 0.35355339
	}
}

func hadamard4(v *[fdnLines]float32) {
	x0, x1, x2, x3 := v[0], v[1], v[2], v[3]
	v[0] = 0.5 * (x0 + x1 + x2 + x3)
	v[1] = 0.5 * (x0 - x1 + x2 - x3)
	v[2] = 0.5 * (x0 + x1 - x2 - x3)
	v[3] = 0.5 * (x0 - x1 - x2 + x3)
}

// Process mixes late reverb into the first n frames of the bed in place.
func (f *FDN) Process(bed *audio.Block, n int) {
	if f.mix <= 0 || bed.NumChannels() < spatial.NumSpeakers || len(f.lines[0]) == 0 {
		return
	}
	dryMix := 1 - f.mix
	active := f.activeLines()
	const norm = 0.70710678

	for i := 0; i < n; i++ {
		var dry [spatial.NumSpeakers]float32
		for ch := range dry {
			dry[ch] = bed.Channels[ch][i]
		}
		var in, delayed, mixed [fdnLines]float32
		copy(in[:], dry[:])
		if active == fdnLines {
			in[4] = (dry[0] + dry[2]) * norm
			in[5] = (dry[1] + dry[3]) * norm
			in[6] = (dry[0] - dry[2]) * norm
			in[7] = (dry[1] - dry[3]) * norm
		}
		for l := 0; l < active; l++ {
			delayed[l] = f.read(l)
		}
		mixed = delayed
		if active == fdnLines {
			hadamard8(&mixed)
		} else {
			hadamard4(&mixed)
		}
		for l := 0; l < active; l++ {
			f.damp[l] += f.dampCoef * (mixed[l] - f.damp[l])
			w := in[l]*f.injection + f.damp[l]*f.feedback[l]
			if !audio.IsFinite(w) {
				w = 0
			}
			f.lines[l][f.write[l]] = w
			f.advance(l)
		}

		var wet [spatial.NumSpeakers]float32
		if active == fdnLines {
			for ch := range wet {
				wet[ch] = 0.5 * (delayed[ch] + delayed[ch+4])
			}
		} else {
			copy(wet[:], delayed[:spatial.NumSpeakers])
		}
		for ch := range wet {
			w := wet[ch]
			if !audio.IsFinite(w) {
				w = 0
			}
			bed.Channels[ch][i] = dry[ch]*dryMix + w*f.mix
		}
	}
}

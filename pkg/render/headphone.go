// ABOUTME: Headphone device compensation and the parametric calibration chain
// ABOUTME: 700 Hz split EQ with crossfeed, and up to four TDF-II biquad stages
package render

import (
	"fmt"
	"math"

	"github.com/locusq/locusq-go/pkg/audio"
	"github.com/locusq/locusq-go/pkg/profile"
	"github.com/locusq/locusq-go/pkg/spatial"
)

const compSplitHz = 700.0

type deviceCurve struct {
	low, high, crossfeed float32
}

var deviceCurves = map[profile.HeadphoneDevice]deviceCurve{
	profile.DeviceGeneric:       {1, 1, 0},
	profile.DeviceAirPodsPro2:   {0.98, 1.03, 0.015},
	profile.DeviceAirPodsPro3:   {0.98, 1.03, 0.015},
	profile.DeviceSonyWH1000XM5: {1.04, 0.97, 0.020},
	profile.DeviceCustomSOFA:    {1, 1, 0.010},
}

// HeadphoneCompensation applies a two-band tilt and a small crossfeed
// tuned per headphone model. The generic device is a bypass.
type HeadphoneCompensation struct {
	sampleRate float64
	device     profile.HeadphoneDevice
	curve      deviceCurve
	alpha      float32
	lowL       float32
	lowR       float32
}

// Prepare sets the sample rate and selects the generic curve.
func (h *HeadphoneCompensation) Prepare(sampleRate float64) {
	h.sampleRate = math.Max(1, sampleRate)
	h.alpha = float32(spatial.Clamp(1-math.Exp(-2*math.Pi*compSplitHz/h.sampleRate), 1e-4, 1))
	h.device = profile.DeviceGeneric
	h.curve = deviceCurves[profile.DeviceGeneric]
	h.Reset()
}

// Reset clears the split filter state.
func (h *HeadphoneCompensation) Reset() {
	h.lowL, h.lowR = 0, 0
}

// SetDevice switches the curve; state is cleared only on change.
func (h *HeadphoneCompensation) SetDevice(d profile.HeadphoneDevice) {
	if d == h.device {
		return
	}
	c, ok := deviceCurves[d]
	if !ok {
		d, c = profile.DeviceGeneric, deviceCurves[profile.DeviceGeneric]
	}
	h.device, h.curve = d, c
	h.Reset()
}

// Device returns the active device.
func (h *HeadphoneCompensation) Device() profile.HeadphoneDevice { return h.device }

// Bypassed reports a neutral curve.
func (h *HeadphoneCompensation) Bypassed() bool {
	return h.curve.crossfeed == 0 && h.curve.low == 1 && h.curve.high == 1
}

// ProcessSample compensates one stereo frame.
func (h *HeadphoneCompensation) ProcessSample(left, right float32) (float32, float32) {
	if h.Bypassed() {
		return left, right
	}
	h.lowL += h.alpha * (left - h.lowL)
	h.lowR += h.alpha * (right - h.lowR)
	eqL := h.lowL*h.curve.low + (left-h.lowL)*h.curve.high
	eqR := h.lowR*h.curve.low + (right-h.lowR)*h.curve.high
	outL := eqL + right*h.curve.crossfeed
	outR := eqR + left*h.curve.crossfeed
	if !audio.IsFinite(outL) {
		outL = 0
	}
	if !audio.IsFinite(outR) {
		outR = 0
	}
	return outL, outR
}

// Valid reports whether every band designs at sampleRate and the curve
// fits the chain.
func (c *Calibration) Valid(sampleRate float64) bool {
	if len(c.Bands) > MaxPEQStages || math.IsNaN(c.PreampDB) || math.IsInf(c.PreampDB, 0) {
		return false
	}
	for _, b := range c.Bands {
		if !b.Valid(sampleRate) {
			return false
		}
	}
	return true
}

// MaxPEQStages bounds the calibration chain.
const MaxPEQStages = 4

// BandType selects an RBJ biquad shape.
type BandType string

const (
	BandPeak      BandType = "PK"
	BandLowShelf  BandType = "LSC"
	BandHighShelf BandType = "HSC"
)

// Band is one parametric EQ band as stored in host configuration.
type Band struct {
	Type   BandType `json:"type"`
	FcHz   float64  `json:"fc_hz"`
	GainDB float64  `json:"gain_db"`
	Q      float64  `json:"q"`
}

// Coefficients are normalized biquad coefficients (a0 = 1).
type Coefficients struct {
	B0, B1, B2 float32
	A1, A2     float32
	Active     bool
}

// Identity passes input through.
var Identity = Coefficients{B0: 1}

// Valid reports whether b can be designed at sampleRate.
func (b Band) Valid(sampleRate float64) bool {
	switch b.Type {
	case BandPeak, BandLowShelf, BandHighShelf, "":
	default:
		return false
	}
	return sampleRate > 0 && b.FcHz > 0 && b.FcHz < sampleRate/2 &&
		!math.IsNaN(b.GainDB) && !math.IsInf(b.GainDB, 0) && !math.IsNaN(b.Q) && b.Q >= 0
}

// Design computes RBJ cookbook coefficients for b at sampleRate. A
// preamp in dB scales the feed-forward taps.
func (b Band) Design(sampleRate, preampDB float64) (Coefficients, error) {
	if !b.Valid(sampleRate) {
		return Identity, fmt.Errorf("design band: %s at %v Hz with q %v is not realizable at %v Hz", b.Type, b.FcHz, b.Q, sampleRate)
	}
	q := b.Q
	if q <= 0 {
		q = 0.7071
	}
	a := math.Pow(10, b.GainDB/40)
	w0 := 2 * math.Pi * b.FcHz / sampleRate
	cw, sw := math.Cos(w0), math.Sin(w0)
	alpha := sw / (2 * q)

	var b0, b1, b2, a0, a1, a2 float64
	switch b.Type {
	case BandPeak, "":
		b0 = 1 + alpha*a
		b1 = -2 * cw
		b2 = 1 - alpha*a
		a0 = 1 + alpha/a
		a1 = -2 * cw
		a2 = 1 - alpha/a
	case BandLowShelf:
		sa := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) - (a-1)*cw + sa)
		b1 = 2 * a * ((a - 1) - (a+1)*cw)
		b2 = a * ((a + 1) - (a-1)*cw - sa)
		a0 = (a + 1) + (a-1)*cw + sa
		a1 = -2 * ((a - 1) + (a+1)*cw)
		a2 = (a + 1) + (a-1)*cw - sa
	case BandHighShelf:
		sa := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) + (a-1)*cw + sa)
		b1 = -2 * a * ((a - 1) + (a+1)*cw)
		b2 = a * ((a + 1) + (a-1)*cw - sa)
		a0 = (a + 1) - (a-1)*cw + sa
		a1 = 2 * ((a - 1) - (a+1)*cw)
		a2 = (a + 1) - (a-1)*cw - sa
	default:
		return Identity, fmt.Errorf("design band: unknown type %q", b.Type)
	}
	pre := math.Pow(10, preampDB/20)
	return Coefficients{
		B0:     float32(pre * b0 / a0),
		B1:     float32(pre * b1 / a0),
		B2:     float32(pre * b2 / a0),
		A1:     float32(a1 / a0),
		A2:     float32(a2 / a0),
		Active: true,
	}, nil
}

func finiteOr(v, fallback float32) float32 {
	if audio.IsFinite(v) {
		return v
	}
	return fallback
}

func clamp32(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}

// Sanitized bounds coefficients to a range that cannot run away.
func (c Coefficients) Sanitized() Coefficients {
	return Coefficients{
		B0:     clamp32(finiteOr(c.B0, 1), -8, 8),
		B1:     clamp32(finiteOr(c.B1, 0), -8, 8),
		B2:     clamp32(finiteOr(c.B2, 0), -8, 8),
		A1:     clamp32(finiteOr(c.A1, 0), -1.9995, 1.9995),
		A2:     clamp32(finiteOr(c.A2, 0), -1.9995, 1.9995),
		Active: c.Active,
	}
}

type biquadState struct {
	z1, z2 float32
}

func (s *biquadState) process(c *Coefficients, x float32) float32 {
	y := c.B0*x + s.z1
	s.z1 = c.B1*x - c.A1*y + s.z2
	s.z2 = c.B2*x - c.A2*y
	if !audio.IsFinite(y) || !audio.IsFinite(s.z1) || !audio.IsFinite(s.z2) {
		s.z1, s.z2 = 0, 0
		return 0
	}
	return y
}

// CalibrationChain runs up to MaxPEQStages biquads on a stereo pair.
type CalibrationChain struct {
	stages  [MaxPEQStages]Coefficients
	left    [MaxPEQStages]biquadState
	right   [MaxPEQStages]biquadState
	enabled bool
}

// Reset clears filter state.
func (c *CalibrationChain) Reset() {
	c.left = [MaxPEQStages]biquadState{}
	c.right = [MaxPEQStages]biquadState{}
}

// SetIdentity deactivates every stage.
func (c *CalibrationChain) SetIdentity() {
	for i := range c.stages {
		c.stages[i] = Identity
	}
	c.Reset()
}

// SetStage installs sanitized coefficients at index i. Out-of-range
// indices are ignored.
func (c *CalibrationChain) SetStage(i int, coef Coefficients) {
	if i < 0 || i >= MaxPEQStages {
		return
	}
	c.stages[i] = coef.Sanitized()
}

// SetEnabled turns the chain on or off.
func (c *CalibrationChain) SetEnabled(on bool) { c.enabled = on }

// Active reports whether the chain is enabled with at least one stage.
func (c *CalibrationChain) Active() bool {
	if !c.enabled {
		return false
	}
	for i := range c.stages {
		if c.stages[i].Active {
			return true
		}
	}
	return false
}

// LatencySamples is the added latency of the active chain.
func (c *CalibrationChain) LatencySamples() int { return 0 }

// ProcessSample filters one stereo frame. Non-finite input and output
// are zeroed.
func (c *CalibrationChain) ProcessSample(left, right float32) (float32, float32) {
	left = finiteOr(left, 0)
	right = finiteOr(right, 0)
	if !c.Active() {
		return left, right
	}
	for i := range c.stages {
		st := &c.stages[i]
		if !st.Active {
			continue
		}
		left = c.left[i].process(st, left)
		right = c.right[i].process(st, right)
	}
	return finiteOr(left, 0), finiteOr(right, 0)
}

// LoadBands designs and installs bands, replacing every stage. The preamp
// rides on the first stage. Bands past MaxPEQStages are an error and
// nothing is installed.
func (c *CalibrationChain) LoadBands(sampleRate, preampDB float64, bands []Band) error {
	if len(bands) > MaxPEQStages {
		return fmt.Errorf("load bands: %d bands, at most %d", len(bands), MaxPEQStages)
	}
	var designed [MaxPEQStages]Coefficients
	for i := range designed {
		designed[i] = Identity
	}
	for i, b := range bands {
		pre := 0.0
		if i == 0 {
			pre = preampDB
		}
		coef, err := b.Design(sampleRate, pre)
		if err != nil {
			return fmt.Errorf("band %d: %w", i, err)
		}
		designed[i] = coef
	}
	if len(bands) == 0 && preampDB != 0 {
		designed[0] = Coefficients{B0: float32(math.Pow(10, preampDB/20)), Active: true}
	}
	for i, coef := range designed {
		c.SetStage(i, coef)
	}
	c.Reset()
	return nil
}

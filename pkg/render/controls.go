// ABOUTME: Renderer parameters shared between control goroutines and the audio thread
// ABOUTME: Every field is an atomic; calibration curves swap behind a pointer
package render

import (
	"math"
	"sync/atomic"

	"github.com/locusq/locusq-go/pkg/audio"
	"github.com/locusq/locusq-go/pkg/profile"
)

// DefaultBudget is the number of emitters rendered per block.
const DefaultBudget = 8

type atomicFloat struct{ bits atomic.Uint64 }

func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }
func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }

// Calibration is an immutable parametric EQ curve for the headphone path.
type Calibration struct {
	PreampDB float64
	Bands    []Band
}

// Controls holds the live renderer parameters. Setters may be called
// from any goroutine; the renderer samples every value once per block.
type Controls struct {
	profile         atomic.Int32
	headphoneMode   atomic.Int32
	headphoneDevice atomic.Int32
	calibrationOn   atomic.Bool
	calibration     atomic.Pointer[Calibration]

	distanceModel atomic.Int32
	refDistance   atomicFloat
	maxDistance   atomicFloat
	airEnabled    atomic.Bool
	dopplerOn     atomic.Bool
	dopplerScale  atomicFloat

	roomEnabled atomic.Bool
	roomSize    atomicFloat
	damping     atomicFloat
	reverbMix   atomicFloat
	erOnly      atomic.Bool
	highQuality atomic.Bool

	masterGainDB atomicFloat
	budget       atomic.Int32
}

// NewControls returns controls at their defaults.
func NewControls() *Controls {
	c := &Controls{}
	c.SetProfile(profile.Auto)
	c.SetHeadphoneMode(profile.StereoDownmix)
	c.SetHeadphoneDevice(profile.DeviceGeneric)
	c.SetDistanceModel(InverseSquare)
	c.SetDistanceRange(1, 50)
	c.SetAirAbsorption(true)
	c.SetDoppler(true, 1)
	c.SetRoom(true, 1, 0.5, 0.3)
	c.SetMasterGainDB(0)
	c.SetBudget(DefaultBudget)
	return c
}

func (c *Controls) SetProfile(p profile.Profile) { c.profile.Store(int32(p)) }
func (c *Controls) Profile() profile.Profile     { return profile.Profile(c.profile.Load()) }

func (c *Controls) SetHeadphoneMode(m profile.HeadphoneMode) { c.headphoneMode.Store(int32(m)) }
func (c *Controls) HeadphoneMode() profile.HeadphoneMode {
	return profile.HeadphoneMode(c.headphoneMode.Load())
}

func (c *Controls) SetHeadphoneDevice(d profile.HeadphoneDevice) { c.headphoneDevice.Store(int32(d)) }
func (c *Controls) HeadphoneDevice() profile.HeadphoneDevice {
	return profile.HeadphoneDevice(c.headphoneDevice.Load())
}

// SetCalibration enables or disables the calibration chain and, when cal
// is non-nil, replaces its curve. The renderer picks up a new curve at
// the next block.
func (c *Controls) SetCalibration(enabled bool, cal *Calibration) {
	if cal != nil {
		c.calibration.Store(cal)
	}
	c.calibrationOn.Store(enabled)
}

// CalibrationEnabled reports the requested calibration state.
func (c *Controls) CalibrationEnabled() bool { return c.calibrationOn.Load() }

func (c *Controls) SetDistanceModel(m DistanceModel) { c.distanceModel.Store(int32(m)) }

// SetDistanceRange sets the reference and maximum distances in metres.
func (c *Controls) SetDistanceRange(ref, maxDist float64) {
	c.refDistance.Store(ref)
	c.maxDistance.Store(maxDist)
}

func (c *Controls) SetAirAbsorption(on bool) { c.airEnabled.Store(on) }

// SetDoppler enables the Doppler stage with a velocity scale in [0,5].
func (c *Controls) SetDoppler(on bool, scale float64) {
	c.dopplerOn.Store(on)
	c.dopplerScale.Store(scale)
}

// SetRoom configures the room stages: size in [0.5,5], damping and mix
// in [0,1].
func (c *Controls) SetRoom(enabled bool, size, damping, mix float64) {
	c.roomEnabled.Store(enabled)
	c.roomSize.Store(size)
	c.damping.Store(damping)
	c.reverbMix.Store(mix)
}

// SetEarlyReflectionsOnly bypasses the late reverb.
func (c *Controls) SetEarlyReflectionsOnly(on bool) { c.erOnly.Store(on) }

// SetHighQuality selects the 16-tap reflections and 8-line network.
func (c *Controls) SetHighQuality(on bool) { c.highQuality.Store(on) }

func (c *Controls) SetMasterGainDB(db float64) { c.masterGainDB.Store(db) }

// SetBudget sets the per-block emitter budget; values below one become one.
func (c *Controls) SetBudget(n int) { c.budget.Store(int32(max(1, n))) }

// blockParams is the per-block copy of Controls taken by the audio thread.
type blockParams struct {
	profile         profile.Profile
	headphoneMode   profile.HeadphoneMode
	headphoneDevice profile.HeadphoneDevice
	calibrationOn   bool
	calibration     *Calibration

	attenuator   Attenuator
	airEnabled   bool
	dopplerScale float64

	roomEnabled bool
	roomSize    float64
	damping     float64
	reverbMix   float64
	erOnly      bool
	highQuality bool

	masterGain float32
	budget     int
}

func (c *Controls) load(p *blockParams) {
	p.profile = c.Profile()
	p.headphoneMode = c.HeadphoneMode()
	p.headphoneDevice = c.HeadphoneDevice()
	p.calibrationOn = c.calibrationOn.Load()
	p.calibration = c.calibration.Load()

	p.attenuator = NewAttenuator(DistanceModel(c.distanceModel.Load()), c.refDistance.Load(), c.maxDistance.Load())
	p.airEnabled = c.airEnabled.Load()
	p.dopplerScale = 0
	if c.dopplerOn.Load() {
		p.dopplerScale = c.dopplerScale.Load()
	}

	p.roomEnabled = c.roomEnabled.Load()
	p.roomSize = c.roomSize.Load()
	p.damping = c.damping.Load()
	p.reverbMix = c.reverbMix.Load()
	p.erOnly = c.erOnly.Load()
	p.highQuality = c.highQuality.Load()

	p.masterGain = float32(audio.DBToGain(c.masterGainDB.Load()))
	p.budget = int(c.budget.Load())
}

// ABOUTME: Binaural backend capability interface used by the headphone path
// ABOUTME: Unavailable stub, built-in spherical-head renderer and the block adapter
package render

import (
	"errors"
	"fmt"
	"math"

	"github.com/locusq/locusq-go/pkg/spatial"
)

// BinauralBackend renders the quad bed to two ears. Input channels are in
// host quad order FL, FR, RL, RR. A non-nil orientation asks the backend
// to rotate the scene itself; callers that already rotated the bed pass
// nil. Render returns false when it declined the block; the caller then
// falls back to the stereo downmix.
type BinauralBackend interface {
	Prepare(sampleRate float64, maxBlock int) error
	Available() bool
	Render(in [spatial.NumSpeakers][]float32, outL, outR []float32, n int, orientation *spatial.Quat) bool
}

// ErrBackendUnavailable is returned by Prepare on a backend that can never
// render.
var ErrBackendUnavailable = errors.New("binaural backend unavailable")

// Unavailable is the backend of a build without binaural support.
type Unavailable struct{}

func (Unavailable) Prepare(float64, int) error { return ErrBackendUnavailable }
func (Unavailable) Available() bool            { return false }
func (Unavailable) Render([spatial.NumSpeakers][]float32, []float32, []float32, int, *spatial.Quat) bool {
	return false
}

const (
	headRadiusM   = 0.0875
	shadowHz      = 1800.0
	shadowGain    = 0.72
	rearGain      = 0.86
	itdLineLength = 512
)

// Virtual speaker azimuths in host quad order FL, FR, RL, RR.
var virtualSpeakerAz = [spatial.NumSpeakers]float64{-45, 45, -135, 135}

type earPath struct {
	delay float64
	gain  float32
	shade bool
}

// SphericalHead renders each bed speaker as a virtual source around a
// rigid sphere: Woodworth interaural delay, a low-passed far ear and a
// mild rear attenuation.
type SphericalHead struct {
	sampleRate float64
	ready      bool
	paths      [spatial.NumSpeakers][2]earPath
	lines      [spatial.NumSpeakers][itdLineLength]float32
	write      int
	shadowA    float32
	shadowZ    [spatial.NumSpeakers][2]float32
}

// NewSphericalHead returns an unprepared renderer.
func NewSphericalHead() *SphericalHead { return &SphericalHead{} }

// Prepare computes per-ear delays and gains for sampleRate.
func (s *SphericalHead) Prepare(sampleRate float64, maxBlock int) error {
	if sampleRate <= 0 || maxBlock <= 0 {
		return fmt.Errorf("prepare spherical head: rate %v block %d", sampleRate, maxBlock)
	}
	s.sampleRate = sampleRate
	s.shadowA = float32(1 - math.Exp(-2*math.Pi*shadowHz/sampleRate))
	for spk, az := range virtualSpeakerAz {
		rad := az * math.Pi / 180
		lateral := math.Asin(spatial.Clamp(math.Sin(rad), -1, 1))
		itd := headRadiusM / speedOfSound * (math.Abs(lateral) + math.Sin(math.Abs(lateral)))
		itdSamples := math.Min(itd*sampleRate, itdLineLength-2)
		g := float32(1)
		if math.Abs(az) > 90 {
			g = rearGain
		}
		near, far := 1, 0
		if az < 0 {
			near, far = 0, 1
		}
		s.paths[spk][near] = earPath{gain: g}
		s.paths[spk][far] = earPath{delay: itdSamples, gain: g * shadowGain, shade: true}
	}
	s.Reset()
	s.ready = true
	return nil
}

// Reset clears delay lines and shadow filters.
func (s *SphericalHead) Reset() {
	s.lines = [spatial.NumSpeakers][itdLineLength]float32{}
	s.shadowZ = [spatial.NumSpeakers][2]float32{}
	s.write = 0
}

// Available reports whether Prepare succeeded.
func (s *SphericalHead) Available() bool { return s.ready }

func (s *SphericalHead) tap(spk int, delay float64) float32 {
	rp := float64(s.write) - delay
	if rp < 0 {
		rp += itdLineLength
	}
	a := int(rp)
	b := (a + 1) % itdLineLength
	frac := float32(rp - float64(a))
	line := &s.lines[spk]
	return line[a] + (line[b]-line[a])*frac
}

// Render mixes the virtual speakers into outL and outR.
func (s *SphericalHead) Render(in [spatial.NumSpeakers][]float32, outL, outR []float32, n int, orientation *spatial.Quat) bool {
	if !s.ready || n > len(outL) || n > len(outR) {
		return false
	}
	rotate := orientation != nil
	var mix SpeakerMix
	if rotate {
		mix = MixFor(*orientation)
	}
	for i := 0; i < n; i++ {
		frame := [spatial.NumSpeakers]float32{in[0][i], in[1][i], in[2][i], in[3][i]}
		if rotate {
			// The mix works in bed order FL, FR, RR, RL.
			fl, fr, rr, rl := mix.Apply(frame[0], frame[1], frame[3], frame[2])
			frame = [spatial.NumSpeakers]float32{fl, fr, rl, rr}
		}
		var ears [2]float32
		for spk := range frame {
			s.lines[spk][s.write] = frame[spk]
			for ear := range ears {
				p := &s.paths[spk][ear]
				v := s.tap(spk, p.delay)
				if p.shade {
					z := &s.shadowZ[spk][ear]
					*z += s.shadowA * (v - *z)
					v = *z
				}
				ears[ear] += v * p.gain
			}
		}
		// Four virtual speakers summed per ear.
		outL[i] = ears[0] * 0.5
		outR[i] = ears[1] * 0.5
		s.write++
		if s.write >= itdLineLength {
			s.write = 0
		}
	}
	return true
}

// Adapter guards a backend with block-size checks and substitutes silence
// for missing input channels.
type Adapter struct {
	backend  BinauralBackend
	maxBlock int
	silence  []float32
	prepared bool
}

// NewAdapter wraps b. A nil backend behaves as Unavailable.
func NewAdapter(b BinauralBackend) *Adapter {
	if b == nil {
		b = Unavailable{}
	}
	return &Adapter{backend: b}
}

// Prepare allocates the silence buffer and prepares the backend.
func (a *Adapter) Prepare(sampleRate float64, maxBlock int) error {
	a.maxBlock = maxBlock
	a.silence = make([]float32, maxBlock)
	a.prepared = false
	if err := a.backend.Prepare(sampleRate, maxBlock); err != nil {
		return fmt.Errorf("prepare binaural backend: %w", err)
	}
	a.prepared = true
	return nil
}

// Available reports whether the wrapped backend can render.
func (a *Adapter) Available() bool {
	return a.prepared && a.backend.Available()
}

// Render forwards the block when it fits the prepared size.
func (a *Adapter) Render(in [spatial.NumSpeakers][]float32, outL, outR []float32, n int, orientation *spatial.Quat) bool {
	if !a.Available() || n <= 0 || n > a.maxBlock || len(outL) < n || len(outR) < n {
		return false
	}
	for ch := range in {
		if len(in[ch]) < n {
			in[ch] = a.silence
		}
	}
	clear(outL[:n])
	clear(outR[:n])
	return a.backend.Render(in, outL, outR, n, orientation)
}

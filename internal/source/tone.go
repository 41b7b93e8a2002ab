// ABOUTME: Synthetic emitter sources that never end
// ABOUTME: Sine test tone and seeded white noise
package source

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Tone is a mono sine at half scale.
type Tone struct {
	frequency  float64
	sampleRate int
	phase      float64
	step       float64
	level      float32
}

// NewTone returns a sine source at hz.
func NewTone(hz float64, sampleRate int) *Tone {
	return &Tone{
		frequency:  hz,
		sampleRate: sampleRate,
		step:       2 * math.Pi * hz / float64(sampleRate),
		level:      0.5,
	}
}

func (t *Tone) Read(dst []float32) (int, error) {
	for i := range dst {
		dst[i] = t.level * float32(math.Sin(t.phase))
		t.phase += t.step
		if t.phase >= 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
	return len(dst), nil
}

func (t *Tone) SampleRate() int { return t.sampleRate }
func (t *Tone) Channels() int   { return 1 }
func (t *Tone) Name() string    { return fmt.Sprintf("tone %.0f Hz", t.frequency) }
func (t *Tone) Close() error    { return nil }

// Noise is white noise at a quarter scale.
type Noise struct {
	rng        *rand.Rand
	sampleRate int
}

// NewNoise returns a noise source with a fixed seed so runs repeat.
func NewNoise(sampleRate int, seed uint64) *Noise {
	return &Noise{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), sampleRate: sampleRate}
}

func (n *Noise) Read(dst []float32) (int, error) {
	for i := range dst {
		dst[i] = 0.25 * (2*n.rng.Float32() - 1)
	}
	return len(dst), nil
}

func (n *Noise) SampleRate() int { return n.sampleRate }
func (n *Noise) Channels() int   { return 1 }
func (n *Noise) Name() string    { return "noise" }
func (n *Noise) Close() error    { return nil }

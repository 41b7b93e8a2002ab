// ABOUTME: Tests for the per-emitter DSP stages and the room stages
// ABOUTME: Distance laws, air, directivity, spread, Doppler, reflections and the FDN
package render

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locusq/locusq-go/pkg/audio"
	"github.com/locusq/locusq-go/pkg/spatial"
)

func TestAttenuatorLaws(t *testing.T) {
	tests := []struct {
		name  string
		model DistanceModel
		d     float64
		want  float64
	}{
		{"inside reference", InverseSquare, 0.5, 1},
		{"inverse square at 2m", InverseSquare, 2, 0.25},
		{"linear midpoint", Linear, 25.5, 0.5},
		{"logarithmic at max", Logarithmic, 50, DistanceFloor},
		{"beyond max floors", Linear, 80, DistanceFloor},
		{"far inverse square floors", InverseSquare, 49, DistanceFloor},
		{"nan floors", InverseSquare, math.NaN(), DistanceFloor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAttenuator(tt.model, 1, 50)
			assert.InDelta(t, tt.want, a.Gain(tt.d), 1e-9)
		})
	}
}

func TestAttenuatorMonotonic(t *testing.T) {
	for _, m := range []DistanceModel{InverseSquare, Linear, Logarithmic} {
		t.Run(m.String(), func(t *testing.T) {
			a := NewAttenuator(m, 1, 50)
			prev := a.Gain(0)
			for d := 0.1; d < 60; d += 0.1 {
				g := a.Gain(d)
				assert.LessOrEqual(t, g, prev+1e-12, "distance %v", d)
				assert.GreaterOrEqual(t, g, DistanceFloor)
				prev = g
			}
		})
	}
}

func TestParseDistanceModel(t *testing.T) {
	for _, m := range []DistanceModel{InverseSquare, Linear, Logarithmic} {
		got, ok := ParseDistanceModel(m.String())
		require.True(t, ok)
		assert.Equal(t, m, got)
	}
	_, ok := ParseDistanceModel("cubic")
	assert.False(t, ok)
}

func TestAirCutoff(t *testing.T) {
	assert.InDelta(t, 20000, Cutoff(0), 1e-9)
	assert.InDelta(t, 20000/1.3, Cutoff(1), 1e-6)
	assert.InDelta(t, 200, Cutoff(1e6), 1e-9)
}

func TestAirAbsorptionDullsFarSources(t *testing.T) {
	// Alternating samples are the highest frequency the block can carry.
	energy := func(d float64) float64 {
		var a AirAbsorption
		a.Prepare(48000)
		a.SetDistance(d)
		buf := make([]float32, 512)
		for i := range buf {
			buf[i] = float32(1 - 2*(i%2))
		}
		a.Process(buf)
		var e float64
		for _, x := range buf[256:] {
			e += float64(x * x)
		}
		return e
	}
	assert.Greater(t, energy(0), energy(40))
}

func TestCardioid(t *testing.T) {
	tests := []struct {
		name       string
		aim, toLis spatial.Vec3
		want       float64
	}{
		{"facing listener", spatial.Vec3{Z: 1}, spatial.Vec3{Z: 1}, 1},
		{"facing away", spatial.Vec3{Z: 1}, spatial.Vec3{Z: -1}, 0},
		{"side on", spatial.Vec3{X: 1}, spatial.Vec3{Z: 1}, 0.5},
		{"zero aim is omni", spatial.Vec3{}, spatial.Vec3{Z: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cardioid(tt.aim, tt.toLis), 1e-9)
		})
	}
}

func TestHighGain(t *testing.T) {
	assert.InDelta(t, 1, HighGain(0, 0), 1e-12)
	assert.InDelta(t, 0, HighGain(1, 0), 1e-12)
	assert.InDelta(t, 0.75, HighGain(0.5, 0.5), 1e-12)
}

func TestDirectivityShelfPassesLowBand(t *testing.T) {
	var s DirectivityShelf
	s.Prepare(48000)
	buf := make([]float32, 4800)
	for i := range buf {
		buf[i] = 1
	}
	s.Process(buf, 0)
	assert.InDelta(t, 1, buf[len(buf)-1], 1e-3)
}

func TestSpread(t *testing.T) {
	g := spatial.Gains{1, 0, 0, 0}
	assert.Equal(t, g, Spread(g, 0))
	assert.Equal(t, spatial.Gains{0.5, 0.5, 0.5, 0.5}, Spread(g, 1))
	assert.Equal(t, spatial.Gains{0.75, 0.25, 0.25, 0.25}, Spread(g, 0.5))
	assert.Equal(t, spatial.Gains{0.5, 0.5, 0.5, 0.5}, Spread(g, 3))
}

func TestDopplerRatio(t *testing.T) {
	pos := spatial.Vec3{Z: 10}
	assert.InDelta(t, 1, Ratio(pos, spatial.Vec3{}, 1), 1e-12)
	assert.Greater(t, Ratio(pos, spatial.Vec3{Z: -20}, 1), 1.0, "approaching raises pitch")
	assert.Less(t, Ratio(pos, spatial.Vec3{Z: 20}, 1), 1.0, "receding lowers pitch")
	assert.InDelta(t, 2, Ratio(pos, spatial.Vec3{Z: -1000}, 1), 1e-12)
	assert.InDelta(t, 0.5, Ratio(pos, spatial.Vec3{Z: 1000}, 1), 1e-12)
	assert.InDelta(t, 1, Ratio(spatial.Vec3{}, spatial.Vec3{Z: 50}, 1), 1e-12)
}

func TestDopplerScaleZeroBypasses(t *testing.T) {
	var d Doppler
	d.Prepare(256)
	buf := []float32{1, 2, 3, 4}
	d.Process(buf, spatial.Vec3{Z: 5}, spatial.Vec3{Z: 30}, 0)
	assert.Equal(t, []float32{1, 2, 3, 4}, buf)
}

func TestDopplerStationaryIsPureDelay(t *testing.T) {
	var d Doppler
	d.Prepare(256)
	buf := make([]float32, 256)
	buf[0] = 1
	d.Process(buf, spatial.Vec3{Z: 5}, spatial.Vec3{}, 1)
	for i, x := range buf {
		if i == int(dopplerBaseDelay) {
			assert.InDelta(t, 1, x, 1e-6)
			continue
		}
		assert.InDelta(t, 0, x, 1e-6, "sample %d", i)
	}
}

func impulseBed(frames int) *audio.Block {
	bed := audio.NewBlock(spatial.NumSpeakers, frames)
	bed.Channels[spatial.SpeakerFL][0] = 1
	return bed
}

func TestEarlyReflectionsFirstTap(t *testing.T) {
	var er EarlyReflections
	er.Prepare(48000, 512)
	er.Configure(1, 0, 1, false)

	bed := impulseBed(512)
	er.Process(bed, 512)
	fl := bed.Channels[spatial.SpeakerFL]
	assert.InDelta(t, 1, fl[0], 1e-6)
	assert.InDelta(t, 0.72, fl[336], 1e-6)
	assert.InDelta(t, 0, fl[100], 1e-9)
	assert.InDelta(t, 0, bed.Channels[spatial.SpeakerFR][336], 1e-9)
}

func TestEarlyReflectionsTapTables(t *testing.T) {
	var er EarlyReflections
	er.Prepare(48000, 512)

	er.Configure(2, 0.5, 0.3, true)
	require.Equal(t, 16, er.numTaps)
	assert.Equal(t, int(281*2*0.001*48000), er.tapDelay[15])
	assert.InDelta(t, math.Pow(0.72, 16)*(1-0.65*0.5), float64(er.tapGain[15]), 1e-6)

	er.Configure(0.1, 0.5, 0.3, false)
	require.Equal(t, 8, er.numTaps)
	assert.Equal(t, int(7*RoomSizeMin*0.001*48000), er.tapDelay[0], "room size clamps to the minimum")
}

func TestEarlyReflectionsZeroMixIsBypass(t *testing.T) {
	var er EarlyReflections
	er.Prepare(48000, 512)
	er.Configure(1, 0.5, 0, false)
	bed := impulseBed(512)
	er.Process(bed, 512)
	assert.Equal(t, float32(1), bed.Channels[0][0])
	assert.Equal(t, float32(0), bed.Channels[0][336])
}

func TestFDNFeedbackBounds(t *testing.T) {
	for _, high := range []bool{false, true} {
		for _, size := range []float64{0.5, 1, 3, 5} {
			for _, damping := range []float64{0, 0.5, 1} {
				var f FDN
				f.Prepare(48000)
				f.Configure(size, damping, 0.3, high)
				for i := 0; i < f.activeLines(); i++ {
					g := f.FeedbackGain(i)
					assert.GreaterOrEqual(t, g, float32(0.15))
					assert.LessOrEqual(t, g, float32(0.985))
					assert.GreaterOrEqual(t, f.delay[i], fdnMinDelay)
					assert.Less(t, f.delay[i], len(f.lines[i])-1)
				}
			}
		}
	}
}

func TestFDNLineSizing(t *testing.T) {
	var f FDN
	f.Prepare(48000)
	assert.Equal(t, 32768, len(f.lines[0]))
	f.Configure(5, 0, 0.3, true)
	assert.Less(t, float64(f.delay[7])+f.modDepth[7], float64(len(f.lines[7])-2))
}

func TestFDNDecays(t *testing.T) {
	for _, high := range []bool{false, true} {
		var f FDN
		f.Prepare(48000)
		f.Configure(1, 0.5, 1, high)

		bed := impulseBed(480)
		energies := make([]float64, 0, 100)
		for block := 0; block < 100; block++ {
			f.Process(bed, 480)
			var e float64
			for _, c := range bed.Channels {
				for _, x := range c {
					require.True(t, audio.IsFinite(x))
					e += float64(x * x)
				}
			}
			energies = append(energies, e)
			bed.Clear(480)
		}
		var early, late float64
		for _, e := range energies[5:15] {
			early += e
		}
		for _, e := range energies[90:] {
			late += e
		}
		assert.Greater(t, early, 0.0, "high=%v", high)
		assert.Less(t, late, early, "high=%v", high)
	}
}

func TestFDNZeroMixIsBypass(t *testing.T) {
	var f FDN
	f.Prepare(48000)
	f.Configure(1, 0.5, 0, false)
	bed := impulseBed(64)
	f.Process(bed, 64)
	assert.Equal(t, float32(1), bed.Channels[0][0])
}

func TestHadamardPreservesEnergy(t *testing.T) {
	v := [fdnLines]float32{1, -2, 3, 0.5, -1, 2, 0.25, 4}
	var before float64
	for _, x := range v {
		before += float64(x * x)
	}
	h8 := v
	hadamard8(&h8)
	var after8 float64
	for _, x := range h8 {
		after8 += float64(x * x)
	}
	assert.InDelta(t, before, after8, 1e-4)

	h4 := v
	hadamard4(&h4)
	var before4, after4 float64
	for i := 0; i < 4; i++ {
		before4 += float64(v[i] * v[i])
		after4 += float64(h4[i] * h4[i])
	}
	assert.InDelta(t, before4, after4, 1e-5)
}

func TestFilterStateRecoversFromNonFinite(t *testing.T) {
	var air AirAbsorption
	air.Prepare(48000)
	air.SetDistance(10)
	var shelf DirectivityShelf
	shelf.Prepare(48000)
	var dop Doppler
	dop.Prepare(512)

	tests := []struct {
		name    string
		process func(buf []float32)
	}{
		{"air absorption", air.Process},
		{"directivity shelf", func(buf []float32) { shelf.Process(buf, 0.5) }},
		{"doppler", func(buf []float32) { dop.Process(buf, spatial.Vec3{Z: 5}, spatial.Vec3{}, 1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := []float32{0.5, float32(math.NaN()), 0.5, float32(math.Inf(-1))}
			tt.process(bad)

			clean := make([]float32, 4800)
			for i := range clean {
				clean[i] = 1
			}
			tt.process(clean)
			for i, x := range clean {
				require.True(t, audio.IsFinite(x), "sample %d", i)
			}
			assert.InDelta(t, 1, clean[len(clean)-1], 1e-2)
		})
	}
}

// ABOUTME: Tests for headphone compensation curves and the calibration chain
// ABOUTME: Bypass, steady-state gains, coefficient sanitizing and band loading
package render

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locusq/locusq-go/pkg/profile"
)

func settle(steps int, f func(l, r float32) (float32, float32), l, r float32) (float32, float32) {
	var ol, or float32
	for i := 0; i < steps; i++ {
		ol, or = f(l, r)
	}
	return ol, or
}

func TestHeadphoneCompensationSteadyState(t *testing.T) {
	tests := []struct {
		device profile.HeadphoneDevice
		want   float32
	}{
		{profile.DeviceGeneric, 1},
		{profile.DeviceAirPodsPro2, 0.98 + 0.015},
		{profile.DeviceAirPodsPro3, 0.98 + 0.015},
		{profile.DeviceSonyWH1000XM5, 1.04 + 0.020},
		{profile.DeviceCustomSOFA, 1 + 0.010},
	}
	for _, tt := range tests {
		t.Run(tt.device.String(), func(t *testing.T) {
			var h HeadphoneCompensation
			h.Prepare(48000)
			h.SetDevice(tt.device)
			l, r := settle(4800, h.ProcessSample, 1, 1)
			assert.InDelta(t, tt.want, l, 1e-4)
			assert.InDelta(t, tt.want, r, 1e-4)
		})
	}
}

func TestHeadphoneCompensationGenericIsBypass(t *testing.T) {
	var h HeadphoneCompensation
	h.Prepare(48000)
	assert.True(t, h.Bypassed())
	l, r := h.ProcessSample(0.3, -0.7)
	assert.Equal(t, float32(0.3), l)
	assert.Equal(t, float32(-0.7), r)
}

func TestHeadphoneCompensationCrossfeed(t *testing.T) {
	var h HeadphoneCompensation
	h.Prepare(48000)
	h.SetDevice(profile.DeviceSonyWH1000XM5)
	_, r := settle(4800, h.ProcessSample, 1, 0)
	assert.InDelta(t, 0.020, r, 1e-4)
}

func TestHeadphoneCompensationUnknownDevice(t *testing.T) {
	var h HeadphoneCompensation
	h.Prepare(48000)
	h.SetDevice(profile.HeadphoneDevice(42))
	assert.Equal(t, profile.DeviceGeneric, h.Device())
	assert.True(t, h.Bypassed())
}

func TestCoefficientsSanitized(t *testing.T) {
	nan := float32(math.NaN())
	c := Coefficients{B0: nan, B1: 20, B2: -20, A1: 5, A2: nan, Active: true}.Sanitized()
	assert.Equal(t, Coefficients{B0: 1, B1: 8, B2: -8, A1: 1.9995, A2: 0, Active: true}, c)
}

func TestCalibrationChainBypassedWithoutStages(t *testing.T) {
	var c CalibrationChain
	c.SetIdentity()
	c.SetEnabled(true)
	assert.False(t, c.Active())
	l, r := c.ProcessSample(0.25, -0.5)
	assert.Equal(t, float32(0.25), l)
	assert.Equal(t, float32(-0.5), r)
}

func TestCalibrationChainZeroesNonFiniteInput(t *testing.T) {
	var c CalibrationChain
	c.SetIdentity()
	l, r := c.ProcessSample(float32(math.Inf(1)), float32(math.NaN()))
	assert.Equal(t, float32(0), l)
	assert.Equal(t, float32(0), r)
}

func TestCalibrationChainPeakingDC(t *testing.T) {
	var c CalibrationChain
	c.SetIdentity()
	require.NoError(t, c.LoadBands(48000, -6, []Band{{Type: BandPeak, FcHz: 1000, GainDB: 6, Q: 1}}))
	c.SetEnabled(true)
	require.True(t, c.Active())

	l, r := settle(48000, c.ProcessSample, 1, 1)
	want := math.Pow(10, -6.0/20)
	assert.InDelta(t, want, l, 1e-3)
	assert.InDelta(t, want, r, 1e-3)

	c.SetEnabled(false)
	l, _ = c.ProcessSample(1, 1)
	assert.Equal(t, float32(1), l)
}

func TestCalibrationChainShelvesAtDC(t *testing.T) {
	tests := []struct {
		band Band
		want float64
	}{
		{Band{Type: BandLowShelf, FcHz: 200, GainDB: 6, Q: 0.707}, math.Pow(10, 6.0/20)},
		{Band{Type: BandHighShelf, FcHz: 4000, GainDB: 6, Q: 0.707}, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.band.Type), func(t *testing.T) {
			var c CalibrationChain
			c.SetIdentity()
			require.NoError(t, c.LoadBands(48000, 0, []Band{tt.band}))
			c.SetEnabled(true)
			l, _ := settle(48000, c.ProcessSample, 1, 1)
			assert.InDelta(t, tt.want, l, 1e-3)
		})
	}
}

func TestLoadBandsRejects(t *testing.T) {
	ok := Band{Type: BandPeak, FcHz: 1000, GainDB: 3, Q: 1}
	tests := []struct {
		name  string
		bands []Band
	}{
		{"too many bands", []Band{ok, ok, ok, ok, ok}},
		{"above nyquist", []Band{{Type: BandPeak, FcHz: 30000, GainDB: 3, Q: 1}}},
		{"unknown type", []Band{{Type: "BP", FcHz: 1000, GainDB: 3, Q: 1}}},
		{"negative q", []Band{{Type: BandPeak, FcHz: 1000, GainDB: 3, Q: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c CalibrationChain
			c.SetIdentity()
			assert.Error(t, c.LoadBands(48000, 0, tt.bands))
			cal := Calibration{Bands: tt.bands}
			assert.False(t, cal.Valid(48000))
		})
	}
}

func TestLoadBandsPreampOnly(t *testing.T) {
	var c CalibrationChain
	c.SetIdentity()
	require.NoError(t, c.LoadBands(48000, -20, nil))
	c.SetEnabled(true)
	l, _ := c.ProcessSample(1, 1)
	assert.InDelta(t, 0.1, l, 1e-6)
}

// ABOUTME: Tests for the profile fallback table and headphone negotiation
// ABOUTME: Exhaustive purity and realizability checks plus named scenarios
package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveTable(t *testing.T) {
	tests := []struct {
		name      string
		requested Profile
		channels  int
		active    Profile
		stage     Stage
	}{
		{"742 on 8 channels falls to quad", Surround742, 8, Quad40, FallbackQuad},
		{"742 direct", Surround742, 13, Surround742, Direct},
		{"742 on stereo host", Surround742, 2, Stereo20, FallbackStereo},
		{"auto picks 742", Auto, 16, Surround742, Direct},
		{"auto picks 721", Auto, 10, Surround721, Direct},
		{"auto picks 521", Auto, 8, Surround521, Direct},
		{"auto picks quad", Auto, 6, Quad40, Direct},
		{"auto on stereo", Auto, 2, Stereo20, FallbackStereo},
		{"atmos bed direct", AtmosBed, 10, AtmosBed, Direct},
		{"atmos bed on quad", AtmosBed, 6, Quad40, FallbackQuad},
		{"521 direct", Surround521, 8, Surround521, Direct},
		{"721 on 8 channels", Surround721, 8, Quad40, FallbackQuad},
		{"adm placeholder", CodecADM, 13, Surround742, CodecLayoutPlaceholder},
		{"iamf on quad", CodecIAMF, 4, Quad40, FallbackQuad},
		{"iamf on stereo", CodecIAMF, 2, Stereo20, FallbackStereo},
		{"hoa direct", AmbisonicHOA, 16, AmbisonicHOA, Direct},
		{"hoa to foa", AmbisonicHOA, 8, AmbisonicFOA, FallbackQuad},
		{"hoa to stereo proxy", AmbisonicHOA, 2, AmbisonicFOA, AmbiDecodeStereo},
		{"foa direct", AmbisonicFOA, 4, AmbisonicFOA, Direct},
		{"foa decoded", AmbisonicFOA, 2, AmbisonicFOA, AmbiDecodeStereo},
		{"quad direct", Quad40, 4, Quad40, Direct},
		{"quad on stereo", Quad40, 3, Stereo20, FallbackStereo},
		{"stereo on mono", Stereo20, 1, Stereo20, Direct},
		{"virtual 3d", Virtual3dStereo, 2, Virtual3dStereo, Direct},
		{"unknown profile", Profile(99), 8, Stereo20, FallbackStereo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.requested, tt.channels, InternalSpeakers)
			assert.Equal(t, tt.active, got.Active)
			assert.Equal(t, tt.stage, got.Stage)
			assert.Equal(t, tt.requested, got.Requested)
		})
	}
}

func TestResolvePureAndRealizable(t *testing.T) {
	for _, p := range append(Profiles, Profile(-1), Profile(42)) {
		for spk := 1; spk <= 8; spk++ {
			for ch := 1; ch <= 32; ch++ {
				first := Resolve(p, ch, spk)
				second := Resolve(p, ch, spk)
				if first != second {
					t.Fatalf("Resolve(%v,%d,%d) not deterministic: %+v vs %+v", p, ch, spk, first, second)
				}
				if need := RequiredChannels(first.Active, first.Stage, spk); need > ch {
					t.Errorf("Resolve(%v,%d,%d) = %v/%v needs %d channels", p, ch, spk, first.Active, first.Stage, need)
				}
			}
		}
	}
}

func TestResolveNegativeChannels(t *testing.T) {
	got := Resolve(Surround742, -3, InternalSpeakers)
	assert.Equal(t, Stereo20, got.Active)
	assert.Equal(t, FallbackStereo, got.Stage)
}

func TestProfileSpellings(t *testing.T) {
	want := []string{
		"auto", "stereo_2_0", "quad_4_0", "surround_5_2_1", "surround_7_2_1", "surround_7_4_2",
		"ambisonic_foa", "ambisonic_hoa", "atmos_bed", "virtual_3d_stereo", "codec_iamf", "codec_adm",
	}
	for i, p := range Profiles {
		assert.Equal(t, want[i], p.String())
		assert.Equal(t, i, int(p))
		parsed, ok := ParseProfile(want[i])
		assert.True(t, ok)
		assert.Equal(t, p, parsed)
	}
	assert.Equal(t, "auto", Profile(77).String())

	stages := map[Stage]string{
		Direct:                 "direct",
		FallbackStereo:         "fallback_stereo",
		FallbackQuad:           "fallback_quad",
		AmbiDecodeStereo:       "ambi_decode_stereo",
		CodecLayoutPlaceholder: "codec_layout_placeholder",
	}
	for s, name := range stages {
		assert.Equal(t, name, s.String())
	}
}

func TestNegotiateHeadphone(t *testing.T) {
	tests := []struct {
		name      string
		requested HeadphoneMode
		active    Profile
		channels  int
		available bool
		want      HeadphoneMode
		reason    HeadphoneFallback
	}{
		{"binaural on stereo", SteamBinaural, Stereo20, 2, true, SteamBinaural, HeadphoneFallbackNone},
		{"backend missing", SteamBinaural, Stereo20, 2, false, StereoDownmix, HeadphoneFallbackSteamUnavailable},
		{"mono host with backend", SteamBinaural, Stereo20, 1, true, StereoDownmix, HeadphoneFallbackOutputIncompatible},
		{"mono host without backend", SteamBinaural, Stereo20, 1, false, StereoDownmix, HeadphoneFallbackOutputIncompatible},
		{"surround profile", SteamBinaural, Surround521, 8, true, StereoDownmix, HeadphoneFallbackOutputIncompatible},
		{"foa decoded on stereo", SteamBinaural, AmbisonicFOA, 2, true, SteamBinaural, HeadphoneFallbackNone},
		{"downmix requested", StereoDownmix, Stereo20, 2, true, StereoDownmix, HeadphoneFallbackNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NegotiateHeadphone(tt.requested, tt.active, tt.channels, tt.available)
			assert.Equal(t, tt.want, d.Active)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestHeadphoneRenderFailure(t *testing.T) {
	d := NegotiateHeadphone(SteamBinaural, Stereo20, 2, true).AfterRender(false)
	assert.Equal(t, StereoDownmix, d.Active)
	assert.Equal(t, HeadphoneFallbackSteamRenderFailed, d.Reason)
	assert.Equal(t, "steam_render_failed", d.Reason.String())
}

func TestActiveDevice(t *testing.T) {
	assert.Equal(t, DeviceGeneric, ActiveDevice(DeviceSonyWH1000XM5, 1))
	assert.Equal(t, DeviceSonyWH1000XM5, ActiveDevice(DeviceSonyWH1000XM5, 2))
	assert.Equal(t, DeviceGeneric, ActiveDevice(HeadphoneDevice(9), 2))
	assert.Equal(t, "airpods_pro_2", DeviceAirPodsPro2.String())
}

func TestFOAProxy(t *testing.T) {
	w, x, y, z := EncodeFOA(1, 1, 1, 1)
	assert.InDelta(t, 4*0.35355339, w, 1e-6)
	assert.InDelta(t, 0, x, 1e-9)
	assert.InDelta(t, 0, y, 1e-9)
	assert.Equal(t, float32(0), z)

	// Hard right: FR and RR only.
	w, x, y, z = EncodeFOA(0, 1, 1, 0)
	l, r := DecodeFOAStereo(w, x, y, z)
	assert.InDelta(t, 1.0, x, 1e-6)
	assert.Greater(t, r, l)
}

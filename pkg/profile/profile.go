// ABOUTME: Output profile, fallback stage and headphone enums
// ABOUTME: Stable string spellings shared with diagnostics consumers
package profile

// Profile is a requested or active output topology.
type Profile int

const (
	Auto Profile = iota
	Stereo20
	Quad40
	Surround521
	Surround721
	Surround742
	AmbisonicFOA
	AmbisonicHOA
	AtmosBed
	Virtual3dStereo
	CodecIAMF
	CodecADM
)

// Profiles lists every defined profile in index order.
var Profiles = []Profile{
	Auto, Stereo20, Quad40, Surround521, Surround721, Surround742,
	AmbisonicFOA, AmbisonicHOA, AtmosBed, Virtual3dStereo, CodecIAMF, CodecADM,
}

var profileNames = map[Profile]string{
	Auto:            "auto",
	Stereo20:        "stereo_2_0",
	Quad40:          "quad_4_0",
	Surround521:     "surround_5_2_1",
	Surround721:     "surround_7_2_1",
	Surround742:     "surround_7_4_2",
	AmbisonicFOA:    "ambisonic_foa",
	AmbisonicHOA:    "ambisonic_hoa",
	AtmosBed:        "atmos_bed",
	Virtual3dStereo: "virtual_3d_stereo",
	CodecIAMF:       "codec_iamf",
	CodecADM:        "codec_adm",
}

func (p Profile) String() string {
	if s, ok := profileNames[p]; ok {
		return s
	}
	return "auto"
}

// ParseProfile maps a spelling back to its Profile.
func ParseProfile(s string) (Profile, bool) {
	for p, name := range profileNames {
		if name == s {
			return p, true
		}
	}
	return Auto, false
}

// IsAmbisonic reports the FOA and HOA profiles.
func (p Profile) IsAmbisonic() bool {
	return p == AmbisonicFOA || p == AmbisonicHOA
}

// IsStereoOrBinaural reports profiles whose output is meant for two ears.
func (p Profile) IsStereoOrBinaural() bool {
	switch p {
	case Stereo20, Virtual3dStereo, AmbisonicFOA, AmbisonicHOA:
		return true
	}
	return false
}

// Stage records which rule of the fallback table produced the active profile.
type Stage int

const (
	Direct Stage = iota
	FallbackStereo
	FallbackQuad
	AmbiDecodeStereo
	CodecLayoutPlaceholder
)

func (s Stage) String() string {
	switch s {
	case Direct:
		return "direct"
	case FallbackStereo:
		return "fallback_stereo"
	case FallbackQuad:
		return "fallback_quad"
	case AmbiDecodeStereo:
		return "ambi_decode_stereo"
	case CodecLayoutPlaceholder:
		return "codec_layout_placeholder"
	default:
		return "direct"
	}
}

// IsFallback reports stages where the request could not be honoured as asked.
func (s Stage) IsFallback() bool {
	return s == FallbackStereo || s == FallbackQuad || s == AmbiDecodeStereo
}

// HeadphoneMode selects how a two-channel output is rendered.
type HeadphoneMode int

const (
	StereoDownmix HeadphoneMode = iota
	SteamBinaural
)

func (m HeadphoneMode) String() string {
	if m == SteamBinaural {
		return "steam_binaural"
	}
	return "stereo_downmix"
}

// ParseHeadphoneMode maps a spelling back to its mode.
func ParseHeadphoneMode(s string) (HeadphoneMode, bool) {
	switch s {
	case "stereo_downmix":
		return StereoDownmix, true
	case "steam_binaural":
		return SteamBinaural, true
	}
	return StereoDownmix, false
}

// HeadphoneFallback explains why SteamBinaural was not used.
type HeadphoneFallback int

const (
	HeadphoneFallbackNone HeadphoneFallback = iota
	HeadphoneFallbackSteamUnavailable
	HeadphoneFallbackSteamRenderFailed
	HeadphoneFallbackOutputIncompatible
)

func (f HeadphoneFallback) String() string {
	switch f {
	case HeadphoneFallbackSteamUnavailable:
		return "steam_unavailable"
	case HeadphoneFallbackSteamRenderFailed:
		return "steam_render_failed"
	case HeadphoneFallbackOutputIncompatible:
		return "output_incompatible"
	default:
		return "none"
	}
}

// HeadphoneDevice selects a headphone compensation curve.
type HeadphoneDevice int

const (
	DeviceGeneric HeadphoneDevice = iota
	DeviceAirPodsPro2
	DeviceAirPodsPro3
	DeviceSonyWH1000XM5
	DeviceCustomSOFA
)

var deviceNames = map[HeadphoneDevice]string{
	DeviceGeneric:       "generic",
	DeviceAirPodsPro2:   "airpods_pro_2",
	DeviceAirPodsPro3:   "airpods_pro_3",
	DeviceSonyWH1000XM5: "sony_wh1000xm5",
	DeviceCustomSOFA:    "custom_sofa",
}

func (d HeadphoneDevice) String() string {
	if s, ok := deviceNames[d]; ok {
		return s
	}
	return "generic"
}

// ParseHeadphoneDevice maps a spelling back to its device.
func ParseHeadphoneDevice(s string) (HeadphoneDevice, bool) {
	for d, name := range deviceNames {
		if name == s {
			return d, true
		}
	}
	return DeviceGeneric, false
}

// Normalization is the ambisonic channel weighting convention.
type Normalization int

const (
	SN3D Normalization = iota
	N3D
)

func (n Normalization) String() string {
	if n == N3D {
		return "n3d"
	}
	return "sn3d"
}

// CodecMode is the codec layout a profile maps onto.
type CodecMode int

const (
	CodecNone CodecMode = iota
	CodecModeADM
	CodecModeIAMF
)

func (c CodecMode) String() string {
	switch c {
	case CodecModeADM:
		return "adm"
	case CodecModeIAMF:
		return "iamf"
	default:
		return "none"
	}
}

// CodecModeOf returns the codec layout requested by p.
func CodecModeOf(p Profile) CodecMode {
	switch p {
	case CodecADM:
		return CodecModeADM
	case CodecIAMF:
		return CodecModeIAMF
	}
	return CodecNone
}

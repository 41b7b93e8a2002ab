// ABOUTME: Deterministic fallback table from requested profile to realizable profile
// ABOUTME: Channel requirements, ambisonic order and headphone-mode negotiation
package profile

// InternalSpeakers is the size of the renderer's internal bed.
const InternalSpeakers = 4

// Channel counts a topology needs to be written directly.
const (
	channels742 = 13
	channels721 = 10
	channels521 = 8
	channelsFOA = 4
	channelsHOA = 16
)

// Resolution is the outcome of Resolve.
type Resolution struct {
	Requested Profile
	Active    Profile
	Stage     Stage
}

// Fallback reports whether the active profile differs from the request
// because of a channel shortage.
func (r Resolution) Fallback() bool {
	return r.Stage.IsFallback()
}

// Resolve maps the requested profile onto what the host can carry. Rules
// are evaluated top-down; the first match wins. Unknown profiles resolve
// to stereo.
func Resolve(requested Profile, outputChannels, internalSpeakers int) Resolution {
	if outputChannels < 0 {
		outputChannels = 0
	}
	ch, spk := outputChannels, internalSpeakers
	r := func(p Profile, s Stage) Resolution {
		return Resolution{Requested: requested, Active: p, Stage: s}
	}
	quadOrStereo := func() Resolution {
		if ch >= spk {
			return r(Quad40, FallbackQuad)
		}
		return r(Stereo20, FallbackStereo)
	}

	switch requested {
	case Auto:
		switch {
		case ch >= channels742:
			return r(Surround742, Direct)
		case ch >= channels721:
			return r(Surround721, Direct)
		case ch >= channels521:
			return r(Surround521, Direct)
		case ch >= spk:
			return r(Quad40, Direct)
		}
		return r(Stereo20, FallbackStereo)

	case Surround742:
		if ch >= channels742 {
			return r(Surround742, Direct)
		}
		return quadOrStereo()

	case Surround721, AtmosBed:
		if ch >= channels721 {
			return r(requested, Direct)
		}
		return quadOrStereo()

	case Surround521:
		if ch >= channels521 {
			return r(Surround521, Direct)
		}
		return quadOrStereo()

	case CodecIAMF, CodecADM:
		if ch >= channels742 {
			return r(Surround742, CodecLayoutPlaceholder)
		}
		return quadOrStereo()

	case AmbisonicHOA:
		switch {
		case ch >= channelsHOA:
			return r(AmbisonicHOA, Direct)
		case ch >= channelsFOA:
			return r(AmbisonicFOA, FallbackQuad)
		}
		return r(AmbisonicFOA, AmbiDecodeStereo)

	case AmbisonicFOA:
		if ch >= channelsFOA {
			return r(AmbisonicFOA, Direct)
		}
		return r(AmbisonicFOA, AmbiDecodeStereo)

	case Quad40:
		if ch >= spk {
			return r(Quad40, Direct)
		}
		return r(Stereo20, FallbackStereo)

	case Stereo20, Virtual3dStereo:
		return r(requested, Direct)
	}
	return r(Stereo20, FallbackStereo)
}

// RequiredChannels is the smallest host channel count on which the
// topology writer can realize (active, stage). Stereo-family output folds
// to mono on a single channel, so it needs one.
func RequiredChannels(active Profile, stage Stage, internalSpeakers int) int {
	switch active {
	case Surround742:
		return channels742
	case Surround721:
		return channels721
	case AtmosBed:
		return channels721
	case Surround521:
		return channels521
	case Quad40:
		return internalSpeakers
	case AmbisonicHOA:
		return channelsHOA
	case AmbisonicFOA:
		if stage == AmbiDecodeStereo {
			return 1
		}
		return channelsFOA
	}
	return 1
}

// AmbisonicOrder is the order reported for an active ambisonic profile.
// HOA aliases the first-order proxy signal but reports order 3 when the
// host carries the full channel set.
func AmbisonicOrder(active Profile) int {
	switch active {
	case AmbisonicHOA:
		return 3
	case AmbisonicFOA:
		return 1
	}
	return 0
}

// HeadphoneDecision is the outcome of NegotiateHeadphone.
type HeadphoneDecision struct {
	Requested HeadphoneMode
	Active    HeadphoneMode
	Allowed   bool
	Reason    HeadphoneFallback
}

// NegotiateHeadphone picks the headphone path for a block. The external
// binaural path needs a stereo-family profile (or a host of at most two
// channels), two output channels and an available backend; anything else
// resolves to StereoDownmix, never to silence.
func NegotiateHeadphone(requested HeadphoneMode, active Profile, outputChannels int, backendAvailable bool) HeadphoneDecision {
	d := HeadphoneDecision{Requested: requested, Active: StereoDownmix}
	d.Allowed = active.IsStereoOrBinaural() || outputChannels <= 2
	if requested != SteamBinaural {
		return d
	}
	switch {
	case !d.Allowed || outputChannels < 2:
		d.Reason = HeadphoneFallbackOutputIncompatible
	case !backendAvailable:
		d.Reason = HeadphoneFallbackSteamUnavailable
	default:
		d.Active = SteamBinaural
	}
	return d
}

// AfterRender downgrades a SteamBinaural decision when the backend
// declined the block.
func (d HeadphoneDecision) AfterRender(rendered bool) HeadphoneDecision {
	if d.Active == SteamBinaural && !rendered {
		d.Active = StereoDownmix
		d.Reason = HeadphoneFallbackSteamRenderFailed
	}
	return d
}

// ActiveDevice returns the compensation profile used for a block.
// Compensation needs a stereo pair.
func ActiveDevice(requested HeadphoneDevice, outputChannels int) HeadphoneDevice {
	if outputChannels < 2 {
		return DeviceGeneric
	}
	if _, ok := deviceNames[requested]; !ok {
		return DeviceGeneric
	}
	return requested
}

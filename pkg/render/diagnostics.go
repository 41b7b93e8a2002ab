// ABOUTME: Per-block renderer diagnostics snapshot with stable JSON spellings
// ABOUTME: Culling counters, profile and headphone negotiation, ambisonic and codec contracts
package render

import (
	"encoding/json"

	"github.com/locusq/locusq-go/pkg/profile"
	"github.com/locusq/locusq-go/pkg/spatial"
)

// Compatibility guard outcomes.
const (
	GuardPass = "pass"
	GuardWarn = "warn"
	GuardFail = "fail"

	GuardReasonNone            = "none"
	GuardReasonOrderInvalid    = "ambisonic_order_invalid"
	GuardReasonProfileFallback = "profile_fallback_active"
	GuardReasonSteamFallback   = "steam_fallback_active"
	GuardReasonProfileMismatch = "profile_mismatch"
)

// codecRequiredFields is the number of contract fields a mapping must cover.
const codecRequiredFields = 8

// Diagnostics is what the renderer reports about its last block. Values
// are plain so the struct can be copied without allocation; spellings are
// produced at marshal time.
type Diagnostics struct {
	FrameID          uint64
	TimestampSamples uint64

	Eligible        int
	Processed       int
	CulledBudget    int
	CulledActivity  int
	GuardrailActive bool
	NonFinite       int

	OutputChannels int
	Writer         Writer

	Resolution profile.Resolution
	Headphone  profile.HeadphoneDecision

	HeadphoneDeviceRequested profile.HeadphoneDevice
	HeadphoneDeviceActive    profile.HeadphoneDevice
	CalibrationRequested     bool
	CalibrationActive        bool
	CalibrationLatency       int

	BinauralAvailable bool
	HeadPoseAvailable bool
	HeadPoseApplied   bool
	HeadPoseStale     bool
	HeadOrientation   spatial.Quat
	Tracking          TrackingStatus

	CodecSignature uint64
	CodecFinite    bool
}

// AmbiOrder is the ambisonic order of the active profile, zero for
// non-ambisonic output.
func (d *Diagnostics) AmbiOrder() int { return profile.AmbisonicOrder(d.Resolution.Active) }

// OutputMode is the diagnostic label for what the host receives.
func (d *Diagnostics) OutputMode() string {
	return OutputMode(d.Writer, d.Resolution.Active, d.Headphone.Active)
}

// CompatGuard grades the block: fail when an ambisonic request has no
// order, warn on any fallback or mismatch, pass otherwise.
func (d *Diagnostics) CompatGuard() (status, reason string) {
	r := d.Resolution
	h := d.Headphone
	switch {
	case r.Requested.IsAmbisonic() && d.AmbiOrder() <= 0:
		return GuardFail, GuardReasonOrderInvalid
	case r.Fallback():
		return GuardWarn, GuardReasonProfileFallback
	case h.Requested == profile.SteamBinaural && h.Active != h.Requested && !d.BinauralAvailable:
		return GuardWarn, GuardReasonSteamFallback
	case r.Requested != r.Active:
		return GuardWarn, GuardReasonProfileMismatch
	}
	return GuardPass, GuardReasonNone
}

// CodecMapping is the codec layout contract derived from a block.
type CodecMapping struct {
	Mode               profile.CodecMode
	Applied            bool
	Finite             bool
	FallbackActive     bool
	MappedChannelCount int
	ObjectCount        int
	ElementCount       int
	CoveredFields      int
	Signature          uint64
}

// Codec derives the codec mapping contract.
func (d *Diagnostics) Codec() CodecMapping {
	c := CodecMapping{
		Mode:      profile.CodecModeOf(d.Resolution.Requested),
		Applied:   d.Resolution.Stage == profile.CodecLayoutPlaceholder,
		Finite:    d.CodecFinite,
		Signature: d.CodecSignature,
	}
	if c.Applied {
		c.MappedChannelCount = min(13, d.OutputChannels)
		switch c.Mode {
		case profile.CodecModeADM:
			c.ObjectCount = 4
		case profile.CodecModeIAMF:
			c.ElementCount = 2
		}
	}
	c.FallbackActive = c.Mode != profile.CodecNone && !c.Applied

	// Order, channel count, normalization and timestamp are always defined.
	c.CoveredFields = 4
	if d.FrameID > 0 {
		c.CoveredFields += 2
	}
	if c.Signature > 0 {
		c.CoveredFields++
	}
	if c.MappedChannelCount >= 0 {
		c.CoveredFields++
	}
	return c
}

// MappingStatus reports whether the ADM and IAMF mappings are complete
// for the active mode. An inactive mode always passes.
func (c CodecMapping) MappingStatus() (adm, iamf string) {
	ready := func(active bool, count int) string {
		if !active || (c.Applied && c.Finite && count > 0) {
			return GuardPass
		}
		return GuardFail
	}
	return ready(c.Mode == profile.CodecModeADM, c.ObjectCount),
		ready(c.Mode == profile.CodecModeIAMF, c.ElementCount)
}

// codecSignature hashes the fields that identify a codec mapping. Inline
// FNV-1a keeps the audio thread allocation-free.
func codecSignature(words ...uint64) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	h := uint64(offset)
	for _, w := range words {
		for b := 0; b < 8; b++ {
			h ^= (w >> (8 * b)) & 0xff
			h *= prime
		}
	}
	return h
}

type ambiContractJSON struct {
	FrameID                uint64 `json:"frameId"`
	TimestampSamples       uint64 `json:"timestampSamples"`
	Order                  int    `json:"order"`
	Normalization          string `json:"normalization"`
	ChannelCount           int    `json:"channelCount"`
	RequestedProfile       string `json:"requestedProfile"`
	ActiveProfile          string `json:"activeProfile"`
	Stage                  string `json:"stage"`
	RequestedHeadphoneMode string `json:"requestedHeadphoneMode"`
	ActiveHeadphoneMode    string `json:"activeHeadphoneMode"`
	SteamAudioAvailable    bool   `json:"steamAudioAvailable"`
	HeadphoneRenderAllowed bool   `json:"headphoneRenderAllowed"`
	FallbackActive         bool   `json:"fallbackActive"`
}

type codecContractJSON struct {
	AdmStatus                 string  `json:"admStatus"`
	IamfStatus                string  `json:"iamfStatus"`
	RequiredFields            int     `json:"requiredFields"`
	CoveredFields             int     `json:"coveredFields"`
	CoveragePct               float64 `json:"coveragePct"`
	Signature                 uint64  `json:"signature"`
	Mode                      string  `json:"mode"`
	MappingApplied            bool    `json:"mappingApplied"`
	Finite                    bool    `json:"finite"`
	FallbackActive            bool    `json:"fallbackActive"`
	MappedChannelCount        int     `json:"mappedChannelCount"`
	ObjectCount               int     `json:"objectCount"`
	ElementCount              int     `json:"elementCount"`
	ExecutionFrameID          uint64  `json:"executionFrameId"`
	ExecutionTimestampSamples uint64  `json:"executionTimestampSamples"`
	Order                     int     `json:"order"`
	Normalization             string  `json:"normalization"`
	ChannelCount              int     `json:"channelCount"`
}

type headTrackingJSON struct {
	Enabled          bool    `json:"enabled"`
	Source           string  `json:"source"`
	PoseAvailable    bool    `json:"poseAvailable"`
	PoseStale        bool    `json:"poseStale"`
	OrientationValid bool    `json:"orientationValid"`
	InvalidPackets   uint32  `json:"invalidPackets"`
	Consumers        int     `json:"consumers"`
	Seq              uint32  `json:"seq"`
	TimestampMs      uint64  `json:"timestampMs"`
	AgeMs            float64 `json:"ageMs"`
	Qx               float64 `json:"qx"`
	Qy               float64 `json:"qy"`
	Qz               float64 `json:"qz"`
	Qw               float64 `json:"qw"`
	YawDeg           float64 `json:"yawDeg"`
	PitchDeg         float64 `json:"pitchDeg"`
	RollDeg          float64 `json:"rollDeg"`
}

// headTracking derives the head-tracking block. Without a pose the
// orientation reads as identity.
func (d *Diagnostics) headTracking() headTrackingJSON {
	t := d.Tracking
	source := t.Source
	if source == "" {
		source = "none"
	}
	q := spatial.Identity
	if d.HeadPoseAvailable {
		q = d.HeadOrientation
	}
	yaw, pitch, roll := q.EulerDegrees()
	return headTrackingJSON{
		Enabled:          t.Enabled,
		Source:           source,
		PoseAvailable:    d.HeadPoseAvailable,
		PoseStale:        d.HeadPoseStale,
		OrientationValid: d.HeadPoseAvailable && !d.HeadPoseStale,
		InvalidPackets:   t.InvalidPackets,
		Consumers:        t.Consumers,
		Seq:              t.Seq,
		TimestampMs:      t.TimestampMs,
		AgeMs:            t.AgeMs,
		Qx:               q.X,
		Qy:               q.Y,
		Qz:               q.Z,
		Qw:               q.W,
		YawDeg:           yaw,
		PitchDeg:         pitch,
		RollDeg:          roll,
	}
}

type diagnosticsJSON struct {
	Eligible        int  `json:"rendererEligibleEmitters"`
	Processed       int  `json:"rendererProcessedEmitters"`
	CulledBudget    int  `json:"rendererCulledBudget"`
	CulledActivity  int  `json:"rendererCulledActivity"`
	GuardrailActive bool `json:"rendererGuardrailActive"`
	NonFinite       int  `json:"rendererNonFiniteSamples"`

	OutputChannels     []string `json:"rendererOutputChannels"`
	OutputChannelCount int      `json:"rendererOutputChannelCount"`
	OutputMode         string   `json:"rendererOutputMode"`
	InternalSpeakers   []string `json:"rendererInternalSpeakers"`
	QuadMap            []int    `json:"rendererQuadMap"`

	ProfileRequested      string `json:"rendererSpatialProfileRequested"`
	ProfileActive         string `json:"rendererSpatialProfileActive"`
	ProfileStage          string `json:"rendererSpatialProfileStage"`
	ProfileRequestedIndex int    `json:"rendererSpatialProfileRequestedIndex"`
	ProfileActiveIndex    int    `json:"rendererSpatialProfileActiveIndex"`
	ProfileStageIndex     int    `json:"rendererSpatialProfileStageIndex"`

	HeadphoneModeRequested    string `json:"rendererHeadphoneModeRequested"`
	HeadphoneModeActive       string `json:"rendererHeadphoneModeActive"`
	HeadphoneProfileRequested string `json:"rendererHeadphoneProfileRequested"`
	HeadphoneProfileActive    string `json:"rendererHeadphoneProfileActive"`
	HeadphoneFallbackReason   string `json:"rendererHeadphoneFallbackReason"`
	CalibrationRequested      bool   `json:"rendererHeadphoneCalibrationEnabledRequested"`
	CalibrationActive         bool   `json:"rendererHeadphoneCalibrationActive"`
	CalibrationLatency        int    `json:"rendererHeadphoneCalibrationLatencySamples"`
	SteamAudioAvailable       bool   `json:"rendererSteamAudioAvailable"`
	HeadPoseAvailable         bool   `json:"rendererHeadPoseAvailable"`

	HeadTrackingEnabled          bool             `json:"rendererHeadTrackingEnabled"`
	HeadTrackingSource           string           `json:"rendererHeadTrackingSource"`
	HeadTrackingPoseAvailable    bool             `json:"rendererHeadTrackingPoseAvailable"`
	HeadTrackingPoseStale        bool             `json:"rendererHeadTrackingPoseStale"`
	HeadTrackingOrientationValid bool             `json:"rendererHeadTrackingOrientationValid"`
	HeadTrackingInvalidPackets   uint32           `json:"rendererHeadTrackingInvalidPackets"`
	HeadTrackingConsumers        int              `json:"rendererHeadTrackingConsumers"`
	HeadTrackingSeq              uint32           `json:"rendererHeadTrackingSeq"`
	HeadTrackingTimestampMs      uint64           `json:"rendererHeadTrackingTimestampMs"`
	HeadTrackingAgeMs            float64          `json:"rendererHeadTrackingAgeMs"`
	HeadTrackingQx               float64          `json:"rendererHeadTrackingQx"`
	HeadTrackingQy               float64          `json:"rendererHeadTrackingQy"`
	HeadTrackingQz               float64          `json:"rendererHeadTrackingQz"`
	HeadTrackingQw               float64          `json:"rendererHeadTrackingQw"`
	HeadTrackingYawDeg           float64          `json:"rendererHeadTrackingYawDeg"`
	HeadTrackingPitchDeg         float64          `json:"rendererHeadTrackingPitchDeg"`
	HeadTrackingRollDeg          float64          `json:"rendererHeadTrackingRollDeg"`
	HeadTracking                 headTrackingJSON `json:"rendererHeadTracking"`

	AmbiActive        bool             `json:"rendererAmbiActive"`
	AmbiMaxOrder      int              `json:"rendererAmbiMaxOrder"`
	AmbiNormalization string           `json:"rendererAmbiNormalization"`
	AmbiChannelOrder  string           `json:"rendererAmbiChannelOrder"`
	AmbiDecodeLayout  string           `json:"rendererAmbiDecodeLayout"`
	AmbiStage         string           `json:"rendererAmbiStage"`
	AmbiIRContract    ambiContractJSON `json:"rendererAmbiIrContract"`

	CompatGuardStatus string            `json:"rendererCompatGuardStatus"`
	CompatGuardReason string            `json:"rendererCompatGuardReason"`
	AdmMappingStatus  string            `json:"rendererAdmMappingStatus"`
	IamfMappingStatus string            `json:"rendererIamfMappingStatus"`
	CodecContract     codecContractJSON `json:"rendererCodecMappingContract"`
}

var quadMapJSON = []int{QuadOutputOrder[0], QuadOutputOrder[1], QuadOutputOrder[2], QuadOutputOrder[3]}

// MarshalJSON emits the stable renderer diagnostics keys.
func (d Diagnostics) MarshalJSON() ([]byte, error) {
	r, h := d.Resolution, d.Headphone
	order := d.AmbiOrder()
	maxOrder := 1
	if r.Active == profile.AmbisonicHOA {
		maxOrder = 3
	}
	status, reason := d.CompatGuard()
	codec := d.Codec()
	adm, iamf := codec.MappingStatus()
	norm := profile.SN3D.String()
	ht := d.headTracking()

	return json.Marshal(diagnosticsJSON{
		Eligible:        d.Eligible,
		Processed:       d.Processed,
		CulledBudget:    d.CulledBudget,
		CulledActivity:  d.CulledActivity,
		GuardrailActive: d.GuardrailActive,
		NonFinite:       d.NonFinite,

		OutputChannels:     d.Writer.Labels(),
		OutputChannelCount: d.OutputChannels,
		OutputMode:         d.OutputMode(),
		InternalSpeakers:   InternalSpeakerLabels,
		QuadMap:            quadMapJSON,

		ProfileRequested:      r.Requested.String(),
		ProfileActive:         r.Active.String(),
		ProfileStage:          r.Stage.String(),
		ProfileRequestedIndex: int(r.Requested),
		ProfileActiveIndex:    int(r.Active),
		ProfileStageIndex:     int(r.Stage),

		HeadphoneModeRequested:    h.Requested.String(),
		HeadphoneModeActive:       h.Active.String(),
		HeadphoneProfileRequested: d.HeadphoneDeviceRequested.String(),
		HeadphoneProfileActive:    d.HeadphoneDeviceActive.String(),
		HeadphoneFallbackReason:   h.Reason.String(),
		CalibrationRequested:      d.CalibrationRequested,
		CalibrationActive:         d.CalibrationActive,
		CalibrationLatency:        d.CalibrationLatency,
		SteamAudioAvailable:       d.BinauralAvailable,
		HeadPoseAvailable:         d.HeadPoseAvailable,

		HeadTrackingEnabled:          ht.Enabled,
		HeadTrackingSource:           ht.Source,
		HeadTrackingPoseAvailable:    ht.PoseAvailable,
		HeadTrackingPoseStale:        ht.PoseStale,
		HeadTrackingOrientationValid: ht.OrientationValid,
		HeadTrackingInvalidPackets:   ht.InvalidPackets,
		HeadTrackingConsumers:        ht.Consumers,
		HeadTrackingSeq:              ht.Seq,
		HeadTrackingTimestampMs:      ht.TimestampMs,
		HeadTrackingAgeMs:            ht.AgeMs,
		HeadTrackingQx:               ht.Qx,
		HeadTrackingQy:               ht.Qy,
		HeadTrackingQz:               ht.Qz,
		HeadTrackingQw:               ht.Qw,
		HeadTrackingYawDeg:           ht.YawDeg,
		HeadTrackingPitchDeg:         ht.PitchDeg,
		HeadTrackingRollDeg:          ht.RollDeg,
		HeadTracking:                 ht,

		AmbiActive:        r.Active.IsAmbisonic(),
		AmbiMaxOrder:      maxOrder,
		AmbiNormalization: norm,
		AmbiChannelOrder:  "acn",
		AmbiDecodeLayout:  r.Active.String(),
		AmbiStage:         r.Stage.String(),
		AmbiIRContract: ambiContractJSON{
			FrameID:                d.FrameID,
			TimestampSamples:       d.TimestampSamples,
			Order:                  order,
			Normalization:          norm,
			ChannelCount:           d.OutputChannels,
			RequestedProfile:       r.Requested.String(),
			ActiveProfile:          r.Active.String(),
			Stage:                  r.Stage.String(),
			RequestedHeadphoneMode: h.Requested.String(),
			ActiveHeadphoneMode:    h.Active.String(),
			SteamAudioAvailable:    d.BinauralAvailable,
			HeadphoneRenderAllowed: h.Allowed,
			FallbackActive:         r.Fallback(),
		},

		CompatGuardStatus: status,
		CompatGuardReason: reason,
		AdmMappingStatus:  adm,
		IamfMappingStatus: iamf,
		CodecContract: codecContractJSON{
			AdmStatus:                 adm,
			IamfStatus:                iamf,
			RequiredFields:            codecRequiredFields,
			CoveredFields:             codec.CoveredFields,
			CoveragePct:               100 * float64(codec.CoveredFields) / codecRequiredFields,
			Signature:                 codec.Signature,
			Mode:                      codec.Mode.String(),
			MappingApplied:            codec.Applied,
			Finite:                    codec.Finite,
			FallbackActive:            codec.FallbackActive,
			MappedChannelCount:        codec.MappedChannelCount,
			ObjectCount:               codec.ObjectCount,
			ElementCount:              codec.ElementCount,
			ExecutionFrameID:          d.FrameID,
			ExecutionTimestampSamples: d.TimestampSamples,
			Order:                     order,
			Normalization:             norm,
			ChannelCount:              d.OutputChannels,
		},
	})
}

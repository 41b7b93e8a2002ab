// ABOUTME: End-to-end renderer tests over a scene.Graph
// ABOUTME: Budget culling, topology fallback, headphone negotiation, head pose and diagnostics
package render

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locusq/locusq-go/pkg/audio"
	"github.com/locusq/locusq-go/pkg/profile"
	"github.com/locusq/locusq-go/pkg/scene"
	"github.com/locusq/locusq-go/pkg/spatial"
)

const testBlock = 256

// newTestRenderer returns a prepared renderer with the stages that colour
// the signal switched off, so levels can be asserted directly.
func newTestRenderer(t *testing.T, backend BinauralBackend) *Renderer {
	t.Helper()
	r := New(backend)
	require.NoError(t, r.Prepare(48000, testBlock, 16))
	c := r.Controls()
	c.SetRoom(false, 1, 0.5, 0)
	c.SetAirAbsorption(false)
	c.SetDoppler(false, 0)
	return r
}

func addEmitter(t *testing.T, g *scene.Graph, pos spatial.Vec3, samples []float32) int {
	t.Helper()
	tok, out := g.ClaimEmitterSlot()
	require.Equal(t, scene.Success, out)
	slot := g.Slot(tok.Slot)
	d := scene.DefaultEmitterData(tok.Slot)
	d.Position = pos
	d.Directivity = 0
	slot.Write(d)
	if samples != nil {
		slot.WriteAudio([][]float32{samples}, len(samples))
	}
	return tok.Slot
}

func constant(v float32) []float32 {
	buf := make([]float32, testBlock)
	for i := range buf {
		buf[i] = v
	}
	return buf
}

func process(t *testing.T, r *Renderer, g *scene.Graph, ch int, head HeadPose) (*audio.Block, Diagnostics) {
	t.Helper()
	out := audio.NewBlock(ch, testBlock)
	r.Process(out, testBlock, g, head)
	var d Diagnostics
	require.True(t, r.Diagnostics(&d))
	return out, d
}

func channelEnergy(b *audio.Block, ch int) float64 {
	return energy(b.Channels[ch])
}

func TestBudgetKeepsNearestEmitters(t *testing.T) {
	tests := []struct {
		name      string
		positions []spatial.Vec3
		want      []int
	}{
		{
			name:      "nearest two",
			positions: []spatial.Vec3{{X: 3}, {X: 0.5}, {X: 2}, {X: 1}},
			want:      []int{1, 3},
		},
		{
			name:      "equal distance keeps lower slot",
			positions: []spatial.Vec3{{X: 2}, {Z: 1}, {X: -1}, {X: 1}},
			want:      []int{1, 2},
		},
		{
			name:      "tie at the budget edge",
			positions: []spatial.Vec3{{X: 1}, {X: 3}, {Z: -2}, {X: 2}},
			want:      []int{0, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRenderer(t, nil)
			r.Controls().SetBudget(2)
			g := scene.NewGraph(4)
			for i, pos := range tt.positions {
				require.Equal(t, i, addEmitter(t, g, pos, constant(0.5)))
			}
			_, full := g.ClaimEmitterSlot()
			require.Equal(t, scene.Contention, full)

			_, d := process(t, r, g, 4, HeadPose{})
			assert.Equal(t, 4, d.Eligible)
			assert.Equal(t, 2, d.Processed)
			assert.Equal(t, 2, d.CulledBudget)
			assert.True(t, d.GuardrailActive)
			assert.Zero(t, d.CulledActivity)
			assert.Equal(t, tt.want, r.ProcessedSlots(nil))
		})
	}
}

func TestWithinBudgetNoGuardrail(t *testing.T) {
	r := newTestRenderer(t, nil)
	g := scene.NewGraph(16)
	addEmitter(t, g, spatial.Vec3{Z: 1}, constant(0.5))
	addEmitter(t, g, spatial.Vec3{Z: 2}, constant(0.5))

	_, d := process(t, r, g, 4, HeadPose{})
	assert.Equal(t, 2, d.Processed)
	assert.Zero(t, d.CulledBudget)
	assert.False(t, d.GuardrailActive)
}

func TestSilentEmittersAreActivityCulled(t *testing.T) {
	r := newTestRenderer(t, nil)
	g := scene.NewGraph(16)
	addEmitter(t, g, spatial.Vec3{Z: 1}, nil)
	addEmitter(t, g, spatial.Vec3{Z: 1}, make([]float32, testBlock))

	out, d := process(t, r, g, 2, HeadPose{})
	assert.Equal(t, 2, d.Eligible)
	assert.Zero(t, d.Processed)
	assert.Equal(t, 2, d.CulledActivity)
	assert.Zero(t, channelEnergy(out, 0))
}

func TestMuteAndSolo(t *testing.T) {
	r := newTestRenderer(t, nil)
	g := scene.NewGraph(16)
	a := addEmitter(t, g, spatial.Vec3{Z: 1}, constant(0.5))
	b := addEmitter(t, g, spatial.Vec3{Z: 2}, constant(0.5))
	c := addEmitter(t, g, spatial.Vec3{Z: 3}, constant(0.5))

	rec, ok := g.Slot(a).Read()
	require.True(t, ok)
	rec.Muted = true
	g.Slot(a).Write(rec)

	_, d := process(t, r, g, 2, HeadPose{})
	assert.Equal(t, 2, d.Eligible, "muted emitter is not eligible")

	rec, ok = g.Slot(c).Read()
	require.True(t, ok)
	rec.Soloed = true
	g.Slot(c).Write(rec)
	for _, s := range []int{b, c} {
		g.Slot(s).WriteAudio([][]float32{constant(0.5)}, testBlock)
	}

	_, d = process(t, r, g, 2, HeadPose{})
	assert.Equal(t, 1, d.Eligible, "only the soloed emitter remains")
	assert.Equal(t, 1, d.Processed)
}

func TestQuadOutputMapsLeftSource(t *testing.T) {
	r := newTestRenderer(t, nil)
	g := scene.NewGraph(16)
	addEmitter(t, g, spatial.Vec3{X: -1, Z: 1}, constant(0.5))

	out, d := process(t, r, g, 4, HeadPose{})
	require.Equal(t, WriterQuad, d.Writer)
	assert.Equal(t, profile.Quad40, d.Resolution.Active)
	fl := channelEnergy(out, 0)
	assert.Greater(t, fl, 0.0)
	for ch := 1; ch < 4; ch++ {
		assert.Less(t, channelEnergy(out, ch), fl*1e-3, "channel %d", ch)
	}
}

func TestSurroundRequestFallsBackToQuad(t *testing.T) {
	r := newTestRenderer(t, nil)
	r.Controls().SetProfile(profile.Surround742)
	g := scene.NewGraph(16)
	addEmitter(t, g, spatial.Vec3{Z: 1}, constant(0.5))

	out, d := process(t, r, g, 8, HeadPose{})
	assert.Equal(t, profile.Quad40, d.Resolution.Active)
	assert.Equal(t, profile.FallbackQuad, d.Resolution.Stage)
	assert.Equal(t, WriterQuad, d.Writer)
	assert.Equal(t, OutputModeQuadFirst4, d.OutputMode())
	for ch := 4; ch < 8; ch++ {
		assert.Zero(t, channelEnergy(out, ch), "channel %d", ch)
	}
	status, reason := d.CompatGuard()
	assert.Equal(t, GuardWarn, status)
	assert.Equal(t, GuardReasonProfileFallback, reason)
}

func TestSteamBinauralNegotiation(t *testing.T) {
	tests := []struct {
		name       string
		backend    BinauralBackend
		channels   int
		wantActive profile.HeadphoneMode
		wantReason profile.HeadphoneFallback
		wantWriter Writer
	}{
		{"mono host", NewSphericalHead(), 1, profile.StereoDownmix, profile.HeadphoneFallbackOutputIncompatible, WriterMono},
		{"backend missing", nil, 2, profile.StereoDownmix, profile.HeadphoneFallbackSteamUnavailable, WriterStereo},
		{"rendered", NewSphericalHead(), 2, profile.SteamBinaural, profile.HeadphoneFallbackNone, WriterStereo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRenderer(t, tt.backend)
			r.Controls().SetHeadphoneMode(profile.SteamBinaural)
			g := scene.NewGraph(16)
			addEmitter(t, g, spatial.Vec3{X: -1, Z: 1}, constant(0.5))

			out, d := process(t, r, g, tt.channels, HeadPose{})
			assert.Equal(t, tt.wantActive, d.Headphone.Active)
			assert.Equal(t, tt.wantReason, d.Headphone.Reason)
			assert.Equal(t, tt.wantWriter, d.Writer)
			assert.Greater(t, channelEnergy(out, 0), 0.0, "never silent")
		})
	}
}

func TestBackendErrorIsReported(t *testing.T) {
	r := newTestRenderer(t, nil)
	assert.ErrorIs(t, r.BackendError(), ErrBackendUnavailable)
	assert.False(t, r.BinauralAvailable())

	r = newTestRenderer(t, NewSphericalHead())
	assert.NoError(t, r.BackendError())
	assert.True(t, r.BinauralAvailable())
}

func TestHeadPoseRotatesStereoBed(t *testing.T) {
	g := scene.NewGraph(16)
	addEmitter(t, g, spatial.Vec3{X: -1, Z: 1}, constant(0.5))

	r := newTestRenderer(t, nil)
	out, d := process(t, r, g, 2, HeadPose{})
	assert.False(t, d.HeadPoseApplied)
	assert.Greater(t, channelEnergy(out, 0), channelEnergy(out, 1))

	g.Slot(0).WriteAudio([][]float32{constant(0.5)}, testBlock)
	r = newTestRenderer(t, nil)
	out, d = process(t, r, g, 2, HeadPose{Orientation: spatial.FromYawDegrees(180), Valid: true})
	assert.True(t, d.HeadPoseAvailable)
	assert.True(t, d.HeadPoseApplied)
	assert.Greater(t, channelEnergy(out, 1), channelEnergy(out, 0))
}

func TestStaleHeadPoseKeepsLastOrientation(t *testing.T) {
	g := scene.NewGraph(16)
	addEmitter(t, g, spatial.Vec3{X: -1, Z: 1}, constant(0.5))

	r := newTestRenderer(t, nil)
	out, d := process(t, r, g, 2, HeadPose{Orientation: spatial.FromYawDegrees(180), Valid: true, Stale: true})
	assert.True(t, d.HeadPoseAvailable)
	assert.True(t, d.HeadPoseStale)
	assert.True(t, d.HeadPoseApplied)
	assert.InDelta(t, 180, math.Abs(d.HeadOrientation.YawDegrees()), 1e-6)
	assert.Greater(t, channelEnergy(out, 1), channelEnergy(out, 0))
}

func TestHeadPoseIgnoredOnQuad(t *testing.T) {
	r := newTestRenderer(t, nil)
	g := scene.NewGraph(16)
	addEmitter(t, g, spatial.Vec3{X: -1, Z: 1}, constant(0.5))

	_, d := process(t, r, g, 4, HeadPose{Orientation: spatial.FromYawDegrees(90), Valid: true})
	assert.True(t, d.HeadPoseAvailable)
	assert.False(t, d.HeadPoseApplied)
}

func TestNonFiniteAudioIsScrubbed(t *testing.T) {
	r := newTestRenderer(t, nil)
	r.Controls().SetAirAbsorption(true)
	g := scene.NewGraph(16)
	buf := constant(0.5)
	buf[10] = float32(math.NaN())
	buf[20] = float32(math.Inf(1))
	slot := addEmitter(t, g, spatial.Vec3{Z: 1}, buf)

	out, d := process(t, r, g, 2, HeadPose{})
	assert.Equal(t, 1, d.Processed)
	assert.Equal(t, 2, d.NonFinite)
	assert.False(t, d.CodecFinite)
	for ch := range out.Channels {
		for i, s := range out.Channels[ch] {
			require.True(t, audio.IsFinite(s), "channel %d frame %d", ch, i)
		}
	}

	// Later clean blocks render normally.
	for block := range 5 {
		g.Slot(slot).WriteAudio([][]float32{constant(0.5)}, testBlock)
		out, d = process(t, r, g, 2, HeadPose{})
		assert.Equal(t, 1, d.Processed, "block %d", block)
		assert.Zero(t, d.NonFinite, "block %d", block)
		assert.True(t, d.CodecFinite, "block %d", block)
		assert.Positive(t, channelEnergy(out, 0), "block %d", block)
		assert.Positive(t, channelEnergy(out, 1), "block %d", block)
	}
}

func TestSampleCounterAndFrameID(t *testing.T) {
	r := newTestRenderer(t, nil)
	g := scene.NewGraph(16)

	_, first := process(t, r, g, 2, HeadPose{})
	_, second := process(t, r, g, 2, HeadPose{})
	assert.Equal(t, uint64(2*testBlock), g.SampleCounter())
	assert.Equal(t, uint64(1), first.FrameID)
	assert.Equal(t, uint64(2), second.FrameID)
	assert.Equal(t, uint64(testBlock), second.TimestampSamples)
	assert.NotEqual(t, first.CodecSignature, second.CodecSignature)
}

func TestProcessBeforePrepareIsSilent(t *testing.T) {
	r := New(nil)
	out := audio.NewBlock(2, testBlock)
	out.Channels[0][0] = 1
	r.Process(out, testBlock, scene.NewGraph(4), HeadPose{})
	assert.Zero(t, out.Channels[0][0])

	var d Diagnostics
	assert.False(t, r.Diagnostics(&d))
}

func TestRoomProfileTrimsAndListener(t *testing.T) {
	r := newTestRenderer(t, nil)
	g := scene.NewGraph(16)
	addEmitter(t, g, spatial.Vec3{X: -1, Z: 1}, constant(0.5))
	_, base := process(t, r, g, 4, HeadPose{})
	require.Equal(t, 1, base.Processed)

	room := scene.DefaultRoomProfile()
	room.Valid = true
	room.Speakers[spatial.SpeakerFL].GainTrimDB = -6
	g.PublishRoomProfile(room)

	g.Slot(0).WriteAudio([][]float32{constant(0.5)}, testBlock)
	trimmed := newTestRenderer(t, nil)
	out, _ := process(t, trimmed, g, 4, HeadPose{})
	// 0.5 in, 0.5 inverse-square gain at sqrt(2) m, then the trim.
	want := audio.DBToGain(-6) * 0.25
	assert.InDelta(t, want, float64(out.Channels[0][testBlock-1]), 1e-3)
}

func TestDiagnosticsJSONKeys(t *testing.T) {
	r := newTestRenderer(t, nil)
	r.Controls().SetProfile(profile.CodecADM)
	g := scene.NewGraph(16)
	addEmitter(t, g, spatial.Vec3{Z: 1}, constant(0.5))
	_, d := process(t, r, g, 13, HeadPose{})

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))

	for _, key := range []string{
		"rendererEligibleEmitters", "rendererProcessedEmitters", "rendererCulledBudget",
		"rendererGuardrailActive", "rendererOutputChannels", "rendererOutputMode",
		"rendererSpatialProfileRequested", "rendererSpatialProfileActive", "rendererSpatialProfileStage",
		"rendererHeadphoneModeActive", "rendererSteamAudioAvailable", "rendererHeadPoseAvailable",
		"rendererAmbiIrContract", "rendererCodecMappingContract", "rendererCompatGuardStatus",
		"rendererAdmMappingStatus", "rendererIamfMappingStatus",
	} {
		assert.Contains(t, m, key)
	}
	assert.Equal(t, "codec_adm", m["rendererSpatialProfileRequested"])
	assert.Equal(t, "surround_7_4_2", m["rendererSpatialProfileActive"])
	assert.Equal(t, GuardPass, m["rendererAdmMappingStatus"])
	assert.Equal(t, GuardPass, m["rendererIamfMappingStatus"])
	assert.EqualValues(t, profile.CodecADM, m["rendererSpatialProfileRequestedIndex"])
	assert.EqualValues(t, profile.Surround742, m["rendererSpatialProfileActiveIndex"])
}

func TestDiagnosticsHeadTrackingJSON(t *testing.T) {
	tracking := TrackingStatus{
		Enabled:        true,
		Source:         "udp",
		Seq:            42,
		TimestampMs:    9000,
		AgeMs:          12.5,
		InvalidPackets: 3,
		Consumers:      2,
	}
	tests := []struct {
		name      string
		head      HeadPose
		available bool
		stale     bool
		valid     bool
		yaw       float64
		source    string
	}{
		{
			name:   "no pose",
			head:   HeadPose{},
			source: "none",
		},
		{
			name:      "fresh pose",
			head:      HeadPose{Orientation: spatial.FromYawDegrees(30), Valid: true, Tracking: tracking},
			available: true,
			valid:     true,
			yaw:       30,
			source:    "udp",
		},
		{
			name:      "held pose",
			head:      HeadPose{Orientation: spatial.FromYawDegrees(30), Valid: true, Stale: true, Tracking: tracking},
			available: true,
			stale:     true,
			yaw:       30,
			source:    "udp",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRenderer(t, nil)
			g := scene.NewGraph(16)
			addEmitter(t, g, spatial.Vec3{Z: 1}, constant(0.5))
			_, d := process(t, r, g, 2, tt.head)

			raw, err := json.Marshal(d)
			require.NoError(t, err)
			var m map[string]any
			require.NoError(t, json.Unmarshal(raw, &m))

			assert.Equal(t, tt.available, m["rendererHeadTrackingPoseAvailable"])
			assert.Equal(t, tt.stale, m["rendererHeadTrackingPoseStale"])
			assert.Equal(t, tt.valid, m["rendererHeadTrackingOrientationValid"])
			assert.Equal(t, tt.source, m["rendererHeadTrackingSource"])
			assert.InDelta(t, tt.yaw, m["rendererHeadTrackingYawDeg"], 1e-3)
			assert.InDelta(t, 0, m["rendererHeadTrackingPitchDeg"], 1e-3)
			assert.InDelta(t, 0, m["rendererHeadTrackingRollDeg"], 1e-3)

			nested, ok := m["rendererHeadTracking"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.available, nested["poseAvailable"])
			assert.Equal(t, tt.stale, nested["poseStale"])
			if tt.available {
				assert.EqualValues(t, 42, m["rendererHeadTrackingSeq"])
				assert.EqualValues(t, 9000, m["rendererHeadTrackingTimestampMs"])
				assert.EqualValues(t, 3, m["rendererHeadTrackingInvalidPackets"])
				assert.EqualValues(t, 2, m["rendererHeadTrackingConsumers"])
				assert.InDelta(t, 12.5, m["rendererHeadTrackingAgeMs"], 1e-9)
				assert.Equal(t, true, nested["enabled"])
			} else {
				assert.EqualValues(t, 1, m["rendererHeadTrackingQw"])
				assert.Equal(t, false, nested["enabled"])
			}
		})
	}
}

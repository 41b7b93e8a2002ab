// ABOUTME: JSON host configuration with optional fields and defaults
// ABOUTME: Loads, validates and converts settings into renderer and transport options
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/locusq/locusq-go/pkg/headtracking"
	"github.com/locusq/locusq-go/pkg/profile"
	"github.com/locusq/locusq-go/pkg/render"
	"github.com/locusq/locusq-go/pkg/scene"
	"github.com/locusq/locusq-go/pkg/spatial"
	"github.com/locusq/locusq-go/pkg/timeline"
)

// DefaultConfigPath is read when no -config flag is given and the file
// exists.
const DefaultConfigPath = "locusq.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the host configuration. Every field is optional; the Get
// accessors supply defaults for missing ones.
type Config struct {
	SampleRate     *int  `json:"sample_rate,omitempty"`
	BlockSize      *int  `json:"block_size,omitempty"`
	OutputChannels *int  `json:"output_channels,omitempty"`
	SceneCapacity  *int  `json:"scene_capacity,omitempty"`
	NullOutput     *bool `json:"null_output,omitempty"`

	Profile          *string  `json:"profile,omitempty"`
	HeadphoneMode    *string  `json:"headphone_mode,omitempty"`
	HeadphoneProfile *string  `json:"headphone_profile,omitempty"`
	RenderBudget     *int     `json:"render_budget,omitempty"`
	MasterGainDB     *float64 `json:"master_gain_db,omitempty"`

	RoomEnabled          *bool    `json:"room_enabled,omitempty"`
	RoomSize             *float64 `json:"room_size,omitempty"`
	Damping              *float64 `json:"damping,omitempty"`
	ReverbMix            *float64 `json:"reverb_mix,omitempty"`
	EarlyReflectionsOnly *bool    `json:"early_reflections_only,omitempty"`
	HighQuality          *bool    `json:"high_quality,omitempty"`

	DopplerEnabled    *bool    `json:"doppler_enabled,omitempty"`
	DopplerScale      *float64 `json:"doppler_scale,omitempty"`
	AirAbsorption     *bool    `json:"air_absorption,omitempty"`
	DistanceModel     *string  `json:"distance_model,omitempty"`
	ReferenceDistance *float64 `json:"reference_distance,omitempty"`
	MaxDistance       *float64 `json:"max_distance,omitempty"`

	Calibration *CalibrationConfig `json:"calibration,omitempty"`
	RoomProfile *scene.RoomProfile `json:"room_profile,omitempty"`

	PoseBind             *string                     `json:"pose_bind,omitempty"`
	AckPort              *int                        `json:"ack_port,omitempty"`
	AckInterval          *string                     `json:"ack_interval,omitempty"` // duration string like "100ms"
	AllowSequenceRestart *bool                       `json:"allow_sequence_restart,omitempty"`
	PoseSerial           *string                     `json:"pose_serial,omitempty"`
	PoseSerialOptions    *headtracking.SerialOptions `json:"pose_serial_options,omitempty"`

	BridgePort *int  `json:"bridge_port,omitempty"`
	MDNS       *bool `json:"mdns,omitempty"`

	Emitters []EmitterConfig `json:"emitters,omitempty"`
}

// CalibrationConfig is the headphone PEQ curve.
type CalibrationConfig struct {
	Enabled  *bool         `json:"enabled,omitempty"`
	PreampDB float64       `json:"preamp_db,omitempty"`
	Bands    []render.Band `json:"bands,omitempty"`
}

// EmitterConfig declares one emitter instance of the host.
type EmitterConfig struct {
	Label       string        `json:"label,omitempty"`
	Source      string        `json:"source,omitempty"`
	Position    *spatial.Vec3 `json:"position,omitempty"`
	OrbitHz     float64       `json:"orbit_hz,omitempty"`
	OrbitRadius float64       `json:"orbit_radius,omitempty"`
	GainDB      float64       `json:"gain_db,omitempty"`
	Spread      float64       `json:"spread,omitempty"`
	Directivity *float64      `json:"directivity,omitempty"`
	Aim         *spatial.Vec3 `json:"aim,omitempty"`
	Muted       bool          `json:"muted,omitempty"`
	Soloed      bool          `json:"soloed,omitempty"`

	Animation *AnimationConfig `json:"animation,omitempty"`
}

// AnimationConfig drives an emitter from a keyframe timeline instead of
// the orbit. Without tracks it plays the stock flight path.
type AnimationConfig struct {
	Coordinates     string        `json:"coordinates,omitempty"` // spherical or cartesian
	Loop            *bool         `json:"loop,omitempty"`
	Speed           float64       `json:"speed,omitempty"`
	DurationSeconds float64       `json:"duration_seconds,omitempty"`
	Tracks          []TrackConfig `json:"tracks,omitempty"`
}

// TrackConfig is one animated parameter.
type TrackConfig struct {
	Param     string              `json:"param"`
	Keyframes []timeline.Keyframe `json:"keyframes"`
}

func ptrBool(v bool) *bool          { return &v }
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// Empty returns a configuration with every field at its default.
func Empty() *Config {
	return &Config{}
}

// Load reads and validates a JSON configuration file.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns the defaults when path is the
// default location and no file exists there.
func LoadOrDefault(path string) (*Config, error) {
	if path == DefaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return Empty(), nil
		}
	}
	return Load(path)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func checkRange(name string, p *float64, lo, hi float64) error {
	if p == nil {
		return nil
	}
	if !finite(*p) || *p < lo || *p > hi {
		return fmt.Errorf("%s must be between %g and %g, got %g", name, lo, hi, *p)
	}
	return nil
}

// Validate range-checks every set field.
func (c *Config) Validate() error {
	if c.SampleRate != nil && (*c.SampleRate < 8000 || *c.SampleRate > 192000) {
		return fmt.Errorf("sample_rate must be between 8000 and 192000, got %d", *c.SampleRate)
	}
	if c.BlockSize != nil && (*c.BlockSize < 16 || *c.BlockSize > 8192) {
		return fmt.Errorf("block_size must be between 16 and 8192, got %d", *c.BlockSize)
	}
	if c.OutputChannels != nil && (*c.OutputChannels < 1 || *c.OutputChannels > 16) {
		return fmt.Errorf("output_channels must be between 1 and 16, got %d", *c.OutputChannels)
	}
	if c.SceneCapacity != nil && (*c.SceneCapacity < 1 || *c.SceneCapacity > 4096) {
		return fmt.Errorf("scene_capacity must be between 1 and 4096, got %d", *c.SceneCapacity)
	}
	if c.RenderBudget != nil && *c.RenderBudget < 1 {
		return fmt.Errorf("render_budget must be positive, got %d", *c.RenderBudget)
	}

	if c.Profile != nil {
		if _, ok := profile.ParseProfile(*c.Profile); !ok {
			return fmt.Errorf("unknown profile %q", *c.Profile)
		}
	}
	if c.HeadphoneMode != nil {
		if _, ok := profile.ParseHeadphoneMode(*c.HeadphoneMode); !ok {
			return fmt.Errorf("unknown headphone_mode %q", *c.HeadphoneMode)
		}
	}
	if c.HeadphoneProfile != nil {
		if _, ok := profile.ParseHeadphoneDevice(*c.HeadphoneProfile); !ok {
			return fmt.Errorf("unknown headphone_profile %q", *c.HeadphoneProfile)
		}
	}
	if c.DistanceModel != nil {
		if _, ok := render.ParseDistanceModel(*c.DistanceModel); !ok {
			return fmt.Errorf("unknown distance_model %q", *c.DistanceModel)
		}
	}

	for _, r := range []struct {
		name   string
		p      *float64
		lo, hi float64
	}{
		{"master_gain_db", c.MasterGainDB, -120, 24},
		{"room_size", c.RoomSize, 0.5, 5},
		{"damping", c.Damping, 0, 1},
		{"reverb_mix", c.ReverbMix, 0, 1},
		{"doppler_scale", c.DopplerScale, 0, 5},
		{"reference_distance", c.ReferenceDistance, 0.01, 100},
		{"max_distance", c.MaxDistance, 0.1, 1000},
	} {
		if err := checkRange(r.name, r.p, r.lo, r.hi); err != nil {
			return err
		}
	}
	if c.GetReferenceDistance() >= c.GetMaxDistance() {
		return fmt.Errorf("reference_distance %g must be below max_distance %g", c.GetReferenceDistance(), c.GetMaxDistance())
	}

	if c.Calibration != nil {
		cal := c.CalibrationCurve()
		if !cal.Valid(float64(c.GetSampleRate())) {
			return fmt.Errorf("calibration: up to %d bands with valid type, frequency below Nyquist and finite gain", render.MaxPEQStages)
		}
	}

	if c.AckPort != nil && (*c.AckPort < 1 || *c.AckPort > 65535) {
		return fmt.Errorf("ack_port must be between 1 and 65535, got %d", *c.AckPort)
	}
	if c.AckInterval != nil && *c.AckInterval != "" {
		d, err := time.ParseDuration(*c.AckInterval)
		if err != nil {
			return fmt.Errorf("invalid ack_interval '%s': %w", *c.AckInterval, err)
		}
		if d < headtracking.MinAckInterval {
			return fmt.Errorf("ack_interval must be at least %v, got %v", headtracking.MinAckInterval, d)
		}
	}
	if c.PoseSerialOptions != nil {
		if _, err := c.PoseSerialOptions.Mode(); err != nil {
			return fmt.Errorf("pose_serial_options: %w", err)
		}
	}
	if c.BridgePort != nil && (*c.BridgePort < 0 || *c.BridgePort > 65535) {
		return fmt.Errorf("bridge_port must be between 0 and 65535, got %d", *c.BridgePort)
	}

	if len(c.Emitters) > c.GetSceneCapacity() {
		return fmt.Errorf("%d emitters declared but scene_capacity is %d", len(c.Emitters), c.GetSceneCapacity())
	}
	for i, e := range c.Emitters {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("emitters[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate checks one emitter declaration.
func (e *EmitterConfig) Validate() error {
	if len(e.Label) > scene.LabelSize {
		return fmt.Errorf("label longer than %d bytes", scene.LabelSize)
	}
	if e.Position != nil && !e.Position.IsFinite() {
		return errors.New("position must be finite")
	}
	if e.Aim != nil && (!e.Aim.IsFinite() || e.Aim.Length() == 0) {
		return errors.New("aim must be a finite non-zero vector")
	}
	if !finite(e.OrbitHz) || math.Abs(e.OrbitHz) > 10 {
		return fmt.Errorf("orbit_hz must be within ±10, got %g", e.OrbitHz)
	}
	if !finite(e.OrbitRadius) || e.OrbitRadius < 0 {
		return fmt.Errorf("orbit_radius must be non-negative, got %g", e.OrbitRadius)
	}
	if !finite(e.GainDB) || e.GainDB > 24 {
		return fmt.Errorf("gain_db must be at most 24, got %g", e.GainDB)
	}
	if err := checkRange("spread", &e.Spread, 0, 1); err != nil {
		return err
	}
	if err := checkRange("directivity", e.Directivity, 0, 1); err != nil {
		return err
	}
	if e.Animation != nil {
		if err := e.Animation.Validate(); err != nil {
			return fmt.Errorf("animation: %w", err)
		}
	}
	return nil
}

// Validate checks the timeline declaration.
func (a *AnimationConfig) Validate() error {
	switch a.Coordinates {
	case "", "spherical", "cartesian":
	default:
		return fmt.Errorf("coordinates must be spherical or cartesian, got %q", a.Coordinates)
	}
	if !finite(a.Speed) || (a.Speed != 0 && (a.Speed < timeline.MinRate || a.Speed > timeline.MaxRate)) {
		return fmt.Errorf("speed must be between %g and %g, got %g", timeline.MinRate, timeline.MaxRate, a.Speed)
	}
	if !finite(a.DurationSeconds) || a.DurationSeconds < 0 {
		return fmt.Errorf("duration_seconds must be non-negative, got %g", a.DurationSeconds)
	}
	for i, tr := range a.Tracks {
		if !slices.Contains(timeline.Params, tr.Param) {
			return fmt.Errorf("tracks[%d]: unknown param %q", i, tr.Param)
		}
		if len(tr.Keyframes) == 0 {
			return fmt.Errorf("tracks[%d]: no keyframes", i)
		}
		for j, k := range tr.Keyframes {
			if !finite(k.TimeSeconds) || k.TimeSeconds < 0 || !finite(k.Value) {
				return fmt.Errorf("tracks[%d].keyframes[%d] must have a finite non-negative time and finite value", i, j)
			}
		}
	}
	return nil
}

// Cartesian reports whether position tracks are pos_x, pos_y and pos_z
// rather than azimuth, elevation and distance.
func (a *AnimationConfig) Cartesian() bool { return a.Coordinates == "cartesian" }

// Timeline builds the playback timeline. Looping defaults to on.
func (a *AnimationConfig) Timeline() *timeline.Timeline {
	if len(a.Tracks) == 0 {
		tl := timeline.Default()
		a.applyPlayback(tl)
		return tl
	}
	tl := &timeline.Timeline{}
	for _, tr := range a.Tracks {
		tl.SetTrack(timeline.NewTrack(tr.Param, tr.Keyframes...))
	}
	a.applyPlayback(tl)
	return tl
}

func (a *AnimationConfig) applyPlayback(tl *timeline.Timeline) {
	if a.DurationSeconds > 0 {
		tl.SetDuration(a.DurationSeconds)
	}
	tl.SetLooping(a.Loop == nil || *a.Loop)
	if a.Speed != 0 {
		tl.SetPlaybackRate(a.Speed)
	}
}

// Data returns the slot record the emitter publishes before any motion.
func (e *EmitterConfig) Data(slot int) scene.EmitterData {
	d := scene.DefaultEmitterData(slot)
	if e.Label != "" {
		d.Label = scene.MakeLabel(e.Label)
	}
	if e.Position != nil {
		d.Position = *e.Position
	}
	if e.Directivity != nil {
		d.Directivity = *e.Directivity
	}
	if e.Aim != nil {
		d.Aim = *e.Aim
	}
	d.GainDB = e.GainDB
	d.Spread = e.Spread
	d.Muted = e.Muted
	d.Soloed = e.Soloed
	return d
}

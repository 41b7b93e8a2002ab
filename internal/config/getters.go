// ABOUTME: Default-supplying accessors for the host configuration
// ABOUTME: Converts settings into renderer controls and pose transport options
package config

import (
	"time"

	"github.com/locusq/locusq-go/pkg/headtracking"
	"github.com/locusq/locusq-go/pkg/profile"
	"github.com/locusq/locusq-go/pkg/render"
	"github.com/locusq/locusq-go/pkg/scene"
)

// DefaultBridgePort is the diagnostics WebSocket port.
const DefaultBridgePort = 8927

func (c *Config) GetSampleRate() int {
	if c.SampleRate == nil {
		return 48000
	}
	return *c.SampleRate
}

func (c *Config) GetBlockSize() int {
	if c.BlockSize == nil {
		return 512
	}
	return *c.BlockSize
}

func (c *Config) GetOutputChannels() int {
	if c.OutputChannels == nil {
		return 2
	}
	return *c.OutputChannels
}

func (c *Config) GetSceneCapacity() int {
	if c.SceneCapacity == nil {
		return scene.DefaultCapacity
	}
	return *c.SceneCapacity
}

func (c *Config) GetNullOutput() bool {
	if c.NullOutput == nil {
		return false
	}
	return *c.NullOutput
}

func (c *Config) GetProfile() profile.Profile {
	if c.Profile == nil {
		return profile.Auto
	}
	p, _ := profile.ParseProfile(*c.Profile)
	return p
}

func (c *Config) GetHeadphoneMode() profile.HeadphoneMode {
	if c.HeadphoneMode == nil {
		return profile.StereoDownmix
	}
	m, _ := profile.ParseHeadphoneMode(*c.HeadphoneMode)
	return m
}

func (c *Config) GetHeadphoneProfile() profile.HeadphoneDevice {
	if c.HeadphoneProfile == nil {
		return profile.DeviceGeneric
	}
	d, _ := profile.ParseHeadphoneDevice(*c.HeadphoneProfile)
	return d
}

func (c *Config) GetRenderBudget() int {
	if c.RenderBudget == nil {
		return render.DefaultBudget
	}
	return *c.RenderBudget
}

func (c *Config) GetMasterGainDB() float64 {
	if c.MasterGainDB == nil {
		return 0
	}
	return *c.MasterGainDB
}

func (c *Config) GetRoomEnabled() bool {
	if c.RoomEnabled == nil {
		return true
	}
	return *c.RoomEnabled
}

func (c *Config) GetRoomSize() float64 {
	if c.RoomSize == nil {
		return 1.0
	}
	return *c.RoomSize
}

func (c *Config) GetDamping() float64 {
	if c.Damping == nil {
		return 0.5
	}
	return *c.Damping
}

func (c *Config) GetReverbMix() float64 {
	if c.ReverbMix == nil {
		return 0.3
	}
	return *c.ReverbMix
}

func (c *Config) GetEarlyReflectionsOnly() bool {
	return c.EarlyReflectionsOnly != nil && *c.EarlyReflectionsOnly
}

func (c *Config) GetHighQuality() bool {
	return c.HighQuality != nil && *c.HighQuality
}

func (c *Config) GetDopplerEnabled() bool {
	if c.DopplerEnabled == nil {
		return true
	}
	return *c.DopplerEnabled
}

func (c *Config) GetDopplerScale() float64 {
	if c.DopplerScale == nil {
		return 1.0
	}
	return *c.DopplerScale
}

func (c *Config) GetAirAbsorption() bool {
	if c.AirAbsorption == nil {
		return true
	}
	return *c.AirAbsorption
}

func (c *Config) GetDistanceModel() render.DistanceModel {
	if c.DistanceModel == nil {
		return render.InverseSquare
	}
	m, _ := render.ParseDistanceModel(*c.DistanceModel)
	return m
}

func (c *Config) GetReferenceDistance() float64 {
	if c.ReferenceDistance == nil {
		return 1.0
	}
	return *c.ReferenceDistance
}

func (c *Config) GetMaxDistance() float64 {
	if c.MaxDistance == nil {
		return 50.0
	}
	return *c.MaxDistance
}

// GetCalibrationEnabled reports whether the PEQ chain should run. A curve
// without an explicit flag is enabled.
func (c *Config) GetCalibrationEnabled() bool {
	if c.Calibration == nil {
		return false
	}
	if c.Calibration.Enabled == nil {
		return len(c.Calibration.Bands) > 0
	}
	return *c.Calibration.Enabled
}

// CalibrationCurve returns the configured curve, or nil when none is set.
func (c *Config) CalibrationCurve() *render.Calibration {
	if c.Calibration == nil {
		return nil
	}
	return &render.Calibration{
		PreampDB: c.Calibration.PreampDB,
		Bands:    append([]render.Band(nil), c.Calibration.Bands...),
	}
}

// GetRoomProfile returns the configured room, or the uncalibrated default.
func (c *Config) GetRoomProfile() scene.RoomProfile {
	if c.RoomProfile == nil {
		return scene.DefaultRoomProfile()
	}
	return *c.RoomProfile
}

func (c *Config) GetPoseBind() string {
	if c.PoseBind == nil || *c.PoseBind == "" {
		return headtracking.DefaultBindAddress
	}
	return *c.PoseBind
}

func (c *Config) GetAckPort() int {
	if c.AckPort == nil {
		return headtracking.DefaultAckPort
	}
	return *c.AckPort
}

func (c *Config) GetAckInterval() time.Duration {
	if c.AckInterval == nil || *c.AckInterval == "" {
		return headtracking.DefaultAckInterval
	}
	d, err := time.ParseDuration(*c.AckInterval)
	if err != nil {
		return headtracking.DefaultAckInterval // default on parse error
	}
	return d
}

func (c *Config) GetAllowSequenceRestart() bool {
	return c.AllowSequenceRestart != nil && *c.AllowSequenceRestart
}

// GetPoseSerial returns the serial device path, empty when the serial
// transport is off.
func (c *Config) GetPoseSerial() string {
	if c.PoseSerial == nil {
		return ""
	}
	return *c.PoseSerial
}

func (c *Config) GetPoseSerialOptions() headtracking.SerialOptions {
	if c.PoseSerialOptions == nil {
		return headtracking.SerialOptions{}
	}
	return *c.PoseSerialOptions
}

func (c *Config) GetBridgePort() int {
	if c.BridgePort == nil {
		return DefaultBridgePort
	}
	return *c.BridgePort
}

func (c *Config) GetMDNS() bool {
	if c.MDNS == nil {
		return true
	}
	return *c.MDNS
}

// ListenerConfig returns the UDP pose listener settings.
func (c *Config) ListenerConfig() headtracking.ListenerConfig {
	return headtracking.ListenerConfig{
		Bind:        c.GetPoseBind(),
		AckPort:     c.GetAckPort(),
		AckInterval: c.GetAckInterval(),
	}
}

// PublisherConfig returns the pose publisher settings.
func (c *Config) PublisherConfig() headtracking.PublisherConfig {
	return headtracking.PublisherConfig{AllowSequenceRestart: c.GetAllowSequenceRestart()}
}

// ApplyControls pushes every renderer setting into ctl.
func (c *Config) ApplyControls(ctl *render.Controls) {
	ctl.SetProfile(c.GetProfile())
	ctl.SetHeadphoneMode(c.GetHeadphoneMode())
	ctl.SetHeadphoneDevice(c.GetHeadphoneProfile())
	ctl.SetCalibration(c.GetCalibrationEnabled(), c.CalibrationCurve())
	ctl.SetDistanceModel(c.GetDistanceModel())
	ctl.SetDistanceRange(c.GetReferenceDistance(), c.GetMaxDistance())
	ctl.SetAirAbsorption(c.GetAirAbsorption())
	ctl.SetDoppler(c.GetDopplerEnabled(), c.GetDopplerScale())
	ctl.SetRoom(c.GetRoomEnabled(), c.GetRoomSize(), c.GetDamping(), c.GetReverbMix())
	ctl.SetEarlyReflectionsOnly(c.GetEarlyReflectionsOnly())
	ctl.SetHighQuality(c.GetHighQuality())
	ctl.SetMasterGainDB(c.GetMasterGainDB())
	ctl.SetBudget(c.GetRenderBudget())
}

// Overrides are command-line values that replace configured ones. Zero
// values leave the configuration alone.
type Overrides struct {
	BridgePort int
	PoseBind   string
	NoMDNS     bool
	NullOutput bool
}

// Apply merges o into c.
func (c *Config) Apply(o Overrides) {
	if o.BridgePort != 0 {
		c.BridgePort = ptrInt(o.BridgePort)
	}
	if o.PoseBind != "" {
		c.PoseBind = ptrString(o.PoseBind)
	}
	if o.NoMDNS {
		c.MDNS = ptrBool(false)
	}
	if o.NullOutput {
		c.NullOutput = ptrBool(true)
	}
}

// GetEmitters returns the declared emitters, or a single orbiting test
// tone when none are declared.
func (c *Config) GetEmitters() []EmitterConfig {
	if len(c.Emitters) > 0 {
		return c.Emitters
	}
	return []EmitterConfig{{
		Label:       "tone",
		Source:      "tone",
		OrbitHz:     0.1,
		OrbitRadius: 2,
	}}
}

// ABOUTME: Bubbletea model for the renderer dashboard
// ABOUTME: Scene, pose and diagnostics display with profile, headphone and room controls
package ui

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/locusq/locusq-go/internal/engine"
	"github.com/locusq/locusq-go/pkg/profile"
	"github.com/locusq/locusq-go/pkg/render"
)

const (
	gainStepDB = 1.0
	minGainDB  = -60.0
	maxGainDB  = 12.0

	maxEmitterRows = 12
)

// Settings is the control state the dashboard starts from. Controls only
// stores what it is told, so the dashboard keeps its own copy of values it
// cycles or steps.
type Settings struct {
	Profile         profile.Profile
	HeadphoneMode   profile.HeadphoneMode
	HeadphoneDevice profile.HeadphoneDevice
	RoomEnabled     bool
	RoomSize        float64
	Damping         float64
	ReverbMix       float64
	MasterGainDB    float64
	Calibration     bool
	HasCalibration  bool
}

// PoseStats summarises the pose transport.
type PoseStats struct {
	Bound      string
	Published  uint64
	LastSeq    uint32
	Invalid    uint32
	Rejected   uint64
	AcksSent   uint32
	Consumers  int
	LastSender string
	YawDeg     float64
	HasPose    bool
}

// StatusMsg updates the dashboard.
type StatusMsg struct {
	Status        engine.Status
	Pose          PoseStats
	BridgeClients int
}

// Model represents the dashboard state.
type Model struct {
	title    string
	controls *render.Controls
	settings Settings

	status        engine.Status
	pose          PoseStats
	bridgeClients int
	haveStatus    bool

	showDebug bool
	quitting  bool
	quitChan  chan struct{}

	width  int
	height int
}

// NewModel creates a dashboard model. controls may be nil, in which case
// the keys only change what is displayed.
func NewModel(title string, controls *render.Controls, settings Settings) Model {
	return Model{
		title:    title,
		controls: controls,
		settings: settings,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.status = msg.Status
		m.pose = msg.Pose
		m.bridgeClients = msg.BridgeClients
		m.haveStatus = true
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if m.quitChan != nil {
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "p":
		m.settings.Profile = nextProfile(m.settings.Profile, 1)
		m.apply(func(c *render.Controls) { c.SetProfile(m.settings.Profile) })
	case "P":
		m.settings.Profile = nextProfile(m.settings.Profile, -1)
		m.apply(func(c *render.Controls) { c.SetProfile(m.settings.Profile) })
	case "h":
		if m.settings.HeadphoneMode == profile.SteamBinaural {
			m.settings.HeadphoneMode = profile.StereoDownmix
		} else {
			m.settings.HeadphoneMode = profile.SteamBinaural
		}
		m.apply(func(c *render.Controls) { c.SetHeadphoneMode(m.settings.HeadphoneMode) })
	case "e":
		m.settings.HeadphoneDevice = nextDevice(m.settings.HeadphoneDevice)
		m.apply(func(c *render.Controls) { c.SetHeadphoneDevice(m.settings.HeadphoneDevice) })
	case "r":
		m.settings.RoomEnabled = !m.settings.RoomEnabled
		m.applyRoom()
	case "[":
		m.settings.ReverbMix = math.Max(0, m.settings.ReverbMix-0.05)
		m.applyRoom()
	case "]":
		m.settings.ReverbMix = math.Min(1, m.settings.ReverbMix+0.05)
		m.applyRoom()
	case "c":
		if !m.settings.HasCalibration {
			break
		}
		m.settings.Calibration = !m.settings.Calibration
		m.apply(func(c *render.Controls) { c.SetCalibration(m.settings.Calibration, nil) })
	case "up", "+", "=":
		m.settings.MasterGainDB = math.Min(maxGainDB, m.settings.MasterGainDB+gainStepDB)
		m.apply(func(c *render.Controls) { c.SetMasterGainDB(m.settings.MasterGainDB) })
	case "down", "-":
		m.settings.MasterGainDB = math.Max(minGainDB, m.settings.MasterGainDB-gainStepDB)
		m.apply(func(c *render.Controls) { c.SetMasterGainDB(m.settings.MasterGainDB) })
	case "d":
		m.showDebug = !m.showDebug
	}
	return m, nil
}

func (m Model) apply(f func(*render.Controls)) {
	if m.controls != nil {
		f(m.controls)
	}
}

func (m Model) applyRoom() {
	s := m.settings
	m.apply(func(c *render.Controls) { c.SetRoom(s.RoomEnabled, s.RoomSize, s.Damping, s.ReverbMix) })
}

// nextProfile steps through the defined profiles with wraparound.
func nextProfile(p profile.Profile, step int) profile.Profile {
	all := profile.Profiles
	for i, q := range all {
		if q == p {
			return all[(i+step+len(all))%len(all)]
		}
	}
	return profile.Auto
}

var deviceCycle = []profile.HeadphoneDevice{
	profile.DeviceGeneric,
	profile.DeviceAirPodsPro2,
	profile.DeviceAirPodsPro3,
	profile.DeviceSonyWH1000XM5,
	profile.DeviceCustomSOFA,
}

func nextDevice(d profile.HeadphoneDevice) profile.HeadphoneDevice {
	for i, q := range deviceCycle {
		if q == d {
			return deviceCycle[(i+1)%len(deviceCycle)]
		}
	}
	return profile.DeviceGeneric
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	m.renderControls(&b)
	b.WriteString("\n")

	if !m.haveStatus {
		b.WriteString(valueStyle.Render("Waiting for the first block..."))
		b.WriteString("\n\n")
	} else {
		m.renderRenderer(&b)
		b.WriteString("\n")
		m.renderScene(&b)
		b.WriteString("\n")
		m.renderPose(&b)
		if m.showDebug {
			b.WriteString("\n")
			m.renderDebug(&b)
		}
		b.WriteString("\n")
	}

	b.WriteString(faintStyle.Render("p/P:Profile  h:Headphone  e:Device  r:Room  [/]:Mix  c:Calibration  ↑/↓:Gain  d:Debug  q:Quit"))
	return b.String()
}

func field(b *strings.Builder, name, value string) {
	b.WriteString(headerStyle.Render(name + ": "))
	b.WriteString(valueStyle.Render(value))
	b.WriteString("\n")
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func (m Model) renderControls(b *strings.Builder) {
	s := m.settings
	b.WriteString(sectionStyle.Render("Controls"))
	b.WriteString("\n")
	field(b, "Profile", s.Profile.String())
	field(b, "Headphone", fmt.Sprintf("%s (%s)", s.HeadphoneMode, s.HeadphoneDevice))
	field(b, "Room", fmt.Sprintf("%s  size %.2f  damping %.2f  mix %.2f", onOff(s.RoomEnabled), s.RoomSize, s.Damping, s.ReverbMix))
	cal := "none"
	if s.HasCalibration {
		cal = onOff(s.Calibration)
	}
	field(b, "Calibration", cal)
	field(b, "Master", fmt.Sprintf("%+.1f dB", s.MasterGainDB))
}

func (m Model) renderRenderer(b *strings.Builder) {
	b.WriteString(sectionStyle.Render("Renderer"))
	b.WriteString("\n")
	d := m.status.Renderer
	if d == nil {
		b.WriteString(warnStyle.Render("  no renderer instance"))
		b.WriteString("\n")
		return
	}

	r := d.Resolution
	active := r.Active.String()
	if r.Fallback() {
		active = warnStyle.Render(active + " (" + r.Stage.String() + ")")
	}
	field(b, "Output", fmt.Sprintf("%s → %s, %d ch, %s", r.Requested, active, d.OutputChannels, d.OutputMode()))

	h := d.Headphone
	hp := h.Active.String()
	if h.Active != h.Requested {
		hp = warnStyle.Render(fmt.Sprintf("%s (%s)", hp, h.Reason))
	}
	field(b, "Headphone", fmt.Sprintf("%s → %s", h.Requested, hp))

	status, reason := d.CompatGuard()
	guard := okStyle.Render(status)
	switch status {
	case render.GuardWarn:
		guard = warnStyle.Render(status + ": " + reason)
	case render.GuardFail:
		guard = failStyle.Render(status + ": " + reason)
	}
	field(b, "Guard", guard)

	field(b, "Emitters", fmt.Sprintf("%d eligible, %d rendered, %d culled (budget %d, activity %d)",
		d.Eligible, d.Processed, d.CulledBudget+d.CulledActivity, d.CulledBudget, d.CulledActivity))
	if d.GuardrailActive || d.NonFinite > 0 {
		b.WriteString(failStyle.Render(fmt.Sprintf("  guardrail active, %d non-finite samples", d.NonFinite)))
		b.WriteString("\n")
	}
}

func (m Model) renderScene(b *strings.Builder) {
	st := m.status
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Scene (%d/%d emitters)", st.ActiveEmitters, st.Capacity)))
	b.WriteString("\n")
	if len(st.Emitters) == 0 {
		b.WriteString(valueStyle.Render("  no active emitters"))
		b.WriteString("\n")
		return
	}
	for i, e := range st.Emitters {
		if i == maxEmitterRows {
			b.WriteString(faintStyle.Render(fmt.Sprintf("  … %d more", len(st.Emitters)-maxEmitterRows)))
			b.WriteString("\n")
			break
		}
		flags := ""
		if e.Muted {
			flags += " muted"
		}
		if e.Soloed {
			flags += " solo"
		}
		fmt.Fprintf(b, "  %2d %-16s", e.Slot, truncate(e.Label, 16))
		b.WriteString(valueStyle.Render(fmt.Sprintf(" (%+.2f, %+.2f, %+.2f)  %+.1f dB%s",
			e.Position.X, e.Position.Y, e.Position.Z, e.GainDB, flags)))
		b.WriteString("\n")
	}
}

func (m Model) renderPose(b *strings.Builder) {
	p := m.pose
	b.WriteString(sectionStyle.Render("Head tracking"))
	b.WriteString("\n")
	if p.Bound != "" {
		field(b, "Listening", p.Bound)
	}
	if !p.HasPose {
		b.WriteString(valueStyle.Render("  no pose received"))
		b.WriteString("\n")
		return
	}
	field(b, "Yaw", fmt.Sprintf("%+6.1f°", p.YawDeg))
	field(b, "Packets", fmt.Sprintf("%d published, seq %d, %d invalid, %d rejected", p.Published, p.LastSeq, p.Invalid, p.Rejected))
	sender := p.LastSender
	if sender == "" {
		sender = "-"
	}
	field(b, "Sender", fmt.Sprintf("%s (%d acks, %d consumers)", sender, p.AcksSent, p.Consumers))
}

func (m Model) renderDebug(b *strings.Builder) {
	st := m.status
	b.WriteString(sectionStyle.Render("Debug"))
	b.WriteString("\n")
	field(b, "Samples", fmt.Sprintf("%d", st.SampleCounter))
	field(b, "Contention", fmt.Sprintf("%d claims lost, %d stale releases", st.ContentionCount, st.StaleOwnerCount))
	field(b, "Bridge", fmt.Sprintf("%d clients", m.bridgeClients))
	for _, inst := range st.Instances {
		reg := inst.Registration
		fmt.Fprintf(b, "  %-10s %-8s %-22s", truncate(inst.Name, 10), inst.Kind, reg.Stage)
		b.WriteString(valueStyle.Render(fmt.Sprintf(" blocks %d underruns %d", inst.Blocks, inst.Underruns)))
		b.WriteString("\n")
	}
	if d := st.Renderer; d != nil {
		c := d.Codec()
		adm, iamf := c.MappingStatus()
		field(b, "Codec", fmt.Sprintf("adm %s, iamf %s, sig %016x", adm, iamf, d.CodecSignature))
	}
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-1] + "…"
}

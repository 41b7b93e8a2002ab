// ABOUTME: Bridge message envelope and payloads exchanged with dashboard clients
// ABOUTME: Hello, scene status broadcasts, status requests and renderer control changes
package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/locusq/locusq-go/pkg/profile"
	"github.com/locusq/locusq-go/pkg/render"
)

// Message types.
const (
	TypeHello         = "bridge/hello"
	TypeStatus        = "scene/status"
	TypeStatusRequest = "status/request"
	TypeControl       = "renderer/control"
	TypeControlAck    = "renderer/control_ack"
	TypeError         = "bridge/error"
)

// Message wraps every frame on the socket.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// inbound is how client frames are decoded; the payload is kept raw until
// the type is known.
type inbound struct {
	Type    string         `json:"type"`
	Control *ControlChange `json:"payload,omitempty"`
}

// Hello is the first message a client receives.
type Hello struct {
	ClientID   string `json:"clientId"`
	Product    string `json:"product"`
	Version    string `json:"version"`
	IntervalMs int64  `json:"intervalMs"`
}

// ControlChange carries the renderer settings a client wants changed.
// Nil fields are left alone.
type ControlChange struct {
	Profile         *string  `json:"profile,omitempty"`
	HeadphoneMode   *string  `json:"headphoneMode,omitempty"`
	HeadphoneDevice *string  `json:"headphoneDevice,omitempty"`
	MasterGainDB    *float64 `json:"masterGainDb,omitempty"`
	HighQuality     *bool    `json:"highQuality,omitempty"`
}

// ErrorPayload reports a rejected client message.
type ErrorPayload struct {
	Message string `json:"message"`
}

func (c ControlChange) String() string {
	b, err := json.Marshal(c)
	if err != nil {
		return err.Error()
	}
	return string(b)
}

// Apply validates every field first and only then writes them, so a bad
// change leaves the controls untouched.
func (c ControlChange) Apply(ctl *render.Controls) error {
	var (
		p   profile.Profile
		hm  profile.HeadphoneMode
		dev profile.HeadphoneDevice
		ok  bool
	)
	if c.Profile != nil {
		if p, ok = profile.ParseProfile(*c.Profile); !ok {
			return fmt.Errorf("unknown profile %q", *c.Profile)
		}
	}
	if c.HeadphoneMode != nil {
		if hm, ok = profile.ParseHeadphoneMode(*c.HeadphoneMode); !ok {
			return fmt.Errorf("unknown headphone mode %q", *c.HeadphoneMode)
		}
	}
	if c.HeadphoneDevice != nil {
		if dev, ok = profile.ParseHeadphoneDevice(*c.HeadphoneDevice); !ok {
			return fmt.Errorf("unknown headphone device %q", *c.HeadphoneDevice)
		}
	}
	if c.MasterGainDB != nil && (*c.MasterGainDB < -120 || *c.MasterGainDB > 24) {
		return fmt.Errorf("master gain %.1f dB out of range [-120, 24]", *c.MasterGainDB)
	}

	if c.Profile != nil {
		ctl.SetProfile(p)
	}
	if c.HeadphoneMode != nil {
		ctl.SetHeadphoneMode(hm)
	}
	if c.HeadphoneDevice != nil {
		ctl.SetHeadphoneDevice(dev)
	}
	if c.MasterGainDB != nil {
		ctl.SetMasterGainDB(*c.MasterGainDB)
	}
	if c.HighQuality != nil {
		ctl.SetHighQuality(*c.HighQuality)
	}
	return nil
}

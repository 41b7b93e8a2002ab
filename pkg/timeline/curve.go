// ABOUTME: Easing curves between keyframes
// ABOUTME: Curve names, shaping functions and JSON encoding by name
package timeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Curve shapes the segment that starts at a keyframe.
type Curve uint8

const (
	Linear Curve = iota
	EaseIn
	EaseOut
	EaseInOut
	Step
)

var curveNames = [...]string{"linear", "easeIn", "easeOut", "easeInOut", "step"}

func (c Curve) String() string {
	if int(c) < len(curveNames) {
		return curveNames[c]
	}
	return curveNames[Linear]
}

// ParseCurve matches a curve name case-insensitively.
func ParseCurve(s string) (Curve, error) {
	s = strings.TrimSpace(s)
	for i, name := range curveNames {
		if strings.EqualFold(s, name) {
			return Curve(i), nil
		}
	}
	return Linear, fmt.Errorf("unknown curve %q", s)
}

// Apply maps segment progress t in [0,1] through the curve. Step holds
// the left keyframe until the next one.
func (c Curve) Apply(t float64) float64 {
	x := min(max(t, 0), 1)
	switch c {
	case EaseIn:
		return x * x
	case EaseOut:
		return 1 - (1-x)*(1-x)
	case EaseInOut:
		if x < 0.5 {
			return 2 * x * x
		}
		y := -2*x + 2
		return 1 - y*y/2
	case Step:
		return 0
	}
	return x
}

func (c Curve) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts a curve name or its index. Out-of-range indices
// clamp to the nearest curve.
func (c *Curve) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		v, err := ParseCurve(name)
		if err != nil {
			return err
		}
		*c = v
		return nil
	}
	var idx float64
	if err := json.Unmarshal(b, &idx); err != nil {
		return fmt.Errorf("curve must be a name or index: %w", err)
	}
	*c = Curve(min(max(int(idx), 0), len(curveNames)-1))
	return nil
}

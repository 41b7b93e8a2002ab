// ABOUTME: Distance attenuation models for emitters
// ABOUTME: Inverse-square, linear and logarithmic laws with a silence floor
package render

import (
	"math"
	"strings"
)

// DistanceModel selects the attenuation law.
type DistanceModel int32

const (
	InverseSquare DistanceModel = iota
	Linear
	Logarithmic
)

func (m DistanceModel) String() string {
	switch m {
	case Linear:
		return "linear"
	case Logarithmic:
		return "logarithmic"
	default:
		return "inverse_square"
	}
}

// ParseDistanceModel maps a spelling to a model.
func ParseDistanceModel(s string) (DistanceModel, bool) {
	switch strings.ToLower(s) {
	case "inverse_square", "":
		return InverseSquare, true
	case "linear":
		return Linear, true
	case "logarithmic":
		return Logarithmic, true
	}
	return InverseSquare, false
}

// DistanceFloor is the smallest gain distance alone can apply (-60 dB).
const DistanceFloor = 0.001

// Attenuator turns a listener distance into a linear gain.
type Attenuator struct {
	model DistanceModel
	ref   float64
	max   float64
}

// NewAttenuator returns an attenuator with sanitized bounds.
func NewAttenuator(model DistanceModel, ref, maxDist float64) Attenuator {
	a := Attenuator{model: model}
	a.ref = math.Max(0.01, ref)
	a.max = math.Max(a.ref+0.1, maxDist)
	return a
}

// Gain returns the attenuation for distance d. Distances inside the
// reference radius are unity; everything else is floored at DistanceFloor.
func (a Attenuator) Gain(d float64) float64 {
	if math.IsNaN(d) {
		return DistanceFloor
	}
	if d <= a.ref {
		return 1
	}
	if d >= a.max {
		return DistanceFloor
	}
	var g float64
	switch a.model {
	case Linear:
		g = 1 - (d-a.ref)/(a.max-a.ref)
	case Logarithmic:
		logRange := math.Log(a.max / a.ref)
		if logRange < 0.001 {
			return 1
		}
		g = 1 - math.Log(d/a.ref)/logRange
	default:
		r := a.ref / d
		g = r * r
	}
	return math.Max(DistanceFloor, g)
}

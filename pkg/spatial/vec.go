// ABOUTME: Vec3 value type and emitter direction helpers
// ABOUTME: Azimuth, elevation and distance of a point relative to the listener
package spatial

import "math"

// Vec3 is a point or direction in listener space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }
func (v Vec3) IsFinite() bool { return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z) }
func (v Vec3) Neg() Vec3 { return Vec3{-v.X, -v.Y, -v.Z} }
func (v Vec3) Horizontal() float64 { return math.Hypot(v.X, v.Z) }
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Normalized returns v scaled to unit length, or fallback when v is
// too short to carry a direction.
func (v Vec3) Normalized(fallback Vec3) Vec3 {
	l := v.Length()
	if l < 1e-9 || !isFinite(l) {
		return fallback
	}
	return v.Scale(1 / l)
}

// Azimuth returns the horizontal angle of p in degrees, 0 straight ahead,
// +90 to the right, in (-180, 180].
func Azimuth(p Vec3) float64 {
	return math.Atan2(p.X, p.Z) * 180 / math.Pi
}

// Elevation returns the vertical angle of p in degrees. A point at the
// listener has no defined elevation and reports 0.
func Elevation(p Vec3) float64 {
	h := p.Horizontal()
	if h < 1e-9 && math.Abs(p.Y) < 1e-9 {
		return 0
	}
	return math.Atan2(p.Y, h) * 180 / math.Pi
}

// FromSpherical places a point at azimuth and elevation degrees and dist
// meters from the listener. It inverts Azimuth, Elevation and Distance.
func FromSpherical(azDeg, elDeg, dist float64) Vec3 {
	az := azDeg * math.Pi / 180
	el := elDeg * math.Pi / 180
	h := dist * math.Cos(el)
	return Vec3{X: h * math.Sin(az), Y: dist * math.Sin(el), Z: h * math.Cos(az)}
}

// Distance returns the distance of p from the listener.
func Distance(p Vec3) float64 {
	return p.Length()
}

// NormalizeDegrees wraps an angle into [-180, 180].
func NormalizeDegrees(deg float64) float64 {
	for deg > 180 {
		deg -= 360
	}
	for deg < -180 {
		deg += 360
	}
	return deg
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ABOUTME: Unit quaternion type for listener orientation
// ABOUTME: Shortest-arc slerp, nlerp fallback and bounded angular-velocity extrapolation
package spatial

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// nlerpThreshold is the dot product above which slerp degrades to a
// normalized linear blend; sin(theta) is too close to zero past it.
const nlerpThreshold = 0.9995

// Quat is an orientation quaternion stored in (x, y, z, w) order, matching
// the head-tracking wire layout.
type Quat struct {
	X, Y, Z, W float64
}

// Identity is the orientation of a listener facing +Z.
var Identity = Quat{W: 1}

func (q Quat) number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func fromNumber(n quat.Number) Quat {
	return Quat{X: n.Imag, Y: n.Jmag, Z: n.Kmag, W: n.Real}
}

// Norm returns the quaternion magnitude.
func (q Quat) Norm() float64 {
	return quat.Abs(q.number())
}

// Dot returns the 4D dot product of two quaternions.
func (q Quat) Dot(o Quat) float64 {
	return q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W
}

// Neg returns -q, which encodes the same rotation.
func (q Quat) Neg() Quat {
	return Quat{-q.X, -q.Y, -q.Z, -q.W}
}

// Mul returns the Hamilton product q*o.
func (q Quat) Mul(o Quat) Quat {
	return fromNumber(quat.Mul(q.number(), o.number()))
}

// IsFinite reports whether all components are finite.
func (q Quat) IsFinite() bool {
	return isFinite(q.X) && isFinite(q.Y) && isFinite(q.Z) && isFinite(q.W)
}

// Normalized returns q scaled to unit length. A degenerate quaternion
// yields Identity.
func (q Quat) Normalized() Quat {
	n := q.Norm()
	if n < 1e-9 || !isFinite(n) {
		return Identity
	}
	return fromNumber(quat.Scale(1/n, q.number()))
}

// FromAxisAngle builds the rotation of angle radians about axis.
func FromAxisAngle(axis Vec3, angle float64) Quat {
	a := axis.Normalized(Vec3{Y: 1})
	s := math.Sin(angle / 2)
	return Quat{X: a.X * s, Y: a.Y * s, Z: a.Z * s, W: math.Cos(angle / 2)}
}

// FromYawDegrees builds a rotation about +Y.
func FromYawDegrees(deg float64) Quat {
	return FromAxisAngle(Vec3{Y: 1}, deg*math.Pi/180)
}

// YawDegrees extracts the rotation about +Y in degrees.
func (q Quat) YawDegrees() float64 {
	siny := 2 * (q.W*q.Y + q.X*q.Z)
	cosy := 1 - 2*(q.Y*q.Y+q.X*q.X)
	return math.Atan2(siny, cosy) * 180 / math.Pi
}

// EulerDegrees splits q into yaw about +Y, pitch about +X and roll about
// +Z, applied in that order.
func (q Quat) EulerDegrees() (yaw, pitch, roll float64) {
	const deg = 180 / math.Pi
	yaw = q.YawDegrees()
	pitch = math.Asin(Clamp(2*(q.W*q.X-q.Y*q.Z), -1, 1)) * deg
	roll = math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.X*q.X+q.Z*q.Z)) * deg
	return yaw, pitch, roll
}

// Nlerp blends linearly along the shorter arc and renormalizes.
func Nlerp(a, b Quat, t float64) Quat {
	if a.Dot(b) < 0 {
		b = b.Neg()
	}
	return Quat{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
		Z: a.Z + (b.Z-a.Z)*t,
		W: a.W + (b.W-a.W)*t,
	}.Normalized()
}

// Slerp interpolates between a and b along the shortest arc. t is clamped
// to [0, 1].
func Slerp(a, b Quat, t float64) Quat {
	t = Clamp(t, 0, 1)
	dot := a.Dot(b)
	if dot < 0 {
		b = b.Neg()
		dot = -dot
	}
	if dot > nlerpThreshold {
		return Nlerp(a, b, t)
	}
	dot = Clamp(dot, -1, 1)
	theta0 := math.Acos(dot)
	theta := theta0 * t
	sinTheta0 := math.Sin(theta0)
	s0 := math.Cos(theta) - dot*math.Sin(theta)/sinTheta0
	s1 := math.Sin(theta) / sinTheta0
	sum := quat.Add(quat.Scale(s0, a.number()), quat.Scale(s1, b.number()))
	return fromNumber(sum).Normalized()
}

// Extrapolate advances q by angular velocity omega (rad/s, listener frame)
// over dt seconds using the small-angle update q * (1, omega*dt/2).
func Extrapolate(q Quat, omega Vec3, dt float64) Quat {
	half := omega.Scale(dt / 2)
	delta := Quat{X: half.X, Y: half.Y, Z: half.Z, W: 1}
	return q.Mul(delta).Normalized()
}

// Basis is the listener's local frame expressed in world coordinates.
type Basis struct {
	Right, Up, Ahead Vec3
}

// BasisOf returns the rotated axes of orientation q. Identity yields
// Right=+X, Up=+Y, Ahead=-Z, the wire convention of the head tracker.
func BasisOf(q Quat) Basis {
	q = q.Normalized()
	x, y, z, w := q.X, q.Y, q.Z, q.W
	m00 := 1 - 2*(y*y+z*z)
	m01 := 2 * (x*y - w*z)
	m02 := 2 * (x*z + w*y)
	m10 := 2 * (x*y + w*z)
	m11 := 1 - 2*(x*x+z*z)
	m12 := 2 * (y*z - w*x)
	m20 := 2 * (x*z - w*y)
	m21 := 2 * (y*z + w*x)
	m22 := 1 - 2*(x*x+y*y)
	return Basis{
		Right: Vec3{m00, m10, m20},
		Up:    Vec3{m01, m11, m21},
		Ahead: Vec3{-m02, -m12, -m22},
	}
}

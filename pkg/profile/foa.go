// ABOUTME: First-order ambisonic proxy encode and stereo decode of the quad bed
// ABOUTME: Fixed coefficient set, also used for the HOA alias
package profile

// FOA proxy coefficients.
const (
	foaW    = 0.35355339
	foaXY   = 0.5
	decodeW = 0.70710678
	decodeX = 0.5
	decodeY = 0.22
	decodeZ = 0.08
)

// EncodeFOA encodes one frame of the internal bed (FL, FR, RR, RL) to
// W, X, Y, Z. The bed is planar, so Z is always zero.
func EncodeFOA(fl, fr, rr, rl float32) (w, x, y, z float32) {
	w = foaW * (fl + fr + rr + rl)
	x = foaXY * ((fr + rr) - (fl + rl))
	y = foaXY * ((fl + fr) - (rl + rr))
	return w, x, y, 0
}

// DecodeFOAStereo decodes one FOA frame to a stereo pair.
func DecodeFOAStereo(w, x, y, z float32) (l, r float32) {
	l = decodeW*w - decodeX*x + decodeY*y + decodeZ*z
	r = decodeW*w + decodeX*x + decodeY*y + decodeZ*z
	return l, r
}

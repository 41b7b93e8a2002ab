// ABOUTME: Linear parameter ramp used for per-speaker and master gains
// ABOUTME: Retargeting restarts the ramp from the current value
package render

// gainRampMs is the time a gain change takes to settle.
const gainRampMs = 15.0

type ramp struct {
	current float32
	target  float32
	step    float32
	left    int
	length  int
}

func (r *ramp) prepare(sampleRate float64, value float32) {
	r.length = max(1, int(sampleRate*gainRampMs/1000))
	r.snap(value)
}

func (r *ramp) snap(v float32) {
	r.current, r.target, r.step, r.left = v, v, 0, 0
}

func (r *ramp) setTarget(v float32) {
	if v == r.target {
		return
	}
	r.target = v
	r.left = r.length
	r.step = (v - r.current) / float32(r.length)
}

func (r *ramp) next() float32 {
	if r.left > 0 {
		r.current += r.step
		r.left--
		if r.left == 0 {
			r.current = r.target
		}
	}
	return r.current
}

// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Brings emitter sources to the host rate with continuity across chunks
package resample

// Resampler performs linear interpolation to convert between sample rates.
// The last input frame of each chunk is carried into the next so chunk
// boundaries interpolate without clicks.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64
	lastFrame  []float32
	primed     bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastFrame:  make([]float32, channels),
	}
}

// Ratio returns input frames consumed per output frame.
func (r *Resampler) Ratio() float64 { return r.ratio }

// frame returns sample ch of virtual frame k, where frame 0 is the carried
// frame and frame k>0 is input frame k-1.
func (r *Resampler) frame(input []float32, k, ch int) float32 {
	if k == 0 {
		return r.lastFrame[ch]
	}
	return input[(k-1)*r.channels+ch]
}

// Resample converts interleaved input at inputRate into interleaved output
// at outputRate and returns the number of output samples written. Size
// output with OutputSamplesNeeded plus one frame to consume all input.
func (r *Resampler) Resample(input []float32, output []float32) int {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return 0
	}
	if !r.primed {
		copy(r.lastFrame, input[:r.channels])
		r.primed = true
	}

	outputFrames := len(output) / r.channels
	outIdx := 0
	for outIdx < outputFrames {
		idx := int(r.position)
		if idx+1 > inputFrames {
			break
		}
		frac := float32(r.position - float64(idx))
		for ch := 0; ch < r.channels; ch++ {
			a := r.frame(input, idx, ch)
			b := r.frame(input, idx+1, ch)
			output[outIdx*r.channels+ch] = a + (b-a)*frac
		}
		outIdx++
		r.position += r.ratio
	}

	r.position -= float64(inputFrames)
	if r.position < 0 {
		r.position = 0
	}
	copy(r.lastFrame, input[(inputFrames-1)*r.channels:inputFrames*r.channels])

	return outIdx * r.channels
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0.0
	r.primed = false
	clear(r.lastFrame)
}

// OutputSamplesNeeded calculates how many output samples will be produced from input samples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames) / r.ratio)
	return outputFrames * r.channels
}

// InputSamplesNeeded calculates how many input samples are needed to produce output samples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	inputFrames := int(float64(outputFrames) * r.ratio)
	return inputFrames * r.channels
}

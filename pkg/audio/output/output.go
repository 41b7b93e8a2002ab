// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for the renderer's playback sinks
package output

// Output represents an audio output device
type Output interface {
	// Open initializes the output device for the host channel count
	Open(sampleRate, channels int) error

	// Write outputs interleaved float samples (blocks until written)
	Write(samples []float32) error

	// Close releases output resources
	Close() error
}

// foldToStereo mixes an interleaved block of channels down to two channels,
// even channels to the left and odd channels to the right. dst must hold
// two samples per frame.
func foldToStereo(dst, src []float32, channels int) []float32 {
	frames := len(src) / channels
	dst = dst[:frames*2]
	if channels == 1 {
		for i := 0; i < frames; i++ {
			dst[i*2] = src[i]
			dst[i*2+1] = src[i]
		}
		return dst
	}
	norm := float32(2) / float32(channels)
	for i := 0; i < frames; i++ {
		var l, r float32
		frame := src[i*channels : (i+1)*channels]
		for ch, s := range frame {
			if ch%2 == 0 {
				l += s
			} else {
				r += s
			}
		}
		dst[i*2] = l * norm
		dst[i*2+1] = r * norm
	}
	return dst
}

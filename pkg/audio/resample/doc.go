// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts emitter sources to the host sample rate
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation on interleaved float32 frames and carries the
// last frame across calls so streamed chunks join smoothly.
//
// Example:
//
//	r := resample.New(44100, 48000, 2)
//	n := r.Resample(inputSamples, outputSamples)
package resample

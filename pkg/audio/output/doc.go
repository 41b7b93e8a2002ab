// ABOUTME: Audio output package for playing rendered blocks
// ABOUTME: Provides the Output interface, an oto device sink and a null sink
// Package output provides audio playback sinks for the renderer.
//
// Oto drives the system device through oto/v3 in float32 format and folds
// host layouts wider than stereo down to two channels. Null keeps real-time
// pacing without a device.
//
// Example:
//
//	out := output.NewOto()
//	err := out.Open(48000, 2)
//	err = out.Write(interleaved)
package output

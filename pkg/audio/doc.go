// ABOUTME: Audio fundamentals package providing sample helpers
// ABOUTME: Defines Format, Block and conversions used across the renderer
// Package audio provides the sample-level building blocks shared by the
// emitter sources, the spatial renderer and the device sinks.
//
// Samples are float32 in [-1, 1]. Blocks are planar so DSP stages can
// work on one channel slice at a time:
//
//	b := audio.NewBlock(2, 512)
//	audio.Sanitize(b.Channels[0])
//	n := b.Interleave(dst, 512)
//
// Nothing here allocates except NewBlock.
package audio

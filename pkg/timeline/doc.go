// ABOUTME: Keyframe timeline package
// ABOUTME: Named tracks of eased keyframes evaluated on a looping clock
// Package timeline animates emitter parameters. A Timeline holds one
// Track per parameter name and a playback clock that the owning emitter
// advances once per block.
//
// Evaluation never allocates. Editing tracks does, so edits happen before
// the emitter starts or under the owner's lock.
package timeline

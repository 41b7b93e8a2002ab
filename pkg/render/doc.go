// ABOUTME: Spatial renderer package
// ABOUTME: Per-block emitter rendering, room, topology and headphone paths
// Package render is the spatial renderer: it reads every active emitter
// of a scene.Graph once per audio block and produces host output.
//
// Per block the renderer:
//   - selects eligible emitters (active, audible, solo-aware) and keeps the
//     nearest ones up to the budget, counting the rest as culled by budget
//     or, when their audio is silent, by activity
//   - runs each kept emitter through gain, air absorption, Doppler and a
//     directivity shelf, then pans it onto an internal four-speaker bed
//   - adds early reflections and a feedback delay network to the bed and
//     applies the room profile's delay compensation and trims
//   - resolves the requested output profile against the host channel
//     count with package profile and writes the bed through the matching
//     topology writer, negotiating binaural headphone output on stereo
//     hosts
//
// Nothing in Process allocates, locks or logs. The outcome of each block
// is published as a Diagnostics value that other goroutines read with
// Renderer.Diagnostics.
package render

// ABOUTME: Spatial geometry package
// ABOUTME: Vectors, quaternions and the quad VBAP panner
// Package spatial holds the geometry shared by the renderer and the
// head-tracking path: 3D vectors, unit quaternions, emitter direction
// helpers and a vector-base amplitude panner for the internal quad bed.
//
// Coordinates are right-handed with +Y up and +Z toward the front of the
// listener. Azimuth is measured from +Z, positive toward +X.
package spatial

// ABOUTME: Output profile package
// ABOUTME: Profile, stage and headphone enums with the pure routing rules
// Package profile decides which output topology and headphone path the
// renderer uses for a block.
//
// Everything here is a pure function of its arguments: Resolve maps a
// requested profile and the live host channel count to the profile that
// can actually be realized plus the fallback stage that fired, and
// NegotiateHeadphone does the same for the binaural path. The enum
// spellings returned by String are read by external tooling and must not
// change.
package profile

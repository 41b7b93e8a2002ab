// ABOUTME: Audio sample helpers shared by sources, renderer and sinks
// ABOUTME: Planar float blocks, decibel conversion, sanitizing and integer PCM conversion
package audio

import "math"

// SilenceDB is the level at or below which a gain is treated as silence.
const SilenceDB = -60.0

// Format describes a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Block is one audio block in planar layout. Channel slices share one
// backing array so a Block allocates once.
type Block struct {
	Channels [][]float32
	Frames   int
}

// NewBlock allocates a zeroed block.
func NewBlock(channels, frames int) *Block {
	backing := make([]float32, channels*frames)
	b := &Block{Channels: make([][]float32, channels), Frames: frames}
	for ch := range b.Channels {
		b.Channels[ch] = backing[ch*frames : (ch+1)*frames : (ch+1)*frames]
	}
	return b
}

// NumChannels returns the channel count.
func (b *Block) NumChannels() int { return len(b.Channels) }

// Clear zeroes the first n frames of every channel.
func (b *Block) Clear(n int) {
	for _, ch := range b.Channels {
		clear(ch[:min(n, len(ch))])
	}
}

// Interleave writes the first n frames into dst as frame-major samples and
// returns the number of samples written.
func (b *Block) Interleave(dst []float32, n int) int {
	nch := len(b.Channels)
	if nch == 0 {
		return 0
	}
	n = min(n, b.Frames, len(dst)/nch)
	for i := 0; i < n; i++ {
		for ch := 0; ch < nch; ch++ {
			dst[i*nch+ch] = b.Channels[ch][i]
		}
	}
	return n * nch
}

// DBToGain converts decibels to a linear gain. Levels at or below
// SilenceDB, and non-finite input, are silence.
func DBToGain(db float64) float64 {
	if math.IsNaN(db) || math.IsInf(db, 0) || db <= SilenceDB {
		return 0
	}
	return math.Pow(10, db/20)
}

// GainToDB converts a linear gain to decibels, floored at SilenceDB.
func GainToDB(g float64) float64 {
	if g <= 0 || math.IsNaN(g) {
		return SilenceDB
	}
	return math.Max(SilenceDB, 20*math.Log10(g))
}

// IsFinite reports whether s is neither NaN nor infinite.
func IsFinite(s float32) bool {
	return !math.IsNaN(float64(s)) && !math.IsInf(float64(s), 0)
}

// Sanitize zeroes non-finite samples in place and returns how many it
// replaced.
func Sanitize(buf []float32) int {
	n := 0
	for i, s := range buf {
		if !IsFinite(s) {
			buf[i] = 0
			n++
		}
	}
	return n
}

// Peak returns the largest absolute sample value.
func Peak(buf []float32) float32 {
	var p float32
	for _, s := range buf {
		if s < 0 {
			s = -s
		}
		if s > p {
			p = s
		}
	}
	return p
}

// FromInt16 converts a 16-bit sample to [-1, 1).
func FromInt16(s int16) float32 {
	return float32(s) / 32768
}

// ToInt16 converts a float sample to 16-bit with clipping.
func ToInt16(s float32) int16 {
	v := math.Round(float64(s) * 32767)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// FromBits converts a signed integer sample of the given bit depth to
// [-1, 1).
func FromBits(s int32, bitDepth int) float32 {
	if bitDepth <= 0 || bitDepth > 32 {
		bitDepth = 16
	}
	return float32(float64(s) / float64(int64(1)<<(bitDepth-1)))
}

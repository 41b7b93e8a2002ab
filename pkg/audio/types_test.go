// ABOUTME: Tests for audio sample helpers
// ABOUTME: Decibel conversion, sanitizing and integer PCM round trips
package audio

import (
	"math"
	"testing"
)

func TestDBToGain(t *testing.T) {
	tests := []struct {
		name     string
		db       float64
		expected float64
	}{
		{"unity", 0, 1},
		{"minus six", -6.0206, 0.5},
		{"plus six", 6.0206, 2},
		{"silence floor", -60, 0},
		{"below floor", -90, 0},
		{"nan", math.NaN(), 0},
		{"inf", math.Inf(1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DBToGain(tt.db)
			if math.Abs(result-tt.expected) > 1e-4 {
				t.Errorf("expected %f, got %f", tt.expected, result)
			}
		})
	}
}

func TestGainToDB(t *testing.T) {
	if got := GainToDB(1); math.Abs(got) > 1e-9 {
		t.Errorf("expected 0 dB, got %f", got)
	}
	if got := GainToDB(0); got != SilenceDB {
		t.Errorf("expected floor, got %f", got)
	}
}

func TestSanitize(t *testing.T) {
	buf := []float32{0.5, float32(math.NaN()), float32(math.Inf(-1)), -0.25}
	n := Sanitize(buf)
	if n != 2 {
		t.Errorf("expected 2 replacements, got %d", n)
	}
	want := []float32{0.5, 0, 0, -0.25}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("sample %d: expected %f, got %f", i, want[i], buf[i])
		}
	}
}

func TestInt16Conversion(t *testing.T) {
	tests := []struct {
		name     string
		input    float32
		expected int16
	}{
		{"zero", 0, 0},
		{"full scale", 1, 32767},
		{"negative full scale", -1, -32767},
		{"clipped high", 2, 32767},
		{"clipped low", -2, -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToInt16(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}

	if got := FromInt16(-32768); got != -1 {
		t.Errorf("expected -1, got %f", got)
	}
}

func TestFromBits(t *testing.T) {
	if got := FromBits(1<<23, 24); got != 1 {
		t.Errorf("expected 1, got %f", got)
	}
	if got := FromBits(-(1 << 15), 16); got != -1 {
		t.Errorf("expected -1, got %f", got)
	}
}

func TestBlockInterleave(t *testing.T) {
	b := NewBlock(2, 3)
	copy(b.Channels[0], []float32{1, 2, 3})
	copy(b.Channels[1], []float32{-1, -2, -3})

	dst := make([]float32, 6)
	if n := b.Interleave(dst, 3); n != 6 {
		t.Fatalf("expected 6 samples, got %d", n)
	}
	want := []float32{1, -1, 2, -2, 3, -3}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("sample %d: expected %f, got %f", i, want[i], dst[i])
		}
	}

	b.Clear(2)
	if b.Channels[0][0] != 0 || b.Channels[1][1] != 0 || b.Channels[0][2] != 3 {
		t.Errorf("clear touched the wrong frames: %v", b.Channels)
	}
}

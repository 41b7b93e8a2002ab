// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams float32 blocks to the system device with software volume control
package output

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"
)

// Oto output implementation using oto library. Oto plays at most two
// channels, so wider host layouts are folded down before playback.
type Oto struct {
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	sampleRate int
	channels   int
	volume     int
	muted      bool
	ready      bool

	folded []float32
	bytes  []byte
}

// NewOto creates a new Oto output
func NewOto() *Oto {
	return &Oto{
		volume: 100,
	}
}

// Open initializes the output device
func (o *Oto) Open(sampleRate, channels int) error {
	if channels <= 0 {
		return fmt.Errorf("invalid channel count %d", channels)
	}

	// oto allows one context per process, so a second Open keeps the first format
	if o.otoCtx != nil {
		if o.sampleRate != sampleRate {
			logrus.WithFields(logrus.Fields{
				"from": o.sampleRate,
				"to":   sampleRate,
			}).Warn("Sample rate change ignored, oto cannot reinitialize")
		}
		o.channels = channels
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	o.otoCtx = ctx
	o.sampleRate = sampleRate
	o.channels = channels

	// Persistent player reading from a pipe for continuous streaming
	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = o.otoCtx.NewPlayer(o.pipeReader)
	o.player.Play()

	o.ready = true

	logrus.WithFields(logrus.Fields{
		"sample_rate":   sampleRate,
		"host_channels": channels,
	}).Info("Audio output initialized")

	return nil
}

// Write outputs interleaved samples (blocks until written)
func (o *Oto) Write(samples []float32) error {
	if !o.ready {
		return fmt.Errorf("output not initialized")
	}

	frames := len(samples) / o.channels
	if cap(o.folded) < frames*2 {
		o.folded = make([]float32, frames*2)
		o.bytes = make([]byte, frames*2*4)
	}
	stereo := foldToStereo(o.folded, samples[:frames*o.channels], o.channels)

	multiplier := float32(getVolumeMultiplier(o.volume, o.muted))
	out := o.bytes[:len(stereo)*4]
	for i, s := range stereo {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s*multiplier))
	}

	if _, err := o.pipeWriter.Write(out); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			return fmt.Errorf("suspend oto context: %w", err)
		}
		o.ready = false
	}
	return nil
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	o.volume = max(0, min(volume, 100))
	logrus.WithField("volume", o.volume).Debug("Volume set")
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.muted = muted
	logrus.WithField("muted", muted).Debug("Mute set")
}

// GetVolume returns current volume
func (o *Oto) GetVolume() int {
	return o.volume
}

// IsMuted returns mute state
func (o *Oto) IsMuted() bool {
	return o.muted
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}

// ABOUTME: Emitter audio source abstraction for tones and decoded files
// ABOUTME: Opens a source from a config string and brings it to the host rate
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Source produces interleaved float32 PCM. File sources loop at end of
// stream so an emitter never runs dry.
type Source interface {
	// Read fills dst with interleaved samples and returns how many it wrote.
	Read(dst []float32) (int, error)
	SampleRate() int
	Channels() int
	// Name is a short label for logs and the dashboard.
	Name() string
	Close() error
}

// DefaultToneHz is the frequency of a bare "tone" source.
const DefaultToneHz = 440.0

// Open creates a source from locator and resamples it to sampleRate when its
// native rate differs. locator is "tone", "tone:<hz>", "noise" or a path to
// an .mp3, .flac or .lqop file. An empty locator is a default tone.
func Open(locator string, sampleRate int) (Source, error) {
	src, err := open(locator, sampleRate)
	if err != nil {
		return nil, err
	}
	if src.SampleRate() != sampleRate {
		logrus.WithFields(logrus.Fields{
			"source": src.Name(),
			"from":   src.SampleRate(),
			"to":     sampleRate,
		}).Debug("resampling emitter source")
		return NewResampled(src, sampleRate), nil
	}
	return src, nil
}

func open(locator string, sampleRate int) (Source, error) {
	switch {
	case locator == "" || locator == "tone":
		return NewTone(DefaultToneHz, sampleRate), nil
	case strings.HasPrefix(locator, "tone:"):
		hz, err := strconv.ParseFloat(strings.TrimPrefix(locator, "tone:"), 64)
		if err != nil || hz <= 0 || hz >= float64(sampleRate)/2 {
			return nil, fmt.Errorf("invalid tone frequency in %q", locator)
		}
		return NewTone(hz, sampleRate), nil
	case locator == "noise":
		return NewNoise(sampleRate, 1), nil
	}

	if _, err := os.Stat(locator); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(locator)); ext {
	case ".mp3":
		return OpenMP3(locator)
	case ".flac":
		return OpenFLAC(locator)
	case OpusPacketExt:
		return OpenOpusPackets(locator)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac, %s)", ext, OpusPacketExt)
	}
}

func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

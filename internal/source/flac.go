// ABOUTME: Looping FLAC emitter source decoded with mewkiz/flac
// ABOUTME: Keeps the undelivered tail of each frame for the next read
package source

import (
	"fmt"
	"io"
	"os"

	"github.com/locusq/locusq-go/pkg/audio"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/sirupsen/logrus"
)

// FLAC reads a FLAC stream frame by frame and rewinds at the end.
type FLAC struct {
	r          io.ReadSeeker
	closer     io.Closer
	stream     *flac.Stream
	name       string
	sampleRate int
	channels   int
	bitDepth   int
	pending    []float32
	pendingOff int
}

// OpenFLAC opens a FLAC file.
func OpenFLAC(path string) (*FLAC, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}
	s, err := NewFLAC(f, baseName(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	logrus.WithFields(logrus.Fields{
		"file":        s.name,
		"sample_rate": s.sampleRate,
		"channels":    s.channels,
		"bit_depth":   s.bitDepth,
	}).Info("loaded FLAC")
	return s, nil
}

// NewFLAC decodes from r. The source does not own r.
func NewFLAC(r io.ReadSeeker, name string) (*FLAC, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}
	info := stream.Info
	if info.NChannels == 0 {
		return nil, fmt.Errorf("FLAC stream %s has no channels", name)
	}
	return &FLAC{
		r:          r,
		stream:     stream,
		name:       name,
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		bitDepth:   int(info.BitsPerSample),
	}, nil
}

func (s *FLAC) rewind() error {
	if _, err := s.r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	stream, err := flac.New(s.r)
	if err != nil {
		return fmt.Errorf("failed to create new stream: %w", err)
	}
	s.stream = stream
	return nil
}

// appendFrame interleaves f onto dst as float32 samples. Missing
// subframes are treated as silence.
func appendFrame(dst []float32, f *frame.Frame, channels, bitDepth int) []float32 {
	n := int(f.BlockSize)
	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			var v float32
			if ch < len(f.Subframes) && i < len(f.Subframes[ch].Samples) {
				v = audio.FromBits(f.Subframes[ch].Samples[i], bitDepth)
			}
			dst = append(dst, v)
		}
	}
	return dst
}

// Read decodes into dst, looping at end of stream.
func (s *FLAC) Read(dst []float32) (int, error) {
	written := 0
	emptyPasses := 0
	for written < len(dst) {
		if s.pendingOff < len(s.pending) {
			c := copy(dst[written:], s.pending[s.pendingOff:])
			s.pendingOff += c
			written += c
			continue
		}
		f, err := s.stream.ParseNext()
		if err == io.EOF {
			if emptyPasses++; emptyPasses > 1 {
				return written, errEmptyStream
			}
			if err := s.rewind(); err != nil {
				return written, err
			}
			continue
		}
		if err != nil {
			return written, fmt.Errorf("flac decode error: %w", err)
		}
		emptyPasses = 0
		s.pending = appendFrame(s.pending[:0], f, s.channels, s.bitDepth)
		s.pendingOff = 0
	}
	return written, nil
}

func (s *FLAC) SampleRate() int { return s.sampleRate }
func (s *FLAC) Channels() int   { return s.channels }
func (s *FLAC) Name() string    { return s.name }

func (s *FLAC) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

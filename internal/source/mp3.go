// ABOUTME: Looping MP3 emitter source decoded with go-mp3
// ABOUTME: Converts the decoder's 16-bit stereo output to float32
package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
	"github.com/locusq/locusq-go/pkg/audio"
	"github.com/sirupsen/logrus"
)

// errEmptyStream reports a file that decodes to no samples, which would
// otherwise loop forever.
var errEmptyStream = errors.New("stream has no audio")

// MP3 reads an MP3 stream and rewinds at the end.
type MP3 struct {
	r       io.ReadSeeker
	closer  io.Closer
	decoder *mp3.Decoder
	name    string
	buf     []byte
}

// OpenMP3 opens an MP3 file.
func OpenMP3(path string) (*MP3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}
	s, err := NewMP3(f, baseName(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	logrus.WithFields(logrus.Fields{
		"file":        s.name,
		"sample_rate": s.decoder.SampleRate(),
	}).Info("loaded MP3")
	return s, nil
}

// NewMP3 decodes from r. The source does not own r.
func NewMP3(r io.ReadSeeker, name string) (*MP3, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}
	return &MP3{r: r, decoder: decoder, name: name}, nil
}

func (s *MP3) rewind() error {
	if _, err := s.r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	decoder, err := mp3.NewDecoder(s.r)
	if err != nil {
		return fmt.Errorf("failed to create new decoder: %w", err)
	}
	s.decoder = decoder
	return nil
}

// Read decodes into dst, looping at end of stream.
func (s *MP3) Read(dst []float32) (int, error) {
	written := 0
	emptyPasses := 0
	for written < len(dst) {
		need := (len(dst) - written) * 2
		if cap(s.buf) < need {
			s.buf = make([]byte, need)
		}
		buf := s.buf[:need]
		n, err := s.decoder.Read(buf)
		if err != nil && err != io.EOF {
			return written, fmt.Errorf("mp3 decode error: %w", err)
		}
		for i := 0; i+1 < n; i += 2 {
			dst[written] = audio.FromInt16(int16(binary.LittleEndian.Uint16(buf[i:])))
			written++
		}
		if n > 0 {
			emptyPasses = 0
		}
		if err == io.EOF {
			if emptyPasses++; emptyPasses > 1 {
				return written, errEmptyStream
			}
			if err := s.rewind(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (s *MP3) SampleRate() int { return s.decoder.SampleRate() }

// Channels is always 2; go-mp3 decodes to stereo.
func (s *MP3) Channels() int { return 2 }
func (s *MP3) Name() string  { return s.name }

func (s *MP3) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

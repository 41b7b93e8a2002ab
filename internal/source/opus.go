// ABOUTME: Length-prefixed Opus packet files without an Ogg container
// ABOUTME: Looping decoder source and the encoder that writes such files
package source

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/hraban/opus.v2"
)

// Packet file layout: a 12-byte header (magic "LQOP", version, channel
// count, frame size per channel as u16, sample rate as u32) followed by
// packets, each a little-endian u16 length and the Opus payload.
const (
	OpusPacketExt     = ".lqop"
	opusHeaderSize    = 12
	opusFileVersion   = 1
	opusMaxFrame      = 5760
	opusMaxPacketSize = 4000
)

var opusMagic = []byte("LQOP")

// ErrBadOpusHeader is returned for files that do not start with a valid
// packet file header.
var ErrBadOpusHeader = errors.New("invalid opus packet file header")

// OpusHeader describes a packet file.
type OpusHeader struct {
	SampleRate int
	Channels   int
	FrameSize  int
}

func (h OpusHeader) marshal() []byte {
	b := make([]byte, opusHeaderSize)
	copy(b, opusMagic)
	b[4] = opusFileVersion
	b[5] = byte(h.Channels)
	binary.LittleEndian.PutUint16(b[6:], uint16(h.FrameSize))
	binary.LittleEndian.PutUint32(b[8:], uint32(h.SampleRate))
	return b
}

func readOpusHeader(r io.Reader) (OpusHeader, error) {
	var b [opusHeaderSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return OpusHeader{}, fmt.Errorf("%w: %v", ErrBadOpusHeader, err)
	}
	if !bytes.Equal(b[:4], opusMagic) || b[4] != opusFileVersion {
		return OpusHeader{}, ErrBadOpusHeader
	}
	h := OpusHeader{
		Channels:   int(b[5]),
		FrameSize:  int(binary.LittleEndian.Uint16(b[6:])),
		SampleRate: int(binary.LittleEndian.Uint32(b[8:])),
	}
	if h.Channels < 1 || h.Channels > 2 || h.FrameSize <= 0 || h.FrameSize > opusMaxFrame {
		return OpusHeader{}, ErrBadOpusHeader
	}
	return h, nil
}

// OpusPackets decodes a packet file and rewinds at the end.
type OpusPackets struct {
	r          io.ReadSeeker
	closer     io.Closer
	decoder    *opus.Decoder
	header     OpusHeader
	name       string
	packet     []byte
	pcm        []float32
	pending    []float32
	pendingOff int
}

// OpenOpusPackets opens a packet file.
func OpenOpusPackets(path string) (*OpusPackets, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open opus packet file: %w", err)
	}
	s, err := NewOpusPackets(f, baseName(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	logrus.WithFields(logrus.Fields{
		"file":        s.name,
		"sample_rate": s.header.SampleRate,
		"channels":    s.header.Channels,
	}).Info("loaded opus packets")
	return s, nil
}

// NewOpusPackets decodes from r. The source does not own r.
func NewOpusPackets(r io.ReadSeeker, name string) (*OpusPackets, error) {
	h, err := readOpusHeader(r)
	if err != nil {
		return nil, err
	}
	dec, err := opus.NewDecoder(h.SampleRate, h.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}
	return &OpusPackets{
		r:       r,
		decoder: dec,
		header:  h,
		name:    name,
		packet:  make([]byte, opusMaxPacketSize),
		pcm:     make([]float32, opusMaxFrame*h.Channels),
	}, nil
}

// Header returns the file header.
func (s *OpusPackets) Header() OpusHeader { return s.header }

// nextPacket returns the next payload or io.EOF at a clean end of file.
func (s *OpusPackets) nextPacket() ([]byte, error) {
	var lb [2]byte
	if _, err := io.ReadFull(s.r, lb[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("truncated packet length: %w", err)
		}
		return nil, err
	}
	n := int(binary.LittleEndian.Uint16(lb[:]))
	if n == 0 || n > len(s.packet) {
		return nil, fmt.Errorf("invalid opus packet length %d", n)
	}
	if _, err := io.ReadFull(s.r, s.packet[:n]); err != nil {
		return nil, fmt.Errorf("truncated opus packet: %w", err)
	}
	return s.packet[:n], nil
}

func (s *OpusPackets) rewind() error {
	if _, err := s.r.Seek(opusHeaderSize, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to first packet: %w", err)
	}
	return nil
}

// Read decodes into dst, looping at end of file.
func (s *OpusPackets) Read(dst []float32) (int, error) {
	written := 0
	emptyPasses := 0
	for written < len(dst) {
		if s.pendingOff < len(s.pending) {
			c := copy(dst[written:], s.pending[s.pendingOff:])
			s.pendingOff += c
			written += c
			continue
		}
		pkt, err := s.nextPacket()
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
			return written, err
		}
		emptyPasses = 0
		n, err := s.decoder.DecodeFloat32(pkt, s.pcm)
		if err != nil {
			return written, fmt.Errorf("opus decode failed: %w", err)
		}
		s.pending = s.pcm[:n*s.header.Channels]
		s.pendingOff = 0
	}
	return written, nil
}

func (s *OpusPackets) SampleRate() int { return s.header.SampleRate }
func (s *OpusPackets) Channels() int   { return s.header.Channels }
func (s *OpusPackets) Name() string    { return s.name }

func (s *OpusPackets) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// OpusWriter encodes interleaved float32 PCM into a packet file in 20 ms
// frames.
type OpusWriter struct {
	w       io.Writer
	encoder *opus.Encoder
	header  OpusHeader
	frame   []float32
	fill    int
	packet  []byte
	packets int
}

// NewOpusWriter writes the file header and returns the writer. sampleRate
// must be one Opus supports (8, 12, 16, 24 or 48 kHz).
func NewOpusWriter(w io.Writer, sampleRate, channels int) (*OpusWriter, error) {
	encoder, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	h := OpusHeader{SampleRate: sampleRate, Channels: channels, FrameSize: sampleRate / 50}
	if _, err := w.Write(h.marshal()); err != nil {
		return nil, fmt.Errorf("write opus header: %w", err)
	}
	return &OpusWriter{
		w:       w,
		encoder: encoder,
		header:  h,
		frame:   make([]float32, h.FrameSize*channels),
		packet:  make([]byte, 2+opusMaxPacketSize),
	}, nil
}

// Write buffers pcm and emits every completed frame.
func (o *OpusWriter) Write(pcm []float32) error {
	for len(pcm) > 0 {
		c := copy(o.frame[o.fill:], pcm)
		o.fill += c
		pcm = pcm[c:]
		if o.fill == len(o.frame) {
			if err := o.flushFrame(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *OpusWriter) flushFrame() error {
	n, err := o.encoder.EncodeFloat32(o.frame, o.packet[2:])
	if err != nil {
		return fmt.Errorf("opus encode error: %w", err)
	}
	binary.LittleEndian.PutUint16(o.packet, uint16(n))
	if _, err := o.w.Write(o.packet[:2+n]); err != nil {
		return fmt.Errorf("write opus packet: %w", err)
	}
	o.fill = 0
	o.packets++
	return nil
}

// Close pads and emits a final partial frame. It does not close the
// underlying writer.
func (o *OpusWriter) Close() error {
	if o.fill == 0 {
		return nil
	}
	clear(o.frame[o.fill:])
	return o.flushFrame()
}

// Packets returns the number of packets written.
func (o *OpusWriter) Packets() int { return o.packets }

// ABOUTME: Serial-port pose transport for wired trackers
// ABOUTME: Port options, magic-framed stream decoding and the read loop
package headtracking

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// SerialOptions describes the tracker's serial line.
type SerialOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates o and fills defaults (115200 8N1).
func (o SerialOptions) Normalize() (SerialOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = 115200
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("invalid data bits %d: must be between 5 and 8", o.DataBits)
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.StopBits != 1 && o.StopBits != 2 {
		return o, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", o.StopBits)
	}
	switch p := strings.ToUpper(strings.TrimSpace(o.Parity)); p {
	case "", "N", "NONE":
		o.Parity = "N"
	case "E", "EVEN":
		o.Parity = "E"
	case "O", "ODD":
		o.Parity = "O"
	default:
		return o, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	return o, nil
}

// Mode converts o to the go.bug.st/serial port mode.
func (o SerialOptions) Mode() (*serial.Mode, error) {
	o, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: o.BaudRate,
		DataBits: o.DataBits,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	if o.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch o.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

// OpenSerial opens the tracker port at path.
func OpenSerial(path string, opts SerialOptions) (serial.Port, error) {
	mode, err := opts.Mode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return port, nil
}

// FrameReader splits a byte stream into pose packets. Each packet starts
// with PacketMagic; bytes that do not line up with a packet are skipped.
// Version 1 packets on a stream always carry the reserved tail.
type FrameReader struct {
	r       *bufio.Reader
	frame   [MaxPacketSize]byte
	skipped uint64
}

// NewFrameReader reads frames from r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, 4*MaxPacketSize)}
}

// Skipped is the number of bytes discarded while searching for a frame.
func (f *FrameReader) Skipped() uint64 { return f.skipped }

// Next returns the next framed packet. The slice is valid until the next
// call. io.EOF is returned at a clean end of stream.
func (f *FrameReader) Next() ([]byte, error) {
	var magic [4]byte
	le := binary.LittleEndian
	le.PutUint32(magic[:], PacketMagic)

	for {
		matched := 0
		for matched < len(magic) {
			c, err := f.r.ReadByte()
			if err != nil {
				return nil, err
			}
			switch {
			case c == magic[matched]:
				matched++
			case c == magic[0]:
				f.skipped += uint64(matched)
				matched = 1
			default:
				f.skipped += uint64(matched) + 1
				matched = 0
			}
		}
		copy(f.frame[:4], magic[:])
		if _, err := io.ReadFull(f.r, f.frame[4:8]); err != nil {
			return nil, unexpected(err)
		}
		size := PacketSize(le.Uint32(f.frame[4:8]))
		if size == 0 {
			// Not a packet header after all.
			f.skipped += 8
			continue
		}
		if _, err := io.ReadFull(f.r, f.frame[8:size]); err != nil {
			return nil, unexpected(err)
		}
		return f.frame[:size], nil
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ReadStream feeds every framed packet of r to pub until r ends or ctx is
// cancelled. Cancellation takes effect between packets, so the caller
// should close r to interrupt a blocked read.
func ReadStream(ctx context.Context, r io.Reader, pub *Publisher) error {
	log := logrus.WithField("component", "pose-serial")
	fr := NewFrameReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		pkt, err := fr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read pose stream: %w", err)
		}
		if err := pub.HandlePacket(pkt); err != nil {
			log.WithError(err).Debug("Dropped pose frame")
		}
	}
}

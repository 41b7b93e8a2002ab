// ABOUTME: Tests for the serial transport
// ABOUTME: Port option normalization and resynchronizing stream framing
package headtracking

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestSerialOptions(t *testing.T) {
	tests := []struct {
		name    string
		in      SerialOptions
		want    SerialOptions
		wantErr bool
	}{
		{"defaults", SerialOptions{}, SerialOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}, false},
		{"even spelled out", SerialOptions{BaudRate: 9600, Parity: " even "}, SerialOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "E"}, false},
		{"bad data bits", SerialOptions{DataBits: 9}, SerialOptions{}, true},
		{"bad stop bits", SerialOptions{StopBits: 3}, SerialOptions{}, true},
		{"bad parity", SerialOptions{Parity: "mark"}, SerialOptions{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSerialMode(t *testing.T) {
	mode, err := SerialOptions{StopBits: 2, Parity: "O"}.Mode()
	require.NoError(t, err)
	assert.Equal(t, 115200, mode.BaudRate)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.OddParity, mode.Parity)
}

func TestFrameReaderResyncs(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x54, 0x54, 0x50}) // noise, including a partial magic
	stream.Write(AppendPacket(nil, snap(1, 10, 0), 1))
	stream.Write([]byte{0xff, 0xfe})
	stream.Write(AppendPacket(nil, snap(2, 20, 0), 2))

	fr := NewFrameReader(&stream)
	first, err := fr.Next()
	require.NoError(t, err)
	require.Len(t, first, PacketSizeV1)
	s, err := Decode(first)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), s.Seq)

	second, err := fr.Next()
	require.NoError(t, err)
	require.Len(t, second, PacketSizeV2)
	s, err = Decode(second)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), s.Seq)

	_, err = fr.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, uint64(6), fr.Skipped())
}

func TestFrameReaderTruncatedPacket(t *testing.T) {
	pkt := AppendPacket(nil, snap(1, 10, 0), 1)
	fr := NewFrameReader(bytes.NewReader(pkt[:20]))
	_, err := fr.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadStreamPublishes(t *testing.T) {
	var stream bytes.Buffer
	for seq := uint32(1); seq <= 5; seq++ {
		stream.Write(AppendPacket(nil, snap(seq, uint64(seq)*10, float64(seq)), 1))
	}
	pub := NewPublisher(PublisherConfig{})
	require.NoError(t, ReadStream(context.Background(), &stream, pub))
	assert.Equal(t, uint32(5), pub.LastSeq())
	assert.Equal(t, uint64(5), pub.PublishedCount())
}

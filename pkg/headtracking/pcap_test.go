// ABOUTME: Tests for pcap recording and replay of pose datagrams
// ABOUTME: Round trip through a capture, port filtering and invalid payloads
package headtracking

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndReplay(t *testing.T) {
	src := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000}
	posePort := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 19765}

	var capture bytes.Buffer
	rec, err := NewRecorder(&capture, src, posePort)
	require.NoError(t, err)

	start := time.Unix(1_700_000_000, 0)
	for seq := uint32(1); seq <= 3; seq++ {
		pkt := AppendPacket(nil, snap(seq, uint64(seq)*20, float64(seq)*10), 2)
		require.NoError(t, rec.Record(pkt, start.Add(time.Duration(seq)*20*time.Millisecond)))
	}
	require.NoError(t, rec.Record([]byte("not a pose"), start.Add(100*time.Millisecond)))
	assert.Equal(t, 4, rec.Written())

	pub := NewPublisher(PublisherConfig{})
	stats, err := Replay(context.Background(), bytes.NewReader(capture.Bytes()), pub, ReplayOptions{Port: 19765})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Packets)
	assert.Equal(t, 4, stats.Payloads)
	assert.Equal(t, 1, stats.Invalid)
	assert.Equal(t, 80*time.Millisecond, stats.Duration)
	assert.Equal(t, uint32(3), pub.LastSeq())

	other := NewPublisher(PublisherConfig{})
	stats, err = Replay(context.Background(), bytes.NewReader(capture.Bytes()), other, ReplayOptions{Port: 9999})
	require.NoError(t, err)
	assert.Zero(t, stats.Payloads)
	assert.Zero(t, other.LastSeq())
}

func TestReplayRejectsNonCapture(t *testing.T) {
	_, err := Replay(context.Background(), bytes.NewReader([]byte("nope")), NewPublisher(PublisherConfig{}), ReplayOptions{})
	assert.Error(t, err)
}

func TestReplayHonoursCancellation(t *testing.T) {
	var capture bytes.Buffer
	rec, err := NewRecorder(&capture, &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1}, &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 19765})
	require.NoError(t, err)
	require.NoError(t, rec.Record(AppendPacket(nil, snap(1, 1, 0), 1), time.Unix(0, 0)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Replay(ctx, bytes.NewReader(capture.Bytes()), NewPublisher(PublisherConfig{}), ReplayOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

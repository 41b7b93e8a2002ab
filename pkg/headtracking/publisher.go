// ABOUTME: Single-writer pose publication with a strict sequence gate
// ABOUTME: Invalid and rejected packets are counted, accepted ones double-buffered
package headtracking

import (
	"sync/atomic"
	"time"

	"github.com/locusq/locusq-go/pkg/snapshot"
)

// StaleAfterMs is the age past which a pose is reported stale.
const StaleAfterMs = 500

// PublisherConfig tunes a Publisher.
type PublisherConfig struct {
	// AllowSequenceRestart accepts a lower sequence number when the current
	// pose is stale and the incoming timestamp has moved forward, which is
	// what a restarted tracker looks like.
	AllowSequenceRestart bool
	// NowMs returns the wall clock in the tracker's timestamp domain.
	// Defaults to Unix milliseconds.
	NowMs func() uint64
}

// Publisher accepts decoded snapshots from one transport goroutine and
// makes the newest visible to any number of readers.
type Publisher struct {
	cfg PublisherConfig
	buf snapshot.DoubleBuffer[Snapshot]

	// Writer-side state.
	has     bool
	current Snapshot

	lastSeq  atomic.Uint32
	invalid  atomic.Uint32
	rejected atomic.Uint64
	dropped  atomic.Uint64
}

// NewPublisher returns an empty publisher.
func NewPublisher(cfg PublisherConfig) *Publisher {
	if cfg.NowMs == nil {
		cfg.NowMs = func() uint64 { return uint64(time.Now().UnixMilli()) }
	}
	return &Publisher{cfg: cfg}
}

// HandlePacket decodes b and offers the result. Undecodable packets are
// counted and their error returned.
func (p *Publisher) HandlePacket(b []byte) error {
	s, err := Decode(b)
	if err != nil {
		p.invalid.Add(1)
		return err
	}
	p.Offer(s)
	return nil
}

// Offer publishes s if its sequence number advances past the last
// published one. It reports whether s became the current pose.
func (p *Publisher) Offer(s Snapshot) bool {
	if p.has && s.Seq <= p.current.Seq && !p.acceptRestart(s) {
		p.rejected.Add(1)
		return false
	}
	if !p.buf.Publish(&s) {
		p.dropped.Add(1)
		return false
	}
	p.has = true
	p.current = s
	p.lastSeq.Store(s.Seq)
	return true
}

func (p *Publisher) acceptRestart(s Snapshot) bool {
	if !p.cfg.AllowSequenceRestart {
		return false
	}
	ts := p.current.TimestampMs
	stale := ts == 0 || p.cfg.NowMs() >= ts+StaleAfterMs
	return stale && s.TimestampMs > ts
}

// Latest copies the current pose into dst. It returns false before the
// first accepted packet.
func (p *Publisher) Latest(dst *Snapshot) bool { return p.buf.Load(dst) }

// LastSeq is the sequence number of the current pose.
func (p *Publisher) LastSeq() uint32 { return p.lastSeq.Load() }

// InvalidCount is the number of packets that failed to decode.
func (p *Publisher) InvalidCount() uint32 { return p.invalid.Load() }

// RejectedCount is the number of out-of-order or duplicate snapshots.
func (p *Publisher) RejectedCount() uint64 { return p.rejected.Load() }

// DroppedCount is the number of accepted snapshots lost because a reader
// held the back buffer.
func (p *Publisher) DroppedCount() uint64 { return p.dropped.Load() }

// PublishedCount is the number of snapshots made current.
func (p *Publisher) PublishedCount() uint64 { return p.buf.Seq() }

// Ack fills the receipt fields the publisher owns, as of nowMs.
func (p *Publisher) Ack(nowMs uint64) Ack {
	a := Ack{
		LastSeq:      p.LastSeq(),
		InvalidCount: p.InvalidCount(),
		Flags:        AckPoseStale,
	}
	var s Snapshot
	if !p.Latest(&s) {
		return a
	}
	a.Flags = AckPoseAvailable
	a.PoseTimestampMs = s.TimestampMs
	if s.TimestampMs > 0 && nowMs >= s.TimestampMs {
		a.PoseAgeMs = float32(nowMs - s.TimestampMs)
	}
	if a.PoseAgeMs > StaleAfterMs {
		a.Flags |= AckPoseStale
	}
	return a
}

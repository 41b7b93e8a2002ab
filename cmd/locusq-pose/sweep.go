// ABOUTME: Synthetic head motion and the UDP pose sender used by locusq-pose
// ABOUTME: Yaw sweep generator, datagram sender with optional capture, ack watcher
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/locusq/locusq-go/pkg/headtracking"
	"github.com/locusq/locusq-go/pkg/spatial"
)

// sweep produces a sinusoidal yaw motion: amplitude degrees either side of
// forward, hz full cycles per second.
type sweep struct {
	amplitude float64
	hz        float64
	version   uint32
	start     time.Time
	seq       uint32
}

func newSweep(amplitude, hz float64, version uint32, start time.Time) *sweep {
	return &sweep{amplitude: amplitude, hz: hz, version: version, start: start}
}

// yaw returns the angle in degrees and its rate in rad/s at elapsed t.
func (s *sweep) yaw(t time.Duration) (deg, rate float64) {
	phase := 2 * math.Pi * s.hz * t.Seconds()
	deg = s.amplitude * math.Sin(phase)
	rate = s.amplitude * math.Pi / 180 * 2 * math.Pi * s.hz * math.Cos(phase)
	return deg, rate
}

// next returns the pose for now with the following sequence number.
func (s *sweep) next(now time.Time) headtracking.Snapshot {
	elapsed := now.Sub(s.start)
	deg, rate := s.yaw(elapsed)
	s.seq++
	snap := headtracking.Snapshot{
		Orientation: spatial.FromYawDegrees(deg),
		TimestampMs: uint64(elapsed.Milliseconds()),
		Seq:         s.seq,
	}
	if s.version == 2 {
		snap.AngularVelocity = spatial.Vec3{Y: rate}
		snap.Flags = headtracking.FlagRotationRate
	}
	return snap
}

// sender writes pose datagrams to the renderer and optionally records
// them.
type sender struct {
	conn *net.UDPConn
	rec  *headtracking.Recorder
	buf  []byte
	sent int
}

func dialSender(target string) (*sender, error) {
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &sender{conn: conn, buf: make([]byte, 0, headtracking.MaxPacketSize)}, nil
}

// HandlePacket sends one raw datagram, so a sender can be a replay target.
func (s *sender) HandlePacket(b []byte) error {
	if _, err := s.conn.Write(b); err != nil {
		return fmt.Errorf("send pose: %w", err)
	}
	s.sent++
	if s.rec != nil {
		if err := s.rec.Record(b, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

// send encodes snap and sends it.
func (s *sender) send(snap headtracking.Snapshot, version uint32) error {
	s.buf = headtracking.AppendPacket(s.buf[:0], snap, version)
	return s.HandlePacket(s.buf)
}

func (s *sender) localAddr() *net.UDPAddr  { return s.conn.LocalAddr().(*net.UDPAddr) }
func (s *sender) remoteAddr() *net.UDPAddr { return s.conn.RemoteAddr().(*net.UDPAddr) }

func (s *sender) Close() error { return s.conn.Close() }

// runSweep sends poses at rate Hz until ctx is done or duration elapses.
func runSweep(ctx context.Context, s *sender, sw *sweep, rate float64, duration time.Duration) error {
	if rate <= 0 {
		return fmt.Errorf("rate must be positive, got %g", rate)
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()

	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline:
			return nil
		case now := <-ticker.C:
			if err := s.send(sw.next(now), sw.version); err != nil {
				return err
			}
		}
	}
}

// watchAcks reads acks from conn and hands each decoded one to report.
// Malformed datagrams are logged at debug level and skipped.
func watchAcks(ctx context.Context, conn *net.UDPConn, report func(headtracking.Ack)) error {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, headtracking.MaxPacketSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read ack: %w", err)
		}
		var ack headtracking.Ack
		if err := ack.UnmarshalBinary(buf[:n]); err != nil {
			logrus.WithError(err).Debug("Ignored datagram on ack port")
			continue
		}
		report(ack)
	}
}

// ackFields formats an ack for logging.
func ackFields(a headtracking.Ack) logrus.Fields {
	return logrus.Fields{
		"consumers": a.Consumers,
		"last_seq":  a.LastSeq,
		"invalid":   a.InvalidCount,
		"age_ms":    fmt.Sprintf("%.1f", a.PoseAgeMs),
		"available": a.Flags&headtracking.AckPoseAvailable != 0,
		"stale":     a.Flags&headtracking.AckPoseStale != 0,
		"counter":   a.Counter,
	}
}

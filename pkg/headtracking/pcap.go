// ABOUTME: Pose capture recording and replay through pcap files
// ABOUTME: Extracts UDP payloads for the pose port and paces them by capture time
package headtracking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
)

// ReplayOptions controls a capture replay.
type ReplayOptions struct {
	// Port keeps only datagrams sent to this UDP port; 0 keeps all.
	Port int
	// Realtime sleeps between packets to reproduce the capture timing.
	Realtime bool
	// Speed scales realtime pacing; values <= 0 mean 1.
	Speed float64
}

// ReplayStats summarizes a replay.
type ReplayStats struct {
	Packets  int
	Payloads int
	Invalid  int
	Duration time.Duration
}

// PacketHandler consumes raw pose datagrams. *Publisher implements it; a
// sender can implement it to put a capture back on the network.
type PacketHandler interface {
	HandlePacket(b []byte) error
}

// Replay feeds the pose datagrams of a pcap stream to h.
func Replay(ctx context.Context, r io.Reader, h PacketHandler, opts ReplayOptions) (ReplayStats, error) {
	var stats ReplayStats
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("open pose capture: %w", err)
	}
	speed := opts.Speed
	if speed <= 0 {
		speed = 1
	}
	log := logrus.WithFields(logrus.Fields{"component": "pose-replay", "port": opts.Port})

	var first, last time.Time
	started := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		data, ci, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read pose capture: %w", err)
		}
		stats.Packets++

		packet := gopacket.NewPacket(data, pr.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if opts.Port != 0 && int(udp.DstPort) != opts.Port {
			continue
		}

		if first.IsZero() {
			first = ci.Timestamp
		}
		last = ci.Timestamp
		if opts.Realtime {
			due := started.Add(time.Duration(float64(ci.Timestamp.Sub(first)) / speed))
			if wait := time.Until(due); wait > 0 {
				select {
				case <-ctx.Done():
					return stats, ctx.Err()
				case <-time.After(wait):
				}
			}
		}

		stats.Payloads++
		if err := h.HandlePacket(udp.Payload); err != nil {
			stats.Invalid++
			log.WithError(err).Debug("Skipped captured pose")
		}
	}
	stats.Duration = last.Sub(first)
	log.WithFields(logrus.Fields{"packets": stats.Packets, "poses": stats.Payloads}).Info("Pose replay complete")
	return stats, nil
}

// Recorder writes outgoing pose datagrams to a pcap stream so a session
// can be replayed later.
type Recorder struct {
	w       *pcapgo.Writer
	src     *net.UDPAddr
	dst     *net.UDPAddr
	eth     layers.Ethernet
	buf     gopacket.SerializeBuffer
	written int
}

// NewRecorder writes the pcap file header to w and records datagrams as
// sent from src to dst.
func NewRecorder(w io.Writer, src, dst *net.UDPAddr) (*Recorder, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return &Recorder{
		w:   pw,
		src: src,
		dst: dst,
		eth: layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
			DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeIPv4,
		},
		buf: gopacket.NewSerializeBuffer(),
	}, nil
}

// Record appends one datagram captured at ts.
func (r *Recorder) Record(payload []byte, ts time.Time) error {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    r.src.IP.To4(),
		DstIP:    r.dst.IP.To4(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(r.src.Port),
		DstPort: layers.UDPPort(r.dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return fmt.Errorf("record pose: %w", err)
	}
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(r.buf, opts, &r.eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("serialize pose frame: %w", err)
	}
	data := r.buf.Bytes()
	ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
	if err := r.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("write pose frame: %w", err)
	}
	r.written++
	return nil
}

// Written is the number of recorded datagrams.
func (r *Recorder) Written() int { return r.written }

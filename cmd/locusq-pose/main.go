// ABOUTME: Entry point for the LocusQ pose sender tool
// ABOUTME: Sends a synthetic yaw sweep or replays a capture, discovers renderers, shows acks
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/locusq/locusq-go/internal/discovery"
	"github.com/locusq/locusq-go/pkg/headtracking"
)

var (
	target    = flag.String("target", "", "Renderer pose address host:port (default: discover via mDNS, else 127.0.0.1:19765)")
	ackPort   = flag.Int("ack-port", headtracking.DefaultAckPort, "Local UDP port to receive acks on (0 disables)")
	rate      = flag.Float64("rate", 100, "Poses per second")
	amplitude = flag.Float64("sweep-deg", 60, "Yaw sweep amplitude in degrees")
	sweepHz   = flag.Float64("sweep-hz", 0.2, "Yaw sweep cycles per second")
	version   = flag.Uint("packet-version", 2, "Pose packet version (1 or 2)")
	duration  = flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	replay    = flag.String("replay", "", "Replay the pose datagrams of a pcap file instead of sweeping")
	speed     = flag.Float64("speed", 1, "Replay speed multiplier")
	record    = flag.String("record", "", "Record sent datagrams to a pcap file")
	list      = flag.Bool("discover", false, "List renderers found via mDNS and exit")
	noMDNS    = flag.Bool("no-mdns", false, "Do not look for renderers via mDNS")
	debug     = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if *list {
		renderers, err := discovery.Lookup(3 * time.Second)
		if err != nil {
			logrus.Fatalf("discovery: %v", err)
		}
		if len(renderers) == 0 {
			fmt.Println("No renderers found")
			return
		}
		for _, r := range renderers {
			fmt.Printf("%-24s %-22s ack:%d bridge:%d %s\n", r.Instance, r.Addr(), r.AckPort, r.BridgePort, r.Version)
		}
		return
	}

	if *version != 1 && *version != 2 {
		logrus.Fatalf("packet-version must be 1 or 2, got %d", *version)
	}

	addr := resolveTarget()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, addr); err != nil {
		logrus.Fatalf("%v", err)
	}
}

// resolveTarget picks the first discovered renderer unless -target is set.
func resolveTarget() string {
	if *target != "" {
		return *target
	}
	if !*noMDNS {
		renderers, err := discovery.Lookup(2 * time.Second)
		if err != nil {
			logrus.WithError(err).Warn("mDNS lookup failed")
		}
		if len(renderers) > 0 {
			r := renderers[0]
			logrus.WithFields(logrus.Fields{
				"instance": r.Instance,
				"addr":     r.Addr(),
			}).Info("Using discovered renderer")
			if r.AckPort > 0 && *ackPort == headtracking.DefaultAckPort {
				*ackPort = r.AckPort
			}
			return r.Addr()
		}
	}
	return headtracking.DefaultBindAddress
}

func run(ctx context.Context, addr string) error {
	s, err := dialSender(addr)
	if err != nil {
		return err
	}
	defer s.Close()

	if *record != "" {
		f, err := os.Create(*record)
		if err != nil {
			return fmt.Errorf("create capture: %w", err)
		}
		defer f.Close()
		rec, err := headtracking.NewRecorder(f, s.localAddr(), s.remoteAddr())
		if err != nil {
			return err
		}
		s.rec = rec
		defer func() {
			logrus.WithFields(logrus.Fields{"file": *record, "datagrams": rec.Written()}).Info("Capture written")
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	sendCtx, stopSending := context.WithCancel(gctx)
	defer stopSending()

	if *ackPort > 0 {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: *ackPort})
		if err != nil {
			return fmt.Errorf("listen for acks on %d: %w", *ackPort, err)
		}
		var last time.Time
		g.Go(func() error {
			return watchAcks(sendCtx, conn, func(a headtracking.Ack) {
				if time.Since(last) < time.Second {
					return
				}
				last = time.Now()
				logrus.WithFields(ackFields(a)).Info("Ack")
			})
		})
	}

	logrus.WithFields(logrus.Fields{
		"target":  addr,
		"rate":    *rate,
		"version": *version,
	}).Info("Sending poses")

	g.Go(func() error {
		defer stopSending()
		if *replay != "" {
			return replayCapture(sendCtx, s)
		}
		sw := newSweep(*amplitude, *sweepHz, uint32(*version), time.Now())
		return runSweep(sendCtx, s, sw, *rate, *duration)
	})

	err = g.Wait()
	logrus.WithField("sent", s.sent).Info("Pose sender stopped")
	return err
}

func replayCapture(ctx context.Context, s *sender) error {
	f, err := os.Open(*replay)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	stats, err := headtracking.Replay(ctx, f, s, headtracking.ReplayOptions{
		Realtime: true,
		Speed:    *speed,
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"packets":  stats.Packets,
		"sent":     stats.Payloads,
		"duration": stats.Duration,
	}).Info("Replay finished")
	return nil
}

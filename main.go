// ABOUTME: Entry point for the LocusQ spatial audio host
// ABOUTME: Loads config, runs emitter and renderer instances, pose transport, bridge and dashboard
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/locusq/locusq-go/internal/bridge"
	"github.com/locusq/locusq-go/internal/config"
	"github.com/locusq/locusq-go/internal/discovery"
	"github.com/locusq/locusq-go/internal/engine"
	"github.com/locusq/locusq-go/internal/ui"
	"github.com/locusq/locusq-go/internal/version"
	"github.com/locusq/locusq-go/pkg/audio/output"
	"github.com/locusq/locusq-go/pkg/headtracking"
	"github.com/locusq/locusq-go/pkg/render"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Host configuration file (JSON)")
	name       = flag.String("name", "", "Instance name for mDNS (default: hostname-locusq)")
	logFile    = flag.String("log-file", "locusq.log", "Log file path")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	noTUI      = flag.Bool("no-tui", false, "Disable the dashboard, stream logs instead")
	bridgePort = flag.Int("bridge-port", 0, "Diagnostics bridge port (overrides config)")
	posePort   = flag.Int("pose-port", 0, "Pose UDP port (overrides config)")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	nullOutput = flag.Bool("null-output", false, "Render to a paced null sink instead of the audio device")
)

const statusInterval = 250 * time.Millisecond

func main() {
	flag.Parse()

	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		logrus.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		logrus.SetOutput(f)
	} else {
		logrus.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}

	overrides := config.Overrides{
		BridgePort: *bridgePort,
		NoMDNS:     *noMDNS,
		NullOutput: *nullOutput,
	}
	if *posePort != 0 {
		host, _, err := net.SplitHostPort(cfg.GetPoseBind())
		if err != nil {
			logrus.Fatalf("pose bind %q: %v", cfg.GetPoseBind(), err)
		}
		overrides.PoseBind = net.JoinHostPort(host, strconv.Itoa(*posePort))
	}
	cfg.Apply(overrides)
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("config: %v", err)
	}

	instanceName := *name
	if instanceName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		instanceName = fmt.Sprintf("%s-locusq", hostname)
	}

	logrus.WithFields(logrus.Fields{
		"name":    instanceName,
		"version": version.Version,
		"config":  *configPath,
	}).Info("Starting LocusQ host")

	if err := run(cfg, instanceName, useTUI); err != nil {
		logrus.Fatalf("%v", err)
	}
	logrus.Info("LocusQ host stopped")
}

func run(cfg *config.Config, instanceName string, useTUI bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host := engine.NewHost(engine.Options{
		SampleRate:     cfg.GetSampleRate(),
		BlockSize:      cfg.GetBlockSize(),
		OutputChannels: cfg.GetOutputChannels(),
		Capacity:       cfg.GetSceneCapacity(),
	})
	defer host.Close()
	host.Graph().PublishRoomProfile(cfg.GetRoomProfile())

	pub := headtracking.NewPublisher(cfg.PublisherConfig())
	listener, err := headtracking.Listen(cfg.ListenerConfig(), pub)
	if err != nil {
		return fmt.Errorf("pose listener: %w", err)
	}
	defer func() { _ = listener.Close() }()

	var sink output.Output = output.NewOto()
	if cfg.GetNullOutput() {
		sink = output.NewNull()
	}
	poseSource := "udp"
	if cfg.GetPoseSerial() != "" {
		poseSource = "udp+serial"
	}
	renderer, err := host.AddRenderer(engine.RendererOptions{
		Name:       "renderer",
		Sink:       sink,
		Backend:    render.NewSphericalHead(),
		Pose:       pub,
		PoseSource: poseSource,
		Consumer:   listener,
	})
	if err != nil {
		return fmt.Errorf("renderer: %w", err)
	}
	controls := renderer.Renderer().Controls()
	cfg.ApplyControls(controls)

	for _, e := range cfg.GetEmitters() {
		if _, err := host.AddEmitter(e); err != nil {
			return fmt.Errorf("emitter %q: %w", e.Label, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return host.Run(gctx) })
	g.Go(func() error { return listener.Run(gctx) })

	if path := cfg.GetPoseSerial(); path != "" {
		port, err := headtracking.OpenSerial(path, cfg.GetPoseSerialOptions())
		if err != nil {
			return fmt.Errorf("pose serial: %w", err)
		}
		go func() {
			<-gctx.Done()
			port.Close()
		}()
		g.Go(func() error {
			if err := headtracking.ReadStream(gctx, port, pub); err != nil && gctx.Err() == nil {
				logrus.WithError(err).Warn("Pose serial stream ended")
			}
			return nil
		})
	}

	var bridgeServer *bridge.Server
	if bp := cfg.GetBridgePort(); bp > 0 {
		bridgeServer = bridge.New(bridge.Config{
			Addr:     fmt.Sprintf(":%d", bp),
			Interval: statusInterval,
			Controls: controls,
		}, host.Status)
		g.Go(func() error { return bridgeServer.Run(gctx) })
	}

	if cfg.GetMDNS() {
		disc := discovery.NewManager(discovery.Config{
			Instance:   instanceName,
			PosePort:   udpPort(listener.Addr()),
			AckPort:    cfg.GetAckPort(),
			BridgePort: cfg.GetBridgePort(),
		})
		if err := disc.Advertise(); err != nil {
			logrus.WithError(err).Warn("mDNS advertisement failed")
		}
		defer disc.Stop()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var dash *ui.Dashboard
	var quit <-chan struct{}
	if useTUI {
		dash = ui.NewDashboard(ui.NewModel(
			fmt.Sprintf("%s %s  %s", version.Product, version.Version, instanceName),
			controls,
			dashboardSettings(cfg),
		))
		quit = dash.QuitChan()
		go func() {
			if err := dash.Start(); err != nil {
				logrus.WithError(err).Error("Dashboard stopped")
			}
			cancel()
		}()
		g.Go(func() error {
			statusLoop(gctx, host, pub, listener, bridgeServer, dash)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var runErr error
	select {
	case <-sigChan:
		logrus.Info("Shutdown signal received")
	case <-quit:
		logrus.Info("Quit requested from dashboard")
	case runErr = <-done:
		done = nil
	case <-ctx.Done():
	}

	cancel()
	if done != nil {
		runErr = <-done
	}
	if dash != nil {
		dash.Stop()
	}
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	return runErr
}

func udpPort(addr net.Addr) int {
	if ua, ok := addr.(*net.UDPAddr); ok {
		return ua.Port
	}
	return 0
}

func dashboardSettings(cfg *config.Config) ui.Settings {
	return ui.Settings{
		Profile:         cfg.GetProfile(),
		HeadphoneMode:   cfg.GetHeadphoneMode(),
		HeadphoneDevice: cfg.GetHeadphoneProfile(),
		RoomEnabled:     cfg.GetRoomEnabled(),
		RoomSize:        cfg.GetRoomSize(),
		Damping:         cfg.GetDamping(),
		ReverbMix:       cfg.GetReverbMix(),
		MasterGainDB:    cfg.GetMasterGainDB(),
		Calibration:     cfg.GetCalibrationEnabled(),
		HasCalibration:  cfg.CalibrationCurve() != nil,
	}
}

// statusLoop feeds the dashboard until ctx is done.
func statusLoop(ctx context.Context, host *engine.Host, pub *headtracking.Publisher, l *headtracking.Listener, b *bridge.Server, dash *ui.Dashboard) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	bound := l.Addr().String()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := ui.StatusMsg{
				Status: host.Status(),
				Pose:   poseStats(pub, l),
			}
			msg.Pose.Bound = bound
			if b != nil {
				msg.BridgeClients = b.ClientCount()
			}
			dash.Update(msg)
		}
	}
}

func poseStats(pub *headtracking.Publisher, l *headtracking.Listener) ui.PoseStats {
	ps := ui.PoseStats{
		Published: pub.PublishedCount(),
		LastSeq:   pub.LastSeq(),
		Invalid:   pub.InvalidCount(),
		Rejected:  pub.RejectedCount(),
		AcksSent:  l.AcksSent(),
		Consumers: l.Consumers(),
	}
	if sender := l.LastSender(); sender != nil {
		ps.LastSender = sender.String()
	}
	var snap headtracking.Snapshot
	if pub.Latest(&snap) {
		ps.HasPose = true
		ps.YawDeg = snap.Orientation.YawDegrees()
	}
	return ps
}

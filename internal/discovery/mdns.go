// ABOUTME: mDNS advertisement and browsing for LocusQ renderers
// ABOUTME: Publishes the pose UDP port and diagnostics bridge, finds renderers for pose senders
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"

	"github.com/locusq/locusq-go/internal/version"
)

// Service types.
const (
	PoseService   = "_locusq-pose._udp"
	BridgeService = "_locusq-bridge._tcp"
	domain        = "local"

	// DefaultQueryTimeout bounds one browse round.
	DefaultQueryTimeout = 2 * time.Second
)

// Config holds discovery configuration.
type Config struct {
	Instance   string
	PosePort   int
	AckPort    int
	BridgePort int // zero skips the bridge advertisement
}

// RendererInfo describes a discovered renderer.
type RendererInfo struct {
	Instance   string
	Host       string
	Port       int
	AckPort    int
	BridgePort int
	Version    string
}

// Addr is the host:port to send pose datagrams to.
func (r RendererInfo) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Manager handles mDNS operations.
type Manager struct {
	config    Config
	ctx       context.Context
	cancel    context.CancelFunc
	renderers chan *RendererInfo

	mu      sync.Mutex
	servers []*mdns.Server
}

// NewManager creates a discovery manager.
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:    config,
		ctx:       ctx,
		cancel:    cancel,
		renderers: make(chan *RendererInfo, 10),
	}
}

// txtRecords are attached to the pose service so a sender learns the ack
// and bridge ports without a second query.
func txtRecords(c Config) []string {
	txt := []string{
		"product=" + version.Product,
		"version=" + version.Version,
	}
	if c.AckPort > 0 {
		txt = append(txt, "ack="+strconv.Itoa(c.AckPort))
	}
	if c.BridgePort > 0 {
		txt = append(txt, "bridge="+strconv.Itoa(c.BridgePort))
	}
	return txt
}

// services builds the zones to advertise for c.
func services(c Config, ips []net.IP) ([]*mdns.MDNSService, error) {
	if c.Instance == "" {
		return nil, fmt.Errorf("advertise: empty instance name")
	}
	if c.PosePort <= 0 || c.PosePort > 65535 {
		return nil, fmt.Errorf("advertise: pose port %d out of range", c.PosePort)
	}

	pose, err := mdns.NewMDNSService(c.Instance, PoseService, "", "", c.PosePort, ips, txtRecords(c))
	if err != nil {
		return nil, fmt.Errorf("create pose service: %w", err)
	}
	out := []*mdns.MDNSService{pose}

	if c.BridgePort > 0 {
		bridge, err := mdns.NewMDNSService(c.Instance, BridgeService, "", "", c.BridgePort, ips,
			[]string{"path=/ws", "version=" + version.Version})
		if err != nil {
			return nil, fmt.Errorf("create bridge service: %w", err)
		}
		out = append(out, bridge)
	}
	return out, nil
}

// Advertise publishes the pose receiver and, when configured, the bridge.
// The advertisements live until Stop.
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	zones, err := services(m.config, ips)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, zone := range zones {
		server, err := mdns.NewServer(&mdns.Config{Zone: zone})
		if err != nil {
			m.shutdownLocked()
			return fmt.Errorf("failed to create mdns server for %s: %w", zone.Service, err)
		}
		m.servers = append(m.servers, server)
		logrus.WithFields(logrus.Fields{
			"instance": zone.Instance,
			"service":  zone.Service,
			"port":     zone.Port,
		}).Info("Advertising mDNS service")
	}

	go func() {
		<-m.ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		m.shutdownLocked()
	}()
	return nil
}

func (m *Manager) shutdownLocked() {
	for _, s := range m.servers {
		if err := s.Shutdown(); err != nil {
			logrus.WithError(err).Debug("mDNS server shutdown")
		}
	}
	m.servers = nil
}

// Browse searches for renderers until Stop, delivering each sighting on
// Renderers. Repeat sightings are delivered again.
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		found, err := query(DefaultQueryTimeout)
		if err != nil {
			logrus.WithError(err).Debug("mDNS query failed")
		}
		for i := range found {
			r := found[i]
			select {
			case m.renderers <- &r:
			case <-m.ctx.Done():
				return
			}
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// Renderers returns the channel of discovered renderers.
func (m *Manager) Renderers() <-chan *RendererInfo {
	return m.renderers
}

// Stop withdraws advertisements and ends browsing.
func (m *Manager) Stop() {
	m.cancel()
}

// Lookup runs one browse round and returns every renderer that answered.
func Lookup(timeout time.Duration) ([]RendererInfo, error) {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return query(timeout)
}

func query(timeout time.Duration) ([]RendererInfo, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	var (
		found []RendererInfo
		seen  = make(map[string]bool)
		wg    sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			r, ok := parseEntry(entry)
			if !ok || seen[r.Addr()] {
				continue
			}
			seen[r.Addr()] = true
			logrus.WithFields(logrus.Fields{
				"instance": r.Instance,
				"addr":     r.Addr(),
			}).Debug("Discovered renderer")
			found = append(found, r)
		}
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service:     PoseService,
		Domain:      domain,
		Timeout:     timeout,
		Entries:     entries,
		DisableIPv6: true,
	})
	close(entries)
	wg.Wait()
	if err != nil {
		return found, fmt.Errorf("mdns query: %w", err)
	}
	return found, nil
}

// parseEntry turns an answer into a RendererInfo. Entries without an
// address or port are ignored.
func parseEntry(e *mdns.ServiceEntry) (RendererInfo, bool) {
	if e == nil || e.Port <= 0 {
		return RendererInfo{}, false
	}
	var host string
	switch {
	case e.AddrV4 != nil:
		host = e.AddrV4.String()
	case e.AddrV6 != nil:
		host = e.AddrV6.String()
	default:
		return RendererInfo{}, false
	}

	r := RendererInfo{
		Instance: instanceName(e.Name),
		Host:     host,
		Port:     e.Port,
	}
	for _, field := range e.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "ack":
			r.AckPort, _ = strconv.Atoi(value)
		case "bridge":
			r.BridgePort, _ = strconv.Atoi(value)
		case "version":
			r.Version = value
		}
	}
	return r, true
}

// instanceName strips the service and domain from a full service name,
// e.g. "Studio._locusq-pose._udp.local." becomes "Studio".
func instanceName(full string) string {
	if i := strings.Index(full, "."+PoseService); i >= 0 {
		full = full[:i]
	}
	return strings.ReplaceAll(full, `\ `, " ")
}

// getLocalIPs returns the IPv4 addresses of every up, non-loopback interface.
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}

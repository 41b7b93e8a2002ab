// ABOUTME: UDP pose receiver with periodic acknowledgements to the tracker
// ABOUTME: Socket abstraction for tests, bounded read deadlines, shared consumer count
package headtracking

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Listener defaults.
const (
	DefaultBindAddress = "127.0.0.1:19765"
	DefaultAckPort     = 19766
	DefaultAckInterval = 100 * time.Millisecond
	MinAckInterval     = 20 * time.Millisecond

	readPoll = 50 * time.Millisecond
)

// UDPSocket is the part of *net.UDPConn the listener uses.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// ListenerConfig describes where poses arrive and where acks go.
type ListenerConfig struct {
	Bind        string
	AckHost     string
	AckPort     int
	AckInterval time.Duration
}

func (c ListenerConfig) withDefaults() ListenerConfig {
	if c.Bind == "" {
		c.Bind = DefaultBindAddress
	}
	if c.AckHost == "" {
		c.AckHost = "127.0.0.1"
	}
	if c.AckPort == 0 {
		c.AckPort = DefaultAckPort
	}
	if c.AckInterval == 0 {
		c.AckInterval = DefaultAckInterval
	}
	c.AckInterval = max(c.AckInterval, MinAckInterval)
	return c
}

// Listener reads pose datagrams into a Publisher.
type Listener struct {
	cfg     ListenerConfig
	pub     *Publisher
	sock    UDPSocket
	ackAddr *net.UDPAddr
	port    uint32
	token   uint32
	now     func() time.Time

	consumers  atomic.Int32
	acksSent   atomic.Uint32
	ackErrors  atomic.Uint32
	lastSender atomic.Pointer[net.UDPAddr]
}

// Listen binds a UDP socket according to cfg.
func Listen(cfg ListenerConfig, pub *Publisher) (*Listener, error) {
	cfg = cfg.withDefaults()
	addr, err := net.ResolveUDPAddr("udp", cfg.Bind)
	if err != nil {
		return nil, fmt.Errorf("resolve pose bind %q: %w", cfg.Bind, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for poses on %s: %w", addr, err)
	}
	l, err := NewListener(conn, cfg, pub)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return l, nil
}

// NewListener wraps an already-bound socket.
func NewListener(sock UDPSocket, cfg ListenerConfig, pub *Publisher) (*Listener, error) {
	cfg = cfg.withDefaults()
	ackAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.AckHost, strconv.Itoa(cfg.AckPort)))
	if err != nil {
		return nil, fmt.Errorf("resolve ack address: %w", err)
	}
	l := &Listener{
		cfg:     cfg,
		pub:     pub,
		sock:    sock,
		ackAddr: ackAddr,
		token:   uuid.New().ID(),
		now:     time.Now,
	}
	if ua, ok := sock.LocalAddr().(*net.UDPAddr); ok {
		l.port = uint32(ua.Port)
	}
	return l, nil
}

// Addr is the bound local address.
func (l *Listener) Addr() net.Addr { return l.sock.LocalAddr() }

// Attach registers one more consumer of the poses; the count is reported
// to the tracker in every ack.
func (l *Listener) Attach() { l.consumers.Add(1) }

// Detach undoes Attach.
func (l *Listener) Detach() {
	for {
		n := l.consumers.Load()
		if n <= 0 || l.consumers.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// Consumers is the number of attached consumers.
func (l *Listener) Consumers() int { return int(l.consumers.Load()) }

// AcksSent is the number of acks written successfully.
func (l *Listener) AcksSent() uint32 { return l.acksSent.Load() }

// LastSender is the address of the most recent valid datagram, if any.
func (l *Listener) LastSender() *net.UDPAddr { return l.lastSender.Load() }

// Close releases the socket. Run closes it as well.
func (l *Listener) Close() error { return l.sock.Close() }

// Run receives until ctx is cancelled or the socket fails. It closes the
// socket on return.
func (l *Listener) Run(ctx context.Context) error {
	defer l.sock.Close()
	log := logrus.WithFields(logrus.Fields{"component": "pose-listener", "addr": l.sock.LocalAddr().String()})
	log.Info("Pose listener started")

	buf := make([]byte, MaxPacketSize)
	ackBuf := make([]byte, AckSize)
	nextAck := l.now()

	for {
		if err := ctx.Err(); err != nil {
			log.Info("Pose listener stopped")
			return nil
		}
		if err := l.sock.SetReadDeadline(l.now().Add(readPoll)); err != nil {
			return fmt.Errorf("set pose read deadline: %w", err)
		}
		n, from, err := l.sock.ReadFromUDP(buf)
		switch {
		case err == nil:
			if perr := l.pub.HandlePacket(buf[:n]); perr != nil {
				log.WithError(perr).Debug("Dropped pose packet")
			} else if from != nil {
				l.lastSender.Store(from)
			}
		case isTimeout(err):
		case errors.Is(err, net.ErrClosed):
			return nil
		default:
			return fmt.Errorf("read pose datagram: %w", err)
		}

		if now := l.now(); !now.Before(nextAck) {
			l.sendAck(ackBuf, uint64(now.UnixMilli()))
			nextAck = now.Add(l.cfg.AckInterval)
		}
	}
}

func (l *Listener) sendAck(buf []byte, nowMs uint64) {
	a := l.pub.Ack(nowMs)
	a.Token = l.token
	a.Consumers = uint32(max(0, l.consumers.Load()))
	a.ListenPort = l.port
	a.Counter = l.acksSent.Load() + 1
	a.put(buf)
	if _, err := l.sock.WriteToUDP(buf, l.ackAddr); err != nil {
		l.ackErrors.Add(1)
		return
	}
	l.acksSent.Add(1)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

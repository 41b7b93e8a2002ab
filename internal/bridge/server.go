// ABOUTME: WebSocket diagnostics bridge serving scene and renderer snapshots as JSON
// ABOUTME: Periodic broadcast to every client, a /status endpoint and renderer control messages
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/locusq/locusq-go/internal/engine"
	"github.com/locusq/locusq-go/internal/version"
	"github.com/locusq/locusq-go/pkg/render"
)

const (
	// DefaultInterval is how often status is pushed to clients.
	DefaultInterval = 250 * time.Millisecond

	sendBuffer    = 16
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	readLimit     = 64 * 1024
)

// StatusFunc returns the current host status. It is called off the audio
// threads, once per broadcast and once per request.
type StatusFunc func() engine.Status

// Config holds bridge settings.
type Config struct {
	// Addr is the listen address, e.g. ":8927". Port 0 picks a free port.
	Addr     string
	Interval time.Duration

	// Controls receives renderer/control messages. Nil makes the bridge
	// read-only.
	Controls *render.Controls
}

// Client is one connected dashboard.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan Message
	done chan struct{}
	once sync.Once
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// Server broadcasts host status over WebSocket.
type Server struct {
	config   Config
	status   StatusFunc
	upgrader websocket.Upgrader

	clients   map[string]*Client
	clientsMu sync.RWMutex

	dropped   uint64
	broadcast uint64
	statsMu   sync.Mutex

	addrMu sync.Mutex
	addr   net.Addr
	ready  chan struct{}
}

// New creates a bridge. Call Run to start serving.
func New(config Config, status StatusFunc) *Server {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	return &Server{
		config: config,
		status: status,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // dashboards are served from anywhere on the LAN
			},
		},
		clients: make(map[string]*Client),
		ready:   make(chan struct{}),
	}
}

// Handler returns the bridge routes: /ws for the socket and /status for a
// one-shot JSON snapshot.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Addr returns the bound address once Run is listening, or nil.
func (s *Server) Addr() net.Addr {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	return s.addr
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Run listens, broadcasts status every interval and shuts down when ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("bridge listen %s: %w", s.config.Addr, err)
	}
	s.addrMu.Lock()
	s.addr = ln.Addr()
	s.addrMu.Unlock()
	close(s.ready)

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	logrus.WithFields(logrus.Fields{
		"addr":     ln.Addr().String(),
		"interval": s.config.Interval,
	}).Info("Bridge listening")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.shutdown(httpServer)
		case err := <-errChan:
			s.closeClients()
			return fmt.Errorf("bridge serve: %w", err)
		case <-ticker.C:
			if s.ClientCount() > 0 {
				s.Broadcast()
			}
		}
	}
}

func (s *Server) shutdown(httpServer *http.Server) error {
	logrus.Info("Bridge shutting down")
	s.closeClients()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("bridge shutdown: %w", err)
	}
	return nil
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for id, c := range s.clients {
		c.close()
		c.conn.Close()
		delete(s.clients, id)
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Stats returns the number of broadcasts and of messages dropped on slow
// clients.
func (s *Server) Stats() (broadcast, dropped uint64) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.broadcast, s.dropped
}

// Broadcast sends the current status to every client. A client whose
// buffer is full misses this update.
func (s *Server) Broadcast() {
	msg := Message{Type: TypeStatus, Payload: s.status()}

	s.clientsMu.RLock()
	var dropped uint64
	for _, c := range s.clients {
		if !s.enqueue(c, msg) {
			dropped++
		}
	}
	s.clientsMu.RUnlock()

	s.statsMu.Lock()
	s.broadcast++
	s.dropped += dropped
	s.statsMu.Unlock()
}

func (s *Server) enqueue(c *Client, msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		logrus.WithError(err).Warn("Bridge status encode failed")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("Bridge upgrade failed")
		return
	}
	conn.SetReadLimit(readLimit)

	client := &Client{
		ID:   uuid.New().String(),
		conn: conn,
		send: make(chan Message, sendBuffer),
		done: make(chan struct{}),
	}

	s.clientsMu.Lock()
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	log := logrus.WithFields(logrus.Fields{
		"client": client.ID,
		"remote": r.RemoteAddr,
	})
	log.Info("Bridge client connected")

	s.enqueue(client, Message{Type: TypeHello, Payload: Hello{
		ClientID:   client.ID,
		Product:    version.Product,
		Version:    version.Version,
		IntervalMs: s.config.Interval.Milliseconds(),
	}})
	s.enqueue(client, Message{Type: TypeStatus, Payload: s.status()})

	go s.clientWriter(client)
	s.clientReader(client)

	s.clientsMu.Lock()
	delete(s.clients, client.ID)
	s.clientsMu.Unlock()
	client.close()
	conn.Close()
	log.Info("Bridge client disconnected")
}

func (s *Server) clientReader(c *Client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("client", c.ID).Debug("Bridge read error")
			}
			return
		}
		s.handleClientMessage(c, data)
	}
}

func (s *Server) clientWriter(c *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			data, err := json.Marshal(msg)
			if err != nil {
				logrus.WithError(err).WithField("type", msg.Type).Warn("Bridge marshal failed")
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

func (s *Server) handleClientMessage(c *Client, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		s.enqueue(c, errorMessage("malformed message: %v", err))
		return
	}

	switch msg.Type {
	case TypeStatusRequest:
		s.enqueue(c, Message{Type: TypeStatus, Payload: s.status()})
	case TypeControl:
		if s.config.Controls == nil {
			s.enqueue(c, errorMessage("renderer controls are read-only"))
			return
		}
		if msg.Control == nil {
			s.enqueue(c, errorMessage("control message without payload"))
			return
		}
		if err := msg.Control.Apply(s.config.Controls); err != nil {
			s.enqueue(c, errorMessage("%v", err))
			return
		}
		logrus.WithFields(logrus.Fields{
			"client": c.ID,
			"change": msg.Control.String(),
		}).Info("Bridge control applied")
		s.enqueue(c, Message{Type: TypeControlAck, Payload: msg.Control})
	default:
		s.enqueue(c, errorMessage("unknown message type %q", msg.Type))
	}
}

func errorMessage(format string, args ...any) Message {
	return Message{Type: TypeError, Payload: ErrorPayload{Message: fmt.Sprintf(format, args...)}}
}

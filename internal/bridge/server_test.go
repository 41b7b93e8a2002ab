// ABOUTME: Tests for the diagnostics bridge over a real WebSocket connection
// ABOUTME: Hello and status delivery, control changes, errors, broadcast and shutdown
package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locusq/locusq-go/internal/engine"
	"github.com/locusq/locusq-go/internal/version"
	"github.com/locusq/locusq-go/pkg/profile"
	"github.com/locusq/locusq-go/pkg/render"
	"github.com/locusq/locusq-go/pkg/spatial"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func fakeStatus(calls *atomic.Int64) StatusFunc {
	return func() engine.Status {
		n := calls.Add(1)
		return engine.Status{
			SampleCounter:  uint64(n) * 512,
			Capacity:       8,
			ActiveEmitters: 1,
			RendererOwned:  true,
			Instances:      []engine.InstanceStatus{},
			Emitters: []engine.EmitterStatus{
				{Slot: 0, Label: "drums", Position: spatial.Vec3{X: 1, Z: -2}},
			},
		}
	}
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) frame {
	t.Helper()
	for range 20 {
		if f := readFrame(t, conn); f.Type == typ {
			return f
		}
	}
	t.Fatalf("no %s message", typ)
	return frame{}
}

func TestHelloAndInitialStatus(t *testing.T) {
	var calls atomic.Int64
	s := New(Config{}, fakeStatus(&calls))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dial(t, ts)

	f := readFrame(t, conn)
	require.Equal(t, TypeHello, f.Type)
	var hello Hello
	require.NoError(t, json.Unmarshal(f.Payload, &hello))
	assert.NotEmpty(t, hello.ClientID)
	assert.Equal(t, version.Product, hello.Product)
	assert.Equal(t, version.Version, hello.Version)
	assert.Equal(t, DefaultInterval.Milliseconds(), hello.IntervalMs)

	f = readFrame(t, conn)
	require.Equal(t, TypeStatus, f.Type)
	var st engine.Status
	require.NoError(t, json.Unmarshal(f.Payload, &st))
	assert.Equal(t, 8, st.Capacity)
	require.Len(t, st.Emitters, 1)
	assert.Equal(t, "drums", st.Emitters[0].Label)

	assert.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStatusRequest(t *testing.T) {
	var calls atomic.Int64
	s := New(Config{}, fakeStatus(&calls))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dial(t, ts)
	readUntil(t, conn, TypeStatus)
	before := calls.Load()

	require.NoError(t, conn.WriteJSON(Message{Type: TypeStatusRequest}))
	f := readUntil(t, conn, TypeStatus)

	var st engine.Status
	require.NoError(t, json.Unmarshal(f.Payload, &st))
	assert.Greater(t, calls.Load(), before)
	assert.Equal(t, uint64(calls.Load())*512, st.SampleCounter)
}

func TestControlMessages(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantAck bool
		check   func(t *testing.T, c *render.Controls)
	}{
		{
			name:    "profile and headphone",
			payload: `{"profile":"surround_7_2_1","headphoneMode":"steam_binaural","masterGainDb":-6}`,
			wantAck: true,
			check: func(t *testing.T, c *render.Controls) {
				assert.Equal(t, profile.Surround721, c.Profile())
				assert.Equal(t, profile.SteamBinaural, c.HeadphoneMode())
			},
		},
		{
			name:    "unknown profile leaves controls alone",
			payload: `{"profile":"dolby_9000","headphoneMode":"steam_binaural"}`,
			check: func(t *testing.T, c *render.Controls) {
				assert.Equal(t, profile.Auto, c.Profile())
				assert.Equal(t, profile.StereoDownmix, c.HeadphoneMode())
			},
		},
		{
			name:    "gain out of range",
			payload: `{"masterGainDb":40}`,
		},
		{
			name:    "device",
			payload: `{"headphoneDevice":"sony_wh1000xm5"}`,
			wantAck: true,
			check: func(t *testing.T, c *render.Controls) {
				assert.Equal(t, profile.DeviceSonyWH1000XM5, c.HeadphoneDevice())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int64
			controls := render.NewControls()
			controls.SetProfile(profile.Auto)
			controls.SetHeadphoneMode(profile.StereoDownmix)
			s := New(Config{Controls: controls}, fakeStatus(&calls))
			ts := httptest.NewServer(s.Handler())
			defer ts.Close()

			conn := dial(t, ts)
			readUntil(t, conn, TypeStatus)

			raw := `{"type":"` + TypeControl + `","payload":` + tt.payload + `}`
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))

			want := TypeError
			if tt.wantAck {
				want = TypeControlAck
			}
			readUntil(t, conn, want)
			if tt.check != nil {
				tt.check(t, controls)
			}
		})
	}
}

func TestRejectedMessages(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"malformed", `{"type":`, "malformed"},
		{"unknown type", `{"type":"scene/teleport"}`, "unknown message type"},
		{"read-only controls", `{"type":"renderer/control","payload":{"profile":"quad_4_0"}}`, "read-only"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int64
			s := New(Config{}, fakeStatus(&calls))
			ts := httptest.NewServer(s.Handler())
			defer ts.Close()

			conn := dial(t, ts)
			readUntil(t, conn, TypeStatus)

			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.raw)))
			f := readUntil(t, conn, TypeError)
			var p ErrorPayload
			require.NoError(t, json.Unmarshal(f.Payload, &p))
			assert.Contains(t, p.Message, tt.want)
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	var calls atomic.Int64
	s := New(Config{}, fakeStatus(&calls))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var st engine.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.True(t, st.RendererOwned)

	resp2, err := http.Post(ts.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestBroadcastDropsForSlowClient(t *testing.T) {
	var calls atomic.Int64
	s := New(Config{}, fakeStatus(&calls))

	// A client nobody drains.
	c := &Client{ID: "slow", send: make(chan Message, sendBuffer), done: make(chan struct{})}
	s.clients[c.ID] = c

	for range sendBuffer + 5 {
		s.Broadcast()
	}
	broadcast, dropped := s.Stats()
	assert.Equal(t, uint64(sendBuffer+5), broadcast)
	assert.Equal(t, uint64(5), dropped)
	assert.Len(t, c.send, sendBuffer)
}

func TestRunBroadcastsAndShutsDown(t *testing.T) {
	var calls atomic.Int64
	s := New(Config{Addr: "127.0.0.1:0", Interval: 20 * time.Millisecond}, fakeStatus(&calls))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("bridge never bound")
	}

	url := "ws://" + s.Addr().String() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Hello, the initial status, then at least two periodic ones.
	statuses := 0
	for statuses < 3 {
		if readFrame(t, conn).Type == TypeStatus {
			statuses++
		}
	}
	broadcast, _ := s.Stats()
	assert.GreaterOrEqual(t, broadcast, uint64(2))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("bridge did not shut down")
	}
	assert.Equal(t, 0, s.ClientCount())
}

func TestRunListenError(t *testing.T) {
	var calls atomic.Int64
	s := New(Config{Addr: "256.0.0.1:http"}, fakeStatus(&calls))
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bridge listen")
}

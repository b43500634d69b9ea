package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tbourn/go-chat-realtime/internal/realtime"
)

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"no allowlist", nil, "https://evil.example", "api.example", true},
		{"no origin header", []string{"https://app.example"}, "", "api.example", true},
		{"listed", []string{"https://app.example"}, "https://APP.example", "api.example", true},
		{"wildcard", []string{"*"}, "https://any.example", "api.example", true},
		{"same host", []string{"https://app.example"}, "http://api.example:8080", "api.example:8080", true},
		{"foreign", []string{"https://app.example"}, "https://evil.example", "api.example", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := NewWS(nil, nil, WSOptions{AllowedOrigins: tc.allowed})
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			req.Host = tc.host
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if got := w.checkOrigin(req); got != tc.want {
				t.Fatalf("checkOrigin = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNewWS_Defaults(t *testing.T) {
	w := NewWS(nil, nil, WSOptions{})
	if w.opts.PingInterval != 25*time.Second || w.opts.WriteTimeout != 10*time.Second || w.opts.MaxFrameBytes != 64<<10 {
		t.Fatalf("defaults = %+v", w.opts)
	}
}

type countingLimiter struct {
	allow   int
	allowed int
}

func (l *countingLimiter) Allow(string) bool {
	l.allowed++
	return l.allowed <= l.allow
}
func (l *countingLimiter) Forget(string) {}

func wsServer(t *testing.T, hub *realtime.Hub, lim EventLimiter, uid string) *httptest.Server {
	t.Helper()
	ws := NewWS(hub, lim, WSOptions{MaxFrameBytes: 1024})
	r := newEngine(uid)
	r.GET("/ws", ws.Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func nextFrame(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f.Event, f.Data
}

func TestServe_FramesAndDisconnect(t *testing.T) {
	reg := realtime.NewRegistry()
	hub := realtime.NewHub(reg, realtime.NewDispatcher(reg), realtime.Options{})
	t.Cleanup(hub.Shutdown)
	lim := &countingLimiter{allow: 100}
	srv := wsServer(t, hub, lim, "u1")
	conn := dial(t, srv)

	// Binary frames are refused.
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev, data := nextFrame(t, conn); ev != realtime.EventError || !strings.Contains(string(data), "malformed_frame") {
		t.Fatalf("binary: %s %s", ev, data)
	}

	// Garbage JSON is refused, the connection survives.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev, data := nextFrame(t, conn); ev != realtime.EventError || !strings.Contains(string(data), "malformed_frame") {
		t.Fatalf("garbage: %s %s", ev, data)
	}

	if err := conn.WriteJSON(map[string]any{"event": "setup", "data": "u1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev, _ := nextFrame(t, conn); ev != realtime.EventConnected {
		t.Fatalf("setup answered %s", ev)
	}
	if err := conn.WriteJSON(map[string]any{"event": "join chat", "data": "room-1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for reg.Size("room-1") != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("session never joined")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_ = conn.Close()
	for reg.Size("room-1") != 0 {
		if time.Now().After(deadline.Add(time.Second)) {
			t.Fatalf("session still in room after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServe_OversizedFrameClosesConnection(t *testing.T) {
	reg := realtime.NewRegistry()
	hub := realtime.NewHub(reg, realtime.NewDispatcher(reg), realtime.Options{})
	t.Cleanup(hub.Shutdown)
	srv := wsServer(t, hub, nil, "u1")
	conn := dial(t, srv)

	big := `{"event":"setup","data":"` + strings.Repeat("x", 2048) + `"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(big)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				t.Fatalf("connection still open after oversized frame")
			}
			return
		}
	}
}

func TestServe_RateLimited(t *testing.T) {
	reg := realtime.NewRegistry()
	hub := realtime.NewHub(reg, realtime.NewDispatcher(reg), realtime.Options{})
	t.Cleanup(hub.Shutdown)
	lim := &countingLimiter{allow: 1}
	srv := wsServer(t, hub, lim, "u1")
	conn := dial(t, srv)

	_ = conn.WriteJSON(map[string]any{"event": "setup", "data": "u1"})
	if ev, _ := nextFrame(t, conn); ev != realtime.EventConnected {
		t.Fatalf("first event answered %s", ev)
	}
	_ = conn.WriteJSON(map[string]any{"event": "join chat", "data": "room-1"})
	if ev, data := nextFrame(t, conn); ev != realtime.EventError || !strings.Contains(string(data), "rate_limited") {
		t.Fatalf("second event: %s %s", ev, data)
	}
}

// Websocket transport.
//
// GET /ws upgrades an authenticated request to a websocket and binds it to a
// realtime session. Each connection runs one read loop, which decodes frames
// and feeds them to Hub.Handle in arrival order, and one write pump, which
// drains the session's bounded send queue and keeps the connection alive with
// pings. Closing the socket feeds a disconnect to the hub.
package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-chat-realtime/internal/http/middleware"
	"github.com/tbourn/go-chat-realtime/internal/realtime"
)

// EventLimiter budgets inbound events per key. middleware.RateLimiter
// implements it.
type EventLimiter interface {
	Allow(key string) bool
	Forget(key string)
}

// WSOptions tunes the websocket transport.
type WSOptions struct {
	PingInterval   time.Duration // default 25s; pongs are awaited for twice as long
	WriteTimeout   time.Duration // default 10s
	MaxFrameBytes  int64         // default 64 KiB
	AllowedOrigins []string      // empty allows any origin
}

// WS serves the realtime endpoint.
type WS struct {
	hub      *realtime.Hub
	limiter  EventLimiter
	opts     WSOptions
	upgrader websocket.Upgrader
}

// NewWS binds the transport to hub. limiter may be nil.
func NewWS(hub *realtime.Hub, limiter EventLimiter, opts WSOptions) *WS {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = 64 << 10
	}
	w := &WS{hub: hub, limiter: limiter, opts: opts}
	w.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     w.checkOrigin,
	}
	return w
}

func (w *WS) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if len(w.opts.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, o := range w.opts.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// Serve godoc
// @ID          websocket
// @Summary     Realtime websocket
// @Description Upgrades to a websocket. Frames are JSON {"event": "...", "data": ...}.
// @Description Inbound: setup, join chat, leave chat, new message, typing, stop-typing.
// @Description Outbound: connected, typing, stop-typing, message received, error.
// @Tags        Realtime
// @Security    BearerAuth
// @Param       token  query  string  false  "Bearer token for clients that cannot set headers"
// @Success     101
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /ws [get]
func (w *WS) Serve(c *gin.Context) {
	conn, err := w.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already answered with an HTTP error.
		middleware.LoggerFrom(c).Debug().Err(err).Msg("websocket upgrade rejected")
		return
	}

	s := w.hub.Open(middleware.UserID(c))
	lg := middleware.LoggerFrom(c).With().Str("session_id", s.ID).Logger()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		w.writePump(conn, s)
	}()

	w.readLoop(c.Request.Context(), conn, s)

	_ = w.hub.Handle(context.Background(), s, realtime.Inbound{Kind: realtime.KindDisconnect})
	if w.limiter != nil {
		w.limiter.Forget(limiterKey(s))
	}
	<-pumpDone
	_ = conn.Close()
	lg.Debug().Msg("websocket closed")
}

func limiterKey(s *realtime.Session) string { return "ws:" + s.ID }

// readLoop returns when the peer goes away, a read fails or the pong
// deadline passes.
func (w *WS) readLoop(ctx context.Context, conn *websocket.Conn, s *realtime.Session) {
	pongWait := 2 * w.opts.PingInterval
	conn.SetReadLimit(w.opts.MaxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage {
			s.Deliver(realtime.ErrorEvent(realtime.ErrMalformedFrame))
			continue
		}
		if w.limiter != nil && !w.limiter.Allow(limiterKey(s)) {
			s.Deliver(realtime.ErrorEvent(realtime.ErrRateLimited))
			continue
		}
		in, err := realtime.ParseFrame(data)
		if err != nil {
			s.Deliver(realtime.ErrorEvent(err))
			continue
		}
		if err := w.hub.Handle(ctx, s, in); err != nil {
			s.Deliver(realtime.ErrorEvent(err))
		}
	}
}

// writePump drains the session until it closes. A failed write closes the
// connection, which ends the read loop.
func (w *WS) writePump(conn *websocket.Conn, s *realtime.Session) {
	ticker := time.NewTicker(w.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-s.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				_ = conn.Close()
				w.drain(s)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				w.drain(s)
				return
			}
		}
	}
}

// drain discards queued events until the session closes.
func (w *WS) drain(s *realtime.Session) {
	for range s.Send() {
	}
}

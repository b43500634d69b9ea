package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-chat-realtime/internal/domain"
)

// RoomAccess answers durable membership questions for join requests.
type RoomAccess interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
}

// MessageLookup resolves a committed message by id.
type MessageLookup interface {
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
}

// Options tunes a Hub. Zero values are usable.
type Options struct {
	TypingTimeout time.Duration // default 3s
	SendBuffer    int           // default 64
	Access        RoomAccess    // nil allows any identified session to join any room
	Messages      MessageLookup // nil rejects inbound "new message"
	Latest        LatestSetter  // nil skips the latest-message pointer update
}

// Hub owns the registry, typing tracker and ingest bridge and is the single
// dispatch point for per-connection events. It is created once at startup and
// shared by every connection.
type Hub struct {
	reg      *Registry
	typing   *TypingTracker
	bridge   *Bridge
	access   RoomAccess
	messages MessageLookup
	buffer   int

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// NewHub wires a hub over reg, publishing through pub (the registry's
// Dispatcher, or a RedisRelay wrapping it). When pub is a RedisRelay, call
// NewHub before starting the relay.
func NewHub(reg *Registry, pub Publisher, opts Options) *Hub {
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = 3 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	h := &Hub{
		reg:      reg,
		typing:   NewTypingTracker(pub, opts.TypingTimeout),
		bridge:   NewBridge(pub, opts.Latest),
		access:   opts.Access,
		messages: opts.Messages,
		buffer:   opts.SendBuffer,
		sessions: make(map[*Session]struct{}),
	}
	if relay, ok := pub.(*RedisRelay); ok {
		relay.seen = h.bridge.seen
	}
	return h
}

// Registry exposes the room registry (read-mostly; mutation goes through Handle).
func (h *Hub) Registry() *Registry { return h.reg }

// Typing exposes the typing tracker.
func (h *Hub) Typing() *TypingTracker { return h.typing }

// Bridge exposes the message ingest bridge.
func (h *Hub) Bridge() *Bridge { return h.bridge }

// Open creates a session for a new connection. principal is the
// authenticated user id from the transport ("" when unauthenticated), which
// setup must match.
func (h *Hub) Open(principal string) *Session {
	s := NewSession(uuid.NewString(), h.buffer)
	s.principal = principal
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	wsSessions.Inc()
	log.Debug().Str("session_id", s.ID).Str("principal", principal).Msg("realtime: session opened")
	return s
}

// Handle applies one inbound event for s. Events for a session must be
// handled sequentially (one read loop per connection). A non-nil error means
// the event was rejected without side effects.
func (h *Hub) Handle(ctx context.Context, s *Session, in Inbound) error {
	err := h.handle(ctx, s, in)
	if err != nil && in.Kind != KindDisconnect {
		log.Warn().
			Err(err).
			Str("session_id", s.ID).
			Str("user_id", s.UserID()).
			Str("room_id", in.RoomID).
			Str("event", in.Kind.String()).
			Msg("realtime: event rejected")
	}
	return err
}

func (h *Hub) handle(ctx context.Context, s *Session, in Inbound) error {
	if in.Kind == KindDisconnect {
		h.Close(s)
		return nil
	}
	if s.Closed() {
		return ErrSessionClosed
	}

	if in.Kind == KindSetup {
		return h.setup(s, in.UserID)
	}

	userID := s.UserID()
	if userID == "" {
		return ErrNotIdentified
	}
	if in.RoomID == "" && in.Kind != KindNewMessage {
		return ErrMissingRoom
	}

	switch in.Kind {
	case KindJoin:
		return h.join(ctx, s, userID, in.RoomID)
	case KindLeave:
		if h.reg.Leave(s, in.RoomID) {
			h.typing.ClearSessionRoom(s, in.RoomID)
		}
		return nil
	case KindTyping:
		if !s.InRoom(in.RoomID) {
			return ErrNotMember
		}
		h.typing.SetTyping(in.RoomID, userID, s)
		return nil
	case KindStopTyping:
		if !s.InRoom(in.RoomID) {
			return ErrNotMember
		}
		h.typing.ClearTyping(in.RoomID, userID)
		return nil
	case KindNewMessage:
		return h.relayMessage(ctx, s, userID, in)
	default:
		return ErrUnknownEvent
	}
}

func (h *Hub) setup(s *Session, userID string) error {
	if userID == "" {
		return ErrInvalidIdentity
	}
	if s.principal != "" && s.principal != userID {
		return ErrInvalidIdentity
	}
	if err := s.identify(userID); err != nil {
		return err
	}
	s.Deliver(Outbound{Event: EventConnected})
	log.Debug().Str("session_id", s.ID).Str("user_id", userID).Msg("realtime: session identified")
	return nil
}

func (h *Hub) join(ctx context.Context, s *Session, userID, roomID string) error {
	if h.access != nil {
		ok, err := h.access.IsMember(ctx, roomID, userID)
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if !ok {
			return ErrNotMember
		}
	}
	if err := h.reg.Join(s, roomID); err != nil {
		return err
	}
	// A removal that ran between the check and Join found nothing to evict.
	if h.access != nil {
		ok, err := h.access.IsMember(ctx, roomID, userID)
		if err != nil || !ok {
			h.reg.Leave(s, roomID)
			if err != nil {
				return fmt.Errorf("check membership: %w", err)
			}
			return ErrNotMember
		}
	}
	log.Debug().Str("session_id", s.ID).Str("user_id", userID).Str("room_id", roomID).Msg("realtime: joined room")
	return nil
}

// relayMessage handles a client announcing a message it created. Messages
// the bridge already fanned out are ignored, as are records older than
// ReannounceWindow; otherwise the committed record is fanned out once.
func (h *Hub) relayMessage(ctx context.Context, s *Session, userID string, in Inbound) error {
	if in.MessageID == "" {
		return ErrUnknownMessage
	}
	if h.bridge.Seen(in.MessageID) {
		return nil
	}
	if h.messages == nil {
		return ErrUnknownMessage
	}
	msg, err := h.messages.GetMessage(ctx, in.MessageID)
	if err != nil || msg == nil {
		return ErrUnknownMessage
	}
	if msg.SenderID != userID || (in.RoomID != "" && in.RoomID != msg.RoomID) {
		return ErrUnknownMessage
	}
	if !s.InRoom(msg.RoomID) {
		return ErrNotMember
	}
	if time.Since(msg.CreatedAt) > ReannounceWindow {
		return nil
	}
	h.bridge.fanOut(msg)
	return nil
}

// Close moves s to Closed and synchronously removes it from every room and
// clears any typing marker it owns (publishing stop-typing). Safe to call
// more than once.
func (h *Hub) Close(s *Session) {
	if !s.Close() {
		return
	}
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	wsSessions.Dec()
	rooms := h.reg.RemoveAll(s)
	stops := h.typing.ClearSession(s)
	log.Debug().
		Str("session_id", s.ID).
		Str("user_id", s.UserID()).
		Int("rooms", len(rooms)).
		Int("typing_cleared", stops).
		Msg("realtime: session closed")
}

// RemoveUserFromRoom evicts every live session of userID from roomID and
// clears the user's typing marker there. It is called after the user's
// durable membership is revoked and returns the number of sessions evicted.
func (h *Hub) RemoveUserFromRoom(roomID, userID string) int {
	n := 0
	for _, s := range h.reg.SessionsOfUser(roomID, userID) {
		if h.reg.Leave(s, roomID) {
			n++
		}
	}
	h.typing.ClearTyping(roomID, userID)
	return n
}

// Sessions returns the number of open sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown closes every open session as if it had disconnected, then cancels
// any remaining typing expiries without publishing. Closing a session ends
// its send queue, which makes the transport close the connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	open := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()
	for _, s := range open {
		h.Close(s)
	}
	h.typing.Stop()
}

// ErrorEvent renders a rejected event as an error frame.
func ErrorEvent(err error) Outbound {
	code := "internal_error"
	switch {
	case errors.Is(err, ErrNotIdentified):
		code = "not_identified"
	case errors.Is(err, ErrAlreadyIdentified):
		code = "already_identified"
	case errors.Is(err, ErrInvalidIdentity):
		code = "invalid_identity"
	case errors.Is(err, ErrNotMember):
		code = "not_member"
	case errors.Is(err, ErrSessionClosed):
		code = "session_closed"
	case errors.Is(err, ErrUnknownEvent):
		code = "unknown_event"
	case errors.Is(err, ErrMalformedFrame):
		code = "malformed_frame"
	case errors.Is(err, ErrMissingRoom):
		code = "missing_room"
	case errors.Is(err, ErrUnknownMessage):
		code = "unknown_message"
	case errors.Is(err, ErrRateLimited):
		code = "rate_limited"
	}
	return Outbound{Event: EventError, Data: ErrorPayload{Code: code, Message: err.Error()}}
}

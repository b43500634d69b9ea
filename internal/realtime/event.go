// Package realtime is the live half of the chat: it tracks connected
// sessions, which rooms they have joined and who is typing, and fans room
// events out to the sessions currently in each room.
//
// Components, leaves first:
//
//   - Registry: room id -> set of sessions (and the reverse index).
//   - Session: one live connection and the user it represents.
//   - Dispatcher: per-room ordered, at-most-once fan-out.
//   - TypingTracker: per (room, user) typing markers with expiry.
//   - Bridge: hands committed messages from the REST write path to the
//     Dispatcher (directly or through a cross-instance Relay).
//   - Hub: the single per-connection dispatch function over Inbound events.
//
// Delivery is best-effort. A session whose buffer is full, or that has
// already closed, simply misses the event.
package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Outbound event names.
const (
	EventConnected       = "connected"
	EventTyping          = "typing"
	EventStopTyping      = "stop-typing"
	EventMessageReceived = "message received"
	EventError           = "error"
)

// Inbound event names as they appear on the wire.
const (
	WireSetup      = "setup"
	WireJoin       = "join chat"
	WireLeave      = "leave chat"
	WireNewMessage = "new message"
	WireTyping     = "typing"
	WireStopTyping = "stop-typing"
)

// Outbound is one frame sent to a client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// TypingPayload is the data of typing and stop-typing frames.
type TypingPayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

// ErrorPayload is the data of error frames.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Kind tags an Inbound event.
type Kind int

const (
	KindSetup Kind = iota + 1
	KindJoin
	KindLeave
	KindNewMessage
	KindTyping
	KindStopTyping
	KindDisconnect
)

func (k Kind) String() string {
	switch k {
	case KindSetup:
		return WireSetup
	case KindJoin:
		return WireJoin
	case KindLeave:
		return WireLeave
	case KindNewMessage:
		return WireNewMessage
	case KindTyping:
		return WireTyping
	case KindStopTyping:
		return WireStopTyping
	case KindDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Inbound is the tagged union of everything a connection can ask for.
// Only the fields relevant to Kind are set.
type Inbound struct {
	Kind      Kind
	UserID    string // setup
	RoomID    string // join, leave, typing, stop-typing, new message
	MessageID string // new message
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ref accepts either a bare JSON string or an object carrying an id.
type ref struct {
	ID     string `json:"id"`
	OldID  string `json:"_id"`
	RoomID string `json:"room_id"`
	Chat   string `json:"chat"`
}

// ParseFrame decodes a client frame into an Inbound event. Room-scoped events
// take the room id either as a bare string or as {"room_id": ...}; setup takes
// the user id either as a string or as {"id": ...}; new message takes the
// created record ({"id": ..., "room_id": ...}).
func ParseFrame(b []byte) (Inbound, error) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	r, err := parseRef(f.Data)
	if err != nil {
		return Inbound{}, err
	}
	switch strings.TrimSpace(f.Event) {
	case WireSetup:
		return Inbound{Kind: KindSetup, UserID: r.id()}, nil
	case WireJoin:
		return Inbound{Kind: KindJoin, RoomID: r.room()}, nil
	case WireLeave:
		return Inbound{Kind: KindLeave, RoomID: r.room()}, nil
	case WireTyping:
		return Inbound{Kind: KindTyping, RoomID: r.room()}, nil
	case WireStopTyping:
		return Inbound{Kind: KindStopTyping, RoomID: r.room()}, nil
	case WireNewMessage:
		return Inbound{Kind: KindNewMessage, MessageID: r.id(), RoomID: r.RoomID}, nil
	default:
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
}

func parseRef(raw json.RawMessage) (ref, error) {
	var r ref
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return r, nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return r, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		r.ID = s
		return r, nil
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return r, nil
}

func (r ref) id() string {
	if r.ID != "" {
		return strings.TrimSpace(r.ID)
	}
	return strings.TrimSpace(r.OldID)
}

func (r ref) room() string {
	switch {
	case r.RoomID != "":
		return strings.TrimSpace(r.RoomID)
	case r.Chat != "":
		return strings.TrimSpace(r.Chat)
	default:
		return r.id()
	}
}

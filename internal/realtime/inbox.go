package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tbourn/go-chat-realtime/internal/domain"
)

// Route says where an incoming live message went.
type Route int

const (
	RouteThread       Route = iota + 1 // appended to the open room's thread
	RouteNotification                  // queued as an unread notification
	RouteDuplicate                     // already rendered, dropped
)

// Inbox models the consuming side of "message received". The server does not
// exclude the sender, so the client deduplicates by message id against what
// it already rendered from its own create response, and compares the
// message's room with the room it has open: a match goes to the thread, a
// mismatch becomes an unread notification.
type Inbox struct {
	mu            sync.Mutex
	open          string
	thread        []domain.Message
	known         map[string]struct{}
	notifications []domain.Message
}

// NewInbox returns an inbox with no room open.
func NewInbox() *Inbox {
	return &Inbox{known: make(map[string]struct{})}
}

// Open switches to roomID with its fetched history and marks that room's
// notifications as read.
func (in *Inbox) Open(roomID string, history []domain.Message) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.open = roomID
	in.thread = append([]domain.Message(nil), history...)
	in.known = make(map[string]struct{}, len(history))
	for _, m := range history {
		in.known[m.ID] = struct{}{}
	}
	kept := in.notifications[:0]
	for _, n := range in.notifications {
		if n.RoomID != roomID {
			kept = append(kept, n)
		}
	}
	in.notifications = kept
}

// Sent renders the record returned by the create call.
func (in *Inbox) Sent(msg domain.Message) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if msg.RoomID != in.open {
		return
	}
	if _, ok := in.known[msg.ID]; ok {
		return
	}
	in.known[msg.ID] = struct{}{}
	in.thread = append(in.thread, msg)
}

// Receive routes a live message.
func (in *Inbox) Receive(msg domain.Message) Route {
	in.mu.Lock()
	defer in.mu.Unlock()
	if msg.RoomID != in.open {
		for _, n := range in.notifications {
			if n.ID == msg.ID {
				return RouteDuplicate
			}
		}
		in.notifications = append(in.notifications, msg)
		return RouteNotification
	}
	if _, ok := in.known[msg.ID]; ok {
		return RouteDuplicate
	}
	in.known[msg.ID] = struct{}{}
	in.thread = append(in.thread, msg)
	return RouteThread
}

// Thread returns a copy of the open room's messages.
func (in *Inbox) Thread() []domain.Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]domain.Message(nil), in.thread...)
}

// Notifications returns a copy of the unread notifications.
func (in *Inbox) Notifications() []domain.Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]domain.Message(nil), in.notifications...)
}

// DecodeMessage extracts the message from a "message received" event,
// whether it was dispatched locally or arrived through the relay.
func DecodeMessage(evt Outbound) (domain.Message, error) {
	if evt.Event != EventMessageReceived {
		return domain.Message{}, fmt.Errorf("event %q is not %q", evt.Event, EventMessageReceived)
	}
	switch d := evt.Data.(type) {
	case *domain.Message:
		return *d, nil
	case domain.Message:
		return d, nil
	case json.RawMessage:
		var m domain.Message
		err := json.Unmarshal(d, &m)
		return m, err
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return domain.Message{}, err
		}
		var m domain.Message
		err = json.Unmarshal(b, &m)
		return m, err
	}
}

package realtime

import (
	"sync"
	"time"
)

type typingKey struct {
	room string
	user string
}

// marker is one live (room, user) typing state. gen identifies the armed
// timer; a callback whose gen no longer matches was superseded and does nothing.
type marker struct {
	origin *Session
	timer  *time.Timer
	gen    uint64
}

// TypingTracker keeps per (room, user) typing markers and publishes only
// edge transitions: one typing event when a marker appears, one stop-typing
// event when it goes away (explicit stop, expiry, leave or disconnect).
//
// Publishing happens while the tracker lock is held, so a pair's start and
// stop events can never be reordered against each other.
type TypingTracker struct {
	pub    Publisher
	window time.Duration

	mu      sync.Mutex
	markers map[typingKey]*marker
	gen     uint64
}

// NewTypingTracker returns a tracker whose markers expire after window
// without a refresh.
func NewTypingTracker(pub Publisher, window time.Duration) *TypingTracker {
	return &TypingTracker{
		pub:     pub,
		window:  window,
		markers: make(map[typingKey]*marker),
	}
}

// SetTyping records or refreshes the marker for (roomID, userID). It
// publishes a typing event, excluding origin, only when the pair was not
// already typing, and reports whether it did. A refresh replaces the expiry
// timer instead of stacking another.
func (t *TypingTracker) SetTyping(roomID, userID string, origin *Session) bool {
	k := typingKey{room: roomID, user: userID}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	gen := t.gen
	if m, ok := t.markers[k]; ok {
		m.timer.Stop()
		m.gen = gen
		m.origin = origin
		m.timer = time.AfterFunc(t.window, func() { t.expire(k, gen) })
		return false
	}

	t.markers[k] = &marker{
		origin: origin,
		gen:    gen,
		timer:  time.AfterFunc(t.window, func() { t.expire(k, gen) }),
	}
	typingMarkers.Inc()
	t.pub.Publish(Outbound{Event: EventTyping, Data: TypingPayload{RoomID: roomID, UserID: userID}}, roomID, origin)
	return true
}

// ClearTyping removes the marker for (roomID, userID), cancelling its timer,
// and publishes stop-typing if there was one.
func (t *TypingTracker) ClearTyping(roomID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clearLocked(typingKey{room: roomID, user: userID})
}

// ClearSession clears every marker last refreshed by s and returns how many
// stop events were published.
func (t *TypingTracker) ClearSession(s *Session) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k, m := range t.markers {
		if m.origin == s && t.clearLocked(k) {
			n++
		}
	}
	return n
}

// ClearSessionRoom clears the marker s owns in roomID, if any.
func (t *TypingTracker) ClearSessionRoom(s *Session, roomID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := typingKey{room: roomID, user: s.UserID()}
	if m, ok := t.markers[k]; ok && m.origin == s {
		return t.clearLocked(k)
	}
	return false
}

// IsTyping reports whether (roomID, userID) currently has a marker.
func (t *TypingTracker) IsTyping(roomID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.markers[typingKey{room: roomID, user: userID}]
	return ok
}

// Stop cancels all timers without publishing. Used at shutdown.
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, m := range t.markers {
		m.timer.Stop()
		delete(t.markers, k)
		typingMarkers.Dec()
	}
}

func (t *TypingTracker) expire(k typingKey, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.markers[k]; ok && m.gen == gen {
		t.clearLocked(k)
	}
}

func (t *TypingTracker) clearLocked(k typingKey) bool {
	m, ok := t.markers[k]
	if !ok {
		return false
	}
	m.timer.Stop()
	delete(t.markers, k)
	typingMarkers.Dec()
	t.pub.Publish(Outbound{Event: EventStopTyping, Data: TypingPayload{RoomID: k.room, UserID: k.user}}, k.room, m.origin)
	return true
}

package realtime

import (
	"sync"
)

// State is a connection's position in its lifecycle.
type State int

const (
	StateUnestablished State = iota
	StateIdentified
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnestablished:
		return "unestablished"
	case StateIdentified:
		return "identified"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one live connection. Outbound events are queued on a bounded
// buffer drained by the transport's write pump; Deliver never blocks.
//
// The joined-room set is written only by the Registry.
type Session struct {
	ID string

	principal string // authenticated user the transport vouched for

	mu     sync.Mutex
	userID string
	rooms  map[string]struct{}
	closed bool
	send   chan Outbound
}

// NewSession returns an Unestablished session with a send buffer of size buffer.
func NewSession(id string, buffer int) *Session {
	if buffer < 1 {
		buffer = 1
	}
	return &Session{
		ID:    id,
		rooms: make(map[string]struct{}),
		send:  make(chan Outbound, buffer),
	}
}

// Send is the receive side of the outbound queue. It is closed when the
// session closes.
func (s *Session) Send() <-chan Outbound { return s.send }

// UserID returns the identified user, or "" before setup.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// State reports the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return StateClosed
	case s.userID == "":
		return StateUnestablished
	case len(s.rooms) > 0:
		return StateJoined
	default:
		return StateIdentified
	}
}

// Rooms returns a snapshot of the joined room ids.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	return out
}

// InRoom reports whether the session has joined roomID.
func (s *Session) InRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID]
	return ok
}

// identify binds the user id once. Repeating setup with the same id is a no-op.
func (s *Session) identify(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrSessionClosed
	case userID == "":
		return ErrInvalidIdentity
	case s.userID == "":
		s.userID = userID
		return nil
	case s.userID == userID:
		return nil
	default:
		return ErrAlreadyIdentified
	}
}

// Deliver enqueues evt without blocking. It reports false when the session
// is closed or its buffer is full.
func (s *Session) Deliver(evt Outbound) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- evt:
		return true
	default:
		return false
	}
}

// deliverIn is Deliver restricted to sessions still joined to roomID at the
// moment of delivery, so a fan-out racing a leave or disconnect skips the
// departed session.
func (s *Session) deliverIn(roomID string, evt Outbound) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, ok := s.rooms[roomID]; !ok {
		return false
	}
	select {
	case s.send <- evt:
		return true
	default:
		return false
	}
}

// Close moves the session to Closed and closes the send queue. It reports
// whether this call performed the transition.
func (s *Session) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.send)
	return true
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) addRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.rooms[roomID] = struct{}{}
	return true
}

func (s *Session) removeRoom(roomID string) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
}

func (s *Session) clearRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	s.rooms = make(map[string]struct{})
	return out
}

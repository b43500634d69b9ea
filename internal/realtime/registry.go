package realtime

import "sync"

// Registry maps room ids to the sessions currently joined to them. All
// membership mutation goes through its methods; MembersOf hands out copies.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[*Session]struct{})}
}

// Join adds s to roomID. Joining twice is a no-op. A closed session cannot
// join, so a join racing a disconnect never leaves an orphaned entry.
func (r *Registry) Join(s *Session, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !s.addRoom(roomID) {
		return ErrSessionClosed
	}
	set, ok := r.rooms[roomID]
	if !ok {
		set = make(map[*Session]struct{})
		r.rooms[roomID] = set
	}
	set[s] = struct{}{}
	return nil
}

// Leave removes s from roomID and reports whether it was there.
func (r *Registry) Leave(s *Session, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.removeRoom(roomID)
	set, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, in := set[s]; !in {
		return false
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.rooms, roomID)
	}
	return true
}

// RemoveAll removes s from every room and returns the rooms it had joined.
func (r *Registry) RemoveAll(s *Session) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	left := s.clearRooms()
	for _, roomID := range left {
		if set, ok := r.rooms[roomID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(r.rooms, roomID)
			}
		}
	}
	return left
}

// MembersOf returns a snapshot of the sessions in roomID.
func (r *Registry) MembersOf(roomID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.rooms[roomID]
	out := make([]*Session, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// SessionsOfUser returns the sessions of userID joined to roomID.
func (r *Registry) SessionsOfUser(roomID, userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for s := range r.rooms[roomID] {
		if s.UserID() == userID {
			out = append(out, s)
		}
	}
	return out
}

// Size returns the number of sessions in roomID.
func (r *Registry) Size(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

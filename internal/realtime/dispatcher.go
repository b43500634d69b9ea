package realtime

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const stripeCount = 64

// Publisher fans an event out to a room, skipping exclude (nil for none).
// Dispatcher is the local implementation; RedisRelay routes through Redis
// first so every instance dispatches locally.
type Publisher interface {
	Publish(evt Outbound, roomID string, exclude *Session) int
}

// Dispatcher delivers room events to the Registry's current members.
//
// Publishes for the same room are serialized by a striped lock, and each
// session's queue is FIFO, so every member observes a room's events in
// publish order. Rooms hashing to different stripes proceed in parallel.
type Dispatcher struct {
	reg     *Registry
	stripes [stripeCount]sync.Mutex
}

// NewDispatcher returns a dispatcher over reg.
func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

// Publish delivers evt at most once to every session in roomID except
// exclude. It returns the number of sessions the event was queued for.
// Closed, departed or backed-up sessions are skipped silently.
func (d *Dispatcher) Publish(evt Outbound, roomID string, exclude *Session) int {
	excludeID := ""
	if exclude != nil {
		excludeID = exclude.ID
	}
	return d.publishExcept(evt, roomID, excludeID)
}

func (d *Dispatcher) publishExcept(evt Outbound, roomID, excludeID string) int {
	mu := &d.stripes[xxhash.Sum64String(roomID)%stripeCount]
	mu.Lock()
	defer mu.Unlock()

	eventsPublished.WithLabelValues(evt.Event).Inc()
	delivered := 0
	for _, s := range d.reg.MembersOf(roomID) {
		if excludeID != "" && s.ID == excludeID {
			continue
		}
		if s.deliverIn(roomID, evt) {
			delivered++
		} else {
			deliveriesDropped.WithLabelValues(evt.Event).Inc()
		}
	}
	return delivered
}

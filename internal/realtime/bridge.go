package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tbourn/go-chat-realtime/internal/domain"
)

// LatestSetter updates a room's cached most-recent-message pointer.
type LatestSetter interface {
	SetLatestMessage(ctx context.Context, roomID, messageID string) error
}

// LatestFunc adapts a function to LatestSetter.
type LatestFunc func(ctx context.Context, roomID, messageID string) error

// SetLatestMessage calls f.
func (f LatestFunc) SetLatestMessage(ctx context.Context, roomID, messageID string) error {
	return f(ctx, roomID, messageID)
}

const (
	// ReannounceWindow bounds how old a committed message may be for an
	// inbound "new message" to fan it out. Older ids count as delivered.
	ReannounceWindow = time.Minute

	// seenRetention keeps fanned-out ids well past ReannounceWindow, so
	// every id young enough to be re-announced is still remembered.
	seenRetention = 2 * ReannounceWindow
)

// Bridge connects the durable write path to live fan-out. It is invoked after
// a message is committed.
type Bridge struct {
	pub    Publisher
	latest LatestSetter
	seen   *seenSet
}

// NewBridge returns a bridge publishing through pub. latest may be nil.
func NewBridge(pub Publisher, latest LatestSetter) *Bridge {
	return &Bridge{pub: pub, latest: latest, seen: newSeenSet(seenRetention, time.Now)}
}
// OnMessageCreated updates the room's latest-message pointer and publishes
// "message received" to every session in the room, the sender's included.
// The event is published even if the pointer update fails (the pointer is a
// cache); that error is returned for the caller to log.
func (b *Bridge) OnMessageCreated(ctx context.Context, msg *domain.Message) error {
	ctx, span := otel.Tracer("realtime/bridge").Start(ctx, "Bridge.OnMessageCreated")
	defer span.End()
	span.SetAttributes(
		attribute.String("room.id", msg.RoomID),
		attribute.String("message.id", msg.ID),
	)

	var err error
	if b.latest != nil {
		if err = b.latest.SetLatestMessage(ctx, msg.RoomID, msg.ID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "latest pointer")
			err = fmt.Errorf("set latest message: %w", err)
		}
	}
	b.fanOut(msg)
	return err
}

// Seen reports whether msgID was already fanned out by this bridge.
func (b *Bridge) Seen(msgID string) bool { return b.seen.has(msgID) }

func (b *Bridge) fanOut(msg *domain.Message) {
	if !b.seen.add(msg.ID) {
		return
	}
	b.pub.Publish(Outbound{Event: EventMessageReceived, Data: msg}, msg.RoomID, nil)
}

// seenSet remembers ids for at least ttl after they were added. Entries are
// pruned in insertion order on add, so memory follows the fan-out rate.
type seenSet struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	ids   map[string]time.Time
	order []seenEntry
}

type seenEntry struct {
	id string
	at time.Time
}

func newSeenSet(ttl time.Duration, now func() time.Time) *seenSet {
	return &seenSet{ttl: ttl, now: now, ids: make(map[string]time.Time)}
}

// add records id and reports whether it was new.
func (s *seenSet) add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pruneLocked(now)
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = now
	s.order = append(s.order, seenEntry{id: id, at: now})
	return true
}

func (s *seenSet) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.ids[id]
	return ok && s.now().Sub(at) < s.ttl
}

func (s *seenSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

func (s *seenSet) pruneLocked(now time.Time) {
	i := 0
	for ; i < len(s.order) && now.Sub(s.order[i].at) >= s.ttl; i++ {
		delete(s.ids, s.order[i].id)
	}
	if i > 0 {
		s.order = append(s.order[:0:0], s.order[i:]...)
	}
}

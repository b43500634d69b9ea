package realtime

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-chat-realtime/internal/domain"
)

type instance struct {
	reg   *Registry
	relay *RedisRelay
	hub   *Hub
}

// startInstance runs one server's realtime stack against the shared Redis.
func startInstance(t *testing.T, addr string) *instance {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	reg := NewRegistry()
	relay := NewRedisRelay(rdb, "chat:test", NewDispatcher(reg))
	hub := NewHub(reg, relay, Options{TypingTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("relay run: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Errorf("relay did not stop")
		}
		hub.Shutdown()
		_ = rdb.Close()
	})

	select {
	case <-relay.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("relay never subscribed")
	}
	return &instance{reg: reg, relay: relay, hub: hub}
}

func TestRedisRelay_CrossInstanceFanOut(t *testing.T) {
	mr := miniredis.RunT(t)
	one := startInstance(t, mr.Addr())
	two := startInstance(t, mr.Addr())

	a := connect(t, one.hub, "u1", "r1")
	b := connect(t, two.hub, "u2", "r1")
	c := connect(t, two.hub, "u3", "r2")

	msg := &domain.Message{ID: "m1", RoomID: "r1", SenderID: "u1", Content: "hi"}
	if err := one.hub.Bridge().OnMessageCreated(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	for _, s := range []*Session{a, b} {
		got := recv(t, s)
		m, err := DecodeMessage(got)
		if err != nil || m.ID != "m1" || m.Content != "hi" {
			t.Fatalf("%s got %+v (%v)", s.ID, got, err)
		}
	}
	expectNone(t, c, 50*time.Millisecond)

	// The other instance learned the id, so a late announcement is ignored.
	if !two.hub.Bridge().Seen("m1") {
		t.Fatal("remote bridge did not record m1")
	}
}

func TestRedisRelay_TypingExcludesOrigin(t *testing.T) {
	mr := miniredis.RunT(t)
	one := startInstance(t, mr.Addr())
	two := startInstance(t, mr.Addr())

	a := connect(t, one.hub, "u1", "r1")
	b := connect(t, two.hub, "u2", "r1")

	if err := one.hub.Handle(context.Background(), a, Inbound{Kind: KindTyping, RoomID: "r1"}); err != nil {
		t.Fatal(err)
	}
	got := recv(t, b)
	if got.Event != EventTyping {
		t.Fatalf("want typing, got %+v", got)
	}
	expectNone(t, a, 100*time.Millisecond)
}

func TestRedisRelay_PreservesRoomOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	one := startInstance(t, mr.Addr())
	two := startInstance(t, mr.Addr())
	b := connect(t, two.hub, "u2", "r1")

	for i := 0; i < 10; i++ {
		one.relay.Publish(Outbound{Event: "seq", Data: i}, "r1", nil)
	}
	for i := 0; i < 10; i++ {
		got := recv(t, b)
		// Relayed data arrives as raw JSON.
		raw, ok := got.Data.(json.RawMessage)
		if !ok || string(raw) != strconv.Itoa(i) {
			t.Fatalf("position %d: got %v", i, got.Data)
		}
	}
}

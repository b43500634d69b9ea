package realtime

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestDispatcher_RoomIsolation(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r)
	a := newIdentified(t, "a", "u1")
	b := newIdentified(t, "b", "u2")
	c := newIdentified(t, "c", "u3")
	mustJoin(t, r, a, "r1")
	mustJoin(t, r, b, "r1")
	mustJoin(t, r, c, "r2")

	if n := d.Publish(Outbound{Event: "ping"}, "r1", nil); n != 2 {
		t.Fatalf("delivered to %d, want 2", n)
	}
	recv(t, a)
	recv(t, b)
	expectNone(t, c, 50*time.Millisecond)
}

func TestDispatcher_Exclude(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r)
	a := newIdentified(t, "a", "u1")
	b := newIdentified(t, "b", "u2")
	mustJoin(t, r, a, "r1")
	mustJoin(t, r, b, "r1")

	if n := d.Publish(Outbound{Event: EventTyping}, "r1", a); n != 1 {
		t.Fatalf("delivered to %d, want 1", n)
	}
	if got := recv(t, b); got.Event != EventTyping {
		t.Fatalf("b got %+v", got)
	}
	expectNone(t, a, 50*time.Millisecond)
}

func TestDispatcher_EmptyRoom(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	if n := d.Publish(Outbound{Event: "x"}, "nobody", nil); n != 0 {
		t.Fatalf("delivered to %d", n)
	}
}

func TestDispatcher_SkipsClosedAndDeparted(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r)
	a := newIdentified(t, "a", "u1")
	b := newIdentified(t, "b", "u2")
	mustJoin(t, r, a, "r1")
	mustJoin(t, r, b, "r1")

	// a closes but is still registered; b leaves.
	a.Close()
	r.Leave(b, "r1")

	if n := d.Publish(Outbound{Event: "x"}, "r1", nil); n != 0 {
		t.Fatalf("delivered to %d, want 0", n)
	}
	expectNone(t, b, 50*time.Millisecond)
}

func TestDispatcher_FullBufferDropsWithoutBlocking(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r)
	slow := NewSession("slow", 1)
	_ = slow.identify("u1")
	fast := newIdentified(t, "fast", "u2")
	mustJoin(t, r, slow, "r1")
	mustJoin(t, r, fast, "r1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Publish(Outbound{Event: "x", Data: i}, "r1", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full session")
	}
	for i := 0; i < 10; i++ {
		if got := recv(t, fast); got.Data != i {
			t.Fatalf("fast got %v at %d", got.Data, i)
		}
	}
}

// Concurrent publishers to one room: every member sees the same order.
func TestDispatcher_PerRoomOrderIsConsistent(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r)
	const members, publishers, each = 4, 4, 25

	sessions := make([]*Session, members)
	for i := range sessions {
		s := NewSession(fmt.Sprintf("s%d", i), publishers*each)
		_ = s.identify(fmt.Sprintf("u%d", i))
		mustJoin(t, r, s, "r1")
		sessions[i] = s
	}

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				d.Publish(Outbound{Event: "x", Data: fmt.Sprintf("%d-%d", p, i)}, "r1", nil)
			}
		}(p)
	}
	wg.Wait()

	var ref []any
	for i, s := range sessions {
		var got []any
		for j := 0; j < publishers*each; j++ {
			got = append(got, recv(t, s).Data)
		}
		if i == 0 {
			ref = got
			continue
		}
		for j := range got {
			if got[j] != ref[j] {
				t.Fatalf("session %d diverges at %d: %v vs %v", i, j, got[j], ref[j])
			}
		}
	}
}

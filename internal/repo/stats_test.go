package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-chat-realtime/internal/domain"
)

func TestMessagesStats(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	seedUser(t, db, "u1", "Ann", "ann@x.io")
	seedUser(t, db, "u2", "Bob", "bob@x.io")
	room, _ := CreateDirectRoom(ctx, db, "u1", "u2")

	n, at, err := MessagesStats(ctx, db, room.ID)
	if err != nil || n != 0 || at != nil {
		t.Fatalf("expected (0, nil, nil), got (%d, %v, %v)", n, at, err)
	}

	first, _ := CreateMessage(ctx, db, room.ID, "u1", "one", "")
	second, _ := CreateMessage(ctx, db, room.ID, "u2", "two", "")
	later := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := db.Model(&domain.Message{}).Where("id = ?", second.ID).UpdateColumn("updated_at", later).Error; err != nil {
		t.Fatalf("bump: %v", err)
	}

	n, at, err = MessagesStats(ctx, db, room.ID)
	if err != nil || n != 2 || at == nil {
		t.Fatalf("unexpected stats: (%d, %v, %v)", n, at, err)
	}
	if !at.Equal(later) {
		t.Fatalf("max updated_at = %v, want %v (first=%v)", at, later, first.UpdatedAt)
	}

	if n, _, _ := MessagesStats(ctx, db, "other-room"); n != 0 {
		t.Fatalf("other room count = %d", n)
	}
}

func TestStats_ErrorWithoutTables(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	if _, _, err := MessagesStats(ctx, db, "r1"); err == nil {
		t.Fatal("expected error without messages table")
	}
	if _, _, err := RoomsStats(ctx, db, "u1"); err == nil {
		t.Fatal("expected error without rooms table")
	}
}

package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-chat-realtime/internal/domain"
)

func TestCreateDirectRoom_DuplicatePairIsRejected(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	seedUser(t, db, "u1", "Ann", "ann@x.io")
	seedUser(t, db, "u2", "Bob", "bob@x.io")

	r, err := CreateDirectRoom(ctx, db, "u1", "u2")
	if err != nil {
		t.Fatalf("CreateDirectRoom: %v", err)
	}
	if r.IsGroup || r.DirectKey == nil || *r.DirectKey != "u1:u2" {
		t.Fatalf("unexpected room: %+v", r)
	}

	// Reversed order is the same pair.
	if _, err := CreateDirectRoom(ctx, db, "u2", "u1"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := FindDirectRoom(ctx, db, "u2", "u1")
	if err != nil {
		t.Fatalf("FindDirectRoom: %v", err)
	}
	if got.ID != r.ID || len(got.Members) != 2 {
		t.Fatalf("unexpected found room: %+v", got)
	}

	var members int64
	db.Model(&domain.RoomMember{}).Count(&members)
	if members != 2 {
		t.Fatalf("failed insert must not leave membership rows, have %d", members)
	}
}

func TestFindDirectRoom_NotFound(t *testing.T) {
	db := newRepoDB(t)
	if _, err := FindDirectRoom(context.Background(), db, "a", "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateGroupRoom_MembersAdminAndUniqueName(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		seedUser(t, db, id, id, id+"@x.io")
	}

	r, err := CreateGroupRoom(ctx, db, "Team", "a", []string{"b", "c", "a"}, domain.DefaultAvatarURL)
	if err != nil {
		t.Fatalf("CreateGroupRoom: %v", err)
	}
	if !r.IsGroup || r.AdminID == nil || *r.AdminID != "a" {
		t.Fatalf("unexpected room: %+v", r)
	}
	got, err := GetRoom(ctx, db, r.ID)
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if len(got.Members) != 3 {
		t.Fatalf("expected 3 unique members, got %d", len(got.Members))
	}

	if _, err := CreateGroupRoom(ctx, db, "Team", "b", []string{"a", "c"}, ""); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for same group name, got %v", err)
	}
}

func TestMembership_AddRemoveIsMember(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		seedUser(t, db, id, id, id+"@x.io")
	}
	r, err := CreateGroupRoom(ctx, db, "G", "a", []string{"b", "c"}, "")
	if err != nil {
		t.Fatalf("CreateGroupRoom: %v", err)
	}

	if ok, _ := IsMember(ctx, db, r.ID, "d"); ok {
		t.Fatalf("d must not be a member yet")
	}
	if err := AddMember(ctx, db, r.ID, "d"); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := AddMember(ctx, db, r.ID, "d"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on re-add, got %v", err)
	}
	if ok, _ := IsMember(ctx, db, r.ID, "d"); !ok {
		t.Fatalf("d should be a member")
	}
	if err := RemoveMember(ctx, db, r.ID, "d"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if err := RemoveMember(ctx, db, r.ID, "d"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestRenameGroupRoom(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	seedUser(t, db, "a", "a", "a@x.io")
	seedUser(t, db, "b", "b", "b@x.io")
	g1, _ := CreateGroupRoom(ctx, db, "One", "a", []string{"b"}, "")
	_, _ = CreateGroupRoom(ctx, db, "Two", "a", []string{"b"}, "")

	if err := RenameGroupRoom(ctx, db, g1.ID, "Uno"); err != nil {
		t.Fatalf("RenameGroupRoom: %v", err)
	}
	if err := RenameGroupRoom(ctx, db, g1.ID, "Two"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := RenameGroupRoom(ctx, db, "missing", "X"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	direct, _ := CreateDirectRoom(ctx, db, "a", "b")
	if err := RenameGroupRoom(ctx, db, direct.ID, "X"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("direct rooms cannot be renamed, got %v", err)
	}
}

func TestListRoomsForUser_OrderAndLatestMessage(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		seedUser(t, db, id, id, id+"@x.io")
	}
	ab, _ := CreateDirectRoom(ctx, db, "a", "b")
	ac, _ := CreateDirectRoom(ctx, db, "a", "c")
	bc, _ := CreateDirectRoom(ctx, db, "b", "c")

	// Push ab forward by posting into it later.
	time.Sleep(5 * time.Millisecond)
	msg, err := CreateMessage(ctx, db, ab.ID, "b", "hello", "")
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if err := SetLatestMessage(ctx, db, ab.ID, msg.ID); err != nil {
		t.Fatalf("SetLatestMessage: %v", err)
	}

	rooms, err := ListRoomsForUser(ctx, db, "a")
	if err != nil {
		t.Fatalf("ListRoomsForUser: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}
	if rooms[0].ID != ab.ID || rooms[1].ID != ac.ID {
		t.Fatalf("unexpected order: %s, %s", rooms[0].ID, rooms[1].ID)
	}
	if rooms[0].LatestMessage == nil || rooms[0].LatestMessage.Content != "hello" {
		t.Fatalf("latest message not attached: %+v", rooms[0].LatestMessage)
	}
	if rooms[0].LatestMessage.Sender == nil || rooms[0].LatestMessage.Sender.ID != "b" {
		t.Fatalf("latest message sender not attached")
	}
	for _, r := range rooms {
		if r.ID == bc.ID {
			t.Fatalf("room bc must not be listed for a")
		}
	}

	if err := SetLatestMessage(ctx, db, "missing", msg.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoomsStats(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	seedUser(t, db, "a", "a", "a@x.io")
	seedUser(t, db, "b", "b", "b@x.io")

	n, at, err := RoomsStats(ctx, db, "a")
	if err != nil || n != 0 || at != nil {
		t.Fatalf("expected (0, nil, nil), got (%d, %v, %v)", n, at, err)
	}
	if _, err := CreateDirectRoom(ctx, db, "a", "b"); err != nil {
		t.Fatalf("CreateDirectRoom: %v", err)
	}
	n, at, err = RoomsStats(ctx, db, "a")
	if err != nil || n != 1 || at == nil || at.IsZero() {
		t.Fatalf("unexpected stats: (%d, %v, %v)", n, at, err)
	}
}

// Package services – RoomService
//
// This file implements RoomService, which manages direct and group rooms and
// their durable membership. Direct rooms are unique per member pair: a
// create that loses a race against a concurrent create for the same pair
// resolves to the room the winner inserted. Group rooms are administered by
// their creator; only the admin renames a group or changes its members,
// except that any member may remove themselves.
//
// When a member is removed, their live sessions are evicted from the room
// through the Live hook so they stop receiving its events at once.
//
// RoomService also serves the realtime hub: IsMember backs join checks and
// SetLatestMessage backs the ingest bridge's latest-message pointer.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-realtime/internal/domain"
	"github.com/tbourn/go-chat-realtime/internal/repo"
	"github.com/tbourn/go-chat-realtime/internal/storage"
)

// RoomRepo defines the repository contract required by RoomService.
type RoomRepo interface {
	// CreateDirectRoom inserts a direct room for the pair; a racing duplicate
	// returns repo.ErrDuplicate.
	CreateDirectRoom(ctx context.Context, db *gorm.DB, a, b string) (*domain.Room, error)

	// FindDirectRoom returns the direct room for the pair.
	FindDirectRoom(ctx context.Context, db *gorm.DB, a, b string) (*domain.Room, error)

	// CreateGroupRoom inserts a named group with its members.
	CreateGroupRoom(ctx context.Context, db *gorm.DB, name, adminID string, memberIDs []string, pic string) (*domain.Room, error)

	// GetRoom fetches a room with its members.
	GetRoom(ctx context.Context, db *gorm.DB, id string) (*domain.Room, error)

	// ListRoomsForUser returns the user's rooms, most recently active first.
	ListRoomsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Room, error)

	// IsMember reports durable membership.
	IsMember(ctx context.Context, db *gorm.DB, roomID, userID string) (bool, error)

	// AddMember inserts a membership row.
	AddMember(ctx context.Context, db *gorm.DB, roomID, userID string) error

	// RemoveMember deletes a membership row.
	RemoveMember(ctx context.Context, db *gorm.DB, roomID, userID string) error

	// RenameGroupRoom renames a group room.
	RenameGroupRoom(ctx context.Context, db *gorm.DB, roomID, name string) error

	// SetLatestMessage updates the cached latest-message pointer.
	SetLatestMessage(ctx context.Context, db *gorm.DB, roomID, messageID string) error

	// CountUsers returns how many of ids exist.
	CountUsers(ctx context.Context, db *gorm.DB, ids []string) (int64, error)
}

// LiveRooms evicts live sessions from a room. The realtime hub implements it.
type LiveRooms interface {
	RemoveUserFromRoom(roomID, userID string) int
}

// RoomService provides room-level operations.
type RoomService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the room repository used by this service.
	Repo RoomRepo
	// Live is optional; when set, removed members are evicted from the room's
	// live sessions.
	Live LiveRooms
	// Images resolves group pictures.
	Images storage.Images

	// NameMaxLen caps group names by rune length.
	NameMaxLen int
}

// NewRoomService constructs a RoomService with default limits.
func NewRoomService(db *gorm.DB, r RoomRepo) *RoomService {
	return &RoomService{DB: db, Repo: r, NameMaxLen: 80}
}

// AccessDirect returns the direct room between userID and otherID, creating
// it if needed.
func (s *RoomService) AccessDirect(ctx context.Context, userID, otherID string) (*domain.Room, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "AccessDirect",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("other.id", otherID),
		),
	)
	defer span.End()

	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return nil, ErrInvalidInput
	}
	if otherID == userID {
		return nil, ErrSelfChat
	}
	n, err := s.Repo.CountUsers(ctx, s.DB, []string{otherID})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrUserNotFound
	}

	room, err := s.Repo.FindDirectRoom(ctx, s.DB, userID, otherID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	created, err := s.Repo.CreateDirectRoom(ctx, s.DB, userID, otherID)
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent request created it first.
		return s.Repo.FindDirectRoom(ctx, s.DB, userID, otherID)
	}
	if err != nil {
		return nil, err
	}
	return s.Repo.GetRoom(ctx, s.DB, created.ID)
}

// List returns every room userID belongs to, most recently active first.
func (s *RoomService) List(ctx context.Context, userID string) ([]domain.Room, error) {
	return s.Repo.ListRoomsForUser(ctx, s.DB, userID)
}

// Get returns a room the caller belongs to. Rooms the caller is not in are
// reported as not found.
func (s *RoomService) Get(ctx context.Context, userID, roomID string) (*domain.Room, error) {
	room, err := s.Repo.GetRoom(ctx, s.DB, roomID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	for _, m := range room.Members {
		if m.ID == userID {
			return room, nil
		}
	}
	return nil, ErrRoomNotFound
}

// CreateGroup creates a named group administered by adminID with at least
// two other members.
func (s *RoomService) CreateGroup(ctx context.Context, adminID, name string, userIDs []string, pic string) (*domain.Room, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "CreateGroup",
		trace.WithAttributes(
			attribute.String("user.id", adminID),
			attribute.Int("members", len(userIDs)),
		),
	)
	defer span.End()

	name = s.clip(normalizeTitle(name))
	if name == "" {
		return nil, ErrInvalidInput
	}
	others := uniqueExcept(userIDs, adminID)
	if len(others) < 2 {
		return nil, ErrGroupTooSmall
	}
	n, err := s.Repo.CountUsers(ctx, s.DB, others)
	if err != nil {
		return nil, err
	}
	if int(n) != len(others) {
		return nil, ErrUserNotFound
	}

	picURL, err := s.Images.Resolve(ctx, "rooms", pic)
	if err != nil {
		return nil, err
	}
	if picURL == "" {
		picURL = domain.DefaultAvatarURL
	}

	room, err := s.Repo.CreateGroupRoom(ctx, s.DB, name, adminID, others, picURL)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrRoomExists
		}
		return nil, err
	}
	return s.Repo.GetRoom(ctx, s.DB, room.ID)
}

// Rename renames a group. Admin only.
func (s *RoomService) Rename(ctx context.Context, userID, roomID, name string) (*domain.Room, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "Rename",
		trace.WithAttributes(attribute.String("room.id", roomID)),
	)
	defer span.End()

	name = s.clip(normalizeTitle(name))
	if name == "" {
		return nil, ErrInvalidInput
	}
	if _, err := s.requireAdmin(ctx, userID, roomID); err != nil {
		return nil, err
	}
	if err := s.Repo.RenameGroupRoom(ctx, s.DB, roomID, name); err != nil {
		switch {
		case errors.Is(err, repo.ErrDuplicate):
			return nil, ErrRoomExists
		case errors.Is(err, repo.ErrNotFound):
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return s.Repo.GetRoom(ctx, s.DB, roomID)
}

// AddMember adds memberID to a group. Admin only.
func (s *RoomService) AddMember(ctx context.Context, userID, roomID, memberID string) (*domain.Room, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "AddMember",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("member.id", memberID),
		),
	)
	defer span.End()

	if _, err := s.requireAdmin(ctx, userID, roomID); err != nil {
		return nil, err
	}
	n, err := s.Repo.CountUsers(ctx, s.DB, []string{memberID})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrUserNotFound
	}
	if err := s.Repo.AddMember(ctx, s.DB, roomID, memberID); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrAlreadyMember
		}
		return nil, err
	}
	return s.Repo.GetRoom(ctx, s.DB, roomID)
}

// RemoveMember removes memberID from a group. The admin may remove anyone;
// other members may only remove themselves. The removed user's live sessions
// leave the room immediately.
func (s *RoomService) RemoveMember(ctx context.Context, userID, roomID, memberID string) (*domain.Room, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "RemoveMember",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("member.id", memberID),
		),
	)
	defer span.End()

	room, err := s.groupFor(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	if memberID != userID && (room.AdminID == nil || *room.AdminID != userID) {
		return nil, ErrNotAdmin
	}
	if err := s.Repo.RemoveMember(ctx, s.DB, roomID, memberID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotMember
		}
		return nil, err
	}
	if s.Live != nil {
		evicted := s.Live.RemoveUserFromRoom(roomID, memberID)
		span.SetAttributes(attribute.Int("sessions.evicted", evicted))
	}
	return s.Repo.GetRoom(ctx, s.DB, roomID)
}

// IsMember reports whether userID belongs to roomID.
func (s *RoomService) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	return s.Repo.IsMember(ctx, s.DB, roomID, userID)
}

// SetLatestMessage updates the room's latest-message pointer.
func (s *RoomService) SetLatestMessage(ctx context.Context, roomID, messageID string) error {
	return s.Repo.SetLatestMessage(ctx, s.DB, roomID, messageID)
}

// groupFor loads a group room the caller belongs to.
func (s *RoomService) groupFor(ctx context.Context, userID, roomID string) (*domain.Room, error) {
	room, err := s.Get(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsGroup {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

func (s *RoomService) requireAdmin(ctx context.Context, userID, roomID string) (*domain.Room, error) {
	room, err := s.groupFor(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	if room.AdminID == nil || *room.AdminID != userID {
		return nil, ErrNotAdmin
	}
	return room, nil
}

// clip truncates a group name to the configured maximum rune length.
func (s *RoomService) clip(name string) string {
	if s.NameMaxLen > 0 && utf8.RuneCountInString(name) > s.NameMaxLen {
		return string([]rune(name)[:s.NameMaxLen])
	}
	return name
}

// uniqueExcept returns ids without blanks, duplicates, or skip, in input order.
func uniqueExcept(ids []string, skip string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || id == skip {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

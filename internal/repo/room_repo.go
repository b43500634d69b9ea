// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for rooms and their
// membership rows.
//
// All functions are context-aware and accept a *gorm.DB handle, so they run
// unchanged inside a transaction. Uniqueness of direct rooms (one per member
// pair) and group names is enforced by the database; callers receive
// ErrDuplicate and decide how to resolve it.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-realtime/internal/domain"
)

// CreateDirectRoom inserts a direct room for the pair (a, b) with both
// membership rows in one transaction. A concurrent create for the same pair
// loses on the direct_key unique index and gets ErrDuplicate.
func CreateDirectRoom(ctx context.Context, db *gorm.DB, a, b string) (*domain.Room, error) {
	key := domain.DirectKeyFor(a, b)
	now := time.Now().UTC()
	room := &domain.Room{
		ID:        uuid.NewString(),
		DirectKey: &key,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Members").Create(room).Error; err != nil {
			return err
		}
		return insertMembers(tx, room.ID, []string{a, b}, now)
	})
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return room, nil
}

// FindDirectRoom returns the direct room for the pair, or ErrNotFound.
func FindDirectRoom(ctx context.Context, db *gorm.DB, a, b string) (*domain.Room, error) {
	var r domain.Room
	err := db.WithContext(ctx).
		Preload("Members").
		Where("direct_key = ?", domain.DirectKeyFor(a, b)).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateGroupRoom inserts a named group room administered by adminID whose
// members are adminID plus memberIDs. Duplicate names yield ErrDuplicate.
func CreateGroupRoom(ctx context.Context, db *gorm.DB, name, adminID string, memberIDs []string, pic string) (*domain.Room, error) {
	now := time.Now().UTC()
	gname := name
	admin := adminID
	room := &domain.Room{
		ID:        uuid.NewString(),
		Name:      name,
		IsGroup:   true,
		AdminID:   &admin,
		GroupName: &gname,
		Pic:       pic,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ids := append([]string{adminID}, memberIDs...)
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Members").Create(room).Error; err != nil {
			return err
		}
		return insertMembers(tx, room.ID, ids, now)
	})
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return room, nil
}

func insertMembers(tx *gorm.DB, roomID string, userIDs []string, now time.Time) error {
	seen := make(map[string]struct{}, len(userIDs))
	rows := make([]domain.RoomMember, 0, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		rows = append(rows, domain.RoomMember{RoomID: roomID, UserID: id, CreatedAt: now})
	}
	return tx.Create(&rows).Error
}

// GetRoom fetches a room with its members preloaded.
func GetRoom(ctx context.Context, db *gorm.DB, id string) (*domain.Room, error) {
	var r domain.Room
	if err := db.WithContext(ctx).Preload("Members").Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRoomsForUser returns the rooms userID belongs to, most recently updated
// first, with members and the latest message (plus its sender) attached.
func ListRoomsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Room, error) {
	var out []domain.Room
	err := db.WithContext(ctx).
		Preload("Members").
		Joins("JOIN room_members rm ON rm.room_id = rooms.id AND rm.user_id = ?", userID).
		Order("rooms.updated_at DESC, rooms.id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}

	var latestIDs []string
	for _, r := range out {
		if r.LatestMessageID != nil {
			latestIDs = append(latestIDs, *r.LatestMessageID)
		}
	}
	if len(latestIDs) == 0 {
		return out, nil
	}
	var msgs []domain.Message
	if err := db.WithContext(ctx).Preload("Sender").Where("id IN ?", latestIDs).Find(&msgs).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Message, len(msgs))
	for i := range msgs {
		byID[msgs[i].ID] = &msgs[i]
	}
	for i := range out {
		if out[i].LatestMessageID != nil {
			out[i].LatestMessage = byID[*out[i].LatestMessageID]
		}
	}
	return out, nil
}

// IsMember reports whether userID currently belongs to roomID.
func IsMember(ctx context.Context, db *gorm.DB, roomID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&n).Error
	return n > 0, err
}

// AddMember inserts a membership row; an existing membership is ErrDuplicate.
func AddMember(ctx context.Context, db *gorm.DB, roomID, userID string) error {
	row := &domain.RoomMember{RoomID: roomID, UserID: userID, CreatedAt: time.Now().UTC()}
	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		return mapWriteErr(err)
	}
	return touchRoom(ctx, db, roomID)
}

// RemoveMember deletes a membership row or returns ErrNotFound.
func RemoveMember(ctx context.Context, db *gorm.DB, roomID, userID string) error {
	res := db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&domain.RoomMember{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return touchRoom(ctx, db, roomID)
}

// RenameGroupRoom changes the display name and the unique group key together.
func RenameGroupRoom(ctx context.Context, db *gorm.DB, roomID, name string) error {
	res := db.WithContext(ctx).
		Model(&domain.Room{}).
		Where("id = ? AND is_group = ?", roomID, true).
		Updates(map[string]any{"name": name, "group_name": name, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return mapWriteErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLatestMessage points the room at messageID and bumps updated_at so the
// room sorts first in its members' lists.
func SetLatestMessage(ctx context.Context, db *gorm.DB, roomID, messageID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Room{}).
		Where("id = ?", roomID).
		Updates(map[string]any{"latest_message_id": messageID, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func touchRoom(ctx context.Context, db *gorm.DB, roomID string) error {
	return db.WithContext(ctx).
		Model(&domain.Room{}).
		Where("id = ?", roomID).
		Update("updated_at", time.Now().UTC()).Error
}

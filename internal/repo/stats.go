// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-realtime/internal/domain"
)

// RoomsStats returns the number of rooms userID belongs to and the greatest
// UpdatedAt among them (nil when there are none).
func RoomsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).
		Model(&domain.Room{}).
		Joins("JOIN room_members rm ON rm.room_id = rooms.id AND rm.user_id = ?", userID)
	return countAndLatest(q, "rooms.updated_at")
}

// MessagesStats returns the number of messages in roomID and the greatest
// UpdatedAt among them (nil when there are none).
func MessagesStats(ctx context.Context, db *gorm.DB, roomID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("room_id = ?", roomID)
	return countAndLatest(q, "updated_at")
}

func countAndLatest(q *gorm.DB, column string) (int64, *time.Time, error) {
	var count int64
	if err := q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Avoid MAX() which SQLite hands back as TEXT.
	var row struct {
		UpdatedAt time.Time
	}
	err := q.Session(&gorm.Session{}).
		Select(column + " AS updated_at").
		Order(column + " DESC").
		Limit(1).
		Scan(&row).Error
	if err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

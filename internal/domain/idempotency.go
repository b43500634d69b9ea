package domain

import "time"

// Idempotency records the outcome of a message create keyed by
// (user_id, room_id, key). A retried POST with the same key returns the
// originally created message instead of inserting (and broadcasting) again.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	UserID    string    `gorm:"type:char(36);not null;uniqueIndex:ux_user_room_key,priority:1"`
	RoomID    string    `gorm:"type:char(36);not null;uniqueIndex:ux_user_room_key,priority:2"`
	Key       string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_user_room_key,priority:3"`
	MessageID string    `gorm:"type:char(36);not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

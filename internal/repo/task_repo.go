package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-realtime/internal/domain"
)

// CreateTask inserts a task owned by userID.
func CreateTask(ctx context.Context, db *gorm.DB, userID, title, category string) (*domain.Task, error) {
	now := time.Now().UTC()
	t := &domain.Task{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// ListTasks returns the user's tasks, newest first, optionally filtered by category.
func ListTasks(ctx context.Context, db *gorm.DB, userID, category string) ([]domain.Task, error) {
	var out []domain.Task
	q := db.WithContext(ctx).Where("user_id = ?", userID)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	err := q.Order("created_at DESC, id ASC").Find(&out).Error
	return out, err
}

// GetTask fetches a task scoped to its owner.
func GetTask(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Task, error) {
	var t domain.Task
	if err := db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTask applies a partial column map. Rows owned by someone else are
// indistinguishable from missing ones (ErrNotFound).
func UpdateTask(ctx context.Context, db *gorm.DB, id, userID string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Task{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTask removes a task owned by userID or returns ErrNotFound.
func DeleteTask(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Task{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

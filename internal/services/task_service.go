// Package services – TaskService
//
// This file implements TaskService for the task tracker: per-user tasks with
// an optional category and a completed flag. Every operation is scoped to
// the owner; tasks of other users behave as if they did not exist.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-realtime/internal/domain"
	"github.com/tbourn/go-chat-realtime/internal/repo"
)

// TaskPatch carries the optional fields of a task update.
type TaskPatch struct {
	Title     *string
	Completed *bool
	Category  *string
}

// TaskService provides task CRUD.
type TaskService struct {
	DB *gorm.DB
	// TitleMaxLen caps titles by rune length (default 255).
	TitleMaxLen int
}

// Create adds a task for userID.
func (s *TaskService) Create(ctx context.Context, userID, title, category string) (*domain.Task, error) {
	title = s.clip(normalizeTitle(title))
	if title == "" {
		return nil, ErrEmptyTitle
	}
	return repo.CreateTask(ctx, s.DB, userID, title, normalizeCategory(category))
}

// List returns userID's tasks, optionally filtered by category.
func (s *TaskService) List(ctx context.Context, userID, category string) ([]domain.Task, error) {
	return repo.ListTasks(ctx, s.DB, userID, normalizeCategory(category))
}

// Update applies a partial update and returns the stored task.
func (s *TaskService) Update(ctx context.Context, userID, id string, p TaskPatch) (*domain.Task, error) {
	fields := map[string]any{}
	if p.Title != nil {
		title := s.clip(normalizeTitle(*p.Title))
		if title == "" {
			return nil, ErrEmptyTitle
		}
		fields["title"] = title
	}
	if p.Completed != nil {
		fields["completed"] = *p.Completed
	}
	if p.Category != nil {
		fields["category"] = normalizeCategory(*p.Category)
	}
	if len(fields) > 0 {
		if err := repo.UpdateTask(ctx, s.DB, id, userID, fields); err != nil {
			return nil, mapTaskErr(err)
		}
	}
	t, err := repo.GetTask(ctx, s.DB, id, userID)
	if err != nil {
		return nil, mapTaskErr(err)
	}
	return t, nil
}

// Delete removes a task.
func (s *TaskService) Delete(ctx context.Context, userID, id string) error {
	return mapTaskErr(repo.DeleteTask(ctx, s.DB, id, userID))
}

func (s *TaskService) clip(title string) string {
	max := s.TitleMaxLen
	if max <= 0 {
		max = 255
	}
	if utf8.RuneCountInString(title) > max {
		return string([]rune(title)[:max])
	}
	return title
}

func normalizeCategory(c string) string {
	return strings.ToLower(normalizeTitle(c))
}

func mapTaskErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrTaskNotFound
	}
	return err
}

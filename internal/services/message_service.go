// Package services – MessageService
//
// This file implements MessageService, the durable write path for room
// messages. It validates input, checks room membership, uploads inline
// images, and commits the message together with its idempotency record in
// one transaction. Only after the commit does it hand the record to the
// realtime ingest bridge, which updates the room's latest-message pointer
// and fans the message out to the room's live sessions.
//
// A retried send carrying the same Idempotency-Key returns the originally
// created message and is not broadcast again.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include room/user identifiers and pagination parameters where applicable.
package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-realtime/internal/domain"
	"github.com/tbourn/go-chat-realtime/internal/repo"
	"github.com/tbourn/go-chat-realtime/internal/storage"
)

// MessageBridge receives committed messages. realtime.Bridge implements it.
type MessageBridge interface {
	OnMessageCreated(ctx context.Context, msg *domain.Message) error
}

// MessageService coordinates message persistence and live delivery.
type MessageService struct {
	DB     *gorm.DB
	Images storage.Images
	// Bridge is optional; without it messages are stored but not broadcast.
	Bridge MessageBridge

	// MaxContentRunes caps message text (0 disables the check).
	MaxContentRunes int
	// IdempotencyTTL is how long an Idempotency-Key is remembered (default 24h).
	IdempotencyTTL time.Duration
}

// SendInput is a message create request.
type SendInput struct {
	UserID         string
	RoomID         string
	Content        string
	Image          string
	IdempotencyKey string
}

// Send stores a message from in.UserID in in.RoomID and broadcasts it. The
// boolean result reports an idempotent replay of an earlier send.
func (s *MessageService) Send(ctx context.Context, in SendInput) (*domain.Message, bool, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("room.id", in.RoomID),
			attribute.String("user.id", in.UserID),
		),
	)
	defer span.End()

	if err := s.requireMember(ctx, in.RoomID, in.UserID); err != nil {
		return nil, false, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if prev, err := s.replay(ctx, in.UserID, in.RoomID, key); err == nil {
			span.SetAttributes(attribute.Bool("idempotency.replayed", true))
			return prev, true, nil
		}
	}

	content := strings.TrimSpace(in.Content)
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, false, ErrTooLong
	}
	if content == "" && strings.TrimSpace(in.Image) == "" {
		return nil, false, ErrEmptyMessage
	}
	image, err := s.Images.Resolve(ctx, "messages", in.Image)
	if err != nil {
		return nil, false, err
	}

	var created *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.CreateMessage(ctx, tx, in.RoomID, in.UserID, content, image)
		if err != nil {
			return err
		}
		if key != "" {
			if _, err := repo.CreateIdempotency(ctx, tx, in.UserID, in.RoomID, key, m.ID, http.StatusCreated, s.ttl()); err != nil {
				return err
			}
		}
		created = m
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) && key != "" {
		// A concurrent retry with the same key committed first.
		if prev, rerr := s.replay(ctx, in.UserID, in.RoomID, key); rerr == nil {
			return prev, true, nil
		}
	}
	if err != nil {
		return nil, false, err
	}

	// Reload with the sender so live clients can render it directly.
	if full, err := repo.GetMessage(ctx, s.DB, created.ID); err == nil {
		created = full
	}
	span.SetAttributes(attribute.String("message.id", created.ID))

	if s.Bridge != nil {
		if err := s.Bridge.OnMessageCreated(ctx, created); err != nil {
			log.Warn().Err(err).
				Str("room_id", created.RoomID).
				Str("message_id", created.ID).
				Msg("message stored but live update incomplete")
		}
	}
	return created, false, nil
}

// ListPage returns a page of a room's messages, oldest first, for a member.
func (s *MessageService) ListPage(ctx context.Context, userID, roomID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	if err := s.requireMember(ctx, roomID, userID); err != nil {
		return nil, 0, err
	}

	total, err := repo.CountMessages(ctx, s.DB, roomID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, roomID, offset, pageSize)
	return items, total, err
}

// GetMessage returns a committed message with its sender.
func (s *MessageService) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	return repo.GetMessage(ctx, s.DB, id)
}

// requireMember distinguishes a missing room from a room the user is not in.
func (s *MessageService) requireMember(ctx context.Context, roomID, userID string) error {
	ok, err := repo.IsMember(ctx, s.DB, roomID, userID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := repo.GetRoom(ctx, s.DB, roomID); errors.Is(err, repo.ErrNotFound) {
		return ErrRoomNotFound
	}
	return ErrNotMember
}

func (s *MessageService) replay(ctx context.Context, userID, roomID, key string) (*domain.Message, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, roomID, key, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return repo.GetMessage(ctx, s.DB, rec.MessageID)
}

func (s *MessageService) ttl() time.Duration {
	if s.IdempotencyTTL > 0 {
		return s.IdempotencyTTL
	}
	return 24 * time.Hour
}

// Package handlers exposes the REST API and the websocket endpoint.
//
// Handlers are transport-thin: they bind and validate input, call the
// application services through the interfaces below, and translate results
// into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-realtime/internal/domain"
	"github.com/tbourn/go-chat-realtime/internal/http/middleware"
	"github.com/tbourn/go-chat-realtime/internal/services"
)

//
// Service contracts (context-aware)
//

// UserService covers registration, login and profiles.
type UserService interface {
	Register(ctx context.Context, name, email, password, pic string) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Me(ctx context.Context, id string) (*domain.User, error)
	Search(ctx context.Context, requesterID, term string) ([]domain.User, error)
	Update(ctx context.Context, id string, in services.UserUpdate) (*domain.User, error)
}

// RoomService covers direct and group rooms.
type RoomService interface {
	AccessDirect(ctx context.Context, userID, otherID string) (*domain.Room, error)
	List(ctx context.Context, userID string) ([]domain.Room, error)
	Get(ctx context.Context, userID, roomID string) (*domain.Room, error)
	CreateGroup(ctx context.Context, adminID, name string, userIDs []string, pic string) (*domain.Room, error)
	Rename(ctx context.Context, userID, roomID, name string) (*domain.Room, error)
	AddMember(ctx context.Context, userID, roomID, memberID string) (*domain.Room, error)
	RemoveMember(ctx context.Context, userID, roomID, memberID string) (*domain.Room, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
}

// MessageService covers the durable message write and read paths.
type MessageService interface {
	Send(ctx context.Context, in services.SendInput) (*domain.Message, bool, error)
	ListPage(ctx context.Context, userID, roomID string, page, pageSize int) ([]domain.Message, int64, error)
}

// TaskService covers the personal task list.
type TaskService interface {
	Create(ctx context.Context, userID, title, category string) (*domain.Task, error)
	List(ctx context.Context, userID, category string) ([]domain.Task, error)
	Update(ctx context.Context, userID, id string, p services.TaskPatch) (*domain.Task, error)
	Delete(ctx context.Context, userID, id string) error
}

// StatsSource feeds weak ETags: a row count and the newest update time.
type StatsSource interface {
	RoomsStats(ctx context.Context, userID string) (int64, *time.Time, error)
	MessagesStats(ctx context.Context, roomID string) (int64, *time.Time, error)
}

//
// Handler wiring
//

// Handlers groups the REST endpoints.
type Handlers struct {
	users UserService
	rooms RoomService
	msgs  MessageService
	tasks TaskService
	stats StatsSource
}

// Deps lists the services Handlers depends on. Stats may be nil, which
// disables ETags.
type Deps struct {
	Users    UserService
	Rooms    RoomService
	Messages MessageService
	Tasks    TaskService
	Stats    StatsSource
}

// New constructs Handlers bound to the given services.
func New(d Deps) *Handlers {
	return &Handlers{users: d.Users, rooms: d.Rooms, msgs: d.Messages, tasks: d.Tasks, stats: d.Stats}
}

// userID returns the authenticated user id set by middleware.Auth.
func userID(c *gin.Context) string { return middleware.UserID(c) }

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// weakETag formats a weak validator from stats and reports whether the
// client already holds it. A stats error disables the ETag.
func weakETag(c *gin.Context, kind, scope string, count int64, maxTS *time.Time, err error) (notModified bool) {
	if err != nil {
		return false
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%s:%d:%d"`, kind, scope, count, ts)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-realtime/internal/domain"
	"github.com/tbourn/go-chat-realtime/internal/http/middleware"
	"github.com/tbourn/go-chat-realtime/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

// ---- fakes ----

type fakeUsers struct {
	register func(name, email, pw, pic string) (*services.AuthResult, error)
	login    func(email, pw string) (*services.AuthResult, error)
	me       func(id string) (*domain.User, error)
	search   func(requester, term string) ([]domain.User, error)
	update   func(id string, in services.UserUpdate) (*domain.User, error)
}

func (f *fakeUsers) Register(_ context.Context, name, email, pw, pic string) (*services.AuthResult, error) {
	return f.register(name, email, pw, pic)
}
func (f *fakeUsers) Login(_ context.Context, email, pw string) (*services.AuthResult, error) {
	return f.login(email, pw)
}
func (f *fakeUsers) Me(_ context.Context, id string) (*domain.User, error) { return f.me(id) }
func (f *fakeUsers) Search(_ context.Context, requester, term string) ([]domain.User, error) {
	return f.search(requester, term)
}
func (f *fakeUsers) Update(_ context.Context, id string, in services.UserUpdate) (*domain.User, error) {
	return f.update(id, in)
}

type fakeRooms struct {
	rooms    []domain.Room
	listErr  error
	member   bool
	getErr   error
	lastCall string
}

func (f *fakeRooms) AccessDirect(_ context.Context, userID, otherID string) (*domain.Room, error) {
	f.lastCall = "access:" + userID + ":" + otherID
	if otherID == userID {
		return nil, services.ErrSelfChat
	}
	return &domain.Room{ID: "r-direct"}, nil
}
func (f *fakeRooms) List(_ context.Context, userID string) ([]domain.Room, error) {
	f.lastCall = "list:" + userID
	return f.rooms, f.listErr
}
func (f *fakeRooms) Get(_ context.Context, userID, roomID string) (*domain.Room, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &domain.Room{ID: roomID}, nil
}
func (f *fakeRooms) CreateGroup(_ context.Context, adminID, name string, userIDs []string, pic string) (*domain.Room, error) {
	if len(userIDs) < 2 {
		return nil, services.ErrGroupTooSmall
	}
	return &domain.Room{ID: "r-group", Name: name, IsGroup: true, AdminID: &adminID}, nil
}
func (f *fakeRooms) Rename(_ context.Context, userID, roomID, name string) (*domain.Room, error) {
	return nil, services.ErrNotAdmin
}
func (f *fakeRooms) AddMember(_ context.Context, userID, roomID, memberID string) (*domain.Room, error) {
	return nil, services.ErrAlreadyMember
}
func (f *fakeRooms) RemoveMember(_ context.Context, userID, roomID, memberID string) (*domain.Room, error) {
	f.lastCall = "remove:" + roomID + ":" + memberID
	return &domain.Room{ID: roomID}, nil
}
func (f *fakeRooms) IsMember(_ context.Context, roomID, userID string) (bool, error) {
	return f.member, nil
}

type fakeMsgs struct {
	lastSend services.SendInput
	sendFn   func(in services.SendInput) (*domain.Message, bool, error)
	page     []domain.Message
	total    int64
	listErr  error
	gotPage  [2]int
}

func (f *fakeMsgs) Send(_ context.Context, in services.SendInput) (*domain.Message, bool, error) {
	f.lastSend = in
	return f.sendFn(in)
}
func (f *fakeMsgs) ListPage(_ context.Context, userID, roomID string, page, size int) ([]domain.Message, int64, error) {
	f.gotPage = [2]int{page, size}
	return f.page, f.total, f.listErr
}

type fakeTasks struct {
	tasks []domain.Task
	patch services.TaskPatch
}

func (f *fakeTasks) Create(_ context.Context, userID, title, category string) (*domain.Task, error) {
	if title == "" {
		return nil, services.ErrEmptyTitle
	}
	return &domain.Task{ID: "t1", UserID: userID, Title: title, Category: category}, nil
}
func (f *fakeTasks) List(_ context.Context, userID, category string) ([]domain.Task, error) {
	return f.tasks, nil
}
func (f *fakeTasks) Update(_ context.Context, userID, id string, p services.TaskPatch) (*domain.Task, error) {
	f.patch = p
	if id != "t1" {
		return nil, services.ErrTaskNotFound
	}
	return &domain.Task{ID: id, UserID: userID}, nil
}
func (f *fakeTasks) Delete(_ context.Context, userID, id string) error {
	if id != "t1" {
		return services.ErrTaskNotFound
	}
	return nil
}

type fakeStats struct {
	count int64
	ts    *time.Time
	err   error
	calls int
}

func (f *fakeStats) RoomsStats(context.Context, string) (int64, *time.Time, error) {
	f.calls++
	return f.count, f.ts, f.err
}
func (f *fakeStats) MessagesStats(context.Context, string) (int64, *time.Time, error) {
	f.calls++
	return f.count, f.ts, f.err
}

// ---- HTTP helpers ----

// asUser marks every request as authenticated by uid.
func asUser(uid string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid != "" {
			c.Set(middleware.CtxUserID, uid)
		}
		c.Next()
	}
}

func newEngine(uid string) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), asUser(uid))
	return r
}

func doJSON(r http.Handler, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return e
}

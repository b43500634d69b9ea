package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chat-realtime/internal/domain"
	"github.com/tbourn/go-chat-realtime/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedUsers(t *testing.T, db *gorm.DB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		u := &domain.User{ID: id, Name: "User " + id, Email: id + "@example.com", PasswordHash: "x"}
		if err := repo.CreateUser(context.Background(), db, u); err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}
}

// repoShim adapts the repo free functions to RoomRepo.
type repoShim struct{}

func (repoShim) CreateDirectRoom(ctx context.Context, db *gorm.DB, a, b string) (*domain.Room, error) {
	return repo.CreateDirectRoom(ctx, db, a, b)
}
func (repoShim) FindDirectRoom(ctx context.Context, db *gorm.DB, a, b string) (*domain.Room, error) {
	return repo.FindDirectRoom(ctx, db, a, b)
}
func (repoShim) CreateGroupRoom(ctx context.Context, db *gorm.DB, name, adminID string, memberIDs []string, pic string) (*domain.Room, error) {
	return repo.CreateGroupRoom(ctx, db, name, adminID, memberIDs, pic)
}
func (repoShim) GetRoom(ctx context.Context, db *gorm.DB, id string) (*domain.Room, error) {
	return repo.GetRoom(ctx, db, id)
}
func (repoShim) ListRoomsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Room, error) {
	return repo.ListRoomsForUser(ctx, db, userID)
}
func (repoShim) IsMember(ctx context.Context, db *gorm.DB, roomID, userID string) (bool, error) {
	return repo.IsMember(ctx, db, roomID, userID)
}
func (repoShim) AddMember(ctx context.Context, db *gorm.DB, roomID, userID string) error {
	return repo.AddMember(ctx, db, roomID, userID)
}
func (repoShim) RemoveMember(ctx context.Context, db *gorm.DB, roomID, userID string) error {
	return repo.RemoveMember(ctx, db, roomID, userID)
}
func (repoShim) RenameGroupRoom(ctx context.Context, db *gorm.DB, roomID, name string) error {
	return repo.RenameGroupRoom(ctx, db, roomID, name)
}
func (repoShim) SetLatestMessage(ctx context.Context, db *gorm.DB, roomID, messageID string) error {
	return repo.SetLatestMessage(ctx, db, roomID, messageID)
}
func (repoShim) CountUsers(ctx context.Context, db *gorm.DB, ids []string) (int64, error) {
	return repo.CountUsers(ctx, db, ids)
}

// racingRepo simulates losing the direct-room race: the first Find misses,
// Create reports a duplicate, and the second Find sees the winner's room.
type racingRepo struct {
	repoShim
	finds int
}

func (r *racingRepo) FindDirectRoom(ctx context.Context, db *gorm.DB, a, b string) (*domain.Room, error) {
	r.finds++
	if r.finds == 1 {
		return nil, repo.ErrNotFound
	}
	return repo.FindDirectRoom(ctx, db, a, b)
}

func (r *racingRepo) CreateDirectRoom(ctx context.Context, db *gorm.DB, a, b string) (*domain.Room, error) {
	if _, err := repo.CreateDirectRoom(ctx, db, a, b); err != nil {
		return nil, err
	}
	return nil, repo.ErrDuplicate
}

// fakeBridge records messages handed to the live path.
type fakeBridge struct {
	mu   sync.Mutex
	msgs []*domain.Message
	err  error
}

func (f *fakeBridge) OnMessageCreated(ctx context.Context, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.err
}

// fakeLive records evictions.
type fakeLive struct {
	calls [][2]string
}

func (f *fakeLive) RemoveUserFromRoom(roomID, userID string) int {
	f.calls = append(f.calls, [2]string{roomID, userID})
	return 1
}

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/devanshD77/whatsapp-messenger-backend/internal/config"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/db"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/events"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/models"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/storage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// in-memory sqlite is per-connection, keep a single one
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func testConfig() config.Config {
	return config.Config{
		Port:                  "0",
		DatabaseDSN:           "test",
		JWTSecret:             "test-secret",
		Env:                   "dev",
		AccessTokenTTLMinutes: 15,
		MaxUploadBytes:        10 * 1024 * 1024,
		EditWindow:            15 * time.Minute,
		StorageTimeout:        time.Second,
		PublishTimeout:        time.Second,
	}
}

// recorderPublisher 记录发布的事件，供断言使用。
type recorderPublisher struct {
	mu            sync.Mutex
	messages      []events.MessageEvent
	users         []events.UserEvent
	notifications []events.NotificationEvent
}

func (p *recorderPublisher) PublishMessageEvent(_ context.Context, ev events.MessageEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, ev)
}

func (p *recorderPublisher) PublishUserEvent(_ context.Context, ev events.UserEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = append(p.users, ev)
}

func (p *recorderPublisher) PublishNotificationEvent(_ context.Context, ev events.NotificationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, ev)
}

func (p *recorderPublisher) Close() error { return nil }

// failingStore 模拟 Blob 存储不可用。
type failingStore struct{}

func (failingStore) Save(context.Context, []byte, string, string) (string, error) {
	return "", context.DeadlineExceeded
}

func (failingStore) Remove(context.Context, string) error {
	return context.DeadlineExceeded
}

func testStore(t *testing.T) storage.BlobStore {
	t.Helper()
	dir := t.TempDir()
	return storage.NewDiskStore(dir+"/pictures", dir+"/videos")
}

func seedUser(t *testing.T, gdb *gorm.DB, username string) *models.User {
	t.Helper()
	user := models.User{
		Username:     username,
		PasswordHash: "x",
		Email:        username + "@example.com",
		Status:       models.StatusOnline,
	}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return &user
}

// fixture 组装一套指向同一内存库的服务。
type fixture struct {
	db        *gorm.DB
	pub       *recorderPublisher
	store     storage.BlobStore
	users     *UserService
	rooms     *ChatroomService
	msgs      *MessageService
	reactions *ReactionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := testDB(t)
	cfg := testConfig()
	pub := &recorderPublisher{}
	store := testStore(t)
	return &fixture{
		db:        gdb,
		pub:       pub,
		store:     store,
		users:     NewUserService(gdb, cfg, store, pub),
		rooms:     NewChatroomService(gdb, cfg, store),
		msgs:      NewMessageService(gdb, cfg, store, pub),
		reactions: NewReactionService(gdb, pub),
	}
}

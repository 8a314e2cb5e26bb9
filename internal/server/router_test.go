package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devanshD77/whatsapp-messenger-backend/internal/config"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/db"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/events"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/service"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/storage"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := gdb.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Config{
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
	dir := t.TempDir()
	store := storage.NewDiskStore(dir+"/pictures", dir+"/videos")
	pub := events.NewLogPublisher()

	h := NewHandler(
		service.NewUserService(gdb, cfg, store, pub),
		service.NewChatroomService(gdb, cfg, store),
		service.NewMessageService(gdb, cfg, store, pub),
		service.NewReactionService(gdb, pub),
	)
	return SetupRouter(cfg, gdb, h)
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %s: %v", w.Body.String(), err)
	}
}

func registerAndLogin(t *testing.T, r *gin.Engine, username string) (uint, string) {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": username,
		"password": "s3cret-pass",
		"email":    username + "@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register %s: status %d body %s", username, w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": username,
		"password": "s3cret-pass",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, w.Code, w.Body.String())
	}
	var res struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID uint `json:"id"`
		} `json:"user"`
	}
	decode(t, w, &res)
	if res.AccessToken == "" {
		t.Fatalf("login %s: empty token", username)
	}
	return res.User.ID, res.AccessToken
}

func TestHealthz(t *testing.T) {
	r := testRouter(t)
	w := doJSON(t, r, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	r := testRouter(t)
	w := doJSON(t, r, http.MethodGet, "/api/v1/users/me", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", w.Code)
	}
}

func TestChatFlow(t *testing.T) {
	r := testRouter(t)
	aliceID, aliceToken := registerAndLogin(t, r, "alice")
	bobID, bobToken := registerAndLogin(t, r, "bob")

	// alice opens a chatroom with bob
	w := doJSON(t, r, http.MethodPost, "/api/v1/chatrooms", aliceToken, gin.H{"peer_id": bobID})
	if w.Code != http.StatusOK {
		t.Fatalf("create chatroom: status %d body %s", w.Code, w.Body.String())
	}
	var room struct {
		ID uint `json:"id"`
	}
	decode(t, w, &room)

	// bob opening the reversed pair lands in the same chatroom
	w = doJSON(t, r, http.MethodPost, "/api/v1/chatrooms", bobToken, gin.H{"peer_id": aliceID})
	var sameRoom struct {
		ID uint `json:"id"`
	}
	decode(t, w, &sameRoom)
	if sameRoom.ID != room.ID {
		t.Fatalf("reversed pair got chatroom %d, want %d", sameRoom.ID, room.ID)
	}

	// alice sends, bob reads
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/chatrooms/%d/messages", room.ID), aliceToken, gin.H{"content": "hello bob"})
	if w.Code != http.StatusOK {
		t.Fatalf("send message: status %d body %s", w.Code, w.Body.String())
	}
	var msg struct {
		ID      uint   `json:"id"`
		Content string `json:"content"`
	}
	decode(t, w, &msg)

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/chatrooms/%d/messages", room.ID), bobToken, nil)
	var list struct {
		Messages []struct {
			Content        string `json:"content"`
			SenderUsername string `json:"sender_username"`
		} `json:"messages"`
	}
	decode(t, w, &list)
	if len(list.Messages) != 1 || list.Messages[0].Content != "hello bob" || list.Messages[0].SenderUsername != "alice" {
		t.Fatalf("message list = %+v", list.Messages)
	}

	// bob reacts, then checks his own reaction
	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/v1/messages/%d/reactions", msg.ID), bobToken, gin.H{"type": "LOVE"})
	if w.Code != http.StatusOK {
		t.Fatalf("upsert reaction: status %d body %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/messages/%d/reactions/me", msg.ID), bobToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get my reaction: status %d body %s", w.Code, w.Body.String())
	}
	var reaction struct {
		ReactionType string `json:"reaction_type"`
		Emoji        string `json:"emoji"`
	}
	decode(t, w, &reaction)
	if reaction.ReactionType != "LOVE" || reaction.Emoji == "" {
		t.Fatalf("reaction = %+v", reaction)
	}

	// bob cannot edit alice's message
	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/v1/messages/%d", msg.ID), bobToken, gin.H{"content": "hijacked"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("edit by non-sender: status %d, want 403", w.Code)
	}

	// alice edits within the window
	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/v1/messages/%d", msg.ID), aliceToken, gin.H{"content": "hello again"})
	if w.Code != http.StatusOK {
		t.Fatalf("edit: status %d body %s", w.Code, w.Body.String())
	}

	// alice deletes the message
	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/v1/messages/%d", msg.ID), aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete message: status %d body %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/messages/%d", msg.ID), aliceToken, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("deleted message status = %d, want 404", w.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	r := testRouter(t)
	aliceID, aliceToken := registerAndLogin(t, r, "alice")

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"self chatroom", http.MethodPost, "/api/v1/chatrooms", gin.H{"peer_id": aliceID}, http.StatusBadRequest, "invalid_argument"},
		{"unknown peer", http.MethodPost, "/api/v1/chatrooms", gin.H{"peer_id": 999}, http.StatusNotFound, "not_found"},
		{"missing chatroom", http.MethodGet, "/api/v1/chatrooms/999", nil, http.StatusNotFound, "not_found"},
		{"bad path id", http.MethodGet, "/api/v1/chatrooms/abc", nil, http.StatusBadRequest, "invalid_argument"},
		{"missing message", http.MethodGet, "/api/v1/messages/999", nil, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, tt.method, tt.path, aliceToken, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			var resp struct {
				Code string `json:"code"`
			}
			decode(t, w, &resp)
			if resp.Code != tt.wantCode {
				t.Fatalf("code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}

	// duplicate registration maps to 409
	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice", "password": "p", "email": "other@example.com",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want 409", w.Code)
	}

	// bad login maps to 401
	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "alice", "password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", w.Code)
	}
}

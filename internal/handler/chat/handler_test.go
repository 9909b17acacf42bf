package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chat-gateway/backend/internal/middleware"
	"github.com/zhouzirui/chat-gateway/backend/internal/model/chat"
	"github.com/zhouzirui/chat-gateway/backend/internal/model/user"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/auth"
	chatservice "github.com/zhouzirui/chat-gateway/backend/internal/service/chat"
)

type staticResolver map[string]*user.User

func (s staticResolver) Resolve(_ context.Context, token string) (*user.User, error) {
	if u, ok := s[token]; ok {
		return u, nil
	}
	return nil, auth.ErrTokenInvalid
}

func setupRouter() (*chi.Mux, *chatservice.Service) {
	store := chatservice.NewService()
	handler := New(store)
	resolver := staticResolver{
		"alice-token": {ID: "alice", Username: "alice", IsActive: true},
		"bob-token":   {ID: "bob", Username: "bob", IsActive: true},
	}

	r := chi.NewRouter()
	r.Group(func(api chi.Router) {
		api.Use(middleware.RequireUser(resolver))
		handler.RegisterRoutes(api)
	})
	return r, store
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "JWT "+token)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func seedConversation(t *testing.T, store *chatservice.Service, userID, title string, contents ...string) chat.Conversation {
	t.Helper()
	ctx := context.Background()
	conv, err := store.CreateConversation(ctx, userID, title)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	for _, content := range contents {
		if _, err := store.AppendMessage(ctx, conv.ID, userID, chat.KindUser, content); err != nil {
			t.Fatalf("append message: %v", err)
		}
	}
	return conv
}

func TestMeRequiresToken(t *testing.T) {
	r, _ := setupRouter()

	if resp := get(r, "/me", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	resp := get(r, "/me", "alice-token")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var me user.User
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me.Username != "alice" {
		t.Fatalf("expected alice, got %q", me.Username)
	}
}

func TestListConversationsNewestFirst(t *testing.T) {
	r, store := setupRouter()
	seedConversation(t, store, "alice", "first")
	seedConversation(t, store, "alice", "second")
	seedConversation(t, store, "bob", "bob's")

	resp := get(r, "/conversations", "alice-token")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Conversations []chat.Conversation `json:"conversations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Conversations) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(body.Conversations))
	}
	if body.Conversations[0].Title != "second" || !body.Conversations[0].IsActive {
		t.Fatalf("expected active 'second' first, got %+v", body.Conversations[0])
	}
	if body.Conversations[1].IsActive {
		t.Fatalf("expected older conversation to be inactive")
	}
}

func TestListMessagesOwnConversation(t *testing.T) {
	r, store := setupRouter()
	conv := seedConversation(t, store, "alice", "hello", "one", "two")

	resp := get(r, "/conversations/"+conv.ID+"/messages", "alice-token")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Messages) != 2 || body.Messages[0].Content != "one" || body.Messages[1].Content != "two" {
		t.Fatalf("unexpected messages: %+v", body.Messages)
	}
}

func TestListMessagesHidesOtherUsersConversations(t *testing.T) {
	r, store := setupRouter()
	conv := seedConversation(t, store, "alice", "private", "secret")

	if resp := get(r, "/conversations/"+conv.ID+"/messages", "bob-token"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign conversation, got %d", resp.Code)
	}
	if resp := get(r, "/conversations/missing/messages", "alice-token"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing conversation, got %d", resp.Code)
	}
}

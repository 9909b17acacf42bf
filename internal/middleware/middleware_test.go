package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/chat-gateway/backend/internal/model/user"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/auth"
)

type resolverFunc func(ctx context.Context, token string) (*user.User, error)

func (f resolverFunc) Resolve(ctx context.Context, token string) (*user.User, error) {
	return f(ctx, token)
}

func protected(resolver Resolver) http.Handler {
	return RequireUser(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFrom(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write([]byte(u.ID))
	}))
}

func TestRequireUser(t *testing.T) {
	resolver := resolverFunc(func(_ context.Context, token string) (*user.User, error) {
		switch token {
		case "good":
			return &user.User{ID: "alice", IsActive: true}, nil
		case "old":
			return nil, auth.ErrTokenExpired
		case "broken-db":
			return nil, errors.New("connection refused")
		default:
			return nil, auth.ErrTokenInvalid
		}
	})
	handler := protected(resolver)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "jwt scheme", header: "JWT good", status: http.StatusOK, body: "alice"},
		{name: "bearer scheme", header: "Bearer good", status: http.StatusOK, body: "alice"},
		{name: "missing", header: "", status: http.StatusUnauthorized, body: `"Not authenticated"`},
		{name: "expired", header: "JWT old", status: http.StatusUnauthorized, body: "TOKEN_EXPIRED"},
		{name: "invalid", header: "JWT nope", status: http.StatusUnauthorized, body: "TOKEN_ERROR"},
		{name: "directory failure", header: "JWT broken-db", status: http.StatusInternalServerError, body: "Internal server error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.body)
		})
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORS([]string{"https://app.example"})(next)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/conversations", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

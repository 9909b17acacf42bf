package middleware

import (
	"context"
	"log"
	"net/http"

	"github.com/zhouzirui/chat-gateway/backend/internal/model/user"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/auth"
	"github.com/zhouzirui/chat-gateway/backend/pkg/utils"
)

type userKey struct{}

// Resolver maps a credential token to a user.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*user.User, error)
}

// RequireUser rejects requests without a valid "JWT <token>" or
// "Bearer <token>" Authorization header and stores the user in the context.
func RequireUser(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.FromAuthorizationHeader(r.Header.Get("Authorization"))
			if !ok {
				utils.RespondErrorCode(w, http.StatusUnauthorized, "Not authenticated", "")
				return
			}

			u, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				if auth.IsAuthFailure(err) {
					utils.RespondErrorCode(w, http.StatusUnauthorized, auth.Reason(err), auth.Code(err))
					return
				}
				log.Printf("[auth] resolve failed path=%s: %v", r.URL.Path, err)
				utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the user stored by RequireUser.
func UserFrom(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(userKey{}).(*user.User)
	return u, ok && u != nil
}

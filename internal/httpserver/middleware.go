package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/service"
)

type contextKey string

const userIDKey contextKey = "userID"

// WithUserID returns a context carrying the authenticated caller's id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID extracts the authenticated caller's id from the request, or "".
func UserID(r *http.Request) string {
	if v, ok := r.Context().Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// RequireAuth validates the bearer token, upserts the user row first-seen,
// and attaches the caller's id to the request context.
func RequireAuth(verifier security.Verifier, users *service.UserService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, r, domain.E(domain.CodeAuthMissing, "missing Authorization header"))
				return
			}
			if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
				writeError(w, r, domain.E(domain.CodeAuthMalformed, "Authorization header is not a bearer token"))
				return
			}
			token := strings.TrimSpace(header[len("Bearer "):])

			userID, err := verifier.Verify(token)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if err := users.EnsureUser(r.Context(), userID); err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

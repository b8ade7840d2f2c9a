package api

import (
	"context"
	"net/http"

	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"
)

type contextKey string

const userIDKey contextKey = "acting_user_id"

// UserFromContext returns the acting user injected by ActingUser.
func UserFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// WithUser returns a context carrying the acting user. Exposed for tests and
// non-HTTP callers.
func WithUser(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// ActingUser resolves the acting user for a request and rejects requests that
// carry none. A verified JWT "sub" claim wins; the X-User-ID header is the
// fallback for deployments that terminate auth upstream.
func ActingUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := userFromToken(r.Context()); ok {
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), id)))
			return
		}

		if id, err := uuid.Parse(r.Header.Get("X-User-ID")); err == nil {
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), id)))
			return
		}

		http.Error(w, "missing or invalid user identity", http.StatusUnauthorized)
	})
}

func userFromToken(ctx context.Context) (uuid.UUID, bool) {
	_, claims, err := jwtauth.FromContext(ctx)
	if err != nil {
		return uuid.Nil, false
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey struct{}

// FromContext returns the verified user attached by [Middleware], if any.
func FromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(contextKey{}).(*User)
	return u, ok
}

// WithUser returns a context carrying the given user. Intended for tests and
// internal callers that bypass the HTTP middleware.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// Middleware returns HTTP middleware that requires a valid bearer token on
// every request. The verified [User] is attached to the request context for
// handlers to read via [FromContext].
//
// Requests without a token or with a rejected token get 401. If the identity
// service itself is unreachable the request gets 503, so clients can
// distinguish "log in again" from "try again later".
func Middleware(v *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			user, err := v.Verify(r.Context(), token)
			switch {
			case errors.Is(err, ErrUnauthorized):
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			case err != nil:
				logger.Error("token verification failed", "error", err)
				http.Error(w, "authentication unavailable", http.StatusServiceUnavailable)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// bearerToken extracts the token from the Authorization header, falling back
// to the access_token query parameter for WebSocket clients that cannot set
// headers.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return r.URL.Query().Get("access_token")
}

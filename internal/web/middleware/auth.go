package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/grc/internal/config"
)

type subjectKey struct{}

// WithSubject returns ctx carrying the role requests are checked against.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// Subject returns the role set by APIKeyAuth, or "" if none.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

// APIKeyAuth returns middleware that maps the X-API-Key header to a role.
// Requests without a key get cfg.DefaultRole unless RequireAPIKey is set.
// Unknown keys are always rejected.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				if cfg.RequireAPIKey {
					slog.Warn("auth: missing API key",
						"path", r.URL.Path,
						"method", r.Method,
						"remote_addr", r.RemoteAddr,
					)
					http.Error(w, `{"error":"missing API key","code":"AUTH_MISSING_KEY"}`, http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), cfg.DefaultRole)))
				return
			}

			role, ok := roleForKey(apiKey, cfg.APIKeys)
			if !ok {
				slog.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				http.Error(w, `{"error":"invalid API key","code":"AUTH_INVALID_KEY"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), role)))
		})
	}
}

// roleForKey looks key up with constant-time comparisons against every
// configured key, so timing does not reveal which key matched.
func roleForKey(key string, keys map[string]string) (string, bool) {
	var role string
	found := 0
	for k, r := range keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(k)) == 1 {
			role = r
			found = 1
		}
	}
	return role, found == 1
}

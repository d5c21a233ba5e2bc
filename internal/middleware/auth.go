package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/relink/relink/internal/auth"
	"github.com/relink/relink/internal/model"
)

// KeySource looks up candidate API keys by visible prefix.
type KeySource interface {
	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger *slog.Logger
	Keys   KeySource
}

// Auth returns a middleware that authenticates management API requests.
// The key is looked up by its visible prefix and verified against the
// stored Argon2id hash. All failures return the same 401 body so key
// existence cannot be probed.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				logAuthFailure(cfg.Logger, r, "missing_key")
				writeAuthError(w)
				return
			}

			parsed, err := auth.ParseKey(key)
			if err != nil {
				logAuthFailure(cfg.Logger, r, "invalid_format")
				writeAuthError(w)
				return
			}

			candidates, err := cfg.Keys.GetAPIKeysByPrefix(r.Context(), parsed.Prefix)
			if err != nil {
				cfg.Logger.Error("key lookup failed during auth",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			// Verify against each candidate to handle prefix collisions.
			var matched *model.APIKey
			for _, candidate := range candidates {
				ok, err := auth.VerifyKey(key, candidate.KeyHash)
				if err != nil {
					continue
				}
				if ok {
					matched = candidate
					break
				}
			}

			if matched == nil {
				logAuthFailure(cfg.Logger, r, "invalid_key")
				writeAuthError(w)
				return
			}

			authCtx := &model.AuthContext{
				KeyID:   matched.ID,
				OwnerID: matched.OwnerID,
				Role:    matched.Role,
			}

			ctx := auth.ContextWithAuth(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects requests whose key does not carry the admin
// role. Must run after Auth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := auth.FromContext(r.Context())
		if authCtx == nil || !authCtx.IsAdmin() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":"FORBIDDEN","message":"Admin role required"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

// extractAPIKey reads the key from "Authorization: Bearer <key>" or the
// X-API-Key header.
func extractAPIKey(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if strings.HasPrefix(header, "Bearer ") {
			return strings.TrimPrefix(header, "Bearer ")
		}
	}
	return r.Header.Get("X-API-Key")
}

// writeAuthError writes a 401 with one shared message for all auth
// failures.
func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Invalid or missing API key"}}`))
}

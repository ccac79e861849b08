package api

import (
	"context"
	"errors"
	"net/http"

	"log/slog"

	"github.com/kolwatch/kolwatch/internal/auth"
	"github.com/kolwatch/kolwatch/internal/models"
)

type contextKey string

const apiUserIDKey contextKey = "apiUserID"

// APIKeyMiddleware authenticates external API requests via the X-API-Key
// header. Keys are looked up by their SHA-512 hash; the plaintext is never
// stored.
func APIKeyMiddleware(keys models.APIKeyRepository, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				http.Error(w, "API key required", http.StatusUnauthorized)
				return
			}

			record, err := keys.GetByHash(r.Context(), auth.HashAPIKey(key))
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					http.Error(w, "Invalid API key", http.StatusUnauthorized)
					return
				}
				logger.Error("api key lookup failed", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), apiUserIDKey, record.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIUserID extracts the authenticated API user from the request context.
func APIUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(apiUserIDKey).(string)
	return userID, ok
}

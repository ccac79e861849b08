// Package api wires the HTTP surface: notification ingest, the external
// subscription API behind API keys, and the JWT-protected admin routes.
package api

import (
	"database/sql"
	"net/http"

	"log/slog"

	"github.com/kolwatch/kolwatch/internal/auth"
	"github.com/kolwatch/kolwatch/internal/database"
	"github.com/kolwatch/kolwatch/internal/models"
)

// Repositories bundles the persistence dependencies of the HTTP layer.
type Repositories struct {
	Users         models.UserRepository
	APIKeys       models.APIKeyRepository
	KOLs          models.KOLRepository
	KOLTweets     models.KOLTweetRepository
	Subscriptions models.SubscriptionRepository
	Receipts      models.ReceiptRepository
}

// SetupRoutes configures all API routes.
func SetupRoutes(
	mux *http.ServeMux,
	db *sql.DB,
	processor NotificationProcessor,
	repos Repositories,
	authConfig auth.Config,
	ingestToken string,
	maxSubscriptionsPerUser int,
	logger *slog.Logger,
) {
	notificationHandler := NewNotificationHandler(processor, ingestToken, logger)
	subscriptionHandler := NewSubscriptionHandler(repos.Subscriptions, repos.KOLs, maxSubscriptionsPerUser, logger)
	receiptHandler := NewReceiptHandler(repos.Receipts, logger)
	authHandler := NewAuthHandler(authConfig, logger)
	adminHandler := NewAdminHandler(repos.Users, repos.APIKeys, repos.KOLs, repos.KOLTweets, logger)

	apiKeyMiddleware := APIKeyMiddleware(repos.APIKeys, logger)
	adminMiddleware := auth.Middleware(authConfig)

	// Notification ingest (shared-secret guarded)
	mux.HandleFunc("/api/v1/notifications", notificationHandler.Receive)
	mux.HandleFunc("/api/v1/demo-webhook", notificationHandler.DemoWebhook)

	// External subscription API (API key)
	mux.Handle("/api/v1/subscriptions", apiKeyMiddleware(http.HandlerFunc(subscriptionHandler.HandleCollection)))
	mux.Handle("/api/v1/subscriptions/", apiKeyMiddleware(http.HandlerFunc(subscriptionHandler.HandleItem)))
	mux.Handle("/api/v1/receipts", apiKeyMiddleware(http.HandlerFunc(receiptHandler.List)))

	// Admin surface (JWT)
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.Handle("/api/admin/users", adminMiddleware(http.HandlerFunc(adminHandler.CreateUser)))
	mux.Handle("/api/admin/kols", adminMiddleware(http.HandlerFunc(adminHandler.ListKOLs)))
	mux.Handle("/api/admin/kols/", adminMiddleware(http.HandlerFunc(adminHandler.KOLItem)))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.HealthCheck(r.Context(), db); err != nil {
			logger.Error("health check failed", "error", err)
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

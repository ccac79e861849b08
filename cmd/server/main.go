package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/joho/godotenv"

	"github.com/kolwatch/kolwatch/internal/api"
	"github.com/kolwatch/kolwatch/internal/auth"
	"github.com/kolwatch/kolwatch/internal/config"
	"github.com/kolwatch/kolwatch/internal/database"
	"github.com/kolwatch/kolwatch/internal/logging"
	"github.com/kolwatch/kolwatch/internal/metrics"
	"github.com/kolwatch/kolwatch/internal/notifications"
	"github.com/kolwatch/kolwatch/internal/pipeline"
	"github.com/kolwatch/kolwatch/internal/server"
	"github.com/kolwatch/kolwatch/internal/social"
	"github.com/kolwatch/kolwatch/internal/webhook"
)

func main() {
	// Local development convenience; absent .env files are fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting kolwatch")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbURL, err := database.BuildDatabaseURL()
	if err != nil {
		logger.Error("failed to build database URL", "error", err)
		os.Exit(1)
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = dbURL

	logger.Info("connecting to database")
	db, err := database.Connect(ctx, dbCfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	if err := database.RunMigrations(ctx, db, "./migrations", logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	userRepo := database.NewPostgresUserRepository(db)
	apiKeyRepo := database.NewPostgresAPIKeyRepository(db)
	kolRepo := database.NewPostgresKOLRepository(db)
	kolTweetRepo := database.NewPostgresKOLTweetRepository(db)
	subscriptionRepo := database.NewPostgresSubscriptionRepository(db)
	receiptRepo := database.NewPostgresReceiptRepository(db)

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	parser := notifications.NewParser(cfg.Pipeline.RequireNameMatch, logger)
	tweetsClient := social.NewTweetsClient(
		cfg.Pipeline.TweetsAPIKey,
		cfg.Pipeline.MaxTweetsPerUser,
		cfg.Pipeline.TweetRecencyWindow,
		logger,
	)
	batchFetcher := social.NewBatchFetcher(
		tweetsClient,
		cfg.Pipeline.FetchGroupSize,
		cfg.Pipeline.FetchPacingInterval,
		logger,
	)
	dispatcher := webhook.NewDispatcher(
		subscriptionRepo,
		cfg.Pipeline.WebhookTimeout,
		cfg.Pipeline.WebhookMaxInFlight,
		cfg.Pipeline.WebhookSigningSecret,
		logger,
	)
	receiptWriter := webhook.NewReceiptWriter(receiptRepo, logger)

	orchestrator := pipeline.NewOrchestrator(
		parser,
		kolRepo,
		batchFetcher,
		dispatcher,
		receiptWriter,
		collector,
		cfg.Pipeline.SuppressionWindow,
		logger,
	)

	authConfig := auth.LoadConfigFromEnv()

	mux := http.NewServeMux()
	api.SetupRoutes(mux, db, orchestrator, api.Repositories{
		Users:         userRepo,
		APIKeys:       apiKeyRepo,
		KOLs:          kolRepo,
		KOLTweets:     kolTweetRepo,
		Subscriptions: subscriptionRepo,
		Receipts:      receiptRepo,
	}, authConfig, cfg.Pipeline.IngestToken, cfg.Pipeline.MaxSubscriptionsPerUser, logger)
	mux.Handle("/metrics", collector.Handler())

	srv := server.New(cfg.Server, logger, collector.InstrumentHandler(mux))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

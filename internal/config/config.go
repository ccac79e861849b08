package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Pipeline PipelineConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// PipelineConfig holds the notification pipeline tunables.
type PipelineConfig struct {
	// SuppressionWindow is how long after a post observation repeated
	// notifications for the same KOL are treated as duplicate pushes.
	SuppressionWindow time.Duration

	// FetchGroupSize and FetchPacingInterval express the upstream posts API
	// rate limit: at most FetchGroupSize requests started per interval.
	FetchGroupSize      int
	FetchPacingInterval time.Duration

	// MaxTweetsPerUser bounds the posts requested per account.
	MaxTweetsPerUser int

	// TweetRecencyWindow drops fetched posts older than now minus the window.
	TweetRecencyWindow time.Duration

	// WebhookTimeout is the per-delivery HTTP deadline.
	WebhookTimeout time.Duration

	// WebhookMaxInFlight bounds concurrent webhook deliveries per batch.
	WebhookMaxInFlight int

	// WebhookSigningSecret, when set, adds an HMAC-SHA256 signature header to
	// every delivered webhook.
	WebhookSigningSecret string

	// RequireNameMatch restores the stricter parser behavior that only
	// accepts notification users whose display name appears in the message
	// text.
	RequireNameMatch bool

	// MaxSubscriptionsPerUser caps subscriptions per owner.
	MaxSubscriptionsPerUser int

	// IngestToken guards the inbound notification endpoint.
	IngestToken string

	// TweetsAPIKey authenticates against the upstream posts API.
	TweetsAPIKey string
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultSuppressionWindow       = 240 * time.Second
	defaultFetchGroupSize          = 5
	defaultFetchPacingInterval     = 1100 * time.Millisecond
	defaultMaxTweetsPerUser        = 5
	defaultTweetRecencyWindow      = 5 * time.Minute
	defaultWebhookTimeout          = 5 * time.Second
	defaultWebhookMaxInFlight      = 200
	defaultMaxSubscriptionsPerUser = 50
)

// Load reads configuration from environment variables, applying defaults for
// unset values. Values that are set but unparseable return an error.
func Load() (Config, error) {
	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Pipeline: PipelineConfig{
			SuppressionWindow:       defaultSuppressionWindow,
			FetchGroupSize:          defaultFetchGroupSize,
			FetchPacingInterval:     defaultFetchPacingInterval,
			MaxTweetsPerUser:        defaultMaxTweetsPerUser,
			TweetRecencyWindow:      defaultTweetRecencyWindow,
			WebhookTimeout:          defaultWebhookTimeout,
			WebhookMaxInFlight:      defaultWebhookMaxInFlight,
			WebhookSigningSecret:    os.Getenv("WEBHOOK_SIGNING_SECRET"),
			RequireNameMatch:        os.Getenv("PARSER_REQUIRE_NAME_MATCH") == "true",
			MaxSubscriptionsPerUser: defaultMaxSubscriptionsPerUser,
			IngestToken:             os.Getenv("NOTIFICATION_INGEST_TOKEN"),
			TweetsAPIKey:            os.Getenv("TWEETS_API_KEY"),
		},
	}

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if v := os.Getenv("SUPPRESSION_WINDOW_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SUPPRESSION_WINDOW_SECONDS: %w", err)
		}
		cfg.Pipeline.SuppressionWindow = d
	}

	if v := os.Getenv("FETCH_GROUP_SIZE"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FETCH_GROUP_SIZE: %w", err)
		}
		cfg.Pipeline.FetchGroupSize = n
	}

	if v := os.Getenv("FETCH_PACING_INTERVAL_MS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FETCH_PACING_INTERVAL_MS: %w", err)
		}
		cfg.Pipeline.FetchPacingInterval = time.Duration(n) * time.Millisecond
	}

	if v := os.Getenv("MAX_TWEETS_PER_USER"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid MAX_TWEETS_PER_USER: %w", err)
		}
		cfg.Pipeline.MaxTweetsPerUser = n
	}

	if v := os.Getenv("TWEET_RECENCY_WINDOW_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TWEET_RECENCY_WINDOW_SECONDS: %w", err)
		}
		cfg.Pipeline.TweetRecencyWindow = d
	}

	if v := os.Getenv("WEBHOOK_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid WEBHOOK_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Pipeline.WebhookTimeout = d
	}

	if v := os.Getenv("WEBHOOK_MAX_IN_FLIGHT"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid WEBHOOK_MAX_IN_FLIGHT: %w", err)
		}
		cfg.Pipeline.WebhookMaxInFlight = n
	}

	if v := os.Getenv("MAX_SUBSCRIPTIONS_PER_USER"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid MAX_SUBSCRIPTIONS_PER_USER: %w", err)
		}
		cfg.Pipeline.MaxSubscriptionsPerUser = n
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	return cfg, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}

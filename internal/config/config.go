// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/notifier and cmd/notifyctl.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wellnessapp/notification-service/internal/push"
	"github.com/wellnessapp/notification-service/internal/retry"
)

// --------------------------------------------------------------------------
// Enumerated settings
// --------------------------------------------------------------------------

const (
	PushProviderExpo = "expo"
	PushProviderFCM  = "fcm"

	LockModeAdvisory = "advisory"
	LockModeLease    = "lease"
	LockModeMemory   = "memory"

	DefaultExpoPushURL = "https://exp.host/--/api/v2/push/send"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration
	DBAutoMigrate  bool

	// Scheduler
	SchedulerEnabled  bool
	SchedulerInterval time.Duration
	StartupDelay      time.Duration
	InterUserDelay    time.Duration

	// Delivery
	MaxRetryAttempts int
	RetryBaseDelay   time.Duration
	PushProvider     string
	ExpoPushURL      string
	ExpoAccessToken  string
	PushRatePerSec   float64

	FCMCredentialsFile string

	// Job lock
	LockMode string
	LockKey  string
	LockTTL  time.Duration

	// Tips and log retention. Zero retention keeps the delivery log forever.
	TipRepeatWindow time.Duration
	LogRetention    time.Duration

	// Ops server
	OpsHost           string
	OpsPort           int
	CORSAllowOrigins  []string
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	ListenChannel string

	Environment string
	LogLevel    string
	LogFormat   string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("NOTIFICATION_DATABASE_URL", envOr("DATABASE_URL", ""))
	if dbURL == "" {
		return nil, fmt.Errorf("NOTIFICATION_DATABASE_URL or DATABASE_URL must be set")
	}

	cfg := &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,
		DBAutoMigrate:  envBool("DB_AUTO_MIGRATE", true),

		SchedulerEnabled:  envBool("SCHEDULER_ENABLED", true),
		SchedulerInterval: time.Duration(envInt("SCHEDULER_INTERVAL_MINUTES", 60)) * time.Minute,
		StartupDelay:      time.Duration(envInt("SCHEDULER_STARTUP_DELAY_SECONDS", 10)) * time.Second,
		InterUserDelay:    time.Duration(envInt("SCHEDULER_INTER_USER_DELAY_MS", 100)) * time.Millisecond,

		MaxRetryAttempts: envInt("MAX_RETRY_ATTEMPTS", 3),
		RetryBaseDelay:   time.Duration(envInt("RETRY_DELAY_SECONDS", 1)) * time.Second,
		PushProvider:     strings.ToLower(envOr("PUSH_PROVIDER", PushProviderExpo)),
		ExpoPushURL:      envOr("EXPO_PUSH_URL", DefaultExpoPushURL),
		ExpoAccessToken:  envOr("EXPO_ACCESS_TOKEN", ""),
		PushRatePerSec:   envFloat("PUSH_RATE_PER_SECOND", 10),

		FCMCredentialsFile: envOr("FIREBASE_CREDENTIALS_FILE", ""),

		LockMode: strings.ToLower(envOr("LOCK_MODE", LockModeAdvisory)),
		LockKey:  envOr("LOCK_KEY", "notification_job"),
		LockTTL:  time.Duration(envInt("LOCK_TTL_MINUTES", 30)) * time.Minute,

		TipRepeatWindow: time.Duration(envInt("TIP_REPEAT_WINDOW_DAYS", 7)) * 24 * time.Hour,
		LogRetention:    time.Duration(envInt("LOG_RETENTION_DAYS", 0)) * 24 * time.Hour,

		OpsHost: envOr("OPS_HOST", "0.0.0.0"),
		OpsPort: envInt("OPS_PORT", envInt("PORT", 8080)),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),
		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		ListenChannel: envOr("LISTEN_CHANNEL", "notification_cycle"),

		Environment: envOr("ENVIRONMENT", "development"),
		LogLevel:    strings.ToLower(envOr("LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(envOr("LOG_FORMAT", "text")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the scheduler cannot run with.
func (c *Config) Validate() error {
	if c.SchedulerInterval <= 0 {
		return fmt.Errorf("SCHEDULER_INTERVAL_MINUTES must be positive")
	}
	if c.MaxRetryAttempts < 1 {
		return fmt.Errorf("MAX_RETRY_ATTEMPTS must be at least 1")
	}
	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("RETRY_DELAY_SECONDS must not be negative")
	}
	switch c.PushProvider {
	case PushProviderExpo:
	case PushProviderFCM:
		if c.FCMCredentialsFile == "" {
			return fmt.Errorf("FIREBASE_CREDENTIALS_FILE is required when PUSH_PROVIDER=fcm")
		}
	default:
		return fmt.Errorf("unknown PUSH_PROVIDER %q", c.PushProvider)
	}
	switch c.LockMode {
	case LockModeAdvisory, LockModeLease, LockModeMemory:
	default:
		return fmt.Errorf("unknown LOCK_MODE %q", c.LockMode)
	}
	if c.RateLimitEnabled && (c.RateLimitRequests < 1 || c.RateLimitWindow <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	if c.LockMode == LockModeLease {
		// The lease is renewed between users, so it only has to outlive one
		// delivery.
		bound := push.WorstCaseDelivery(c.RetryPolicy())
		if c.LockTTL <= bound {
			return fmt.Errorf("LOCK_TTL_MINUTES must exceed the worst-case delivery time %s in lease mode", bound)
		}
	}
	return nil
}

// RetryPolicy is the delivery retry policy from MAX_RETRY_ATTEMPTS and
// RETRY_DELAY_SECONDS.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: c.MaxRetryAttempts, BaseDelay: c.RetryBaseDelay}
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.LogLevel)}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

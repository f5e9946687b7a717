package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/wellness")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/wellness", cfg.DatabaseURL)
	assert.Equal(t, 60*time.Minute, cfg.SchedulerInterval)
	assert.Equal(t, 10*time.Second, cfg.StartupDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.InterUserDelay)
	assert.Equal(t, 3, cfg.MaxRetryAttempts)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, PushProviderExpo, cfg.PushProvider)
	assert.Equal(t, DefaultExpoPushURL, cfg.ExpoPushURL)
	assert.Equal(t, LockModeAdvisory, cfg.LockMode)
	assert.Equal(t, 7*24*time.Hour, cfg.TipRepeatWindow)
	assert.True(t, cfg.SchedulerEnabled)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_NotificationURLWins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://generic")
	t.Setenv("NOTIFICATION_DATABASE_URL", "postgres://notifications")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://notifications", cfg.DatabaseURL)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NOTIFICATION_DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/wellness")
	t.Setenv("SCHEDULER_INTERVAL_MINUTES", "15")
	t.Setenv("MAX_RETRY_ATTEMPTS", "5")
	t.Setenv("RETRY_DELAY_SECONDS", "2")
	t.Setenv("LOCK_MODE", "Lease")
	t.Setenv("LOCK_TTL_MINUTES", "5")
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("PUSH_RATE_PER_SECOND", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.SchedulerInterval)
	assert.Equal(t, 5, cfg.MaxRetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, LockModeLease, cfg.LockMode)
	assert.Equal(t, 5*time.Minute, cfg.LockTTL)
	assert.False(t, cfg.SchedulerEnabled)
	assert.InDelta(t, 2.5, cfg.PushRatePerSec, 0.0001)
}

func TestEnvList(t *testing.T) {
	t.Setenv("CORS_ALLOW_ORIGINS", " https://ops.example.com, ,http://localhost:3000 ")
	assert.Equal(t, []string{"https://ops.example.com", "http://localhost:3000"},
		envList("CORS_ALLOW_ORIGINS", nil))

	t.Setenv("CORS_ALLOW_ORIGINS", "")
	assert.Equal(t, []string{"x"}, envList("CORS_ALLOW_ORIGINS", []string{"x"}))
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/wellness")
	t.Setenv("MAX_RETRY_ATTEMPTS", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxRetryAttempts)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			SchedulerInterval: time.Hour,
			MaxRetryAttempts:  3,
			RetryBaseDelay:    time.Second,
			PushProvider:      PushProviderExpo,
			LockMode:          LockModeAdvisory,
			LockTTL:           time.Minute,
			RateLimitEnabled:  true,
			RateLimitRequests: 30,
			RateLimitWindow:   time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero interval", func(c *Config) { c.SchedulerInterval = 0 }, true},
		{"zero attempts", func(c *Config) { c.MaxRetryAttempts = 0 }, true},
		{"unknown provider", func(c *Config) { c.PushProvider = "apns" }, true},
		{"fcm without credentials", func(c *Config) { c.PushProvider = PushProviderFCM }, true},
		{"fcm with credentials", func(c *Config) {
			c.PushProvider = PushProviderFCM
			c.FCMCredentialsFile = "/etc/fcm.json"
		}, false},
		{"rate limit without window", func(c *Config) { c.RateLimitWindow = 0 }, true},
		{"rate limit disabled", func(c *Config) {
			c.RateLimitEnabled = false
			c.RateLimitRequests = 0
		}, false},
		{"unknown lock mode", func(c *Config) { c.LockMode = "zookeeper" }, true},
		{"lease without ttl", func(c *Config) {
			c.LockMode = LockModeLease
			c.LockTTL = 0
		}, true},
		{"lease ttl shorter than one delivery", func(c *Config) {
			c.LockMode = LockModeLease
			c.LockTTL = 30 * time.Second
		}, true},
		{"lease ttl covers one delivery", func(c *Config) {
			c.LockMode = LockModeLease
			c.LockTTL = 5 * time.Minute
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("anything"))
}

func TestRetryPolicy(t *testing.T) {
	p := (&Config{MaxRetryAttempts: 4, RetryBaseDelay: 2 * time.Second}).RetryPolicy()
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.BaseDelay)
}

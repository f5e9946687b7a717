// Package app assembles the scheduler and its collaborators from config.
// Shared by cmd/notifier and cmd/notifyctl.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wellnessapp/notification-service/internal/config"
	"github.com/wellnessapp/notification-service/internal/db"
	"github.com/wellnessapp/notification-service/internal/joblock"
	"github.com/wellnessapp/notification-service/internal/notifications"
	"github.com/wellnessapp/notification-service/internal/push"
)

// App holds the wired components.
type App struct {
	Store     *notifications.Store
	Gateway   push.Gateway
	Sender    *push.Sender
	Lock      joblock.Lock
	Scheduler *notifications.Scheduler
}

// New wires every component on top of pool.
func New(ctx context.Context, cfg *config.Config, pool *db.Pool, logger *slog.Logger) (*App, error) {
	gateway, err := NewGateway(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	lock, err := NewLock(cfg, pool, logger)
	if err != nil {
		return nil, err
	}

	store := notifications.NewStore(pool.Pool, cfg.TipRepeatWindow, logger)
	sender := push.NewSender(gateway, cfg.RetryPolicy(), nil, logger)

	sched := notifications.NewScheduler(notifications.Deps{
		Preferences: store,
		Tips:        store,
		Log:         store,
		Sender:      sender,
		Lock:        lock,
		Logger:      logger,
	}, notifications.Options{
		Interval:       cfg.SchedulerInterval,
		StartupDelay:   cfg.StartupDelay,
		InterUserDelay: interUserDelay(cfg),
	})

	return &App{
		Store:     store,
		Gateway:   gateway,
		Sender:    sender,
		Lock:      lock,
		Scheduler: sched,
	}, nil
}

// NewGateway builds the push gateway for PUSH_PROVIDER.
func NewGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (push.Gateway, error) {
	switch cfg.PushProvider {
	case config.PushProviderExpo:
		return push.NewExpoClient(cfg.ExpoPushURL, cfg.ExpoAccessToken, cfg.PushRatePerSec, logger), nil
	case config.PushProviderFCM:
		client, err := push.NewFCMClient(ctx, cfg.FCMCredentialsFile, logger)
		if err != nil {
			return nil, fmt.Errorf("init fcm: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown push provider %q", cfg.PushProvider)
	}
}

// NewLock builds the job lock for LOCK_MODE.
func NewLock(cfg *config.Config, pool *db.Pool, logger *slog.Logger) (joblock.Lock, error) {
	switch cfg.LockMode {
	case config.LockModeAdvisory:
		return joblock.NewAdvisory(pool.Pool, cfg.LockKey, logger), nil
	case config.LockModeLease:
		return joblock.NewLease(pool.Pool, cfg.LockKey, cfg.LockTTL, logger), nil
	case config.LockModeMemory:
		logger.Warn("Using in-process job lock; run a single instance only")
		return joblock.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown lock mode %q", cfg.LockMode)
	}
}

// interUserDelay maps a configured zero to "no pause"; Options treats zero
// as "use the default".
func interUserDelay(cfg *config.Config) time.Duration {
	if cfg.InterUserDelay <= 0 {
		return -1
	}
	return cfg.InterUserDelay
}

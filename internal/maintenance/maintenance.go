// Package maintenance runs periodic background tasks as Go tickers: it
// purges old delivery log rows and sweeps expired job lock leases.
package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// MinRetention is the shortest log retention accepted. The delivery log also
// answers "already sent today", which reads the last 48 hours.
const MinRetention = 72 * time.Hour

// ErrRetentionDisabled is returned by PurgeLogs when no retention is set.
var ErrRetentionDisabled = errors.New("delivery log retention disabled")

// Execer is the subset of pgxpool.Pool the tasks need.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Config controls maintenance task intervals. Zero duration disables a task.
// The delivery log is kept forever unless LogRetention is set.
type Config struct {
	PurgeInterval     time.Duration // Delivery log rows past LogRetention
	LockSweepInterval time.Duration // Expired job_locks leases
	LogRetention      time.Duration
}

// DefaultConfig returns production defaults with the purge off.
func DefaultConfig() Config {
	return Config{
		PurgeInterval:     6 * time.Hour,
		LockSweepInterval: 30 * time.Minute,
	}
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, db Execer, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"purge", cfg.PurgeInterval,
		"lock_sweep", cfg.LockSweepInterval,
		"retention", cfg.LogRetention)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if cfg.PurgeInterval > 0 && cfg.LogRetention > 0 {
		t := time.NewTicker(cfg.PurgeInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() {
			_, _ = PurgeLogs(ctx, db, cfg.LogRetention, logger)
		})
	}

	if cfg.LockSweepInterval > 0 {
		t := time.NewTicker(cfg.LockSweepInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() {
			_, _ = SweepExpiredLocks(ctx, db, logger)
		})
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// PurgeLogs deletes delivery log rows older than retention, clamped to
// MinRetention. Returns the number of rows removed. A zero retention
// deletes nothing and returns ErrRetentionDisabled.
func PurgeLogs(ctx context.Context, db Execer, retention time.Duration, logger *slog.Logger) (int64, error) {
	if retention <= 0 {
		return 0, ErrRetentionDisabled
	}
	retention = max(retention, MinRetention)
	cutoff := time.Now().UTC().Add(-retention)

	tag, err := db.Exec(ctx, `DELETE FROM notification_logs WHERE sent_at < $1`, cutoff)
	if err != nil {
		logger.Warn("Purge: failed to delete old delivery logs", "error", err)
		return 0, err
	}
	if tag.RowsAffected() > 0 {
		logger.Info("Purge: removed old delivery logs", "count", tag.RowsAffected(), "before", cutoff)
	}
	return tag.RowsAffected(), nil
}

// SweepExpiredLocks removes lease rows whose holder never released them.
func SweepExpiredLocks(ctx context.Context, db Execer, logger *slog.Logger) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM job_locks WHERE expires_at < NOW()`)
	if err != nil {
		logger.Warn("Lock sweep: failed", "error", err)
		return 0, err
	}
	if tag.RowsAffected() > 0 {
		logger.Info("Lock sweep: removed expired leases", "count", tag.RowsAffected())
	}
	return tag.RowsAffected(), nil
}

package joblock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the lease needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Lease is a TTL lock stored as a row in job_locks. Acquire, Renew and
// Release each use their own short-lived connection. A crashed holder's row
// is taken over once expires_at passes; a live holder keeps it by calling
// Renew more often than the TTL.
type Lease struct {
	pool   Querier
	name   string
	holder string
	ttl    time.Duration
	logger *slog.Logger
}

// NewLease creates a lease lock with a random holder id for this process.
func NewLease(pool Querier, name string, ttl time.Duration, logger *slog.Logger) *Lease {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lease{
		pool:   pool,
		name:   name,
		holder: uuid.NewString(),
		ttl:    ttl,
		logger: logger,
	}
}

// Holder returns this process's holder id.
func (l *Lease) Holder() string { return l.holder }

// Acquire inserts the lease row, or takes over an expired one.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	var holder string
	err := l.pool.QueryRow(ctx, `
		INSERT INTO job_locks (name, holder, acquired_at, expires_at)
		VALUES ($1, $2, NOW(), NOW() + make_interval(secs => $3))
		ON CONFLICT (name) DO UPDATE
		SET holder = EXCLUDED.holder,
		    acquired_at = EXCLUDED.acquired_at,
		    expires_at = EXCLUDED.expires_at
		WHERE job_locks.expires_at < NOW()
		RETURNING holder`,
		l.name, l.holder, l.ttl.Seconds(),
	).Scan(&holder)
	if errors.Is(err, pgx.ErrNoRows) {
		l.logger.Debug("Lease held elsewhere", "lock", l.name)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.name, err)
	}

	l.logger.Debug("Lease acquired", "lock", l.name, "holder", l.holder, "ttl", l.ttl)
	return holder == l.holder, nil
}

// Renew pushes expires_at one TTL past now, only if this process still
// holds the row.
func (l *Lease) Renew(ctx context.Context) (bool, error) {
	tag, err := l.pool.Exec(ctx, `
		UPDATE job_locks
		SET expires_at = NOW() + make_interval(secs => $3)
		WHERE name = $1 AND holder = $2`,
		l.name, l.holder, l.ttl.Seconds())
	if err != nil {
		return false, fmt.Errorf("renew lease %s: %w", l.name, err)
	}
	if tag.RowsAffected() == 0 {
		l.logger.Warn("Lease lost before renewal", "lock", l.name, "holder", l.holder)
		return false, nil
	}
	return true, nil
}

// Release deletes the row only if this process holds it.
func (l *Lease) Release(ctx context.Context) (bool, error) {
	tag, err := l.pool.Exec(ctx,
		"DELETE FROM job_locks WHERE name = $1 AND holder = $2", l.name, l.holder)
	if err != nil {
		return false, fmt.Errorf("release lease %s: %w", l.name, err)
	}
	return tag.RowsAffected() > 0, nil
}

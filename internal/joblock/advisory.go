package joblock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Advisory is a session-scoped Postgres advisory lock. The winning Acquire
// pins one pooled connection until Release; every other operation keeps
// using short-lived pool connections. If the process dies the session ends
// and Postgres drops the lock.
type Advisory struct {
	pool   *pgxpool.Pool
	name   string
	key    int64
	logger *slog.Logger

	mu   sync.Mutex
	conn *pgxpool.Conn
}

// NewAdvisory creates an advisory lock keyed by the hash of name.
func NewAdvisory(pool *pgxpool.Pool, name string, logger *slog.Logger) *Advisory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Advisory{pool: pool, name: name, key: KeyFor(name), logger: logger}
}

// Acquire tries pg_try_advisory_lock without blocking.
func (a *Advisory) Acquire(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		return false, nil
	}

	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection for lock %s: %w", a.name, err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", a.key).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock %s: %w", a.name, err)
	}
	if !ok {
		conn.Release()
		a.logger.Debug("Advisory lock held elsewhere", "lock", a.name)
		return false, nil
	}

	a.conn = conn
	a.logger.Debug("Advisory lock acquired", "lock", a.name, "key", a.key)
	return true, nil
}

// Release unlocks on the pinned session and returns the connection. When the
// unlock itself fails the connection is closed so the session, and with it
// the lock, cannot outlive this call.
func (a *Advisory) Release(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return false, nil
	}
	conn := a.conn
	a.conn = nil

	var ok bool
	err := conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", a.key).Scan(&ok)
	if err != nil {
		_ = conn.Conn().Close(context.Background())
		conn.Release()
		return false, fmt.Errorf("advisory unlock %s: %w", a.name, err)
	}
	conn.Release()

	if !ok {
		a.logger.Warn("Advisory unlock reported lock not held", "lock", a.name)
	}
	return ok, nil
}

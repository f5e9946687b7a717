// Package db provides a pgxpool-based connection pool with prepared statement
// registration, schema bootstrap and health checking.
package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wellnessapp/notification-service/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// ApplySchema creates the notification tables if they do not exist.
// Prepared statements referencing these tables only parse once the tables
// exist, so run it on a plain connection before opening the pool.
func ApplySchema(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Schema returns the embedded DDL.
func Schema() string { return schemaSQL }

// registerPreparedStatements registers the statements the scheduler and the
// preference store run on every cycle.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, sql := range Statements {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}

// Statements maps prepared statement names to SQL.
var Statements = map[string]string{
	// Health
	"health_check": "SELECT 1",

	// Preferences
	"get_user_preferences": `
		SELECT user_id, is_enabled, preferred_time_utc, timezone, device_token, created_at, updated_at
		FROM notification_preferences WHERE user_id = $1`,
	"list_notifiable_users": `
		SELECT user_id, is_enabled, preferred_time_utc, timezone, device_token, created_at, updated_at
		FROM notification_preferences
		WHERE is_enabled = true AND device_token IS NOT NULL AND device_token <> ''
		ORDER BY user_id`,

	// Tips
	"random_tip_excluding_recent": `
		SELECT t.id, t.content, t.category, t.created_at
		FROM wellness_tips t
		WHERE NOT EXISTS (
			SELECT 1 FROM notification_logs l
			WHERE l.user_id = $1 AND l.tip_id = t.id AND l.status = 'sent' AND l.sent_at > $2
		)
		ORDER BY random() LIMIT 1`,
	"random_tip_any": "SELECT id, content, category, created_at FROM wellness_tips ORDER BY random() LIMIT 1",
	"tip_by_id":      "SELECT id, content, category, created_at FROM wellness_tips WHERE id = $1",

	// Delivery log
	"log_notification_attempt": `
		INSERT INTO notification_logs (user_id, tip_id, sent_at, status, error_message, device_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
	"recent_sent_times": `
		SELECT sent_at FROM notification_logs
		WHERE user_id = $1 AND status = 'sent' AND sent_at > $2
		ORDER BY sent_at DESC`,
}

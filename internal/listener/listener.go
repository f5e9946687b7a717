// Package listener provides a Postgres LISTEN/NOTIFY consumer that lets
// operators request an immediate notification cycle. It holds a dedicated
// pgx connection (not from the pool) listening on a single channel.
//
//	SELECT pg_notify('notification_cycle', '{"reason":"backfill","requested_by":"ops"}');
//
// The payload is optional; any notification on the channel requests a cycle.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// Triggerer is satisfied by *notifications.Scheduler.
type Triggerer interface {
	Trigger() bool
}

// TriggerEvent is the optional JSON payload of a cycle request.
type TriggerEvent struct {
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by"`
}

// Start opens a dedicated connection and listens on channel. It reconnects
// automatically on connection loss. Blocks until ctx is cancelled. Intended
// to be called with `go`.
func Start(ctx context.Context, dbURL, channel string, target Triggerer, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, channel, target, logger)
		if ctx.Err() != nil {
			logger.Info("Cycle listener stopped (context cancelled)")
			return
		}

		logger.Error("Cycle listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL, channel string, target Triggerer, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize())
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", channel, err)
	}
	logger.Info("Cycle listener connected", "channel", channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		handle(notification.Payload, target, logger)
	}
}

// handle parses the payload and requests a cycle. Returns the parsed event.
func handle(payload string, target Triggerer, logger *slog.Logger) TriggerEvent {
	var event TriggerEvent
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			event.Reason = payload
		}
	}

	if target.Trigger() {
		logger.Info("Notification cycle requested",
			"reason", event.Reason, "requested_by", event.RequestedBy)
	} else {
		logger.Info("Notification cycle already pending", "reason", event.Reason)
	}
	return event
}

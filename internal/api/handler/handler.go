// Package handler provides HTTP handlers for the ops endpoints.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/wellnessapp/notification-service/internal/api/respond"
	"github.com/wellnessapp/notification-service/internal/notifications"
)

// Pinger is satisfied by *db.Pool.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Scheduler is the subset of *notifications.Scheduler the ops API drives.
type Scheduler interface {
	Status() notifications.Status
	Trigger() bool
	GetUsersDueForNotification(ctx context.Context, nowUTC time.Time, stats *notifications.CycleStats) ([]notifications.DueUser, error)
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	db    Pinger
	sched Scheduler
	now   func() time.Time
}

// New creates a Handler. sched may be nil when the scheduler is disabled.
func New(db Pinger, sched Scheduler) *Handler {
	return &Handler{db: db, sched: sched, now: time.Now}
}

// Root serves service info at /.
// @Summary Service root info
// @Description Returns service name and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":      "Wellness Notification Service",
		"status":    "running",
		"scheduler": h.sched != nil,
		"docs":      "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.db.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": h.now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

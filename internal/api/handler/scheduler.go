package handler

import (
	"net/http"
	"time"

	"github.com/wellnessapp/notification-service/internal/api/respond"
	"github.com/wellnessapp/notification-service/internal/notifications"
)

// DueUserView is one row of the due-users preview.
type DueUserView struct {
	UserID           string `json:"user_id"`
	Timezone         string `json:"timezone"`
	PreferredTimeUTC string `json:"preferred_time_utc"`
	LocalTime        string `json:"local_time"`
}

// SchedulerStatus returns the scheduler snapshot.
// @Summary Scheduler status
// @Description Returns scheduler state, cycle count, last cycle counters and next tick.
// @Tags scheduler
// @Produce json
// @Success 200 {object} notifications.Status
// @Failure 503 {object} respond.ErrorResponse
// @Router /scheduler/status [get]
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, h.sched.Status())
}

// TriggerCycle requests an immediate notification cycle.
// @Summary Trigger a cycle
// @Description Requests an immediate cycle. Requests made while one is already pending coalesce.
// @Tags scheduler
// @Produce json
// @Success 202 {object} map[string]interface{}
// @Failure 503 {object} respond.ErrorResponse
// @Router /scheduler/trigger [post]
func (h *Handler) TriggerCycle(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	queued := h.sched.Trigger()
	respond.WriteJSONObject(w, http.StatusAccepted, map[string]interface{}{
		"queued":  queued,
		"pending": !queued,
		"state":   h.sched.Status().State,
	})
}

// DueUsers previews who a cycle would notify right now. Nothing is sent.
// @Summary Preview due users
// @Description Lists users whose local preferred hour is now and who have not been sent a tip today.
// @Tags scheduler
// @Produce json
// @Param at query string false "RFC3339 instant to evaluate instead of now"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /scheduler/due [get]
func (h *Handler) DueUsers(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}

	at := h.now().UTC()
	if v := r.URL.Query().Get("at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_TIME", "at must be RFC3339", err.Error())
			return
		}
		at = t.UTC()
	}

	var stats notifications.CycleStats
	due, err := h.sched.GetUsersDueForNotification(r.Context(), at, &stats)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "QUERY_FAILED", "Could not list due users", err.Error())
		return
	}

	users := make([]DueUserView, 0, len(due))
	for _, u := range due {
		users = append(users, DueUserView{
			UserID:           u.UserID.String(),
			Timezone:         u.Timezone,
			PreferredTimeUTC: notifications.FormatTimeOfDay(u.PreferredTimeUTC),
			LocalTime:        at.In(u.Location).Format("2006-01-02T15:04:05-07:00"),
		})
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"at":         at.Format(time.RFC3339),
		"candidates": stats.Candidates,
		"skipped":    stats.Skipped,
		"due":        users,
	})
}

func (h *Handler) requireScheduler(w http.ResponseWriter) bool {
	if h.sched == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "SCHEDULER_DISABLED", "Scheduler is not running in this process")
		return false
	}
	return true
}

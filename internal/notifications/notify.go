// Package notifications schedules and delivers the daily wellness tip.
//
// Pipeline: acquire the job lock → list notifiable users → evaluate each
// against its local preferred hour and today's delivery log → pick a tip →
// push with retries → log the attempt → release the lock.
//
// A user whose preferred hour is skipped entirely (scheduler interval coarser
// than an hour, or downtime spanning the hour) gets no tip that day. There is
// no catch-up.
package notifications

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultInterval       = 60 * time.Minute
	defaultStartupDelay   = 10 * time.Second
	defaultInterUserDelay = 100 * time.Millisecond

	// sentLookback bounds the delivery log read behind HasSentToday. A local
	// calendar day never started more than 24h ago.
	sentLookback = 48 * time.Hour

	NotificationTitle = "Your Daily Wellness Tip"
)

// AttemptStatus is the outcome recorded on a delivery log row.
type AttemptStatus string

const (
	StatusSent   AttemptStatus = "sent"
	StatusFailed AttemptStatus = "failed"
)

var (
	ErrInvalidTimezone  = errors.New("invalid timezone")
	ErrInvalidTime      = errors.New("invalid preferred time")
	ErrEmptyDeviceToken = errors.New("device token cannot be empty")
	ErrNoTip            = errors.New("no wellness tip available")
	ErrCycleInProgress  = errors.New("notification cycle already in progress")
	ErrLockLost         = errors.New("job lock lost during cycle")
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Preference is a user's notification settings.
//
// PreferredTimeUTC is a time of day (0 ≤ d < 24h) holding the user's local
// preferred time converted to UTC when the preference was saved.
type Preference struct {
	UserID           uuid.UUID
	IsEnabled        bool
	PreferredTimeUTC time.Duration
	Timezone         string
	DeviceToken      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PreferredTime formats PreferredTimeUTC as HH:MM:SS.
func (p Preference) PreferredTime() string {
	return FormatTimeOfDay(p.PreferredTimeUTC)
}

// Tip is a wellness tip from the catalog.
type Tip struct {
	ID        int
	Content   string
	Category  string
	CreatedAt time.Time
}

// Attempt is one row of the append-only delivery log.
type Attempt struct {
	ID           int64
	UserID       uuid.UUID
	TipID        *int
	SentAt       time.Time
	Status       AttemptStatus
	ErrorMessage string
	DeviceToken  string
}

// DueUser is a user selected for delivery in the current cycle.
type DueUser struct {
	UserID           uuid.UUID
	DeviceToken      string
	Timezone         string
	PreferredTimeUTC time.Duration
	Location         *time.Location
}

// CycleStats are the per-cycle counters.
type CycleStats struct {
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
	LockAcquired bool          `json:"lock_acquired"`
	CurrentHour  int           `json:"current_hour"`
	Candidates   int           `json:"candidates"` // enabled users with a device token
	Due          int           `json:"due"`
	Sent         int           `json:"sent"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"` // see Decision.skippable; also users left when a cycle is cancelled
}

// Summary returns a human-readable summary of the cycle.
func (s CycleStats) Summary() string {
	return fmt.Sprintf(
		"lock=%t hour=%d candidates=%d due=%d sent=%d skipped=%d failed=%d duration=%s",
		s.LockAcquired, s.CurrentHour, s.Candidates, s.Due,
		s.Sent, s.Skipped, s.Failed, s.Duration.Round(time.Millisecond),
	)
}

package notifications

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/wellnessapp/notification-service/internal/push"
)

// processUserSafely runs processUser and turns a panic into a failed attempt
// so one bad user cannot end the cycle.
func (s *Scheduler) processUserSafely(ctx context.Context, u DueUser) (ok bool) {
	logged := false
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		ok = false
		s.logger.Error("Panic while notifying user", "user_id", u.UserID, "panic", r)
		if !logged {
			s.logAttempt(ctx, Attempt{
				UserID:       u.UserID,
				Status:       StatusFailed,
				ErrorMessage: fmt.Sprintf("internal error: %v", r),
				DeviceToken:  u.DeviceToken,
			})
		}
	}()
	return s.processUser(ctx, u, &logged)
}

// processUser picks a tip, pushes it and writes exactly one attempt row.
func (s *Scheduler) processUser(ctx context.Context, u DueUser, logged *bool) bool {
	attempt := Attempt{UserID: u.UserID, DeviceToken: u.DeviceToken}

	tip, err := s.deps.Tips.GetRandomTip(ctx, u.UserID, s.deps.Clock.Now().UTC())
	switch {
	case err != nil:
		s.logger.Error("Tip lookup failed", "user_id", u.UserID, "error", err)
		attempt.Status, attempt.ErrorMessage = StatusFailed, err.Error()
	case tip == nil:
		s.logger.Warn("No wellness tips in catalog", "user_id", u.UserID)
		attempt.Status, attempt.ErrorMessage = StatusFailed, ErrNoTip.Error()
	}
	if attempt.Status == StatusFailed {
		*logged = true
		s.logAttempt(ctx, attempt)
		return false
	}

	tipID := tip.ID
	attempt.TipID = &tipID

	res := s.deps.Sender.Deliver(ctx, push.Message{
		To:    u.DeviceToken,
		Title: NotificationTitle,
		Body:  tip.Content,
		Data: map[string]string{
			"tipId":    strconv.Itoa(tip.ID),
			"category": tip.Category,
		},
	})

	if res.OK {
		attempt.Status = StatusSent
		s.logger.Info("Wellness tip sent",
			"user_id", u.UserID, "tip_id", tip.ID, "attempts", res.Attempts, "ticket_id", res.TicketID)
	} else {
		attempt.Status = StatusFailed
		attempt.ErrorMessage = "push delivery failed"
		if res.Err != nil {
			attempt.ErrorMessage = res.Err.Error()
		}
		s.logger.Warn("Wellness tip delivery failed",
			"user_id", u.UserID, "tip_id", tip.ID, "attempts", res.Attempts, "error", attempt.ErrorMessage)
	}

	*logged = true
	s.logAttempt(ctx, attempt)
	return res.OK
}

// logAttempt stamps the row with the scheduler clock. Write failures are
// logged and swallowed: the push already happened or already failed.
func (s *Scheduler) logAttempt(ctx context.Context, a Attempt) {
	if a.SentAt.IsZero() {
		a.SentAt = s.deps.Clock.Now().UTC()
	}

	// A cancelled cycle still records what it did.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}

	if _, err := s.deps.Log.LogAttempt(ctx, a); err != nil {
		s.logger.Error("Failed to record notification attempt",
			"user_id", a.UserID, "status", a.Status, "error", err)
	}
}

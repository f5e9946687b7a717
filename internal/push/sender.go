package push

import (
	"context"
	"log/slog"
	"strings"

	"github.com/wellnessapp/notification-service/internal/retry"
)

// Result is the final outcome of a delivery with retries.
type Result struct {
	OK       bool
	Attempts int
	TicketID string
	Err      error
}

// Sender wraps a Gateway with the retry policy.
type Sender struct {
	gateway Gateway
	policy  retry.Policy
	sleep   retry.SleepFunc
	logger  *slog.Logger
}

// NewSender creates a retrying sender. sleep may be nil for real time.
func NewSender(gateway Gateway, policy retry.Policy, sleep retry.SleepFunc, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	if sleep == nil {
		sleep = retry.Sleep
	}
	return &Sender{gateway: gateway, policy: policy, sleep: sleep, logger: logger}
}

// SendWithRetry reports whether the message was delivered. It never returns
// an error; failure detail is logged.
func (s *Sender) SendWithRetry(ctx context.Context, token, title, body string, data map[string]string) bool {
	return s.Deliver(ctx, Message{To: token, Title: title, Body: body, Data: data}).OK
}

// Deliver sends msg under the retry policy. A blank token fails immediately
// with zero attempts.
func (s *Sender) Deliver(ctx context.Context, msg Message) Result {
	if strings.TrimSpace(msg.To) == "" {
		s.logger.Warn("Cannot send push notification: token is empty")
		return Result{Err: ErrEmptyToken}
	}

	var ticket Ticket
	attempts, err := retry.Do(ctx, s.policy, s.sleep,
		func(attempt int, err error) {
			s.logger.Warn("Push attempt failed",
				"attempt", attempt, "max_attempts", s.policy.MaxAttempts, "error", err)
		},
		func(ctx context.Context, attempt int) error {
			t, err := s.gateway.Send(ctx, msg)
			if err != nil {
				return err
			}
			ticket = t
			return nil
		})

	if err != nil {
		s.logger.Error("Push notification failed after retries",
			"attempts", attempts, "token", maskToken(msg.To), "error", err)
		return Result{Attempts: attempts, Err: err}
	}

	s.logger.Info("Push notification sent", "attempt", attempts, "ticket_id", ticket.ID)
	return Result{OK: true, Attempts: attempts, TicketID: ticket.ID}
}

// Package push delivers single push messages to a device token through an
// external gateway (Expo Push or Firebase Cloud Messaging) and wraps the
// gateway with bounded retry and exponential backoff.
package push

import (
	"context"
	"errors"
	"time"

	"github.com/wellnessapp/notification-service/internal/retry"
)

// RequestTimeout bounds a single gateway call.
const RequestTimeout = 15 * time.Second

var (
	// ErrEmptyToken is returned without any network call when the device
	// token is blank.
	ErrEmptyToken = errors.New("push token is empty")

	// ErrTicket marks a transport-level success whose per-message ticket
	// reported an error.
	ErrTicket = errors.New("push ticket reported error")
)

// Ticket statuses reported by gateways.
const (
	TicketOK    = "ok"
	TicketError = "error"
)

// Message is one notification addressed to one device.
type Message struct {
	To    string
	Title string
	Body  string
	Data  map[string]string
}

// Ticket is the gateway's per-message receipt.
type Ticket struct {
	Status  string
	ID      string
	Message string
	Detail  string
}

// Gateway sends a single message. A returned error means the attempt failed,
// whether at the transport, HTTP or ticket level.
type Gateway interface {
	Send(ctx context.Context, msg Message) (Ticket, error)
}

// WorstCaseDelivery is the longest one Deliver call can take under p when
// every attempt runs until RequestTimeout.
func WorstCaseDelivery(p retry.Policy) time.Duration {
	calls := time.Duration(p.Attempts()) * RequestTimeout
	wait := p.WorstCase()
	if wait > retry.MaxDelay-calls {
		return retry.MaxDelay
	}
	return calls + wait
}

// maskToken shortens a device token for logging.
func maskToken(token string) string {
	if len(token) > 30 {
		return token[:30] + "…"
	}
	return token
}

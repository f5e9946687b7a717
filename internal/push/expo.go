package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
)

// ExpoClient talks to the Expo Push API. Works with Expo Go on iOS and
// Android without APNs or FCM credentials on the device side.
type ExpoClient struct {
	httpClient  *http.Client
	url         string
	accessToken string
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewExpoClient creates an Expo client limited to ratePerSecond requests.
// A non-positive rate disables client-side limiting.
func NewExpoClient(url, accessToken string, ratePerSecond float64, logger *slog.Logger) *ExpoClient {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &ExpoClient{
		httpClient:  &http.Client{Timeout: RequestTimeout},
		url:         url,
		accessToken: accessToken,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
	}
}

type expoMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Sound string            `json:"sound,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

type expoResponse struct {
	Data   []expoTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

type expoTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Details *struct {
		Error string `json:"error"`
	} `json:"details"`
}

// Send posts one message and inspects its ticket.
func (c *ExpoClient) Send(ctx context.Context, msg Message) (Ticket, error) {
	if msg.To == "" {
		return Ticket{}, ErrEmptyToken
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Ticket{}, fmt.Errorf("rate limit wait: %w", err)
	}

	// Always send an array so Expo always answers with an array of tickets.
	payload, err := json.Marshal([]expoMessage{{
		To:    msg.To,
		Title: msg.Title,
		Body:  msg.Body,
		Sound: "default",
		Data:  msg.Data,
	}})
	if err != nil {
		return Ticket{}, fmt.Errorf("encode expo message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Ticket{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	c.logger.Debug("Sending Expo push", "token", maskToken(msg.To))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Ticket{}, fmt.Errorf("expo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Ticket{}, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Ticket{}, fmt.Errorf("expo returned %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var result expoResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return Ticket{}, fmt.Errorf("decode expo response: %w", err)
	}
	if len(result.Errors) > 0 {
		return Ticket{}, fmt.Errorf("expo request error %s: %s", result.Errors[0].Code, result.Errors[0].Message)
	}
	if len(result.Data) == 0 {
		return Ticket{}, fmt.Errorf("expo returned no tickets")
	}

	// One message per call, so only the first ticket is ours.
	raw := result.Data[0]
	ticket := Ticket{Status: raw.Status, ID: raw.ID, Message: raw.Message}
	if raw.Details != nil {
		ticket.Detail = raw.Details.Error
	}
	if ticket.Status != TicketOK {
		return ticket, fmt.Errorf("%w: %s %s (%s)", ErrTicket, ticket.Status, ticket.Message, ticket.Detail)
	}
	return ticket, nil
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}

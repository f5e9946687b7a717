package push

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// fcmMessenger is the part of *messaging.Client the gateway uses.
type fcmMessenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMClient sends through Firebase Cloud Messaging.
type FCMClient struct {
	client fcmMessenger
	logger *slog.Logger
}

// NewFCMClient initialises the Firebase Admin SDK from a service account
// credentials file.
func NewFCMClient(ctx context.Context, credentialsFile string, logger *slog.Logger) (*FCMClient, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("firebase credentials file not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}

	logger.Info("Firebase messaging initialized")
	return &FCMClient{client: client, logger: logger}, nil
}

// Send delivers one message. FCM has no separate ticket; a message id means
// the message was accepted.
func (c *FCMClient) Send(ctx context.Context, msg Message) (Ticket, error) {
	if msg.To == "" {
		return Ticket{}, ErrEmptyToken
	}

	c.logger.Debug("Sending FCM push", "token", maskToken(msg.To))

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	id, err := c.client.Send(ctx, &messaging.Message{
		Token: msg.To,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	})
	if err != nil {
		if messaging.IsUnregistered(err) {
			return Ticket{Status: TicketError, Detail: "DeviceNotRegistered"}, fmt.Errorf("%w: %v", ErrTicket, err)
		}
		return Ticket{}, fmt.Errorf("fcm send: %w", err)
	}
	return Ticket{Status: TicketOK, ID: id}, nil
}

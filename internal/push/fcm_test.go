package push

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) Send(ctx context.Context, message *messaging.Message) (string, error) {
	args := m.Called(ctx, message)
	return args.String(0), args.Error(1)
}

func TestFCMSend_OK(t *testing.T) {
	m := new(MockMessenger)
	m.On("Send", mock.Anything, mock.MatchedBy(func(msg *messaging.Message) bool {
		return msg.Token == "fcm-token" && msg.Notification.Title == "Hi" && msg.Data["tipId"] == "3"
	})).Return("projects/x/messages/1", nil)

	c := &FCMClient{client: m, logger: discardLogger()}
	ticket, err := c.Send(context.Background(), Message{
		To: "fcm-token", Title: "Hi", Body: "Stretch", Data: map[string]string{"tipId": "3"},
	})

	require.NoError(t, err)
	assert.Equal(t, TicketOK, ticket.Status)
	assert.Equal(t, "projects/x/messages/1", ticket.ID)
	m.AssertExpectations(t)
}

func TestFCMSend_Error(t *testing.T) {
	m := new(MockMessenger)
	m.On("Send", mock.Anything, mock.Anything).Return("", errors.New("unavailable"))

	c := &FCMClient{client: m, logger: discardLogger()}
	_, err := c.Send(context.Background(), Message{To: "fcm-token"})

	assert.Error(t, err)
}

func TestFCMSend_EmptyToken(t *testing.T) {
	m := new(MockMessenger)
	c := &FCMClient{client: m, logger: discardLogger()}

	_, err := c.Send(context.Background(), Message{})

	assert.ErrorIs(t, err, ErrEmptyToken)
	m.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestNewFCMClient_RequiresCredentials(t *testing.T) {
	_, err := NewFCMClient(context.Background(), "", nil)
	assert.Error(t, err)
}

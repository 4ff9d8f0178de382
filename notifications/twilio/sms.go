// Package twilio implements a notifications.NotificationService that mirrors
// payment notifications to a phone number by SMS.
package twilio

import (
	"context"
	"fmt"

	"github.com/deepakselfhelp/deepak-payments/notifications"
	t "github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// maxSMSLength, in characters, keeps alerts within a few concatenated SMS
// segments.
const maxSMSLength = 600

// Config holds the Twilio credentials, the sender number and the default
// recipient of the alerts.
type Config struct {
	AccountSid string
	AuthToken  string
	FromNumber string
	ToNumber   string
}

// messageCreator is the subset of the Twilio REST API used by SMS.
type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// SMS sends notifications as text messages through Twilio.
type SMS struct {
	config *Config
	api    messageCreator
}

// New validates the configuration and creates the Twilio REST client.
// Read more here: https://www.twilio.com/docs/messaging/quickstart/go
func New(config *Config) (*SMS, error) {
	if config == nil || config.AccountSid == "" || config.AuthToken == "" {
		return nil, fmt.Errorf("invalid Twilio configuration")
	}
	if config.FromNumber == "" || config.ToNumber == "" {
		return nil, fmt.Errorf("twilio sender and recipient numbers are required")
	}
	client := t.NewRestClientWithParams(t.ClientParams{
		Username: config.AccountSid,
		Password: config.AuthToken,
	})
	return &SMS{config: config, api: client.Api}, nil
}

// SendNotification sends the plain rendering of the notification. The call is
// abandoned when the context is done.
func (s *SMS) SendNotification(ctx context.Context, notification *notifications.Notification) error {
	to := notification.Destination
	if to == "" {
		to = s.config.ToNumber
	}
	body := notification.PlainBody
	if body == "" {
		body = notifications.StripMarkdown(notification.Body)
	}
	body = truncate(body, maxSMSLength)
	params := &api.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.config.FromNumber)
	params.SetBody(body)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.api.CreateMessage(params)
		errCh <- err
		close(errCh)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// truncate cuts s to at most n characters without splitting a rune.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

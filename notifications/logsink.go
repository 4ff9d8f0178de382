package notifications

import (
	"context"

	"go.vocdoni.io/dvote/log"
)

// LogService writes notifications to the log. It is used when no chat sink is
// configured so events remain visible.
type LogService struct{}

// SendNotification logs the notification text.
func (LogService) SendNotification(_ context.Context, n *Notification) error {
	log.Infow("notification", "subject", n.Subject, "text", n.Text())
	return nil
}

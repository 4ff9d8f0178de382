package notifications

import (
	"context"
	"errors"
)

// Fanout sends each notification to every wrapped service. A failure in one
// service does not prevent delivery to the others.
type Fanout []NotificationService

// SendNotification delivers n to every service and joins the errors.
func (f Fanout) SendNotification(ctx context.Context, n *Notification) error {
	var errs []error
	for _, s := range f {
		if err := s.SendNotification(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

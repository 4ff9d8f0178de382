// Package notifications defines the outbound message sink used to report
// payment events, plus helpers shared by every sink implementation.
package notifications

import "context"

// Format selects how a chat sink renders the message text.
type Format string

const (
	// FormatPlain sends the text as is.
	FormatPlain Format = ""
	// FormatMarkdown enables the legacy Telegram Markdown parse mode.
	FormatMarkdown Format = "Markdown"
)

// Notification is a single outbound message. Destination is optional: sinks
// fall back to their configured chat or phone number when it is empty.
type Notification struct {
	Destination string
	Subject     string
	Body        string
	PlainBody   string
	Format      Format
}

// Text returns the plain rendering of the notification, used by sinks that
// cannot render Markdown.
func (n *Notification) Text() string {
	if n.PlainBody != "" {
		return n.PlainBody
	}
	return n.Body
}

// NotificationService sends a notification. Implementations must honour the
// context deadline.
type NotificationService interface {
	SendNotification(context.Context, *Notification) error
}

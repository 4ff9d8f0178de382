package payments

import (
	"fmt"
	"strings"
	"time"

	"github.com/deepakselfhelp/deepak-payments/notifications"
)

// NotificationTimeZone is the zone of the timestamps printed in messages.
const NotificationTimeZone = "Europe/Berlin"

// loadLocation falls back to a fixed CET offset when the tz database is not
// available in the container.
func loadLocation() *time.Location {
	loc, err := time.LoadLocation(NotificationTimeZone)
	if err != nil {
		return time.FixedZone("CET", 3600)
	}
	return loc
}

type messageLine struct {
	label string
	value string
}

// message renders a Markdown notification with a bold title and one escaped
// line per non empty field.
func (p *Processor) message(title string, lines ...messageLine) *notifications.Notification {
	var md, plain strings.Builder
	fmt.Fprintf(&md, "*%s*\n", title)
	fmt.Fprintf(&plain, "%s\n", title)
	lines = append(lines,
		messageLine{"Source", p.provider},
		messageLine{"Time", p.now().In(p.location).Format("2006-01-02 15:04:05 MST")},
	)
	for _, l := range lines {
		if l.value == "" {
			continue
		}
		fmt.Fprintf(&md, "\n*%s:* %s", l.label, notifications.EscapeMarkdown(l.value))
		fmt.Fprintf(&plain, "\n%s: %s", l.label, l.value)
	}
	return &notifications.Notification{
		Subject:   title,
		Body:      md.String(),
		PlainBody: plain.String(),
		Format:    notifications.FormatMarkdown,
	}
}

func formatAmount(a Amount) string {
	if a.Value == "" {
		return ""
	}
	return a.Value + " " + a.CurrencyOrDefault()
}

func eventLines(ev *PaymentEvent) []messageLine {
	return []messageLine{
		{"Name", ev.Metadata.Name},
		{"Email", ev.Email()},
		{"Plan", ev.Metadata.PlanType},
		{"Amount", formatAmount(ev.Amount)},
		{"Customer", ev.CustomerID},
		{"ID", ev.ID},
	}
}

// caseMessage renders the notification of a classified event.
func (p *Processor) caseMessage(c Case, ev *PaymentEvent) *notifications.Notification {
	lines := eventLines(ev)
	switch c {
	case CaseInitialPaymentSucceeded:
		next := "Waiting for the mandate to create the subscription"
		if amount, ok := ev.RecurringAmount(); ok {
			next = fmt.Sprintf("%s, recurring %s monthly", next, formatAmount(amount))
		}
		return p.message("💰 INITIAL PAYMENT SUCCESSFUL", append(lines, messageLine{"Next", next})...)
	case CaseInitialPaymentFailed:
		return p.message("❌ INITIAL PAYMENT FAILED",
			append(lines, messageLine{"Status", string(ev.Status)}, messageLine{"Reason", ev.FailureReason})...)
	case CaseRenewalCharged:
		return p.message("🔁 RENEWAL CHARGED", lines...)
	case CaseRenewalFailed:
		return p.message("⚠️ RENEWAL FAILED", append(lines, messageLine{"Reason", ev.FailureReason})...)
	case CaseSubscriptionActivated:
		return p.message("✅ SUBSCRIPTION ACTIVE", lines...)
	case CaseSubscriptionCancelled:
		return p.message("🚫 SUBSCRIPTION CANCELLED", lines...)
	}
	return nil
}

// oneTimeMessage renders the single notice of a payment without a follow up
// subscription.
func (p *Processor) oneTimeMessage(ev *PaymentEvent) *notifications.Notification {
	return p.message("✅ ONE-TIME PAYMENT RECEIVED", eventLines(ev)...)
}

// activationMessage renders the outcome of an activation run.
func (p *Processor) activationMessage(ev *PaymentEvent, a *Activation) *notifications.Notification {
	lines := []messageLine{
		{"Name", ev.Metadata.Name},
		{"Email", ev.Email()},
		{"Plan", ev.Metadata.PlanType},
		{"Amount", formatAmount(a.Request.Amount) + " / month"},
		{"Customer", a.Request.CustomerID},
		{"Payment", a.PaymentID},
	}
	switch a.State {
	case StateSubscriptionCreated:
		subID := ""
		if a.Subscription != nil {
			subID = a.Subscription.ID
		}
		return p.message("🧾 SUBSCRIPTION STARTED", append(lines, messageLine{"Subscription", subID})...)
	case StateMandateTimedOut:
		return p.message("⌛ MANDATE NOT CONFIRMED",
			append(lines,
				messageLine{"Checks", fmt.Sprint(a.MandateChecks)},
				messageLine{"Reason", a.LastError})...)
	default:
		return p.message("🚫 SUBSCRIPTION CREATION FAILED",
			append(lines,
				messageLine{"Attempts", fmt.Sprint(a.CreationAttempts)},
				messageLine{"Reason", a.LastError})...)
	}
}

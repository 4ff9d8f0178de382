package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/deepakselfhelp/deepak-payments/payments"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 of the webhook body.
	SignatureHeader = "X-Razorpay-Signature"
	// EventIDHeader identifies a webhook delivery; retries keep the same id.
	EventIDHeader = "X-Razorpay-Event-Id"
)

// Webhook event names mapped onto processor cases.
const (
	EventPaymentCaptured       = "payment.captured"
	EventPaymentFailed         = "payment.failed"
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionCharged   = "subscription.charged"
	EventSubscriptionHalted    = "subscription.halted"
	EventSubscriptionCancelled = "subscription.cancelled"
)

// VerifySignature checks the signature header against the raw body. The
// comparison is constant time.
func VerifySignature(body []byte, signature, secret string) bool {
	sig := strings.TrimSpace(signature)
	if sig == "" || secret == "" {
		return false
	}
	expected, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// Sign returns the hex signature of body, as Razorpay computes it.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook checks the signature with the configured webhook secret.
func (c *Client) VerifyWebhook(body []byte, signature string) error {
	if !VerifySignature(body, signature, c.webhookSecret) {
		return payments.ErrInvalidSignature
	}
	return nil
}

type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
		Subscription *struct {
			Entity SubscriptionEntity `json:"entity"`
		} `json:"subscription"`
	} `json:"payload"`
}

// ParseWebhook maps a verified webhook body onto a callback with an embedded
// event. The identifier is the payment id when the webhook carries a payment
// and the subscription id otherwise. The delivery is keyed on the event name
// and the identifier, since Razorpay sends several events for one payment.
// Events without a mapping keep their name as status, so they are classified
// but not notified.
func ParseWebhook(body []byte) (*payments.Callback, error) {
	var wh webhookBody
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, &payments.ParseError{Err: payments.ErrMalformedCallback, Detail: err.Error()}
	}
	var (
		payment *PaymentEntity
		sub     *SubscriptionEntity
	)
	if wh.Payload.Payment != nil && wh.Payload.Payment.Entity.ID != "" {
		payment = &wh.Payload.Payment.Entity
	}
	if wh.Payload.Subscription != nil && wh.Payload.Subscription.Entity.ID != "" {
		sub = &wh.Payload.Subscription.Entity
	}

	ev := &payments.PaymentEvent{Provider: ProviderName}
	if payment != nil {
		ev = payment.event()
	}
	if sub != nil {
		sub.fill(ev)
	}
	if ev.ID == "" {
		return nil, &payments.ParseError{Err: payments.ErrMissingIdentifier, Detail: wh.Event}
	}

	switch wh.Event {
	case EventPaymentCaptured:
		ev.Resource, ev.Status, ev.SequenceType = payments.ResourcePayment, payments.StatusPaid, payments.SequenceOneOff
	case EventPaymentFailed:
		ev.Resource, ev.Status, ev.SequenceType = payments.ResourcePayment, payments.StatusFailed, payments.SequenceOneOff
	case EventSubscriptionCharged:
		ev.Resource, ev.Status, ev.SequenceType = payments.ResourcePayment, payments.StatusPaid, payments.SequenceRecurring
	case EventSubscriptionHalted:
		ev.Resource, ev.Status, ev.SequenceType = payments.ResourcePayment, payments.StatusFailed, payments.SequenceRecurring
	case EventSubscriptionActivated:
		ev.Resource, ev.Status = payments.ResourceSubscription, payments.StatusActive
	case EventSubscriptionCancelled:
		ev.Resource, ev.Status = payments.ResourceSubscription, payments.StatusCanceled
	default:
		ev.Resource, ev.Status = payments.ResourcePayment, payments.Status(wh.Event)
	}
	return &payments.Callback{ID: ev.ID, DeliveryID: wh.Event + ":" + ev.ID, Event: ev}, nil
}

// event converts a payment entity. Payments always carry one-off metadata:
// Razorpay subscriptions are created before the first charge.
func (p *PaymentEntity) event() *payments.PaymentEvent {
	currency := strings.ToUpper(p.Currency)
	if currency == "" {
		currency = Currency
	}
	status := payments.Status(p.Status)
	switch p.Status {
	case "captured":
		status = payments.StatusPaid
	case "failed":
		status = payments.StatusFailed
	}
	return &payments.PaymentEvent{
		ID:            p.ID,
		Provider:      ProviderName,
		Resource:      payments.ResourcePayment,
		Status:        status,
		SequenceType:  payments.SequenceOneOff,
		Amount:        payments.Amount{Value: FormatPaise(p.Amount), Currency: currency},
		CustomerID:    p.CustomerID,
		CustomerEmail: p.Email,
		FailureReason: p.ErrorDescription,
		Metadata: payments.Metadata{
			Name:  p.Notes["name"],
			Email: p.Notes["email"],
		},
	}
}

// fill completes ev with the subscription data, taking the subscription id
// when the webhook carries no payment.
func (s *SubscriptionEntity) fill(ev *payments.PaymentEvent) {
	if ev.ID == "" {
		ev.ID = s.ID
	}
	if ev.CustomerID == "" {
		ev.CustomerID = s.CustomerID
	}
	if ev.Metadata.Name == "" {
		ev.Metadata.Name = s.Notes["name"]
	}
	if ev.Metadata.Email == "" {
		ev.Metadata.Email = s.Notes["email"]
	}
	ev.Metadata.PlanType = s.Notes["product"]
	if ev.Metadata.PlanType == "" {
		ev.Metadata.PlanType = s.PlanID
	}
}

// Package payments turns payment provider webhooks into notifications and,
// for the first payment of a recurring plan, drives the activation of the
// provider subscription once the customer mandate is usable.
package payments

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Resource is the kind of provider object a webhook refers to.
type Resource string

const (
	ResourcePayment      Resource = "payment"
	ResourceSubscription Resource = "subscription"
)

// Status is the provider status of a payment or subscription.
type Status string

const (
	StatusOpen     Status = "open"
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusExpired  Status = "expired"
	StatusCanceled Status = "canceled"
	StatusActive   Status = "active"
)

// SequenceType tells a one-off payment, the first payment of a recurring
// series and a recurring charge apart. An empty value means none.
type SequenceType string

const (
	SequenceNone      SequenceType = ""
	SequenceFirst     SequenceType = "first"
	SequenceOneOff    SequenceType = "oneoff"
	SequenceRecurring SequenceType = "recurring"
)

// DefaultCurrency is used when the provider omits the currency.
const DefaultCurrency = "EUR"

// SubscriptionInterval is the only billing interval created by the workflow.
const SubscriptionInterval = "1 month"

// Amount is a decimal amount as sent by the providers, e.g. "49.00".
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Positive reports whether the amount parses to a value greater than zero.
func (a Amount) Positive() bool {
	v, err := strconv.ParseFloat(strings.TrimSpace(a.Value), 64)
	return err == nil && v > 0
}

// CurrencyOrDefault returns the currency, falling back to DefaultCurrency.
func (a Amount) CurrencyOrDefault() string {
	if a.Currency == "" {
		return DefaultCurrency
	}
	return a.Currency
}

// Metadata is the checkout information attached to the initial payment.
type Metadata struct {
	Name            string
	Email           string
	PlanType        string
	RecurringAmount string
	// Recurring marks a plan as recurring even without a RecurringAmount, in
	// which case the subscription reuses the initial amount.
	Recurring bool
}

// PaymentEvent is the canonical, provider independent view of a webhook.
type PaymentEvent struct {
	ID            string
	Provider      string
	Resource      Resource
	Status        Status
	SequenceType  SequenceType
	Amount        Amount
	CustomerID    string
	CustomerEmail string
	Metadata      Metadata
	// FailureReason is the provider explanation of a failed payment, if any.
	FailureReason string
}

// Email returns the best known email of the payer.
func (e *PaymentEvent) Email() string {
	if e.Metadata.Email != "" {
		return e.Metadata.Email
	}
	return e.CustomerEmail
}

// RecurringAmount returns the amount of the subscription that must follow the
// initial payment, and false when the payment is a one-time purchase.
func (e *PaymentEvent) RecurringAmount() (Amount, bool) {
	recurring := Amount{Value: e.Metadata.RecurringAmount, Currency: e.Amount.CurrencyOrDefault()}
	if recurring.Positive() {
		return recurring, true
	}
	if e.Metadata.Recurring && e.Amount.Positive() {
		return Amount{Value: e.Amount.Value, Currency: e.Amount.CurrencyOrDefault()}, true
	}
	return Amount{}, false
}

// MandateStatus is the provider status of a customer mandate.
type MandateStatus string

const (
	MandateValid   MandateStatus = "valid"
	MandatePending MandateStatus = "pending"
	MandateInvalid MandateStatus = "invalid"
)

// Mandate authorizes future charges against a customer payment method.
type Mandate struct {
	ID     string
	Status MandateStatus
}

// SubscriptionRequest is sent once per qualifying initial payment.
type SubscriptionRequest struct {
	CustomerID  string
	Amount      Amount
	Interval    string
	Description string
	Metadata    map[string]string
}

// Subscription is the provider answer to a SubscriptionRequest.
type Subscription struct {
	ID     string
	Status string
}

// Gateway is the part of a payment provider used by the processor.
type Gateway interface {
	Payment(ctx context.Context, id string) (*PaymentEvent, error)
	SubscriptionCreator
	Mandates(ctx context.Context, customerID string) ([]Mandate, error)
}

// SubscriptionCreator creates a provider subscription.
type SubscriptionCreator interface {
	CreateSubscription(ctx context.Context, req *SubscriptionRequest) (*Subscription, error)
}

// Deduplicator remembers recently processed event ids. It is advisory: an
// instance only knows the ids it has seen, and entries expire.
type Deduplicator interface {
	// Seen reports whether id was marked and has not expired.
	Seen(ctx context.Context, id string) (bool, error)
	// Mark records id and reports whether it was not already marked.
	Mark(ctx context.Context, id string) (bool, error)
	// Forget removes id so a later delivery is processed again.
	Forget(ctx context.Context, id string) error
	// ExpireOlderThan drops entries marked more than age ago.
	ExpireOlderThan(ctx context.Context, age time.Duration) error
}

// Journal persists activation state transitions.
type Journal interface {
	SaveActivation(ctx context.Context, activation *Activation) error
}

type gatewayWithCreator struct {
	Gateway
	creator SubscriptionCreator
}

func (g *gatewayWithCreator) CreateSubscription(ctx context.Context, req *SubscriptionRequest) (*Subscription, error) {
	return g.creator.CreateSubscription(ctx, req)
}

// WithSubscriptionCreator returns a Gateway that keeps the payment and mandate
// lookups of gw but creates subscriptions through creator.
func WithSubscriptionCreator(gw Gateway, creator SubscriptionCreator) Gateway {
	if creator == nil {
		return gw
	}
	return &gatewayWithCreator{Gateway: gw, creator: creator}
}

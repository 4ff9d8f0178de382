package db

import (
	"time"

	"github.com/deepakselfhelp/deepak-payments/payments"
)

// ActivationTransition is a journaled state change.
type ActivationTransition struct {
	State string    `json:"state" bson:"state"`
	At    time.Time `json:"at" bson:"at"`
}

// Activation is the journal document of a mandate activation run.
type Activation struct {
	ID               string                 `json:"id" bson:"_id"`
	Provider         string                 `json:"provider" bson:"provider"`
	PaymentID        string                 `json:"paymentId" bson:"paymentId"`
	CustomerID       string                 `json:"customerId" bson:"customerId"`
	Strategy         string                 `json:"strategy" bson:"strategy"`
	Amount           string                 `json:"amount" bson:"amount"`
	Currency         string                 `json:"currency" bson:"currency"`
	Description      string                 `json:"description" bson:"description"`
	Metadata         map[string]string      `json:"metadata,omitempty" bson:"metadata,omitempty"`
	State            string                 `json:"state" bson:"state"`
	Terminal         bool                   `json:"terminal" bson:"terminal"`
	MandateChecks    int                    `json:"mandateChecks" bson:"mandateChecks"`
	CreationAttempts int                    `json:"creationAttempts" bson:"creationAttempts"`
	SubscriptionID   string                 `json:"subscriptionId,omitempty" bson:"subscriptionId,omitempty"`
	LastError        string                 `json:"lastError,omitempty" bson:"lastError,omitempty"`
	History          []ActivationTransition `json:"history" bson:"history"`
	CreatedAt        time.Time              `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt" bson:"updatedAt"`
}

// activationDocument converts the workflow state into its journal document.
func activationDocument(a *payments.Activation) *Activation {
	doc := &Activation{
		ID:               a.ID,
		Provider:         a.Provider,
		PaymentID:        a.PaymentID,
		CustomerID:       a.Request.CustomerID,
		Strategy:         a.Strategy,
		Amount:           a.Request.Amount.Value,
		Currency:         a.Request.Amount.Currency,
		Description:      a.Request.Description,
		Metadata:         a.Request.Metadata,
		State:            string(a.State),
		Terminal:         a.State.Terminal(),
		MandateChecks:    a.MandateChecks,
		CreationAttempts: a.CreationAttempts,
		LastError:        a.LastError,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
	if a.Subscription != nil {
		doc.SubscriptionID = a.Subscription.ID
	}
	for _, t := range a.History {
		doc.History = append(doc.History, ActivationTransition{State: string(t.State), At: t.At})
	}
	return doc
}

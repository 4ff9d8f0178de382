package razorpay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/deepakselfhelp/deepak-payments/payments"
	"go.vocdoni.io/dvote/log"
)

// PaymentEntity is a Razorpay payment as returned by the API and embedded in
// webhooks.
type PaymentEntity struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Status           string            `json:"status"`
	Email            string            `json:"email"`
	Contact          string            `json:"contact"`
	CustomerID       string            `json:"customer_id"`
	InvoiceID        string            `json:"invoice_id"`
	ErrorDescription string            `json:"error_description"`
	Notes            map[string]string `json:"notes"`
}

// SubscriptionEntity is a Razorpay subscription.
type SubscriptionEntity struct {
	ID         string            `json:"id"`
	PlanID     string            `json:"plan_id"`
	CustomerID string            `json:"customer_id"`
	Status     string            `json:"status"`
	ShortURL   string            `json:"short_url"`
	Notes      map[string]string `json:"notes"`
}

type customerBody struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Contact      string `json:"contact,omitempty"`
	FailExisting string `json:"fail_existing"`
}

type subscriptionBody struct {
	PlanID         string            `json:"plan_id"`
	TotalCount     int               `json:"total_count"`
	CustomerNotify int               `json:"customer_notify"`
	CustomerID     string            `json:"customer_id,omitempty"`
	Notes          map[string]string `json:"notes,omitempty"`
}

type tokenList struct {
	Items []struct {
		ID               string `json:"id"`
		Recurring        bool   `json:"recurring"`
		RecurringDetails struct {
			Status string `json:"status"`
		} `json:"recurring_details"`
	} `json:"items"`
}

// CreateCustomer creates a customer or returns the existing one with the
// same email and contact.
func (c *Client) CreateCustomer(ctx context.Context, name, email, phone string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	body := &customerBody{Name: name, Email: email, Contact: phone, FailExisting: "0"}
	if err := c.do(ctx, http.MethodPost, "/customers", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Payment fetches a payment and returns it as a PaymentEvent.
func (c *Client) Payment(ctx context.Context, id string) (*payments.PaymentEvent, error) {
	var p PaymentEntity
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return p.event(), nil
}

// CreateSubscription creates a subscription on the configured plan. Razorpay
// plans carry the amount and interval, so only the customer and notes of req
// are used.
func (c *Client) CreateSubscription(ctx context.Context, req *payments.SubscriptionRequest) (*payments.Subscription, error) {
	if c.planID == "" {
		return nil, fmt.Errorf("missing razorpay plan id")
	}
	var out SubscriptionEntity
	body := &subscriptionBody{
		PlanID:         c.planID,
		TotalCount:     DefaultTotalCount,
		CustomerNotify: 1,
		CustomerID:     req.CustomerID,
		Notes:          req.Metadata,
	}
	if err := c.do(ctx, http.MethodPost, "/subscriptions", body, &out); err != nil {
		return nil, err
	}
	return &payments.Subscription{ID: out.ID, Status: out.Status}, nil
}

// Mandates lists the saved tokens of a customer. A recurring token whose
// recurring status is confirmed is a valid mandate.
func (c *Client) Mandates(ctx context.Context, customerID string) ([]payments.Mandate, error) {
	var list tokenList
	path := fmt.Sprintf("/customers/%s/tokens", url.PathEscape(customerID))
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	mandates := make([]payments.Mandate, 0, len(list.Items))
	for _, t := range list.Items {
		status := payments.MandatePending
		switch {
		case t.Recurring && t.RecurringDetails.Status == "confirmed":
			status = payments.MandateValid
		case t.RecurringDetails.Status == "rejected":
			status = payments.MandateInvalid
		}
		mandates = append(mandates, payments.Mandate{ID: t.ID, Status: status})
	}
	return mandates, nil
}

// SubscriptionCheckout is the form posted by the subscription page.
type SubscriptionCheckout struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty,phone"`
}

// SubscriptionCheckoutResponse is what the checkout page needs to open the
// Razorpay modal.
type SubscriptionCheckoutResponse struct {
	ID      string `json:"id"`
	Key     string `json:"key"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Product string `json:"product"`
	Message string `json:"message"`
}

// StartSubscription creates a plan subscription for a new customer, with
// the customer details stored as notes for the webhooks.
func (c *Client) StartSubscription(ctx context.Context, r *SubscriptionCheckout) (*SubscriptionCheckoutResponse, error) {
	if r.Name == "" || r.Email == "" {
		return nil, fmt.Errorf("name and email are required")
	}
	sub, err := c.CreateSubscription(ctx, &payments.SubscriptionRequest{
		Metadata: map[string]string{
			"name":    r.Name,
			"email":   r.Email,
			"phone":   r.Phone,
			"product": c.product,
		},
	})
	if err != nil {
		return nil, err
	}
	log.Infow("razorpay subscription created", "subscription", sub.ID, "plan", c.planID)
	return &SubscriptionCheckoutResponse{
		ID:      sub.ID,
		Key:     c.keyID,
		Name:    r.Name,
		Email:   r.Email,
		Phone:   r.Phone,
		Product: c.product,
		Message: "Subscription created successfully.",
	}, nil
}

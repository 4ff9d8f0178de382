package mollie

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/deepakselfhelp/deepak-payments/payments"
)

// Customer is a Mollie customer.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PaymentRequest is the body of POST /payments.
type PaymentRequest struct {
	Amount       payments.Amount   `json:"amount"`
	CustomerID   string            `json:"customerId,omitempty"`
	SequenceType string            `json:"sequenceType,omitempty"`
	Description  string            `json:"description"`
	RedirectURL  string            `json:"redirectUrl"`
	WebhookURL   string            `json:"webhookUrl,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Payment is the subset of a Mollie payment returned on creation.
type Payment struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  struct {
		Checkout struct {
			Href string `json:"href"`
		} `json:"checkout"`
	} `json:"_links"`
}

// CheckoutURL returns the hosted checkout page of the payment.
func (p *Payment) CheckoutURL() string {
	return p.Links.Checkout.Href
}

type subscriptionBody struct {
	Amount      payments.Amount   `json:"amount"`
	Interval    string            `json:"interval"`
	Description string            `json:"description"`
	WebhookURL  string            `json:"webhookUrl,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type mandateList struct {
	Embedded struct {
		Mandates []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"mandates"`
	} `json:"_embedded"`
}

// FormatAmount normalizes a decimal amount to the two decimals Mollie
// requires, e.g. "49" to "49.00".
func FormatAmount(value string) (string, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return "", fmt.Errorf("invalid amount %q", value)
	}
	if v < 0 {
		return "", fmt.Errorf("negative amount %q", value)
	}
	return strconv.FormatFloat(v, 'f', 2, 64), nil
}

// CreateCustomer creates a customer.
func (c *Client) CreateCustomer(ctx context.Context, name, email string) (*Customer, error) {
	customer := &Customer{}
	if _, err := c.do(ctx, http.MethodPost, "/customers", &Customer{Name: name, Email: email}, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

// CreatePayment creates a payment.
func (c *Client) CreatePayment(ctx context.Context, req *PaymentRequest) (*Payment, error) {
	payment := &Payment{}
	if _, err := c.do(ctx, http.MethodPost, "/payments", req, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// Payment fetches a payment and returns it as a PaymentEvent.
func (c *Client) Payment(ctx context.Context, id string) (*payments.PaymentEvent, error) {
	body, err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	cb, err := payments.ParseCallback("application/json", body)
	if err != nil {
		return nil, err
	}
	if cb.Event == nil {
		return &payments.PaymentEvent{ID: cb.ID, Provider: ProviderName}, nil
	}
	cb.Event.Provider = ProviderName
	return cb.Event, nil
}

// CreateSubscription creates a subscription for the customer of req. The
// subscription reports its payments to the webhook.
func (c *Client) CreateSubscription(ctx context.Context, req *payments.SubscriptionRequest) (*payments.Subscription, error) {
	if req.CustomerID == "" {
		return nil, fmt.Errorf("missing customer id")
	}
	value, err := FormatAmount(req.Amount.Value)
	if err != nil {
		return nil, err
	}
	interval := req.Interval
	if interval == "" {
		interval = payments.SubscriptionInterval
	}
	body := &subscriptionBody{
		Amount:      payments.Amount{Value: value, Currency: req.Amount.CurrencyOrDefault()},
		Interval:    interval,
		Description: req.Description,
		WebhookURL:  c.WebhookURL(),
		Metadata:    req.Metadata,
	}
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	path := fmt.Sprintf("/customers/%s/subscriptions", url.PathEscape(req.CustomerID))
	if _, err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &payments.Subscription{ID: out.ID, Status: out.Status}, nil
}

// Mandates lists the mandates of a customer.
func (c *Client) Mandates(ctx context.Context, customerID string) ([]payments.Mandate, error) {
	var list mandateList
	path := fmt.Sprintf("/customers/%s/mandates", url.PathEscape(customerID))
	if _, err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	mandates := make([]payments.Mandate, 0, len(list.Embedded.Mandates))
	for _, m := range list.Embedded.Mandates {
		mandates = append(mandates, payments.Mandate{ID: m.ID, Status: payments.MandateStatus(m.Status)})
	}
	return mandates, nil
}

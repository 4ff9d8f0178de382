package mollie

import (
	"context"
	"fmt"

	"github.com/deepakselfhelp/deepak-payments/internal"
	"github.com/deepakselfhelp/deepak-payments/payments"
	"go.vocdoni.io/dvote/log"
)

// CheckoutRequest is the form posted by the checkout page.
type CheckoutRequest struct {
	Name            string `json:"name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email"`
	InitialAmount   string `json:"initialAmount" validate:"amount"`
	RecurringAmount string `json:"recurringAmount" validate:"omitempty,decimal"`
	PlanType        string `json:"planType" validate:"max=100"`
}

// Checkout is the outcome of StartCheckout.
type Checkout struct {
	CustomerID  string `json:"customerId"`
	PaymentID   string `json:"paymentId"`
	CheckoutURL string `json:"checkoutUrl"`
}

// Validate checks the mandatory fields and normalizes the amounts.
func (r *CheckoutRequest) Validate() error {
	if r.Name == "" || r.Email == "" {
		return fmt.Errorf("name and email are required")
	}
	if !internal.ValidEmail(r.Email) {
		return fmt.Errorf("invalid email %q", r.Email)
	}
	initial, err := FormatAmount(r.InitialAmount)
	if err != nil {
		return err
	}
	if initial == "0.00" {
		return fmt.Errorf("initial amount must be positive")
	}
	r.InitialAmount = initial
	if r.RecurringAmount != "" {
		if r.RecurringAmount, err = FormatAmount(r.RecurringAmount); err != nil {
			return err
		}
	}
	return nil
}

// Recurring reports whether a subscription must follow the payment.
func (r *CheckoutRequest) Recurring() bool {
	return r.RecurringAmount != "" && r.RecurringAmount != "0.00"
}

// StartCheckout creates the customer and the initial payment of a plan. The
// payment is a "first" payment when a recurring amount is set, so Mollie
// creates the mandate the subscription will charge, and a one-off payment
// otherwise. The plan data is stored as payment metadata for the webhook.
func (c *Client) StartCheckout(ctx context.Context, r *CheckoutRequest) (*Checkout, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	customer, err := c.CreateCustomer(ctx, r.Name, r.Email)
	if err != nil {
		return nil, fmt.Errorf("cannot create customer: %w", err)
	}
	sequenceType := "oneoff"
	if r.Recurring() {
		sequenceType = "first"
	}
	description := "Payment"
	if r.PlanType != "" {
		description = r.PlanType + " Plan"
	}
	payment, err := c.CreatePayment(ctx, &PaymentRequest{
		Amount:       payments.Amount{Value: r.InitialAmount, Currency: payments.DefaultCurrency},
		CustomerID:   customer.ID,
		SequenceType: sequenceType,
		Description:  description,
		RedirectURL:  c.RedirectURL(),
		WebhookURL:   c.WebhookURL(),
		Metadata: map[string]string{
			"name":            r.Name,
			"email":           r.Email,
			"planType":        r.PlanType,
			"recurringAmount": r.RecurringAmount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create payment: %w", err)
	}
	log.Infow("mollie checkout started",
		"customer", customer.ID,
		"payment", payment.ID,
		"sequenceType", sequenceType,
		"plan", r.PlanType)
	return &Checkout{
		CustomerID:  customer.ID,
		PaymentID:   payment.ID,
		CheckoutURL: payment.CheckoutURL(),
	}, nil
}

package mollie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/deepakselfhelp/deepak-payments/payments"
	"go.vocdoni.io/dvote/log"
)

// SubscriptionEndpointRequest is the body of the internal subscription
// route.
type SubscriptionEndpointRequest struct {
	CustomerID  string            `json:"customerId" validate:"required"`
	Amount      string            `json:"amount" validate:"amount"`
	Currency    string            `json:"currency,omitempty" validate:"omitempty,len=3"`
	Description string            `json:"description,omitempty" validate:"max=255"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// SubscriptionEndpointResponse is the answer of the internal subscription
// route.
type SubscriptionEndpointResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// EndpointSubscriber creates subscriptions by calling the subscription route
// of a service instance at an internal URL instead of the Mollie API.
type EndpointSubscriber struct {
	url    string
	client *http.Client
}

// NewEndpointSubscriber returns a subscriber posting to
// internalURL + SubscriptionPath.
func NewEndpointSubscriber(internalURL string) *EndpointSubscriber {
	return &EndpointSubscriber{
		url:    strings.TrimSuffix(internalURL, "/") + SubscriptionPath,
		client: &http.Client{Timeout: httpClientTimeout},
	}
}

// CreateSubscription implements payments.SubscriptionCreator.
func (s *EndpointSubscriber) CreateSubscription(ctx context.Context,
	req *payments.SubscriptionRequest,
) (*payments.Subscription, error) {
	data, err := json.Marshal(&SubscriptionEndpointRequest{
		CustomerID:  req.CustomerID,
		Amount:      req.Amount.Value,
		Currency:    req.Amount.Currency,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("error closing subscription endpoint response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subscription endpoint returned status %d: %s", resp.StatusCode, string(body))
	}
	var out SubscriptionEndpointResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("subscription endpoint returned no id")
	}
	return &payments.Subscription{ID: out.ID, Status: out.Status}, nil
}

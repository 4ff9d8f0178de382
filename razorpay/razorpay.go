// Package razorpay is a client for the Razorpay REST API and the parser of
// its signed webhooks.
package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deepakselfhelp/deepak-payments/payments"
	"go.vocdoni.io/dvote/log"
)

const (
	// DefaultAPIURL is the Razorpay v1 API base URL.
	DefaultAPIURL = "https://api.razorpay.com/v1"
	// ProviderName is the name used in errors and notifications.
	ProviderName = "Razorpay"
	// Currency of every Razorpay amount handled here.
	Currency = "INR"
	// DefaultTotalCount is the number of billing cycles of a subscription.
	DefaultTotalCount = 400

	httpClientTimeout = 30 * time.Second
)

// Config holds the Razorpay client settings.
type Config struct {
	KeyID     string
	KeySecret string
	// WebhookSecret signs the webhooks. It defaults to KeySecret.
	WebhookSecret string
	// PlanID is the plan of the subscriptions created by StartSubscription.
	PlanID string
	// Product is the description stored in the subscription notes.
	Product string
	APIURL  string
}

// Client is a Razorpay API client authenticated with HTTP Basic auth.
type Client struct {
	keyID         string
	keySecret     string
	webhookSecret string
	planID        string
	product       string
	baseURL       string
	client        *http.Client
}

// New returns a Client. An empty APIURL selects DefaultAPIURL.
func New(conf *Config) (*Client, error) {
	if conf == nil || conf.KeyID == "" || conf.KeySecret == "" {
		return nil, fmt.Errorf("missing razorpay key id or secret")
	}
	baseURL := conf.APIURL
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	webhookSecret := conf.WebhookSecret
	if webhookSecret == "" {
		webhookSecret = conf.KeySecret
	}
	return &Client{
		keyID:         conf.KeyID,
		keySecret:     conf.KeySecret,
		webhookSecret: webhookSecret,
		planID:        conf.PlanID,
		product:       conf.Product,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: httpClientTimeout,
		},
	}, nil
}

// KeyID returns the public key id, handed to the checkout page.
func (c *Client) KeyID() string {
	return c.keyID
}

// apiError is the error envelope of a Razorpay response.
type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &payments.ProviderError{
			Provider: ProviderName,
			Code:     "request_failed",
			Message:  fmt.Sprintf("%s %s", method, path),
			Err:      err,
		}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("error closing razorpay response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		perr := &payments.ProviderError{
			Provider:   ProviderName,
			StatusCode: resp.StatusCode,
			Code:       http.StatusText(resp.StatusCode),
			Message:    string(body),
		}
		var apiErr apiError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Code != "" {
			perr.Code = apiErr.Error.Code
			perr.Message = apiErr.Error.Description
		}
		return perr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// FormatPaise renders an amount in paise as a rupee decimal, 69900 as
// "699.00".
func FormatPaise(paise int64) string {
	sign := ""
	if paise < 0 {
		sign, paise = "-", -paise
	}
	return fmt.Sprintf("%s%d.%02d", sign, paise/100, paise%100)
}

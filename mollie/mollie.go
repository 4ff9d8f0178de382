// Package mollie is a client for the Mollie payments REST API covering the
// calls used by the webhook processor and the checkout endpoints.
package mollie

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultAPIURL is the Mollie v2 API base URL.
	DefaultAPIURL = "https://api.mollie.com/v2"
	// ProviderName is the name used in errors and notifications.
	ProviderName = "Mollie"
	// WebhookPath is the path of the webhook route, appended to the public URL.
	WebhookPath = "/api/mollie/webhook"
	// SubscriptionPath is the path of the internal subscription route.
	SubscriptionPath = "/api/mollie/subscription"
	// SuccessPage is the page the customer is redirected to after checkout.
	SuccessPage = "/success.html"

	httpClientTimeout = 30 * time.Second
)

// Config holds the Mollie client settings.
type Config struct {
	APIKey string
	APIURL string
	// PublicURL is the externally reachable base URL of this service, used
	// to build redirect and webhook URLs.
	PublicURL string
}

// Client is a Mollie API client.
type Client struct {
	apiKey    string
	baseURL   string
	publicURL string
	client    *http.Client
}

// New returns a Client. An empty APIURL selects DefaultAPIURL.
func New(conf *Config) (*Client, error) {
	if conf == nil || conf.APIKey == "" {
		return nil, fmt.Errorf("missing mollie api key")
	}
	baseURL := conf.APIURL
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		apiKey:    conf.APIKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		publicURL: strings.TrimSuffix(conf.PublicURL, "/"),
		client: &http.Client{
			Timeout: httpClientTimeout,
		},
	}, nil
}

// WebhookURL returns the webhook URL registered on payments and
// subscriptions, or an empty string when no public URL is configured.
func (c *Client) WebhookURL() string {
	if c.publicURL == "" {
		return ""
	}
	return c.publicURL + WebhookPath
}

// RedirectURL returns the checkout success page.
func (c *Client) RedirectURL() string {
	return c.publicURL + SuccessPage
}

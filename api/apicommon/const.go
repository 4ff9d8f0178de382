// Package apicommon provides common constants and helper functions for the API.
package apicommon

// MaxBodyBytes bounds every request body read by the handlers. Provider
// webhooks are a few hundred bytes.
const MaxBodyBytes = int64(65536)

// Request headers logged for delivery diagnostics.
const (
	MollieRequestIDHeader = "X-Mollie-Request-Id"
	ForwardedForHeader    = "X-Forwarded-For"
)

// Plain text answers for webhook deliveries. Providers only look at the
// status code.
const (
	WebhookOK        = "OK"
	WebhookDuplicate = "Duplicate ignored"
)

package payments

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingIdentifier is returned when a callback carries no id,
	// paymentId or resourceId.
	ErrMissingIdentifier = errors.New("missing payment identifier")
	// ErrMalformedCallback is returned when the callback body cannot be
	// parsed at all.
	ErrMalformedCallback = errors.New("malformed callback body")
	// ErrUpstreamFetch is returned when the canonical payment cannot be
	// fetched from the provider.
	ErrUpstreamFetch = errors.New("could not fetch payment from provider")
	// ErrInvalidSignature is returned by providers that sign webhooks when
	// the signature does not match the body.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// ParseError is returned by the callback parsers.
type ParseError struct {
	Err    error
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Detail)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FetchError wraps the provider failure when resolving a payment by id.
type FetchError struct {
	ID  string
	Err error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s returned no record", ErrUpstreamFetch, e.ID)
	}
	return fmt.Sprintf("%s: %s: %v", ErrUpstreamFetch, e.ID, e.Err)
}

// Is makes errors.Is(err, ErrUpstreamFetch) match.
func (e *FetchError) Is(target error) bool {
	return target == ErrUpstreamFetch
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ProviderError is returned by the provider clients when the upstream API
// answers with an error or cannot be reached.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s error [%d %s]: %s", e.Provider, e.StatusCode, e.Code, e.Message)
	if e.Err != nil {
		return fmt.Sprintf("%s - %v", msg, e.Err)
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the same request may succeed later: the provider
// was unreachable, rate limited or failed internally.
func (e *ProviderError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

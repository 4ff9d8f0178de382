// Package errors provides the HTTP error type returned by the payment
// handlers and the table of error definitions.
//
//nolint:lll
package errors

import (
	"fmt"
	"net/http"
)

// Error codes in the 40001-49999 range are the caller's fault (usually the
// payment provider delivering a malformed or unauthenticated webhook) and
// return HTTP 4xx. Error codes 50001-59999 are the server's fault.
//
// NEVER change any of the current error codes, only append new errors after
// the current last 4XXXX or 5XXXX. Gaps are retired codes and must not be
// reused.
//
// Providers retry any non-2xx answer, so only requests that can never succeed
// (missing id, bad signature, unparsable body) are answered with 4xx.
var (
	// Webhook validation errors (400)
	ErrMissingIdentifier = Error{Code: 40001, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("missing payment identifier"), LogLevel: "warn"}
	ErrInvalidSignature  = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid webhook signature"), LogLevel: "warn"}
	ErrUpstreamFetch     = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("could not fetch payment from provider"), LogLevel: "warn"}
	ErrMalformedBody     = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid request body")}
	ErrInvalidData       = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid data provided")}

	// Method errors (405)
	ErrMethodNotAllowed = Error{Code: 40501, HTTPstatus: http.StatusMethodNotAllowed, Err: fmt.Errorf("method not allowed")}

	// Not found errors (404)
	ErrRouteNotFound = Error{Code: 40401, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("route not found")}

	// Provider errors (400), the upstream rejected a request built from caller input
	ErrProviderRejected = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("payment provider rejected the request"), LogLevel: "warn"}

	// Server errors (500)
	ErrGenericInternalServerError = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: operation failed"), LogLevel: "error"}
	ErrMarshalingServerJSONFailed = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: failed to process response"), LogLevel: "error"}
	ErrProviderUnavailable        = Error{Code: 50003, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: payment provider request failed"), LogLevel: "error"}
	ErrServiceUnavailable         = Error{Code: 50301, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("service not configured"), LogLevel: "error"}
)

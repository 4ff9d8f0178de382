package api

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/deepakselfhelp/deepak-payments/api/apicommon"
	"github.com/deepakselfhelp/deepak-payments/errors"
	"github.com/deepakselfhelp/deepak-payments/mollie"
	"github.com/deepakselfhelp/deepak-payments/payments"
	"github.com/deepakselfhelp/deepak-payments/razorpay"
	"go.vocdoni.io/dvote/log"
)

// readBody reads the bounded request body. It writes the error response and
// returns false on failure.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, apicommon.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		errors.ErrMalformedBody.WithErr(err).Write(w)
		return nil, false
	}
	return body, true
}

// mollieWebhookHandler handles the Mollie payment status webhook. Mollie
// posts the payment id (form encoded or JSON) and expects a 2xx answer once
// the delivery is accepted; any other status is retried.
func (a *API) mollieWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if a.mollieProcessor == nil {
		errors.ErrServiceUnavailable.With("mollie").Write(w)
		return
	}
	log.Debugw("mollie webhook received",
		"requestId", r.Header.Get(apicommon.MollieRequestIDHeader),
		"forwardedFor", r.Header.Get(apicommon.ForwardedForHeader))

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	cb, err := payments.ParseCallback(r.Header.Get("Content-Type"), body)
	if err != nil {
		writeProcessError(w, err)
		return
	}
	a.store(r.Context(), mollie.ProviderName, cb.ID, body)
	a.process(w, r, a.mollieProcessor, cb)
}

// razorpayWebhookHandler handles the Razorpay event webhook. The signature
// is checked against the raw body before anything else is done with it.
func (a *API) razorpayWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if a.razorpay == nil || a.razorpayProcessor == nil {
		errors.ErrServiceUnavailable.With("razorpay").Write(w)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := a.razorpay.VerifyWebhook(body, r.Header.Get(razorpay.SignatureHeader)); err != nil {
		errors.ErrInvalidSignature.Write(w)
		return
	}
	cb, err := razorpay.ParseWebhook(body)
	if err != nil {
		writeProcessError(w, err)
		return
	}
	if eventID := r.Header.Get(razorpay.EventIDHeader); eventID != "" {
		cb.DeliveryID = eventID
	}
	a.store(r.Context(), razorpay.ProviderName, cb.ID, body)
	a.process(w, r, a.razorpayProcessor, cb)
}

// process runs the callback through the processor and answers the provider.
func (a *API) process(w http.ResponseWriter, r *http.Request, p EventProcessor, cb *payments.Callback) {
	res, err := p.Process(r.Context(), cb)
	if err != nil {
		writeProcessError(w, err)
		return
	}
	if res.Duplicate {
		apicommon.HTTPWriteOK(w, apicommon.WebhookDuplicate)
		return
	}
	log.Infow("webhook processed", "id", res.ID, "case", res.Case, "oneTime", res.OneTime)
	apicommon.HTTPWriteOK(w, apicommon.WebhookOK)
}

// store archives the raw delivery. Archive failures never fail the webhook.
func (a *API) store(ctx context.Context, provider, id string, body []byte) {
	if a.archive == nil {
		return
	}
	key, err := a.archive.Store(ctx, provider, id, body)
	if err != nil {
		log.Warnw("failed to archive webhook payload", "provider", provider, "id", id, "error", err)
		return
	}
	log.Debugw("webhook payload archived", "provider", provider, "id", id, "key", key)
}

// writeProcessError maps parsing and processing errors to the HTTP error
// table.
func writeProcessError(w http.ResponseWriter, err error) {
	var fetchErr *payments.FetchError
	switch {
	case stderrors.Is(err, payments.ErrMissingIdentifier):
		errors.ErrMissingIdentifier.Write(w)
	case stderrors.Is(err, payments.ErrInvalidSignature):
		errors.ErrInvalidSignature.Write(w)
	case stderrors.As(err, &fetchErr):
		errors.ErrUpstreamFetch.With(fetchErr.ID).WithData(fetchDetails(fetchErr)).Write(w)
	case stderrors.Is(err, payments.ErrMalformedCallback):
		errors.ErrMalformedBody.WithErr(err).Write(w)
	default:
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
	}
}

// fetchDetails echoes what the provider answered when the payment could not
// be fetched.
func fetchDetails(err *payments.FetchError) map[string]any {
	details := map[string]any{"id": err.ID}
	var provErr *payments.ProviderError
	if stderrors.As(err, &provErr) {
		details["provider"] = provErr.Provider
		details["status"] = provErr.StatusCode
		details["code"] = provErr.Code
		details["message"] = provErr.Message
		return details
	}
	if err.Err != nil {
		details["message"] = err.Err.Error()
	}
	return details
}

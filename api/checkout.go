package api

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/deepakselfhelp/deepak-payments/api/apicommon"
	"github.com/deepakselfhelp/deepak-payments/errors"
	"github.com/deepakselfhelp/deepak-payments/internal"
	"github.com/deepakselfhelp/deepak-payments/mollie"
	"github.com/deepakselfhelp/deepak-payments/payments"
	"github.com/deepakselfhelp/deepak-payments/razorpay"
	"go.vocdoni.io/dvote/log"
)

// mollieInitialPaymentHandler creates the customer and the first (or one-off)
// payment of a plan and returns the hosted checkout URL.
func (a *API) mollieInitialPaymentHandler(w http.ResponseWriter, r *http.Request) {
	if a.mollie == nil {
		errors.ErrServiceUnavailable.With("mollie").Write(w)
		return
	}
	req := &mollie.CheckoutRequest{}
	if !a.validator.Decode(w, r, req) {
		return
	}
	if err := req.Validate(); err != nil {
		errors.ErrInvalidData.WithErr(err).Write(w)
		return
	}
	checkout, err := a.mollie.StartCheckout(r.Context(), req)
	if err != nil {
		writeProviderError(w, err)
		return
	}
	apicommon.HTTPWriteJSON(w, checkout)
}

// mollieSubscriptionHandler creates a monthly subscription charged on the
// customer's mandate.
func (a *API) mollieSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	if a.mollie == nil {
		errors.ErrServiceUnavailable.With("mollie").Write(w)
		return
	}
	req := &mollie.SubscriptionEndpointRequest{}
	if !a.validator.Decode(w, r, req) {
		return
	}
	value, err := mollie.FormatAmount(req.Amount)
	if err != nil {
		errors.ErrInvalidData.WithErr(err).Write(w)
		return
	}
	amount := payments.Amount{Value: value, Currency: strings.ToUpper(req.Currency)}
	amount.Currency = amount.CurrencyOrDefault()
	description := req.Description
	if description == "" {
		description = "Subscription"
	}
	sub, err := a.mollie.CreateSubscription(r.Context(), &payments.SubscriptionRequest{
		CustomerID:  req.CustomerID,
		Amount:      amount,
		Interval:    payments.SubscriptionInterval,
		Description: description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		writeProviderError(w, err)
		return
	}
	log.Infow("mollie subscription created", "customer", req.CustomerID, "subscription", sub.ID)
	apicommon.HTTPWriteJSON(w, &mollie.SubscriptionEndpointResponse{
		ID:     sub.ID,
		Status: sub.Status,
	})
}

// razorpaySubscriptionHandler creates a plan subscription and returns what
// the checkout modal needs.
func (a *API) razorpaySubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	if a.razorpay == nil {
		errors.ErrServiceUnavailable.With("razorpay").Write(w)
		return
	}
	req := &razorpay.SubscriptionCheckout{}
	if !a.validator.Decode(w, r, req) {
		return
	}
	if req.Phone != "" {
		phone, err := internal.SanitizePhoneNumber(req.Phone, "")
		if err != nil {
			errors.ErrInvalidData.WithErr(err).Write(w)
			return
		}
		req.Phone = phone
	}
	resp, err := a.razorpay.StartSubscription(r.Context(), req)
	if err != nil {
		writeProviderError(w, err)
		return
	}
	apicommon.HTTPWriteJSON(w, resp)
}

// writeProviderError answers 500 when the provider is unavailable and 400
// when it rejected the request built from the caller's input.
func writeProviderError(w http.ResponseWriter, err error) {
	var provErr *payments.ProviderError
	if !stderrors.As(err, &provErr) {
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	data := map[string]any{
		"provider": provErr.Provider,
		"status":   provErr.StatusCode,
		"code":     provErr.Code,
	}
	if provErr.Temporary() {
		errors.ErrProviderUnavailable.WithErr(err).WithData(data).Write(w)
		return
	}
	errors.ErrProviderRejected.With(provErr.Message).WithData(data).Write(w)
}

package api

import (
	"github.com/deepakselfhelp/deepak-payments/mollie"
)

const (
	// ping route
	pingEndpoint = "/ping"

	// mollie routes
	mollieWebhookEndpoint        = mollie.WebhookPath
	mollieInitialPaymentEndpoint = "/api/mollie/initial-payment"
	mollieSubscriptionEndpoint   = mollie.SubscriptionPath

	// razorpay routes
	razorpayWebhookEndpoint      = "/api/razorpay/webhook"
	razorpaySubscriptionEndpoint = "/api/razorpay/subscription"
)

// Package api provides the HTTP API of the payments service: the provider
// webhooks and the checkout routes used by the payment pages.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deepakselfhelp/deepak-payments/errors"
	"github.com/deepakselfhelp/deepak-payments/mollie"
	"github.com/deepakselfhelp/deepak-payments/payments"
	"github.com/deepakselfhelp/deepak-payments/razorpay"
	"github.com/deepakselfhelp/deepak-payments/validator"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.vocdoni.io/dvote/log"
)

// requestTimeout bounds the checkout routes and the webhook routes when no
// longer WebhookTimeout is configured.
const requestTimeout = 45 * time.Second

// EventProcessor handles a parsed webhook callback.
type EventProcessor interface {
	Process(ctx context.Context, cb *payments.Callback) (*payments.Result, error)
}

// PayloadArchive stores raw webhook bodies.
type PayloadArchive interface {
	Store(ctx context.Context, provider, id string, body []byte) (string, error)
}

// MollieService is the part of the Mollie client used by the checkout
// routes.
type MollieService interface {
	StartCheckout(ctx context.Context, r *mollie.CheckoutRequest) (*mollie.Checkout, error)
	CreateSubscription(ctx context.Context, req *payments.SubscriptionRequest) (*payments.Subscription, error)
}

// RazorpayService is the part of the Razorpay client used by the API.
type RazorpayService interface {
	VerifyWebhook(body []byte, signature string) error
	StartSubscription(ctx context.Context,
		r *razorpay.SubscriptionCheckout) (*razorpay.SubscriptionCheckoutResponse, error)
}

// Config holds the API dependencies. A provider whose service is nil has its
// routes answered with ErrServiceUnavailable. Archive is optional.
// WebhookTimeout must cover an inline activation.
type Config struct {
	Host              string
	Port              int
	WebhookTimeout    time.Duration
	Mollie            MollieService
	MollieProcessor   EventProcessor
	Razorpay          RazorpayService
	RazorpayProcessor EventProcessor
	Archive           PayloadArchive
}

// API type represents the API HTTP server.
type API struct {
	host              string
	port              int
	mollie            MollieService
	mollieProcessor   EventProcessor
	razorpay          RazorpayService
	razorpayProcessor EventProcessor
	archive           PayloadArchive
	webhookTimeout    time.Duration
	validator         *validator.Validator
	server            *http.Server
}

// New creates a new API HTTP server. It does not start the server. Use Start() for that.
func New(conf *Config) *API {
	if conf == nil {
		return nil
	}
	webhookTimeout := conf.WebhookTimeout
	if webhookTimeout < requestTimeout {
		webhookTimeout = requestTimeout
	}
	return &API{
		host:              conf.Host,
		port:              conf.Port,
		mollie:            conf.Mollie,
		mollieProcessor:   conf.MollieProcessor,
		razorpay:          conf.Razorpay,
		razorpayProcessor: conf.RazorpayProcessor,
		archive:           conf.Archive,
		webhookTimeout:    webhookTimeout,
		validator:         validator.New(),
	}
}

// Start starts the API HTTP server (non blocking).
func (a *API) Start() {
	a.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.host, a.port),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for the in-flight ones.
func (a *API) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Router creates the router with all the routes and middleware.
func (a *API) Router() http.Handler {
	// Create the router with a basic middleware stack
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300, // Maximum value not ignored by any of major browsers
	}).Handler)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Throttle(100))
	r.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		errors.ErrMethodNotAllowed.Withf("%s %s", r.Method, r.URL.Path).Write(w)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errors.ErrRouteNotFound.With(r.URL.Path).Write(w)
	})

	// ping
	log.Infow("new route", "method", "GET", "path", pingEndpoint)
	r.Get(pingEndpoint, func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte(".")); err != nil {
			log.Warnw("failed to write ping response", "error", err)
		}
	})
	// WEBHOOK ROUTES
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(a.webhookTimeout))
		// mollie payment status webhook
		log.Infow("new route", "method", "POST", "path", mollieWebhookEndpoint, "timeout", a.webhookTimeout)
		r.Post(mollieWebhookEndpoint, a.mollieWebhookHandler)
		// razorpay signed event webhook
		log.Infow("new route", "method", "POST", "path", razorpayWebhookEndpoint, "timeout", a.webhookTimeout)
		r.Post(razorpayWebhookEndpoint, a.razorpayWebhookHandler)
	})
	// CHECKOUT ROUTES
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		// create customer and initial payment
		log.Infow("new route", "method", "POST", "path", mollieInitialPaymentEndpoint)
		r.Post(mollieInitialPaymentEndpoint, a.mollieInitialPaymentHandler)
		// create a subscription on an existing mandate
		log.Infow("new route", "method", "POST", "path", mollieSubscriptionEndpoint)
		r.Post(mollieSubscriptionEndpoint, a.mollieSubscriptionHandler)
		// create a razorpay plan subscription
		log.Infow("new route", "method", "POST", "path", razorpaySubscriptionEndpoint)
		r.Post(razorpaySubscriptionEndpoint, a.razorpaySubscriptionHandler)
	})

	return r
}

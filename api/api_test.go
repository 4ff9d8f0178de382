package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deepakselfhelp/deepak-payments/dedup"
	"github.com/deepakselfhelp/deepak-payments/mollie"
	"github.com/deepakselfhelp/deepak-payments/notifications"
	"github.com/deepakselfhelp/deepak-payments/payments"
	"github.com/deepakselfhelp/deepak-payments/razorpay"
	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/log"
)

const testWebhookSecret = "whsec_test"

func TestMain(m *testing.M) {
	log.Init("debug", "stdout", nil)
	os.Exit(m.Run())
}

// fakeGateway serves payments by id and records every outbound call.
type fakeGateway struct {
	mu         sync.Mutex
	payments   map[string]*payments.PaymentEvent
	paymentErr error
	calls      []string
}

func (g *fakeGateway) record(call string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
}

func (g *fakeGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) Payment(_ context.Context, id string) (*payments.PaymentEvent, error) {
	g.record("fetch:" + id)
	if g.paymentErr != nil {
		return nil, g.paymentErr
	}
	ev, ok := g.payments[id]
	if !ok {
		return nil, &payments.ProviderError{Provider: "Mollie", StatusCode: http.StatusNotFound, Code: "not_found"}
	}
	cp := *ev
	return &cp, nil
}

func (g *fakeGateway) CreateSubscription(context.Context, *payments.SubscriptionRequest) (*payments.Subscription, error) {
	g.record("create")
	return &payments.Subscription{ID: "sub_1", Status: "active"}, nil
}

func (g *fakeGateway) Mandates(context.Context, string) ([]payments.Mandate, error) {
	g.record("mandates")
	return []payments.Mandate{{ID: "mdt_1", Status: payments.MandateValid}}, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []*notifications.Notification
}

func (n *fakeNotifier) SendNotification(_ context.Context, notification *notifications.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

func (n *fakeNotifier) Subjects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	subjects := []string{}
	for _, s := range n.sent {
		subjects = append(subjects, s.Subject)
	}
	return subjects
}

type fakeMollie struct {
	mu          sync.Mutex
	checkoutErr error
	subErr      error
	subRequests []*payments.SubscriptionRequest
}

func (m *fakeMollie) StartCheckout(_ context.Context, r *mollie.CheckoutRequest) (*mollie.Checkout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checkoutErr != nil {
		return nil, m.checkoutErr
	}
	return &mollie.Checkout{
		CustomerID:  "cst_1",
		PaymentID:   "tr_1",
		CheckoutURL: "https://pay.example.com/" + r.PlanType,
	}, nil
}

func (m *fakeMollie) CreateSubscription(_ context.Context,
	req *payments.SubscriptionRequest,
) (*payments.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subRequests = append(m.subRequests, req)
	if m.subErr != nil {
		return nil, m.subErr
	}
	return &payments.Subscription{ID: "sub_1", Status: "active"}, nil
}

func (m *fakeMollie) Requests() []*payments.SubscriptionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*payments.SubscriptionRequest(nil), m.subRequests...)
}

func (m *fakeMollie) failCheckout(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkoutErr = err
}

type fakeRazorpay struct{}

func (fakeRazorpay) VerifyWebhook(body []byte, signature string) error {
	if !razorpay.VerifySignature(body, signature, testWebhookSecret) {
		return payments.ErrInvalidSignature
	}
	return nil
}

func (fakeRazorpay) StartSubscription(_ context.Context,
	r *razorpay.SubscriptionCheckout,
) (*razorpay.SubscriptionCheckoutResponse, error) {
	return &razorpay.SubscriptionCheckoutResponse{
		ID:      "sub_rzp_1",
		Key:     "rzp_test",
		Name:    r.Name,
		Email:   r.Email,
		Phone:   r.Phone,
		Product: "Coaching",
		Message: "Subscription created successfully.",
	}, nil
}

type fakeArchive struct {
	mu     sync.Mutex
	stored []string
}

func (a *fakeArchive) Store(_ context.Context, provider, id string, _ []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stored = append(a.stored, provider+"/"+id)
	return provider + "/" + id, nil
}

func (a *fakeArchive) Stored() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.stored...)
}

type testEnv struct {
	server   *httptest.Server
	gateway  *fakeGateway
	notifier *fakeNotifier
	mollie   *fakeMollie
	archive  *fakeArchive
}

func noSleep(context.Context, time.Duration) error { return nil }

// newTestEnv starts the API with inline processors on fake providers.
func newTestEnv(c *qt.C) *testEnv {
	ctx, cancel := context.WithCancel(context.Background())
	c.Cleanup(cancel)

	env := &testEnv{
		gateway:  &fakeGateway{payments: map[string]*payments.PaymentEvent{}},
		notifier: &fakeNotifier{},
		mollie:   &fakeMollie{},
		archive:  &fakeArchive{},
	}
	newProcessor := func(provider string, signed bool) *payments.Processor {
		p, err := payments.NewProcessor(&payments.ProcessorConfig{
			Provider:      provider,
			Gateway:       env.gateway,
			Notifier:      env.notifier,
			Dedup:         dedup.NewMemoryCache(ctx, time.Minute),
			Workflow:      payments.NewWorkflow(env.gateway, &payments.FixedDelay{}, nil, noSleep),
			TrustEmbedded: signed,
		})
		c.Assert(err, qt.IsNil)
		return p
	}
	a := New(&Config{
		Mollie:            env.mollie,
		MollieProcessor:   newProcessor(mollie.ProviderName, false),
		Razorpay:          fakeRazorpay{},
		RazorpayProcessor: newProcessor(razorpay.ProviderName, true),
		Archive:           env.archive,
	})
	env.server = httptest.NewServer(a.Router())
	c.Cleanup(env.server.Close)
	return env
}

func (env *testEnv) post(c *qt.C, path, contentType string, body []byte, headers map[string]string) (int, []byte) {
	req, err := http.NewRequest(http.MethodPost, env.server.URL+path, bytes.NewReader(body))
	c.Assert(err, qt.IsNil)
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return env.do(c, req)
}

func (env *testEnv) do(c *qt.C, req *http.Request) (int, []byte) {
	resp, err := env.server.Client().Do(req)
	c.Assert(err, qt.IsNil)
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.Logf("failed to close response body: %v", err)
		}
	}()
	data, err := io.ReadAll(resp.Body)
	c.Assert(err, qt.IsNil)
	return resp.StatusCode, data
}

// errorCode extracts the code of an errors.Error response body.
func errorCode(c *qt.C, body []byte) int {
	var e struct {
		Code int `json:"code"`
	}
	c.Assert(json.Unmarshal(body, &e), qt.IsNil, qt.Commentf("body: %s", body))
	return e.Code
}

// mustMarshal helper function marshalls the input interface into a byte slice.
// It panics if the marshalling fails.
func mustMarshal(i any) []byte {
	b, err := json.Marshal(i)
	if err != nil {
		panic(err)
	}
	return b
}

func TestPing(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+pingEndpoint, nil)
	c.Assert(err, qt.IsNil)
	status, body := env.do(c, req)
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(string(body), qt.Equals, ".")
}

func TestRouting(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c)

	c.Run("webhook only accepts POST", func(c *qt.C) {
		for _, path := range []string{mollieWebhookEndpoint, razorpayWebhookEndpoint} {
			req, err := http.NewRequest(http.MethodGet, env.server.URL+path, nil)
			c.Assert(err, qt.IsNil)
			status, body := env.do(c, req)
			c.Assert(status, qt.Equals, http.StatusMethodNotAllowed)
			c.Assert(errorCode(c, body), qt.Equals, 40501)
		}
		c.Assert(env.gateway.Calls(), qt.HasLen, 0)
	})

	c.Run("unknown route", func(c *qt.C) {
		status, body := env.post(c, "/api/stripe/webhook", "application/json", []byte(`{}`), nil)
		c.Assert(status, qt.Equals, http.StatusNotFound)
		c.Assert(errorCode(c, body), qt.Equals, 40401)
	})
}

func TestMollieWebhook(t *testing.T) {
	c := qt.New(t)

	c.Run("missing identifier", func(c *qt.C) {
		env := newTestEnv(c)
		for _, body := range []string{"", "id=", `{"foo":"bar"}`} {
			status, resp := env.post(c, mollieWebhookEndpoint, "application/x-www-form-urlencoded", []byte(body), nil)
			c.Assert(status, qt.Equals, http.StatusBadRequest, qt.Commentf("body %q", body))
			c.Assert(errorCode(c, resp), qt.Equals, 40001)
		}
		c.Assert(env.gateway.Calls(), qt.HasLen, 0)
		c.Assert(env.notifier.Subjects(), qt.HasLen, 0)
	})

	c.Run("recurring initial payment", func(c *qt.C) {
		env := newTestEnv(c)
		env.gateway.payments["tr_1"] = &payments.PaymentEvent{
			ID:           "tr_1",
			Provider:     mollie.ProviderName,
			Resource:     payments.ResourcePayment,
			Status:       payments.StatusPaid,
			SequenceType: payments.SequenceFirst,
			Amount:       payments.Amount{Value: "99.00", Currency: "EUR"},
			CustomerID:   "cst_1",
			Metadata: payments.Metadata{
				Name:            "Ada",
				Email:           "ada@example.com",
				PlanType:        "Gold",
				RecurringAmount: "49.00",
			},
		}
		headers := map[string]string{"X-Mollie-Request-Id": "req_1"}

		status, body := env.post(c, mollieWebhookEndpoint, "application/x-www-form-urlencoded",
			[]byte("id=tr_1"), headers)
		c.Assert(status, qt.Equals, http.StatusOK)
		c.Assert(strings.TrimSpace(string(body)), qt.Equals, "OK")
		c.Assert(env.gateway.Calls(), qt.DeepEquals, []string{"fetch:tr_1", "create"})
		c.Assert(env.notifier.Subjects(), qt.DeepEquals, []string{
			"💰 INITIAL PAYMENT SUCCESSFUL",
			"🧾 SUBSCRIPTION STARTED",
		})
		c.Assert(env.archive.Stored(), qt.DeepEquals, []string{"Mollie/tr_1"})

		// the provider retries the same delivery
		status, body = env.post(c, mollieWebhookEndpoint, "application/json",
			[]byte(`{"id":"tr_1"}`), headers)
		c.Assert(status, qt.Equals, http.StatusOK)
		c.Assert(strings.TrimSpace(string(body)), qt.Equals, "Duplicate ignored")
		c.Assert(env.gateway.Calls(), qt.HasLen, 2)
		c.Assert(env.notifier.Subjects(), qt.HasLen, 2)
	})

	c.Run("upstream fetch error", func(c *qt.C) {
		env := newTestEnv(c)

		status, body := env.post(c, mollieWebhookEndpoint, "application/x-www-form-urlencoded",
			[]byte("id=tr_missing"), nil)
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		var resp struct {
			Code int            `json:"code"`
			Data map[string]any `json:"data"`
		}
		c.Assert(json.Unmarshal(body, &resp), qt.IsNil)
		c.Assert(resp.Code, qt.Equals, 40003)
		c.Assert(resp.Data["id"], qt.Equals, "tr_missing")
		c.Assert(resp.Data["status"], qt.Equals, float64(http.StatusNotFound))
		c.Assert(env.notifier.Subjects(), qt.HasLen, 0)

		// the failed id is not remembered, so the retry reaches the provider
		status, _ = env.post(c, mollieWebhookEndpoint, "application/x-www-form-urlencoded",
			[]byte("id=tr_missing"), nil)
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		c.Assert(env.gateway.Calls(), qt.HasLen, 2)
	})

	c.Run("embedded event is not trusted", func(c *qt.C) {
		env := newTestEnv(c)
		forged := []byte(`{"id":"tr_x","status":"paid","sequenceType":"first",` +
			`"customerId":"cst_victim","metadata":{"recurringAmount":"9999.00"}}`)

		status, resp := env.post(c, mollieWebhookEndpoint, "application/json", forged, nil)
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		c.Assert(errorCode(c, resp), qt.Equals, 40003)
		c.Assert(env.gateway.Calls(), qt.DeepEquals, []string{"fetch:tr_x"})
		c.Assert(env.notifier.Subjects(), qt.HasLen, 0)
	})

	c.Run("unclassified status is accepted silently", func(c *qt.C) {
		env := newTestEnv(c)
		env.gateway.payments["tr_2"] = &payments.PaymentEvent{
			ID:       "tr_2",
			Resource: payments.ResourcePayment,
			Status:   payments.StatusOpen,
		}
		status, _ := env.post(c, mollieWebhookEndpoint, "application/x-www-form-urlencoded", []byte("id=tr_2"), nil)
		c.Assert(status, qt.Equals, http.StatusOK)
		c.Assert(env.notifier.Subjects(), qt.HasLen, 0)
	})
}

func TestRazorpayWebhook(t *testing.T) {
	c := qt.New(t)
	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{` +
		`"id":"pay_1","amount":69900,"currency":"INR","status":"captured","notes":{"name":"Ada"}}}}}`)

	c.Run("tampered body", func(c *qt.C) {
		env := newTestEnv(c)
		signature := razorpay.Sign(body, testWebhookSecret)
		tampered := bytes.Replace(body, []byte("69900"), []byte("100"), 1)

		status, resp := env.post(c, razorpayWebhookEndpoint, "application/json", tampered,
			map[string]string{razorpay.SignatureHeader: signature})
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		c.Assert(errorCode(c, resp), qt.Equals, 40002)
		c.Assert(env.notifier.Subjects(), qt.HasLen, 0)
		c.Assert(env.archive.Stored(), qt.HasLen, 0)
	})

	c.Run("missing signature", func(c *qt.C) {
		env := newTestEnv(c)
		status, resp := env.post(c, razorpayWebhookEndpoint, "application/json", body, nil)
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		c.Assert(errorCode(c, resp), qt.Equals, 40002)
	})

	c.Run("captured payment", func(c *qt.C) {
		env := newTestEnv(c)
		status, resp := env.post(c, razorpayWebhookEndpoint, "application/json", body,
			map[string]string{razorpay.SignatureHeader: razorpay.Sign(body, testWebhookSecret)})
		c.Assert(status, qt.Equals, http.StatusOK)
		c.Assert(strings.TrimSpace(string(resp)), qt.Equals, "OK")
		c.Assert(env.notifier.Subjects(), qt.DeepEquals, []string{"✅ ONE-TIME PAYMENT RECEIVED"})
		// the event is embedded in the webhook, nothing is fetched
		c.Assert(env.gateway.Calls(), qt.HasLen, 0)
		c.Assert(env.archive.Stored(), qt.DeepEquals, []string{"Razorpay/pay_1"})
	})

	c.Run("captured and charged events of one payment", func(c *qt.C) {
		env := newTestEnv(c)
		charged := []byte(`{"event":"subscription.charged","payload":{"payment":{"entity":{` +
			`"id":"pay_1","amount":69900,"currency":"INR","status":"captured","notes":{"name":"Ada"}}}}}`)
		for _, b := range [][]byte{body, charged} {
			status, resp := env.post(c, razorpayWebhookEndpoint, "application/json", b,
				map[string]string{razorpay.SignatureHeader: razorpay.Sign(b, testWebhookSecret)})
			c.Assert(status, qt.Equals, http.StatusOK)
			c.Assert(strings.TrimSpace(string(resp)), qt.Equals, "OK")
		}
		c.Assert(env.notifier.Subjects(), qt.DeepEquals, []string{
			"✅ ONE-TIME PAYMENT RECEIVED",
			"🔁 RENEWAL CHARGED",
		})
	})

	c.Run("redelivered event id", func(c *qt.C) {
		env := newTestEnv(c)
		headers := map[string]string{
			razorpay.SignatureHeader: razorpay.Sign(body, testWebhookSecret),
			razorpay.EventIDHeader:   "evt_1",
		}
		status, resp := env.post(c, razorpayWebhookEndpoint, "application/json", body, headers)
		c.Assert(status, qt.Equals, http.StatusOK)
		c.Assert(strings.TrimSpace(string(resp)), qt.Equals, "OK")
		status, resp = env.post(c, razorpayWebhookEndpoint, "application/json", body, headers)
		c.Assert(status, qt.Equals, http.StatusOK)
		c.Assert(strings.TrimSpace(string(resp)), qt.Equals, "Duplicate ignored")
		c.Assert(env.notifier.Subjects(), qt.HasLen, 1)
	})

	c.Run("signed but malformed", func(c *qt.C) {
		env := newTestEnv(c)
		bad := []byte(`{"event":`)
		status, resp := env.post(c, razorpayWebhookEndpoint, "application/json", bad,
			map[string]string{razorpay.SignatureHeader: razorpay.Sign(bad, testWebhookSecret)})
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		c.Assert(errorCode(c, resp), qt.Equals, 40004)
	})
}

func TestMollieInitialPayment(t *testing.T) {
	c := qt.New(t)

	c.Run("checkout url", func(c *qt.C) {
		env := newTestEnv(c)
		status, body := env.post(c, mollieInitialPaymentEndpoint, "application/json", mustMarshal(map[string]string{
			"name":            "Ada",
			"email":           "ada@example.com",
			"initialAmount":   "99",
			"recurringAmount": "49",
			"planType":        "Gold",
		}), nil)
		c.Assert(status, qt.Equals, http.StatusOK)
		checkout := &mollie.Checkout{}
		c.Assert(json.Unmarshal(body, checkout), qt.IsNil)
		c.Assert(checkout.CheckoutURL, qt.Equals, "https://pay.example.com/Gold")
	})

	c.Run("invalid data", func(c *qt.C) {
		env := newTestEnv(c)
		status, body := env.post(c, mollieInitialPaymentEndpoint, "application/json",
			mustMarshal(map[string]string{"name": "Ada", "initialAmount": "99"}), nil)
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		c.Assert(errorCode(c, body), qt.Equals, 40005)

		status, body = env.post(c, mollieInitialPaymentEndpoint, "application/json", []byte(`{"name":`), nil)
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		c.Assert(errorCode(c, body), qt.Equals, 40004)
	})

	c.Run("provider errors", func(c *qt.C) {
		env := newTestEnv(c)
		req := mustMarshal(map[string]string{"name": "Ada", "email": "ada@example.com", "initialAmount": "99"})

		env.mollie.failCheckout(&payments.ProviderError{
			Provider: "Mollie", StatusCode: http.StatusUnprocessableEntity, Code: "amount", Message: "amount too low",
		})
		status, body := env.post(c, mollieInitialPaymentEndpoint, "application/json", req, nil)
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		c.Assert(errorCode(c, body), qt.Equals, 40006)

		env.mollie.failCheckout(&payments.ProviderError{Provider: "Mollie", StatusCode: http.StatusServiceUnavailable})
		status, body = env.post(c, mollieInitialPaymentEndpoint, "application/json", req, nil)
		c.Assert(status, qt.Equals, http.StatusInternalServerError)
		c.Assert(errorCode(c, body), qt.Equals, 50003)
	})
}

func TestMollieSubscription(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c)

	status, body := env.post(c, mollieSubscriptionEndpoint, "application/json", mustMarshal(map[string]any{
		"customerId": "cst_1",
		"amount":     "49",
		"metadata":   map[string]string{"planType": "Gold"},
	}), nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	resp := &mollie.SubscriptionEndpointResponse{}
	c.Assert(json.Unmarshal(body, resp), qt.IsNil)
	c.Assert(resp.ID, qt.Equals, "sub_1")
	c.Assert(env.mollie.Requests(), qt.HasLen, 1)
	req := env.mollie.Requests()[0]
	c.Assert(req.Amount, qt.Equals, payments.Amount{Value: "49.00", Currency: "EUR"})
	c.Assert(req.Interval, qt.Equals, payments.SubscriptionInterval)
	c.Assert(req.Description, qt.Equals, "Subscription")
	c.Assert(req.Metadata["planType"], qt.Equals, "Gold")

	for _, bad := range []map[string]any{
		{"amount": "49"},
		{"customerId": "cst_1", "amount": "abc"},
		{"customerId": "cst_1", "amount": "0"},
	} {
		status, body = env.post(c, mollieSubscriptionEndpoint, "application/json", mustMarshal(bad), nil)
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		c.Assert(errorCode(c, body), qt.Equals, 40005)
	}
	c.Assert(env.mollie.Requests(), qt.HasLen, 1)
}

func TestRazorpaySubscription(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c)

	status, body := env.post(c, razorpaySubscriptionEndpoint, "application/json",
		mustMarshal(map[string]string{"name": "Ada", "email": "ada@example.com", "phone": "98765 43210"}), nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	resp := &razorpay.SubscriptionCheckoutResponse{}
	c.Assert(json.Unmarshal(body, resp), qt.IsNil)
	c.Assert(resp.ID, qt.Equals, "sub_rzp_1")
	c.Assert(resp.Message, qt.Equals, "Subscription created successfully.")
	c.Assert(resp.Phone, qt.Equals, "+919876543210")

	for _, bad := range []map[string]string{
		{"name": "Ada"},
		{"name": "Ada", "email": "ada@example"},
		{"name": "Ada", "email": "ada@example.com", "phone": "12345"},
	} {
		status, body = env.post(c, razorpaySubscriptionEndpoint, "application/json", mustMarshal(bad), nil)
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		c.Assert(errorCode(c, body), qt.Equals, 40005)
	}
}

func TestServiceUnavailable(t *testing.T) {
	c := qt.New(t)
	server := httptest.NewServer(New(&Config{}).Router())
	c.Cleanup(server.Close)

	for _, path := range []string{mollieWebhookEndpoint, razorpayWebhookEndpoint, razorpaySubscriptionEndpoint} {
		resp, err := server.Client().Post(server.URL+path, "application/json", strings.NewReader(`{"id":"x"}`))
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, http.StatusServiceUnavailable)
		c.Assert(resp.Body.Close(), qt.IsNil)
	}
}

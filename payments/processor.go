package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/deepakselfhelp/deepak-payments/notifications"
	"go.vocdoni.io/dvote/log"
)

const (
	// notifyTimeout bounds a single notification send.
	notifyTimeout = 15 * time.Second
)

// ProcessorConfig holds the collaborators of a Processor. Dedup and the
// workflow journal are optional.
type ProcessorConfig struct {
	// Provider is the display name used in notifications, e.g. "Mollie".
	Provider string
	Gateway  Gateway
	Notifier notifications.NotificationService
	Dedup    Deduplicator
	Workflow *Workflow
	// Background detaches activation runs from the webhook request.
	Background bool
	// TrustEmbedded lets an event embedded in the callback stand for the
	// payment. Only set it for providers whose webhooks are signed; otherwise
	// the payment is always fetched from the provider.
	TrustEmbedded bool
	// Location of the timestamps in notifications, Europe/Berlin by default.
	Location *time.Location
}

// Processor resolves, classifies and acts on provider callbacks.
type Processor struct {
	provider      string
	gateway       Gateway
	notifier      notifications.NotificationService
	dedup         Deduplicator
	workflow      *Workflow
	background    bool
	trustEmbedded bool
	location      *time.Location
	now           func() time.Time
	wg            sync.WaitGroup
}

// Result describes what Process did with a callback.
type Result struct {
	ID        string
	Case      Case
	Duplicate bool
	// OneTime is set for a successful payment without a follow up
	// subscription.
	OneTime bool
	// Activation is the finished run of an inline activation, or the
	// AwaitingMandate snapshot of a background one.
	Activation *Activation
}

// NewProcessor validates the configuration and returns a Processor.
func NewProcessor(conf *ProcessorConfig) (*Processor, error) {
	if conf == nil {
		return nil, errors.New("missing processor configuration")
	}
	if conf.Gateway == nil {
		return nil, errors.New("missing payment gateway")
	}
	if conf.Notifier == nil {
		return nil, errors.New("missing notification service")
	}
	workflow := conf.Workflow
	if workflow == nil {
		workflow = NewWorkflow(conf.Gateway, nil, nil, nil)
	}
	loc := conf.Location
	if loc == nil {
		loc = loadLocation()
	}
	return &Processor{
		provider:      conf.Provider,
		gateway:       conf.Gateway,
		notifier:      conf.Notifier,
		dedup:         conf.Dedup,
		workflow:      workflow,
		background:    conf.Background,
		trustEmbedded: conf.TrustEmbedded,
		location:      loc,
		now:           time.Now,
	}, nil
}

// Process handles a parsed callback. It returns an error only when the
// callback has no identifier or the payment cannot be resolved; every other
// outcome, including failed notifications and subscription creations, is a
// Result.
func (p *Processor) Process(ctx context.Context, cb *Callback) (*Result, error) {
	if cb == nil || cb.ID == "" {
		return nil, &ParseError{Err: ErrMissingIdentifier}
	}
	res := &Result{ID: cb.ID}
	key := cb.DedupKey()

	if p.dedup != nil {
		fresh, err := p.dedup.Mark(ctx, key)
		if err != nil {
			log.Warnw("dedup cache unavailable, processing anyway", "id", cb.ID, "key", key, "error", err)
		} else if !fresh {
			log.Infow("duplicate callback ignored", "provider", p.provider, "id", cb.ID, "key", key)
			res.Duplicate = true
			return res, nil
		}
	}

	ev, err := p.resolve(ctx, cb)
	if err != nil {
		p.forget(ctx, key)
		return nil, err
	}
	res.Case = Classify(ev)
	log.Infow("payment event classified",
		"provider", p.provider,
		"id", ev.ID,
		"resource", ev.Resource,
		"status", ev.Status,
		"sequenceType", ev.SequenceType,
		"case", res.Case)

	switch res.Case {
	case CaseUnclassified:
		return res, nil
	case CaseInitialPaymentSucceeded:
		req, ok := p.subscriptionRequest(ev)
		if !ok {
			res.OneTime = true
			p.notify(ctx, p.oneTimeMessage(ev))
			return res, nil
		}
		p.notify(ctx, p.caseMessage(res.Case, ev))
		res.Activation = p.activate(ctx, ev, req)
	default:
		p.notify(ctx, p.caseMessage(res.Case, ev))
	}
	return res, nil
}

// MaxDuration bounds the time Process takes for one callback: the payment
// fetch, an inline activation and its two notices.
func (p *Processor) MaxDuration() time.Duration {
	return CallTimeout + p.workflow.Budget() + 2*notifyTimeout
}

// Wait blocks until every background activation has finished.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// resolve returns the embedded event of a trusted provider or fetches the
// canonical payment.
func (p *Processor) resolve(ctx context.Context, cb *Callback) (*PaymentEvent, error) {
	if p.trustEmbedded && cb.Event != nil && cb.Event.Status != "" {
		ev := *cb.Event
		if ev.ID == "" {
			ev.ID = cb.ID
		}
		if ev.Provider == "" {
			ev.Provider = p.provider
		}
		return &ev, nil
	}
	fetchCtx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()
	ev, err := p.gateway.Payment(fetchCtx, cb.ID)
	if err != nil {
		return nil, &FetchError{ID: cb.ID, Err: err}
	}
	if ev == nil || ev.ID == "" {
		return nil, &FetchError{ID: cb.ID}
	}
	if ev.Provider == "" {
		ev.Provider = p.provider
	}
	return ev, nil
}

// forget drops a failed id from the dedup cache so the provider retry is not
// suppressed.
func (p *Processor) forget(ctx context.Context, id string) {
	if p.dedup == nil {
		return
	}
	if err := p.dedup.Forget(ctx, id); err != nil {
		log.Warnw("could not forget callback id", "id", id, "error", err)
	}
}

// subscriptionRequest builds the monthly subscription that follows ev, or
// returns false for a one-time payment.
func (p *Processor) subscriptionRequest(ev *PaymentEvent) (*SubscriptionRequest, bool) {
	amount, ok := ev.RecurringAmount()
	if !ok {
		return nil, false
	}
	if ev.CustomerID == "" {
		log.Warnw("recurring plan paid without customer, treating as one-time", "id", ev.ID)
		return nil, false
	}
	description := "Subscription"
	if ev.Metadata.PlanType != "" {
		description = fmt.Sprintf("%s Subscription", ev.Metadata.PlanType)
	}
	return &SubscriptionRequest{
		CustomerID:  ev.CustomerID,
		Amount:      amount,
		Interval:    SubscriptionInterval,
		Description: description,
		Metadata: map[string]string{
			"name":      ev.Metadata.Name,
			"email":     ev.Email(),
			"planType":  ev.Metadata.PlanType,
			"paymentId": ev.ID,
		},
	}, true
}

// activate runs the mandate workflow inline or in the background and sends
// the outcome notice after it completes. The payment notice has already been
// handed to the notifier, so the order of the two notices is kept. Runs are
// detached from the webhook request and bounded by the workflow budget.
func (p *Processor) activate(ctx context.Context, ev *PaymentEvent, req *SubscriptionRequest) *Activation {
	a := p.workflow.NewActivation(p.provider, ev.ID, req)
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.workflow.Budget())
	if !p.background {
		defer cancel()
		p.workflow.Run(bctx, a)
		p.notify(bctx, p.activationMessage(ev, a))
		return a
	}

	snapshot := *a
	snapshot.History = append([]Transition(nil), a.History...)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		p.workflow.Run(bctx, a)
		p.notify(bctx, p.activationMessage(ev, a))
	}()
	log.Infow("activation detached", "activation", a.ID, "payment", ev.ID, "strategy", a.Strategy)
	return &snapshot
}

// notify sends n and logs failures; they never reach the caller.
func (p *Processor) notify(ctx context.Context, n *notifications.Notification) {
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := p.notifier.SendNotification(ctx, n); err != nil {
		log.Warnw("notification send failed", "subject", n.Subject, "error", err)
	}
}

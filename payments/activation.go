package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.vocdoni.io/dvote/log"
)

// CallTimeout bounds every provider call made by the workflow and by the
// payment fetch.
const CallTimeout = 10 * time.Second

// ActivationState is the tagged state of a mandate activation run.
type ActivationState string

const (
	StateAwaitingMandate            ActivationState = "AwaitingMandate"
	StateMandateConfirmed           ActivationState = "MandateConfirmed"
	StateSubscriptionCreated        ActivationState = "SubscriptionCreated"
	StateMandateTimedOut            ActivationState = "MandateTimedOut"
	StateSubscriptionCreationFailed ActivationState = "SubscriptionCreationFailed"
)

// Terminal reports whether no further transition can follow s.
func (s ActivationState) Terminal() bool {
	switch s {
	case StateSubscriptionCreated, StateMandateTimedOut, StateSubscriptionCreationFailed:
		return true
	}
	return false
}

var validTransitions = map[ActivationState][]ActivationState{
	StateAwaitingMandate:  {StateMandateConfirmed, StateMandateTimedOut},
	StateMandateConfirmed: {StateSubscriptionCreated, StateSubscriptionCreationFailed},
}

func canTransition(from, to ActivationState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition records a state change of an activation.
type Transition struct {
	State ActivationState
	At    time.Time
}

// Activation is one run of the mandate activation workflow for an initial
// payment. It is passed along with the deferred task and journaled on every
// transition.
type Activation struct {
	ID               string
	Provider         string
	PaymentID        string
	Strategy         string
	Request          SubscriptionRequest
	State            ActivationState
	MandateChecks    int
	CreationAttempts int
	Subscription     *Subscription
	LastError        string
	History          []Transition
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SleepFunc suspends the caller for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Strategy moves an activation from AwaitingMandate to a terminal state.
type Strategy interface {
	Name() string
	// MaxDuration bounds the time spent waiting by Activate.
	MaxDuration() time.Duration
	// MaxCalls bounds the provider calls made by Activate.
	MaxCalls() int
	Activate(ctx context.Context, run *Run)
}

// FixedDelay waits once for the mandate to settle and then creates the
// subscription, retrying a rejected creation once after RetryDelay.
type FixedDelay struct {
	InitialDelay time.Duration
	RetryDelay   time.Duration
}

// DefaultFixedDelay waits 8 seconds and retries after 20.
var DefaultFixedDelay = &FixedDelay{InitialDelay: 8 * time.Second, RetryDelay: 20 * time.Second}

func (*FixedDelay) Name() string { return "delay" }

func (s *FixedDelay) MaxDuration() time.Duration { return s.InitialDelay + s.RetryDelay }

func (*FixedDelay) MaxCalls() int { return 2 }

func (s *FixedDelay) Activate(ctx context.Context, run *Run) {
	if err := run.Wait(ctx, s.InitialDelay); err != nil {
		run.fail(ctx, StateMandateTimedOut, err)
		return
	}
	run.Transition(ctx, StateMandateConfirmed)
	err := run.CreateSubscription(ctx)
	if err != nil && s.RetryDelay > 0 {
		log.Warnw("subscription creation rejected, retrying", "activation", run.Activation.ID, "retryIn", s.RetryDelay, "error", err)
		if err = run.Wait(ctx, s.RetryDelay); err == nil {
			err = run.CreateSubscription(ctx)
		}
	}
	if err != nil {
		run.fail(ctx, StateSubscriptionCreationFailed, err)
		return
	}
	run.Transition(ctx, StateSubscriptionCreated)
}

// PollMandates lists the customer mandates every Interval, up to MaxAttempts
// times, and creates the subscription once a valid mandate shows up.
type PollMandates struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollMandates polls every 5 seconds, 6 times.
var DefaultPollMandates = &PollMandates{Interval: 5 * time.Second, MaxAttempts: 6}

func (*PollMandates) Name() string { return "poll" }

func (s *PollMandates) MaxDuration() time.Duration {
	return s.Interval * time.Duration(s.MaxAttempts)
}

// MaxCalls counts one mandate listing per attempt and the creation.
func (s *PollMandates) MaxCalls() int { return s.MaxAttempts + 1 }

func (s *PollMandates) Activate(ctx context.Context, run *Run) {
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		if err := run.Wait(ctx, s.Interval); err != nil {
			run.fail(ctx, StateMandateTimedOut, err)
			return
		}
		valid, err := run.HasValidMandate(ctx)
		if err != nil {
			log.Warnw("could not list mandates", "activation", run.Activation.ID, "attempt", attempt, "error", err)
			continue
		}
		if !valid {
			log.Debugw("no valid mandate yet", "activation", run.Activation.ID, "attempt", attempt)
			continue
		}
		run.Transition(ctx, StateMandateConfirmed)
		if err := run.CreateSubscription(ctx); err != nil {
			run.fail(ctx, StateSubscriptionCreationFailed, err)
			return
		}
		run.Transition(ctx, StateSubscriptionCreated)
		return
	}
	run.fail(ctx, StateMandateTimedOut, fmt.Errorf("no valid mandate after %d checks", s.MaxAttempts))
}

// StrategyByName returns the default strategy for "delay" or "poll".
func StrategyByName(name string) (Strategy, error) {
	switch name {
	case "", "delay":
		return DefaultFixedDelay, nil
	case "poll":
		return DefaultPollMandates, nil
	}
	return nil, fmt.Errorf("unknown activation strategy %q", name)
}

// Run is a single execution of a strategy. Strategies only change the
// activation through its methods so every transition is validated and
// journaled.
type Run struct {
	Activation *Activation

	gateway Gateway
	journal Journal
	sleep   SleepFunc
	now     func() time.Time
	mu      sync.Mutex
}

// Wait suspends the run for d.
func (r *Run) Wait(ctx context.Context, d time.Duration) error {
	return r.sleep(ctx, d)
}

// HasValidMandate lists the customer mandates and reports whether one of
// them is valid.
func (r *Run) HasValidMandate(ctx context.Context) (bool, error) {
	r.mu.Lock()
	r.Activation.MandateChecks++
	customerID := r.Activation.Request.CustomerID
	r.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()
	mandates, err := r.gateway.Mandates(ctx, customerID)
	if err != nil {
		return false, err
	}
	for _, m := range mandates {
		if m.Status == MandateValid {
			return true, nil
		}
	}
	return false, nil
}

// CreateSubscription sends the subscription request once. It refuses to run
// outside MandateConfirmed or after a subscription was created.
func (r *Run) CreateSubscription(ctx context.Context) error {
	r.mu.Lock()
	if r.Activation.State != StateMandateConfirmed || r.Activation.Subscription != nil {
		state := r.Activation.State
		r.mu.Unlock()
		return fmt.Errorf("cannot create subscription in state %s", state)
	}
	r.Activation.CreationAttempts++
	req := r.Activation.Request
	r.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
	sub, err := r.gateway.CreateSubscription(callCtx, &req)
	cancel()
	if err == nil && sub == nil {
		err = errors.New("provider returned no subscription")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.Activation.LastError = err.Error()
		return err
	}
	r.Activation.Subscription = sub
	return nil
}

// Transition moves the activation to state. Invalid transitions are logged
// and ignored.
func (r *Run) Transition(ctx context.Context, state ActivationState) {
	r.mu.Lock()
	from := r.Activation.State
	if !canTransition(from, state) {
		r.mu.Unlock()
		log.Warnw("ignoring invalid activation transition", "activation", r.Activation.ID, "from", from, "to", state)
		return
	}
	now := r.now()
	r.Activation.State = state
	r.Activation.UpdatedAt = now
	r.Activation.History = append(r.Activation.History, Transition{State: state, At: now})
	snapshot := r.snapshot()
	r.mu.Unlock()

	log.Infow("activation transition", "activation", snapshot.ID, "payment", snapshot.PaymentID, "from", from, "to", state)
	r.save(ctx, snapshot)
}

func (r *Run) fail(ctx context.Context, state ActivationState, err error) {
	r.mu.Lock()
	if err != nil {
		r.Activation.LastError = err.Error()
	}
	r.mu.Unlock()
	r.Transition(ctx, state)
}

// snapshot copies the activation; callers hold mu.
func (r *Run) snapshot() *Activation {
	a := *r.Activation
	a.History = append([]Transition(nil), r.Activation.History...)
	return &a
}

func (r *Run) save(ctx context.Context, a *Activation) {
	if r.journal == nil {
		return
	}
	// journaling must not be skipped because the workflow context expired
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.journal.SaveActivation(ctx, a); err != nil {
		log.Warnw("could not journal activation", "activation", a.ID, "state", a.State, "error", err)
	}
}

// Workflow runs activations with a Strategy.
type Workflow struct {
	gateway  Gateway
	strategy Strategy
	journal  Journal
	sleep    SleepFunc
	now      func() time.Time
}

// NewWorkflow returns a Workflow. A nil strategy selects DefaultFixedDelay and
// a nil sleep selects Sleep. The journal is optional.
func NewWorkflow(gateway Gateway, strategy Strategy, journal Journal, sleep SleepFunc) *Workflow {
	if strategy == nil {
		strategy = DefaultFixedDelay
	}
	if sleep == nil {
		sleep = Sleep
	}
	return &Workflow{
		gateway:  gateway,
		strategy: strategy,
		journal:  journal,
		sleep:    sleep,
		now:      time.Now,
	}
}

// Strategy returns the configured strategy.
func (w *Workflow) Strategy() Strategy {
	return w.strategy
}

// Budget is the longest a run can take: the strategy waits plus every
// provider call at CallTimeout.
func (w *Workflow) Budget() time.Duration {
	return w.strategy.MaxDuration() + time.Duration(w.strategy.MaxCalls())*CallTimeout
}

// NewActivation builds the AwaitingMandate activation of a subscription
// request.
func (w *Workflow) NewActivation(provider, paymentID string, req *SubscriptionRequest) *Activation {
	now := w.now()
	return &Activation{
		ID:        uuid.New().String(),
		Provider:  provider,
		PaymentID: paymentID,
		Strategy:  w.strategy.Name(),
		Request:   *req,
		State:     StateAwaitingMandate,
		History:   []Transition{{State: StateAwaitingMandate, At: now}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Run drives a to a terminal state and returns it. If the strategy returns
// without reaching one, the activation is marked as failed in the state that
// matches where it stopped.
func (w *Workflow) Run(ctx context.Context, a *Activation) *Activation {
	run := &Run{
		Activation: a,
		gateway:    w.gateway,
		journal:    w.journal,
		sleep:      w.sleep,
		now:        w.now,
	}
	run.mu.Lock()
	initial := run.snapshot()
	run.mu.Unlock()
	run.save(ctx, initial)
	w.strategy.Activate(ctx, run)

	run.mu.Lock()
	state := run.Activation.State
	run.mu.Unlock()
	switch state {
	case StateAwaitingMandate:
		run.fail(ctx, StateMandateTimedOut, errors.New("strategy ended without a mandate"))
	case StateMandateConfirmed:
		run.fail(ctx, StateSubscriptionCreationFailed, errors.New("strategy ended without a subscription"))
	}
	return a
}

package payments

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestClassify(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		resource Resource
		status   Status
		sequence SequenceType
		want     Case
	}{
		{ResourcePayment, StatusPaid, SequenceFirst, CaseInitialPaymentSucceeded},
		{ResourcePayment, StatusPaid, SequenceOneOff, CaseInitialPaymentSucceeded},
		{ResourcePayment, StatusPaid, SequenceNone, CaseInitialPaymentSucceeded},
		{ResourcePayment, StatusPaid, SequenceRecurring, CaseRenewalCharged},
		{ResourcePayment, StatusFailed, SequenceFirst, CaseInitialPaymentFailed},
		{ResourcePayment, StatusExpired, SequenceOneOff, CaseInitialPaymentFailed},
		{ResourcePayment, StatusCanceled, SequenceNone, CaseInitialPaymentFailed},
		{ResourcePayment, StatusFailed, SequenceRecurring, CaseRenewalFailed},
		{ResourcePayment, StatusExpired, SequenceRecurring, CaseUnclassified},
		{ResourcePayment, StatusOpen, SequenceFirst, CaseUnclassified},
		{ResourcePayment, StatusPaid, SequenceType("installment"), CaseUnclassified},
		{ResourceSubscription, StatusActive, SequenceNone, CaseSubscriptionActivated},
		{ResourceSubscription, StatusCanceled, SequenceNone, CaseSubscriptionCancelled},
		{ResourceSubscription, StatusPaid, SequenceNone, CaseUnclassified},
		{Resource("order"), StatusPaid, SequenceFirst, CaseUnclassified},
	}
	for _, tt := range tests {
		got := Classify(&PaymentEvent{Resource: tt.resource, Status: tt.status, SequenceType: tt.sequence})
		c.Assert(got, qt.Equals, tt.want, qt.Commentf("%s/%s/%s", tt.resource, tt.status, tt.sequence))
	}
	c.Assert(Classify(nil), qt.Equals, CaseUnclassified)
	c.Assert(CaseUnclassified.Notifies(), qt.IsFalse)
	c.Assert(CaseRenewalCharged.Notifies(), qt.IsTrue)
}

func TestStrategyByName(t *testing.T) {
	c := qt.New(t)

	s, err := StrategyByName("poll")
	c.Assert(err, qt.IsNil)
	c.Assert(s.MaxDuration(), qt.Equals, DefaultPollMandates.MaxDuration())
	c.Assert(s.Name(), qt.Equals, "poll")

	s, err = StrategyByName("")
	c.Assert(err, qt.IsNil)
	c.Assert(s.Name(), qt.Equals, "delay")

	_, err = StrategyByName("cron")
	c.Assert(err, qt.ErrorMatches, `unknown activation strategy "cron"`)
}

func TestActivationTransitions(t *testing.T) {
	c := qt.New(t)
	c.Assert(canTransition(StateAwaitingMandate, StateSubscriptionCreated), qt.IsFalse)
	c.Assert(canTransition(StateAwaitingMandate, StateMandateConfirmed), qt.IsTrue)
	c.Assert(canTransition(StateSubscriptionCreated, StateMandateConfirmed), qt.IsFalse)
	c.Assert(StateMandateTimedOut.Terminal(), qt.IsTrue)
	c.Assert(StateMandateConfirmed.Terminal(), qt.IsFalse)
}

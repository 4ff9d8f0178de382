package payments

// Case is the classification of a resolved PaymentEvent.
type Case string

const (
	CaseUnclassified            Case = "unclassified"
	CaseInitialPaymentSucceeded Case = "initial_payment_succeeded"
	CaseInitialPaymentFailed    Case = "initial_payment_failed"
	CaseRenewalCharged          Case = "renewal_charged"
	CaseRenewalFailed           Case = "renewal_failed"
	CaseSubscriptionActivated   Case = "subscription_activated"
	CaseSubscriptionCancelled   Case = "subscription_cancelled"
)

// Notifies reports whether the case produces a notification.
func (c Case) Notifies() bool {
	return c != CaseUnclassified && c != ""
}

// Classify derives the case of an event from its resource, status and
// sequence type. Combinations not listed below are unclassified.
//
//	payment       paid                     first, oneoff, none  initial succeeded
//	payment       paid                     recurring            renewal charged
//	payment       failed, expired, canceled not recurring       initial failed
//	payment       failed                   recurring            renewal failed
//	subscription  active                                        activated
//	subscription  canceled                                      cancelled
func Classify(ev *PaymentEvent) Case {
	if ev == nil {
		return CaseUnclassified
	}
	switch ev.Resource {
	case ResourcePayment:
		return classifyPayment(ev)
	case ResourceSubscription:
		switch ev.Status {
		case StatusActive:
			return CaseSubscriptionActivated
		case StatusCanceled:
			return CaseSubscriptionCancelled
		}
	}
	return CaseUnclassified
}

func classifyPayment(ev *PaymentEvent) Case {
	recurring := ev.SequenceType == SequenceRecurring
	initial := ev.SequenceType == SequenceFirst || ev.SequenceType == SequenceOneOff || ev.SequenceType == SequenceNone
	switch ev.Status {
	case StatusPaid:
		if recurring {
			return CaseRenewalCharged
		}
		if initial {
			return CaseInitialPaymentSucceeded
		}
	case StatusFailed:
		if recurring {
			return CaseRenewalFailed
		}
		if initial {
			return CaseInitialPaymentFailed
		}
	case StatusExpired, StatusCanceled:
		if initial {
			return CaseInitialPaymentFailed
		}
	}
	return CaseUnclassified
}

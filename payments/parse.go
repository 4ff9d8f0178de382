package payments

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"strconv"
	"strings"
)

// Callback is the validated content of a provider webhook body. Event is nil
// when the provider only pushed an identifier and the payment must be fetched.
// DeliveryID identifies the delivery when a provider sends several events
// for the same payment.
type Callback struct {
	ID         string
	DeliveryID string
	Event      *PaymentEvent
}

// DedupKey returns the key under which the delivery is deduplicated.
func (cb *Callback) DedupKey() string {
	if cb.DeliveryID != "" {
		return cb.DeliveryID
	}
	return cb.ID
}

// flexString accepts both JSON strings and numbers, providers and checkout
// forms are not consistent about amounts in metadata.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexBool accepts true, "true" and "1".
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	v, _ := strconv.ParseBool(string(s))
	*f = flexBool(v)
	return nil
}

type callbackMetadata struct {
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	PlanType        string     `json:"planType"`
	RecurringAmount flexString `json:"recurringAmount"`
	Recurring       flexBool   `json:"recurring"`
}

// callbackCustomer is either {"id": "cst_xxx"} or a bare id string.
type callbackCustomer struct {
	ID string
}

func (c *callbackCustomer) UnmarshalJSON(data []byte) error {
	var id flexString
	if err := id.UnmarshalJSON(data); err == nil {
		c.ID = string(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	c.ID = obj.ID
	return nil
}

type callbackBody struct {
	ID           string            `json:"id"`
	PaymentID    string            `json:"paymentId"`
	ResourceID   string            `json:"resourceId"`
	Resource     string            `json:"resource"`
	Status       string            `json:"status"`
	SequenceType string            `json:"sequenceType"`
	Amount       *Amount           `json:"amount"`
	CustomerID   string            `json:"customerId"`
	Customer     *callbackCustomer `json:"customer"`
	Metadata     *callbackMetadata `json:"metadata"`
	Details      *callbackDetails  `json:"details"`
}

type callbackDetails struct {
	FailureReason string `json:"failureReason"`
}

// ParseCallback validates a webhook body. JSON objects and form encoded bodies
// (id=tr_xxx) are accepted. The identifier is taken from id, paymentId or
// resourceId, in that order. A ParseError wrapping ErrMissingIdentifier or
// ErrMalformedCallback is returned on failure.
func ParseCallback(contentType string, body []byte) (*Callback, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, &ParseError{Err: ErrMissingIdentifier, Detail: "empty body"}
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/x-www-form-urlencoded" || (mediaType != "application/json" && body[0] != '{') {
		return parseForm(body)
	}
	return parseJSON(body)
}

func parseForm(body []byte) (*Callback, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, &ParseError{Err: ErrMalformedCallback, Detail: err.Error()}
	}
	id := firstNonEmpty(values.Get("id"), values.Get("paymentId"), values.Get("resourceId"))
	if id == "" {
		return nil, &ParseError{Err: ErrMissingIdentifier}
	}
	return &Callback{ID: id}, nil
}

func parseJSON(body []byte) (*Callback, error) {
	var raw callbackBody
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ParseError{Err: ErrMalformedCallback, Detail: err.Error()}
	}
	id := firstNonEmpty(raw.ID, raw.PaymentID, raw.ResourceID)
	if id == "" {
		return nil, &ParseError{Err: ErrMissingIdentifier}
	}
	cb := &Callback{ID: id}
	if raw.Status == "" {
		return cb, nil
	}
	ev, err := raw.event(id)
	if err != nil {
		return nil, err
	}
	cb.Event = ev
	return cb, nil
}

func (raw *callbackBody) event(id string) (*PaymentEvent, error) {
	ev := &PaymentEvent{
		ID:           id,
		Resource:     Resource(strings.ToLower(raw.Resource)),
		Status:       Status(strings.ToLower(raw.Status)),
		SequenceType: SequenceType(strings.ToLower(raw.SequenceType)),
		CustomerID:   raw.CustomerID,
	}
	switch ev.Resource {
	case "":
		ev.Resource = ResourcePayment
	case ResourcePayment, ResourceSubscription:
	default:
		return nil, &ParseError{Err: ErrMalformedCallback, Detail: fmt.Sprintf("unknown resource %q", raw.Resource)}
	}
	if ev.SequenceType == "none" {
		ev.SequenceType = SequenceNone
	}
	if raw.Amount != nil {
		ev.Amount = *raw.Amount
	}
	if ev.CustomerID == "" && raw.Customer != nil {
		ev.CustomerID = raw.Customer.ID
	}
	if raw.Details != nil {
		ev.FailureReason = raw.Details.FailureReason
	}
	if raw.Metadata != nil {
		ev.Metadata = Metadata{
			Name:            raw.Metadata.Name,
			Email:           raw.Metadata.Email,
			PlanType:        raw.Metadata.PlanType,
			RecurringAmount: string(raw.Metadata.RecurringAmount),
			Recurring:       bool(raw.Metadata.Recurring),
		}
	}
	return ev, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

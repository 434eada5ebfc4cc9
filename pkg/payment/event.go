package payment

import "encoding/json"

const (
	EventCheckoutCompleted          = "checkout.session.completed"
	EventCheckoutAsyncSucceeded     = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncFailed        = "checkout.session.async_payment_failed"
	EventCheckoutExpired            = "checkout.session.expired"
	EventPaymentIntentSucceeded     = "payment_intent.succeeded"
	EventPaymentIntentPaymentFailed = "payment_intent.payment_failed"
	EventChargeRefunded             = "charge.refunded"
)

const (
	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
)

// Event is the provider's webhook envelope.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Created int64     `json:"created"`
	Data    EventData `json:"data"`
}

type EventData struct {
	Object Object `json:"object"`
}

// Object is the union of the fields this service reads from the session,
// payment intent and charge objects carried in webhook events.
type Object struct {
	ID              string            `json:"id"`
	Object          string            `json:"object"`
	PaymentStatus   string            `json:"payment_status,omitempty"`
	PaymentIntent   string            `json:"payment_intent,omitempty"`
	CustomerEmail   string            `json:"customer_email,omitempty"`
	CustomerDetails *CustomerDetails  `json:"customer_details,omitempty"`
	AmountTotal     int64             `json:"amount_total,omitempty"`
	AmountRefunded  int64             `json:"amount_refunded,omitempty"`
	Refunded        bool              `json:"refunded,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type CustomerDetails struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Session is a hosted checkout session.
type Session struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

// Email returns the customer email the provider collected, if any.
func (o Object) Email() string {
	if o.CustomerEmail != "" {
		return o.CustomerEmail
	}
	if o.CustomerDetails != nil {
		return o.CustomerDetails.Email
	}
	return ""
}

func (o Object) Name() string {
	if o.CustomerDetails != nil {
		return o.CustomerDetails.Name
	}
	return ""
}

// ParseEvent decodes a webhook body without checking its signature.
func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Routing keys published on the checkout exchange.
const (
	RoutingOrderPaid        = "order.paid"
	RoutingOrderFailed      = "order.failed"
	RoutingOrderRefunded    = "order.refunded"
	RoutingTicketIssued     = "ticket.issued"
	RoutingOversoldConflict = "order.oversold_conflict"
	RoutingLatePayment      = "order.late_payment"
)

// EventPublisher delivers domain events. Notifications are best effort and
// a failed publish is only logged. Remediation messages are not: a failed
// publish fails the webhook so nothing is recorded as done.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type OrderStatusMessage struct {
	OrderID     uuid.UUID `json:"orderId"`
	EventID     uuid.UUID `json:"eventId"`
	Status      string    `json:"status"`
	TotalAmount int64     `json:"totalAmount"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurredAt"`
}

type TicketIssuedMessage struct {
	TicketID     uuid.UUID `json:"ticketId"`
	TicketNumber string    `json:"ticketNumber"`
	OrderID      uuid.UUID `json:"orderId"`
	EventID      uuid.UUID `json:"eventId"`
	TierID       uuid.UUID `json:"tierId"`
	IssuedAt     time.Time `json:"issuedAt"`
}

// OversoldConflictMessage carries what remediation needs to refund a line
// item that lost the capacity race.
type OversoldConflictMessage struct {
	OrderID         uuid.UUID `json:"orderId"`
	ItemID          uuid.UUID `json:"itemId"`
	TierID          uuid.UUID `json:"tierId"`
	Quantity        int       `json:"quantity"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	PaymentIntentID string    `json:"paymentIntentId"`
}

// LatePaymentMessage reports a payment captured for an order that had
// already failed. The whole amount goes back to the customer.
type LatePaymentMessage struct {
	OrderID         uuid.UUID `json:"orderId"`
	EventID         uuid.UUID `json:"eventId"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	PaymentIntentID string    `json:"paymentIntentId"`
}

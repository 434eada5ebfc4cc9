package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusFailed   OrderStatus = "failed"
	OrderStatusRefunded OrderStatus = "refunded"
)

// Terminal reports whether no webhook can move the order back to pending.
func (s OrderStatus) Terminal() bool {
	return s != OrderStatusPending
}

type Order struct {
	ID               uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	EventID          uuid.UUID   `gorm:"type:uuid;not null;index" json:"eventId"`
	CustomerEmail    string      `json:"customerEmail"`
	CustomerName     string      `json:"customerName"`
	TotalAmount      int64       `gorm:"not null" json:"totalAmount"`
	Currency         string      `gorm:"type:varchar(3);not null" json:"currency"`
	Status           OrderStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentSessionID string      `gorm:"not null;uniqueIndex" json:"paymentSessionId"`
	PaymentIntentID  string      `gorm:"index" json:"paymentIntentId,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
}

type LineItemStatus string

const (
	LineItemPending          LineItemStatus = "pending"
	LineItemAllocated        LineItemStatus = "allocated"
	LineItemFulfilled        LineItemStatus = "fulfilled"
	LineItemOversoldConflict LineItemStatus = "oversold_conflict"
	LineItemRefundRequested  LineItemStatus = "refund_requested"
)

// OrderItem is one (tier, quantity) line of an order. UnitPrice is the
// price snapshot taken when the checkout session was created.
type OrderItem struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"orderId"`
	TierID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"tierId"`
	Quantity  int            `gorm:"not null" json:"quantity"`
	UnitPrice int64          `gorm:"not null" json:"unitPrice"`
	Position  int            `gorm:"not null;default:0" json:"position"`
	Status    LineItemStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (i OrderItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// OrderTransition is the audit trail of order status changes.
type OrderTransition struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	OrderID    uuid.UUID   `gorm:"type:uuid;not null;index" json:"orderId"`
	FromStatus OrderStatus `gorm:"type:varchar(20);not null" json:"from"`
	ToStatus   OrderStatus `gorm:"type:varchar(20);not null" json:"to"`
	Reason     string      `json:"reason"`
	CreatedAt  time.Time   `json:"createdAt"`
}

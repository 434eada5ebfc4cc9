package models

import (
	"time"

	"github.com/google/uuid"
)

// Ticket is one admission unit. Sequence is the unit's index inside its
// line item; (OrderItemID, Sequence) is unique so a unit is issued once.
type Ticket struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID      uuid.UUID `gorm:"type:uuid;not null;index" json:"orderId"`
	OrderItemID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_ticket_unit,priority:1" json:"orderItemId"`
	Sequence     int       `gorm:"not null;uniqueIndex:idx_ticket_unit,priority:2" json:"sequence"`
	TierID       uuid.UUID `gorm:"type:uuid;not null;index" json:"tierId"`
	EventID      uuid.UUID `gorm:"type:uuid;not null;index" json:"eventId"`
	TicketNumber string    `gorm:"not null;uniqueIndex" json:"ticketNumber"`
	QRPayload    string    `gorm:"not null" json:"qrPayload"`
	CheckedIn    bool      `gorm:"not null;default:false" json:"checkedIn"`
	IssuedAt     time.Time `gorm:"not null" json:"issuedAt"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusCompleted EventStatus = "completed"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusDraft, EventStatusPublished, EventStatusCancelled, EventStatusCompleted:
		return true
	}
	return false
}

// Event owns its tiers. UIConfig is an opaque blob stored and returned
// verbatim; nothing in this service parses it.
type Event struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	HostID      string         `gorm:"not null;index" json:"hostId"`
	Name        string         `gorm:"not null" json:"name"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Location    string         `json:"location"`
	StartsAt    time.Time      `gorm:"not null" json:"startsAt"`
	EndsAt      *time.Time     `json:"endsAt,omitempty"`
	Capacity    int            `gorm:"not null" json:"capacity"`
	Currency    string         `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Status      EventStatus    `gorm:"type:varchar(20);not null;default:'draft'" json:"status"`
	UIConfig    datatypes.JSON `gorm:"type:jsonb" json:"uiConfig,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`

	Tiers []TicketTier `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE" json:"tiers"`
}

func (e *Event) OnSale() bool {
	return e.Status == EventStatusPublished
}

// Tier returns the tier with the given id if it belongs to the event.
func (e *Event) Tier(id uuid.UUID) (*TicketTier, bool) {
	for i := range e.Tiers {
		if e.Tiers[i].ID == id {
			return &e.Tiers[i], true
		}
	}
	return nil, false
}

// TicketTier is a priced, capacity-limited admission class. Sold is only
// ever changed by the inventory ledger's conditional increment.
type TicketTier struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EventID     uuid.UUID `gorm:"type:uuid;not null;index" json:"eventId"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	Price       int64     `gorm:"not null" json:"price"`
	Quantity    int       `gorm:"not null" json:"quantity"`
	Sold        int       `gorm:"not null;default:0;check:chk_ticket_tiers_sold,sold >= 0 AND sold <= quantity" json:"sold"`
	SortOrder   int       `gorm:"not null;default:0" json:"sortOrder"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (t TicketTier) Available() int {
	if t.Sold >= t.Quantity {
		return 0
	}
	return t.Quantity - t.Sold
}

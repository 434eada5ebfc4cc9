package dto

import (
	"encoding/json"
	"time"
)

type CheckoutItemRequest struct {
	TierID   string `json:"tierId" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=10"`
}

type CreateCheckoutSessionRequest struct {
	EventID       string                `json:"eventId" validate:"required,uuid"`
	Items         []CheckoutItemRequest `json:"items" validate:"required,min=1,dive"`
	CustomerEmail string                `json:"customerEmail" validate:"omitempty,email"`
	CustomerName  string                `json:"customerName" validate:"omitempty,max=200"`
}

type CreateTierRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Price       int64  `json:"price" validate:"gte=0"`
	Quantity    int    `json:"quantity" validate:"gte=0"`
}

type CreateEventRequest struct {
	HostID      string              `json:"hostId" validate:"required"`
	Name        string              `json:"name" validate:"required"`
	Type        string              `json:"type"`
	Description string              `json:"description"`
	Location    string              `json:"location"`
	StartsAt    time.Time           `json:"startsAt" validate:"required"`
	EndsAt      *time.Time          `json:"endsAt"`
	Currency    string              `json:"currency" validate:"omitempty,len=3"`
	Status      string              `json:"status" validate:"omitempty,oneof=draft published cancelled completed"`
	UIConfig    json.RawMessage     `json:"uiConfig"`
	Tiers       []CreateTierRequest `json:"tiers" validate:"required,min=1,dive"`
}

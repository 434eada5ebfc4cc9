package models

import "time"

// ProcessedWebhook marks an idempotency key whose effects were fully applied.
type ProcessedWebhook struct {
	IdempotencyKey string    `gorm:"primaryKey"`
	EventType      string    `gorm:"not null"`
	OrderID        string    `gorm:"index"`
	ProcessedAt    time.Time `gorm:"not null"`
}

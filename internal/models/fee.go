package models

import (
	"time"

	"github.com/google/uuid"
)

type RateSource string

const (
	RateSourceBilling  RateSource = "billing"
	RateSourceFallback RateSource = "fallback"
)

// FeeTransaction is written once per paid order.
type FeeTransaction struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"orderId"`
	HostID     string     `gorm:"not null;index" json:"hostId"`
	Amount     int64      `gorm:"not null" json:"amount"`
	FeeAmount  int64      `gorm:"not null" json:"feeAmount"`
	FeeRateBps int        `gorm:"not null" json:"feeRateBps"`
	Payout     int64      `gorm:"not null" json:"payout"`
	Currency   string     `gorm:"type:varchar(3);not null" json:"currency"`
	Plan       string     `gorm:"type:varchar(32);not null" json:"plan"`
	RateSource RateSource `gorm:"type:varchar(16);not null" json:"rateSource"`
	CreatedAt  time.Time  `json:"createdAt"`
}

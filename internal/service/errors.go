package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrEventNotFound        = errors.New("event not found")
	ErrTierNotFound         = errors.New("ticket tier not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrAuthenticationFailed = errors.New("webhook authentication failed")
	ErrInventoryUnavailable = errors.New("inventory unavailable")
	ErrOversoldConflict     = errors.New("tier sold out at fulfillment")
	ErrExternalProvider     = errors.New("external provider error")
	ErrDuplicateEvent       = errors.New("webhook event already processed")
	ErrIllegalTransition    = errors.New("illegal order status transition")
	ErrStaleTransition      = errors.New("order status changed concurrently")
)

// ValidationError describes one malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InventoryUnavailableError is returned by checkout when a tier's
// remaining capacity is smaller than the requested quantity.
type InventoryUnavailableError struct {
	TierID    uuid.UUID
	TierName  string
	Requested int
	Available int
	Shortfall int
}

func (e *InventoryUnavailableError) Error() string {
	return fmt.Sprintf("not enough tickets available for %s: requested %d, available %d",
		e.TierName, e.Requested, e.Available)
}

func (e *InventoryUnavailableError) Is(target error) bool { return target == ErrInventoryUnavailable }

// ExternalProviderError wraps a failed call to the payment or billing
// collaborator after retries were exhausted.
type ExternalProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ExternalProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ExternalProviderError) Unwrap() error { return e.Err }

func (e *ExternalProviderError) Is(target error) bool { return target == ErrExternalProvider }

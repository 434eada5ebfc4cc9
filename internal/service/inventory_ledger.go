package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/repository"
	"github.com/google/uuid"
)

// InventoryLedger owns every change to a tier's sold counter.
type InventoryLedger interface {
	// ConditionalIncrement adds units to sold if and only if the result
	// stays within quantity, as one atomic step. It reports whether the
	// units were taken.
	ConditionalIncrement(ctx context.Context, tierID uuid.UUID, units int) (bool, error)
	// AllocateLineItem takes the item's units from its tier and moves the
	// item out of pending. Items that already left pending are returned
	// unchanged, so calling it again after a redelivery is safe.
	AllocateLineItem(ctx context.Context, itemID uuid.UUID) (models.LineItemStatus, error)
}

type inventoryLedger struct {
	tx        repository.Transactor
	inventory repository.InventoryRepository
	orders    repository.OrderRepository
}

func NewInventoryLedger(tx repository.Transactor, inventory repository.InventoryRepository, orders repository.OrderRepository) InventoryLedger {
	return &inventoryLedger{tx: tx, inventory: inventory, orders: orders}
}

func (l *inventoryLedger) ConditionalIncrement(ctx context.Context, tierID uuid.UUID, units int) (bool, error) {
	if units <= 0 {
		return false, invalid("quantity", "must be positive, got %d", units)
	}

	ok, err := l.inventory.ConditionalIncrement(ctx, tierID, units)
	if err != nil {
		return false, fmt.Errorf("increment tier %s: %w", tierID, err)
	}
	if ok {
		return true, nil
	}

	// Zero rows matched: either the tier is full or it does not exist.
	if _, err := l.inventory.FindTier(ctx, tierID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, fmt.Errorf("%w: %s", ErrTierNotFound, tierID)
		}
		return false, err
	}
	return false, nil
}

func (l *inventoryLedger) AllocateLineItem(ctx context.Context, itemID uuid.UUID) (models.LineItemStatus, error) {
	var status models.LineItemStatus

	err := l.tx.WithTx(ctx, func(ctx context.Context) error {
		item, err := l.orders.FindItem(ctx, itemID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("line item %s: %w", itemID, ErrOrderNotFound)
			}
			return err
		}
		status = item.Status
		if item.Status != models.LineItemPending {
			return nil
		}

		claimed, err := l.orders.CompareAndSetItemStatus(ctx, itemID, models.LineItemPending, models.LineItemAllocated)
		if err != nil {
			return err
		}
		if !claimed {
			current, err := l.orders.FindItem(ctx, itemID)
			if err != nil {
				return err
			}
			status = current.Status
			return nil
		}

		ok, err := l.ConditionalIncrement(ctx, item.TierID, item.Quantity)
		if err != nil {
			return err
		}
		if ok {
			status = models.LineItemAllocated
			return nil
		}

		if _, err := l.orders.CompareAndSetItemStatus(ctx, itemID, models.LineItemAllocated, models.LineItemOversoldConflict); err != nil {
			return err
		}
		status = models.LineItemOversoldConflict
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

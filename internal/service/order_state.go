package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/repository"
	"github.com/google/uuid"
)

var legalTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending: {models.OrderStatusPaid, models.OrderStatusFailed},
	models.OrderStatusPaid:    {models.OrderStatusRefunded},
}

// CanTransition reports whether an order may move from one status to
// another. Nothing ever returns to pending.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type OrderStateMachine interface {
	// Transition moves the order from `from` to `to` with a compare-and-swap
	// and records the change in the audit trail. It returns
	// ErrStaleTransition when the order is no longer in `from`.
	Transition(ctx context.Context, orderID uuid.UUID, from, to models.OrderStatus, reason string) error
}

type orderStateMachine struct {
	tx     repository.Transactor
	orders repository.OrderRepository
}

func NewOrderStateMachine(tx repository.Transactor, orders repository.OrderRepository) OrderStateMachine {
	return &orderStateMachine{tx: tx, orders: orders}
}

func (m *orderStateMachine) Transition(ctx context.Context, orderID uuid.UUID, from, to models.OrderStatus, reason string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	return m.tx.WithTx(ctx, func(ctx context.Context) error {
		ok, err := m.orders.CompareAndSetStatus(ctx, orderID, from, to)
		if err != nil {
			return err
		}
		if !ok {
			if _, err := m.orders.FindByID(ctx, orderID); errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
			}
			return fmt.Errorf("%w: %s is no longer %s", ErrStaleTransition, orderID, from)
		}
		return m.orders.RecordTransition(ctx, &models.OrderTransition{
			OrderID:    orderID,
			FromStatus: from,
			ToStatus:   to,
			Reason:     reason,
		})
	})
}

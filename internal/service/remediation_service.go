package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Eursukkul/checkout-service/internal/metrics"
	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/repository"
	"github.com/Eursukkul/checkout-service/pkg/payment"
	"go.uber.org/zap"
)

type RemediationService interface {
	// RefundOversold refunds a line item that lost the capacity race and
	// marks it refund_requested. Redelivered messages are no-ops.
	RefundOversold(ctx context.Context, msg OversoldConflictMessage) error
	// RefundLatePayment refunds the whole amount captured for an order that
	// had already failed. The provider dedupes repeats by idempotency key.
	RefundLatePayment(ctx context.Context, msg LatePaymentMessage) error
}

type remediationService struct {
	orders   repository.OrderRepository
	payments PaymentGateway
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewRemediationService(orders repository.OrderRepository, payments PaymentGateway, m *metrics.Metrics, logger *zap.Logger) RemediationService {
	return &remediationService{orders: orders, payments: payments, metrics: m, logger: logger.Named("remediation")}
}

func (s *remediationService) RefundOversold(ctx context.Context, msg OversoldConflictMessage) error {
	item, err := s.orders.FindItem(ctx, msg.ItemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("line item %s: %w", msg.ItemID, ErrOrderNotFound)
		}
		return err
	}
	if item.Status != models.LineItemOversoldConflict {
		s.logger.Info("line item no longer awaiting refund",
			zap.String("item_id", item.ID.String()), zap.String("status", string(item.Status)))
		return nil
	}

	order, err := s.orders.FindByID(ctx, item.OrderID)
	if err != nil {
		return err
	}
	if order.PaymentIntentID == "" {
		return invalid("paymentIntentId", "order %s has no captured payment to refund", order.ID)
	}

	start := time.Now()
	refund, err := s.payments.CreateRefund(ctx, payment.RefundParams{
		PaymentIntentID: order.PaymentIntentID,
		Amount:          item.Subtotal(),
		Reason:          "requested_by_customer",
		Metadata: map[string]string{
			"orderId": order.ID.String(),
			"itemId":  item.ID.String(),
			"cause":   "oversold_conflict",
		},
		IdempotencyKey: "refund-" + item.ID.String(),
	})
	s.metrics.ObserveExternal("payment", "refund", start, err)
	if err != nil {
		return &ExternalProviderError{Provider: "payment", Op: "refund", Err: err}
	}

	if _, err := s.orders.CompareAndSetItemStatus(ctx, item.ID, models.LineItemOversoldConflict, models.LineItemRefundRequested); err != nil {
		return err
	}
	s.logger.Info("refund requested for oversold line item",
		zap.String("order_id", order.ID.String()),
		zap.String("item_id", item.ID.String()),
		zap.String("refund_id", refund.ID),
		zap.Int64("amount", item.Subtotal()))
	return nil
}

func (s *remediationService) RefundLatePayment(ctx context.Context, msg LatePaymentMessage) error {
	order, err := s.orders.FindByID(ctx, msg.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("order %s: %w", msg.OrderID, ErrOrderNotFound)
		}
		return err
	}
	if order.Status != models.OrderStatusFailed {
		s.logger.Info("order is not failed, late payment refund skipped",
			zap.String("order_id", order.ID.String()), zap.String("status", string(order.Status)))
		return nil
	}
	intent := order.PaymentIntentID
	if intent == "" {
		intent = msg.PaymentIntentID
	}
	if intent == "" {
		return invalid("paymentIntentId", "order %s has no captured payment to refund", order.ID)
	}

	start := time.Now()
	refund, err := s.payments.CreateRefund(ctx, payment.RefundParams{
		PaymentIntentID: intent,
		Amount:          order.TotalAmount,
		Reason:          "requested_by_customer",
		Metadata: map[string]string{
			"orderId": order.ID.String(),
			"cause":   "late_payment",
		},
		IdempotencyKey: "refund-order-" + order.ID.String(),
	})
	s.metrics.ObserveExternal("payment", "refund", start, err)
	if err != nil {
		return &ExternalProviderError{Provider: "payment", Op: "refund", Err: err}
	}

	s.logger.Info("refund requested for late payment",
		zap.String("order_id", order.ID.String()),
		zap.String("refund_id", refund.ID),
		zap.Int64("amount", order.TotalAmount))
	return nil
}

package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Eursukkul/checkout-service/internal/metrics"
	"github.com/Eursukkul/checkout-service/internal/service"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RemediationConsumer refunds line items reported on order.oversold_conflict
// and payments reported on order.late_payment.
type RemediationConsumer struct {
	svc     service.RemediationService
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewRemediationConsumer(svc service.RemediationService, m *metrics.Metrics, logger *zap.Logger) *RemediationConsumer {
	return &RemediationConsumer{svc: svc, metrics: m, logger: logger.Named("remediation_consumer")}
}

func (rc *RemediationConsumer) Start(ctx context.Context, msgs <-chan amqp.Delivery) {
	go func() {
		for msg := range msgs {
			rc.handleMessage(ctx, msg)
		}
		rc.logger.Info("channel closed, stopping consumer")
	}()
}

func (rc *RemediationConsumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	var (
		log *zap.Logger
		err error
	)
	switch msg.RoutingKey {
	case service.RoutingOversoldConflict:
		var conflict service.OversoldConflictMessage
		if err := json.Unmarshal(msg.Body, &conflict); err != nil {
			rc.drop(msg, err)
			return
		}
		log = rc.logger.With(zap.String("order_id", conflict.OrderID.String()), zap.String("item_id", conflict.ItemID.String()))
		err = rc.svc.RefundOversold(ctx, conflict)
	case service.RoutingLatePayment:
		var late service.LatePaymentMessage
		if err := json.Unmarshal(msg.Body, &late); err != nil {
			rc.drop(msg, err)
			return
		}
		log = rc.logger.With(zap.String("order_id", late.OrderID.String()))
		err = rc.svc.RefundLatePayment(ctx, late)
	default:
		rc.logger.Warn("unexpected routing key", zap.String("routing_key", msg.RoutingKey))
		_ = msg.Ack(false)
		return
	}

	rc.metrics.MessageConsumed(msg.RoutingKey, err)
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case errors.Is(err, service.ErrExternalProvider):
		log.Warn("refund failed, requeueing", zap.Error(err))
		_ = msg.Nack(false, true)
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrOrderNotFound):
		log.Error("cannot remediate, needs an operator", zap.Error(err))
		_ = msg.Nack(false, false)
	default:
		log.Error("remediation failed, requeueing", zap.Error(err))
		_ = msg.Nack(false, true)
	}
}

func (rc *RemediationConsumer) drop(msg amqp.Delivery, err error) {
	rc.logger.Error("failed to unmarshal", zap.String("routing_key", msg.RoutingKey), zap.Error(err))
	rc.metrics.MessageConsumed(msg.RoutingKey, err)
	_ = msg.Nack(false, false)
}

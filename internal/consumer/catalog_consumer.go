package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Eursukkul/checkout-service/internal/metrics"
	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/service"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Catalog routing keys published by the event catalog.
const (
	RoutingEventCreated = "event.created"
	RoutingEventUpdated = "event.updated"
)

// CatalogConsumer keeps local events and tiers in step with the catalog.
type CatalogConsumer struct {
	svc     service.EventService
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewCatalogConsumer(svc service.EventService, m *metrics.Metrics, logger *zap.Logger) *CatalogConsumer {
	return &CatalogConsumer{svc: svc, metrics: m, logger: logger.Named("catalog_consumer")}
}

// Start handles messages until msgs is closed.
func (cc *CatalogConsumer) Start(ctx context.Context, msgs <-chan amqp.Delivery) {
	go func() {
		for msg := range msgs {
			cc.handleMessage(ctx, msg)
		}
		cc.logger.Info("channel closed, stopping consumer")
	}()
}

func (cc *CatalogConsumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	log := cc.logger.With(zap.String("routing_key", msg.RoutingKey))

	if msg.RoutingKey != RoutingEventCreated && msg.RoutingKey != RoutingEventUpdated {
		log.Debug("ignoring message")
		_ = msg.Ack(false)
		return
	}

	var event models.Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		log.Error("failed to unmarshal", zap.Error(err))
		cc.metrics.MessageConsumed(msg.RoutingKey, err)
		_ = msg.Nack(false, false)
		return
	}

	err := cc.svc.SyncEvent(ctx, &event)
	cc.metrics.MessageConsumed(msg.RoutingKey, err)
	switch {
	case errors.Is(err, service.ErrValidation):
		log.Warn("rejected event definition", zap.String("event_id", event.ID.String()), zap.Error(err))
		_ = msg.Nack(false, false)
		return
	case err != nil:
		log.Error("failed to sync event", zap.String("event_id", event.ID.String()), zap.Error(err))
		_ = msg.Nack(false, true) // requeue
		return
	}

	log.Info("synced event", zap.String("event_id", event.ID.String()), zap.String("name", event.Name))
	_ = msg.Ack(false)
}

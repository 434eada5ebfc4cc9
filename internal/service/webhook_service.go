package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Eursukkul/checkout-service/internal/clock"
	"github.com/Eursukkul/checkout-service/internal/metrics"
	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/repository"
	"github.com/Eursukkul/checkout-service/pkg/payment"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type WebhookService interface {
	// Process authenticates a provider delivery and applies it. Errors
	// matching ErrAuthenticationFailed or ErrValidation mean the delivery
	// was rejected; any other error is a processing failure the caller
	// should log, since every step is safe to run again.
	Process(ctx context.Context, payload []byte, signature string) error
	// Resume runs fulfillment again for a paid order whose line items a
	// webhook left unfinished. Orders in any other status are left alone.
	Resume(ctx context.Context, orderID uuid.UUID) error
}

type WebhookConfig struct {
	Secret    string
	Tolerance time.Duration
}

// WebhookDeps are the collaborators of the webhook processor. Remediation
// is used for late payments only when Publisher is nil.
type WebhookDeps struct {
	Orders      repository.OrderRepository
	Events      repository.EventRepository
	Webhooks    repository.WebhookRepository
	States      OrderStateMachine
	Ledger      InventoryLedger
	Issuer      TicketIssuer
	Fees        FeeCalculator
	Publisher   EventPublisher
	Remediation RemediationService
	Clock       clock.Clock
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

type webhookService struct {
	cfg WebhookConfig
	WebhookDeps
}

func NewWebhookService(cfg WebhookConfig, deps WebhookDeps) WebhookService {
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.Named("webhook")
	return &webhookService{cfg: cfg, WebhookDeps: deps}
}

func isSuccessEvent(t string) bool {
	switch t {
	case payment.EventCheckoutCompleted, payment.EventCheckoutAsyncSucceeded, payment.EventPaymentIntentSucceeded:
		return true
	}
	return false
}

func isFailureEvent(t string) bool {
	switch t {
	case payment.EventCheckoutAsyncFailed, payment.EventCheckoutExpired, payment.EventPaymentIntentPaymentFailed:
		return true
	}
	return false
}

func (s *webhookService) Process(ctx context.Context, payload []byte, signature string) error {
	event, err := payment.ConstructEvent(payload, signature, s.cfg.Secret, s.cfg.Tolerance, s.Clock.Now())
	if err != nil {
		s.Metrics.WebhookEvent("unknown", "rejected")
		if errors.Is(err, payment.ErrMissingSignature) || errors.Is(err, payment.ErrInvalidHeader) ||
			errors.Is(err, payment.ErrNoValidSignature) || errors.Is(err, payment.ErrTimestampExpired) {
			return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
		return invalid("body", "%v", err)
	}

	log := s.Logger.With(zap.String("event_id", event.ID), zap.String("type", event.Type))
	key := idempotencyKey(event)

	processed, err := s.Webhooks.IsProcessed(ctx, key)
	if err != nil {
		return fmt.Errorf("check idempotency key: %w", err)
	}
	if processed {
		log.Info("duplicate delivery ignored", zap.String("key", key), zap.NamedError("reason", ErrDuplicateEvent))
		s.Metrics.WebhookEvent(event.Type, "duplicate")
		return nil
	}

	var orderID string
	switch {
	case isSuccessEvent(event.Type):
		orderID, err = s.handlePaid(ctx, event, log)
	case isFailureEvent(event.Type):
		orderID, err = s.handleFailed(ctx, event, log)
	case event.Type == payment.EventChargeRefunded:
		orderID, err = s.handleRefunded(ctx, event, log)
	default:
		log.Info("unhandled event type")
		s.Metrics.WebhookEvent(event.Type, "ignored")
		return nil
	}

	if errors.Is(err, ErrOrderNotFound) {
		log.Warn("no order matches webhook", zap.Error(err))
		s.Metrics.WebhookEvent(event.Type, "unknown_order")
		return nil
	}
	if err != nil {
		s.Metrics.WebhookEvent(event.Type, "error")
		return err
	}

	if err := s.Webhooks.MarkProcessed(ctx, &models.ProcessedWebhook{
		IdempotencyKey: key,
		EventType:      event.Type,
		OrderID:        orderID,
		ProcessedAt:    s.Clock.Now(),
	}); err != nil {
		return fmt.Errorf("record idempotency key: %w", err)
	}
	s.Metrics.WebhookEvent(event.Type, "applied")
	return nil
}

// idempotencyKey is the provider event id, or the order reference plus the
// event type when the provider sent none.
func idempotencyKey(event *payment.Event) string {
	if event.ID != "" {
		return event.ID
	}
	obj := event.Data.Object
	ref := obj.Metadata["orderId"]
	if ref == "" {
		ref = obj.ID
	}
	return ref + ":" + event.Type
}

func (s *webhookService) findOrder(ctx context.Context, obj payment.Object) (*models.Order, error) {
	if raw := obj.Metadata["orderId"]; raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return s.lookup(s.Orders.FindByID(ctx, id))
		}
	}
	if obj.Object == "checkout.session" && obj.ID != "" {
		return s.lookup(s.Orders.FindByPaymentSession(ctx, obj.ID))
	}
	if sessionID := obj.Metadata["checkoutSessionId"]; sessionID != "" {
		return s.lookup(s.Orders.FindByPaymentSession(ctx, sessionID))
	}
	intent := obj.PaymentIntent
	if intent == "" && obj.Object == "payment_intent" {
		intent = obj.ID
	}
	if intent != "" {
		return s.lookup(s.Orders.FindByPaymentIntent(ctx, intent))
	}
	return nil, fmt.Errorf("%w: event carries no order reference", ErrOrderNotFound)
}

func (s *webhookService) lookup(order *models.Order, err error) (*models.Order, error) {
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return order, err
}

func (s *webhookService) handlePaid(ctx context.Context, event *payment.Event, log *zap.Logger) (string, error) {
	obj := event.Data.Object
	if event.Type == payment.EventCheckoutCompleted && obj.PaymentStatus == payment.PaymentStatusUnpaid {
		log.Info("checkout completed with payment still pending")
		return "", nil
	}

	order, err := s.findOrder(ctx, obj)
	if err != nil {
		return "", err
	}
	log = log.With(zap.String("order_id", order.ID.String()))

	intent := obj.PaymentIntent
	if intent == "" && obj.Object == "payment_intent" {
		intent = obj.ID
	}
	details := repository.PaymentDetails{
		CustomerEmail:   obj.Email(),
		CustomerName:    obj.Name(),
		PaymentIntentID: intent,
	}
	if err := s.Orders.UpdatePaymentDetails(ctx, order.ID, details); err != nil {
		return "", fmt.Errorf("update payment details: %w", err)
	}
	if intent != "" {
		order.PaymentIntentID = intent
	}

	switch order.Status {
	case models.OrderStatusPending:
		err := s.States.Transition(ctx, order.ID, models.OrderStatusPending, models.OrderStatusPaid, reason(event))
		switch {
		case err == nil:
			order.Status = models.OrderStatusPaid
			s.publish(ctx, log, RoutingOrderPaid, statusMessage(order, s.Clock.Now()))
		case errors.Is(err, ErrStaleTransition):
			// Another delivery moved it first. Continue if that was to paid; a
			// concurrent failure makes this a late payment.
			current, err := s.Orders.FindByID(ctx, order.ID)
			if err != nil {
				return "", err
			}
			current.PaymentIntentID = order.PaymentIntentID
			if current.Status == models.OrderStatusFailed {
				return order.ID.String(), s.remediateLatePayment(ctx, current, log)
			}
			if current.Status != models.OrderStatusPaid {
				log.Info("order left pending concurrently", zap.String("status", string(current.Status)))
				return order.ID.String(), nil
			}
			order = current
		default:
			return "", err
		}
	case models.OrderStatusPaid:
		log.Info("order already paid, resuming fulfillment")
	case models.OrderStatusFailed:
		return order.ID.String(), s.remediateLatePayment(ctx, order, log)
	default:
		log.Warn("payment success for order in terminal status", zap.String("status", string(order.Status)))
		return order.ID.String(), nil
	}

	if err := s.fulfill(ctx, order, log); err != nil {
		return "", err
	}
	log.Info("order fulfilled")
	return order.ID.String(), nil
}

// fulfill allocates and issues every line item that is not finished yet,
// then records the order's fee. Line item failures do not stop the others.
func (s *webhookService) fulfill(ctx context.Context, order *models.Order, log *zap.Logger) error {
	var errs []error

	for i := range order.Items {
		item := &order.Items[i]

		if item.Status == models.LineItemPending {
			status, err := s.Ledger.AllocateLineItem(ctx, item.ID)
			if err != nil {
				errs = append(errs, fmt.Errorf("allocate line item %s: %w", item.ID, err))
				continue
			}
			if status == models.LineItemOversoldConflict {
				s.Metrics.OversoldConflict()
			}
			item.Status = status
		}

		switch item.Status {
		case models.LineItemAllocated:
			tickets, err := s.Issuer.IssueLineItem(ctx, order, item)
			for _, t := range tickets {
				s.publish(ctx, log, RoutingTicketIssued, TicketIssuedMessage{
					TicketID:     t.ID,
					TicketNumber: t.TicketNumber,
					OrderID:      t.OrderID,
					EventID:      t.EventID,
					TierID:       t.TierID,
					IssuedAt:     t.IssuedAt,
				})
			}
			if err != nil {
				errs = append(errs, err)
			}
		case models.LineItemOversoldConflict:
			log.Warn("line item oversold",
				zap.String("item_id", item.ID.String()),
				zap.String("tier_id", item.TierID.String()),
				zap.Int("quantity", item.Quantity),
				zap.NamedError("reason", ErrOversoldConflict))
			err := s.publishRequired(ctx, RoutingOversoldConflict, OversoldConflictMessage{
				OrderID:         order.ID,
				ItemID:          item.ID,
				TierID:          item.TierID,
				Quantity:        item.Quantity,
				Amount:          item.Subtotal(),
				Currency:        order.Currency,
				PaymentIntentID: order.PaymentIntentID,
			})
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	event, err := s.Events.FindByID(ctx, order.EventID)
	if err != nil {
		errs = append(errs, fmt.Errorf("load event for fee: %w", err))
	} else if _, err := s.Fees.Record(ctx, order, event.HostID); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (s *webhookService) Resume(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.lookup(s.Orders.FindByID(ctx, orderID))
	if err != nil {
		return err
	}
	log := s.Logger.With(zap.String("order_id", order.ID.String()))
	if order.Status != models.OrderStatusPaid {
		log.Info("order not paid, nothing to resume", zap.String("status", string(order.Status)))
		return nil
	}
	if err := s.fulfill(ctx, order, log); err != nil {
		return err
	}
	log.Info("order fulfillment resumed")
	return nil
}

// remediateLatePayment handles money captured for an order that already
// failed. The order stays failed and the payment is refunded in full.
func (s *webhookService) remediateLatePayment(ctx context.Context, order *models.Order, log *zap.Logger) error {
	log.Warn("payment captured for failed order", zap.String("payment_intent", order.PaymentIntentID))
	msg := LatePaymentMessage{
		OrderID:         order.ID,
		EventID:         order.EventID,
		Amount:          order.TotalAmount,
		Currency:        order.Currency,
		PaymentIntentID: order.PaymentIntentID,
	}
	if s.Publisher != nil {
		return s.publishRequired(ctx, RoutingLatePayment, msg)
	}
	if s.Remediation == nil {
		return fmt.Errorf("late payment for order %s: no remediation configured", order.ID)
	}
	return s.Remediation.RefundLatePayment(ctx, msg)
}

func (s *webhookService) handleFailed(ctx context.Context, event *payment.Event, log *zap.Logger) (string, error) {
	order, err := s.findOrder(ctx, event.Data.Object)
	if err != nil {
		return "", err
	}
	log = log.With(zap.String("order_id", order.ID.String()))

	if order.Status != models.OrderStatusPending {
		log.Info("payment failure for settled order ignored", zap.String("status", string(order.Status)))
		return order.ID.String(), nil
	}

	err = s.States.Transition(ctx, order.ID, models.OrderStatusPending, models.OrderStatusFailed, reason(event))
	if errors.Is(err, ErrStaleTransition) {
		log.Info("order left pending concurrently")
		return order.ID.String(), nil
	}
	if err != nil {
		return "", err
	}

	order.Status = models.OrderStatusFailed
	s.publish(ctx, log, RoutingOrderFailed, statusMessage(order, s.Clock.Now()))
	log.Info("order failed")
	return order.ID.String(), nil
}

func (s *webhookService) handleRefunded(ctx context.Context, event *payment.Event, log *zap.Logger) (string, error) {
	obj := event.Data.Object
	if !obj.Refunded {
		log.Info("partial refund does not settle the order", zap.Int64("amount_refunded", obj.AmountRefunded))
		return "", nil
	}

	order, err := s.findOrder(ctx, obj)
	if err != nil {
		return "", err
	}
	log = log.With(zap.String("order_id", order.ID.String()))

	if order.Status != models.OrderStatusPaid {
		log.Warn("refund for order that is not paid", zap.String("status", string(order.Status)))
		return order.ID.String(), nil
	}

	err = s.States.Transition(ctx, order.ID, models.OrderStatusPaid, models.OrderStatusRefunded, reason(event))
	if errors.Is(err, ErrStaleTransition) {
		return order.ID.String(), nil
	}
	if err != nil {
		return "", err
	}

	order.Status = models.OrderStatusRefunded
	s.publish(ctx, log, RoutingOrderRefunded, statusMessage(order, s.Clock.Now()))
	log.Info("order refunded")
	return order.ID.String(), nil
}

func (s *webhookService) publish(ctx context.Context, log *zap.Logger, routingKey string, payload any) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(ctx, routingKey, payload); err != nil {
		log.Warn("publish failed", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

// publishRequired publishes a remediation message and returns the failure
// instead of logging it. Without a publisher it does nothing; the sweeper
// finds the item in the database instead.
func (s *webhookService) publishRequired(ctx context.Context, routingKey string, payload any) error {
	if s.Publisher == nil {
		return nil
	}
	if err := s.Publisher.Publish(ctx, routingKey, payload); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func reason(event *payment.Event) string {
	if event.ID == "" {
		return event.Type
	}
	return event.Type + " " + event.ID
}

func statusMessage(order *models.Order, now time.Time) OrderStatusMessage {
	return OrderStatusMessage{
		OrderID:     order.ID,
		EventID:     order.EventID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		OccurredAt:  now,
	}
}

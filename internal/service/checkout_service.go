package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Eursukkul/checkout-service/internal/metrics"
	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/repository"
	"github.com/Eursukkul/checkout-service/pkg/payment"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	MaxItemQuantity = 10

	defaultCustomerEmail = "guest@example.com"
	defaultCustomerName  = "Guest"
)

// PaymentGateway is implemented by *payment.Client.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, params payment.CreateSessionParams) (*payment.Session, error)
	CreateRefund(ctx context.Context, params payment.RefundParams) (*payment.Refund, error)
}

type CheckoutItem struct {
	TierID   uuid.UUID
	Quantity int
}

type CheckoutRequest struct {
	EventID       uuid.UUID
	Items         []CheckoutItem
	CustomerEmail string
	CustomerName  string
}

type CheckoutSession struct {
	SessionID string
	URL       string
	OrderID   uuid.UUID
}

type CheckoutService interface {
	CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

type CheckoutConfig struct {
	AppURL   string
	Currency string
}

type checkoutService struct {
	cfg      CheckoutConfig
	tx       repository.Transactor
	events   repository.EventRepository
	orders   repository.OrderRepository
	payments PaymentGateway
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewCheckoutService(
	cfg CheckoutConfig,
	tx repository.Transactor,
	events repository.EventRepository,
	orders repository.OrderRepository,
	payments PaymentGateway,
	m *metrics.Metrics,
	logger *zap.Logger,
) CheckoutService {
	return &checkoutService{
		cfg:      cfg,
		tx:       tx,
		events:   events,
		orders:   orders,
		payments: payments,
		metrics:  m,
		logger:   logger.Named("checkout"),
	}
}

type sessionItemMetadata struct {
	TierID   uuid.UUID `json:"tierId"`
	Quantity int       `json:"quantity"`
}

func (s *checkoutService) CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	session, err := s.createSession(ctx, req)
	switch {
	case err == nil:
		s.metrics.CheckoutSession("created")
	case errors.Is(err, ErrInventoryUnavailable):
		s.metrics.CheckoutSession("inventory_unavailable")
	case errors.Is(err, ErrExternalProvider):
		s.metrics.CheckoutSession("provider_error")
	default:
		s.metrics.CheckoutSession("rejected")
	}
	return session, err
}

func (s *checkoutService) createSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if err := validateCheckout(req); err != nil {
		return nil, err
	}

	event, err := s.events.FindByID(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	if !event.OnSale() {
		return nil, invalid("eventId", "event is %s and not on sale", event.Status)
	}

	currency := event.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}

	orderID := uuid.New()
	order := &models.Order{
		ID:            orderID,
		EventID:       event.ID,
		CustomerEmail: defaultCustomerEmail,
		CustomerName:  defaultCustomerName,
		Currency:      currency,
		Status:        models.OrderStatusPending,
	}
	if req.CustomerEmail != "" {
		order.CustomerEmail = req.CustomerEmail
	}
	if req.CustomerName != "" {
		order.CustomerName = req.CustomerName
	}

	lineItems := make([]payment.LineItem, 0, len(req.Items))
	metaItems := make([]sessionItemMetadata, 0, len(req.Items))
	for i, it := range req.Items {
		tier, ok := event.Tier(it.TierID)
		if !ok {
			return nil, fmt.Errorf("%w: %s does not belong to event %s", ErrTierNotFound, it.TierID, event.ID)
		}

		// Advisory only: nothing is held, the ledger decides at fulfillment.
		if tier.Sold+it.Quantity > tier.Quantity {
			available := tier.Available()
			return nil, &InventoryUnavailableError{
				TierID:    tier.ID,
				TierName:  tier.Name,
				Requested: it.Quantity,
				Available: available,
				Shortfall: it.Quantity - available,
			}
		}

		order.Items = append(order.Items, models.OrderItem{
			ID:        uuid.New(),
			OrderID:   orderID,
			TierID:    tier.ID,
			Quantity:  it.Quantity,
			UnitPrice: tier.Price,
			Position:  i,
			Status:    models.LineItemPending,
		})
		order.TotalAmount += tier.Price * int64(it.Quantity)

		description := tier.Description
		if description == "" {
			description = "Ticket for " + event.Name
		}
		lineItems = append(lineItems, payment.LineItem{
			Name:        event.Name + " - " + tier.Name,
			Description: description,
			UnitAmount:  tier.Price,
			Quantity:    it.Quantity,
			Metadata: map[string]string{
				"eventId": event.ID.String(),
				"tierId":  tier.ID.String(),
			},
		})
		metaItems = append(metaItems, sessionItemMetadata{TierID: tier.ID, Quantity: it.Quantity})
	}

	itemsJSON, err := json.Marshal(metaItems)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	session, err := s.payments.CreateCheckoutSession(ctx, payment.CreateSessionParams{
		Currency:      currency,
		LineItems:     lineItems,
		CustomerEmail: req.CustomerEmail,
		SuccessURL:    s.cfg.AppURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     fmt.Sprintf("%s/events/%s", s.cfg.AppURL, event.ID),
		Metadata: map[string]string{
			"orderId": orderID.String(),
			"eventId": event.ID.String(),
			"items":   string(itemsJSON),
		},
		IdempotencyKey: orderID.String(),
	})
	s.metrics.ObserveExternal("payment", "create_session", start, err)
	if err != nil {
		return nil, &ExternalProviderError{Provider: "payment", Op: "create checkout session", Err: err}
	}

	order.PaymentSessionID = session.ID
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.orders.Create(ctx, order)
	})
	if err != nil {
		s.logger.Error("order insert failed after session was opened",
			zap.String("order_id", orderID.String()),
			zap.String("session_id", session.ID),
			zap.Error(err))
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.logger.Info("checkout session created",
		zap.String("order_id", orderID.String()),
		zap.String("event_id", event.ID.String()),
		zap.String("session_id", session.ID),
		zap.Int64("total_amount", order.TotalAmount))

	return &CheckoutSession{SessionID: session.ID, URL: session.URL, OrderID: orderID}, nil
}

func validateCheckout(req CheckoutRequest) error {
	if req.EventID == uuid.Nil {
		return invalid("eventId", "is required")
	}
	if len(req.Items) == 0 {
		return invalid("items", "at least one item is required")
	}
	seen := make(map[uuid.UUID]bool, len(req.Items))
	for i, it := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if it.TierID == uuid.Nil {
			return invalid(field+".tierId", "is required")
		}
		if it.Quantity < 1 || it.Quantity > MaxItemQuantity {
			return invalid(field+".quantity", "must be between 1 and %d", MaxItemQuantity)
		}
		if seen[it.TierID] {
			return invalid(field+".tierId", "duplicate tier %s", it.TierID)
		}
		seen[it.TierID] = true
	}
	return nil
}

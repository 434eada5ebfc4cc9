//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Eursukkul/checkout-service/internal/clock"
	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/repository"
	"github.com/Eursukkul/checkout-service/internal/service"
	"github.com/Eursukkul/checkout-service/internal/ticketcode"
	"github.com/Eursukkul/checkout-service/pkg/billing"
	"github.com/Eursukkul/checkout-service/pkg/payment"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const webhookSecret = "whsec_integration"

type stubGateway struct {
	n atomic.Int64
}

func (g *stubGateway) CreateCheckoutSession(ctx context.Context, params payment.CreateSessionParams) (*payment.Session, error) {
	id := fmt.Sprintf("cs_it_%d_%s", g.n.Add(1), params.IdempotencyKey)
	return &payment.Session{ID: id, URL: "https://pay.example/" + id}, nil
}

func (g *stubGateway) CreateRefund(ctx context.Context, params payment.RefundParams) (*payment.Refund, error) {
	return &payment.Refund{ID: "re_" + params.IdempotencyKey, Amount: params.Amount, Status: "pending"}, nil
}

type stack struct {
	events   service.EventService
	checkout service.CheckoutService
	webhooks service.WebhookService
	orders   service.OrderService

	inventory repository.InventoryRepository
	tickets   repository.TicketRepository
}

func newStack(t *testing.T) *stack {
	t.Helper()
	codec, err := ticketcode.NewCodec("integration-ticket-secret")
	require.NoError(t, err)

	tx := repository.NewTransactor(testDB)
	eventRepo := repository.NewEventRepository(testDB)
	inventoryRepo := repository.NewInventoryRepository(testDB)
	orderRepo := repository.NewOrderRepository(testDB)
	ticketRepo := repository.NewTicketRepository(testDB)
	feeRepo := repository.NewFeeRepository(testDB)
	logger := zap.NewNop()

	return &stack{
		events: service.NewEventService(tx, eventRepo),
		checkout: service.NewCheckoutService(
			service.CheckoutConfig{AppURL: "http://app.test", Currency: "usd"},
			tx, eventRepo, orderRepo, &stubGateway{}, nil, logger,
		),
		webhooks: service.NewWebhookService(
			service.WebhookConfig{Secret: webhookSecret, Tolerance: 5 * time.Minute},
			service.WebhookDeps{
				Orders:   orderRepo,
				Events:   eventRepo,
				Webhooks: repository.NewWebhookRepository(testDB),
				States:   service.NewOrderStateMachine(tx, orderRepo),
				Ledger:   service.NewInventoryLedger(tx, inventoryRepo, orderRepo),
				Issuer:   service.NewTicketIssuer(ticketRepo, orderRepo, codec, clock.NewSystem(), nil),
				Fees:     service.NewFeeCalculator(feeRepo, billing.NewResolver(nil, nil, nil), nil),
				Logger:   logger,
			},
		),
		orders:    service.NewOrderService(orderRepo, ticketRepo, feeRepo),
		inventory: inventoryRepo,
		tickets:   ticketRepo,
	}
}

func (s *stack) seedEvent(t *testing.T, quantity int) *models.Event {
	t.Helper()
	event := &models.Event{
		HostID:   "host-it",
		Name:     "Golang Workshop Bangkok",
		StartsAt: time.Now().Add(72 * time.Hour),
		Currency: "usd",
		Tiers:    []models.TicketTier{{Name: "General", Price: 2500, Quantity: quantity}},
	}
	require.NoError(t, s.events.CreateEvent(context.Background(), event))
	return event
}

func (s *stack) deliverPaid(eventID string, session *service.CheckoutSession) error {
	body, err := json.Marshal(payment.Event{
		ID:   eventID,
		Type: payment.EventCheckoutCompleted,
		Data: payment.EventData{Object: payment.Object{
			ID:            session.SessionID,
			Object:        "checkout.session",
			PaymentStatus: payment.PaymentStatusPaid,
			PaymentIntent: "pi_" + session.OrderID.String(),
			Metadata:      map[string]string{"orderId": session.OrderID.String()},
		}},
	})
	if err != nil {
		return err
	}
	header := payment.SignHeader(webhookSecret, time.Now().Unix(), body)
	return s.webhooks.Process(context.Background(), body, header)
}

// Test: 20 buyers pass the soft check for the last 5 seats and all pay
// concurrently → exactly 5 orders get tickets, 15 line items are oversold.
func TestConcurrentPaidWebhooks_NeverOversell(t *testing.T) {
	cleanTables()
	s := newStack(t)
	event := s.seedEvent(t, 5)
	tierID := event.Tiers[0].ID

	const buyers = 20
	sessions := make([]*service.CheckoutSession, buyers)
	for i := range sessions {
		session, err := s.checkout.CreateSession(context.Background(), service.CheckoutRequest{
			EventID: event.ID,
			Items:   []service.CheckoutItem{{TierID: tierID, Quantity: 1}},
		})
		require.NoError(t, err)
		sessions[i] = session
	}

	var wg sync.WaitGroup
	wg.Add(buyers)
	for i, session := range sessions {
		go func(i int, session *service.CheckoutSession) {
			defer wg.Done()
			assert.NoError(t, s.deliverPaid(fmt.Sprintf("evt_race_%d", i), session))
		}(i, session)
	}
	wg.Wait()

	tier, err := s.inventory.FindTier(context.Background(), tierID)
	require.NoError(t, err)
	assert.Equal(t, 5, tier.Sold)

	issued, err := s.tickets.CountByTier(context.Background(), tierID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), issued)

	var fulfilled, oversold int
	for _, session := range sessions {
		view, err := s.orders.GetOrder(context.Background(), session.OrderID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusPaid, view.Order.Status)
		require.NotNil(t, view.Fee, "every paid order records a fee")
		switch view.Order.Items[0].Status {
		case models.LineItemFulfilled:
			fulfilled++
			assert.Len(t, view.Tickets, 1)
		case models.LineItemOversoldConflict:
			oversold++
			assert.Empty(t, view.Tickets)
		default:
			t.Errorf("unexpected line item status %s", view.Order.Items[0].Status)
		}
	}
	assert.Equal(t, 5, fulfilled)
	assert.Equal(t, 15, oversold)
}

// Test: the same paid event delivered 10 times concurrently issues one set of
// tickets and one fee row.
func TestDuplicatePaidWebhooks_IssueOnce(t *testing.T) {
	cleanTables()
	s := newStack(t)
	event := s.seedEvent(t, 50)
	tierID := event.Tiers[0].ID

	session, err := s.checkout.CreateSession(context.Background(), service.CheckoutRequest{
		EventID: event.ID,
		Items:   []service.CheckoutItem{{TierID: tierID, Quantity: 3}},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		go func() {
			defer wg.Done()
			// losers of the CAS may report a stale transition; a retry must converge
			if err := s.deliverPaid("evt_dup", session); err != nil {
				assert.NoError(t, s.deliverPaid("evt_dup", session))
			}
		}()
	}
	wg.Wait()

	tier, err := s.inventory.FindTier(context.Background(), tierID)
	require.NoError(t, err)
	assert.Equal(t, 3, tier.Sold)

	view, err := s.orders.GetOrder(context.Background(), session.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, view.Order.Status)
	assert.Len(t, view.Tickets, 3)
	require.NotNil(t, view.Fee)
	assert.Equal(t, int64(7500), view.Fee.Amount)
	assert.Equal(t, int64(375), view.Fee.FeeAmount)
	assert.Len(t, view.Transitions, 1)

	seen := map[string]bool{}
	for _, ticket := range view.Tickets {
		assert.False(t, seen[ticket.TicketNumber])
		seen[ticket.TicketNumber] = true
	}
}

func TestSoldNeverExceedsQuantity_CheckConstraint(t *testing.T) {
	cleanTables()
	s := newStack(t)
	event := s.seedEvent(t, 2)
	tierID := event.Tiers[0].ID

	err := testDB.Exec("UPDATE ticket_tiers SET sold = 3 WHERE id = ?", tierID).Error
	assert.Error(t, err, "check constraint must reject sold > quantity")

	ok, err := s.inventory.ConditionalIncrement(context.Background(), tierID, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.inventory.ConditionalIncrement(context.Background(), tierID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.orders.GetOrder(context.Background(), uuid.New())
	assert.ErrorIs(t, err, service.ErrOrderNotFound)
}

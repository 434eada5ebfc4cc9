package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Eursukkul/checkout-service/internal/clock"
	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/repository/memory"
	"github.com/Eursukkul/checkout-service/internal/ticketcode"
	"github.com/Eursukkul/checkout-service/pkg/billing"
	"github.com/Eursukkul/checkout-service/pkg/payment"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const webhookSecret = "whsec_test"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// --- Fake payment gateway ---

type fakeGateway struct {
	mu       sync.Mutex
	sessions []payment.CreateSessionParams
	refunds  []payment.RefundParams

	createSessionFn func(ctx context.Context, params payment.CreateSessionParams) (*payment.Session, error)
	createRefundFn  func(ctx context.Context, params payment.RefundParams) (*payment.Refund, error)
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, params payment.CreateSessionParams) (*payment.Session, error) {
	f.mu.Lock()
	f.sessions = append(f.sessions, params)
	n := len(f.sessions)
	f.mu.Unlock()

	if f.createSessionFn != nil {
		return f.createSessionFn(ctx, params)
	}
	id := fmt.Sprintf("cs_test_%d", n)
	return &payment.Session{ID: id, URL: "https://pay.example/" + id}, nil
}

func (f *fakeGateway) CreateRefund(ctx context.Context, params payment.RefundParams) (*payment.Refund, error) {
	f.mu.Lock()
	f.refunds = append(f.refunds, params)
	n := len(f.refunds)
	f.mu.Unlock()

	if f.createRefundFn != nil {
		return f.createRefundFn(ctx, params)
	}
	return &payment.Refund{ID: fmt.Sprintf("re_%d", n), Amount: params.Amount, Status: "pending"}, nil
}

func (f *fakeGateway) sessionCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// --- Recording publisher ---

type published struct {
	routingKey string
	payload    any
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, published{routingKey: routingKey, payload: payload})
	return nil
}

// failWith makes every publish return err until called again with nil.
func (p *recordingPublisher) failWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *recordingPublisher) last(routingKey string) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.messages) - 1; i >= 0; i-- {
		if p.messages[i].routingKey == routingKey {
			return p.messages[i].payload
		}
	}
	return nil
}

func (p *recordingPublisher) count(routingKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.messages {
		if m.routingKey == routingKey {
			n++
		}
	}
	return n
}

type fixedRates struct{ rate billing.Rate }

func (f fixedRates) Rate(context.Context, string) billing.Rate { return f.rate }

// --- Harness wiring every service onto one in-memory store ---

type harness struct {
	store     *memory.Store
	gateway   *fakeGateway
	publisher *recordingPublisher
	codec     *ticketcode.Codec
	clock     clock.Clock
	logger    *zap.Logger

	events      EventService
	ledger      InventoryLedger
	states      OrderStateMachine
	issuer      TicketIssuer
	fees        FeeCalculator
	checkout    CheckoutService
	webhooks    WebhookService
	orders      OrderService
	remediation RemediationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	codec, err := ticketcode.NewCodec("ticket-secret")
	require.NoError(t, err)

	store := memory.New()
	clk := clock.NewFixed(testNow)
	logger := zap.NewNop()
	h := &harness{
		store:     store,
		gateway:   &fakeGateway{},
		publisher: &recordingPublisher{},
		codec:     codec,
		clock:     clk,
		logger:    logger,
	}

	h.events = NewEventService(store, store.Events())
	h.ledger = NewInventoryLedger(store, store.Inventory(), store.Orders())
	h.states = NewOrderStateMachine(store, store.Orders())
	h.issuer = NewTicketIssuer(store.Tickets(), store.Orders(), codec, clk, nil)
	h.fees = NewFeeCalculator(store.Fees(), fixedRates{billing.Rate{Plan: "pro", Bps: 300, Source: billing.SourceBilling}}, nil)
	h.checkout = NewCheckoutService(
		CheckoutConfig{AppURL: "http://app.test", Currency: "usd"},
		store, store.Events(), store.Orders(), h.gateway, nil, logger,
	)
	h.orders = NewOrderService(store.Orders(), store.Tickets(), store.Fees())
	h.remediation = NewRemediationService(store.Orders(), h.gateway, nil, logger)
	h.rewire(h.publisher)
	return h
}

// rewire rebuilds the webhook processor around publisher. A nil publisher
// runs it the way the service runs without a broker.
func (h *harness) rewire(publisher EventPublisher) {
	h.webhooks = NewWebhookService(
		WebhookConfig{Secret: webhookSecret, Tolerance: 5 * time.Minute},
		WebhookDeps{
			Orders:      h.store.Orders(),
			Events:      h.store.Events(),
			Webhooks:    h.store.Webhooks(),
			States:      h.states,
			Ledger:      h.ledger,
			Issuer:      h.issuer,
			Fees:        h.fees,
			Publisher:   publisher,
			Remediation: h.remediation,
			Clock:       h.clock,
			Logger:      h.logger,
		},
	)
}

func (h *harness) processed(t *testing.T, key string) bool {
	t.Helper()
	ok, err := h.store.Webhooks().IsProcessed(context.Background(), key)
	require.NoError(t, err)
	return ok
}

// seedEvent creates a published event with one tier per quantity given.
func (h *harness) seedEvent(t *testing.T, quantities ...int) *models.Event {
	t.Helper()
	event := &models.Event{
		HostID:   "host-1",
		Name:     "Golang Meetup Bangkok",
		StartsAt: testNow.Add(72 * time.Hour),
		Currency: "usd",
	}
	for i, q := range quantities {
		event.Tiers = append(event.Tiers, models.TicketTier{
			Name:     fmt.Sprintf("Tier %d", i+1),
			Price:    2500,
			Quantity: q,
		})
	}
	require.NoError(t, h.events.CreateEvent(context.Background(), event))
	return event
}

func (h *harness) buy(t *testing.T, eventID, tierID uuid.UUID, quantity int) *CheckoutSession {
	t.Helper()
	session, err := h.checkout.CreateSession(context.Background(), CheckoutRequest{
		EventID: eventID,
		Items:   []CheckoutItem{{TierID: tierID, Quantity: quantity}},
	})
	require.NoError(t, err)
	return session
}

func (h *harness) tier(t *testing.T, id uuid.UUID) *models.TicketTier {
	t.Helper()
	tier, err := h.store.Inventory().FindTier(context.Background(), id)
	require.NoError(t, err)
	return tier
}

func (h *harness) order(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := h.store.Orders().FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func (h *harness) tickets(t *testing.T, orderID uuid.UUID) []models.Ticket {
	t.Helper()
	tickets, err := h.store.Tickets().FindByOrder(context.Background(), orderID)
	require.NoError(t, err)
	return tickets
}

func (h *harness) deliver(event payment.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	header := payment.SignHeader(webhookSecret, testNow.Unix(), body)
	return h.webhooks.Process(context.Background(), body, header)
}

func sessionEvent(id, eventType string, session *CheckoutSession) payment.Event {
	return payment.Event{
		ID:   id,
		Type: eventType,
		Data: payment.EventData{Object: payment.Object{
			ID:            session.SessionID,
			Object:        "checkout.session",
			PaymentStatus: payment.PaymentStatusPaid,
			PaymentIntent: "pi_" + session.OrderID.String()[:8],
			CustomerDetails: &payment.CustomerDetails{
				Email: "buyer@example.com",
				Name:  "Ada Buyer",
			},
			Metadata: map[string]string{"orderId": session.OrderID.String()},
		}},
	}
}

func paidEvent(id string, session *CheckoutSession) payment.Event {
	return sessionEvent(id, payment.EventCheckoutCompleted, session)
}

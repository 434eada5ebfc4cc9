package service

import (
	"context"
	"testing"
	"time"

	"github.com/Eursukkul/checkout-service/internal/clock"
	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/pkg/payment"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newSweeper returns a sweeper whose clock is far enough ahead that every
// stored line item is past the grace period.
func newSweeper(h *harness) *Sweeper {
	return NewSweeper(
		SweepConfig{Interval: time.Minute, Grace: 5 * time.Minute},
		h.store.Orders(), h.webhooks, h.remediation,
		clock.NewFixed(time.Now().Add(time.Hour)), nil, zap.NewNop(),
	)
}

func TestSweeper_RefundsOversoldWithoutBroker(t *testing.T) {
	h := newHarness(t)
	h.rewire(nil)
	event := h.seedEvent(t, 1)
	first := h.buy(t, event.ID, event.Tiers[0].ID, 1)
	second := h.buy(t, event.ID, event.Tiers[0].ID, 1)
	require.NoError(t, h.deliver(paidEvent("evt_a", first)))
	require.NoError(t, h.deliver(paidEvent("evt_b", second)))
	item := h.order(t, second.OrderID).Items[0]
	require.Equal(t, models.LineItemOversoldConflict, item.Status)

	report, err := newSweeper(h).Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, SweepReport{Refunded: 1}, report)
	require.Len(t, h.gateway.refunds, 1)
	assert.Equal(t, "refund-"+item.ID.String(), h.gateway.refunds[0].IdempotencyKey)
	assert.Equal(t, int64(2500), h.gateway.refunds[0].Amount)
	assert.Equal(t, models.LineItemRefundRequested, h.order(t, second.OrderID).Items[0].Status)

	report, err = newSweeper(h).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)
	assert.Len(t, h.gateway.refunds, 1)
}

func TestSweeper_RefundFailureIsCountedAndRetried(t *testing.T) {
	h := newHarness(t)
	order, _ := oversoldOrder(t, h)
	h.gateway.createRefundFn = func(ctx context.Context, params payment.RefundParams) (*payment.Refund, error) {
		return nil, &payment.APIError{StatusCode: 503}
	}
	sweeper := newSweeper(h)

	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Failed: 1}, report)
	assert.Equal(t, models.LineItemOversoldConflict, h.order(t, order.ID).Items[0].Status)

	h.gateway.createRefundFn = nil
	report, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Refunded: 1}, report)
}

func TestSweeper_ResumesStalledPaidOrder(t *testing.T) {
	h := newHarness(t)
	event := h.seedEvent(t, 10, 10)
	session, err := h.checkout.CreateSession(context.Background(), CheckoutRequest{
		EventID: event.ID,
		Items: []CheckoutItem{
			{TierID: event.Tiers[0].ID, Quantity: 1},
			{TierID: event.Tiers[1].ID, Quantity: 2},
		},
	})
	require.NoError(t, err)
	// The delivery that paid the order stopped before fulfilling it.
	require.NoError(t, h.states.Transition(context.Background(), session.OrderID,
		models.OrderStatusPending, models.OrderStatusPaid, "evt_crashed"))

	report, err := newSweeper(h).Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, SweepReport{Resumed: 1}, report)
	order := h.order(t, session.OrderID)
	assert.Equal(t, models.LineItemFulfilled, order.Items[0].Status)
	assert.Equal(t, models.LineItemFulfilled, order.Items[1].Status)
	assert.Len(t, h.tickets(t, session.OrderID), 3)
	assert.Equal(t, 2, h.tier(t, event.Tiers[1].ID).Sold)

	_, err = h.store.Fees().FindByOrder(context.Background(), session.OrderID)
	assert.NoError(t, err)
}

func TestSweeper_LeavesRecentAndUnpaidItems(t *testing.T) {
	h := newHarness(t)
	event := h.seedEvent(t, 10)
	pending := h.buy(t, event.ID, event.Tiers[0].ID, 1)
	recent := h.buy(t, event.ID, event.Tiers[0].ID, 1)
	require.NoError(t, h.states.Transition(context.Background(), recent.OrderID,
		models.OrderStatusPending, models.OrderStatusPaid, "evt_in_flight"))

	sweeper := NewSweeper(
		SweepConfig{Interval: time.Minute, Grace: time.Hour},
		h.store.Orders(), h.webhooks, h.remediation, clock.NewSystem(), nil, zap.NewNop(),
	)
	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)
	assert.Equal(t, models.LineItemPending, h.order(t, recent.OrderID).Items[0].Status)

	report, err = newSweeper(h).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Resumed: 1}, report)
	assert.Equal(t, models.LineItemPending, h.order(t, pending.OrderID).Items[0].Status)
}

func TestWebhook_ResumeIgnoresOrdersThatAreNotPaid(t *testing.T) {
	h := newHarness(t)
	event := h.seedEvent(t, 10)
	session := h.buy(t, event.ID, event.Tiers[0].ID, 1)

	require.NoError(t, h.webhooks.Resume(context.Background(), session.OrderID))
	assert.Equal(t, models.LineItemPending, h.order(t, session.OrderID).Items[0].Status)
	assert.Empty(t, h.tickets(t, session.OrderID))

	assert.ErrorIs(t, h.webhooks.Resume(context.Background(), uuid.New()), ErrOrderNotFound)
}

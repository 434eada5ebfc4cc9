package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Eursukkul/checkout-service/internal/metrics"
	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/repository"
	"github.com/Eursukkul/checkout-service/pkg/billing"
	"github.com/google/uuid"
)

// ComputeFee splits total by a rate in basis points, rounding the fee half
// up. fee + payout always equals total.
func ComputeFee(total int64, bps int) (fee, payout int64) {
	fee = (total*int64(bps) + 5000) / 10000
	return fee, total - fee
}

// RateResolver is implemented by *billing.Resolver.
type RateResolver interface {
	Rate(ctx context.Context, hostID string) billing.Rate
}

type FeeCalculator interface {
	// Record writes the order's fee transaction at the host's current rate.
	// A second call for the same order returns the first record.
	Record(ctx context.Context, order *models.Order, hostID string) (*models.FeeTransaction, error)
}

type feeCalculator struct {
	fees    repository.FeeRepository
	rates   RateResolver
	metrics *metrics.Metrics
}

func NewFeeCalculator(fees repository.FeeRepository, rates RateResolver, m *metrics.Metrics) FeeCalculator {
	return &feeCalculator{fees: fees, rates: rates, metrics: m}
}

func (c *feeCalculator) Record(ctx context.Context, order *models.Order, hostID string) (*models.FeeTransaction, error) {
	existing, err := c.fees.FindByOrder(ctx, order.ID)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("load fee for order %s: %w", order.ID, err)
	}

	start := time.Now()
	rate := c.rates.Rate(ctx, hostID)
	c.metrics.ObserveExternalOutcome("billing", "rate", start, rateOutcome(rate))

	fee, payout := ComputeFee(order.TotalAmount, rate.Bps)
	record := &models.FeeTransaction{
		ID:         uuid.New(),
		OrderID:    order.ID,
		HostID:     hostID,
		Amount:     order.TotalAmount,
		FeeAmount:  fee,
		FeeRateBps: rate.Bps,
		Payout:     payout,
		Currency:   order.Currency,
		Plan:       rate.Plan,
		RateSource: models.RateSource(rate.Source),
	}

	created, err := c.fees.CreateIfAbsent(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("record fee for order %s: %w", order.ID, err)
	}
	if !created {
		return c.fees.FindByOrder(ctx, order.ID)
	}
	c.metrics.FeeRecorded(string(rate.Source))
	return record, nil
}

// rateOutcome labels the billing lookup: the resolver never fails, it
// falls back to the default plan instead.
func rateOutcome(rate billing.Rate) string {
	if rate.Source == billing.SourceFallback {
		return "fallback"
	}
	return "ok"
}

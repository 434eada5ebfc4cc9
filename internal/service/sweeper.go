package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Eursukkul/checkout-service/internal/clock"
	"github.com/Eursukkul/checkout-service/internal/metrics"
	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SweepConfig struct {
	Interval time.Duration
	// Grace is how long a line item must sit untouched before the sweeper
	// takes it over from an in-flight webhook.
	Grace time.Duration
	Batch int
}

type SweepReport struct {
	Resumed  int
	Refunded int
	Failed   int
}

// Sweeper re-drives line items of paid orders that a webhook left behind.
// Pending and allocated items are fulfilled again through the webhook
// processor. Oversold items are refunded directly, which covers a
// remediation message that was never published or was lost.
type Sweeper struct {
	cfg         SweepConfig
	orders      repository.OrderRepository
	webhooks    WebhookService
	remediation RemediationService
	clock       clock.Clock
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewSweeper(
	cfg SweepConfig,
	orders repository.OrderRepository,
	webhooks WebhookService,
	remediation RemediationService,
	clk clock.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Sweeper {
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Sweeper{
		cfg:         cfg,
		orders:      orders,
		webhooks:    webhooks,
		remediation: remediation,
		clock:       clk,
		metrics:     m,
		logger:      logger.Named("sweeper"),
	}
}

// Start runs Sweep every Interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("sweeper stopped")
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.logger.Error("sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// Sweep handles one batch of stalled line items. A failure on one item is
// logged and counted; the item is picked up again on the next run.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	cutoff := s.clock.Now().Add(-s.cfg.Grace)
	items, err := s.orders.ListStalledItems(ctx, []models.LineItemStatus{
		models.LineItemPending,
		models.LineItemAllocated,
		models.LineItemOversoldConflict,
	}, cutoff, s.cfg.Batch)
	if err != nil {
		return report, fmt.Errorf("list stalled items: %w", err)
	}

	resumed := make(map[uuid.UUID]bool)
	for _, item := range items {
		log := s.logger.With(zap.String("order_id", item.OrderID.String()), zap.String("item_id", item.ID.String()))

		if item.Status == models.LineItemOversoldConflict {
			err := s.remediation.RefundOversold(ctx, OversoldConflictMessage{
				OrderID:  item.OrderID,
				ItemID:   item.ID,
				TierID:   item.TierID,
				Quantity: item.Quantity,
				Amount:   item.Subtotal(),
			})
			s.metrics.ItemSwept("refund", err)
			if err != nil {
				log.Warn("refund of oversold line item failed", zap.Error(err))
				report.Failed++
				continue
			}
			report.Refunded++
			continue
		}

		// One resume fulfills every unfinished item of the order.
		if resumed[item.OrderID] {
			continue
		}
		resumed[item.OrderID] = true
		err := s.webhooks.Resume(ctx, item.OrderID)
		s.metrics.ItemSwept("resume", err)
		if err != nil {
			log.Warn("resuming fulfillment failed", zap.Error(err))
			report.Failed++
			continue
		}
		report.Resumed++
	}

	if report != (SweepReport{}) {
		s.logger.Info("sweep finished",
			zap.Int("resumed", report.Resumed),
			zap.Int("refunded", report.Refunded),
			zap.Int("failed", report.Failed))
	}
	return report, nil
}

package billing

import (
	"context"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type RateSource string

const (
	SourceBilling  RateSource = "billing"
	SourceFallback RateSource = "fallback"
)

// Rate is a host's platform fee rate in basis points.
type Rate struct {
	Plan   string
	Bps    int
	Source RateSource
}

// SubscriptionGetter is implemented by *Client.
type SubscriptionGetter interface {
	GetSubscription(ctx context.Context, hostID string) (*Subscription, error)
}

// Resolver looks up fee rates. Concurrent lookups for the same host share
// one request. A nil getter always resolves to the fallback plan.
type Resolver struct {
	getter  SubscriptionGetter
	catalog *Catalog
	logger  *zap.Logger
	group   singleflight.Group
}

func NewResolver(getter SubscriptionGetter, catalog *Catalog, logger *zap.Logger) *Resolver {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{getter: getter, catalog: catalog, logger: logger}
}

// Rate never fails: when the collaborator cannot answer, the catalog's
// fallback plan is returned with SourceFallback.
func (r *Resolver) Rate(ctx context.Context, hostID string) Rate {
	if r.getter == nil || hostID == "" {
		return r.fallback()
	}

	v, err, _ := r.group.Do(hostID, func() (any, error) {
		return r.getter.GetSubscription(ctx, hostID)
	})
	if err != nil {
		r.logger.Warn("plan lookup failed, using fallback rate",
			zap.String("host_id", hostID), zap.Error(err))
		return r.fallback()
	}

	sub := v.(*Subscription)
	if sub.Features.PlatformFeeRate > 0 && sub.Features.PlatformFeeRate < 1 {
		return Rate{
			Plan:   sub.Plan,
			Bps:    int(math.Round(sub.Features.PlatformFeeRate * 10000)),
			Source: SourceBilling,
		}
	}
	if p, ok := r.catalog.Lookup(sub.Plan); ok {
		return Rate{Plan: sub.Plan, Bps: p.FeeRateBps, Source: SourceBilling}
	}
	r.logger.Warn("unknown plan, using fallback rate",
		zap.String("host_id", hostID), zap.String("plan", sub.Plan))
	return r.fallback()
}

func (r *Resolver) fallback() Rate {
	name, p := r.catalog.FallbackPlan()
	return Rate{Plan: name, Bps: p.FeeRateBps, Source: SourceFallback}
}

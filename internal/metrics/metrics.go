// Package metrics holds the service's Prometheus collectors. All methods
// are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "checkout"

type Metrics struct {
	CheckoutSessions  *prometheus.CounterVec
	WebhookEvents     *prometheus.CounterVec
	TicketsIssued     prometheus.Counter
	OversoldConflicts prometheus.Counter
	FeesRecorded      *prometheus.CounterVec
	ExternalLatency   *prometheus.HistogramVec
	MessagesConsumed  *prometheus.CounterVec
	SweptItems        *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckoutSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Checkout session creations by outcome.",
		}, []string{"outcome"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment webhook deliveries by event type and outcome.",
		}, []string{"type", "outcome"}),
		TicketsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_issued_total",
			Help:      "Ticket rows written.",
		}),
		OversoldConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oversold_conflicts_total",
			Help:      "Line items that lost the capacity race at fulfillment.",
		}),
		FeesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_recorded_total",
			Help:      "Fee transactions written by rate source.",
		}, []string{"source"}),
		ExternalLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_request_seconds",
			Help:      "Latency of calls to external collaborators.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "op", "outcome"}),
		MessagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Broker messages handled by routing key and outcome.",
		}, []string{"routing_key", "outcome"}),
		SweptItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_items_total",
			Help:      "Stalled line items re-driven by the sweeper by action and outcome.",
		}, []string{"action", "outcome"}),
	}
	reg.MustRegister(
		m.CheckoutSessions,
		m.WebhookEvents,
		m.TicketsIssued,
		m.OversoldConflicts,
		m.FeesRecorded,
		m.ExternalLatency,
		m.MessagesConsumed,
		m.SweptItems,
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) CheckoutSession(result string) {
	if m == nil {
		return
	}
	m.CheckoutSessions.WithLabelValues(result).Inc()
}

func (m *Metrics) WebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) TicketIssued() {
	if m == nil {
		return
	}
	m.TicketsIssued.Inc()
}

func (m *Metrics) OversoldConflict() {
	if m == nil {
		return
	}
	m.OversoldConflicts.Inc()
}

func (m *Metrics) FeeRecorded(source string) {
	if m == nil {
		return
	}
	m.FeesRecorded.WithLabelValues(source).Inc()
}

// ObserveExternal records how long a call to provider took.
func (m *Metrics) ObserveExternal(provider, op string, start time.Time, err error) {
	m.ObserveExternalOutcome(provider, op, start, outcome(err))
}

// ObserveExternalOutcome is ObserveExternal for callers that absorb the
// failure themselves, such as a lookup that falls back to a default.
func (m *Metrics) ObserveExternalOutcome(provider, op string, start time.Time, result string) {
	if m == nil {
		return
	}
	m.ExternalLatency.WithLabelValues(provider, op, result).Observe(time.Since(start).Seconds())
}

func (m *Metrics) MessageConsumed(routingKey string, err error) {
	if m == nil {
		return
	}
	m.MessagesConsumed.WithLabelValues(routingKey, outcome(err)).Inc()
}

func (m *Metrics) ItemSwept(action string, err error) {
	if m == nil {
		return
	}
	m.SweptItems.WithLabelValues(action, outcome(err)).Inc()
}

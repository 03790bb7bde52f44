package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "churnai"

var (
	// DecisionsTotal counts resolved offers by how they matched.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total number of retention offers resolved",
		},
		[]string{"offer_type", "match_kind"},
	)

	// ResponsesTotal counts recorded customer responses.
	ResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Total number of offer responses by outcome",
		},
		[]string{"offer_type", "outcome"},
	)

	// OfferApplicationFailuresTotal counts billing failures while applying offers.
	OfferApplicationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offer_application_failures_total",
			Help:      "Total number of offers that failed to apply",
		},
		[]string{"offer_type"},
	)

	// RevenueSavedMinorTotal sums revenue retained by accepted offers, in minor units.
	RevenueSavedMinorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revenue_saved_minor_total",
			Help:      "Revenue retained by accepted offers in minor currency units",
		},
		[]string{"currency"},
	)

	// PersistenceFailuresTotal counts store writes that failed.
	PersistenceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Total number of failed store operations",
		},
		[]string{"op"},
	)

	// EventsDroppedTotal counts events discarded because the queue was full.
	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped by the emitter",
		},
	)

	// EventSinkFailuresTotal counts events a sink failed to write.
	EventSinkFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_sink_failures_total",
			Help:      "Total number of event writes that failed per sink",
		},
		[]string{"sink"},
	)

	// BillingRequestDuration observes payment processor call latency.
	BillingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "billing_request_duration_seconds",
			Help:      "Latency of payment processor calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "result"},
	)

	// RateLimitedTotal counts HTTP requests rejected by the rate limiter.
	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Total number of HTTP requests rejected by the rate limiter",
		},
	)
)

// Collectors returns every domain metric for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		DecisionsTotal,
		ResponsesTotal,
		OfferApplicationFailuresTotal,
		RevenueSavedMinorTotal,
		PersistenceFailuresTotal,
		EventsDroppedTotal,
		EventSinkFailuresTotal,
		BillingRequestDuration,
		RateLimitedTotal,
	}
}

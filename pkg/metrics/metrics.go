// Package metrics registers the Prometheus collectors: external call
// counters/histograms, queue depth per kind, disposition transition
// counts, dead-letter and work-item counters, all built with promauto so
// registration can never be forgotten at a call site. The worker pools
// update WorkItemProcessedTotal and DeadLetterTotal; no component in this
// module updates the external-call, queue-depth, or transition
// collectors, which are exported at zero.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExternalCallDuration times outbound calls to the Listing, Search,
	// Render, and LLM providers, as recorded via ObserveExternalCall.
	ExternalCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ingestion",
		Name:      "external_call_duration_seconds",
		Help:      "Duration of outbound calls to external providers.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "outcome"})

	// ExternalCallTotal counts outbound calls recorded via
	// ObserveExternalCall, by provider and outcome.
	ExternalCallTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ingestion",
		Name:      "external_call_total",
		Help:      "Outbound calls to external providers.",
	}, []string{"provider", "outcome"})

	// QueueDepth reports the number of unclaimed, not-yet-due work items
	// per kind. Nothing in this module sets it.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ingestion",
		Name:      "queue_depth",
		Help:      "Unclaimed work items per kind.",
	}, []string{"kind"})

	// DeadLetterTotal counts work items that exhausted retries, per kind.
	DeadLetterTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ingestion",
		Name:      "dead_letter_total",
		Help:      "Work items moved to the dead-letter table.",
	}, []string{"kind"})

	// DispositionTransitionTotal counts Business status transitions by
	// from/to status. The Disposition Engine does not increment it.
	DispositionTransitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ingestion",
		Name:      "disposition_transition_total",
		Help:      "Business website_validation_status transitions.",
	}, []string{"from", "to"})

	// WorkItemProcessedTotal counts completed/failed work item leases.
	WorkItemProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ingestion",
		Name:      "work_item_processed_total",
		Help:      "Work items processed by a worker, by kind and outcome.",
	}, []string{"kind", "outcome"})
)

// ObserveExternalCall records one outbound call's duration and outcome.
// outcome should be "ok", "transient", "permanent", or "semantic".
func ObserveExternalCall(provider, outcome string, seconds float64) {
	ExternalCallDuration.WithLabelValues(provider, outcome).Observe(seconds)
	ExternalCallTotal.WithLabelValues(provider, outcome).Inc()
}

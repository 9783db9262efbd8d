// Package metrics exposes prometheus counters for upstream behavior. The
// interesting signal is which resolution step produced each answer and how
// often sources fall through to placeholders.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionSteps counts ladder outcomes per source. step is one of
	// cache/api/scrape/placeholder; outcome is hit/miss/error.
	ResolutionSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricescope",
		Name:      "resolution_steps_total",
		Help:      "Resolution ladder outcomes per source and step.",
	}, []string{"source", "step", "outcome"})

	// CompareRequests counts aggregation calls by mode.
	CompareRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricescope",
		Name:      "compare_requests_total",
		Help:      "Aggregation engine invocations by mode.",
	}, []string{"mode"})

	// SourceFailures counts per-source faults swallowed during fan-out.
	SourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricescope",
		Name:      "source_failures_total",
		Help:      "Source client faults isolated at the aggregation boundary.",
	}, []string{"source"})

	// IdentifierResolutions counts JAN lookups by outcome
	// (cache_hit/resolved/retry_resolved/unresolved).
	IdentifierResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricescope",
		Name:      "identifier_resolutions_total",
		Help:      "Marketplace-ID to JAN resolution outcomes.",
	}, []string{"outcome"})

	// WatchChecks counts stock monitor re-checks by result
	// (unchanged/price_changed/availability_changed/error).
	WatchChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricescope",
		Name:      "watch_checks_total",
		Help:      "Stock monitor re-check results.",
	}, []string{"result"})
)

// Step outcome helpers keep label spelling in one place.
func StepHit(source, step string)   { ResolutionSteps.WithLabelValues(source, step, "hit").Inc() }
func StepMiss(source, step string)  { ResolutionSteps.WithLabelValues(source, step, "miss").Inc() }
func StepError(source, step string) { ResolutionSteps.WithLabelValues(source, step, "error").Inc() }

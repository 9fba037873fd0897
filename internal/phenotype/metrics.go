package phenotype

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// samplesTotal counts inference runs by outcome.
	samplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "micruler_samples_total",
		Help: "Total samples processed by outcome",
	}, []string{"result"})

	// firingsTotal counts rule firings across all runs, seed rules included.
	firingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "micruler_rule_firings_total",
		Help: "Total rule firings",
	})

	// conflictsTotal counts reconciliation conflicts by kind.
	conflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "micruler_conflicts_total",
		Help: "Total phenotype conflicts by kind",
	}, []string{"kind"})

	// unresolvedTotal counts compounds that could not be classified.
	unresolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "micruler_unresolved_total",
		Help: "Total unclassified compounds by reason",
	}, []string{"reason"})

	// inferenceDuration tracks per-sample inference latency.
	inferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "micruler_inference_duration_seconds",
		Help:    "Per-sample inference duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
	})
)

// Outcome labels for samplesTotal.
const (
	resultOK             = "ok"
	resultNonTermination = "non_termination"
	resultCancelled      = "cancelled"
	resultError          = "error"
)

// Conflict kinds for conflictsTotal.
const (
	conflictMeasured = "measured"
	conflictInferred = "inferred"
)

// Reasons for unresolvedTotal.
const (
	reasonOrganism   = "organism"
	reasonBreakpoint = "breakpoint"
)

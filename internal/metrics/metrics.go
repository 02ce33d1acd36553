// Package metrics provides Prometheus metrics for quota allocation, the
// activity lifecycle and due scanning.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for the engine
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// =============================================================================
// Quota allocation
// =============================================================================

// QuotasGenerated counts quota creations by outcome (allocated, sunday, skip_period).
var QuotasGenerated = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quota",
	Name:      "generated_total",
	Help:      "Daily quotas generated, by outcome",
}, []string{"outcome"})

// QuotaSize tracks how many companies each allocated quota received.
var QuotaSize = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "quota",
	Name:      "assigned_size",
	Help:      "Number of companies assigned per generated quota",
	Buckets:   []float64{0, 5, 10, 15, 20, 25, 30, 35, 40, 50},
})

// QuotaShortfall counts quotas that received fewer companies than their target.
var QuotaShortfall = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "quota",
	Name:      "shortfall_total",
	Help:      "Quotas generated below target for lack of eligible companies",
})

// QuotaItems counts consume and cancel actions.
var QuotaItems = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quota",
	Name:      "items_total",
	Help:      "Quota items consumed or cancelled",
}, []string{"action"})

// Replacements counts cancel replacements by source (same_tier, any_tier, none).
var Replacements = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quota",
	Name:      "replacements_total",
	Help:      "Replacement outcomes after a quota item is cancelled",
}, []string{"source"})

// =============================================================================
// Activity lifecycle
// =============================================================================

// ActivityTransitions counts committed status updates by destination status.
var ActivityTransitions = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "activity",
	Name:      "transitions_total",
	Help:      "Committed activity status updates by destination status",
}, []string{"status"})

// ValidationRejections counts rejected updates by the offending field.
var ValidationRejections = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "activity",
	Name:      "validation_rejections_total",
	Help:      "Activity submissions rejected by validation, by field",
}, []string{"field"})

// SurveyDispatches counts survey sends by result.
var SurveyDispatches = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "survey",
	Name:      "dispatch_total",
	Help:      "Post-delivery survey dispatch attempts by result",
}, []string{"result"})

// =============================================================================
// Due scanning
// =============================================================================

// ScanDurationSeconds tracks time spent in one due scan.
var ScanDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "scanner",
	Name:      "duration_seconds",
	Help:      "Time taken to scan open activities for due items",
	Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
})

// DueItems tracks the size of the latest scan result by kind.
var DueItems = factory.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "scanner",
	Name:      "due_items",
	Help:      "Due items found by the latest scan, by kind",
}, []string{"kind"})

// ItemsSurfaced counts items delivered to the notification sink.
var ItemsSurfaced = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scanner",
	Name:      "items_surfaced_total",
	Help:      "Due items delivered to the notification sink, by kind",
}, []string{"kind"})

// ScanErrors counts failed scans or deliveries.
var ScanErrors = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scanner",
	Name:      "errors_total",
	Help:      "Failed scans or sink deliveries, by stage",
}, []string{"stage"})

// ResetScanGauges clears per-scan gauges before a new scan is recorded.
func ResetScanGauges() {
	DueItems.Reset()
}

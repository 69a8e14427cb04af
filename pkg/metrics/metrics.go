// Package metrics exposes Prometheus instrumentation for the harvest
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HarvestMetrics instruments harvest passes per configured source.
type HarvestMetrics struct {
	// Runs counts finished per-source harvests by outcome ("ok" or
	// "error").
	Runs *prometheus.CounterVec

	// Datasets tracks the catalog size per source after its last pass.
	Datasets *prometheus.GaugeVec

	// Duration observes how long one per-source harvest takes.
	Duration *prometheus.HistogramVec

	// ServicesRemoved counts decommissioned services.
	ServicesRemoved prometheus.Counter
}

// NewHarvestMetrics registers the harvest collectors with reg.
func NewHarvestMetrics(reg prometheus.Registerer) *HarvestMetrics {
	factory := promauto.With(reg)
	return &HarvestMetrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_runs_total",
			Help: "Finished per-source harvest passes by outcome.",
		}, []string{"source", "status"}),
		Datasets: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "harvest_datasets",
			Help: "Datasets in the catalog per source after its last pass.",
		}, []string{"source"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_duration_seconds",
			Help:    "Duration of one per-source harvest pass.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"source"}),
		ServicesRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "harvest_services_removed_total",
			Help: "Services decommissioned because no source claims them.",
		}),
	}
}

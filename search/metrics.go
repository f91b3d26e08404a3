package search

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the index instruments. They are registered on the registerer
// passed to NewMetrics.
type Metrics struct {
	BuildDuration prometheus.Histogram
	Documents     prometheus.Gauge
	Searches      *prometheus.CounterVec
}

// NewMetrics creates the index metrics under namespace. A nil registerer
// leaves them unregistered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "build_duration_seconds",
				Help:      "Time taken to rebuild the search index",
				Buckets:   prometheus.DefBuckets,
			},
		),
		Documents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "documents",
				Help:      "Number of documents in the current index",
			},
		),
		Searches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "queries_total",
				Help:      "Total number of search queries",
			},
			[]string{"status"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.BuildDuration, m.Documents, m.Searches)
	}
	return m
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles agreement closing metrics.
type Metrics struct {
	ItemsTotal        *prometheus.CounterVec
	DocumentsTotal    prometheus.Counter
	AmendmentFailures prometheus.Counter
	RunDuration       prometheus.Histogram
	BatchesFinalized  prometheus.Counter
	WorkflowItems     *prometheus.CounterVec
}

// New constructs and registers metrics.
func New() *Metrics {
	m := &Metrics{
		ItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "closing_items_total",
				Help: "Total processed agreements by message severity",
			},
			[]string{"severity"},
		),
		DocumentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "closing_documents_total",
			Help: "Total settlement documents created",
		}),
		AmendmentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "closing_amendment_failures_total",
			Help: "Total sales order amendments that failed",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "closing_run_duration_seconds",
			Help:    "Closing run duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		BatchesFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "closing_batches_finalized_total",
			Help: "Total data batches finalized",
		}),
		WorkflowItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "closing_workflow_items_total",
				Help: "Total workflow items by approval outcome",
			},
			[]string{"outcome"},
		),
	}
	prometheus.MustRegister(
		m.ItemsTotal,
		m.DocumentsTotal,
		m.AmendmentFailures,
		m.RunDuration,
		m.BatchesFinalized,
		m.WorkflowItems,
	)
	return m
}

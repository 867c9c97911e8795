package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	JobsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_jobs_submitted_total",
			Help: "Total number of jobs accepted for processing.",
		},
	)

	JobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_jobs_processed_total",
			Help: "Total number of jobs reaching a terminal state, by outcome.",
		},
		[]string{"outcome"}, // completed, failed
	)

	JobProcessingSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_job_processing_seconds",
			Help:    "Wall-clock duration of job processing, claim to terminal state.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 780},
		},
	)

	UpstreamRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_upstream_retries_total",
			Help: "Total number of retried upstream attempts.",
		},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Total number of webhook deliveries by status.",
		},
		[]string{"status"}, // ok, error
	)

	ReconcileRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_reconcile_retries_total",
			Help: "Total number of reconciliation re-deliveries by outcome.",
		},
		[]string{"outcome"}, // succeeded, failed
	)

	StaleReclaimsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_stale_reclaims_total",
			Help: "Total number of jobs reclaimed from a stale processing state.",
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		JobsSubmittedTotal,
		JobsProcessedTotal,
		JobProcessingSeconds,
		UpstreamRetriesTotal,
		DeliveriesTotal,
		ReconcileRetriesTotal,
		StaleReclaimsTotal,
	)
}

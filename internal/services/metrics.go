package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// deliveriesTotal counts ledger outcomes written by the dispatcher.
	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_deliveries_total",
			Help: "Per-recipient delivery outcomes recorded by the batch dispatcher.",
		},
		[]string{"status"},
	)

	// batchDuration observes one ProcessBatch call end to end.
	batchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newsletter_batch_duration_seconds",
			Help:    "Duration of one dispatcher batch (ledger writes and transport call).",
			Buckets: prometheus.DefBuckets,
		},
	)

	// broadcastsTotal counts full broadcasts by outcome (success|failure).
	broadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_broadcasts_total",
			Help: "Full subscriber broadcasts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(deliveriesTotal, batchDuration, broadcastsTotal)
}

// Package metrics defines the Prometheus collectors exposed on the
// monitoring endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DonationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "donations_created_total",
		Help: "Donation records created, labelled by source chain.",
	}, []string{"chain"})

	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "donation_status_transitions_total",
		Help: "Donation status transitions applied by the reconciliation paths.",
	}, []string{"status"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconciler_sweep_duration_seconds",
		Help:    "Wall time of a full reconciliation sweep.",
		Buckets: prometheus.DefBuckets,
	})

	SweepUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_sweep_updated_total",
		Help: "Donation records updated by reconciliation sweeps.",
	})

	AlertSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alert_stream_subscribers",
		Help: "Currently connected alert stream subscribers.",
	})

	AlertsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerts_dropped_total",
		Help: "Alert events dropped because a subscriber buffer was full.",
	})

	IrisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iris_requests_total",
		Help: "Requests to the attestation service, labelled by outcome.",
	}, []string{"endpoint", "outcome"})
)

// Package metrics registers the pipeline's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecipientOutcomes counts terminal recipient outcomes per run.
	RecipientOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_recipient_outcomes_total",
			Help: "Recipient rows finalized by the delivery orchestrator",
		},
		[]string{"status"}, // sent, failed, bounced
	)

	// SendAttempts counts individual transport calls.
	SendAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_send_attempts_total",
			Help: "Transport send attempts",
		},
		[]string{"result"}, // ok, transient, permanent
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaign_run_duration_seconds",
			Help:    "Wall time of a send or resend run",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7min
		},
		[]string{"kind"}, // send, resend
	)

	ClaimConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_claim_conflicts_total",
			Help: "Lifecycle compare-and-set operations that lost the race",
		},
		[]string{"op"},
	)

	PreviewDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audience_preview_duration_seconds",
			Help:    "Audience count query latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)
)

// RecordOutcome increments the recipient outcome counter.
func RecordOutcome(status string) {
	RecipientOutcomes.WithLabelValues(status).Inc()
}

// RecordAttempt increments the send attempt counter.
func RecordAttempt(result string) {
	SendAttempts.WithLabelValues(result).Inc()
}

// RecordRun observes the duration of a delivery run.
func RecordRun(kind string, d time.Duration) {
	RunDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordConflict increments the claim conflict counter.
func RecordConflict(op string) {
	ClaimConflicts.WithLabelValues(op).Inc()
}

// ObservePreview records audience preview latency.
func ObservePreview(d time.Duration) {
	PreviewDuration.Observe(d.Seconds())
}

// Package metrics provides Prometheus metrics for the submission pipeline
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Submission metrics
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parts_submissions_total",
			Help: "Total number of submissions by outcome",
		},
		[]string{"outcome"},
	)

	SubmittedParts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parts_submitted_records_total",
			Help: "Total number of part records staged into changesets",
		},
	)

	SubmissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parts_submission_duration_seconds",
			Help:    "Time taken by the submission pipeline",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	// Rate limiting metrics
	RateLimitDenials = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parts_rate_limit_denials_total",
			Help: "Total number of submissions rejected by the submitter rate limiter",
		},
	)

	// Hosting API metrics
	HostingErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parts_hosting_errors_total",
			Help: "Total number of failed hosting API stages",
		},
		[]string{"stage", "kind"},
	)

	PublishOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parts_publish_outcomes_total",
			Help: "Review request publisher terminal states",
		},
		[]string{"state"},
	)

	// Resolver metrics
	ResolverAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parts_resolver_attempts_total",
			Help: "Metadata resolver attempts by strategy and result",
		},
		[]string{"strategy", "result"},
	)

	ResolverDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parts_resolver_attempt_duration_seconds",
			Help:    "Duration of metadata resolver attempts",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"strategy"},
	)

	// Admin metrics
	AdminActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parts_admin_actions_total",
			Help: "Admin console actions by type and status",
		},
		[]string{"action", "status"},
	)
)

// RecordSubmission records the outcome of one submission
func RecordSubmission(outcome string, parts int, duration time.Duration) {
	SubmissionsTotal.WithLabelValues(outcome).Inc()
	SubmissionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if parts > 0 {
		SubmittedParts.Add(float64(parts))
	}
}

// RecordResolverAttempt records one resolver strategy attempt
func RecordResolverAttempt(strategy string, ok bool, duration time.Duration) {
	result := "failure"
	if ok {
		result = "success"
	}
	ResolverAttempts.WithLabelValues(strategy, result).Inc()
	ResolverDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordAdminAction records an admin console action
func RecordAdminAction(action string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	AdminActions.WithLabelValues(action, status).Inc()
}

// Timer is a helper for measuring duration
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Package metrics exposes Prometheus instrumentation for matching runs,
// the scoring oracle, notifications and the HTTP trigger.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run Metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drop_runs_total",
			Help: "Total number of matching runs by outcome",
		},
		[]string{"outcome"}, // completed, failed, insufficient_population, in_progress
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "drop_run_duration_seconds",
			Help:    "Duration of matching runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	RunStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drop_run_stage_duration_seconds",
			Help:    "Duration of individual run stages in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	PairsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drop_pairs_created_total",
			Help: "Total number of pairs persisted by algorithm",
		},
		[]string{"algorithm"},
	)

	UnmatchedCandidates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "drop_unmatched_candidates",
			Help: "Number of eligible candidates left unmatched by the last run",
		},
	)

	SolverFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drop_solver_fallbacks_total",
			Help: "Total number of times the optimal solver fell back to greedy",
		},
	)

	LastSuccessTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "drop_last_success_timestamp",
			Help: "Unix timestamp of the last completed run",
		},
	)

	// Oracle Metrics
	OracleRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drop_oracle_requests_total",
			Help: "Total number of scoring oracle requests by result",
		},
		[]string{"result"}, // success, error, rejected
	)

	OracleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "drop_oracle_request_duration_seconds",
			Help:    "Duration of scoring oracle requests in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Notification Metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drop_notifications_total",
			Help: "Total number of notifications by kind, channel and result",
		},
		[]string{"kind", "channel", "result"},
	)

	// Scheduler Metrics
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Total number of scheduled job executions by result",
		},
		[]string{"job", "result"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Duration of scheduled job executions in seconds",
			Buckets: []float64{.1, 1, 5, 30, 60, 300, 900},
		},
		[]string{"job"},
	)

	// HTTP Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 60},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordRun records a finished run.
func RecordRun(outcome string, duration time.Duration) {
	RunsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		RunDuration.Observe(duration.Seconds())
	}
	if outcome == "completed" {
		LastSuccessTimestamp.SetToCurrentTime()
	}
}

// RecordStage records how long a run stage took.
func RecordStage(stage string, duration time.Duration) {
	RunStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordOracleRequest records one oracle call.
func RecordOracleRequest(result string, duration time.Duration) {
	OracleRequests.WithLabelValues(result).Inc()
	OracleDuration.Observe(duration.Seconds())
}

// RecordNotification records a delivery outcome.
func RecordNotification(kind, channel string, sent bool) {
	result := "sent"
	if !sent {
		result = "failed"
	}
	NotificationsTotal.WithLabelValues(kind, channel, result).Inc()
}

// RecordAPIRequest records an HTTP request.
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordJob records a scheduled job execution. result is success, failure or skipped.
func RecordJob(job, result string, duration time.Duration) {
	JobRunsTotal.WithLabelValues(job, result).Inc()
	if result != "skipped" {
		JobDuration.WithLabelValues(job).Observe(duration.Seconds())
	}
}

// SetBreakerState publishes a breaker state (0=closed, 1=half-open, 2=open).
func SetBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// ─────────────────────────────────────────────────────────────────────────────
// Run observer
// ─────────────────────────────────────────────────────────────────────────────

// RunObserver publishes run results to Prometheus.
type RunObserver struct{}

// ObserveStage records a stage duration.
func (RunObserver) ObserveStage(stage string, duration time.Duration) {
	RecordStage(stage, duration)
}

// ObserveRun records a finished run.
func (RunObserver) ObserveRun(outcome string, duration time.Duration, pairsByAlgorithm map[string]int, unmatched int, degraded bool) {
	RecordRun(outcome, duration)
	for algorithm, n := range pairsByAlgorithm {
		PairsCreated.WithLabelValues(algorithm).Add(float64(n))
	}
	UnmatchedCandidates.Set(float64(unmatched))
	if degraded {
		SolverFallbacks.Inc()
	}
}

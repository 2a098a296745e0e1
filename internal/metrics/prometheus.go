/*-------------------------------------------------------------------------
 *
 * prometheus.go
 *    Prometheus metrics for AgentGate
 *
 * Provides counters, histograms, and gauges for trigger admission,
 * webhook ingestion, dispatch attempts, circuit breakers, and budgets.
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <ops@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/metrics/prometheus.go
 *
 *-------------------------------------------------------------------------
 */

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	/* Request metrics */
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	/* Trigger admission metrics */
	triggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgate_triggers_total",
			Help: "Total number of trigger requests by admission outcome",
		},
		[]string{"agent_key", "outcome"},
	)

	/* Webhook ingestion metrics */
	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgate_webhook_events_total",
			Help: "Total number of webhook events by result",
		},
		[]string{"status", "result"},
	)

	/* Dispatch metrics */
	dispatchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgate_dispatch_attempts_total",
			Help: "Total number of outbound dispatch attempts",
		},
		[]string{"agent_key", "status"},
	)

	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentgate_dispatch_duration_seconds",
			Help:    "Outbound dispatch duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"agent_key"},
	)

	/* Circuit breaker metrics */
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentgate_circuit_breaker_state",
			Help: "Circuit breaker state per agent (0=closed, 1=half_open, 2=open)",
		},
		[]string{"agent_key"},
	)

	circuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgate_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"agent_key", "from", "to"},
	)

	/* Budget metrics */
	budgetPctUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentgate_budget_pct_used",
			Help: "Percentage of monthly budget consumed per department",
		},
		[]string{"department"},
	)

	budgetStopsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgate_budget_stops_total",
			Help: "Total number of budget-stopped trigger requests",
		},
		[]string{"department"},
	)

	/* Run metrics */
	runTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgate_run_transitions_total",
			Help: "Total number of run state transitions",
		},
		[]string{"from", "to"},
	)

	/* Idempotency metrics */
	idempotencyHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgate_idempotency_hits_total",
			Help: "Total number of duplicate requests answered from the idempotency store",
		},
		[]string{"namespace"},
	)

	/* Dispatch queue metrics */
	dispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentgate_dispatch_queue_depth",
			Help: "Number of admitted runs waiting for dispatch",
		},
	)
)

/* RecordHTTPRequest records an HTTP request */
func RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	/* Convert status code to status class for better PromQL queries */
	statusClass := "unknown"
	if status >= 200 && status < 300 {
		statusClass = "2xx"
	} else if status >= 300 && status < 400 {
		statusClass = "3xx"
	} else if status >= 400 && status < 500 {
		statusClass = "4xx"
	} else if status >= 500 {
		statusClass = "5xx"
	}

	httpRequestsTotal.WithLabelValues(method, endpoint, statusClass).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

/* RecordTrigger records a trigger admission outcome */
func RecordTrigger(agentKey, outcome string) {
	triggersTotal.WithLabelValues(agentKey, outcome).Inc()
}

/* RecordWebhookEvent records a webhook ingestion result */
func RecordWebhookEvent(status, result string) {
	webhookEventsTotal.WithLabelValues(status, result).Inc()
}

/* RecordDispatchAttempt records an outbound dispatch attempt */
func RecordDispatchAttempt(agentKey, status string, duration time.Duration) {
	dispatchAttemptsTotal.WithLabelValues(agentKey, status).Inc()
	dispatchDuration.WithLabelValues(agentKey).Observe(duration.Seconds())
}

/* RecordCircuitBreakerState records the current breaker state for an agent */
func RecordCircuitBreakerState(agentKey string, state int) {
	circuitBreakerState.WithLabelValues(agentKey).Set(float64(state))
}

/* RecordCircuitBreakerTransition records a breaker state transition */
func RecordCircuitBreakerTransition(agentKey, from, to string) {
	circuitBreakerTransitions.WithLabelValues(agentKey, from, to).Inc()
}

/* RecordBudgetPctUsed records budget utilization for a department */
func RecordBudgetPctUsed(department string, pct float64) {
	budgetPctUsed.WithLabelValues(department).Set(pct)
}

/* RecordBudgetStop records a budget-stopped trigger */
func RecordBudgetStop(department string) {
	budgetStopsTotal.WithLabelValues(department).Inc()
}

/* RecordRunTransition records a run state transition */
func RecordRunTransition(from, to string) {
	runTransitionsTotal.WithLabelValues(from, to).Inc()
}

/* RecordIdempotencyHit records a duplicate request served from the store */
func RecordIdempotencyHit(namespace string) {
	idempotencyHitsTotal.WithLabelValues(namespace).Inc()
}

/* RecordDispatchQueued records a run entering the dispatch queue */
func RecordDispatchQueued() {
	dispatchQueueDepth.Inc()
}

/* RecordDispatchDequeued records a run leaving the dispatch queue */
func RecordDispatchDequeued() {
	dispatchQueueDepth.Dec()
}

/* Handler returns the Prometheus metrics handler */
func Handler() http.Handler {
	return promhttp.Handler()
}

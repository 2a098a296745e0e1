/*-------------------------------------------------------------------------
 *
 * health.go
 *    Rolling agent health statistics for AgentGate
 *
 * Aggregates dispatch outcomes per agent into a rolling window of
 * success rate, latency, and cost averages. Read-only view for
 * operators; request paths only feed outcomes in.
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <ops@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/resilience/health.go
 *
 *-------------------------------------------------------------------------
 */

package resilience

import (
	"sync"
	"time"
)

/* healthWindowSize bounds the number of outcomes retained per agent */
const healthWindowSize = 100

/* AgentHealth is the aggregated, read-only health view for one agent */
type AgentHealth struct {
	AgentKey           string    `json:"agent_key"`
	SuccessRate        float64   `json:"success_rate"`
	AvgExecutionTimeMs float64   `json:"avg_execution_time_ms"`
	AvgCostEUR         float64   `json:"avg_cost_eur"`
	ErrorRate          float64   `json:"error_rate"`
	CircuitBreaker     State     `json:"circuit_breaker_state"`
	SampleCount        int       `json:"sample_count"`
	LastChecked        time.Time `json:"last_checked"`
}

type outcome struct {
	success  bool
	duration time.Duration
	costEUR  float64
	at       time.Time
}

/* HealthTracker maintains rolling outcome windows per agent */
type HealthTracker struct {
	mu       sync.Mutex
	breakers *BreakerManager
	windows  map[string][]outcome
	now      func() time.Time
}

/* NewHealthTracker creates a health tracker over the breaker manager */
func NewHealthTracker(breakers *BreakerManager) *HealthTracker {
	return &HealthTracker{
		breakers: breakers,
		windows:  make(map[string][]outcome),
		now:      time.Now,
	}
}

/* RecordOutcome feeds one dispatch outcome into the rolling window */
func (h *HealthTracker) RecordOutcome(agentKey string, success bool, duration time.Duration, costEUR float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	window := append(h.windows[agentKey], outcome{
		success:  success,
		duration: duration,
		costEUR:  costEUR,
		at:       h.now(),
	})
	if len(window) > healthWindowSize {
		window = window[len(window)-healthWindowSize:]
	}
	h.windows[agentKey] = window
}

/* Health computes the aggregated view for one agent */
func (h *HealthTracker) Health(agentKey string) AgentHealth {
	h.mu.Lock()
	window := h.windows[agentKey]
	samples := make([]outcome, len(window))
	copy(samples, window)
	h.mu.Unlock()

	health := AgentHealth{
		AgentKey:       agentKey,
		CircuitBreaker: StateClosed,
		SampleCount:    len(samples),
		LastChecked:    h.now(),
	}
	if cb, ok := h.breakers.Get(agentKey); ok {
		health.CircuitBreaker = cb.GetState()
	}
	if len(samples) == 0 {
		return health
	}

	var successes int
	var totalDuration time.Duration
	var totalCost float64
	for _, o := range samples {
		if o.success {
			successes++
		}
		totalDuration += o.duration
		totalCost += o.costEUR
	}

	n := float64(len(samples))
	health.SuccessRate = float64(successes) / n
	health.ErrorRate = 1 - health.SuccessRate
	health.AvgExecutionTimeMs = float64(totalDuration.Milliseconds()) / n
	health.AvgCostEUR = totalCost / n
	return health
}

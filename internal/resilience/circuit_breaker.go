/*-------------------------------------------------------------------------
 *
 * circuit_breaker.go
 *    Per-agent circuit breaker for AgentGate
 *
 * Guards outbound dispatch to each agent connector. Opens on a run of
 * consecutive failures or on the windowed failure rate once enough
 * samples exist, rejects while open, and probes recovery with exactly
 * one half-open trial.
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/resilience/circuit_breaker.go
 *
 *-------------------------------------------------------------------------
 */

package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockpithq/agentgate/internal/metrics"
)

/* State represents circuit breaker state */
type State string

const (
	StateClosed   State = "closed"    // Normal operation
	StateOpen     State = "open"      // Failing, reject dispatches
	StateHalfOpen State = "half_open" // Probing recovery with one trial
)

func stateGaugeValue(s State) int {
	switch s {
	case StateClosed:
		return 0
	case StateHalfOpen:
		return 1
	default:
		return 2
	}
}

/* ErrCircuitOpen is returned for dispatches rejected locally while the
 * circuit is open or a half-open trial is already in flight */
var ErrCircuitOpen = fmt.Errorf("circuit breaker open")

/* BreakerConfig holds circuit breaker thresholds */
type BreakerConfig struct {
	FailureThreshold     int
	FailureRateThreshold float64
	MinimumSamples       int
	RecoveryTimeout      time.Duration
	WindowSize           time.Duration
}

/* DefaultBreakerConfig returns production defaults */
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:     5,
		FailureRateThreshold: 0.5,
		MinimumSamples:       10,
		RecoveryTimeout:      60 * time.Second,
		WindowSize:           5 * time.Minute,
	}
}

/* CircuitBreaker implements the circuit breaker pattern for one agent */
type CircuitBreaker struct {
	agentKey string
	cfg      BreakerConfig

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	windowStart         time.Time
	windowFailures      int
	windowTotal         int
	openedAt            time.Time
	trialInFlight       bool

	onStateChange func(agentKey string, from, to State)
	now           func() time.Time
}

/* Snapshot is a read-only view of breaker state */
type Snapshot struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	WindowStart         time.Time `json:"window_start"`
	WindowFailureCount  int       `json:"window_failure_count"`
	WindowTotalCount    int       `json:"window_total_count"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
}

/* NewCircuitBreaker creates a circuit breaker for an agent */
func NewCircuitBreaker(agentKey string, cfg BreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		agentKey: agentKey,
		cfg:      cfg,
		state:    StateClosed,
		now:      time.Now,
	}
	cb.windowStart = cb.now()
	return cb
}

/* Allow reports whether a dispatch attempt may proceed. While open it
 * transitions to half-open once the recovery timeout elapses; in
 * half-open only a single in-flight trial is permitted. */
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.cfg.RecoveryTimeout {
			cb.transition(StateHalfOpen)
			cb.trialInFlight = true
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.trialInFlight {
			return ErrCircuitOpen
		}
		cb.trialInFlight = true
		return nil
	}
	return nil
}

/* RecordSuccess records a successful attempt outcome */
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.rollWindow()
	cb.windowTotal++
	cb.consecutiveFailures = 0

	if cb.state == StateHalfOpen {
		/* Trial succeeded, close and reset counters */
		cb.trialInFlight = false
		cb.windowFailures = 0
		cb.windowTotal = 0
		cb.windowStart = cb.now()
		cb.transition(StateClosed)
	}
}

/* RecordFailure records a failed attempt outcome */
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.rollWindow()
	cb.windowTotal++
	cb.windowFailures++
	cb.consecutiveFailures++

	if cb.state == StateHalfOpen {
		/* Trial failed, back to open with a fresh recovery clock */
		cb.trialInFlight = false
		cb.openedAt = cb.now()
		cb.transition(StateOpen)
		return
	}

	if cb.state != StateClosed {
		return
	}

	if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
		cb.openedAt = cb.now()
		cb.transition(StateOpen)
		return
	}
	if cb.windowTotal > cb.cfg.MinimumSamples &&
		float64(cb.windowFailures)/float64(cb.windowTotal) >= cb.cfg.FailureRateThreshold {
		cb.openedAt = cb.now()
		cb.transition(StateOpen)
	}
}

/* Execute runs fn under circuit breaker protection */
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}

	err := fn()
	if err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

/* GetState returns the current breaker state */
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

/* GetSnapshot returns a copy of the breaker counters */
func (cb *CircuitBreaker) GetSnapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		State:               cb.state,
		ConsecutiveFailures: cb.consecutiveFailures,
		WindowStart:         cb.windowStart,
		WindowFailureCount:  cb.windowFailures,
		WindowTotalCount:    cb.windowTotal,
		OpenedAt:            cb.openedAt,
	}
}

/* SetStateChangeCallback sets a callback for state changes */
func (cb *CircuitBreaker) SetStateChangeCallback(callback func(agentKey string, from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = callback
}

/* rollWindow resets window counters once the window elapses. Caller
 * holds the lock. */
func (cb *CircuitBreaker) rollWindow() {
	if cb.now().Sub(cb.windowStart) >= cb.cfg.WindowSize {
		cb.windowStart = cb.now()
		cb.windowFailures = 0
		cb.windowTotal = 0
	}
}

/* transition moves the breaker to a new state. Caller holds the lock. */
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to

	metrics.RecordCircuitBreakerState(cb.agentKey, stateGaugeValue(to))
	metrics.RecordCircuitBreakerTransition(cb.agentKey, string(from), string(to))
	metrics.InfoWithContext(context.Background(), "Circuit breaker state changed", map[string]interface{}{
		"agent_key": cb.agentKey,
		"from":      string(from),
		"to":        string(to),
	})

	if cb.onStateChange != nil {
		cb.onStateChange(cb.agentKey, from, to)
	}
}

/* BreakerManager manages one circuit breaker per agent key */
type BreakerManager struct {
	cfg      BreakerConfig
	breakers map[string]*CircuitBreaker
	mu       sync.RWMutex
}

/* NewBreakerManager creates a breaker manager */
func NewBreakerManager(cfg BreakerConfig) *BreakerManager {
	return &BreakerManager{
		cfg:      cfg,
		breakers: make(map[string]*CircuitBreaker),
	}
}

/* GetOrCreate gets or creates the breaker for an agent */
func (bm *BreakerManager) GetOrCreate(agentKey string) *CircuitBreaker {
	bm.mu.RLock()
	cb, exists := bm.breakers[agentKey]
	bm.mu.RUnlock()
	if exists {
		return cb
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	if cb, exists := bm.breakers[agentKey]; exists {
		return cb
	}
	cb = NewCircuitBreaker(agentKey, bm.cfg)
	bm.breakers[agentKey] = cb
	return cb
}

/* Get gets the breaker for an agent if one exists */
func (bm *BreakerManager) Get(agentKey string) (*CircuitBreaker, bool) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	cb, exists := bm.breakers[agentKey]
	return cb, exists
}

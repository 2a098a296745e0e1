/*-------------------------------------------------------------------------
 *
 * circuit_breaker_test.go
 *    Tests for the per-agent circuit breaker
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/resilience/circuit_breaker_test.go
 *
 *-------------------------------------------------------------------------
 */

package resilience

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func testBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:     3,
		FailureRateThreshold: 0.5,
		MinimumSamples:       10,
		RecoveryTimeout:      5 * time.Second,
		WindowSize:           time.Minute,
	}
}

func newTestBreaker(at *time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker("sales_followup", testBreakerConfig())
	cb.now = func() time.Time { return *at }
	cb.windowStart = *at
	return cb
}

/* TestConsecutiveFailuresOpenBreaker tests the consecutive threshold */
func TestConsecutiveFailuresOpenBreaker(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cb := newTestBreaker(&now)

	for i := 0; i < 2; i++ {
		if err := cb.Allow(); err != nil {
			t.Fatalf("Expected attempt %d to be allowed, got %v", i, err)
		}
		cb.RecordFailure()
		if cb.GetState() != StateClosed {
			t.Fatalf("Expected closed after %d failures, got %s", i+1, cb.GetState())
		}
	}

	if err := cb.Allow(); err != nil {
		t.Fatalf("Expected attempt to be allowed, got %v", err)
	}
	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Errorf("Expected open after 3 consecutive failures, got %s", cb.GetState())
	}

	/* Open circuit rejects locally */
	if err := cb.Allow(); err != ErrCircuitOpen {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
}

/* TestFailureRateOpensBreaker tests the windowed failure-rate threshold */
func TestFailureRateOpensBreaker(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cb := newTestBreaker(&now)

	/* Alternate success/failure: rate stays at 0.5 but consecutive never
	 * reaches 3. Below minimum samples the breaker must stay closed. */
	for i := 0; i < 5; i++ {
		cb.RecordFailure()
		cb.RecordSuccess()
		if i < 4 && cb.GetState() != StateClosed {
			t.Fatalf("Expected closed below minimum samples, got %s at sample %d", cb.GetState(), (i+1)*2)
		}
	}

	/* Sample 11 crosses the minimum; a failure tips the rate to >= 0.5 */
	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Errorf("Expected open once rate threshold is met past minimum samples, got %s", cb.GetState())
	}
}

/* TestBreakerConvergence tests open -> half-open -> closed recovery with
 * counter reset */
func TestBreakerConvergence(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cb := newTestBreaker(&now)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected open, got %s", cb.GetState())
	}

	/* Before the recovery timeout the circuit stays open */
	now = now.Add(4 * time.Second)
	if err := cb.Allow(); err != ErrCircuitOpen {
		t.Fatalf("Expected ErrCircuitOpen before recovery timeout, got %v", err)
	}

	/* After the timeout one trial is admitted */
	now = now.Add(2 * time.Second)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Expected half-open trial to be allowed, got %v", err)
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("Expected half_open, got %s", cb.GetState())
	}

	/* A second concurrent trial is rejected */
	if err := cb.Allow(); err != ErrCircuitOpen {
		t.Errorf("Expected second half-open trial to be rejected, got %v", err)
	}

	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed after successful trial, got %s", cb.GetState())
	}

	snap := cb.GetSnapshot()
	if snap.ConsecutiveFailures != 0 || snap.WindowFailureCount != 0 {
		t.Errorf("Expected counters reset after recovery, got %+v", snap)
	}
}

/* TestHalfOpenFailureReopens tests that a failed trial reopens the
 * circuit with a fresh recovery clock */
func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cb := newTestBreaker(&now)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	openedAt := cb.GetSnapshot().OpenedAt

	now = now.Add(6 * time.Second)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Expected half-open trial to be allowed, got %v", err)
	}
	cb.RecordFailure()

	if cb.GetState() != StateOpen {
		t.Fatalf("Expected open after failed trial, got %s", cb.GetState())
	}
	if !cb.GetSnapshot().OpenedAt.After(openedAt) {
		t.Error("Expected openedAt to be reset on reopen")
	}
}

/* TestWindowRollover tests that old window counters expire */
func TestWindowRollover(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cb := newTestBreaker(&now)

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
	}
	if cb.GetSnapshot().WindowFailureCount != 2 {
		t.Fatalf("Expected 2 window failures, got %d", cb.GetSnapshot().WindowFailureCount)
	}

	now = now.Add(2 * time.Minute)
	cb.RecordSuccess()

	snap := cb.GetSnapshot()
	if snap.WindowFailureCount != 0 || snap.WindowTotalCount != 1 {
		t.Errorf("Expected fresh window after rollover, got failures=%d total=%d", snap.WindowFailureCount, snap.WindowTotalCount)
	}
}

/* TestExecuteFeedsBreaker tests the Execute convenience wrapper */
func TestExecuteFeedsBreaker(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cb := newTestBreaker(&now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, func() error {
			return fmt.Errorf("executor returned 503")
		})
		if err == nil {
			t.Fatal("Expected error from failing executor")
		}
	}

	err := cb.Execute(ctx, func() error {
		t.Fatal("Function must not run while circuit is open")
		return nil
	})
	if err != ErrCircuitOpen {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
}

/* TestBreakerManagerPerAgent tests that breakers are scoped per agent */
func TestBreakerManagerPerAgent(t *testing.T) {
	bm := NewBreakerManager(testBreakerConfig())

	a := bm.GetOrCreate("sales_followup")
	b := bm.GetOrCreate("finance_director")
	if a == b {
		t.Fatal("Expected distinct breakers per agent key")
	}
	if bm.GetOrCreate("sales_followup") != a {
		t.Error("Expected GetOrCreate to return the existing breaker")
	}

	for i := 0; i < 3; i++ {
		a.RecordFailure()
	}
	if a.GetState() != StateOpen {
		t.Errorf("Expected sales_followup breaker open, got %s", a.GetState())
	}
	if b.GetState() != StateClosed {
		t.Errorf("Expected finance_director breaker unaffected, got %s", b.GetState())
	}
}

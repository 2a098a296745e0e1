/*-------------------------------------------------------------------------
 *
 * chaos_test.go
 *    Failure injection suite for the dispatch path
 *
 * Exercises executor outages end to end: breaker opening under sustained
 * failure, half-open recovery, retry exhaustion, and queue saturation.
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/tests/chaos/chaos_test.go
 *
 *-------------------------------------------------------------------------
 */

package chaos

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cockpithq/agentgate/internal/audit"
	"github.com/cockpithq/agentgate/internal/budget"
	"github.com/cockpithq/agentgate/internal/catalog"
	"github.com/cockpithq/agentgate/internal/dispatch"
	"github.com/cockpithq/agentgate/internal/idempotency"
	"github.com/cockpithq/agentgate/internal/resilience"
	"github.com/cockpithq/agentgate/internal/run"
)

const chaosCatalog = `
departments:
  - key: sales
    monthly_budget_eur: 1000
agents:
  - agent_key: sales_followup
    department_key: sales
    type: agent
    hitl: false
    sla_minutes: 30
    budget_weight: 1.0
`

/* outageClient fails every dispatch until healed */
type outageClient struct {
	mu       sync.Mutex
	healthy  bool
	attempts int
	blockCh  chan struct{}
}

func (c *outageClient) Dispatch(ctx context.Context, r *run.Run, payload json.RawMessage) error {
	c.mu.Lock()
	c.attempts++
	healthy := c.healthy
	block := c.blockCh
	c.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if !healthy {
		return fmt.Errorf("executor returned 503: service unavailable")
	}
	return nil
}

func (c *outageClient) heal() {
	c.mu.Lock()
	c.healthy = true
	c.mu.Unlock()
}

func (c *outageClient) attemptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

type harness struct {
	dispatcher *dispatch.Dispatcher
	registry   *run.MemoryRegistry
	ledger     *budget.MemoryLedger
	breakers   *resilience.BreakerManager
	client     *outageClient
}

func newHarness(t *testing.T, client *outageClient, opts dispatch.Options) *harness {
	t.Helper()

	cat, err := catalog.Parse([]byte(chaosCatalog))
	if err != nil {
		t.Fatalf("Failed to parse catalog: %v", err)
	}

	sink := audit.NewMemorySink()
	registry := run.NewMemoryRegistry(sink)
	ledger := budget.NewMemoryLedger(cat)
	idem := idempotency.NewMemoryStore(15 * time.Minute)
	breakers := resilience.NewBreakerManager(resilience.BreakerConfig{
		FailureThreshold:     3,
		FailureRateThreshold: 0.5,
		MinimumSamples:       10,
		RecoveryTimeout:      50 * time.Millisecond,
		WindowSize:           time.Minute,
	})
	health := resilience.NewHealthTracker(breakers)

	if opts.Retry.MaxRetries == 0 {
		opts.Retry = resilience.RetryConfig{
			MaxRetries:   2,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2.0,
			IsRetryable:  resilience.IsRetryableError,
		}
	}

	d := dispatch.NewDispatcher(cat, idem, ledger, budget.NewEstimator(0.50), registry, sink, client, breakers, health, opts)
	d.Start()
	t.Cleanup(d.Stop)

	return &harness{
		dispatcher: d,
		registry:   registry,
		ledger:     ledger,
		breakers:   breakers,
		client:     client,
	}
}

func (h *harness) trigger(t *testing.T) dispatch.Admission {
	t.Helper()
	adm, err := h.dispatcher.Trigger(context.Background(), "sales_followup", uuid.New().String(), uuid.New().String(), dispatch.TriggerRequest{
		RequestID: uuid.New().String(),
		OrgID:     "acme",
		Actor:     "chaos@acme.test",
	})
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	return adm
}

func (h *harness) waitForStatus(t *testing.T, runID uuid.UUID, want run.Status) *run.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		r, err := h.registry.Get(context.Background(), runID)
		if err != nil {
			t.Fatalf("Failed to get run: %v", err)
		}
		if r.Status == want {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	r, _ := h.registry.Get(context.Background(), runID)
	t.Fatalf("Run %s never reached %s, last status %s", runID, want, r.Status)
	return nil
}

/* TestExecutorOutageOpensBreaker drives sustained failures through one
 * breaker and verifies it opens after the consecutive threshold and then
 * rejects further attempts locally */
func TestExecutorOutageOpensBreaker(t *testing.T) {
	ctx := context.Background()
	cb := resilience.NewCircuitBreaker("sales_followup", resilience.BreakerConfig{
		FailureThreshold:     3,
		FailureRateThreshold: 0.5,
		MinimumSamples:       10,
		RecoveryTimeout:      time.Minute,
		WindowSize:           time.Minute,
	})

	for i := 0; i < 3; i++ {
		if cb.GetState() != resilience.StateClosed {
			t.Fatalf("Expected closed breaker before failure %d, got %s", i, cb.GetState())
		}
		err := cb.Execute(ctx, func() error {
			return fmt.Errorf("executor returned 503: service unavailable")
		})
		if err == nil {
			t.Error("Expected failure from outage")
		}
	}

	if cb.GetState() != resilience.StateOpen {
		t.Fatalf("Expected open breaker after threshold, got %s", cb.GetState())
	}

	err := cb.Execute(ctx, func() error {
		t.Error("Attempt must not reach the executor while open")
		return nil
	})
	if err != resilience.ErrCircuitOpen {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
}

/* TestBreakerRecoversThroughHalfOpen verifies the single-trial half-open
 * path: one probe after the recovery timeout, success closes the breaker */
func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	ctx := context.Background()
	cb := resilience.NewCircuitBreaker("sales_followup", resilience.BreakerConfig{
		FailureThreshold:     2,
		FailureRateThreshold: 0.5,
		MinimumSamples:       10,
		RecoveryTimeout:      20 * time.Millisecond,
		WindowSize:           time.Minute,
	})

	for i := 0; i < 2; i++ {
		cb.Execute(ctx, func() error {
			return fmt.Errorf("connection refused")
		})
	}
	if cb.GetState() != resilience.StateOpen {
		t.Fatalf("Expected open breaker, got %s", cb.GetState())
	}

	time.Sleep(30 * time.Millisecond)

	if err := cb.Allow(); err != nil {
		t.Fatalf("Expected half-open trial to be allowed, got %v", err)
	}
	if cb.GetState() != resilience.StateHalfOpen {
		t.Fatalf("Expected half-open breaker, got %s", cb.GetState())
	}
	/* Second concurrent attempt must be rejected while the trial is out */
	if err := cb.Allow(); err != resilience.ErrCircuitOpen {
		t.Errorf("Expected single trial in half-open, got %v", err)
	}

	cb.RecordSuccess()
	if cb.GetState() != resilience.StateClosed {
		t.Errorf("Expected closed breaker after trial success, got %s", cb.GetState())
	}
}

/* TestRetryRecoversFromTransientOutage verifies a short outage is
 * absorbed by backoff retries without surfacing an error */
func TestRetryRecoversFromTransientOutage(t *testing.T) {
	ctx := context.Background()
	cfg := resilience.RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		IsRetryable:  resilience.IsRetryableError,
	}

	attempts := 0
	err := resilience.Retry(ctx, cfg, func(attempt int) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("dial tcp: connection refused")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

/* TestOutageFailsRunsAndChargesOnce runs the full dispatch path against a
 * dead executor: every admitted run must end failed with retry_exhausted,
 * the budget must be charged exactly once per admission, and the breaker
 * must converge to open */
func TestOutageFailsRunsAndChargesOnce(t *testing.T) {
	client := &outageClient{}
	h := newHarness(t, client, dispatch.Options{
		Workers:   1,
		QueueSize: 100,
		Timeout:   time.Second,
	})

	const triggers = 5
	var runIDs []uuid.UUID
	for i := 0; i < triggers; i++ {
		adm := h.trigger(t)
		if adm.Preview != "" {
			t.Fatalf("Expected admission, got preview %q", adm.Preview)
		}
		runIDs = append(runIDs, adm.RunID)
	}

	for _, id := range runIDs {
		r := h.waitForStatus(t, id, run.StatusFailed)
		if r.Error == nil {
			t.Fatalf("Failed run %s has no error reason", id)
		}
		if *r.Error != run.ReasonRetryExhausted && *r.Error != run.ReasonCircuitOpen {
			t.Errorf("Unexpected failure reason %q for run %s", *r.Error, id)
		}
	}

	snapshot, err := h.ledger.Snapshot(context.Background(), "sales")
	if err != nil {
		t.Fatalf("Failed to snapshot budget: %v", err)
	}
	want := 0.55 * triggers
	if snapshot.SpentEUR < want-0.001 || snapshot.SpentEUR > want+0.001 {
		t.Errorf("Expected %.2f EUR spent across outage, got %.2f", want, snapshot.SpentEUR)
	}

	cb, ok := h.breakers.Get("sales_followup")
	if !ok {
		t.Fatal("Expected a breaker for the failing agent")
	}
	if cb.GetState() != resilience.StateOpen {
		t.Errorf("Expected breaker open after sustained outage, got %s", cb.GetState())
	}
}

/* TestRecoveryAfterOutage heals the executor, waits out the recovery
 * timeout, and verifies new runs complete the dispatch leg again */
func TestRecoveryAfterOutage(t *testing.T) {
	client := &outageClient{}
	h := newHarness(t, client, dispatch.Options{
		Workers:   1,
		QueueSize: 100,
		Timeout:   time.Second,
	})

	/* Drive the breaker open */
	for i := 0; i < 3; i++ {
		adm := h.trigger(t)
		h.waitForStatus(t, adm.RunID, run.StatusFailed)
	}
	cb, ok := h.breakers.Get("sales_followup")
	if !ok {
		t.Fatal("Expected a breaker for the failing agent")
	}
	if cb.GetState() != resilience.StateOpen {
		t.Fatalf("Expected open breaker, got %s", cb.GetState())
	}

	client.heal()
	time.Sleep(60 * time.Millisecond)

	adm := h.trigger(t)

	/* A successful half-open trial closes the breaker; the run itself stays
	 * queued until the executor reports back */
	deadline := time.Now().Add(2 * time.Second)
	for cb.GetState() != resilience.StateClosed && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if cb.GetState() != resilience.StateClosed {
		t.Fatalf("Expected breaker closed after successful trial, got %s", cb.GetState())
	}
	r, err := h.registry.Get(context.Background(), adm.RunID)
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if r.Status != run.StatusQueued {
		t.Errorf("Expected recovered run queued for the executor, got %s", r.Status)
	}
}

/* TestQueueSaturationFailsOverflow fills the dispatch queue behind a
 * blocked worker and verifies overflow admissions fail fast instead of
 * blocking the trigger path */
func TestQueueSaturationFailsOverflow(t *testing.T) {
	block := make(chan struct{})
	client := &outageClient{healthy: true, blockCh: block}
	h := newHarness(t, client, dispatch.Options{
		Workers:   1,
		QueueSize: 1,
		Timeout:   5 * time.Second,
	})

	/* First admission occupies the worker, second fills the queue */
	first := h.trigger(t)

	/* Wait for the worker to pick up the first job */
	deadline := time.Now().Add(time.Second)
	for client.attemptCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if client.attemptCount() == 0 {
		t.Fatal("Worker never picked up the first run")
	}

	second := h.trigger(t)
	third := h.trigger(t)

	r := h.waitForStatus(t, third.RunID, run.StatusFailed)
	if r.Error == nil || *r.Error != run.ReasonExecutorFailure {
		t.Errorf("Expected overflow run to fail with %s, got %v", run.ReasonExecutorFailure, r.Error)
	}

	close(block)

	/* Unblocked worker drains the queue; neither surviving run may fail */
	deadline = time.Now().Add(time.Second)
	for client.attemptCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	for _, id := range []uuid.UUID{first.RunID, second.RunID} {
		r, err := h.registry.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Failed to get run: %v", err)
		}
		if r.Status == run.StatusFailed {
			t.Errorf("Expected run %s to survive saturation, got %s", id, r.Status)
		}
	}
}

/*-------------------------------------------------------------------------
 *
 * dispatcher.go
 *    Trigger admission and dispatch orchestration for AgentGate
 *
 * The dispatcher runs the trigger admission pipeline (idempotency,
 * budget, run creation) and hands admitted runs to a bounded worker
 * pool that delivers them to the executor behind the per-agent circuit
 * breaker and retry policy.
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/dispatch/dispatcher.go
 *
 *-------------------------------------------------------------------------
 */

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cockpithq/agentgate/internal/audit"
	"github.com/cockpithq/agentgate/internal/budget"
	"github.com/cockpithq/agentgate/internal/catalog"
	"github.com/cockpithq/agentgate/internal/connector"
	"github.com/cockpithq/agentgate/internal/idempotency"
	"github.com/cockpithq/agentgate/internal/metrics"
	"github.com/cockpithq/agentgate/internal/resilience"
	"github.com/cockpithq/agentgate/internal/run"
)

/* ErrUnknownAgent is returned for trigger requests naming an agent that
 * is not in the catalog */
var ErrUnknownAgent = fmt.Errorf("unknown agent")

/* TriggerRequest is a validated trigger body */
type TriggerRequest struct {
	RequestID string          `json:"request_id"`
	OrgID     string          `json:"org_id"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload"`
	DryRun    bool            `json:"dryRun"`
}

/* Admission is the outcome of the trigger pipeline, surfaced to the
 * API layer */
type Admission struct {
	RunID            uuid.UUID
	Status           run.Status
	Preview          string
	Duplicate        bool
	EstimatedCostEUR float64
}

/* job carries one admitted run through the worker pool */
type job struct {
	runID          uuid.UUID
	agentKey       string
	idempotencyKey string
	correlationID  string
	payload        json.RawMessage
	estCostEUR     float64
}

/* Options configures a dispatcher */
type Options struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
	Retry     resilience.RetryConfig
}

/* Dispatcher owns the trigger pipeline and the dispatch workers */
type Dispatcher struct {
	catalog   *catalog.Catalog
	idem      idempotency.Store
	ledger    budget.Ledger
	estimator *budget.Estimator
	registry  run.Registry
	sink      audit.Sink
	client    connector.Client
	breakers  *resilience.BreakerManager
	health    *resilience.HealthTracker
	opts      Options

	queue  chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

/* NewDispatcher creates a dispatcher. Start must be called before
 * triggers are admitted, or admitted runs will back up in the queue. */
func NewDispatcher(
	cat *catalog.Catalog,
	idem idempotency.Store,
	ledger budget.Ledger,
	estimator *budget.Estimator,
	registry run.Registry,
	sink audit.Sink,
	client connector.Client,
	breakers *resilience.BreakerManager,
	health *resilience.HealthTracker,
	opts Options,
) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		catalog:   cat,
		idem:      idem,
		ledger:    ledger,
		estimator: estimator,
		registry:  registry,
		sink:      sink,
		client:    client,
		breakers:  breakers,
		health:    health,
		opts:      opts,
		queue:     make(chan job, opts.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

/* Start launches the dispatch workers */
func (d *Dispatcher) Start() {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	metrics.InfoWithContext(d.ctx, "Dispatch workers started", map[string]interface{}{
		"workers":    d.opts.Workers,
		"queue_size": d.opts.QueueSize,
	})
}

/* Stop drains in-flight dispatches and shuts the pool down */
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

/*
 * Trigger runs the admission pipeline for one trigger request.
 *
 * Admission order is fixed: the idempotency key is claimed first, so a
 * duplicate can never reach the budget check, and the budget reserve
 * happens inside the claim so at most one of a duplicate burst is ever
 * charged. A producer error leaves the key unclaimed and nothing
 * reserved.
 */
func (d *Dispatcher) Trigger(ctx context.Context, agentKey, idemKey, correlationID string, req TriggerRequest) (Admission, error) {
	def, ok := d.catalog.Agent(agentKey)
	if !ok {
		return Admission{}, ErrUnknownAgent
	}

	est := d.estimator.Estimate(def, len(req.Payload))

	var admitted bool
	rec, wasFirst, err := d.idem.GetOrInit(ctx, idempotency.NamespaceTrigger, idemKey, func() (idempotency.Record, error) {
		r := &run.Run{
			RunID:          uuid.New(),
			TenantID:       req.OrgID,
			DepartmentKey:  def.DepartmentKey,
			AgentKey:       agentKey,
			Status:         run.StatusQueued,
			CorrelationID:  correlationID,
			IdempotencyKey: idemKey,
		}

		switch {
		case req.DryRun:
			r.Preview = run.PreviewDryRun
		default:
			dec, err := d.ledger.CheckAndReserve(ctx, def.DepartmentKey, est)
			if err != nil {
				return idempotency.Record{}, fmt.Errorf("budget check failed: %w", err)
			}
			metrics.RecordBudgetPctUsed(def.DepartmentKey, dec.PctUsed)
			if !dec.Admitted {
				r.Preview = run.PreviewBudgetStop
				metrics.RecordBudgetStop(def.DepartmentKey)
			}
		}

		if err := d.registry.Create(ctx, r); err != nil {
			return idempotency.Record{}, fmt.Errorf("failed to create run: %w", err)
		}

		outcome := "admitted"
		if r.Preview != "" {
			outcome = r.Preview
		}
		d.append(ctx, audit.NewRecord(audit.KindAdmission, r.RunID, agentKey, correlationID, outcome, map[string]interface{}{
			"department":   def.DepartmentKey,
			"est_cost_eur": est,
			"actor":        req.Actor,
		}))

		admitted = r.Preview == ""
		return idempotency.Record{
			RunID:   r.RunID,
			Status:  string(run.StatusQueued),
			Preview: r.Preview,
		}, nil
	})
	if err != nil {
		return Admission{}, err
	}

	cost := est
	if rec.Preview == run.PreviewBudgetStop {
		/* A stopped run reserved nothing, so it costs nothing */
		cost = 0
	}

	if !wasFirst {
		metrics.RecordTrigger(agentKey, "duplicate")
		return Admission{
			RunID:            rec.RunID,
			Status:           run.Status(rec.Status),
			Preview:          rec.Preview,
			Duplicate:        true,
			EstimatedCostEUR: cost,
		}, nil
	}

	switch rec.Preview {
	case run.PreviewBudgetStop:
		metrics.RecordTrigger(agentKey, "budget_stop")
	case run.PreviewDryRun:
		metrics.RecordTrigger(agentKey, "dry_run")
	default:
		metrics.RecordTrigger(agentKey, "admitted")
	}

	if admitted {
		d.enqueue(ctx, job{
			runID:          rec.RunID,
			agentKey:       agentKey,
			idempotencyKey: idemKey,
			correlationID:  correlationID,
			payload:        req.Payload,
			estCostEUR:     est,
		})
	}

	return Admission{
		RunID:            rec.RunID,
		Status:           run.Status(rec.Status),
		Preview:          rec.Preview,
		EstimatedCostEUR: cost,
	}, nil
}

/* enqueue hands a job to the pool. A full queue fails the run rather
 * than blocking the request path. */
func (d *Dispatcher) enqueue(ctx context.Context, j job) {
	select {
	case d.queue <- j:
		metrics.RecordDispatchQueued()
	default:
		metrics.WarnWithContext(ctx, "Dispatch queue full, failing run", map[string]interface{}{
			"run_id":    j.runID.String(),
			"agent_key": j.agentKey,
		})
		d.failRun(ctx, j, run.ReasonExecutorFailure, "dispatch queue full")
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case j := <-d.queue:
			metrics.RecordDispatchDequeued()
			d.process(j)
		}
	}
}

/*
 * process delivers one run to the executor.
 *
 * The breaker is consulted before every attempt, including retries, so
 * a breaker that opens mid-loop stops the remaining attempts. Every
 * attempt the breaker allowed feeds its outcome back into the breaker
 * and the health tracker.
 */
func (d *Dispatcher) process(j job) {
	ctx := metrics.WithLogContext(d.ctx, "", j.correlationID, j.runID.String(), j.agentKey, "")

	r, err := d.registry.Get(ctx, j.runID)
	if err != nil {
		metrics.ErrorWithContext(ctx, "Dispatch job for unknown run", err, nil)
		return
	}

	cb := d.breakers.GetOrCreate(j.agentKey)
	start := time.Now()

	err = resilience.Retry(ctx, d.opts.Retry, func(attempt int) error {
		if err := cb.Allow(); err != nil {
			return err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()

		attemptStart := time.Now()
		dispatchErr := d.client.Dispatch(attemptCtx, r, j.payload)
		elapsed := time.Since(attemptStart)

		if dispatchErr != nil {
			cb.RecordFailure()
			d.health.RecordOutcome(j.agentKey, false, elapsed, j.estCostEUR)
			metrics.RecordDispatchAttempt(j.agentKey, "failure", elapsed)
			metrics.WarnWithContext(ctx, "Dispatch attempt failed", map[string]interface{}{
				"attempt": attempt,
				"error":   dispatchErr.Error(),
			})
			return dispatchErr
		}

		cb.RecordSuccess()
		d.health.RecordOutcome(j.agentKey, true, elapsed, j.estCostEUR)
		metrics.RecordDispatchAttempt(j.agentKey, "success", elapsed)
		return nil
	})

	if err == nil {
		metrics.InfoWithContext(ctx, "Run dispatched to executor", map[string]interface{}{
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
		return
	}

	reason := run.ReasonRetryExhausted
	if errors.Is(err, resilience.ErrCircuitOpen) {
		reason = run.ReasonCircuitOpen
	} else if !d.opts.Retry.IsRetryable(err) {
		reason = run.ReasonExecutorFailure
	}
	d.failRun(ctx, j, reason, err.Error())
}

/* failRun moves a run to failed and refreshes its admission record so
 * late duplicate triggers observe the final state */
func (d *Dispatcher) failRun(ctx context.Context, j job, reason, detail string) {
	ev := run.Event{
		Status: run.StatusFailed,
		Error:  &reason,
	}
	if _, _, err := d.registry.ApplyEvent(ctx, j.runID, ev); err != nil {
		metrics.ErrorWithContext(ctx, "Failed to mark run failed", err, map[string]interface{}{
			"reason": reason,
		})
		return
	}
	if err := d.idem.Finalize(ctx, idempotency.NamespaceTrigger, j.idempotencyKey, string(run.StatusFailed)); err != nil {
		metrics.ErrorWithContext(ctx, "Failed to finalize idempotency record", err, nil)
	}
	metrics.WarnWithContext(ctx, "Run failed before executor handoff", map[string]interface{}{
		"reason": reason,
		"detail": detail,
	})
}

func (d *Dispatcher) append(ctx context.Context, record audit.Record) {
	if err := d.sink.Append(ctx, record); err != nil {
		metrics.ErrorWithContext(ctx, "Failed to append audit record", err, nil)
	}
}

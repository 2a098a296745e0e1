/*-------------------------------------------------------------------------
 *
 * registry.go
 *    Run registry for AgentGate
 *
 * Owns every Run instance. Runs are created by the trigger dispatcher
 * and mutated only through ApplyEvent, which serializes transitions per
 * run and enforces the state machine, progress monotonicity, and
 * terminal immutability. Runs are never deleted.
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/run/registry.go
 *
 *-------------------------------------------------------------------------
 */

package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cockpithq/agentgate/internal/audit"
	"github.com/cockpithq/agentgate/internal/metrics"
)

/* ErrNotFound is returned for unknown run ids */
var ErrNotFound = fmt.Errorf("run not found")

/* Registry owns run state */
type Registry interface {
	Create(ctx context.Context, r *Run) error
	Get(ctx context.Context, runID uuid.UUID) (*Run, error)
	ApplyEvent(ctx context.Context, runID uuid.UUID, ev Event) (*Run, Outcome, error)
}

/* MemoryRegistry is the in-process registry implementation. Transitions
 * for one run are serialized by the run's own lock; different runs
 * proceed in parallel. */
type MemoryRegistry struct {
	mu    sync.Mutex
	runs  map[uuid.UUID]*runEntry
	sink  audit.Sink
	now   func() time.Time
}

type runEntry struct {
	mu  sync.Mutex
	run Run
}

/* NewMemoryRegistry creates an in-process run registry */
func NewMemoryRegistry(sink audit.Sink) *MemoryRegistry {
	return &MemoryRegistry{
		runs: make(map[uuid.UUID]*runEntry),
		sink: sink,
		now:  time.Now,
	}
}

/* Create implements Registry */
func (r *MemoryRegistry) Create(ctx context.Context, newRun *Run) error {
	if newRun.RunID == uuid.Nil {
		return fmt.Errorf("run id is required")
	}
	if !newRun.Status.Valid() {
		return fmt.Errorf("invalid run status %q", newRun.Status)
	}

	now := r.now()
	newRun.CreatedAt = now
	newRun.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[newRun.RunID]; exists {
		return fmt.Errorf("run %s already exists", newRun.RunID)
	}
	r.runs[newRun.RunID] = &runEntry{run: *newRun}
	return nil
}

/* Get implements Registry */
func (r *MemoryRegistry) Get(ctx context.Context, runID uuid.UUID) (*Run, error) {
	r.mu.Lock()
	e, ok := r.runs[runID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	snapshot := e.run
	return &snapshot, nil
}

/* ApplyEvent implements Registry */
func (r *MemoryRegistry) ApplyEvent(ctx context.Context, runID uuid.UUID, ev Event) (*Run, Outcome, error) {
	if !ev.Status.Valid() {
		return nil, OutcomeInvalid, fmt.Errorf("invalid event status %q", ev.Status)
	}

	r.mu.Lock()
	e, ok := r.runs[runID]
	r.mu.Unlock()
	if !ok {
		return nil, OutcomeInvalid, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.run

	if current.Status.Terminal() {
		/* Terminal states are immutable; the event is acknowledged but
		 * leaves only an audit record behind. */
		r.append(ctx, audit.NewRecord(audit.KindTransition, runID, current.AgentKey, current.CorrelationID,
			string(OutcomeTerminalRejected), map[string]interface{}{
				"current_status":   string(current.Status),
				"event_status":     string(ev.Status),
			}))
		snapshot := current
		return &snapshot, OutcomeTerminalRejected, nil
	}

	if !CanTransition(current.Status, ev.Status) {
		return nil, OutcomeInvalid, fmt.Errorf("transition %s -> %s not permitted", current.Status, ev.Status)
	}

	if ev.Progress != nil && *ev.Progress < current.Progress {
		metrics.WarnWithContext(ctx, "Webhook reported regressing progress, ignoring event", map[string]interface{}{
			"run_id":           runID.String(),
			"stored_progress":  current.Progress,
			"event_progress":   *ev.Progress,
		})
		r.append(ctx, audit.NewRecord(audit.KindAnomaly, runID, current.AgentKey, current.CorrelationID,
			string(OutcomeProgressIgnored), map[string]interface{}{
				"stored_progress": current.Progress,
				"event_progress":  *ev.Progress,
			}))
		snapshot := current
		return &snapshot, OutcomeProgressIgnored, nil
	}

	from := current.Status
	e.run.Status = ev.Status
	if ev.Progress != nil {
		e.run.Progress = *ev.Progress
	}
	if ev.Status == StatusCompleted && e.run.Progress < 100 {
		e.run.Progress = 100
	}
	if ev.Summary != nil {
		e.run.Summary = ev.Summary
		e.run.Error = nil
	}
	if ev.Error != nil {
		e.run.Error = ev.Error
		e.run.Summary = nil
	}
	e.run.UpdatedAt = r.now()

	metrics.RecordRunTransition(string(from), string(ev.Status))
	r.append(ctx, audit.NewRecord(audit.KindTransition, runID, current.AgentKey, current.CorrelationID,
		string(OutcomeApplied), map[string]interface{}{
			"from":     string(from),
			"to":       string(ev.Status),
			"progress": e.run.Progress,
		}))

	snapshot := e.run
	return &snapshot, OutcomeApplied, nil
}

func (r *MemoryRegistry) append(ctx context.Context, record audit.Record) {
	if r.sink == nil {
		return
	}
	if err := r.sink.Append(ctx, record); err != nil {
		metrics.ErrorWithContext(ctx, "Audit append failed", err, map[string]interface{}{
			"run_id": record.RunID.String(),
		})
	}
}

/*-------------------------------------------------------------------------
 *
 * stores.go
 *    Postgres-backed store implementations for AgentGate
 *
 * Implements the run registry, idempotency store, budget ledger and
 * audit sink on PostgreSQL. Atomicity comes from the database: run
 * transitions serialize on a row lock, idempotency claims on a unique
 * key conflict, and budget reserves on a conditional UPDATE.
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/db/stores.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cockpithq/agentgate/internal/audit"
	"github.com/cockpithq/agentgate/internal/budget"
	"github.com/cockpithq/agentgate/internal/catalog"
	"github.com/cockpithq/agentgate/internal/idempotency"
	"github.com/cockpithq/agentgate/internal/metrics"
	"github.com/cockpithq/agentgate/internal/run"
)

/* Run registry */

/* PGRegistry is the Postgres run registry */
type PGRegistry struct {
	queries *Queries
	sink    audit.Sink
}

/* NewPGRegistry creates a Postgres-backed run registry */
func NewPGRegistry(queries *Queries, sink audit.Sink) *PGRegistry {
	return &PGRegistry{queries: queries, sink: sink}
}

/* Create implements run.Registry */
func (r *PGRegistry) Create(ctx context.Context, newRun *run.Run) error {
	row := r.queries.DB.QueryRowxContext(ctx, insertRunQuery,
		newRun.RunID, newRun.TenantID, newRun.DepartmentKey, newRun.AgentKey,
		newRun.Status, newRun.Progress, newRun.Summary, newRun.Error,
		newRun.Preview, newRun.CorrelationID, newRun.IdempotencyKey)
	if err := row.Scan(&newRun.CreatedAt, &newRun.UpdatedAt); err != nil {
		return r.queries.formatQueryError("INSERT", insertRunQuery, 11, "agentgate.runs", err)
	}
	return nil
}

/* Get implements run.Registry */
func (r *PGRegistry) Get(ctx context.Context, runID uuid.UUID) (*run.Run, error) {
	var rec run.Run
	err := r.queries.DB.GetContext(ctx, &rec, getRunQuery, runID)
	if err == sql.ErrNoRows {
		return nil, run.ErrNotFound
	}
	if err != nil {
		return nil, r.queries.formatQueryError("SELECT", getRunQuery, 1, "agentgate.runs", err)
	}
	return &rec, nil
}

/* ApplyEvent implements run.Registry. The row lock serializes
 * transitions for one run; the state machine rules are the same as the
 * in-process registry's. */
func (r *PGRegistry) ApplyEvent(ctx context.Context, runID uuid.UUID, ev run.Event) (*run.Run, run.Outcome, error) {
	if !ev.Status.Valid() {
		return nil, run.OutcomeInvalid, fmt.Errorf("invalid event status %q", ev.Status)
	}

	tx, err := r.queries.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, run.OutcomeInvalid, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current run.Run
	err = tx.GetContext(ctx, &current, getRunForUpdateQuery, runID)
	if err == sql.ErrNoRows {
		return nil, run.OutcomeInvalid, run.ErrNotFound
	}
	if err != nil {
		return nil, run.OutcomeInvalid, r.queries.formatQueryError("SELECT", getRunForUpdateQuery, 1, "agentgate.runs", err)
	}

	if current.Status.Terminal() {
		r.append(ctx, audit.NewRecord(audit.KindTransition, runID, current.AgentKey, current.CorrelationID,
			string(run.OutcomeTerminalRejected), map[string]interface{}{
				"current_status": string(current.Status),
				"event_status":   string(ev.Status),
			}))
		return &current, run.OutcomeTerminalRejected, nil
	}

	if !run.CanTransition(current.Status, ev.Status) {
		return nil, run.OutcomeInvalid, fmt.Errorf("transition %s -> %s not permitted", current.Status, ev.Status)
	}

	if ev.Progress != nil && *ev.Progress < current.Progress {
		r.append(ctx, audit.NewRecord(audit.KindAnomaly, runID, current.AgentKey, current.CorrelationID,
			string(run.OutcomeProgressIgnored), map[string]interface{}{
				"stored_progress": current.Progress,
				"event_progress":  *ev.Progress,
			}))
		return &current, run.OutcomeProgressIgnored, nil
	}

	from := current.Status
	current.Status = ev.Status
	if ev.Progress != nil {
		current.Progress = *ev.Progress
	}
	if ev.Status == run.StatusCompleted && current.Progress < 100 {
		current.Progress = 100
	}
	if ev.Summary != nil {
		current.Summary = ev.Summary
		current.Error = nil
	}
	if ev.Error != nil {
		current.Error = ev.Error
		current.Summary = nil
	}

	row := tx.QueryRowxContext(ctx, updateRunQuery, runID, current.Status, current.Progress, current.Summary, current.Error)
	if err := row.Scan(&current.UpdatedAt); err != nil {
		return nil, run.OutcomeInvalid, r.queries.formatQueryError("UPDATE", updateRunQuery, 5, "agentgate.runs", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, run.OutcomeInvalid, fmt.Errorf("failed to commit transition: %w", err)
	}

	metrics.RecordRunTransition(string(from), string(ev.Status))
	r.append(ctx, audit.NewRecord(audit.KindTransition, runID, current.AgentKey, current.CorrelationID,
		string(run.OutcomeApplied), map[string]interface{}{
			"from":     string(from),
			"to":       string(ev.Status),
			"progress": current.Progress,
		}))
	return &current, run.OutcomeApplied, nil
}

func (r *PGRegistry) append(ctx context.Context, record audit.Record) {
	if r.sink == nil {
		return
	}
	if err := r.sink.Append(ctx, record); err != nil {
		metrics.ErrorWithContext(ctx, "Failed to append audit record", err, nil)
	}
}

/* Idempotency store */

/* idemQueries is the slice of Queries the idempotency store needs */
type idemQueries interface {
	ClaimIdempotencyKey(ctx context.Context, namespace, key string, expiresAt time.Time) (bool, error)
	FillIdempotencyKey(ctx context.Context, namespace, key string, runID uuid.UUID, status, preview string) error
	ReleaseIdempotencyKey(ctx context.Context, namespace, key string) error
	GetIdempotencyKey(ctx context.Context, namespace, key string) (*IdempotencyRow, error)
	FinalizeIdempotencyKey(ctx context.Context, namespace, key, status string) error
	SweepIdempotencyKeys(ctx context.Context) (int, error)
}

/* PGIdempotencyStore is the Postgres idempotency store. A claim row in
 * pending state marks an admission in flight; duplicates that land
 * while the winner is mid-flight wait for the winner's outcome instead
 * of surfacing the placeholder row. */
type PGIdempotencyStore struct {
	queries      idemQueries
	ttl          time.Duration
	pollInterval time.Duration
}

/* NewPGIdempotencyStore creates a Postgres idempotency store */
func NewPGIdempotencyStore(queries *Queries, ttl time.Duration) *PGIdempotencyStore {
	return &PGIdempotencyStore{queries: queries, ttl: ttl, pollInterval: 25 * time.Millisecond}
}

/* GetOrInit implements idempotency.Store.
 *
 * Losing callers loop until the winner fills or releases its claim:
 * a filled row is returned as the recorded outcome, a released row
 * re-opens the claim (the winner performed no side effects). The loop
 * is bounded by the request context and, failing that, by the claim
 * row's own expiry. */
func (s *PGIdempotencyStore) GetOrInit(ctx context.Context, ns idempotency.Namespace, key string, producer func() (idempotency.Record, error)) (idempotency.Record, bool, error) {
	for {
		claimed, err := s.queries.ClaimIdempotencyKey(ctx, string(ns), key, time.Now().Add(s.ttl))
		if err != nil {
			return idempotency.Record{}, false, err
		}
		if claimed {
			return s.produce(ctx, ns, key, producer)
		}

		row, err := s.queries.GetIdempotencyKey(ctx, string(ns), key)
		if err != nil {
			return idempotency.Record{}, false, err
		}
		if row != nil && row.Status != statusPending {
			metrics.RecordIdempotencyHit(string(ns))
			return idempotency.Record{
				Key:       row.Key,
				Namespace: ns,
				RunID:     row.RunID,
				Status:    row.Status,
				Preview:   row.Preview,
				ExpiresAt: row.ExpiresAt,
			}, false, nil
		}

		/* Claim vanished or still pending: contend again after a beat */
		select {
		case <-ctx.Done():
			return idempotency.Record{}, false, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *PGIdempotencyStore) produce(ctx context.Context, ns idempotency.Namespace, key string, producer func() (idempotency.Record, error)) (idempotency.Record, bool, error) {
	record, err := producer()
	if err != nil {
		if relErr := s.queries.ReleaseIdempotencyKey(ctx, string(ns), key); relErr != nil {
			metrics.ErrorWithContext(ctx, "Failed to release idempotency claim", relErr, map[string]interface{}{
				"namespace": string(ns),
				"key":       key,
			})
		}
		return idempotency.Record{}, false, err
	}

	if err := s.queries.FillIdempotencyKey(ctx, string(ns), key, record.RunID, record.Status, record.Preview); err != nil {
		return idempotency.Record{}, false, err
	}
	record.Key = key
	record.Namespace = ns
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = time.Now().Add(s.ttl)
	}
	return record, true, nil
}

/* Finalize implements idempotency.Store */
func (s *PGIdempotencyStore) Finalize(ctx context.Context, ns idempotency.Namespace, key string, status string) error {
	return s.queries.FinalizeIdempotencyKey(ctx, string(ns), key, status)
}

/* Sweep implements idempotency.Store */
func (s *PGIdempotencyStore) Sweep(ctx context.Context) (int, error) {
	return s.queries.SweepIdempotencyKeys(ctx)
}

/* Budget ledger */

/* PGLedger is the Postgres budget ledger */
type PGLedger struct {
	queries *Queries
	catalog *catalog.Catalog
}

/* NewPGLedger creates a Postgres budget ledger */
func NewPGLedger(queries *Queries, cat *catalog.Catalog) *PGLedger {
	return &PGLedger{queries: queries, catalog: cat}
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

/* CheckAndReserve implements budget.Ledger */
func (l *PGLedger) CheckAndReserve(ctx context.Context, departmentKey string, estimatedCostEUR float64) (budget.Decision, error) {
	dept, ok := l.catalog.Department(departmentKey)
	if !ok {
		/* Unmapped departments are not tracked. Deliberate fail-open. */
		return budget.Decision{Admitted: true, Policy: budget.PolicyUnmetered}, nil
	}

	period := monthStart(time.Now().UTC())
	if err := l.queries.EnsureBudgetPeriod(ctx, departmentKey, period, dept.MonthlyBudgetEUR); err != nil {
		return budget.Decision{}, err
	}

	spent, admitted, err := l.queries.ReserveBudget(ctx, departmentKey, period, estimatedCostEUR)
	if err != nil {
		return budget.Decision{}, err
	}
	if !admitted {
		row, err := l.queries.GetBudgetPeriod(ctx, departmentKey, period)
		if err != nil {
			return budget.Decision{}, err
		}
		pct := 100.0
		if row != nil && row.MonthlyBudgetEUR > 0 {
			pct = (row.SpentEUR + estimatedCostEUR) / row.MonthlyBudgetEUR * 100
		}
		return budget.Decision{Admitted: false, PctUsed: pct, Policy: budget.PolicyMetered}, nil
	}

	return budget.Decision{
		Admitted: true,
		PctUsed:  spent / dept.MonthlyBudgetEUR * 100,
		Policy:   budget.PolicyMetered,
	}, nil
}

/* Snapshot implements budget.Ledger */
func (l *PGLedger) Snapshot(ctx context.Context, departmentKey string) (budget.Snapshot, error) {
	dept, ok := l.catalog.Department(departmentKey)
	if !ok {
		return budget.Snapshot{DepartmentKey: departmentKey, Policy: budget.PolicyUnmetered}, nil
	}

	period := monthStart(time.Now().UTC())
	row, err := l.queries.GetBudgetPeriod(ctx, departmentKey, period)
	if err != nil {
		return budget.Snapshot{}, err
	}

	snap := budget.Snapshot{
		DepartmentKey:    departmentKey,
		MonthlyBudgetEUR: dept.MonthlyBudgetEUR,
		Policy:           budget.PolicyMetered,
		PeriodStart:      period.Format("2006-01-02"),
	}
	if row != nil {
		snap.SpentEUR = row.SpentEUR
		snap.PctUsed = row.SpentEUR / dept.MonthlyBudgetEUR * 100
	}
	return snap, nil
}

/* Audit sink */

/* PGAuditSink appends audit records to the audit_log table */
type PGAuditSink struct {
	queries *Queries
}

/* NewPGAuditSink creates a Postgres audit sink */
func NewPGAuditSink(queries *Queries) *PGAuditSink {
	return &PGAuditSink{queries: queries}
}

/* Append implements audit.Sink */
func (s *PGAuditSink) Append(ctx context.Context, record audit.Record) error {
	return s.queries.InsertAuditRecord(ctx, &AuditRow{
		ID:            record.ID,
		Kind:          string(record.Kind),
		RunID:         record.RunID,
		AgentKey:      record.AgentKey,
		CorrelationID: record.CorrelationID,
		Outcome:       record.Outcome,
		Detail:        FromMap(record.Detail),
		CreatedAt:     record.CreatedAt,
	})
}

/*-------------------------------------------------------------------------
 *
 * queries.go
 *    Database queries for AgentGate
 *
 * Provides database query functions for runs, idempotency records,
 * budget periods and audit entries.
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/db/queries.go
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
	"github.com/jmoiron/sqlx"

	"github.com/cockpithq/agentgate/internal/utils"
)

/* Run queries */
const (
	insertRunQuery = `
		INSERT INTO agentgate.runs
		(run_id, tenant_id, department_key, agent_key, status, progress, summary, error, preview, correlation_id, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	getRunQuery = `SELECT * FROM agentgate.runs WHERE run_id = $1`

	getRunForUpdateQuery = `SELECT * FROM agentgate.runs WHERE run_id = $1 FOR UPDATE`

	updateRunQuery = `
		UPDATE agentgate.runs
		SET status = $2, progress = $3, summary = $4, error = $5, updated_at = NOW()
		WHERE run_id = $1
		RETURNING updated_at`
)

/* statusPending marks a claim whose admission is still in flight */
const statusPending = "pending"

/* Idempotency queries. A claim either inserts a fresh pending row or
 * takes over an expired one; exactly one caller per key wins. */
const (
	claimIdempotencyQuery = `
		INSERT INTO agentgate.idempotency_keys
		(namespace, idempotency_key, run_id, status, preview, expires_at)
		VALUES ($1, $2, $3, 'pending', '', $4)
		ON CONFLICT (namespace, idempotency_key) DO UPDATE
		SET run_id = EXCLUDED.run_id, status = 'pending', preview = '',
			expires_at = EXCLUDED.expires_at, created_at = NOW()
		WHERE agentgate.idempotency_keys.expires_at <= NOW()`

	fillIdempotencyQuery = `
		UPDATE agentgate.idempotency_keys
		SET run_id = $3, status = $4, preview = $5
		WHERE namespace = $1 AND idempotency_key = $2`

	releaseIdempotencyQuery = `
		DELETE FROM agentgate.idempotency_keys
		WHERE namespace = $1 AND idempotency_key = $2 AND status = 'pending'`

	getIdempotencyQuery = `
		SELECT * FROM agentgate.idempotency_keys
		WHERE namespace = $1 AND idempotency_key = $2`

	finalizeIdempotencyQuery = `
		UPDATE agentgate.idempotency_keys
		SET status = $3
		WHERE namespace = $1 AND idempotency_key = $2 AND expires_at > NOW()`

	sweepIdempotencyQuery = `DELETE FROM agentgate.idempotency_keys WHERE expires_at <= NOW()`
)

/* Budget queries. The reserve is a single conditional UPDATE so the
 * check and the increment cannot interleave across requests. */
const (
	ensureBudgetPeriodQuery = `
		INSERT INTO agentgate.budget_periods
		(department_key, period_start, monthly_budget_eur, spent_eur)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (department_key, period_start) DO NOTHING`

	reserveBudgetQuery = `
		UPDATE agentgate.budget_periods
		SET spent_eur = spent_eur + $3, updated_at = NOW()
		WHERE department_key = $1 AND period_start = $2
			AND spent_eur + $3 < monthly_budget_eur
		RETURNING spent_eur`

	getBudgetPeriodQuery = `
		SELECT * FROM agentgate.budget_periods
		WHERE department_key = $1 AND period_start = $2`
)

/* Audit queries */
const (
	insertAuditQuery = `
		INSERT INTO agentgate.audit_log
		(id, kind, run_id, agent_key, correlation_id, outcome, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)`
)

/* Queries wraps a database handle with typed query methods */
type Queries struct {
	DB           *sqlx.DB
	connInfoFunc func() string
}

/* NewQueries creates a Queries instance */
func NewQueries(db *sqlx.DB) *Queries {
	return &Queries{DB: db}
}

/* SetConnInfoFunc sets a function to retrieve connection info for error messages */
func (q *Queries) SetConnInfoFunc(fn func() string) {
	q.connInfoFunc = fn
}

/* getConnInfoString returns connection info string */
func (q *Queries) getConnInfoString() string {
	if q.connInfoFunc != nil {
		return q.connInfoFunc()
	}
	return "unknown database connection"
}

/* formatQueryError formats a detailed query error message */
func (q *Queries) formatQueryError(operation string, query string, paramCount int, table string, err error) error {
	queryContext := utils.FormatQueryContext(query, paramCount, operation, table)
	connInfo := q.getConnInfoString()
	return fmt.Errorf("query execution failed on %s: %s, error=%w", connInfo, queryContext, err)
}

/* Idempotency methods */

/* ClaimIdempotencyKey attempts to claim a key; reports whether this
 * caller won the claim */
func (q *Queries) ClaimIdempotencyKey(ctx context.Context, namespace, key string, expiresAt time.Time) (bool, error) {
	res, err := q.DB.ExecContext(ctx, claimIdempotencyQuery, namespace, key, uuid.Nil, expiresAt)
	if err != nil {
		return false, q.formatQueryError("INSERT", claimIdempotencyQuery, 4, "agentgate.idempotency_keys", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return n == 1, nil
}

/* FillIdempotencyKey records the admission outcome on a claimed key */
func (q *Queries) FillIdempotencyKey(ctx context.Context, namespace, key string, runID uuid.UUID, status, preview string) error {
	_, err := q.DB.ExecContext(ctx, fillIdempotencyQuery, namespace, key, runID, status, preview)
	if err != nil {
		return q.formatQueryError("UPDATE", fillIdempotencyQuery, 5, "agentgate.idempotency_keys", err)
	}
	return nil
}

/* ReleaseIdempotencyKey drops a pending claim after a failed admission */
func (q *Queries) ReleaseIdempotencyKey(ctx context.Context, namespace, key string) error {
	_, err := q.DB.ExecContext(ctx, releaseIdempotencyQuery, namespace, key)
	if err != nil {
		return q.formatQueryError("DELETE", releaseIdempotencyQuery, 2, "agentgate.idempotency_keys", err)
	}
	return nil
}

/* GetIdempotencyKey fetches a stored record */
func (q *Queries) GetIdempotencyKey(ctx context.Context, namespace, key string) (*IdempotencyRow, error) {
	var row IdempotencyRow
	err := q.DB.GetContext(ctx, &row, getIdempotencyQuery, namespace, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, q.formatQueryError("SELECT", getIdempotencyQuery, 2, "agentgate.idempotency_keys", err)
	}
	return &row, nil
}

/* FinalizeIdempotencyKey appends the terminal run status to a live record */
func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, namespace, key, status string) error {
	_, err := q.DB.ExecContext(ctx, finalizeIdempotencyQuery, namespace, key, status)
	if err != nil {
		return q.formatQueryError("UPDATE", finalizeIdempotencyQuery, 3, "agentgate.idempotency_keys", err)
	}
	return nil
}

/* SweepIdempotencyKeys evicts expired records */
func (q *Queries) SweepIdempotencyKeys(ctx context.Context) (int, error) {
	res, err := q.DB.ExecContext(ctx, sweepIdempotencyQuery)
	if err != nil {
		return 0, q.formatQueryError("DELETE", sweepIdempotencyQuery, 0, "agentgate.idempotency_keys", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read sweep result: %w", err)
	}
	return int(n), nil
}

/* Budget methods */

/* EnsureBudgetPeriod creates the period row for a department if absent */
func (q *Queries) EnsureBudgetPeriod(ctx context.Context, departmentKey string, periodStart time.Time, monthlyBudgetEUR float64) error {
	_, err := q.DB.ExecContext(ctx, ensureBudgetPeriodQuery, departmentKey, periodStart, monthlyBudgetEUR)
	if err != nil {
		return q.formatQueryError("INSERT", ensureBudgetPeriodQuery, 3, "agentgate.budget_periods", err)
	}
	return nil
}

/* ReserveBudget atomically increments spend if the estimate fits under
 * the cap; reports the new spend and whether the reserve was admitted */
func (q *Queries) ReserveBudget(ctx context.Context, departmentKey string, periodStart time.Time, estimatedCostEUR float64) (float64, bool, error) {
	var spent float64
	err := q.DB.GetContext(ctx, &spent, reserveBudgetQuery, departmentKey, periodStart, estimatedCostEUR)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, q.formatQueryError("UPDATE", reserveBudgetQuery, 3, "agentgate.budget_periods", err)
	}
	return spent, true, nil
}

/* GetBudgetPeriod fetches one department's period row */
func (q *Queries) GetBudgetPeriod(ctx context.Context, departmentKey string, periodStart time.Time) (*BudgetPeriodRow, error) {
	var row BudgetPeriodRow
	err := q.DB.GetContext(ctx, &row, getBudgetPeriodQuery, departmentKey, periodStart)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, q.formatQueryError("SELECT", getBudgetPeriodQuery, 2, "agentgate.budget_periods", err)
	}
	return &row, nil
}

/* Audit methods */

/* InsertAuditRecord appends one audit entry */
func (q *Queries) InsertAuditRecord(ctx context.Context, row *AuditRow) error {
	params := []interface{}{row.ID, row.Kind, row.RunID, row.AgentKey, row.CorrelationID, row.Outcome, row.Detail}
	_, err := q.DB.ExecContext(ctx, insertAuditQuery, params...)
	if err != nil {
		return q.formatQueryError("INSERT", insertAuditQuery, len(params), "agentgate.audit_log", err)
	}
	return nil
}

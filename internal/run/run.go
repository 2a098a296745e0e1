/*-------------------------------------------------------------------------
 *
 * run.go
 *    Run model and state machine for AgentGate
 *
 * A Run is the unit of dispatched work. This file defines its states,
 * the permitted transitions, and the rules for progress and terminal
 * immutability shared by every registry implementation.
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/run/run.go
 *
 *-------------------------------------------------------------------------
 */

package run

import (
	"time"

	"github.com/google/uuid"
)

/* Status represents the state of a run */
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusHITL      Status = "hitl"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

/* Failure reasons recorded on failed runs. ReasonCircuitOpen marks a
 * local fast-fail so operators can tell a degraded agent from a run
 * that genuinely failed downstream. */
const (
	ReasonCircuitOpen     = "circuit_open"
	ReasonRetryExhausted  = "retry_exhausted"
	ReasonExecutorFailure = "executor_failure"
)

/* Preview markers surfaced to clients on runs that were accepted but
 * not dispatched */
const (
	PreviewBudgetStop = "BUDGET_STOP"
	PreviewDryRun     = "DRY_RUN"
)

/* Run is a dispatched unit of work, owned by the registry */
type Run struct {
	RunID         uuid.UUID `json:"run_id" db:"run_id"`
	TenantID      string    `json:"tenant_id" db:"tenant_id"`
	DepartmentKey string    `json:"department_key" db:"department_key"`
	AgentKey      string    `json:"agent_key" db:"agent_key"`
	Status        Status    `json:"status" db:"status"`
	Progress      int       `json:"progress" db:"progress"`
	Summary       *string   `json:"summary,omitempty" db:"summary"`
	Error         *string   `json:"error,omitempty" db:"error"`
	Preview       string    `json:"preview,omitempty" db:"preview"`
	CorrelationID string    `json:"correlation_id,omitempty" db:"correlation_id"`

	/* IdempotencyKey is the trigger key that admitted the run; kept so
	 * terminal transitions can refresh the admission record. Not exposed
	 * to clients. */
	IdempotencyKey string    `json:"-" db:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

/* Event is a requested state change, normally carried by a webhook */
type Event struct {
	Status   Status
	Progress *int
	Summary  *string
	Error    *string
}

/* Outcome classifies how the registry handled an event */
type Outcome string

const (
	/* OutcomeApplied means the run state changed */
	OutcomeApplied Outcome = "applied"

	/* OutcomeTerminalRejected means the run is already terminal; the
	 * event produced an audit record only */
	OutcomeTerminalRejected Outcome = "terminal_rejected"

	/* OutcomeProgressIgnored means the event reported regressing
	 * progress and was dropped as an anomaly */
	OutcomeProgressIgnored Outcome = "progress_ignored"

	/* OutcomeInvalid means the transition is not permitted by the state
	 * machine */
	OutcomeInvalid Outcome = "invalid"
)

/* Terminal reports whether a status permits no further transitions */
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

/* Valid reports whether s is a known run status */
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusHITL, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

/* CanTransition reports whether the state machine permits from -> to.
 * Same-status transitions are permitted for non-terminal states so
 * progress updates flow through the same path. A budget-stopped queued
 * run re-enters via a fresh trigger, never via a webhook, so queued is
 * not reachable as a target here. */
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	switch from {
	case StatusQueued:
		return to == StatusRunning || to == StatusHITL || to == StatusCompleted || to == StatusFailed
	case StatusRunning:
		return to == StatusRunning || to == StatusHITL || to == StatusCompleted || to == StatusFailed
	case StatusHITL:
		return to == StatusRunning || to == StatusHITL || to == StatusCompleted || to == StatusFailed
	}
	return false
}

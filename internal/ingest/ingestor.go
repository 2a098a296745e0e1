/*-------------------------------------------------------------------------
 *
 * ingestor.go
 *    Webhook event ingestion for AgentGate
 *
 * Executors report run state over signed webhooks. The ingestor
 * deduplicates events, applies them through the run state machine and
 * refreshes the trigger admission record once a run turns terminal.
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <ops@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/ingest/ingestor.go
 *
 *-------------------------------------------------------------------------
 */

package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cockpithq/agentgate/internal/idempotency"
	"github.com/cockpithq/agentgate/internal/metrics"
	"github.com/cockpithq/agentgate/internal/run"
)

/* EventRequest is a validated webhook event body */
type EventRequest struct {
	RunID    uuid.UUID `json:"runId"`
	Status   string    `json:"status"`
	Progress *int      `json:"progress,omitempty"`
	Summary  *string   `json:"summary,omitempty"`
	Error    *string   `json:"error,omitempty"`
}

/* Result is the ingestion outcome, surfaced to the API layer */
type Result struct {
	Run       *run.Run
	Outcome   run.Outcome
	Duplicate bool
}

/* Ingestor applies webhook events to runs */
type Ingestor struct {
	idem     idempotency.Store
	registry run.Registry
}

/* NewIngestor creates a webhook event ingestor */
func NewIngestor(idem idempotency.Store, registry run.Registry) *Ingestor {
	return &Ingestor{idem: idem, registry: registry}
}

/* statusFromEvent maps the wire status names to run statuses. Executors
 * report uppercase statuses; queued is not an event target. */
func statusFromEvent(s string) (run.Status, error) {
	switch strings.ToUpper(s) {
	case "RUNNING":
		return run.StatusRunning, nil
	case "HITL":
		return run.StatusHITL, nil
	case "COMPLETED":
		return run.StatusCompleted, nil
	case "FAILED":
		return run.StatusFailed, nil
	}
	return "", fmt.Errorf("unknown event status %q", s)
}

/*
 * Ingest applies one event under the event idempotency key.
 *
 * The key is committed only after the state mutation has been applied:
 * the mutation runs inside the producer, so a crash between mutation
 * and commit re-admits the event, and re-applying a state event is
 * safe because the state machine is idempotent for repeated targets.
 */
func (i *Ingestor) Ingest(ctx context.Context, eventKey string, ev EventRequest) (Result, error) {
	target, err := statusFromEvent(ev.Status)
	if err != nil {
		return Result{}, err
	}

	var applied *run.Run
	var outcome run.Outcome
	rec, wasFirst, err := i.idem.GetOrInit(ctx, idempotency.NamespaceEvent, eventKey, func() (idempotency.Record, error) {
		r, out, err := i.registry.ApplyEvent(ctx, ev.RunID, run.Event{
			Status:   target,
			Progress: ev.Progress,
			Summary:  ev.Summary,
			Error:    ev.Error,
		})
		if err != nil {
			return idempotency.Record{}, err
		}
		applied = r
		outcome = out

		if out == run.OutcomeApplied && r.Status.Terminal() && r.IdempotencyKey != "" {
			if err := i.idem.Finalize(ctx, idempotency.NamespaceTrigger, r.IdempotencyKey, string(r.Status)); err != nil {
				metrics.ErrorWithContext(ctx, "Failed to finalize trigger record", err, map[string]interface{}{
					"run_id": r.RunID.String(),
				})
			}
		}

		return idempotency.Record{
			RunID:  ev.RunID,
			Status: string(out),
		}, nil
	})
	if err != nil {
		metrics.RecordWebhookEvent(string(target), "error")
		return Result{}, err
	}

	if !wasFirst {
		metrics.RecordWebhookEvent(string(target), "duplicate")
		r, err := i.registry.Get(ctx, rec.RunID)
		if err != nil {
			return Result{}, err
		}
		return Result{Run: r, Outcome: run.Outcome(rec.Status), Duplicate: true}, nil
	}

	metrics.RecordWebhookEvent(string(target), string(outcome))
	return Result{Run: applied, Outcome: outcome}, nil
}

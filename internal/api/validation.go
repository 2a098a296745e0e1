/*-------------------------------------------------------------------------
 *
 * validation.go
 *    Request validation for the AgentGate API
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/api/validation.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cockpithq/agentgate/internal/dispatch"
	"github.com/cockpithq/agentgate/internal/ingest"
	"github.com/cockpithq/agentgate/internal/validation"
)

/* Trigger and event bodies are small control messages; the payload
 * itself is capped separately. */
const maxBodySize = 1024 * 1024

/* ValidateTriggerRequest validates a decoded trigger body */
func ValidateTriggerRequest(req *dispatch.TriggerRequest) error {
	if err := validation.ValidateRequired(req.RequestID, "request_id"); err != nil {
		return err
	}
	if _, err := validation.ValidateUUID(req.RequestID, "request_id"); err != nil {
		return err
	}
	if err := validation.ValidateRequired(req.OrgID, "org_id"); err != nil {
		return err
	}
	if err := validation.ValidateMaxLength(req.OrgID, "org_id", 100); err != nil {
		return err
	}
	if err := validation.ValidateRequired(req.Actor, "actor"); err != nil {
		return err
	}
	if err := validation.ValidateMaxLength(req.Actor, "actor", 200); err != nil {
		return err
	}
	return nil
}

/* ValidateEventRequest validates a decoded webhook event body */
func ValidateEventRequest(req *ingest.EventRequest) error {
	if req.RunID == uuid.Nil {
		return fmt.Errorf("runId is required and cannot be empty")
	}
	if err := validation.ValidateRequired(req.Status, "status"); err != nil {
		return err
	}
	switch req.Status {
	case "RUNNING", "HITL", "FAILED", "COMPLETED":
	default:
		return fmt.Errorf("status must be one of RUNNING, HITL, FAILED, COMPLETED, got %q", req.Status)
	}
	if req.Progress != nil {
		if err := validation.ValidateIntRange(*req.Progress, 0, 100, "progress"); err != nil {
			return err
		}
	}
	if req.Summary != nil {
		if err := validation.ValidateMaxLength(*req.Summary, "summary", 10000); err != nil {
			return err
		}
	}
	if req.Error != nil {
		if err := validation.ValidateMaxLength(*req.Error, "error", 10000); err != nil {
			return err
		}
	}
	if req.Summary != nil && req.Error != nil {
		return fmt.Errorf("summary and error are mutually exclusive")
	}
	return nil
}

/*-------------------------------------------------------------------------
 *
 * handlers.go
 *    API handlers for AgentGate
 *
 * Provides HTTP handlers for agent triggers, executor webhooks, run
 * lookups, agent health and department budgets.
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/api/handlers.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/cockpithq/agentgate/internal/budget"
	"github.com/cockpithq/agentgate/internal/catalog"
	"github.com/cockpithq/agentgate/internal/dispatch"
	"github.com/cockpithq/agentgate/internal/ingest"
	"github.com/cockpithq/agentgate/internal/metrics"
	"github.com/cockpithq/agentgate/internal/resilience"
	"github.com/cockpithq/agentgate/internal/run"
	"github.com/cockpithq/agentgate/internal/signature"
	"github.com/cockpithq/agentgate/internal/validation"
)

type Handlers struct {
	catalog         *catalog.Catalog
	dispatcher      *dispatch.Dispatcher
	ingestor        *ingest.Ingestor
	registry        run.Registry
	ledger          budget.Ledger
	health          *resilience.HealthTracker
	triggerVerifier *signature.Verifier
	webhookVerifier *signature.Verifier
}

func NewHandlers(
	cat *catalog.Catalog,
	dispatcher *dispatch.Dispatcher,
	ingestor *ingest.Ingestor,
	registry run.Registry,
	ledger budget.Ledger,
	health *resilience.HealthTracker,
	triggerVerifier *signature.Verifier,
	webhookVerifier *signature.Verifier,
) *Handlers {
	return &Handlers{
		catalog:         cat,
		dispatcher:      dispatcher,
		ingestor:        ingestor,
		registry:        registry,
		ledger:          ledger,
		health:          health,
		triggerVerifier: triggerVerifier,
		webhookVerifier: webhookVerifier,
	}
}

/* TriggerResponse is the admission response body. Duplicates and
 * budget-stopped requests share the same shape as normal admissions. */
type TriggerResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Preview string `json:"preview,omitempty"`
}

/* Triggers */

func (h *Handlers) TriggerAgent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := GetRequestID(r.Context())
	agentKey := mux.Vars(r)["agent_key"]

	correlationID := r.Header.Get("X-Correlation-Id")
	idemKey := r.Header.Get("Idempotency-Key")
	timestamp := r.Header.Get("X-Timestamp")
	sig := r.Header.Get("X-Signature")

	w.Header().Set("X-Correlation-Id", correlationID)

	/* Header presence is checked before the signature so an incomplete
	 * request never reaches HMAC computation */
	for _, hdr := range []struct{ name, value string }{
		{"X-Correlation-Id", correlationID},
		{"Idempotency-Key", idemKey},
		{"X-Timestamp", timestamp},
		{"X-Signature", sig},
	} {
		if hdr.value == "" {
			h.respondTrigger(w, start, 0, nil, WrapError(NewError(http.StatusBadRequest,
				fmt.Sprintf("missing %s header", hdr.name), nil), requestID))
			return
		}
	}

	bodyBytes, err := validation.ReadAndValidateBody(r, maxBodySize)
	if err != nil {
		h.respondTrigger(w, start, 0, nil, WrapError(NewError(http.StatusBadRequest, "request body validation failed", err), requestID))
		return
	}

	if err := h.triggerVerifier.Verify(timestamp, bodyBytes, sig); err != nil {
		metrics.WarnWithContext(r.Context(), "Trigger signature rejected", map[string]interface{}{
			"agent_key": agentKey,
		})
		h.respondTrigger(w, start, 0, nil, WrapError(ErrUnauthorized, requestID))
		return
	}

	var req dispatch.TriggerRequest
	if err := json.Unmarshal(bodyBytes, &req); err != nil {
		h.respondTrigger(w, start, 0, nil, WrapError(NewError(http.StatusBadRequest, "request body parsing error", err), requestID))
		return
	}
	if err := ValidateTriggerRequest(&req); err != nil {
		h.respondTrigger(w, start, 0, nil, WrapError(NewError(http.StatusBadRequest, "trigger validation failed", err), requestID))
		return
	}

	ctx := metrics.WithLogContext(r.Context(), requestID, correlationID, "", agentKey, "")
	adm, err := h.dispatcher.Trigger(ctx, agentKey, idemKey, correlationID, req)
	if err != nil {
		if errors.Is(err, dispatch.ErrUnknownAgent) {
			h.respondTrigger(w, start, 0, nil, WrapError(NewError(http.StatusNotFound, "unknown agent", err), requestID))
			return
		}
		/* Store failures must never degrade to "not a duplicate" or
		 * "under budget"; the request fails instead. */
		h.respondTrigger(w, start, 0, nil, WrapError(NewError(http.StatusInternalServerError, "trigger admission failed", err), requestID))
		return
	}

	status := http.StatusAccepted
	if adm.Duplicate || adm.Preview != "" {
		status = http.StatusOK
	}
	h.respondTrigger(w, start, adm.EstimatedCostEUR, &responseAt{status: status, body: TriggerResponse{
		RunID:   adm.RunID.String(),
		Status:  string(adm.Status),
		Preview: adm.Preview,
	}}, nil)
}

type responseAt struct {
	status int
	body   interface{}
}

/* respondTrigger writes a trigger response with the cost and latency
 * headers every trigger response carries */
func (h *Handlers) respondTrigger(w http.ResponseWriter, start time.Time, costEUR float64, ok *responseAt, apiErr *APIError) {
	w.Header().Set("X-Est-Cost-EUR", strconv.FormatFloat(costEUR, 'f', 2, 64))
	w.Header().Set("X-Latency-ms", strconv.FormatInt(time.Since(start).Milliseconds(), 10))
	if apiErr != nil {
		respondError(w, apiErr)
		return
	}
	respondJSON(w, ok.status, ok.body)
}

/* Webhooks */

/* EventResponse is the webhook acknowledgement body */
type EventResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Outcome string `json:"outcome"`
}

func (h *Handlers) IngestEvent(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	sig := r.Header.Get("x-signature")
	idemKey := r.Header.Get("x-idempotency-key")
	correlationID := r.Header.Get("x-correlation-id")
	w.Header().Set("X-Correlation-Id", correlationID)

	if sig == "" || idemKey == "" {
		respondError(w, WrapError(NewError(http.StatusBadRequest, "missing webhook header", nil), requestID))
		return
	}

	bodyBytes, err := validation.ReadAndValidateBody(r, maxBodySize)
	if err != nil {
		respondError(w, WrapError(NewError(http.StatusBadRequest, "request body validation failed", err), requestID))
		return
	}

	if err := h.webhookVerifier.VerifyBody(bodyBytes, sig); err != nil {
		metrics.WarnWithContext(r.Context(), "Webhook signature rejected", nil)
		respondError(w, WrapError(ErrUnauthorized, requestID))
		return
	}

	var req ingest.EventRequest
	if err := json.Unmarshal(bodyBytes, &req); err != nil {
		respondError(w, WrapError(NewError(http.StatusBadRequest, "event body parsing error", err), requestID))
		return
	}
	if err := ValidateEventRequest(&req); err != nil {
		respondError(w, WrapError(NewError(http.StatusBadRequest, "event validation failed", err), requestID))
		return
	}

	ctx := metrics.WithLogContext(r.Context(), requestID, correlationID, req.RunID.String(), "", "")
	res, err := h.ingestor.Ingest(ctx, idemKey, req)
	if err != nil {
		if errors.Is(err, run.ErrNotFound) {
			respondError(w, WrapError(NewError(http.StatusNotFound, "run not found", err), requestID))
			return
		}
		respondError(w, WrapError(NewError(http.StatusBadRequest, "event rejected", err), requestID))
		return
	}

	respondJSON(w, http.StatusOK, EventResponse{
		RunID:   res.Run.RunID.String(),
		Status:  string(res.Run.Status),
		Outcome: string(res.Outcome),
	})
}

/* Runs */

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	runID, err := validation.ValidateUUID(mux.Vars(r)["run_id"], "run_id")
	if err != nil {
		respondError(w, WrapError(NewError(http.StatusBadRequest, "invalid run id", err), requestID))
		return
	}

	rec, err := h.registry.Get(r.Context(), runID)
	if err != nil {
		if errors.Is(err, run.ErrNotFound) {
			respondError(w, WrapError(ErrNotFound, requestID))
			return
		}
		respondError(w, WrapError(NewError(http.StatusInternalServerError, "run lookup failed", err), requestID))
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

/* Operators */

func (h *Handlers) GetAgentHealth(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	agentKey := mux.Vars(r)["agent_key"]

	if _, ok := h.catalog.Agent(agentKey); !ok {
		respondError(w, WrapError(ErrNotFound, requestID))
		return
	}

	respondJSON(w, http.StatusOK, h.health.Health(agentKey))
}

func (h *Handlers) GetDepartmentBudget(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	departmentKey := mux.Vars(r)["department_key"]

	if _, ok := h.catalog.Department(departmentKey); !ok {
		respondError(w, WrapError(ErrNotFound, requestID))
		return
	}

	snap, err := h.ledger.Snapshot(r.Context(), departmentKey)
	if err != nil {
		respondError(w, WrapError(NewError(http.StatusInternalServerError, "budget lookup failed", err), requestID))
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

/*-------------------------------------------------------------------------
 *
 * routes.go
 *    Route registration for the AgentGate API
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/api/routes.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"github.com/gorilla/mux"
)

/* RegisterRoutes attaches all API routes to the router. Health and
 * metrics are registered by the server entry point because they bypass
 * the middleware chain's auth step by path. */
func RegisterRoutes(router *mux.Router, h *Handlers) {
	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/agents/{agent_key}/trigger", h.TriggerAgent).Methods("POST")
	v1.HandleFunc("/agents/{agent_key}/health", h.GetAgentHealth).Methods("GET")
	v1.HandleFunc("/runs/{run_id}", h.GetRun).Methods("GET")
	v1.HandleFunc("/departments/{department_key}/budget", h.GetDepartmentBudget).Methods("GET")

	/* Executor webhook; authenticated by signature, not API key */
	router.HandleFunc("/agents/events", h.IngestEvent).Methods("POST")
}

/*-------------------------------------------------------------------------
 *
 * middleware_test.go
 *    Tests for API middleware
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/api/middleware_test.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockpithq/agentgate/internal/auth"
)

func authedMux(t *testing.T, key string) http.Handler {
	t.Helper()
	hash, err := auth.HashAPIKey(key)
	if err != nil {
		t.Fatalf("HashAPIKey failed: %v", err)
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return RequestIDMiddleware(AuthMiddleware(auth.NewKeychain([]string{hash}))(next))
}

/* TestAuthMiddleware tests API key verification */
func TestAuthMiddleware(t *testing.T) {
	handler := authedMux(t, "ag_valid")

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"valid key", "/v1/runs/x", "Bearer ag_valid", http.StatusNoContent},
		{"wrong key", "/v1/runs/x", "Bearer ag_wrong", http.StatusUnauthorized},
		{"malformed header", "/v1/runs/x", "ag_valid", http.StatusUnauthorized},
		{"missing header", "/v1/runs/x", "", http.StatusBadRequest},
		{"health exempt", "/health", "", http.StatusNoContent},
		{"webhook exempt", "/agents/events", "", http.StatusNoContent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("Expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

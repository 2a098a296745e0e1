/*-------------------------------------------------------------------------
 *
 * client.go
 *    Outbound executor client for AgentGate
 *
 * Delivers admitted runs to the external agent executor over HTTP.
 * Requests are signed the same way inbound triggers are, so the
 * executor can authenticate the orchestrator.
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/connector/client.go
 *
 *-------------------------------------------------------------------------
 */

package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cockpithq/agentgate/internal/run"
	"github.com/cockpithq/agentgate/internal/signature"
)

/* Client dispatches a run to an agent executor */
type Client interface {
	Dispatch(ctx context.Context, r *run.Run, payload json.RawMessage) error
}

/* dispatchRequest is the wire format sent to the executor */
type dispatchRequest struct {
	RunID         string          `json:"run_id"`
	TenantID      string          `json:"tenant_id"`
	AgentKey      string          `json:"agent_key"`
	DepartmentKey string          `json:"department_key"`
	Payload       json.RawMessage `json:"payload"`
}

/* HTTPClient is the HTTP executor client */
type HTTPClient struct {
	baseURL string
	secret  string
	client  *http.Client
	now     func() time.Time
}

/* NewHTTPClient creates an executor client. The per-request timeout is
 * carried by the caller's context, not the http.Client, so the
 * dispatcher stays in control of cancellation. */
func NewHTTPClient(baseURL, secret string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		secret:  secret,
		client:  &http.Client{},
		now:     time.Now,
	}
}

/* Dispatch implements Client */
func (c *HTTPClient) Dispatch(ctx context.Context, r *run.Run, payload json.RawMessage) error {
	body, err := json.Marshal(dispatchRequest{
		RunID:         r.RunID.String(),
		TenantID:      r.TenantID,
		AgentKey:      r.AgentKey,
		DepartmentKey: r.DepartmentKey,
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch request: %w", err)
	}

	url := fmt.Sprintf("%s/agents/%s/execute", c.baseURL, r.AgentKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build dispatch request: %w", err)
	}

	ts := strconv.FormatInt(c.now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", signature.Sign(c.secret, ts, body))
	req.Header.Set("X-Run-Id", r.RunID.String())
	if r.CorrelationID != "" {
		req.Header.Set("X-Correlation-Id", r.CorrelationID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		/* Carry the status code in the error text; the retry policy
		 * classifies 5xx and 429 as transient from it. */
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("executor returned %d: %s", resp.StatusCode, string(snippet))
	}
	return nil
}

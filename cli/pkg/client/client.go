/*-------------------------------------------------------------------------
 *
 * client.go
 *    HTTP client for the AgentGate API
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <ops@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/cli/pkg/client/client.go
 *
 *-------------------------------------------------------------------------
 */

package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cockpithq/agentgate/internal/signature"
)

type Client struct {
	baseURL       string
	apiKey        string
	triggerSecret string
	httpClient    *http.Client
}

type TriggerOptions struct {
	RequestID      string
	OrgID          string
	Actor          string
	IdempotencyKey string
	CorrelationID  string
	DryRun         bool
	Payload        json.RawMessage
}

type TriggerResult struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	Preview    string `json:"preview,omitempty"`
	HTTPStatus int    `json:"-"`
	CostEUR    string `json:"-"`
	LatencyMs  string `json:"-"`
}

type Run struct {
	RunID         string  `json:"run_id"`
	DepartmentKey string  `json:"department_key"`
	AgentKey      string  `json:"agent_key"`
	Status        string  `json:"status"`
	Progress      int     `json:"progress"`
	Summary       *string `json:"summary,omitempty"`
	Error         *string `json:"error,omitempty"`
	Preview       string  `json:"preview,omitempty"`
	CorrelationID string  `json:"correlation_id,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

type AgentHealth struct {
	AgentKey           string  `json:"agent_key"`
	SuccessRate        float64 `json:"success_rate"`
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`
	AvgCostEUR         float64 `json:"avg_cost_eur"`
	ErrorRate          float64 `json:"error_rate"`
	CircuitBreaker     string  `json:"circuit_breaker_state"`
	SampleCount        int     `json:"sample_count"`
}

type BudgetSnapshot struct {
	DepartmentKey    string  `json:"department_key"`
	MonthlyBudgetEUR float64 `json:"monthly_budget_eur"`
	SpentEUR         float64 `json:"spent_eur"`
	PctUsed          float64 `json:"pct_used"`
	Policy           string  `json:"policy"`
	PeriodStart      string  `json:"period_start"`
}

func NewClient(baseURL, apiKey, triggerSecret string) *Client {
	return &Client{
		baseURL:       baseURL,
		apiKey:        apiKey,
		triggerSecret: triggerSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

/* Trigger signs and submits a trigger request for agentKey. The server
 * replies 202 for a fresh admission and 200 for duplicates and previews;
 * both are returned as a TriggerResult rather than an error. */
func (c *Client) Trigger(agentKey string, opts TriggerOptions) (*TriggerResult, error) {
	if opts.RequestID == "" {
		opts.RequestID = uuid.New().String()
	}
	if opts.IdempotencyKey == "" {
		opts.IdempotencyKey = uuid.New().String()
	}
	if opts.CorrelationID == "" {
		opts.CorrelationID = uuid.New().String()
	}

	reqBody := map[string]interface{}{
		"request_id": opts.RequestID,
		"org_id":     opts.OrgID,
		"actor":      opts.Actor,
	}
	if opts.DryRun {
		reqBody["dryRun"] = true
	}
	if len(opts.Payload) > 0 {
		reqBody["payload"] = opts.Payload
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/agents/%s/trigger", c.baseURL, agentKey)
	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-Id", opts.CorrelationID)
	req.Header.Set("Idempotency-Key", opts.IdempotencyKey)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", signature.Sign(c.triggerSecret, timestamp, body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result TriggerResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	result.HTTPStatus = resp.StatusCode
	result.CostEUR = resp.Header.Get("X-Est-Cost-EUR")
	result.LatencyMs = resp.Header.Get("X-Latency-ms")

	return &result, nil
}

func (c *Client) GetRun(runID string) (*Run, error) {
	resp, err := c.makeRequest("GET", fmt.Sprintf("/v1/runs/%s", runID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var run Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &run, nil
}

func (c *Client) GetAgentHealth(agentKey string) (*AgentHealth, error) {
	resp, err := c.makeRequest("GET", fmt.Sprintf("/v1/agents/%s/health", agentKey), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var health AgentHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &health, nil
}

func (c *Client) GetDepartmentBudget(departmentKey string) (*BudgetSnapshot, error) {
	resp, err := c.makeRequest("GET", fmt.Sprintf("/v1/departments/%s/budget", departmentKey), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var snapshot BudgetSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &snapshot, nil
}

func (c *Client) makeRequest(method, path string, body io.Reader) (*http.Response, error) {
	url := c.baseURL + path
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	return resp, nil
}

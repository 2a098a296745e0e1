/*-------------------------------------------------------------------------
 *
 * catalog_test.go
 *    Tests for the agent catalog
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <ops@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/catalog/catalog_test.go
 *
 *-------------------------------------------------------------------------
 */

package catalog

import (
	"strings"
	"testing"
)

const validCatalog = `
departments:
  - key: sales
    monthly_budget_eur: 100
  - key: finance
    monthly_budget_eur: 250
agents:
  - agent_key: sales_followup
    department_key: sales
    type: agent
    hitl: false
    sla_minutes: 30
    budget_weight: 1.0
  - agent_key: finance_director
    department_key: finance
    type: director
    hitl: true
    sla_minutes: 120
    budget_weight: 2.5
`

/* TestParseValidCatalog tests parsing a well-formed catalog */
func TestParseValidCatalog(t *testing.T) {
	cat, err := Parse([]byte(validCatalog))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	def, ok := cat.Agent("sales_followup")
	if !ok {
		t.Fatal("Expected sales_followup to be present")
	}
	if def.DepartmentKey != "sales" {
		t.Errorf("Expected department sales, got %s", def.DepartmentKey)
	}
	if def.Type != TypeAgent {
		t.Errorf("Expected type agent, got %s", def.Type)
	}
	if def.BudgetWeight != 1.0 {
		t.Errorf("Expected budget weight 1.0, got %f", def.BudgetWeight)
	}

	director, ok := cat.Agent("finance_director")
	if !ok {
		t.Fatal("Expected finance_director to be present")
	}
	if !director.HITL {
		t.Error("Expected finance_director to require HITL")
	}

	dept, ok := cat.Department("sales")
	if !ok {
		t.Fatal("Expected sales department to be present")
	}
	if dept.MonthlyBudgetEUR != 100 {
		t.Errorf("Expected budget 100, got %f", dept.MonthlyBudgetEUR)
	}

	if _, ok := cat.Department("unmapped"); ok {
		t.Error("Expected unmapped department to be absent")
	}
}

/* TestParseInvalidCatalogs tests that malformed catalogs are rejected */
func TestParseInvalidCatalogs(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "empty catalog",
			yaml:    `agents: []`,
			wantErr: "no agents",
		},
		{
			name: "bad budget weight",
			yaml: `
agents:
  - agent_key: a_one
    department_key: sales
    type: agent
    sla_minutes: 10
    budget_weight: 5.0
`,
			wantErr: "budget_weight",
		},
		{
			name: "bad type",
			yaml: `
agents:
  - agent_key: a_one
    department_key: sales
    type: robot
    sla_minutes: 10
    budget_weight: 1.0
`,
			wantErr: "type",
		},
		{
			name: "duplicate agent key",
			yaml: `
agents:
  - agent_key: a_one
    department_key: sales
    type: agent
    sla_minutes: 10
    budget_weight: 1.0
  - agent_key: a_one
    department_key: sales
    type: agent
    sla_minutes: 10
    budget_weight: 1.0
`,
			wantErr: "duplicate",
		},
		{
			name: "invalid agent key format",
			yaml: `
agents:
  - agent_key: Sales-Followup
    department_key: sales
    type: agent
    sla_minutes: 10
    budget_weight: 1.0
`,
			wantErr: "invalid agent key",
		},
		{
			name: "zero department budget",
			yaml: `
departments:
  - key: sales
    monthly_budget_eur: 0
agents:
  - agent_key: a_one
    department_key: sales
    type: agent
    sla_minutes: 10
    budget_weight: 1.0
`,
			wantErr: "monthly_budget_eur",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

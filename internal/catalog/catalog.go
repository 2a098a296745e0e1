/*-------------------------------------------------------------------------
 *
 * catalog.go
 *    Agent definition catalog for AgentGate
 *
 * Loads the agent catalog and department budgets from a YAML file at
 * boot, validates them eagerly, and exposes an immutable lookup view.
 * The process must fail fast on an invalid catalog.
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <ops@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/catalog/catalog.go
 *
 *-------------------------------------------------------------------------
 */

package catalog

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

/* AgentType distinguishes single agents from director agents */
type AgentType string

const (
	TypeAgent    AgentType = "agent"
	TypeDirector AgentType = "director"
)

/* AgentDefinition is an immutable catalog entry for a dispatchable agent */
type AgentDefinition struct {
	AgentKey      string    `yaml:"agent_key"`
	DepartmentKey string    `yaml:"department_key"`
	Type          AgentType `yaml:"type"`
	HITL          bool      `yaml:"hitl"`
	SLAMinutes    int       `yaml:"sla_minutes"`
	BudgetWeight  float64   `yaml:"budget_weight"`
}

/* Department holds the monthly budget for a department */
type Department struct {
	Key              string  `yaml:"key"`
	MonthlyBudgetEUR float64 `yaml:"monthly_budget_eur"`
}

/* Catalog is the validated, immutable agent catalog */
type Catalog struct {
	agents      map[string]AgentDefinition
	departments map[string]Department
}

type catalogFile struct {
	Departments []Department      `yaml:"departments"`
	Agents      []AgentDefinition `yaml:"agents"`
}

var keyRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

/* Load reads and validates a catalog file */
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	return Parse(data)
}

/* Parse validates raw catalog YAML and builds the lookup view */
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	departments := make(map[string]Department, len(file.Departments))
	for _, dept := range file.Departments {
		if !keyRegex.MatchString(dept.Key) {
			return nil, fmt.Errorf("invalid department key %q: must match %s", dept.Key, keyRegex.String())
		}
		if dept.MonthlyBudgetEUR <= 0 {
			return nil, fmt.Errorf("department %q: monthly_budget_eur must be positive, got %.2f", dept.Key, dept.MonthlyBudgetEUR)
		}
		if _, exists := departments[dept.Key]; exists {
			return nil, fmt.Errorf("duplicate department key %q", dept.Key)
		}
		departments[dept.Key] = dept
	}

	agents := make(map[string]AgentDefinition, len(file.Agents))
	for _, def := range file.Agents {
		if !keyRegex.MatchString(def.AgentKey) {
			return nil, fmt.Errorf("invalid agent key %q: must match %s", def.AgentKey, keyRegex.String())
		}
		if _, exists := agents[def.AgentKey]; exists {
			return nil, fmt.Errorf("duplicate agent key %q", def.AgentKey)
		}
		if def.DepartmentKey == "" {
			return nil, fmt.Errorf("agent %q: department_key is required", def.AgentKey)
		}
		if def.Type != TypeAgent && def.Type != TypeDirector {
			return nil, fmt.Errorf("agent %q: type must be %q or %q, got %q", def.AgentKey, TypeAgent, TypeDirector, def.Type)
		}
		if def.SLAMinutes <= 0 {
			return nil, fmt.Errorf("agent %q: sla_minutes must be positive, got %d", def.AgentKey, def.SLAMinutes)
		}
		if def.BudgetWeight < 0.1 || def.BudgetWeight > 3.0 {
			return nil, fmt.Errorf("agent %q: budget_weight must be in [0.1, 3.0], got %.2f", def.AgentKey, def.BudgetWeight)
		}
		agents[def.AgentKey] = def
	}

	if len(agents) == 0 {
		return nil, fmt.Errorf("catalog contains no agents")
	}

	return &Catalog{agents: agents, departments: departments}, nil
}

/* Agent looks up an agent definition by key */
func (c *Catalog) Agent(agentKey string) (AgentDefinition, bool) {
	def, ok := c.agents[agentKey]
	return def, ok
}

/* Department looks up a department by key.
 * Departments absent from the catalog are unmetered; the budget ledger
 * treats them as always admitted. */
func (c *Catalog) Department(key string) (Department, bool) {
	dept, ok := c.departments[key]
	return dept, ok
}

/* Agents returns all agent definitions */
func (c *Catalog) Agents() []AgentDefinition {
	defs := make([]AgentDefinition, 0, len(c.agents))
	for _, def := range c.agents {
		defs = append(defs, def)
	}
	return defs
}

/* Departments returns all configured departments */
func (c *Catalog) Departments() []Department {
	depts := make([]Department, 0, len(c.departments))
	for _, dept := range c.departments {
		depts = append(depts, dept)
	}
	return depts
}

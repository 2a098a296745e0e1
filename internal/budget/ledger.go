/*-------------------------------------------------------------------------
 *
 * ledger.go
 *    Department budget ledger for AgentGate
 *
 * Tracks monthly spend per department against a configured cap and
 * provides the admission decision for the trigger pipeline. The check
 * and the spend increment are one atomic step per department so a burst
 * of concurrent requests cannot all pass the check before any of them
 * register spend.
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <ops@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/budget/ledger.go
 *
 *-------------------------------------------------------------------------
 */

package budget

import (
	"context"
	"sync"
	"time"

	"github.com/cockpithq/agentgate/internal/catalog"
	"github.com/cockpithq/agentgate/internal/metrics"
)

/* Policy names the admission policy that produced a decision */
type Policy string

const (
	/* PolicyMetered is the normal capped-budget policy */
	PolicyMetered Policy = "metered"

	/* PolicyUnmetered admits everything without tracking. Departments
	 * absent from the catalog get this policy so unmapped agents are
	 * never blocked. Deliberate fail-open. */
	PolicyUnmetered Policy = "unmetered"
)

/* Decision is the outcome of a budget admission check */
type Decision struct {
	Admitted bool
	PctUsed  float64
	Policy   Policy
}

/* Ledger provides budget admission decisions */
type Ledger interface {
	/* CheckAndReserve atomically checks the department budget and, if
	 * admitted, increments spend by estimatedCostEUR. A rejected request
	 * never increments spend. */
	CheckAndReserve(ctx context.Context, departmentKey string, estimatedCostEUR float64) (Decision, error)

	/* Snapshot returns the current period's spend for a department */
	Snapshot(ctx context.Context, departmentKey string) (Snapshot, error)
}

/* Snapshot is a read-only budget view for operators */
type Snapshot struct {
	DepartmentKey    string  `json:"department_key"`
	MonthlyBudgetEUR float64 `json:"monthly_budget_eur"`
	SpentEUR         float64 `json:"spent_eur"`
	PctUsed          float64 `json:"pct_used"`
	Policy           Policy  `json:"policy"`
	PeriodStart      string  `json:"period_start"`
}

/* MemoryLedger is the in-process ledger implementation. Concurrency is
 * scoped per department. */
type MemoryLedger struct {
	mu      sync.Mutex
	cat     *catalog.Catalog
	entries map[string]*deptEntry
	now     func() time.Time
}

type deptEntry struct {
	mu          sync.Mutex
	budgetEUR   float64
	spentEUR    float64
	periodStart time.Time
}

/* NewMemoryLedger creates a ledger over the configured departments */
func NewMemoryLedger(cat *catalog.Catalog) *MemoryLedger {
	return &MemoryLedger{
		cat:     cat,
		entries: make(map[string]*deptEntry),
		now:     time.Now,
	}
}

func periodStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (l *MemoryLedger) entryFor(departmentKey string) (*deptEntry, bool) {
	dept, ok := l.cat.Department(departmentKey)
	if !ok {
		return nil, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[departmentKey]
	if !ok {
		e = &deptEntry{
			budgetEUR:   dept.MonthlyBudgetEUR,
			periodStart: periodStart(l.now()),
		}
		l.entries[departmentKey] = e
	}
	return e, true
}

/* CheckAndReserve implements Ledger */
func (l *MemoryLedger) CheckAndReserve(ctx context.Context, departmentKey string, estimatedCostEUR float64) (Decision, error) {
	e, metered := l.entryFor(departmentKey)
	if !metered {
		return Decision{Admitted: true, PctUsed: 0, Policy: PolicyUnmetered}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	/* Reset spend at the billing period boundary */
	if start := periodStart(l.now()); start.After(e.periodStart) {
		e.periodStart = start
		e.spentEUR = 0
	}

	pct := (e.spentEUR + estimatedCostEUR) / e.budgetEUR * 100
	if pct >= 100 {
		metrics.RecordBudgetPctUsed(departmentKey, e.spentEUR/e.budgetEUR*100)
		return Decision{Admitted: false, PctUsed: pct, Policy: PolicyMetered}, nil
	}

	e.spentEUR += estimatedCostEUR
	metrics.RecordBudgetPctUsed(departmentKey, e.spentEUR/e.budgetEUR*100)
	return Decision{Admitted: true, PctUsed: pct, Policy: PolicyMetered}, nil
}

/* Snapshot implements Ledger */
func (l *MemoryLedger) Snapshot(ctx context.Context, departmentKey string) (Snapshot, error) {
	e, metered := l.entryFor(departmentKey)
	if !metered {
		return Snapshot{
			DepartmentKey: departmentKey,
			Policy:        PolicyUnmetered,
		}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return Snapshot{
		DepartmentKey:    departmentKey,
		MonthlyBudgetEUR: e.budgetEUR,
		SpentEUR:         e.spentEUR,
		PctUsed:          e.spentEUR / e.budgetEUR * 100,
		Policy:           PolicyMetered,
		PeriodStart:      e.periodStart.Format(time.RFC3339),
	}, nil
}

/*-------------------------------------------------------------------------
 *
 * models.go
 *    Database models for AgentGate
 *
 * Row types for runs, idempotency records, budget periods and audit
 * entries, plus the JSONB map adapter shared by them.
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/db/models.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

/* JSONBMap maps a jsonb column to a Go map */
type JSONBMap map[string]interface{}

/* Value implements driver.Valuer */
func (m JSONBMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

/* Scan implements sql.Scanner */
func (m *JSONBMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONBMap", src)
	}
	return json.Unmarshal(data, m)
}

/* FromMap converts a plain map to JSONBMap */
func FromMap(m map[string]interface{}) JSONBMap {
	return JSONBMap(m)
}

/* IdempotencyRow is one stored idempotency record. A pending row is a
 * claimed key whose admission is still in flight. */
type IdempotencyRow struct {
	Namespace string    `db:"namespace"`
	Key       string    `db:"idempotency_key"`
	RunID     uuid.UUID `db:"run_id"`
	Status    string    `db:"status"`
	Preview   string    `db:"preview"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

/* BudgetPeriodRow is one department's spend for one monthly period */
type BudgetPeriodRow struct {
	DepartmentKey    string    `db:"department_key"`
	PeriodStart      time.Time `db:"period_start"`
	MonthlyBudgetEUR float64   `db:"monthly_budget_eur"`
	SpentEUR         float64   `db:"spent_eur"`
	UpdatedAt        time.Time `db:"updated_at"`
}

/* AuditRow is one append-only audit entry */
type AuditRow struct {
	ID            uuid.UUID `db:"id"`
	Kind          string    `db:"kind"`
	RunID         uuid.UUID `db:"run_id"`
	AgentKey      string    `db:"agent_key"`
	CorrelationID string    `db:"correlation_id"`
	Outcome       string    `db:"outcome"`
	Detail        JSONBMap  `db:"detail"`
	CreatedAt     time.Time `db:"created_at"`
}

/*-------------------------------------------------------------------------
 *
 * audit.go
 *    Append-only audit trail for AgentGate
 *
 * Records every admission decision and run state transition. Sinks are
 * append-only; nothing in the request path reads the trail back.
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <ops@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/audit/audit.go
 *
 *-------------------------------------------------------------------------
 */

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cockpithq/agentgate/internal/metrics"
)

/* Kind classifies an audit record */
type Kind string

const (
	KindAdmission  Kind = "admission"
	KindTransition Kind = "transition"
	KindAnomaly    Kind = "anomaly"
)

/* Record is one append-only audit entry */
type Record struct {
	ID            uuid.UUID              `json:"id"`
	Kind          Kind                   `json:"kind"`
	RunID         uuid.UUID              `json:"run_id"`
	AgentKey      string                 `json:"agent_key,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Outcome       string                 `json:"outcome"`
	Detail        map[string]interface{} `json:"detail,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

/* Sink accepts audit records. Append must never block the request path
 * on sink-internal failures; sinks log and drop instead. */
type Sink interface {
	Append(ctx context.Context, record Record) error
}

/* LogSink writes audit records to the structured log */
type LogSink struct{}

/* NewLogSink creates a log-backed audit sink */
func NewLogSink() *LogSink {
	return &LogSink{}
}

/* Append implements Sink */
func (s *LogSink) Append(ctx context.Context, record Record) error {
	metrics.InfoWithContext(ctx, "Audit record", map[string]interface{}{
		"audit_kind":     string(record.Kind),
		"run_id":         record.RunID.String(),
		"agent_key":      record.AgentKey,
		"correlation_id": record.CorrelationID,
		"outcome":        record.Outcome,
		"detail":         record.Detail,
	})
	return nil
}

/* MemorySink retains records in memory, used by tests and as a ring for
 * operator inspection */
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

/* NewMemorySink creates an in-memory audit sink */
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

/* Append implements Sink */
func (s *MemorySink) Append(ctx context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

/* Records returns a copy of all appended records */
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

/* RecordsFor returns the records for one run */
func (s *MemorySink) RecordsFor(runID uuid.UUID) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out
}

/* NewRecord builds a record with id and timestamp filled in */
func NewRecord(kind Kind, runID uuid.UUID, agentKey, correlationID, outcome string, detail map[string]interface{}) Record {
	return Record{
		ID:            uuid.New(),
		Kind:          kind,
		RunID:         runID,
		AgentKey:      agentKey,
		CorrelationID: correlationID,
		Outcome:       outcome,
		Detail:        detail,
		CreatedAt:     time.Now(),
	}
}

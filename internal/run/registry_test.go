/*-------------------------------------------------------------------------
 *
 * registry_test.go
 *    Tests for the run registry and state machine
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/run/registry_test.go
 *
 *-------------------------------------------------------------------------
 */

package run

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/cockpithq/agentgate/internal/audit"
)

func intPtr(i int) *int          { return &i }
func strPtr(s string) *string    { return &s }

func newTestRun(t *testing.T, reg Registry) uuid.UUID {
	t.Helper()
	id := uuid.New()
	err := reg.Create(context.Background(), &Run{
		RunID:         id,
		TenantID:      "tenant-1",
		DepartmentKey: "sales",
		AgentKey:      "sales_followup",
		Status:        StatusQueued,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return id
}

/* TestCanTransition tests the transition table */
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusFailed, true},
		{StatusQueued, StatusCompleted, true},
		{StatusRunning, StatusHITL, true},
		{StatusRunning, StatusRunning, true},
		{StatusHITL, StatusRunning, true},
		{StatusHITL, StatusCompleted, true},
		{StatusCompleted, StatusRunning, false},
		{StatusFailed, StatusRunning, false},
		{StatusCompleted, StatusFailed, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

/* TestApplyEventHappyPath tests queued -> running -> completed */
func TestApplyEventHappyPath(t *testing.T) {
	sink := audit.NewMemorySink()
	reg := NewMemoryRegistry(sink)
	ctx := context.Background()
	id := newTestRun(t, reg)

	r, outcome, err := reg.ApplyEvent(ctx, id, Event{Status: StatusRunning, Progress: intPtr(40)})
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Errorf("Expected applied, got %s", outcome)
	}
	if r.Status != StatusRunning || r.Progress != 40 {
		t.Errorf("Expected running/40, got %s/%d", r.Status, r.Progress)
	}

	r, outcome, err = reg.ApplyEvent(ctx, id, Event{Status: StatusCompleted, Progress: intPtr(100), Summary: strPtr("done")})
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Errorf("Expected applied, got %s", outcome)
	}
	if r.Status != StatusCompleted || r.Progress != 100 {
		t.Errorf("Expected completed/100, got %s/%d", r.Status, r.Progress)
	}
	if r.Summary == nil || *r.Summary != "done" {
		t.Error("Expected summary to be recorded")
	}
}

/* TestTerminalImmutability: a completed run at
 * progress 100 receives a late RUNNING/60 event */
func TestTerminalImmutability(t *testing.T) {
	sink := audit.NewMemorySink()
	reg := NewMemoryRegistry(sink)
	ctx := context.Background()
	id := newTestRun(t, reg)

	if _, _, err := reg.ApplyEvent(ctx, id, Event{Status: StatusRunning, Progress: intPtr(40)}); err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if _, _, err := reg.ApplyEvent(ctx, id, Event{Status: StatusCompleted, Progress: intPtr(100)}); err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}

	before := len(sink.RecordsFor(id))

	r, outcome, err := reg.ApplyEvent(ctx, id, Event{Status: StatusRunning, Progress: intPtr(60)})
	if err != nil {
		t.Fatalf("Expected terminal rejection to be acknowledged, got error %v", err)
	}
	if outcome != OutcomeTerminalRejected {
		t.Errorf("Expected terminal_rejected, got %s", outcome)
	}
	if r.Status != StatusCompleted || r.Progress != 100 {
		t.Errorf("Expected terminal state to be untouched, got %s/%d", r.Status, r.Progress)
	}

	/* The only observable effect is one more audit record */
	after := len(sink.RecordsFor(id))
	if after != before+1 {
		t.Errorf("Expected exactly one audit record for the rejected event, got %d new", after-before)
	}
}

/* TestProgressMonotonicity tests that regressing progress is ignored */
func TestProgressMonotonicity(t *testing.T) {
	sink := audit.NewMemorySink()
	reg := NewMemoryRegistry(sink)
	ctx := context.Background()
	id := newTestRun(t, reg)

	if _, _, err := reg.ApplyEvent(ctx, id, Event{Status: StatusRunning, Progress: intPtr(70)}); err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}

	r, outcome, err := reg.ApplyEvent(ctx, id, Event{Status: StatusRunning, Progress: intPtr(30)})
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if outcome != OutcomeProgressIgnored {
		t.Errorf("Expected progress_ignored, got %s", outcome)
	}
	if r.Progress != 70 {
		t.Errorf("Expected progress to remain 70, got %d", r.Progress)
	}

	/* Regression is recorded as an anomaly */
	var anomalies int
	for _, rec := range sink.RecordsFor(id) {
		if rec.Kind == audit.KindAnomaly {
			anomalies++
		}
	}
	if anomalies != 1 {
		t.Errorf("Expected 1 anomaly record, got %d", anomalies)
	}

	/* Equal progress is not a regression */
	_, outcome, err = reg.ApplyEvent(ctx, id, Event{Status: StatusRunning, Progress: intPtr(70)})
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Errorf("Expected equal progress to apply, got %s", outcome)
	}
}

/* TestHITLResume tests hitl -> running and hitl -> failed */
func TestHITLResume(t *testing.T) {
	reg := NewMemoryRegistry(audit.NewMemorySink())
	ctx := context.Background()

	id := newTestRun(t, reg)
	if _, _, err := reg.ApplyEvent(ctx, id, Event{Status: StatusRunning}); err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if _, _, err := reg.ApplyEvent(ctx, id, Event{Status: StatusHITL}); err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}

	r, outcome, err := reg.ApplyEvent(ctx, id, Event{Status: StatusRunning})
	if err != nil || outcome != OutcomeApplied {
		t.Fatalf("Expected hitl -> running to apply, got outcome=%s err=%v", outcome, err)
	}
	if r.Status != StatusRunning {
		t.Errorf("Expected running, got %s", r.Status)
	}

	second := newTestRun(t, reg)
	if _, _, err := reg.ApplyEvent(ctx, second, Event{Status: StatusHITL}); err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	r, outcome, err = reg.ApplyEvent(ctx, second, Event{Status: StatusFailed, Error: strPtr("rejected by operator")})
	if err != nil || outcome != OutcomeApplied {
		t.Fatalf("Expected hitl -> failed to apply, got outcome=%s err=%v", outcome, err)
	}
	if r.Error == nil || *r.Error != "rejected by operator" {
		t.Error("Expected error text to be recorded")
	}
	if r.Summary != nil {
		t.Error("Expected summary and error to be mutually exclusive")
	}
}

/* TestConcurrentTransitionsSerialized tests per-run serialization under
 * concurrent webhook events */
func TestConcurrentTransitionsSerialized(t *testing.T) {
	reg := NewMemoryRegistry(audit.NewMemorySink())
	ctx := context.Background()
	id := newTestRun(t, reg)

	if _, _, err := reg.ApplyEvent(ctx, id, Event{Status: StatusRunning, Progress: intPtr(1)}); err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			/* Outcome depends on interleaving; state integrity is what
			 * matters here. */
			reg.ApplyEvent(ctx, id, Event{Status: StatusRunning, Progress: intPtr(p)})
		}(i)
	}
	wg.Wait()

	r, err := reg.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if r.Progress < 1 || r.Progress > 49 {
		t.Errorf("Expected final progress within applied range, got %d", r.Progress)
	}
	if r.Status != StatusRunning {
		t.Errorf("Expected running, got %s", r.Status)
	}
}

/* TestGetUnknownRun tests the not-found path */
func TestGetUnknownRun(t *testing.T) {
	reg := NewMemoryRegistry(audit.NewMemorySink())
	if _, err := reg.Get(context.Background(), uuid.New()); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

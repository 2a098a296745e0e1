/*-------------------------------------------------------------------------
 *
 * stores_test.go
 *    Tests for the Postgres idempotency store claim protocol
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/db/stores_test.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cockpithq/agentgate/internal/idempotency"
)

/* fakeIdemQueries replays the claim query semantics in memory: a claim
 * inserts a pending row or takes over an expired one, fill records the
 * outcome, release drops a pending row */
type fakeIdemQueries struct {
	mu   sync.Mutex
	rows map[string]*IdempotencyRow
}

func newFakeIdemQueries() *fakeIdemQueries {
	return &fakeIdemQueries{rows: make(map[string]*IdempotencyRow)}
}

func rowKey(namespace, key string) string {
	return namespace + ":" + key
}

func (f *fakeIdemQueries) ClaimIdempotencyKey(ctx context.Context, namespace, key string, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rk := rowKey(namespace, key)
	if row, ok := f.rows[rk]; ok && row.ExpiresAt.After(time.Now()) {
		return false, nil
	}
	f.rows[rk] = &IdempotencyRow{
		Namespace: namespace,
		Key:       key,
		RunID:     uuid.Nil,
		Status:    statusPending,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	return true, nil
}

func (f *fakeIdemQueries) FillIdempotencyKey(ctx context.Context, namespace, key string, runID uuid.UUID, status, preview string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[rowKey(namespace, key)]
	if !ok {
		return fmt.Errorf("no claim row for %s/%s", namespace, key)
	}
	row.RunID = runID
	row.Status = status
	row.Preview = preview
	return nil
}

func (f *fakeIdemQueries) ReleaseIdempotencyKey(ctx context.Context, namespace, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rk := rowKey(namespace, key)
	if row, ok := f.rows[rk]; ok && row.Status == statusPending {
		delete(f.rows, rk)
	}
	return nil
}

func (f *fakeIdemQueries) GetIdempotencyKey(ctx context.Context, namespace, key string) (*IdempotencyRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[rowKey(namespace, key)]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (f *fakeIdemQueries) FinalizeIdempotencyKey(ctx context.Context, namespace, key, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[rowKey(namespace, key)]; ok {
		row.Status = status
	}
	return nil
}

func (f *fakeIdemQueries) SweepIdempotencyKeys(ctx context.Context) (int, error) {
	return 0, nil
}

func newTestStore(queries idemQueries) *PGIdempotencyStore {
	return &PGIdempotencyStore{
		queries:      queries,
		ttl:          time.Minute,
		pollInterval: time.Millisecond,
	}
}

/* TestGetOrInitDuplicateWaitsForWinner loses the claim race while the
 * winner's producer is still in flight and must observe the winner's
 * recorded outcome, never the pending placeholder row */
func TestGetOrInitDuplicateWaitsForWinner(t *testing.T) {
	store := newTestStore(newFakeIdemQueries())
	ctx := context.Background()
	winnerRunID := uuid.New()

	hold := make(chan struct{})
	winnerStarted := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, wasFirst, err := store.GetOrInit(ctx, idempotency.NamespaceTrigger, "key-1", func() (idempotency.Record, error) {
			close(winnerStarted)
			<-hold
			return idempotency.Record{RunID: winnerRunID, Status: "queued"}, nil
		})
		if err != nil {
			t.Errorf("Winner GetOrInit failed: %v", err)
		}
		if !wasFirst {
			t.Error("Winner expected wasFirst=true")
		}
	}()

	<-winnerStarted

	resultCh := make(chan idempotency.Record, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		rec, wasFirst, err := store.GetOrInit(ctx, idempotency.NamespaceTrigger, "key-1", func() (idempotency.Record, error) {
			t.Error("Duplicate must not run the producer")
			return idempotency.Record{}, nil
		})
		if err != nil {
			t.Errorf("Duplicate GetOrInit failed: %v", err)
			resultCh <- idempotency.Record{}
			return
		}
		if wasFirst {
			t.Error("Duplicate expected wasFirst=false")
		}
		resultCh <- rec
	}()

	/* Give the duplicate time to land on the pending row before the
	 * winner completes */
	time.Sleep(10 * time.Millisecond)
	select {
	case rec := <-resultCh:
		t.Fatalf("Duplicate returned %+v while the winner was still in flight", rec)
	default:
	}

	close(hold)
	wg.Wait()

	rec := <-resultCh
	if rec.RunID != winnerRunID {
		t.Errorf("Expected duplicate to observe run %s, got %s", winnerRunID, rec.RunID)
	}
	if rec.Status != "queued" {
		t.Errorf("Expected recorded status queued, got %q", rec.Status)
	}
}

/* TestGetOrInitReclaimsAfterProducerFailure: a released claim re-opens
 * the key, so a waiting duplicate becomes the first writer */
func TestGetOrInitReclaimsAfterProducerFailure(t *testing.T) {
	store := newTestStore(newFakeIdemQueries())
	ctx := context.Background()

	hold := make(chan struct{})
	winnerStarted := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, err := store.GetOrInit(ctx, idempotency.NamespaceTrigger, "key-1", func() (idempotency.Record, error) {
			close(winnerStarted)
			<-hold
			return idempotency.Record{}, fmt.Errorf("budget check failed")
		})
		if err == nil {
			t.Error("Winner expected producer error")
		}
	}()

	<-winnerStarted

	retryRunID := uuid.New()
	var rec idempotency.Record
	var wasFirst bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		rec, wasFirst, err = store.GetOrInit(ctx, idempotency.NamespaceTrigger, "key-1", func() (idempotency.Record, error) {
			return idempotency.Record{RunID: retryRunID, Status: "queued"}, nil
		})
		if err != nil {
			t.Errorf("Retry GetOrInit failed: %v", err)
		}
	}()

	time.Sleep(10 * time.Millisecond)
	close(hold)
	wg.Wait()

	if !wasFirst {
		t.Error("Expected retry to claim the released key")
	}
	if rec.RunID != retryRunID {
		t.Errorf("Expected retry run %s, got %s", retryRunID, rec.RunID)
	}
}

/* TestGetOrInitDuplicateAfterFill returns the recorded outcome without
 * re-running the producer */
func TestGetOrInitDuplicateAfterFill(t *testing.T) {
	store := newTestStore(newFakeIdemQueries())
	ctx := context.Background()
	runID := uuid.New()

	if _, wasFirst, err := store.GetOrInit(ctx, idempotency.NamespaceTrigger, "key-1", func() (idempotency.Record, error) {
		return idempotency.Record{RunID: runID, Status: "queued"}, nil
	}); err != nil || !wasFirst {
		t.Fatalf("First GetOrInit failed: wasFirst=%v err=%v", wasFirst, err)
	}

	rec, wasFirst, err := store.GetOrInit(ctx, idempotency.NamespaceTrigger, "key-1", func() (idempotency.Record, error) {
		t.Error("Duplicate must not run the producer")
		return idempotency.Record{}, nil
	})
	if err != nil {
		t.Fatalf("Duplicate GetOrInit failed: %v", err)
	}
	if wasFirst {
		t.Error("Expected wasFirst=false for duplicate")
	}
	if rec.RunID != runID {
		t.Errorf("Expected run %s, got %s", runID, rec.RunID)
	}
}

/* TestGetOrInitCancelledWhileWaiting: a duplicate waiting on a pending
 * claim honors context cancellation */
func TestGetOrInitCancelledWhileWaiting(t *testing.T) {
	store := newTestStore(newFakeIdemQueries())
	hold := make(chan struct{})
	defer close(hold)
	winnerStarted := make(chan struct{})

	go store.GetOrInit(context.Background(), idempotency.NamespaceTrigger, "key-1", func() (idempotency.Record, error) {
		close(winnerStarted)
		<-hold
		return idempotency.Record{RunID: uuid.New(), Status: "queued"}, nil
	})
	<-winnerStarted

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := store.GetOrInit(ctx, idempotency.NamespaceTrigger, "key-1", func() (idempotency.Record, error) {
		return idempotency.Record{}, nil
	})
	if err != context.DeadlineExceeded {
		t.Errorf("Expected DeadlineExceeded while waiting on a pending claim, got %v", err)
	}
}

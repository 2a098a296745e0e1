/*-------------------------------------------------------------------------
 *
 * store.go
 *    Idempotency store for AgentGate
 *
 * Maps an idempotency key to a recorded admission outcome with a TTL.
 * Provides first-writer-wins semantics: GetOrInit runs the producer at
 * most once per live key, and every concurrent duplicate observes the
 * first writer's record. Trigger and webhook-event keys live in
 * enforced separate namespaces.
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/idempotency/store.go
 *
 *-------------------------------------------------------------------------
 */

package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cockpithq/agentgate/internal/metrics"
)

/* Namespace separates trigger keys from webhook-event keys */
type Namespace string

const (
	NamespaceTrigger Namespace = "trigger"
	NamespaceEvent   Namespace = "event"
)

/* Record is the outcome stored for an idempotency key */
type Record struct {
	Key       string
	Namespace Namespace
	RunID     uuid.UUID
	Status    string
	Preview   string
	ExpiresAt time.Time
}

/* Store provides first-writer-wins idempotency semantics */
type Store interface {
	/* GetOrInit returns the stored record for key, or atomically stores
	 * the producer's record and returns it with wasFirst=true. The
	 * producer runs at most once per live key. */
	GetOrInit(ctx context.Context, ns Namespace, key string, producer func() (Record, error)) (Record, bool, error)

	/* Finalize appends the terminal run status to an existing record so
	 * late duplicates observe the final outcome. No other mutation of a
	 * live record is permitted. */
	Finalize(ctx context.Context, ns Namespace, key string, status string) error

	/* Sweep evicts expired records and reports how many were removed */
	Sweep(ctx context.Context) (int, error)
}

/* MemoryStore is the in-process store implementation. Concurrency is
 * scoped per key: the map mutex is held only for entry lookup, and the
 * producer runs under the entry's own lock. */
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
}

type entry struct {
	mu     sync.Mutex
	record Record
	filled bool
}

/* NewMemoryStore creates an in-process idempotency store */
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func storeKey(ns Namespace, key string) string {
	return string(ns) + ":" + key
}

/* GetOrInit implements Store */
func (s *MemoryStore) GetOrInit(ctx context.Context, ns Namespace, key string, producer func() (Record, error)) (Record, bool, error) {
	sk := storeKey(ns, key)

	s.mu.Lock()
	e, ok := s.entries[sk]
	if !ok {
		e = &entry{}
		s.entries[sk] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.filled && s.now().Before(e.record.ExpiresAt) {
		metrics.RecordIdempotencyHit(string(ns))
		return e.record, false, nil
	}

	record, err := producer()
	if err != nil {
		/* Leave the entry unfilled so a later request may retry. A
		 * failed producer has performed no side effects. */
		return Record{}, false, err
	}
	record.Key = key
	record.Namespace = ns
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = s.now().Add(s.ttl)
	}
	e.record = record
	e.filled = true
	return record, true, nil
}

/* Finalize implements Store */
func (s *MemoryStore) Finalize(ctx context.Context, ns Namespace, key string, status string) error {
	sk := storeKey(ns, key)

	s.mu.Lock()
	e, ok := s.entries[sk]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.filled && s.now().Before(e.record.ExpiresAt) {
		e.record.Status = status
	}
	return nil
}

/* Sweep implements Store */
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for sk, e := range s.entries {
		e.mu.Lock()
		expired := e.filled && !now.Before(e.record.ExpiresAt)
		e.mu.Unlock()
		if expired {
			delete(s.entries, sk)
			removed++
		}
	}
	return removed, nil
}

/* Sweeper periodically evicts expired idempotency records */
type Sweeper struct {
	store    Store
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

/* NewSweeper creates a periodic sweeper for a store */
func NewSweeper(store Store, interval time.Duration) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		store:    store,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

/* Start starts the background sweep loop */
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.store.Sweep(s.ctx)
				if err != nil {
					metrics.ErrorWithContext(s.ctx, "Idempotency sweep failed", err, nil)
					continue
				}
				if removed > 0 {
					metrics.DebugWithContext(s.ctx, "Idempotency sweep completed", map[string]interface{}{
						"removed": removed,
					})
				}
			}
		}
	}()
}

/* Stop stops the sweep loop and waits for it to exit */
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

package store

import (
	"context"

	"github.com/opentexas/auction-worker/internal/domain"
)

// Semaphore is the binding semaphore (capacity 1) that gates every document
// mutation, per spec.md §5 ("server_actions"). It is exported as its own
// type, but Guard.Do is its only caller: each Guard.Do holds it for one
// load-mutate-save cycle, and no caller holds it across several.
type Semaphore struct {
	slot chan struct{}
}

// NewSemaphore returns a released, capacity-1 semaphore.
func NewSemaphore() *Semaphore {
	return &Semaphore{slot: make(chan struct{}, 1)}
}

// Acquire blocks until the semaphore is free, or ctx is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the semaphore. Must be called exactly once per Acquire.
func (s *Semaphore) Release() {
	<-s.slot
}

// Guard is the scoped "with_document" helper (spec.md §4.2): it acquires
// sem, loads the document, calls fn, and — only if fn returns nil — saves
// the mutated document back through the store. The semaphore is always
// released, and the document is never written on error.
type Guard struct {
	Store Store
	Sem   *Semaphore
}

// NewGuard pairs a Store with a fresh Semaphore.
func NewGuard(s Store) *Guard {
	return &Guard{Store: s, Sem: NewSemaphore()}
}

// Do loads the document for id under the lock, calls fn with a mutable
// handle, and persists it on success. fn's error (if any) is returned
// unchanged and the document is discarded — "exactly one write per
// successful guard scope, zero on error" (spec.md §9).
func (g *Guard) Do(ctx context.Context, id string, fn func(doc *domain.AuctionDocument) error) error {
	if err := g.Sem.Acquire(ctx); err != nil {
		return err
	}
	defer g.Sem.Release()

	doc, err := g.Store.Load(ctx, id)
	if err != nil {
		return err
	}

	if err := fn(doc); err != nil {
		return err
	}

	return g.Store.Save(ctx, doc)
}

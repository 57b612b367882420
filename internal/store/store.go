// Package store defines the auction-document persistence boundary (C2):
// load/save with optimistic-concurrency revisions. The Coordinator and Bid
// Handler depend only on the Store interface; concrete backends live in
// postgres.go (production) and memory.go (tests, --standalone mode).
package store

import (
	"context"
	"errors"

	"github.com/opentexas/auction-worker/internal/domain"
)

// ErrNotFound is returned by Load when no document exists for the id.
var ErrNotFound = errors.New("store: auction document not found")

// ErrConflict is returned by Save when the document's revision no longer
// matches the persisted one — another writer won the race. Under the
// single-in-process-writer assumption (spec.md §5) this should never
// surface; if it does, the coordinator treats it as fatal (StoreConflict).
var ErrConflict = errors.New("store: revision conflict")

// Store is the Document Store interface (C2).
type Store interface {
	// Load returns the document for id, or ErrNotFound.
	Load(ctx context.Context, id string) (*domain.AuctionDocument, error)
	// Save persists doc, enforcing that doc.Revision matches the
	// currently-stored revision, and sets doc.Revision to the new value on
	// success. Returns ErrConflict on mismatch.
	Save(ctx context.Context, doc *domain.AuctionDocument) error
}

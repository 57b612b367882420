package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/opentexas/auction-worker/internal/domain"
)

// MemoryStore is an in-process Store used for --standalone runs and tests,
// grounded on the teacher's disposable-pool test setup
// (internal/bidengine/engine_test.go: setupTestEngine) adapted to need no
// database at all. Documents are deep-copied via JSON round-trip on every
// Load/Save so callers can never mutate the stored copy through an
// in-memory pointer alias.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]storedDoc
}

type storedDoc struct {
	revision string
	body     []byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string]storedDoc{}}
}

func (s *MemoryStore) Load(_ context.Context, id string) (*domain.AuctionDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}

	var doc domain.AuctionDocument
	if err := json.Unmarshal(stored.body, &doc); err != nil {
		return nil, err
	}
	doc.ID = id
	doc.Revision = stored.revision
	return &doc, nil
}

func (s *MemoryStore) Save(_ context.Context, doc *domain.AuctionDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	existing, exists := s.docs[doc.ID]
	if doc.Revision != "" && (!exists || existing.revision != doc.Revision) {
		return ErrConflict
	}
	if doc.Revision == "" && exists {
		return ErrConflict
	}

	newRevision := uuid.NewString()
	s.docs[doc.ID] = storedDoc{revision: newRevision, body: body}
	doc.Revision = newRevision
	return nil
}

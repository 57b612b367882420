package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opentexas/auction-worker/internal/domain"
	"github.com/opentexas/auction-worker/internal/metrics"
	"github.com/opentexas/auction-worker/internal/tracing"
)

// PostgresStore persists auction documents as JSONB rows, one per auction
// id, with an opaque text revision column used for optimistic concurrency —
// generalized from the teacher's updateAuctionOCC's integer version column
// (internal/bidengine/processor.go) to match the store's "opaque token"
// contract (spec.md §4.2).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-connected pool. Schema:
//
//	CREATE TABLE auction_documents (
//	    id       text PRIMARY KEY,
//	    revision text NOT NULL,
//	    body     jsonb NOT NULL
//	);
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*domain.AuctionDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "store.load")
	defer span.End()

	start := time.Now()
	defer func() { metrics.DocumentStoreOpDuration.WithLabelValues("load").Observe(time.Since(start).Seconds()) }()

	var revision string
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT revision, body FROM auction_documents WHERE id = $1`, id,
	).Scan(&revision, &body)
	if err == pgx.ErrNoRows {
		metrics.DocumentStoreOpsTotal.WithLabelValues("load", "not_found").Inc()
		return nil, ErrNotFound
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		metrics.DocumentStoreOpsTotal.WithLabelValues("load", "error").Inc()
		return nil, fmt.Errorf("store: load %s: %w", id, err)
	}
	metrics.DocumentStoreOpsTotal.WithLabelValues("load", "ok").Inc()

	var doc domain.AuctionDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", id, err)
	}
	doc.ID = id
	doc.Revision = revision
	return &doc, nil
}

func (s *PostgresStore) Save(ctx context.Context, doc *domain.AuctionDocument) error {
	ctx, span := tracing.StartSpan(ctx, "store.save")
	defer span.End()

	start := time.Now()
	defer func() { metrics.DocumentStoreOpDuration.WithLabelValues("save").Observe(time.Since(start).Seconds()) }()

	body, err := json.Marshal(doc)
	if err != nil {
		metrics.DocumentStoreOpsTotal.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("store: encode %s: %w", doc.ID, err)
	}
	newRevision := uuid.NewString()

	if doc.Revision == "" {
		// First write for this id: insert, failing if it already exists
		// (a concurrent planner beat us to it).
		_, err := s.pool.Exec(ctx,
			`INSERT INTO auction_documents (id, revision, body) VALUES ($1, $2, $3)`,
			doc.ID, newRevision, body,
		)
		if err != nil {
			tracing.RecordError(ctx, err)
			metrics.DocumentStoreOpsTotal.WithLabelValues("save", "error").Inc()
			return fmt.Errorf("store: insert %s: %w", doc.ID, err)
		}
		doc.Revision = newRevision
		metrics.DocumentStoreOpsTotal.WithLabelValues("save", "ok").Inc()
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE auction_documents SET revision = $1, body = $2 WHERE id = $3 AND revision = $4`,
		newRevision, body, doc.ID, doc.Revision,
	)
	if err != nil {
		tracing.RecordError(ctx, err)
		metrics.DocumentStoreOpsTotal.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("store: update %s: %w", doc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		metrics.DocumentStoreOpsTotal.WithLabelValues("save", "conflict").Inc()
		return ErrConflict
	}
	doc.Revision = newRevision
	metrics.DocumentStoreOpsTotal.WithLabelValues("save", "ok").Inc()
	return nil
}

// Package datasource defines the external-collaborator boundary (C3): the
// procurement API, file-based fixtures, and the synthetic test source all
// implement the same Datasource interface. Grounded on
// original_source/openprocurement/auction/texas/datasource.py's IDataSource.
package datasource

import (
	"context"

	"github.com/opentexas/auction-worker/internal/domain"
)

// Features reports which side effects a Datasource variant actually
// performs, mirroring IDataSource's post_result/post_history_document
// attributes.
type Features struct {
	PostResult          bool
	PostHistoryDocument bool
}

// Datasource is the C3 interface.
type Datasource interface {
	Features() Features

	// GetData returns the canonical auction definition. public selects the
	// anonymized vs. full view; withCredentials attaches the resource API
	// token even on the public view (auction.py calls this with varying
	// combinations at different lifecycle points).
	GetData(ctx context.Context, public, withCredentials bool) (*domain.AuctionData, error)

	// SetParticipationURLs pushes a per-bidder login URL, derived from a
	// shared-secret hash, back to the source. No-op for local variants.
	SetParticipationURLs(ctx context.Context, data *domain.AuctionData) error

	// UploadAudit posts protocol as YAML; docID is empty on first upload and
	// the previously-returned id on every subsequent update. Returns the doc
	// id to keep using. The external_api variant makes up to 4 attempts (3
	// retries); when they all fail it logs and returns docID with a nil
	// error. The file and test variants do not upload and return an error.
	UploadAudit(ctx context.Context, protocol *domain.AuctionProtocol, docID string) (string, error)

	// PostResults pushes the final per-bidder ledger and returns the
	// upstream's enriched document (opened bidder names applied), or nil if
	// the upstream refused — the coordinator then keeps its own copy.
	PostResults(ctx context.Context, data *domain.AuctionData, doc *domain.AuctionDocument) (*domain.AuctionDocument, error)
}

// ActiveBids filters data.Bids down to status == "active" (a bid with no
// status counts as active), the view used
// for BidsMapping and participation-url pushes.
func ActiveBids(data *domain.AuctionData) []domain.ExternalBid {
	active := make([]domain.ExternalBid, 0, len(data.Bids))
	for _, bid := range data.Bids {
		if bid.Status == "" || bid.Status == "active" {
			active = append(active, bid)
		}
	}
	return active
}

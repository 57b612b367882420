package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/opentexas/auction-worker/internal/domain"
)

// testingPauseDuration matches spec.md §4.3: the test variant synthesises
// auctionPeriod.startDate = now + 120s on every call.
const testingPauseDuration = 120 * time.Second

// TestDataSource serves a fixed fixture file with a freshly-computed
// startDate on every GetData call — grounded on
// datasource.py: SimpleTestingFileDataSource.
type TestDataSource struct {
	path string
}

// NewTestDataSource reads fixture JSON from path.
func NewTestDataSource(path string) *TestDataSource {
	return &TestDataSource{path: path}
}

func (d *TestDataSource) Features() Features {
	return Features{PostResult: false, PostHistoryDocument: false}
}

func (d *TestDataSource) GetData(context.Context, bool, bool) (*domain.AuctionData, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("datasource: open %s: %w", d.path, err)
	}
	defer f.Close()

	var envelope struct {
		Data domain.AuctionData `json:"data"`
	}
	if err := json.NewDecoder(f).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("datasource: decode %s: %w", d.path, err)
	}

	envelope.Data.AuctionPeriod.StartDate = time.Now().Add(testingPauseDuration).Format(time.RFC3339Nano)
	return &envelope.Data, nil
}

func (d *TestDataSource) SetParticipationURLs(context.Context, *domain.AuctionData) error {
	return nil
}

func (d *TestDataSource) UploadAudit(context.Context, *domain.AuctionProtocol, string) (string, error) {
	return "", fmt.Errorf("datasource: TestDataSource does not upload audit documents")
}

func (d *TestDataSource) PostResults(context.Context, *domain.AuctionData, *domain.AuctionDocument) (*domain.AuctionDocument, error) {
	return nil, nil
}

package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/opentexas/auction-worker/internal/domain"
)

// FileDataSource reads a single JSON file per auction, grounded on
// datasource.py: FileDataSource. No result posting, no audit upload — those
// remain the external_api variant's job.
type FileDataSource struct {
	path string
}

// NewFileDataSource builds a file-backed datasource reading
// "<dir>/auction_<auctionID>.json".
func NewFileDataSource(dir, auctionID string) *FileDataSource {
	if len(dir) > 0 && dir[len(dir)-1] != '/' {
		dir += "/"
	}
	return &FileDataSource{path: fmt.Sprintf("%sauction_%s.json", dir, auctionID)}
}

func (d *FileDataSource) Features() Features {
	return Features{PostResult: false, PostHistoryDocument: false}
}

func (d *FileDataSource) GetData(context.Context, bool, bool) (*domain.AuctionData, error) {
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
	return &envelope.Data, nil
}

func (d *FileDataSource) SetParticipationURLs(context.Context, *domain.AuctionData) error {
	return nil
}

func (d *FileDataSource) UploadAudit(context.Context, *domain.AuctionProtocol, string) (string, error) {
	return "", fmt.Errorf("datasource: FileDataSource does not upload audit documents")
}

func (d *FileDataSource) PostResults(context.Context, *domain.AuctionData, *domain.AuctionDocument) (*domain.AuctionDocument, error) {
	return nil, nil
}

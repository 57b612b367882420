package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentexas/auction-worker/internal/bidding"
	"github.com/opentexas/auction-worker/internal/domain"
	"github.com/opentexas/auction-worker/internal/httpapi"
	"github.com/opentexas/auction-worker/internal/scheduler"
	"github.com/opentexas/auction-worker/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, doc *domain.AuctionDocument, mapping domain.BidsMapping) (*httpapi.Server, store.Store) {
	t.Helper()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Save(context.Background(), doc))

	guard := store.NewGuard(mem)
	sched := scheduler.New(testLogger())
	deadline := time.Now().Add(time.Hour)

	handler := bidding.New(bidding.Deps{
		AuctionID: doc.ID,
		Guard:     guard,
		Scheduler: sched,
		Mapping:   mapping,
		Protocol:  domain.NewAuctionProtocol("audit-doc", doc.ID, nil),
		Deadline:  func() *time.Time { return &deadline },
		Logger:    testLogger(),
	})

	srv := httpapi.New(httpapi.Deps{
		AuctionID: doc.ID,
		Store:     mem,
		Handler:   handler,
		Logger:    testLogger(),
	})
	return srv, mem
}

func TestPostBid_AppliesValidBid(t *testing.T) {
	doc := &domain.AuctionDocument{
		ID:           "auction-1",
		CurrentStage: 0,
		MinimalStep:  domain.Amount{Amount: decimal.RequireFromString("10")},
		Stages: []domain.Stage{
			{Kind: domain.StageMainRound, Start: time.Now().Format(time.RFC3339Nano)},
		},
	}
	srv, mem := newTestServer(t, doc, domain.BidsMapping{"bidder-a": 1})

	body, _ := json.Marshal(map[string]string{"bidder_id": "bidder-a", "bid": "1200.00"})
	req := httptest.NewRequest("POST", "/postbid", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])

	updated, err := mem.Load(context.Background(), "auction-1")
	require.NoError(t, err)
	require.Len(t, updated.Results, 1)
	assert.Equal(t, "bidder-a", updated.Results[0].BidderID)
}

func TestPostBid_UnknownBidderReturnsFailedStatus(t *testing.T) {
	doc := &domain.AuctionDocument{
		ID:           "auction-2",
		CurrentStage: 0,
		Stages:       []domain.Stage{{Kind: domain.StageMainRound, Start: time.Now().Format(time.RFC3339Nano)}},
	}
	srv, _ := newTestServer(t, doc, domain.BidsMapping{"bidder-a": 1})

	body, _ := json.Marshal(map[string]string{"bidder_id": "stranger", "bid": "1000"})
	req := httptest.NewRequest("POST", "/postbid", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp["status"])
}

func TestPostBid_MalformedBodyIsBadRequest(t *testing.T) {
	doc := &domain.AuctionDocument{ID: "auction-3"}
	srv, _ := newTestServer(t, doc, domain.BidsMapping{})

	req := httptest.NewRequest("POST", "/postbid", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestAuthRoutes_DefaultToNotImplemented(t *testing.T) {
	doc := &domain.AuctionDocument{ID: "auction-4"}
	srv, _ := newTestServer(t, doc, domain.BidsMapping{})

	for _, route := range []struct {
		method, path string
	}{
		{"GET", "/login"}, {"GET", "/authorized"}, {"GET", "/relogin"}, {"GET", "/logout"},
		{"POST", "/check_authorization"}, {"POST", "/kickclient"},
	} {
		req := httptest.NewRequest(route.method, route.path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, 501, rec.Code, "route %s %s", route.method, route.path)
	}
}

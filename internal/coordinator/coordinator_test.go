package coordinator_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/opentexas/auction-worker/internal/coordinator"
	"github.com/opentexas/auction-worker/internal/datasource"
	"github.com/opentexas/auction-worker/internal/domain"
	"github.com/opentexas/auction-worker/internal/scheduler"
	"github.com/opentexas/auction-worker/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDatasource is a hand-rolled test double for the C3 boundary, in the
// teacher's style of fakes over generated mocks.
type fakeDatasource struct {
	mu sync.Mutex

	data           domain.AuctionData
	participation  bool
	postResultsOut *domain.AuctionDocument
	auditUploads   int
	lastAuditDocID string
}

func (f *fakeDatasource) Features() datasource.Features {
	return datasource.Features{PostResult: true, PostHistoryDocument: true}
}

var _ datasource.Datasource = (*fakeDatasource)(nil)

func (f *fakeDatasource) GetData(ctx context.Context, public, withCredentials bool) (*domain.AuctionData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data := f.data
	return &data, nil
}

func (f *fakeDatasource) SetParticipationURLs(ctx context.Context, data *domain.AuctionData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participation = true
	return nil
}

func (f *fakeDatasource) UploadAudit(ctx context.Context, protocol *domain.AuctionProtocol, docID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auditUploads++
	if docID != "" {
		f.lastAuditDocID = docID
		return docID, nil
	}
	f.lastAuditDocID = "audit-doc-1"
	return "audit-doc-1", nil
}

func (f *fakeDatasource) PostResults(ctx context.Context, data *domain.AuctionData, doc *domain.AuctionDocument) (*domain.AuctionDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postResultsOut == nil {
		return nil, nil
	}
	out := *f.postResultsOut
	return &out, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newAuctionData(startDate time.Time) domain.AuctionData {
	return domain.AuctionData{
		AuctionID:             "ext-auction-1",
		ProcurementMethodType: "texas",
		Value:                 domain.Amount{Amount: dec("1000")},
		MinimalStep:           domain.Amount{Amount: dec("50")},
		AuctionPeriod:         domain.AuctionPeriod{StartDate: startDate.Format(time.RFC3339Nano)},
		Bids: []domain.ExternalBid{
			{ID: "bidder-a", Date: startDate.Format(time.RFC3339Nano), Value: domain.Amount{Amount: dec("900")}, Status: "active"},
			{ID: "bidder-b", Date: startDate.Format(time.RFC3339Nano), Value: domain.Amount{Amount: dec("950")}, Status: "active"},
		},
		Title: "Test auction",
	}
}

func TestPrepareAuctionDocument_BuildsPlannedDocumentAndPushesURLs(t *testing.T) {
	mem := store.NewMemoryStore()
	ds := &fakeDatasource{data: newAuctionData(time.Now().Add(time.Hour))}
	sched := scheduler.New(testLogger())

	c := coordinator.New(coordinator.Deps{
		AuctionID: "auction-1",
		Store:     mem,
		// Deadline pinned far into the auction start's own calendar day so
		// the test never depends on what time of day it happens to run.
		DeadlineHour:   23,
		DeadlineMinute: 59,
		DeadlineSecond: 59,
		Datasource:     ds,
		Scheduler:      sched,
		Logger:         testLogger(),
	})

	err := c.PrepareAuctionDocument(context.Background())
	require.NoError(t, err)

	doc, err := mem.Load(context.Background(), "auction-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StagePlanned, doc.CurrentStage)
	require.Len(t, doc.Stages, 2)
	assert.Equal(t, domain.StagePause, doc.Stages[0].Kind)
	assert.True(t, doc.Stages[1].IsMainRound())
	assert.True(t, ds.participation)
}

func TestPrepareAuctionDocument_ReschedulesWhenNoRoomForRound(t *testing.T) {
	mem := store.NewMemoryStore()
	// deadline hour/minute/second set to a moment already passed relative
	// to startDate + PAUSE_DURATION, forcing prepare_auction_stages to omit
	// the main round.
	start := time.Now()
	ds := &fakeDatasource{data: newAuctionData(start)}
	sched := scheduler.New(testLogger())

	c := coordinator.New(coordinator.Deps{
		AuctionID:      "auction-2",
		Store:          mem,
		Datasource:     ds,
		Scheduler:      sched,
		Logger:         testLogger(),
		DeadlineHour:   start.Hour(),
		DeadlineMinute: start.Minute(),
		DeadlineSecond: start.Second(),
	})

	err := c.PrepareAuctionDocument(context.Background())
	require.NoError(t, err)

	doc, err := mem.Load(context.Background(), "auction-2")
	require.NoError(t, err)
	assert.Equal(t, domain.StageRescheduled, doc.CurrentStage)
}

func TestCancelAuction_NoDocumentIsNoop(t *testing.T) {
	mem := store.NewMemoryStore()
	ds := &fakeDatasource{}
	sched := scheduler.New(testLogger())
	c := coordinator.New(coordinator.Deps{AuctionID: "missing", Store: mem, Datasource: ds, Scheduler: sched, Logger: testLogger()})

	assert.NoError(t, c.CancelAuction(context.Background()))
}

func TestCancelAuction_SetsSentinelAndEndDate(t *testing.T) {
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Save(context.Background(), &domain.AuctionDocument{ID: "auction-3", CurrentStage: 1}))
	ds := &fakeDatasource{}
	sched := scheduler.New(testLogger())
	c := coordinator.New(coordinator.Deps{AuctionID: "auction-3", Store: mem, Datasource: ds, Scheduler: sched, Logger: testLogger()})

	require.NoError(t, c.CancelAuction(context.Background()))

	doc, err := mem.Load(context.Background(), "auction-3")
	require.NoError(t, err)
	assert.Equal(t, domain.StageCancelled, doc.CurrentStage)
	assert.NotEmpty(t, doc.EndDate)
}

func TestRescheduleAuction_SetsSentinel(t *testing.T) {
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Save(context.Background(), &domain.AuctionDocument{ID: "auction-4", CurrentStage: -1}))
	ds := &fakeDatasource{}
	sched := scheduler.New(testLogger())
	c := coordinator.New(coordinator.Deps{AuctionID: "auction-4", Store: mem, Datasource: ds, Scheduler: sched, Logger: testLogger()})

	require.NoError(t, c.RescheduleAuction(context.Background()))

	doc, err := mem.Load(context.Background(), "auction-4")
	require.NoError(t, err)
	assert.Equal(t, domain.StageRescheduled, doc.CurrentStage)
}

func TestScheduleAuction_InstallsThreeJobsAndStartAuctionSetsInitialBids(t *testing.T) {
	start := time.Now().Add(50 * time.Millisecond)
	ds := &fakeDatasource{data: newAuctionData(start)}
	mem := store.NewMemoryStore()
	sched := scheduler.New(testLogger())
	sched.Start()
	t.Cleanup(sched.Shutdown)

	c := coordinator.New(coordinator.Deps{
		AuctionID:   "auction-5",
		Store:       mem,
		Datasource:  ds,
		Scheduler:   sched,
		Logger:      testLogger(),
		SandboxMode: true,
	})

	require.NoError(t, c.PrepareAuctionDocument(context.Background()))
	require.NoError(t, c.ScheduleAuction(context.Background()))

	// auction:start fires fast_forward-paced; give it time to run and
	// apply initial bids.
	require.Eventually(t, func() bool {
		doc, err := mem.Load(context.Background(), "auction-5")
		return err == nil && doc.CurrentStage == 0 && len(doc.InitialBids) == 2
	}, 2*time.Second, 10*time.Millisecond)

	doc, err := mem.Load(context.Background(), "auction-5")
	require.NoError(t, err)
	assert.Equal(t, "bidder-a", doc.InitialBids[0].BidderID)
	assert.Equal(t, "bidder-b", doc.InitialBids[1].BidderID)
}

func TestEndAuction_WithoutUpstreamApprovalKeepsOwnDocumentAndAppendsEndStage(t *testing.T) {
	mem := store.NewMemoryStore()
	auctionID := "auction-6"
	require.NoError(t, mem.Save(context.Background(), &domain.AuctionDocument{
		ID:           auctionID,
		CurrentStage: 3,
		Stages: []domain.Stage{
			{Kind: domain.StagePause, Start: time.Now().Add(-time.Hour).Format(time.RFC3339Nano)},
			{Kind: domain.StageMainRound, Start: time.Now().Add(-50 * time.Minute).Format(time.RFC3339Nano)},
			{Kind: domain.StagePause, Start: time.Now().Add(-40 * time.Minute).Format(time.RFC3339Nano)},
			{Kind: domain.StageMainRound, Start: time.Now().Add(-30 * time.Minute).Format(time.RFC3339Nano), BidderID: "bidder-a", Amount: dec("1050")},
		},
		Results: []domain.Stage{{BidderID: "bidder-a", Amount: dec("1050")}},
	}))

	ds := &fakeDatasource{data: newAuctionData(time.Now())} // postResultsOut left nil -> not approved
	// The scheduler is intentionally never started: ScheduleAuction installs
	// jobs against this document's (already past) stage times purely to
	// build the protocol/handler wiring EndAuction depends on, and this
	// test drives EndAuction directly rather than through a fired job.
	sched := scheduler.New(testLogger())

	c := coordinator.New(coordinator.Deps{AuctionID: auctionID, Store: mem, Datasource: ds, Scheduler: sched, Logger: testLogger()})
	require.NoError(t, c.ScheduleAuction(context.Background()))

	c.EndAuction(context.Background())

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator never signalled completion")
	}

	doc, err := mem.Load(context.Background(), auctionID)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.EndDate)
	assert.Equal(t, domain.StageEnd, doc.Stages[len(doc.Stages)-1].Kind)
	assert.Equal(t, domain.StagePreannouncement, doc.Stages[len(doc.Stages)-2].Kind)
	assert.Equal(t, 1, ds.auditUploads)
}

func TestPostAnnounce_StampsOpenedBidderNames(t *testing.T) {
	mem := store.NewMemoryStore()
	auctionID := "auction-7"
	require.NoError(t, mem.Save(context.Background(), &domain.AuctionDocument{
		ID:      auctionID,
		Results: []domain.Stage{{BidderID: "bidder-a", Amount: dec("1050")}},
	}))

	ds := &fakeDatasource{data: domain.AuctionData{
		Bids: []domain.ExternalBid{
			{ID: "bidder-a", Status: "active", BidNumber: 1, Tenderers: []domain.Tenderer{{Name: "Acme LLC"}}},
		},
	}}
	sched := scheduler.New(testLogger())
	c := coordinator.New(coordinator.Deps{AuctionID: auctionID, Store: mem, Datasource: ds, Scheduler: sched, Logger: testLogger()})

	require.NoError(t, c.PostAnnounce(context.Background()))

	doc, err := mem.Load(context.Background(), auctionID)
	require.NoError(t, err)
	require.NotNil(t, doc.Results[0].Label)
	assert.Equal(t, "Acme LLC", doc.Results[0].Label.En)
	assert.Equal(t, 1, doc.Results[0].BidNumber)
}

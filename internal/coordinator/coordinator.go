// Package coordinator implements the Auction Coordinator (C6): the
// lifecycle state machine that sequences the Clock (C1), Document Store
// (C2), Datasource (C3), Scheduler (C4) and Bid Handler (C5) across
// planning, the live auction, and announcement. Grounded on
// original_source/openprocurement/auction/texas/auction.go's Auction class,
// with end_auction's exact sequencing cross-checked against
// tests/unit/test_scheduler.py's TestEndAuction cases.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opentexas/auction-worker/internal/bidding"
	"github.com/opentexas/auction-worker/internal/clock"
	"github.com/opentexas/auction-worker/internal/datasource"
	"github.com/opentexas/auction-worker/internal/domain"
	"github.com/opentexas/auction-worker/internal/metrics"
	"github.com/opentexas/auction-worker/internal/scheduler"
	"github.com/opentexas/auction-worker/internal/store"
)

// Deps wires the Coordinator to its collaborators. Replaces the original's
// zope.component global registry lookup (spec.md §9): the CLI builds one
// Deps per run and passes it to New, no hidden process-wide state.
type Deps struct {
	AuctionID  string
	APIVersion string

	// Debug mirrors --debug: when set, planning stamps mode="test" onto the
	// document (spec.md SUPPLEMENTED FEATURES #1).
	Debug bool
	// SandboxMode mirrors worker_defaults.sandbox_mode: selects fast_forward
	// stage timing and, combined with a "quick" submissionMethodDetails,
	// a relative rather than absolute deadline.
	SandboxMode bool

	// DeadlineHour/Minute/Second configure the daily absolute deadline wall
	// (worker_defaults.deadline.deadline_time). DeadlineHour defaults to
	// clock.DefaultDeadlineHour when zero.
	DeadlineHour, DeadlineMinute, DeadlineSecond int

	// DisableDeadline mirrors the CLI's --standalone override (spec.md
	// SUPPLEMENTED FEATURES #2): when set, neither an absolute nor a
	// relative deadline is computed, so the auction runs rounds until a bid
	// stops arriving rather than stopping at a wall-clock cutoff.
	DisableDeadline bool

	Store      store.Store
	Datasource datasource.Datasource
	Scheduler  *scheduler.Scheduler
	Logger     *slog.Logger

	// StartServer launches the HTTP bid server for handler and returns a
	// stop function; nil disables server startup (e.g. for `planning`/
	// `announce`/`cancel` commands that never run a live auction).
	StartServer func(*bidding.Handler) (stop func())
}

// Coordinator is the Auction Coordinator (C6).
type Coordinator struct {
	auctionID  string
	apiVersion string
	debug      bool
	sandbox    bool

	disableDeadline bool

	deadlineHour, deadlineMinute, deadlineSecond int

	store       store.Store
	guard       *store.Guard
	ds          datasource.Datasource
	scheduler   *scheduler.Scheduler
	logger      *slog.Logger
	startServer func(*bidding.Handler) (stop func())

	mu          sync.Mutex
	mapping     domain.BidsMapping
	activeBids  []domain.ActiveBid
	auctionData *domain.AuctionData
	startDate   time.Time
	deadline    *time.Time
	protocol    *domain.AuctionProtocol
	handler     *bidding.Handler
	auditDocID  string
	stopServer  func()

	done     chan struct{}
	doneOnce sync.Once
}

// New builds a Coordinator from deps.
func New(deps Deps) *Coordinator {
	hour := deps.DeadlineHour
	if hour == 0 {
		hour = clock.DefaultDeadlineHour
	}
	return &Coordinator{
		auctionID:       deps.AuctionID,
		apiVersion:      deps.APIVersion,
		debug:           deps.Debug,
		sandbox:         deps.SandboxMode,
		disableDeadline: deps.DisableDeadline,
		deadlineHour:    hour,
		deadlineMinute:  deps.DeadlineMinute,
		deadlineSecond:  deps.DeadlineSecond,
		store:           deps.Store,
		guard:           store.NewGuard(deps.Store),
		ds:              deps.Datasource,
		scheduler:       deps.Scheduler,
		logger:          deps.Logger,
		startServer:     deps.StartServer,
		mapping:         domain.BidsMapping{},
		done:            make(chan struct{}),
	}
}

// Done returns a channel closed once the auction has fully ended — the Go
// equivalent of the original's end_auction_event, unblocking the CLI's
// wait_to_end driver.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) signalDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// PrepareAuctionDocument is `prepare_auction_document`: fetch the canonical
// definition, fill the document's fixed fields, compute the deadline and
// initial pause/main-round pair, persist, then push participation URLs.
func (c *Coordinator) PrepareAuctionDocument(ctx context.Context) error {
	var revision string
	if existing, err := c.store.Load(ctx, c.auctionID); err == nil {
		revision = existing.Revision
	}

	if err := c.SynchronizeAuctionInfo(ctx, true); err != nil {
		return err
	}

	doc := &domain.AuctionDocument{
		ID:                    c.auctionID,
		Revision:              revision,
		AuctionID:             c.auctionData.AuctionID,
		ProcurementMethodType: defaultString(c.auctionData.ProcurementMethodType, domain.DefaultAuctionType),
		APIVersion:            c.apiVersion,
		Value:                 c.auctionData.Value,
		MinimalStep:           c.auctionData.MinimalStep,
		InitialValue:          c.auctionData.Value.Amount,
		CurrentStage:          domain.StagePlanned,
		Stages:                []domain.Stage{},
		Results:               []domain.Stage{},
		InitialBids:           []domain.InitialBid{},
		ProcuringEntity:       c.auctionData.ProcuringEntity,
		Items:                 c.auctionData.Items,
		AuctionType:           domain.DefaultAuctionType,
		Standalone:            c.auctionData.Standalone,
		AuctionPeriod:         c.auctionData.AuctionPeriod,
	}
	if c.debug {
		doc.Mode = "test"
	}
	applyMultilingualFields(doc, c.auctionData)

	if c.disableDeadline {
		c.deadline = nil
	} else if c.relativeDeadlineForSandbox() {
		deadline, _, _, _ := clock.SetRelativeDeadline(c.startDate, clock.SandboxAuctionDuration)
		c.deadline = &deadline
		doc.SubmissionMethodDetails = "quick"
	} else {
		deadline := clock.SetAbsoluteDeadline(c.startDate, c.deadlineHour, c.deadlineMinute, c.deadlineSecond)
		c.deadline = &deadline
	}

	source := clock.ValueSource{Value: doc.Value.Amount, MinimalStep: doc.MinimalStep.Amount}
	pause, mainRound := clock.PrepareAuctionStages(c.startDate, source, c.deadline, c.sandbox)
	doc.Stages = []domain.Stage{pause}
	if mainRound.IsMainRound() {
		doc.Stages = append(doc.Stages, mainRound)
	}

	if err := c.store.Save(ctx, doc); err != nil {
		return err
	}

	if !mainRound.IsMainRound() {
		c.logger.Warn("auction_cannot_start_before_deadline", slog.String("auction_id", c.auctionID))
		return c.RescheduleAuction(ctx)
	}

	return c.ds.SetParticipationURLs(ctx, c.auctionData)
}

func (c *Coordinator) relativeDeadlineForSandbox() bool {
	return c.sandbox && c.auctionData.Mode == "test" && strings.Contains(c.auctionData.SubmissionMethodDetails, "quick")
}

// ScheduleAuction is `schedule_auction`: reload the document, re-synchronize
// without the public fetch, build the Bid Handler and audit protocol, wire
// the scheduler's three initial jobs, and launch the HTTP server.
func (c *Coordinator) ScheduleAuction(ctx context.Context) error {
	doc, err := c.store.Load(ctx, c.auctionID)
	if err != nil {
		return err
	}
	if len(doc.Stages) < 2 {
		return fmt.Errorf("coordinator: auction %s has no plannable stages", c.auctionID)
	}

	if err := c.SynchronizeAuctionInfo(ctx, false); err != nil {
		return err
	}

	c.protocol = domain.NewAuctionProtocol(c.auctionID, doc.AuctionID, doc.Items)

	if c.disableDeadline {
		c.deadline = nil
	} else if doc.SubmissionMethodDetails == "quick" {
		deadline, _, _, _ := clock.SetRelativeDeadline(c.startDate, clock.SandboxAuctionDuration)
		c.deadline = &deadline
	} else {
		deadline := clock.SetAbsoluteDeadline(c.startDate, c.deadlineHour, c.deadlineMinute, c.deadlineSecond)
		c.deadline = &deadline
	}

	c.handler = bidding.New(bidding.Deps{
		AuctionID:   c.auctionID,
		Guard:       c.guard,
		Scheduler:   c.scheduler,
		Mapping:     c.mapping,
		Protocol:    c.protocol,
		Deadline:    func() *time.Time { return c.deadline },
		SandboxMode: c.sandbox,
		Logger:      c.logger,
	})
	c.handler.OnPauseEnd = func(ctx context.Context) { c.switchToNextStage(ctx) }
	c.handler.OnAuctionEnd = func(ctx context.Context) { c.EndAuction(ctx) }

	startOfAuction, err := time.Parse(time.RFC3339Nano, doc.Stages[0].Start)
	if err != nil {
		return fmt.Errorf("coordinator: parse stages[0].start: %w", err)
	}
	c.scheduler.AddJob(func() { c.StartAuction(context.Background()) }, startOfAuction, "Start of Auction", scheduler.JobAuctionStart)

	roundStart, err := time.Parse(time.RFC3339Nano, doc.Stages[1].Start)
	if err != nil {
		return fmt.Errorf("coordinator: parse stages[1].start: %w", err)
	}
	c.scheduler.AddJob(func() { c.switchToNextStage(context.Background()) }, roundStart, "End of Pause", scheduler.JobAuctionPause)

	roundDuration := clock.RoundDuration
	if c.sandbox {
		roundDuration = clock.FastForwardRoundDuration
	}
	roundEnd := clock.GetRoundEndingTime(roundStart, roundDuration, c.deadline)
	c.scheduler.AddJob(func() { c.EndAuction(context.Background()) }, roundEnd, "End of Auction", scheduler.JobAuctionEnd)

	if c.startServer != nil {
		c.stopServer = c.startServer(c.handler)
	}
	metrics.AuctionsActive.Set(1)
	return nil
}

// switchToNextStage advances current_stage by one under the lock. Wired as
// the Bid Handler's pause-end hook (grounded on scheduler.py's
// switch_to_next_stage, confirmed by tests/unit/test_scheduler.py).
func (c *Coordinator) switchToNextStage(ctx context.Context) {
	var kind string
	err := c.guard.Do(ctx, c.auctionID, func(doc *domain.AuctionDocument) error {
		doc.CurrentStage++
		if doc.CurrentStage >= 0 && doc.CurrentStage < len(doc.Stages) {
			kind = doc.Stages[doc.CurrentStage].Kind
		}
		return nil
	})
	if err != nil {
		c.logger.Error("switch_to_next_stage_failed", slog.String("error", err.Error()))
		return
	}
	if kind != "" {
		metrics.AuctionStageTransitionsTotal.WithLabelValues(kind).Inc()
	}
}

// StartAuction is `start_auction`, fired by the auction:start job: stamp
// the protocol's start time, re-synchronize, append initial bids, and set
// current_stage = 0.
func (c *Coordinator) StartAuction(ctx context.Context) {
	c.logger.Info("start_auction", slog.String("auction_id", c.auctionID))
	c.protocol.Timeline.AuctionStart.Time = time.Now().Format(time.RFC3339Nano)

	if err := c.SynchronizeAuctionInfo(ctx, false); err != nil {
		c.logger.Error("start_auction_synchronize_failed", slog.String("error", err.Error()))
		return
	}

	err := c.guard.Do(ctx, c.auctionID, func(doc *domain.AuctionDocument) error {
		c.prepareInitialBids(doc)
		doc.CurrentStage = 0
		return nil
	})
	if err != nil {
		c.logger.Error("start_auction_failed", slog.String("error", err.Error()))
	}
}

func (c *Coordinator) prepareInitialBids(doc *domain.AuctionDocument) {
	bids := append([]domain.ActiveBid{}, c.activeBids...)
	domain.SortActiveBidsByAmount(bids)
	domain.SortActiveBidsByNumber(bids)

	for _, b := range bids {
		t := b.Date
		if t == "" {
			t = c.startDate.Format(time.RFC3339Nano)
		}
		bidNumber := c.mapping[b.ID]
		doc.InitialBids = append(doc.InitialBids, domain.InitialBid{
			BidderID:  b.ID,
			Time:      t,
			Amount:    doc.Value.Amount,
			Label:     domain.BuildLabel(bidNumber),
			BidNumber: bidNumber,
		})
		c.protocol.Timeline.AuctionStart.InitialBids = append(c.protocol.Timeline.AuctionStart.InitialBids, domain.InitialBidAudit{
			Bidder:    b.ID,
			Date:      t,
			Amount:    doc.Value.Amount,
			BidNumber: bidNumber,
		})
	}
}

// EndAuction is fired by the end-of-auction job (or directly via the Bid
// Handler's OnAuctionEnd hook). Sequencing — stop server, append
// PREANNOUNCEMENT, approve the protocol, push results, adopt-or-keep,
// append END, stamp endDate, upload audit, signal completion — is grounded
// on tests/unit/test_scheduler.py's TestEndAuction subtests.
func (c *Coordinator) EndAuction(ctx context.Context) {
	c.logger.Info("end_auction", slog.String("auction_id", c.auctionID))

	if c.stopServer != nil {
		c.stopServer()
		c.stopServer = nil
	}

	now := time.Now()
	err := c.guard.Do(ctx, c.auctionID, func(doc *domain.AuctionDocument) error {
		doc.Stages = append(doc.Stages, clock.PreparePreannouncementStage(now))
		c.protocol.ApproveOnAnnouncement(doc, nil, now)
		return nil
	})
	if err != nil {
		c.logger.Error("end_auction_preannouncement_failed", slog.String("error", err.Error()))
		return
	}

	doc, err := c.store.Load(ctx, c.auctionID)
	if err != nil {
		c.logger.Error("end_auction_reload_failed", slog.String("error", err.Error()))
		return
	}

	enriched, err := c.ds.PostResults(ctx, c.auctionData, doc)
	if err != nil {
		c.logger.Warn("end_auction_post_results_failed", slog.String("error", err.Error()))
	}

	final := doc
	var approved map[string]domain.ExternalBid
	if enriched != nil {
		// Upstream approved the ledger: adopt its document wholesale,
		// current_stage as reported — it already reflects the upstream's
		// own view of the auction's terminal state.
		final = enriched
		approved = map[string]domain.ExternalBid{}
		for _, b := range datasource.ActiveBids(c.auctionData) {
			approved[b.ID] = b
		}
	} else {
		// Not approved: keep our own document and advance past the
		// PREANNOUNCEMENT stage ourselves.
		final.CurrentStage++
	}

	finish := time.Now()
	final.Stages = append(final.Stages, clock.PrepareEndStage(finish))
	final.EndDate = finish.Format(time.RFC3339Nano)
	c.protocol.ApproveOnAnnouncement(final, approved, finish)

	if err := c.store.Save(ctx, final); err != nil {
		c.logger.Error("end_auction_save_failed", slog.String("error", err.Error()))
		return
	}

	c.scheduler.RemoveAllJobs()
	metrics.AuctionStageTransitionsTotal.WithLabelValues(domain.StageEnd).Inc()
	metrics.AuctionsActive.Set(0)

	docID, err := c.ds.UploadAudit(ctx, c.protocol, c.auditDocID)
	if err != nil {
		c.logger.Warn("end_auction_audit_upload_failed", slog.String("error", err.Error()))
	} else {
		c.auditDocID = docID
	}

	c.signalDone()
}

// CancelAuction is `cancel_auction`: idempotent, no-op if no document
// exists.
func (c *Coordinator) CancelAuction(ctx context.Context) error {
	err := c.guard.Do(ctx, c.auctionID, func(doc *domain.AuctionDocument) error {
		doc.CurrentStage = domain.StageCancelled
		doc.EndDate = time.Now().Format(time.RFC3339Nano)
		return nil
	})
	return c.ignoreNotFound(err, "auction_not_found_on_cancel")
}

// RescheduleAuction is `reschedule_auction`: idempotent, no-op if no
// document exists.
func (c *Coordinator) RescheduleAuction(ctx context.Context) error {
	err := c.guard.Do(ctx, c.auctionID, func(doc *domain.AuctionDocument) error {
		doc.CurrentStage = domain.StageRescheduled
		return nil
	})
	return c.ignoreNotFound(err, "auction_not_found_on_reschedule")
}

func (c *Coordinator) ignoreNotFound(err error, message string) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		c.logger.Info(message, slog.String("auction_id", c.auctionID))
		return nil
	}
	return err
}

func isNotFound(err error) bool {
	return err == store.ErrNotFound
}

// SynchronizeAuctionInfo is `synchronize_auction_info`: refresh the
// canonical auction data, project bidders_data to active bids, and
// recompute the BidsMapping. prepare selects whether the public (no
// credentials) fetch runs first, as planning does.
func (c *Coordinator) SynchronizeAuctionInfo(ctx context.Context, prepare bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.setAuctionData(ctx, prepare); err != nil {
		return err
	}
	active := datasource.ActiveBids(c.auctionData)
	bids := make([]domain.ActiveBid, len(active))
	for i, b := range active {
		bids[i] = domain.ActiveBid{ID: b.ID, Date: b.Date, Value: b.Value.Amount, Owner: b.Owner, BidNumber: b.BidNumber}
	}
	c.activeBids = bids
	c.mapping.Assign(c.activeBids)
	return nil
}

func (c *Coordinator) setAuctionData(ctx context.Context, prepare bool) error {
	if prepare {
		full, err := c.ds.GetData(ctx, true, false)
		if err != nil {
			return c.handleMissingAuctionData(ctx)
		}
		c.auctionData = full
	}

	private, err := c.ds.GetData(ctx, false, false)
	if err != nil {
		return c.handleMissingAuctionData(ctx)
	}
	if c.auctionData == nil {
		c.auctionData = private
	} else {
		mergeAuctionData(c.auctionData, private)
	}

	start, err := parseTime(c.auctionData.AuctionPeriod.StartDate)
	if err != nil {
		return fmt.Errorf("coordinator: parse auctionPeriod.startDate: %w", err)
	}
	c.startDate = start
	return nil
}

// handleMissingAuctionData implements synchronize_auction_info's failure
// branch: cancel the existing document if one is stored, otherwise signal
// completion so the CLI driver can exit(1) (spec.md §7: DatasourceMissing).
func (c *Coordinator) handleMissingAuctionData(ctx context.Context) error {
	existing, err := c.store.Load(ctx, c.auctionID)
	if err == nil {
		existing.CurrentStage = domain.StageCancelled
		if saveErr := c.store.Save(ctx, existing); saveErr != nil {
			c.logger.Error("cancel_on_missing_data_failed", slog.String("error", saveErr.Error()))
		}
		c.logger.Warn("auction_cancelled_missing_data", slog.String("auction_id", c.auctionID))
		return ErrDatasourceMissing
	}
	c.logger.Error("auction_not_exists", slog.String("auction_id", c.auctionID))
	c.signalDone()
	return ErrDatasourceMissing
}

// PostAuctionProtocol is `post_auction_protocol`: build a fresh protocol
// from the current document and datasource bids, then upload it. With a
// non-empty docID the existing audit document is updated in place and its
// id is returned unchanged; without one, a new document is posted and its
// freshly assigned id is returned (spec.md SUPPLEMENTED FEATURES #4).
func (c *Coordinator) PostAuctionProtocol(ctx context.Context, docID string) (string, error) {
	auctionData, err := c.ds.GetData(ctx, false, true)
	if err != nil {
		return "", err
	}
	doc, err := c.store.Load(ctx, c.auctionID)
	if err != nil {
		return "", err
	}

	protocol := domain.NewAuctionProtocol(c.auctionID, doc.AuctionID, doc.Items)
	protocol.ApproveFromStages(doc.Stages)
	if len(doc.Stages) > 0 {
		protocol.Timeline.AuctionStart.Time = doc.Stages[0].Start
	}

	active := datasource.ActiveBids(auctionData)
	bids := make([]domain.ActiveBid, len(active))
	approved := make(map[string]domain.ExternalBid, len(active))
	for i, b := range active {
		bids[i] = domain.ActiveBid{ID: b.ID, Date: b.Date, Value: b.Value.Amount, Owner: b.Owner, BidNumber: b.BidNumber}
		approved[b.ID] = b
	}
	domain.SortActiveBidsByAmount(bids)
	c.mapping.Assign(bids)
	domain.SortActiveBidsByNumber(bids)
	for _, b := range bids {
		protocol.Timeline.AuctionStart.InitialBids = append(protocol.Timeline.AuctionStart.InitialBids, domain.InitialBidAudit{
			Bidder:    b.ID,
			Date:      b.Date,
			Amount:    doc.Value.Amount,
			BidNumber: b.BidNumber,
		})
	}

	// approved==nil here: the base results block is stamped without
	// disturbing the initial_bids block just built above (mirrors
	// _prepare_auction_protocol's two-arg approve_auction_protocol_info_on_announcement
	// call). Only the doc_id re-upload path below re-enriches initial_bids
	// with the upstream's opened-bidder identification.
	protocol.ApproveOnAnnouncement(doc, nil, time.Now())
	if len(doc.Stages) > 0 {
		protocol.Timeline.Results.Time = doc.Stages[len(doc.Stages)-1].Start
	}

	if docID != "" {
		protocol.ApproveOnAnnouncement(doc, approved, time.Now())
		return c.ds.UploadAudit(ctx, protocol, docID)
	}
	return c.ds.UploadAudit(ctx, protocol, "")
}

// PostAnnounce is `post_announce`: fetch bids and stamp opened bidder
// identification onto the live document, under the lock.
func (c *Coordinator) PostAnnounce(ctx context.Context) error {
	auctionData, err := c.ds.GetData(ctx, false, true)
	if err != nil {
		return err
	}
	approved := make(map[string]domain.ExternalBid, len(auctionData.Bids))
	for _, b := range datasource.ActiveBids(auctionData) {
		approved[b.ID] = b
	}

	return c.guard.Do(ctx, c.auctionID, func(doc *domain.AuctionDocument) error {
		domain.ApplyOpenedBidderNames(doc, approved)
		return nil
	})
}

// PostAuctionResults is `post_auction_results`: push the final bid ledger
// without running a live auction (the `post_results` CLI command).
func (c *Coordinator) PostAuctionResults(ctx context.Context) error {
	auctionData, err := c.ds.GetData(ctx, false, false)
	if err != nil {
		return err
	}
	doc, err := c.store.Load(ctx, c.auctionID)
	if err != nil {
		return err
	}
	_, err = c.ds.PostResults(ctx, auctionData, doc)
	return err
}

func mergeAuctionData(dst, src *domain.AuctionData) {
	dst.Bids = src.Bids
	dst.AuctionPeriod = src.AuctionPeriod
	dst.Value = src.Value
	dst.MinimalStep = src.MinimalStep
	if src.Mode != "" {
		dst.Mode = src.Mode
	}
	if src.SubmissionMethodDetails != "" {
		dst.SubmissionMethodDetails = src.SubmissionMethodDetails
	}
}

func applyMultilingualFields(doc *domain.AuctionDocument, data *domain.AuctionData) {
	fields := map[string]string{
		"title":          data.Title,
		"title_en":       data.TitleEn,
		"title_ru":       data.TitleRu,
		"description":    data.Description,
		"description_en": data.DescriptionEn,
		"description_ru": data.DescriptionRu,
	}
	translations := make(map[string]string, len(fields))
	for key, value := range fields {
		if value != "" {
			translations[key] = value
		}
	}
	doc.Translations = translations
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func parseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

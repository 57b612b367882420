// Package bidding implements the Bid Handler (C5): accept a validated bid,
// fold it into the current stage and results, then rebuild the schedule.
// Grounded verbatim on
// original_source/openprocurement/auction/texas/bids.py's BidsHandler.
package bidding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opentexas/auction-worker/internal/clock"
	"github.com/opentexas/auction-worker/internal/domain"
	"github.com/opentexas/auction-worker/internal/metrics"
	"github.com/opentexas/auction-worker/internal/scheduler"
	"github.com/opentexas/auction-worker/internal/store"
)

// Deps wires the Bid Handler to its collaborators. No global registry
// (spec.md §9): the coordinator constructs one Deps per auction and passes
// it to New.
type Deps struct {
	AuctionID string
	Guard     *store.Guard
	Scheduler *scheduler.Scheduler
	Mapping   domain.BidsMapping
	Protocol  *domain.AuctionProtocol
	// Deadline returns the current absolute deadline, or nil if none is
	// configured yet.
	Deadline func() *time.Time
	// SandboxMode selects fast_forward timing for rebuilt stages.
	SandboxMode bool
	Logger      *slog.Logger
}

// Handler is the Bid Handler (C5).
type Handler struct {
	deps Deps

	// OnPauseEnd and OnAuctionEnd are the coordinator's switch-to-next-stage
	// and end-of-auction hooks. Wired after construction (rather than taken
	// as constructor args) to break the import cycle: C6 depends on C5, not
	// the reverse.
	OnPauseEnd   func(ctx context.Context)
	OnAuctionEnd func(ctx context.Context)
}

// New builds a Handler from deps.
func New(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// AddBid is add_bid: fold bid into stages[currentStage] and results, then
// rebuild the schedule. A rejected bid leaves the document untouched; an
// error from the schedule rebuild (endBidStage) is returned after the bid
// itself has been saved. The HTTP surface reports either as a bid failure
// (spec.md §4.5 step 5).
func (h *Handler) AddBid(ctx context.Context, currentStage int, bid domain.BidInput) error {
	h.deps.Logger.Info("adding_bid", slog.String("bidder_id", bid.BidderID), slog.Int("stage", currentStage))

	bidNumber, known := h.deps.Mapping[bid.BidderID]
	if !known {
		metrics.BidsTotal.WithLabelValues(h.deps.AuctionID, "rejected").Inc()
		return ErrUnknownBidder
	}

	var applied *domain.AuctionDocument
	err := h.deps.Guard.Do(ctx, h.deps.AuctionID, func(doc *domain.AuctionDocument) error {
		// currentStage was read by the caller before the lock was acquired
		// (spec.md §6: the HTTP surface loads current_stage, then calls
		// add_bid). Re-validate it against the document as freshly loaded
		// under the lock: if another bid already closed this round and
		// advanced CurrentStage, currentStage is stale and must not be
		// trusted to index into doc.Stages — the whole read-then-decide
		// sequence, not just the mutation, has to happen under the lock
		// (spec.md §5: "the second sees the first already applied and
		// operates on the new current_stage").
		if currentStage != doc.CurrentStage {
			return ErrStaleStage
		}
		if currentStage < 0 || currentStage >= len(doc.Stages) {
			return ErrStageIndex
		}
		if doc.Stages[currentStage].Kind == domain.StageEnd || doc.Stages[currentStage].Kind == domain.StagePreannouncement {
			return ErrStageClosed
		}
		// CurrentStage is advanced later, in endBidStage's own Guard.Do; a bid
		// already recorded on this stage means another bid won the round.
		if doc.Stages[currentStage].BidderID != "" {
			return ErrStaleStage
		}

		label := domain.BuildLabel(bidNumber)
		doc.Stages[currentStage].Time = bid.Time
		doc.Stages[currentStage].BidderID = bid.BidderID
		doc.Stages[currentStage].Amount = bid.Amount
		doc.Stages[currentStage].Label = &label
		doc.Stages[currentStage].BidNumber = bidNumber

		result := domain.Stage{
			BidderID:  bid.BidderID,
			Amount:    bid.Amount,
			Time:      bid.Time,
			Label:     &label,
			BidNumber: bidNumber,
		}

		index := -1
		for i, r := range doc.Results {
			if r.BidderID == bid.BidderID {
				index = i
				break
			}
		}
		if index >= 0 {
			doc.Results[index] = result
		} else {
			doc.Results = append(doc.Results, result)
		}
		domain.SortStagesByAmountDescending(doc.Results)

		applied = doc
		return nil
	})
	if err != nil {
		metrics.BidsTotal.WithLabelValues(h.deps.AuctionID, "rejected").Inc()
		return err
	}
	metrics.BidsTotal.WithLabelValues(h.deps.AuctionID, "accepted").Inc()
	metrics.BidAmount.WithLabelValues(h.deps.AuctionID).Observe(bid.Amount.InexactFloat64())

	if err := h.endBidStage(ctx, currentStage, bid, applied); err != nil {
		metrics.BidsTotal.WithLabelValues(h.deps.AuctionID, "error").Inc()
		return err
	}
	return nil
}

// endBidStage is end_bid_stage: close out the audit entry for the round
// that just ended, cancel pending jobs, append the next pause/round pair,
// and install the jobs that drive it.
func (h *Handler) endBidStage(ctx context.Context, currentStage int, bid domain.BidInput, closedDoc *domain.AuctionDocument) error {
	rewriteStart := time.Now()
	defer func() { metrics.ScheduleRewriteDuration.Observe(time.Since(rewriteStart).Seconds()) }()

	h.deps.Protocol.ApproveFromBidStage(closedDoc.Stages, currentStage)

	h.deps.Scheduler.RemoveAllJobs()

	bidTime, err := time.Parse(time.RFC3339Nano, bid.Time)
	if err != nil {
		return fmt.Errorf("bidding: parse bid time %q: %w", bid.Time, err)
	}

	var mainRound domain.Stage
	err = h.deps.Guard.Do(ctx, h.deps.AuctionID, func(doc *domain.AuctionDocument) error {
		source := clock.ValueSource{Value: bid.Amount, MinimalStep: doc.MinimalStep.Amount}
		var pause domain.Stage
		pause, mainRound = clock.PrepareAuctionStages(bidTime, source, h.deps.Deadline(), h.deps.SandboxMode)

		doc.Stages = append(doc.Stages, pause)
		if mainRound.IsMainRound() {
			doc.Stages = append(doc.Stages, mainRound)
		}
		doc.CurrentStage++
		return nil
	})
	if err != nil {
		return err
	}

	deadline := h.deps.Deadline()
	roundDuration := clock.RoundDuration
	if h.deps.SandboxMode {
		roundDuration = clock.FastForwardRoundDuration
	}

	if mainRound.IsMainRound() {
		metrics.RoundExtensionsTotal.Inc()
		roundStart, parseErr := time.Parse(time.RFC3339Nano, mainRound.Start)
		if parseErr != nil {
			return fmt.Errorf("bidding: parse main round start %q: %w", mainRound.Start, parseErr)
		}
		roundEnd := clock.GetRoundEndingTime(roundStart, roundDuration, deadline)

		h.deps.Scheduler.AddJob(h.pauseEndFunc(ctx), roundStart, "End of Pause", scheduler.JobAuctionPause)
		h.deps.Scheduler.AddJob(h.endAuctionFunc(ctx), roundEnd, "End of Auction", scheduler.JobAuctionEnd)
	} else if deadline != nil {
		h.deps.Scheduler.AddJob(h.endAuctionFunc(ctx), *deadline, "End of Auction", scheduler.JobAuctionEnd)
	}

	return nil
}

// pauseEndFunc and endAuctionFunc wrap the OnPauseEnd/OnAuctionEnd hooks
// that the coordinator sets after construction, since C5 fires into C6's
// lifecycle transitions but must not import it (C6 depends on C5, not the
// reverse). A nil hook yields a no-op job.
func (h *Handler) pauseEndFunc(ctx context.Context) func() {
	if h.OnPauseEnd == nil {
		return func() {}
	}
	return func() { h.OnPauseEnd(ctx) }
}

func (h *Handler) endAuctionFunc(ctx context.Context) func() {
	if h.OnAuctionEnd == nil {
		return func() {}
	}
	return func() { h.OnAuctionEnd(ctx) }
}

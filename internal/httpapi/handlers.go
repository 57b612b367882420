package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/opentexas/auction-worker/internal/bidding"
	"github.com/opentexas/auction-worker/internal/domain"
)

type bidHandlers struct {
	deps     Deps
	validate *validator.Validate
}

// postBidRequest is the wire shape of POST /postbid (spec.md §6):
// {bidder_id, bid}.
type postBidRequest struct {
	BidderID string      `json:"bidder_id" validate:"required"`
	Bid      json.Number `json:"bid" validate:"required"`
}

type postBidResponse struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
	Errors []string       `json:"errors,omitempty"`
}

// postBid is the live bid endpoint: validate, load the current stage index,
// and apply through the Bid Handler under its document lock. On any error
// the document is left untouched (spec.md §4.5 step 5) and the response is
// still 200 with a failed status, except for malformed requests.
func (h *bidHandlers) postBid(w http.ResponseWriter, r *http.Request) {
	if h.validate == nil {
		h.validate = validator.New()
	}

	var req postBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(w, http.StatusBadRequest, postBidResponse{Status: "failed", Errors: []string{"invalid request body"}})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respond(w, http.StatusBadRequest, postBidResponse{Status: "failed", Errors: []string{err.Error()}})
		return
	}

	amount, err := decimal.NewFromString(req.Bid.String())
	if err != nil {
		h.respond(w, http.StatusBadRequest, postBidResponse{Status: "failed", Errors: []string{"invalid bid amount"}})
		return
	}

	ctx := r.Context()
	doc, err := h.deps.Store.Load(ctx, h.deps.AuctionID)
	if err != nil {
		h.deps.Logger.Error("postbid_load_failed", slog.String("error", err.Error()))
		h.respond(w, http.StatusOK, postBidResponse{Status: "failed", Errors: []string{"auction not open for bidding"}})
		return
	}

	bid := domain.BidInput{
		BidderID: req.BidderID,
		Amount:   amount,
		Time:     time.Now().Format(time.RFC3339Nano),
	}

	if err := h.deps.Handler.AddBid(ctx, doc.CurrentStage, bid); err != nil {
		status, message := classifyBidError(err)
		h.deps.Logger.Warn("postbid_rejected", slog.String("bidder_id", req.BidderID), slog.String("error", err.Error()))
		h.respond(w, status, postBidResponse{Status: "failed", Errors: []string{message}})
		return
	}

	h.respond(w, http.StatusOK, postBidResponse{Status: "ok", Data: map[string]any{
		"bidder_id": req.BidderID,
		"amount":    amount.String(),
	}})
}

// classifyBidError maps the C5 sentinel taxonomy (spec.md §7) onto the
// {status, http_code} pairs the wire contract promises. Everything that
// isn't a recognised validation sentinel is a BidApplyError: still reported
// as a failed status with 200, since the bidder's own request wasn't
// malformed, the application of it failed.
func classifyBidError(err error) (int, string) {
	switch {
	case errors.Is(err, bidding.ErrUnknownBidder):
		return http.StatusOK, "unknown bidder"
	case errors.Is(err, bidding.ErrStageClosed):
		return http.StatusOK, "bidding stage is closed"
	case errors.Is(err, bidding.ErrStageIndex):
		return http.StatusOK, "auction is not accepting bids"
	case errors.Is(err, bidding.ErrStaleStage):
		return http.StatusOK, "auction advanced to the next round, resubmit your bid"
	default:
		return http.StatusOK, "bid could not be applied"
	}
}

func (h *bidHandlers) respond(w http.ResponseWriter, status int, body postBidResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

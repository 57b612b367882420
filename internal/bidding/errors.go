package bidding

import "errors"

// Sentinel errors for the BidValidationError taxonomy (spec.md §7). These
// are returned before any document mutation happens, so add_bid's "nothing
// persisted on error" guarantee holds trivially for them.
var (
	ErrStageClosed   = errors.New("bidding: current stage is already closed")
	ErrUnknownBidder = errors.New("bidding: bidder has no entry in the bids mapping")
	ErrStageIndex    = errors.New("bidding: current stage index out of range")

	// ErrStaleStage is returned when, by the time the document lock is
	// acquired, the caller's currentStage no longer matches the document's
	// CurrentStage or that stage already carries a bid — another bid already
	// closed that round out from under it.
	// The caller saw a stale snapshot taken before the lock; it must reload
	// and retry against the live stage rather than have its bid silently
	// overwrite history.
	ErrStaleStage = errors.New("bidding: current stage advanced before this bid acquired the lock")
)

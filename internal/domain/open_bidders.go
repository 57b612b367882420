package domain

import "sort"

// OpenBiddersName returns the multilingual labels for every bidder that has
// an initial bid, keyed by bidder id, sorted by bid number so label
// assignment reads deterministically top to bottom in logs and protocols.
// Grounded on utils.py: open_bidders_name.
func OpenBiddersName(initialBids []InitialBid) map[string]Label {
	sorted := make([]InitialBid, len(initialBids))
	copy(sorted, initialBids)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].BidNumber < sorted[j].BidNumber
	})

	labels := make(map[string]Label, len(sorted))
	for _, bid := range sorted {
		labels[bid.BidderID] = bid.Label
	}
	return labels
}

// ApplyOpenedBidderNames stamps bidNumber and the opened legal-entity name
// (as all three locale labels) onto every initial_bids, results and stages
// entry whose bidder_id appears in approved. Grounded on utils.py:
// open_bidders_name, generalized to operate over an externally-sourced bid
// set rather than the document's own initial_bids.
func ApplyOpenedBidderNames(doc *AuctionDocument, approved map[string]ExternalBid) {
	labelFor := func(bidderID string) (Label, int, bool) {
		bid, ok := approved[bidderID]
		if !ok || len(bid.Tenderers) == 0 {
			return Label{}, 0, false
		}
		name := bid.Tenderers[0].Name
		return Label{En: name, Uk: name, Ru: name}, bid.BidNumber, true
	}

	for i, bid := range doc.InitialBids {
		if label, bidNumber, ok := labelFor(bid.BidderID); ok {
			doc.InitialBids[i].Label = label
			doc.InitialBids[i].BidNumber = bidNumber
		}
	}
	for i, stage := range doc.Results {
		if label, bidNumber, ok := labelFor(stage.BidderID); ok {
			doc.Results[i].Label = &label
			doc.Results[i].BidNumber = bidNumber
		}
	}
	for i, stage := range doc.Stages {
		if stage.BidderID == "" {
			continue
		}
		if label, bidNumber, ok := labelFor(stage.BidderID); ok {
			doc.Stages[i].Label = &label
			doc.Stages[i].BidNumber = bidNumber
		}
	}
}

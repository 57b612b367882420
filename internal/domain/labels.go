package domain

import (
	"fmt"
	"sort"
)

// BidsMapping assigns each bidder id a small positive integer used in public
// labels. The zero value is ready to use.
type BidsMapping map[string]int

// Assign honours any bidNumber already present on a bid; otherwise it picks
// the smallest positive integer not yet used by this mapping or by any bid
// in the batch. Mirrors auction.py's _set_mapping/_generate_bid_number.
func (m BidsMapping) Assign(bids []ActiveBid) {
	used := map[int]bool{}
	for id, n := range m {
		_ = id
		used[n] = true
	}
	for _, b := range bids {
		if b.BidNumber > 0 {
			used[b.BidNumber] = true
		}
	}

	for i := range bids {
		b := &bids[i]
		if _, ok := m[b.ID]; ok {
			continue
		}
		if b.BidNumber > 0 {
			m[b.ID] = b.BidNumber
			continue
		}
		n := nextFree(used)
		m[b.ID] = n
		b.BidNumber = n
		used[n] = true
	}
}

func nextFree(used map[int]bool) int {
	for n := 1; ; n++ {
		if !used[n] {
			return n
		}
	}
}

// BuildLabel builds the multilingual "Bidder #N" label for a bid number.
func BuildLabel(bidNumber int) Label {
	return Label{
		En: fmt.Sprintf("Bidder #%d", bidNumber),
		Uk: fmt.Sprintf("Учасник №%d", bidNumber),
		Ru: fmt.Sprintf("Участник №%d", bidNumber),
	}
}

// SortActiveBidsByAmount orders bids ascending by amount; equal amounts keep
// their input order (auction.py: sorting_start_bids_by_amount). Callers
// follow it with SortActiveBidsByNumber for the bidNumber sort.
func SortActiveBidsByAmount(bids []ActiveBid) {
	sort.SliceStable(bids, func(i, j int) bool {
		return bids[i].Value.LessThan(bids[j].Value)
	})
}

// SortActiveBidsByNumber orders bids by their assigned bid number.
func SortActiveBidsByNumber(bids []ActiveBid) {
	sort.SliceStable(bids, func(i, j int) bool {
		return bids[i].BidNumber < bids[j].BidNumber
	})
}

// SortStagesByAmountDescending orders result stages by amount, highest
// first, stable on ties so an equal-amount bid never jumps ahead of an
// earlier equal bid (spec.md §8 sort-stability law).
func SortStagesByAmountDescending(stages []Stage) {
	sort.SliceStable(stages, func(i, j int) bool {
		return stages[i].Amount.GreaterThan(stages[j].Amount)
	})
}

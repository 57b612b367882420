// Package domain holds the persisted and transient shapes for a single
// Texas (English-ascending) auction: the document, its stage timeline, bids
// and the audit protocol.
package domain

import (
	"github.com/shopspring/decimal"
)

// Stage kinds, per spec.md Constants.
const (
	StagePause           = "pause"
	StageMainRound       = "mainRound"
	StagePreannouncement = "preannouncement"
	StageEnd             = "end"
)

// Sentinel current_stage values.
const (
	StagePlanned     = -1
	StageCancelled   = -100
	StageRescheduled = -101
)

// DefaultAuctionType is the auction_type stamped on every planned document.
const DefaultAuctionType = "texas"

// MultilingualFields lists the document fields that carry a translation per
// ADDITIONAL_LANGUAGES suffix (title, title_en, title_ru, ... ).
var MultilingualFields = []string{"title", "description"}

// AdditionalLanguages are the non-default locales carried alongside the base
// multilingual field.
var AdditionalLanguages = []string{"en", "ru"}

// Amount is a monetary value with its currency-less decimal amount, matching
// the document's {amount: decimal} shape.
type Amount struct {
	Amount decimal.Decimal `json:"amount"`
}

// Label is the multilingual bidder label attached to stages and results.
type Label struct {
	En string `json:"en"`
	Uk string `json:"uk"`
	Ru string `json:"ru"`
}

// Stage is a single timeline cell. Fields not relevant to Kind are left zero.
type Stage struct {
	Kind       string          `json:"type"`
	Start      string          `json:"start"`
	PlannedEnd string          `json:"planned_end,omitempty"`
	Amount     decimal.Decimal `json:"amount,omitempty"`
	Time       string          `json:"time,omitempty"`
	BidderID   string          `json:"bidder_id,omitempty"`
	Label      *Label          `json:"label,omitempty"`
	BidNumber  int             `json:"bidNumber,omitempty"`
}

// IsMainRound reports whether the stage is a populated main round (the
// planning code represents "no room for a round" as a zero-value Stage with
// an empty Kind).
func (s Stage) IsMainRound() bool {
	return s.Kind == StageMainRound
}

// BidInput is the transient shape a bid arrives in, before it is folded into
// a Stage/results entry.
type BidInput struct {
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
	Time     string          `json:"time"`
}

// InitialBid is a bidder's starting record, captured at auction start.
type InitialBid struct {
	BidderID  string          `json:"bidder_id"`
	Time      string          `json:"time"`
	Amount    decimal.Decimal `json:"amount"`
	Label     Label           `json:"label"`
	BidNumber int             `json:"bidNumber,omitempty"`
}

// AuctionPeriod carries the announced submission window.
type AuctionPeriod struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate,omitempty"`
}

// AuctionDocument is the persisted, single source of truth for one auction.
type AuctionDocument struct {
	ID       string `json:"id"`
	Revision string `json:"revision"`

	AuctionID             string `json:"auctionId"`
	ProcurementMethodType string `json:"procurementMethodType"`
	APIVersion            string `json:"apiVersion"`

	Value        Amount          `json:"value"`
	MinimalStep  Amount          `json:"minimalStep"`
	InitialValue decimal.Decimal `json:"initial_value"`

	Stages       []Stage      `json:"stages"`
	CurrentStage int          `json:"current_stage"`
	InitialBids  []InitialBid `json:"initial_bids"`
	Results      []Stage      `json:"results"`

	AuctionPeriod           AuctionPeriod `json:"auctionPeriod"`
	SubmissionMethodDetails string        `json:"submissionMethodDetails,omitempty"`
	Standalone              bool          `json:"standalone,omitempty"`
	Mode                    string        `json:"mode,omitempty"`
	AuctionType             string        `json:"auction_type"`
	EndDate                 string        `json:"endDate,omitempty"`

	ProcuringEntity map[string]any `json:"procuringEntity,omitempty"`
	Items           []any          `json:"items,omitempty"`

	// Translations holds multilingual title/description fields, keyed
	// "title", "title_en", "title_ru", "description", ...
	Translations map[string]string `json:"translations,omitempty"`

	// TestAuctionData is carried through persistence unchanged. Nothing in
	// the worker reads it: --debug runs still fetch from the datasource.
	TestAuctionData map[string]any `json:"test_auction_data,omitempty"`
}

// AuctionData is the canonical auction definition as returned by the
// Datasource — bids, period, items, value, minimalStep, title, mode.
type AuctionData struct {
	AuctionID               string         `json:"auctionID"`
	ProcurementMethodType   string         `json:"procurementMethodType"`
	ProcuringEntity         map[string]any `json:"procuringEntity"`
	Items                   []any          `json:"items"`
	Value                   Amount         `json:"value"`
	MinimalStep             Amount         `json:"minimalStep"`
	AuctionPeriod           AuctionPeriod  `json:"auctionPeriod"`
	SubmissionMethodDetails string         `json:"submissionMethodDetails"`
	Standalone              bool           `json:"standalone"`
	Mode                    string         `json:"mode"`
	Bids                    []ExternalBid  `json:"bids"`
	Title                   string         `json:"title"`
	TitleEn                 string         `json:"title_en"`
	TitleRu                 string         `json:"title_ru"`
	Description             string         `json:"description"`
	DescriptionEn           string         `json:"description_en"`
	DescriptionRu           string         `json:"description_ru"`
}

// ExternalBid is a bid record as it appears on the procurement API.
type ExternalBid struct {
	ID        string     `json:"id"`
	Date      string     `json:"date"`
	Value     Amount     `json:"value"`
	Owner     string     `json:"owner,omitempty"`
	Status    string     `json:"status,omitempty"`
	BidNumber int        `json:"bidNumber,omitempty"`
	Tenderers []Tenderer `json:"tenderers,omitempty"`
}

// Tenderer is the legal-entity identification attached to an opened bid.
type Tenderer struct {
	Name string `json:"name"`
}

// ActiveBid is the normalized per-bidder record used for BidsMapping and
// initial-bid ordering. Status-filtering is already applied.
type ActiveBid struct {
	ID        string
	Date      string
	Value     decimal.Decimal
	Owner     string
	BidNumber int
}

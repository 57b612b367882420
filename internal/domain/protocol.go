package domain

import "time"

// AuctionProtocol is the audit trail written alongside the auction document
// and uploaded to the datasource as YAML on completion.
type AuctionProtocol struct {
	ID        string         `yaml:"id"`
	AuctionID string         `yaml:"auctionId"`
	Items     []any          `yaml:"items"`
	Timeline  ProtocolTimeline `yaml:"timeline"`
}

// ProtocolTimeline accumulates the auction_start block, one round_N entry
// per completed main round, and the final results block.
type ProtocolTimeline struct {
	AuctionStart AuctionStartBlock  `yaml:"auction_start"`
	Rounds       map[string]BidAudit `yaml:"-"`
	Results      *ResultsBlock      `yaml:"results,omitempty"`
}

// MarshalYAML flattens Rounds into the timeline map alongside auction_start
// and results. Rounds is accumulated in a typed Go map (tagged yaml:"-"
// because its keys are dynamic round_N names, not a fixed field) and would
// otherwise be silently dropped by a plain struct marshal.
func (t ProtocolTimeline) MarshalYAML() (interface{}, error) {
	out := map[string]any{
		"auction_start": t.AuctionStart,
	}
	for key, audit := range t.Rounds {
		out[key] = audit
	}
	if t.Results != nil {
		out["results"] = t.Results
	}
	return out, nil
}

// AuctionStartBlock records the opening bids and the time the auction started.
type AuctionStartBlock struct {
	Time        string              `yaml:"time,omitempty"`
	InitialBids []InitialBidAudit `yaml:"initial_bids"`
}

// InitialBidAudit is one opening-bid entry in the audit trail.
type InitialBidAudit struct {
	Bidder         string `yaml:"bidder"`
	Date           string `yaml:"date"`
	Amount         any    `yaml:"amount"`
	BidNumber      int    `yaml:"bid_number"`
	Identification []Tenderer `yaml:"identification,omitempty"`
	Owner          string `yaml:"owner,omitempty"`
}

// BidAudit is a single accepted-bid record used both for round_N entries and
// the final results block.
type BidAudit struct {
	Bidder         string     `yaml:"bidder"`
	Amount         any        `yaml:"amount"`
	Time           string     `yaml:"time"`
	BidNumber      int        `yaml:"bid_number,omitempty"`
	Identification []Tenderer `yaml:"identification,omitempty"`
	Owner          string     `yaml:"owner,omitempty"`
}

// ResultsBlock is the final, announcement-time summary of all accepted bids.
type ResultsBlock struct {
	Time string     `yaml:"time"`
	Bids []BidAudit `yaml:"bids"`
}

// NewAuctionProtocol builds the initial protocol shell for a document,
// grounded on utils.py: prepare_auction_protocol.
func NewAuctionProtocol(docID, auctionID string, items []any) *AuctionProtocol {
	return &AuctionProtocol{
		ID:        docID,
		AuctionID: auctionID,
		Items:     items,
		Timeline: ProtocolTimeline{
			Rounds: map[string]BidAudit{},
		},
	}
}

func roundKey(stageIndex int) string {
	n := stageIndex/2 + 1
	return "round_" + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ApproveFromStages records every already-closed main round in the document
// (utils.py: approve_auction_protocol_info), used when rebuilding the
// protocol from a reloaded document (PostAuctionProtocol).
func (p *AuctionProtocol) ApproveFromStages(stages []Stage) {
	for index, stage := range stages {
		if stage.Kind == StageMainRound && stage.Time != "" {
			p.Timeline.Rounds[roundKey(index)] = BidAudit{
				Bidder: stage.BidderID,
				Amount: stage.Amount,
				Time:   stage.Time,
			}
		}
	}
}

// ApproveFromBidStage records the just-closed round at currentStage
// (utils.py: approve_auction_protocol_info_on_bids_stage).
func (p *AuctionProtocol) ApproveFromBidStage(stages []Stage, currentStage int) {
	stage := stages[currentStage]
	p.Timeline.Rounds[roundKey(currentStage)] = BidAudit{
		Bidder: stage.BidderID,
		Amount: stage.Amount,
		Time:   stage.Time,
	}
}

// ApproveOnAnnouncement stamps the final results block and, when approved
// bid identification is available, re-emits the initial bids block enriched
// with it (utils.py: approve_auction_protocol_info_on_announcement).
func (p *AuctionProtocol) ApproveOnAnnouncement(doc *AuctionDocument, approved map[string]ExternalBid, now time.Time) {
	p.Timeline.Results = &ResultsBlock{Time: now.Format(time.RFC3339)}

	if approved != nil {
		p.Timeline.AuctionStart.InitialBids = nil
		for _, bid := range doc.InitialBids {
			entry := InitialBidAudit{
				Bidder: bid.BidderID,
				Date:   bid.Time,
				Amount: bid.Amount,
			}
			if a, ok := approved[bid.BidderID]; ok {
				entry.BidNumber = a.BidNumber
				entry.Identification = a.Tenderers
				entry.Owner = a.Owner
			}
			p.Timeline.AuctionStart.InitialBids = append(p.Timeline.AuctionStart.InitialBids, entry)
		}
	}

	for _, bid := range doc.Results {
		audit := BidAudit{Bidder: bid.BidderID, Amount: bid.Amount, Time: bid.Time}
		if approved != nil {
			if a, ok := approved[bid.BidderID]; ok {
				audit.BidNumber = a.BidNumber
				audit.Identification = a.Tenderers
				audit.Owner = a.Owner
			}
		}
		p.Timeline.Results.Bids = append(p.Timeline.Results.Bids, audit)
	}
}

package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestAuctionProtocol_MarshalYAML_RoundSurvivesRoundTrip(t *testing.T) {
	protocol := NewAuctionProtocol("doc-1", "ext-1", nil)
	protocol.Timeline.AuctionStart = AuctionStartBlock{
		Time: "2026-01-01T10:00:00Z",
		InitialBids: []InitialBidAudit{
			{Bidder: "bidder-a", Date: "2026-01-01T10:00:00Z", Amount: "1000", BidNumber: 1},
		},
	}
	protocol.ApproveFromBidStage([]Stage{
		{Kind: StagePause},
		{Kind: StageMainRound, BidderID: "bidder-a", Amount: decimal.RequireFromString("1200"), Time: "2026-01-01T11:00:00Z"},
	}, 1)

	out, err := yaml.Marshal(protocol)
	require.NoError(t, err)

	var round map[string]any
	require.NoError(t, yaml.Unmarshal(out, &round))

	timeline, ok := round["timeline"].(map[string]any)
	require.True(t, ok, "timeline must marshal as a map, got %T", round["timeline"])

	assert.Contains(t, timeline, "auction_start")
	assert.Contains(t, timeline, "round_1", "round_N entries must survive the marshal round-trip")

	entry, ok := timeline["round_1"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bidder-a", entry["bidder"])
}

func TestAuctionProtocol_MarshalYAML_IncludesResultsWhenPresent(t *testing.T) {
	protocol := NewAuctionProtocol("doc-1", "ext-1", nil)
	protocol.Timeline.Results = &ResultsBlock{
		Time: "2026-01-01T12:00:00Z",
		Bids: []BidAudit{{Bidder: "bidder-a", Amount: "1200", Time: "2026-01-01T11:00:00Z"}},
	}

	out, err := yaml.Marshal(protocol)
	require.NoError(t, err)

	var round map[string]any
	require.NoError(t, yaml.Unmarshal(out, &round))
	timeline := round["timeline"].(map[string]any)
	assert.Contains(t, timeline, "results")
}

package clock

import (
	"testing"
	"time"

	"github.com/opentexas/auction-worker/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decOf(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPrepareAuctionStages_S1_PlanningBeforeDeadline(t *testing.T) {
	deadline := time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC)
	startDate := deadline.Add(-2 * time.Hour)
	source := ValueSource{Value: decOf("1000"), MinimalStep: decOf("200")}

	pause, mainRound := PrepareAuctionStages(startDate, source, &deadline, false)

	require.Equal(t, domain.StagePause, pause.Kind)
	assert.Equal(t, startDate.Format(time.RFC3339Nano), pause.Start)

	require.True(t, mainRound.IsMainRound())
	assert.Equal(t, startDate.Add(PauseDuration).Format(time.RFC3339Nano), mainRound.Start)
	assert.Equal(t, startDate.Add(PauseDuration).Add(RoundDuration).Format(time.RFC3339Nano), mainRound.PlannedEnd)
	assert.True(t, decOf("1200").Equal(mainRound.Amount))
}

func TestPrepareAuctionStages_S2_PlanningNearDeadline(t *testing.T) {
	deadline := time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC)
	startDate := deadline.Add(-(PauseDuration + RoundDuration - time.Second))
	source := ValueSource{Value: decOf("1000"), MinimalStep: decOf("200")}

	_, mainRound := PrepareAuctionStages(startDate, source, &deadline, false)

	require.True(t, mainRound.IsMainRound())
	assert.Equal(t, deadline.Format(time.RFC3339Nano), mainRound.PlannedEnd)
}

func TestPrepareAuctionStages_S3_PlanningPastDeadline(t *testing.T) {
	deadline := time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC)
	startDate := deadline.Add(2 * time.Hour)
	source := ValueSource{Value: decOf("1000"), MinimalStep: decOf("200")}

	_, mainRound := PrepareAuctionStages(startDate, source, &deadline, false)

	assert.False(t, mainRound.IsMainRound())
	assert.Equal(t, domain.Stage{}, mainRound)
}

func TestPrepareAuctionStages_S4_BidAccepted(t *testing.T) {
	bidTime := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	deadline := bidTime.Add(6 * time.Hour)
	source := ValueSource{Value: decOf("1200"), MinimalStep: decOf("200")}

	pause, mainRound := PrepareAuctionStages(bidTime, source, &deadline, false)

	assert.Equal(t, bidTime.Format(time.RFC3339Nano), pause.Start)
	require.True(t, mainRound.IsMainRound())
	assert.True(t, decOf("1400").Equal(mainRound.Amount))
}

func TestPrepareAuctionStages_S5_BidAfterDeadlineSlot(t *testing.T) {
	deadline := time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC)
	bidTime := deadline.Add(-PauseDuration)
	source := ValueSource{Value: decOf("1000"), MinimalStep: decOf("200")}

	_, mainRound := PrepareAuctionStages(bidTime, source, &deadline, false)

	assert.False(t, mainRound.IsMainRound())
}

func TestPrepareAuctionStages_NoDeadline(t *testing.T) {
	startDate := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	source := ValueSource{Value: decOf("1000"), MinimalStep: decOf("200")}

	_, mainRound := PrepareAuctionStages(startDate, source, nil, false)

	require.True(t, mainRound.IsMainRound())
	assert.Equal(t, startDate.Add(PauseDuration).Add(RoundDuration).Format(time.RFC3339Nano), mainRound.PlannedEnd)
}

func TestPrepareAuctionStages_FastForwardUsesSandboxDurations(t *testing.T) {
	startDate := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	source := ValueSource{Value: decOf("1000"), MinimalStep: decOf("200")}

	_, mainRound := PrepareAuctionStages(startDate, source, nil, true)

	require.True(t, mainRound.IsMainRound())
	assert.Equal(t, startDate.Add(FastForwardPauseDuration).Format(time.RFC3339Nano), mainRound.Start)
	assert.Equal(t,
		startDate.Add(FastForwardPauseDuration).Add(FastForwardRoundDuration).Format(time.RFC3339Nano),
		mainRound.PlannedEnd,
	)
}

func TestGetRoundEndingTime(t *testing.T) {
	start := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	deadline := start.Add(30 * time.Minute)

	assert.Equal(t, deadline, GetRoundEndingTime(start, time.Hour, &deadline))
	assert.Equal(t, start.Add(time.Hour), GetRoundEndingTime(start, time.Hour, nil))
}

func TestSetSpecificTime(t *testing.T) {
	loc := time.FixedZone("EET", 2*60*60)
	dt := time.Date(2018, 1, 1, 14, 12, 55, 0, loc)

	got := SetSpecificTime(dt, 2, 0, 0)
	assert.Equal(t, time.Date(2018, 1, 1, 2, 0, 0, 0, loc), got)

	got = SetSpecificTime(dt, 18, 0, 0)
	assert.Equal(t, time.Date(2018, 1, 1, 18, 0, 0, 0, loc), got)
}

func TestSetSpecificTime_MinuteSecondOverflow(t *testing.T) {
	dt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	got := SetSpecificTime(dt, 23, 90, 0)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC), got)
}

func TestSetRelativeDeadline(t *testing.T) {
	start := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)

	deadline, hour, minute, second := SetRelativeDeadline(start, 90*time.Minute)

	assert.Equal(t, start.Add(90*time.Minute), deadline)
	assert.Equal(t, 9, hour)
	assert.Equal(t, 30, minute)
	assert.Equal(t, 0, second)
}

func TestSetAbsoluteDeadline(t *testing.T) {
	start := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)

	deadline := SetAbsoluteDeadline(start, DefaultDeadlineHour, 0, 0)

	assert.Equal(t, time.Date(2026, 8, 1, DefaultDeadlineHour, 0, 0, 0, time.UTC), deadline)
}

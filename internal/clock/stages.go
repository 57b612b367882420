// Package clock computes the stage timeline for a Texas auction: pure
// functions over wall-clock times, with no I/O and no locking of their own.
// Grounded on original_source/openprocurement/auction/texas/utils.go
// (prepare_auction_stages, get_round_ending_time, set_specific_time,
// set_relative_deadline, set_absolute_deadline).
package clock

import (
	"time"

	"github.com/opentexas/auction-worker/internal/domain"
	"github.com/shopspring/decimal"
)

// Default timing constants. The source spec names these as normative
// constants without pinning numeric values; these defaults keep
// PauseDuration+RoundDuration comfortably under the 2h windows used in the
// scenario tests while remaining independently overridable for sandbox mode.
const (
	PauseDuration          = 5 * time.Minute
	RoundDuration          = 1 * time.Hour
	DefaultDeadlineHour    = 18
	SandboxAuctionDuration = 2 * time.Minute
)

// FastForwardPauseDuration and FastForwardRoundDuration collapse wall-clock
// waits for sandbox/--standalone runs.
const (
	FastForwardPauseDuration = 5 * time.Second
	FastForwardRoundDuration = 15 * time.Second
)

// ValueSource is the minimal document shape prepare_auction_stages needs:
// the current value and minimal step used to compute the next bid floor.
type ValueSource struct {
	Value       decimal.Decimal
	MinimalStep decimal.Decimal
}

// PrepareAuctionStages builds the pause/main-round pair starting at
// stageStart. The main round is the zero Stage (Kind == "") when it cannot
// fit before deadline — callers must check IsMainRound before using it.
func PrepareAuctionStages(stageStart time.Time, source ValueSource, deadline *time.Time, fastForward bool) (pause domain.Stage, mainRound domain.Stage) {
	pauseDuration, roundDuration := PauseDuration, RoundDuration
	if fastForward {
		pauseDuration, roundDuration = FastForwardPauseDuration, FastForwardRoundDuration
	}

	pause = domain.Stage{
		Kind:  domain.StagePause,
		Start: stageStart.Format(time.RFC3339Nano),
	}

	mainStart := stageStart.Add(pauseDuration)
	if deadline != nil && !mainStart.Before(*deadline) {
		return pause, domain.Stage{}
	}

	plannedEnd := mainStart.Add(roundDuration)
	if deadline != nil && plannedEnd.After(*deadline) {
		plannedEnd = *deadline
	}

	mainRound = domain.Stage{
		Kind:       domain.StageMainRound,
		Start:      mainStart.Format(time.RFC3339Nano),
		PlannedEnd: plannedEnd.Format(time.RFC3339Nano),
		Amount:     source.Value.Add(source.MinimalStep).RoundBank(2),
		Time:       "",
	}
	return pause, mainRound
}

// PrepareEndStage builds the terminal END stage.
func PrepareEndStage(start time.Time) domain.Stage {
	return domain.Stage{Kind: domain.StageEnd, Start: start.Format(time.RFC3339Nano)}
}

// PreparePreannouncementStage builds the PREANNOUNCEMENT stage appended
// before results are posted.
func PreparePreannouncementStage(start time.Time) domain.Stage {
	return domain.Stage{Kind: domain.StagePreannouncement, Start: start.Format(time.RFC3339Nano)}
}

// GetRoundEndingTime returns the earlier of start+duration and deadline.
func GetRoundEndingTime(start time.Time, duration time.Duration, deadline *time.Time) time.Time {
	end := start.Add(duration)
	if deadline != nil && deadline.Before(end) {
		return *deadline
	}
	return end
}

// SetSpecificTime returns dateTime's calendar day at hour:minute:second,
// preserving its timezone, wrapping minute/second overflow into hours
// modulo 24 — mirrors utils.py: set_specific_time exactly.
func SetSpecificTime(dateTime time.Time, hour, minute, second int) time.Time {
	minute = minute + second/60
	second = second % 60
	hour = hour + minute/60
	minute = minute % 60
	hour = ((hour % 24) + 24) % 24

	year, month, day := dateTime.Date()
	return time.Date(year, month, day, hour, minute, second, 0, dateTime.Location())
}

// SetRelativeDeadline returns startDate+duration and the deadline-time-of-day
// derived from it, for persisting back into worker defaults.
func SetRelativeDeadline(startDate time.Time, duration time.Duration) (deadline time.Time, hour, minute, second int) {
	deadline = startDate.Add(duration)
	return deadline, deadline.Hour(), deadline.Minute(), deadline.Second()
}

// SetAbsoluteDeadline applies a configured hour:minute:second to startDate's
// calendar day. hour/minute/second come from worker_defaults.deadline.deadline_time.
func SetAbsoluteDeadline(startDate time.Time, hour, minute, second int) time.Time {
	return SetSpecificTime(startDate, hour, minute, second)
}

// Package scheduler implements the single-instance, time-ordered set of
// named one-shot jobs (C4), built on robfig/cron/v3's engine. Grounded on
// original_source/openprocurement/auction/texas/scheduler.py's JobService
// (add_pause_job/add_ending_main_round_job/switch_to_next_stage/end_auction)
// and tests/unit/test_scheduler.py's exact call assertions.
package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/opentexas/auction-worker/internal/metrics"
)

// Fixed job ids used by the core (spec.md §4.4).
const (
	JobAuctionStart = "auction:start"
	JobAuctionPause = "auction:pause"
	JobAuctionEnd   = "auction:{END}"
)

// Scheduler is a named set of one-shot jobs. The zero value is not usable;
// construct with New.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	started bool
}

// New returns a Scheduler ready to have jobs added; call Start to begin
// running them.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		logger:  logger,
		entries: map[string]cron.EntryID{},
	}
}

// AddJob schedules fn to run once at runAt under the given name/id. Re-
// adding the same id cancels the previous entry first (replace semantics).
// Missed fire times (the scheduler was asleep past runAt) cause fn to run
// immediately on the next tick, never more than once.
func (s *Scheduler) AddJob(fn func(), runAt time.Time, name, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[id]; ok {
		s.cron.Remove(existing)
		delete(s.entries, id)
	}

	entryID := s.cron.Schedule(newOnceSchedule(runAt), wrappedJob{name: name, fn: fn, logger: s.logger})
	s.entries[id] = entryID
	metrics.SchedulerJobsScheduled.Set(float64(len(s.entries)))
}

// RemoveAllJobs cancels every pending job. Running jobs complete.
func (s *Scheduler) RemoveAllJobs() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	metrics.SchedulerJobsScheduled.Set(0)
}

// Start begins processing scheduled jobs. Safe to call once.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

// Shutdown cancels all pending jobs and stops the scheduler immediately;
// it does not wait for a currently-running job to finish.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Stop()
	for id, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	metrics.SchedulerJobsScheduled.Set(0)
	s.started = false
}

// wrappedJob adapts a plain func() to cron.Job, logging panics instead of
// letting them escape the scheduler goroutine (spec.md §7: "no error is
// ever surfaced through the scheduler job boundary — all jobs catch-and-log").
type wrappedJob struct {
	name   string
	fn     func()
	logger *slog.Logger
}

func (j wrappedJob) Run() {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("scheduler_job_panic", slog.String("job", j.name), slog.Any("panic", r))
		}
	}()
	metrics.SchedulerJobsFiredTotal.WithLabelValues(j.name).Inc()
	j.fn()
}

// onceSchedule fires exactly once at a fixed instant: Next returns runAt the
// first time it is asked, and the zero Time forever after, which robfig/cron
// treats as "never again".
type onceSchedule struct {
	runAt time.Time
	fired bool
	mu    sync.Mutex
}

func newOnceSchedule(runAt time.Time) *onceSchedule {
	return &onceSchedule{runAt: runAt}
}

func (o *onceSchedule) Next(time.Time) time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fired {
		return time.Time{}
	}
	o.fired = true
	return o.runAt
}

// Package scheduler triggers pipeline runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/you/social-pulse/internal/core"
)

// Job runs the pipeline for one run date.
type Job func(ctx context.Context, date core.RunDate) error

// Scheduler runs one job on a cron schedule. A firing is skipped while the
// previous one is still running.
type Scheduler struct {
	cron     *cron.Cron
	entry    cron.EntryID
	timezone *time.Location
	timeout  time.Duration
	now      func() time.Time
}

// New creates a scheduler in the given timezone. Each firing gets at most
// timeout of wall time; zero means no limit.
func New(timezone string, timeout time.Duration) (*Scheduler, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}

	logger := cron.PrintfLogger(log.Default())
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	return &Scheduler{
		cron:     c,
		timezone: loc,
		timeout:  timeout,
		now:      time.Now,
	}, nil
}

// Schedule installs job on spec, which accepts the standard five-field cron
// format and descriptors such as "@daily".
func (s *Scheduler) Schedule(spec string, job Job) error {
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	id, err := s.cron.AddFunc(spec, func() {
		if err := s.RunNow(context.Background(), job); err != nil {
			log.Printf("[scheduler] run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %q: %w", spec, err)
	}
	s.entry = id
	log.Printf("[scheduler] scheduled pipeline (schedule: %s, tz: %s)", spec, s.timezone)
	return nil
}

// RunNow executes job immediately for today's date in the scheduler's
// timezone, bounded by the configured timeout.
func (s *Scheduler) RunNow(parent context.Context, job Job) error {
	ctx := parent
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.timeout)
		defer cancel()
	}
	date := s.Today()
	log.Printf("[scheduler] starting run for %s", date)
	start := time.Now()
	if err := job(ctx, date); err != nil {
		return fmt.Errorf("run %s: %w", date, err)
	}
	log.Printf("[scheduler] run for %s completed in %v", date, time.Since(start))
	return nil
}

// Today is the current date in the scheduler's timezone.
func (s *Scheduler) Today() core.RunDate {
	return core.RunDate(s.now().In(s.timezone).Format("2006-01-02"))
}

// Next returns the next firing time, or zero when nothing is scheduled.
func (s *Scheduler) Next() time.Time {
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

func (s *Scheduler) Start() {
	log.Println("[scheduler] starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once a running job
// has finished.
func (s *Scheduler) Stop() context.Context {
	log.Println("[scheduler] stopping scheduler")
	return s.cron.Stop()
}

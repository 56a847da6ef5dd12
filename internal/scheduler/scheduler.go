// Package scheduler triggers posting runs on a cron expression or a fixed
// interval in serve mode.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/robfig/cron/v3"

	"github.com/i474232898/city-weather-poster/internal/logger"
)

var ErrNoSchedule = errors.New("no cron expression or interval configured")

// Job is one scheduled run. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler runs a Job on a schedule. Runs never overlap; a tick that fires
// while the previous run is still going is skipped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	job       *gocron.Job
	expr      string
	schedule  cron.Schedule
	interval  time.Duration
	run       Job
	cancel    context.CancelFunc
}

// New creates a Scheduler. A non-empty expr (standard five field cron, UTC)
// takes precedence over interval.
func New(expr string, interval time.Duration, run Job) (*Scheduler, error) {
	s := &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		expr:      expr,
		interval:  interval,
		run:       run,
	}

	switch {
	case expr != "":
		schedule, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
		s.schedule = schedule
	case interval <= 0:
		return nil, ErrNoSchedule
	}
	return s, nil
}

// Start schedules the job and starts the underlying scheduler. The first
// run happens at the first scheduled time, not immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	log := logger.FromContext(ctx)
	ctx, s.cancel = context.WithCancel(ctx)

	task := func() {
		defer func() {
			if p := recover(); p != nil {
				log.ErrorContext(ctx, "scheduler: run panicked", "panic", p)
			}
		}()
		log.InfoContext(ctx, "scheduler: starting scheduled run")
		s.run(ctx)
	}

	s.scheduler.SingletonModeAll()
	s.scheduler.WaitForScheduleAll()

	var err error
	if s.expr != "" {
		s.job, err = s.scheduler.Cron(s.expr).Do(task)
	} else {
		s.job, err = s.scheduler.Every(s.interval).Do(task)
	}
	if err != nil {
		s.cancel()
		return err
	}

	s.scheduler.StartAsync()
	log.InfoContext(ctx, "scheduler: started",
		"cron", s.expr,
		"interval", s.interval,
		"next_run", s.NextRun(),
	)
	return nil
}

// NextRun returns when the job fires next. Before Start it is derived from
// the cron expression; an interval schedule reports the zero time.
func (s *Scheduler) NextRun() time.Time {
	if s.job != nil {
		if next := s.job.NextRun(); !next.IsZero() {
			return next
		}
	}
	if s.schedule != nil {
		return s.schedule.Next(time.Now().UTC())
	}
	return time.Time{}
}

// Stop stops the scheduler and cancels a run in progress.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is one unit of scheduled work, typically a sync cycle.
type Job func(ctx context.Context) error

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Scheduler struct {
	schedule cron.Schedule
	job      Job
	logger   *logrus.Logger
	now      func() time.Time
	sleep    SleepFunc
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithSleep(sleep SleepFunc) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

// NewScheduler parses expr as a standard five-field cron expression.
func NewScheduler(expr string, job Job, logger *logrus.Logger, opts ...Option) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}

	s := &Scheduler{
		schedule: schedule,
		job:      job,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes the job immediately and then at every scheduled trigger. It
// returns the first job error, or ctx.Err() once ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := s.job(ctx); err != nil {
			return err
		}

		next := s.NextRun(s.now())
		s.logger.WithField("next_run", next.Format(time.RFC3339)).Info("Next data pull will be on")

		if err := s.sleep(ctx, next.Sub(s.now())); err != nil {
			return err
		}
	}
}

// NextRun returns the first trigger strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	return s.schedule.Next(now)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package autoclean removes finished jobs once they age past a day threshold.
package autoclean

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/platform/logger"
)

const (
	Day             = 24 * time.Hour
	DefaultInterval = Day
)

type JobStore interface {
	ListDone(ctx context.Context) ([]*types.Job, error)
	Remove(ctx context.Context, uid string) error
}

type Options struct {
	// AfterDays is the age, in whole days, at which a Done job is removed.
	AfterDays int
	Interval  time.Duration
	Clock     clock.Clock
	OnSweep   func(removed int)
}

type Sweeper struct {
	log       *logger.Logger
	jobs      JobStore
	afterDays int
	interval  time.Duration
	clock     clock.Clock
	onSweep   func(removed int)
}

func New(baseLog *logger.Logger, jobs JobStore, opts Options) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Sweeper{
		log:       baseLog.With("component", "Autoclean", "after_days", opts.AfterDays),
		jobs:      jobs,
		afterDays: opts.AfterDays,
		interval:  opts.Interval,
		clock:     opts.Clock,
		onSweep:   opts.OnSweep,
	}
}

// Run sweeps once per interval, the first time one interval after start.
func (s *Sweeper) Run(ctx context.Context) error {
	t := s.clock.Ticker(s.interval)
	defer t.Stop()
	s.log.Info("autoclean started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("autoclean stopped")
			return nil
		case <-t.C:
			s.pass(ctx)
		}
	}
}

func (s *Sweeper) pass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("autoclean sweep panic", "panic", r)
		}
	}()
	removed, err := s.Sweep(ctx)
	if s.onSweep != nil {
		s.onSweep(len(removed))
	}
	if err != nil {
		s.log.Warn("autoclean sweep finished with errors", "removed", len(removed), "error", err)
		return
	}
	if len(removed) > 0 {
		s.log.Info("autoclean sweep finished", "removed", len(removed))
	}
}

// AgeDays is now-createdOn truncated to whole days.
func AgeDays(now, createdOn time.Time) int {
	return int(now.Sub(createdOn) / Day)
}

// Sweep removes every Done job at least AfterDays old and returns their uids.
// A failure on one job does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) ([]string, error) {
	jobs, err := s.jobs.ListDone(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	var (
		removed []string
		errs    error
	)
	for _, j := range jobs {
		if j.Status != types.JobDone || AgeDays(now, j.CreatedOn) < s.afterDays {
			continue
		}
		if err := s.jobs.Remove(ctx, j.UID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("job %s: %w", j.UID, err))
			continue
		}
		removed = append(removed, j.UID)
		s.log.Debug("job removed", "job_uid", j.UID, "age_days", AgeDays(now, j.CreatedOn))
	}
	return removed, errs
}

// Package scheduler runs the daily broadcast.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gazette_bot/internal/notify"
)

// Broadcaster delivers the current edition to subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, force bool) ([]notify.Outcome, error)
}

// Options configure the daily run.
type Options struct {
	Hour, Minute int
	Location     *time.Location
	RunOnStartup bool
}

// Scheduler triggers a broadcast once a day at a fixed local time.
type Scheduler struct {
	bc    Broadcaster
	opts  Options
	now   func() time.Time
	after func(time.Duration) <-chan time.Time
	log   *slog.Logger
}

// New creates a Scheduler.
func New(bc Broadcaster, opts Options, log *slog.Logger) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{
		bc:    bc,
		opts:  opts,
		now:   time.Now,
		after: time.After,
		log:   log,
	}
}

// NextRun returns the first time strictly after now at hour:minute in loc.
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.opts.RunOnStartup {
		s.runOnce(ctx)
	}

	for {
		next := NextRun(s.now(), s.opts.Hour, s.opts.Minute, s.opts.Location)
		s.log.Info("Next broadcast scheduled", "at", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return
		case <-s.after(next.Sub(s.now())):
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := s.now()
	outcomes, err := s.bc.Broadcast(ctx, false)
	switch {
	case errors.Is(err, notify.ErrAlreadyBroadcast):
		s.log.Info("Edition already broadcast, skipping")
	case err != nil:
		s.log.Error("Scheduled broadcast", "error", err)
	default:
		failed := 0
		for _, o := range outcomes {
			if o.Err != nil {
				failed++
			}
		}
		s.log.Info("Scheduled broadcast done",
			"subscribers", len(outcomes),
			"failed", failed,
			"duration", s.now().Sub(start),
		)
	}
}

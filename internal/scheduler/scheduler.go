// Package scheduler runs the periodic background sweeps on fixed intervals,
// independent of request handling.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Job is one recurring sweep.
type Job struct {
	Run      func(ctx context.Context) error
	Name     string
	Interval time.Duration
	// Immediate runs the job once on start instead of waiting a full interval.
	Immediate bool
}

// Scheduler runs jobs until its context is canceled.
type Scheduler struct {
	jobs []Job
}

// New creates a scheduler for the given jobs.
func New(jobs ...Job) (*Scheduler, error) {
	for _, job := range jobs {
		if job.Run == nil {
			return nil, fmt.Errorf("job %q has no run function", job.Name)
		}
		if job.Interval <= 0 {
			return nil, fmt.Errorf("job %q has non-positive interval %s", job.Name, job.Interval)
		}
	}
	return &Scheduler{jobs: jobs}, nil
}

// Run blocks until ctx is canceled, running every job on its interval.
// A failing run is logged and the job keeps its schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		g.Go(func() error {
			return loop(ctx, job)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loop(ctx context.Context, job Job) error {
	logger := slog.With("job", job.Name)
	logger.Debug("Scheduled job started", "interval", job.Interval)

	if job.Immediate {
		runOnce(ctx, logger, job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Scheduled job stopped")
			return ctx.Err()
		case <-ticker.C:
			runOnce(ctx, logger, job)
		}
	}
}

func runOnce(ctx context.Context, logger *slog.Logger, job Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Scheduled job panicked", "panic", r)
		}
	}()

	if err := job.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("Scheduled job failed", "error", err, "duration", time.Since(start))
		return
	}
	logger.Debug("Scheduled job finished", "duration", time.Since(start))
}

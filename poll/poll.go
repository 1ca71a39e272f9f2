// Package poll runs the collection cache refresh on a schedule.
package poll

import (
	"context"
	"log/slog"
	"time"
)

const (
	firstRetry = 5 * time.Minute
	maxRetry   = time.Hour
)

// Refresher fetches upstream data and replaces the cache entry.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler calls Refresh periodically, backing off after failures.
type Scheduler struct {
	refresher Refresher
	logger    *slog.Logger
	every     time.Duration
	after     func(time.Duration) <-chan time.Time
}

// New creates a new refresh scheduler that refreshes every interval.
func New(refresher Refresher, every time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		refresher: refresher,
		logger:    logger,
		every:     every,
		after:     time.After,
	}
}

// Run refreshes immediately and then on schedule until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	failures := 0
	for {
		start := time.Now()
		if err := s.refresher.Refresh(ctx); err != nil {
			failures++
			s.logger.Warn("Scheduled refresh failed", "consecutive_failures", failures, "error", err)
		} else {
			failures = 0
		}

		wait := nextInterval(s.every, failures)
		s.logger.Info("Scheduled refresh finished",
			"duration_ms", time.Since(start).Milliseconds(),
			"next_in", wait.String())

		select {
		case <-ctx.Done():
			s.logger.Info("Context cancelled, stopping refresh scheduler", "error", ctx.Err())
			return
		case <-s.after(wait):
		}
	}
}

// nextInterval determines how long to wait before the next refresh.
// After failures it retries sooner, doubling from firstRetry, but never later than every.
func nextInterval(every time.Duration, failures int) time.Duration {
	if failures == 0 {
		return every
	}

	interval := firstRetry
	for i := 1; i < failures && interval < maxRetry; i++ {
		interval *= 2
	}
	interval = min(interval, maxRetry)
	return min(interval, every)
}

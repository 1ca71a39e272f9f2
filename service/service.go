// Package service answers "when is the next bin collection?" with a layered
// cache, fetch and stale-fallback policy.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/sync/singleflight"

	"bin-kiosk/datewindow"
	"bin-kiosk/pkg/collection"
	"bin-kiosk/selector"
	"bin-kiosk/storage"
)

const (
	// DefaultFreshness is how long a cached payload is served without refetching.
	DefaultFreshness = 24 * time.Hour
	// DefaultFetchTimeout bounds one upstream request.
	DefaultFetchTimeout = 15 * time.Second
	// DefaultRetryDelay is the first backoff step of Refresh.
	DefaultRetryDelay = 2 * time.Second

	staleWarning = "showing cached data, council service unavailable"
)

// Source fetches raw records from the configured upstream.
type Source interface {
	Fetch(ctx context.Context) ([]collection.RawRecord, error)
	Identity() string
	Describe() string
}

// Cache persists raw upstream payloads.
type Cache interface {
	Read(ctx context.Context, key string) (*storage.Entry, error)
	ReadFresh(ctx context.Context, key string, window time.Duration) (*storage.Entry, error)
	Write(ctx context.Context, key string, payload []collection.RawRecord) error
}

// Parser turns raw records into sorted, merged events, inferring missing
// years relative to ref.
type Parser interface {
	ParseAllAt(records []collection.RawRecord, ref datewindow.Date) []collection.Event
}

// Today supplies the current calendar day.
type Today interface {
	Today() datewindow.Date
}

// Config holds service dependencies and tuning.
type Config struct {
	Source       Source // nil means no source is configured
	Cache        Cache
	Parser       Parser
	Today        Today
	Logger       *slog.Logger
	Freshness    time.Duration
	FetchTimeout time.Duration
	RetryDelay   time.Duration
	Estimator    *selector.Estimator // Optional last resort when no data exists
}

// Service orchestrates cache, source, parser and selector.
type Service struct {
	source       Source
	cache        Cache
	parser       Parser
	today        Today
	logger       *slog.Logger
	freshness    time.Duration
	fetchTimeout time.Duration
	retryDelay   time.Duration
	estimator    *selector.Estimator
	group        singleflight.Group
}

// New creates a new collection service.
func New(cfg *Config) *Service {
	s := &Service{
		source:       cfg.Source,
		cache:        cfg.Cache,
		parser:       cfg.Parser,
		today:        cfg.Today,
		logger:       cfg.Logger,
		freshness:    cfg.Freshness,
		fetchTimeout: cfg.FetchTimeout,
		retryDelay:   cfg.RetryDelay,
		estimator:    cfg.Estimator,
	}
	if s.freshness <= 0 {
		s.freshness = DefaultFreshness
	}
	if s.fetchTimeout <= 0 {
		s.fetchTimeout = DefaultFetchTimeout
	}
	if s.retryDelay <= 0 {
		s.retryDelay = DefaultRetryDelay
	}
	return s
}

// Freshness returns the configured cache freshness window.
func (s *Service) Freshness() time.Duration {
	return s.freshness
}

// Next returns the next collection. It never returns an error: failures are
// reported through the result's Error field, degraded data through Stale and Estimated.
func (s *Service) Next(ctx context.Context) collection.Result {
	today := s.today.Today()

	events, stale, err := s.load(ctx)
	if err != nil {
		if errors.Is(err, collection.ErrNoData) && s.estimator != nil {
			s.logger.Warn("No collection data available, falling back to estimate", "error", err)
			r := s.estimator.Estimate(today)
			r.Source = "estimate"
			return r
		}
		s.logger.Error("Bin collection unavailable", "error", err)
		return errorResult(err)
	}

	r := selector.SelectNext(events, today)
	r.Source = s.source.Describe()
	if r.Error != "" {
		s.logger.Warn("No usable collection events", "error", r.Err)
		return r
	}
	if stale {
		r.Stale = true
		if r.Warning == "" {
			r.Warning = staleWarning
		}
	}
	if r.Estimated {
		s.logger.Warn("All known collections are in the past", "last_date", r.NextDate.String())
	}

	s.logger.Info("Next collection selected",
		"date", r.NextDate.String(),
		"days_until", *r.DaysUntil,
		"stale", r.Stale,
		"estimated", r.Estimated)
	return r
}

// Upcoming returns every known collection from today onwards.
// The bool reports whether the events came from an expired cache entry.
func (s *Service) Upcoming(ctx context.Context) ([]collection.Event, bool, error) {
	events, stale, err := s.load(ctx)
	if err != nil {
		return nil, false, err
	}
	return selector.Upcoming(events, s.today.Today()), stale, nil
}

// load walks fresh cache, upstream fetch and stale cache in that order.
func (s *Service) load(ctx context.Context) ([]collection.Event, bool, error) {
	if s.source == nil {
		return nil, false, collection.ErrConfigMissing
	}
	key := storage.Key(s.source.Identity())
	today := s.today.Today()

	entry, err := s.cache.ReadFresh(ctx, key, s.freshness)
	if err == nil {
		s.logger.Debug("Fresh cache hit", "key", key, "stored_at", entry.StoredAt.Format(time.RFC3339))
		return s.parser.ParseAllAt(entry.Payload, referenceDate(entry, today)), false, nil
	}
	if !storage.IsNotFound(err) {
		s.logger.Warn("Failed to read cache", "key", key, "error", err)
	}

	events, fetchErr := s.fetch(ctx, key, today)
	if fetchErr == nil {
		return events, false, nil
	}
	s.logger.Warn("Upstream fetch failed, trying stale cache", "source", s.source.Describe(), "error", fetchErr)

	entry, err = s.cache.Read(ctx, key)
	if err == nil {
		s.logger.Warn("Serving stale cache entry",
			"key", key,
			"stored_at", entry.StoredAt.Format(time.RFC3339),
			"age", time.Since(entry.StoredAt).Round(time.Minute).String())
		return s.parser.ParseAllAt(entry.Payload, referenceDate(entry, today)), true, nil
	}
	if !storage.IsNotFound(err) {
		s.logger.Warn("Failed to read stale cache", "key", key, "error", err)
	}

	return nil, false, fmt.Errorf("%w: %w", collection.ErrNoData, fetchErr)
}

// referenceDate is the day an entry was fetched, or today if that is earlier.
func referenceDate(entry *storage.Entry, today datewindow.Date) datewindow.Date {
	stored := datewindow.FromTime(entry.StoredAt)
	if entry.StoredAt.IsZero() || today.Before(stored) {
		return today
	}
	return stored
}

// fetch performs one upstream request, parses it and caches the payload.
// A payload without a single usable date is a fetch failure and is not cached.
// Concurrent callers for the same key share the request; each waits at most
// until its own context is done.
func (s *Service) fetch(ctx context.Context, key string, today datewindow.Date) ([]collection.Event, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		// The shared fetch must outlive an impatient first caller, bounded by the timeout.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()

		records, err := s.source.Fetch(fctx)
		if err != nil {
			return nil, err
		}

		events := s.parser.ParseAllAt(records, today)
		if len(events) == 0 {
			return nil, &collection.FetchError{
				URL:    s.source.Describe(),
				Reason: "no usable collection dates",
				Err:    collection.ErrNoEvents,
			}
		}

		if err := s.cache.Write(fctx, key, records); err != nil {
			s.logger.Warn("Failed to write cache", "key", key, "error", err)
		}
		return events, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		events, _ := res.Val.([]collection.Event)
		return events, nil
	case <-ctx.Done():
		return nil, &collection.FetchError{URL: s.source.Describe(), Reason: "request abandoned", Err: ctx.Err()}
	}
}

// Refresh fetches, validates and caches the upstream payload outside of request
// handling. Unlike request-path fetches it retries. A failed refresh leaves the
// existing cache entry untouched.
func (s *Service) Refresh(ctx context.Context) error {
	if s.source == nil {
		return collection.ErrConfigMissing
	}
	key := storage.Key(s.source.Identity())
	s.logger.Info("Starting cache refresh", "source", s.source.Describe(), "key", key)

	var records []collection.RawRecord
	err := retry.Do(
		func() error {
			fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
			defer cancel()

			var fetchErr error
			records, fetchErr = s.source.Fetch(fctx)
			return fetchErr
		},
		retry.Attempts(3),
		retry.Delay(s.retryDelay),
		retry.MaxDelay(15*s.retryDelay),
		retry.MaxJitter(s.retryDelay/2),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying refresh fetch after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("fetch after retries: %w", err)
	}

	events := s.parser.ParseAllAt(records, s.today.Today())
	if len(events) == 0 {
		return fmt.Errorf("refresh %s: %w", key, collection.ErrNoEvents)
	}

	if err := s.cache.Write(ctx, key, records); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}

	s.logger.Info("Cache refresh completed",
		"key", key,
		"records", len(records),
		"events", len(events),
		"first", events[0].Date.String(),
		"last", events[len(events)-1].Date.String())
	return nil
}

// errorResult hides upstream detail from clients; the cause is logged.
func errorResult(err error) collection.Result {
	public := collection.ErrNoData
	switch {
	case errors.Is(err, collection.ErrConfigMissing):
		public = collection.ErrConfigMissing
	case errors.Is(err, collection.ErrNoData):
	case errors.Is(err, collection.ErrNoEvents):
		public = collection.ErrNoEvents
	}
	return collection.Result{Err: err, Error: public.Error()}
}

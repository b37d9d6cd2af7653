package avail

import (
	"context"
	"errors"
	"time"

	"nextavail/internal/cache"
	"nextavail/internal/config"
	applog "nextavail/internal/log"
	"nextavail/internal/model"
)

// Cache keys for the computed date and its companion timestamp.
const (
	dateCacheKey    = "nextavail:date"
	updatedCacheKey = "nextavail:updated"

	cacheTTL = 24 * time.Hour
)

// Provider supplies events from an authenticated calendar backend.
type Provider interface {
	// ListEvents returns single-occurrence events overlapping
	// [timeMin, timeMax) for the given calendar.
	ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]model.Event, error)
}

// Service computes the next available date and memoizes it in a Store with
// a 24-hour TTL. Concurrent misses may both recompute; both converge on the
// same result for the same inputs, so no locking guards the miss path.
type Service struct {
	cfg      *config.Config
	provider Provider
	store    cache.Store
	loc      *time.Location

	// now is injectable for tests.
	now func() time.Time
}

// NewService wires the availability engine to its collaborators.
func NewService(cfg *config.Config, provider Provider, store cache.Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		cfg:      cfg,
		provider: provider,
		store:    store,
		loc:      loc,
		now:      time.Now,
	}
}

// NextDate returns the next available date as YYYY-MM-DD, or "" when none
// can be computed (no calendar, provider failure, or exhausted horizon).
//
// A cached value within its TTL is returned as-is without touching the
// provider. Fresh results are cached together with a "last updated"
// timestamp; a failed computation is never cached so the next call retries.
func (s *Service) NextDate(ctx context.Context) (string, error) {
	if cached, ok := s.store.Get(dateCacheKey); ok {
		return cached, nil
	}

	date, err := s.compute(ctx)
	if err != nil {
		return "", err
	}

	if err := s.store.Set(dateCacheKey, date, cacheTTL); err != nil {
		applog.Error("failed to cache next available date", err)
	}
	if err := s.store.Set(updatedCacheKey, s.now().Format(time.RFC3339), cacheTTL); err != nil {
		applog.Error("failed to cache update timestamp", err)
	}

	return date, nil
}

// LastUpdated returns when the cached date was computed, or ok=false when
// no computation has been cached.
func (s *Service) LastUpdated() (time.Time, bool) {
	raw, ok := s.store.Get(updatedCacheKey)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Refresh drops the cached date and recomputes it immediately.
func (s *Service) Refresh(ctx context.Context) (string, error) {
	if err := s.store.Delete(dateCacheKey); err != nil {
		return "", err
	}
	if err := s.store.Delete(updatedCacheKey); err != nil {
		return "", err
	}
	return s.NextDate(ctx)
}

func (s *Service) compute(ctx context.Context) (string, error) {
	if s.provider == nil {
		return "", ErrNoCalendar
	}

	calendarID := s.cfg.CalendarID()

	q := Query{
		ConsecutiveDays: s.cfg.FreeDays,
		IncludeWeekends: s.cfg.IncludeWeekends,
		EventsPerDay:    s.cfg.EventsPerDay,
		SearchStart:     s.now().In(s.loc),
		MaxYears:        s.cfg.MaxSearchYears,
	}

	fetch := func(ctx context.Context, start, end time.Time) ([]model.Event, error) {
		return s.provider.ListEvents(ctx, calendarID, start, end)
	}

	date, err := Find(ctx, q, fetch)
	if err != nil {
		if errors.Is(err, ErrNoAvailability) {
			applog.Warn("availability search exhausted",
				"free_days", q.ConsecutiveDays,
				"max_years", q.MaxYears,
			)
		} else {
			applog.Error("availability computation failed", err)
		}
		return "", err
	}

	applog.Info("next available date computed",
		"date", DayKey(date),
		"free_days", q.ConsecutiveDays,
		"include_weekends", q.IncludeWeekends,
	)
	return DayKey(date), nil
}

package avail

import (
	"context"
	"errors"
	"time"

	applog "nextavail/internal/log"
	"nextavail/internal/model"
)

var (
	// ErrNoCalendar means no usable calendar backend is configured.
	ErrNoCalendar = errors.New("no calendar configured")

	// ErrNoAvailability means the search horizon was exhausted without
	// finding a qualifying free run.
	ErrNoAvailability = errors.New("no availability found within search horizon")
)

// Query describes one availability search. All fields are resolved by the
// caller; the finder applies no defaults.
type Query struct {
	// ConsecutiveDays is the required free-run length (>= 1).
	ConsecutiveDays int

	// IncludeWeekends controls weekend participation. When false,
	// Saturday/Sunday never start a run, never break one, and do not
	// count toward it.
	IncludeWeekends bool

	// EventsPerDay is the busy threshold: a day with at least this many
	// events is occupied (>= 1).
	EventsPerDay int

	// SearchStart is the first candidate day, typically "today".
	SearchStart time.Time

	// MaxYears bounds the number of one-year windows scanned.
	MaxYears int
}

// FetchFunc returns the events overlapping [start, end) from the calendar
// backend. One call is made per one-year search window.
type FetchFunc func(ctx context.Context, start, end time.Time) ([]model.Event, error)

// Find returns the first date starting a run of q.ConsecutiveDays free days.
//
// It scans one-year windows beginning at q.SearchStart. For each window it
// fetches events once, builds a busy index, and walks the window day by day.
// If q.MaxYears windows pass without a match, ErrNoAvailability is returned.
// A fetch failure aborts the whole attempt; nothing partial is reported.
func Find(ctx context.Context, q Query, fetch FetchFunc) (time.Time, error) {
	if fetch == nil {
		return time.Time{}, ErrNoCalendar
	}

	maxYears := q.MaxYears
	if maxYears <= 0 {
		maxYears = 1
	}

	searchStart := model.DateOf(q.SearchStart)

	for year := 0; year < maxYears; year++ {
		windowStart := searchStart.AddDate(year, 0, 0)
		windowEnd := windowStart.AddDate(1, 0, 0)

		events, err := fetch(ctx, windowStart, windowEnd)
		if err != nil {
			return time.Time{}, err
		}

		index := BuildBusyIndex(events, windowStart, windowEnd)

		applog.Debug("availability window scanned",
			"window_start", DayKey(windowStart),
			"window_end", DayKey(windowEnd),
			"events", len(events),
			"busy_days", len(index),
		)

		if d, ok := scanWindow(index, windowStart, windowEnd, q); ok {
			return d, nil
		}
	}

	return time.Time{}, ErrNoAvailability
}

// scanWindow walks [windowStart, windowEnd) chronologically and returns the
// first day that starts a qualifying free run. Days past windowEnd are not
// in the index and count as free, so a run may complete just beyond the
// fetched window.
func scanWindow(index map[string]int, windowStart, windowEnd time.Time, q Query) (time.Time, bool) {
	busy := func(d time.Time) bool {
		return index[DayKey(d)] >= q.EventsPerDay
	}

	for cursor := windowStart; cursor.Before(windowEnd); cursor = cursor.AddDate(0, 0, 1) {
		if !q.IncludeWeekends && model.IsWeekend(cursor) {
			continue
		}
		if freeRunFrom(cursor, q, busy) {
			return cursor, true
		}
	}
	return time.Time{}, false
}

// freeRunFrom reports whether a run of q.ConsecutiveDays free days begins at
// start. Weekend days are transparently skipped when excluded.
func freeRunFrom(start time.Time, q Query, busy func(time.Time) bool) bool {
	accumulated := 0
	for d := start; accumulated < q.ConsecutiveDays; d = d.AddDate(0, 0, 1) {
		if !q.IncludeWeekends && model.IsWeekend(d) {
			continue
		}
		if busy(d) {
			return false
		}
		accumulated++
	}
	return true
}

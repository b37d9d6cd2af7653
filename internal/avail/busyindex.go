// Package avail implements the availability engine: it converts calendar
// events into per-day occupancy counts and scans for the first date that
// begins a run of consecutive free days.
package avail

import (
	"time"

	"nextavail/internal/model"
)

// DayKey formats a date as the YYYY-MM-DD key used throughout the index.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// BuildBusyIndex converts events into a per-day event count over the
// inclusive window [windowStart, windowEnd].
//
// Event spans are clamped to the window; events fully outside contribute
// nothing. All-day events have an exclusive end boundary which is pulled
// back before clamping. Events missing both start and end are skipped.
func BuildBusyIndex(events []model.Event, windowStart, windowEnd time.Time) map[string]int {
	index := make(map[string]int)

	winStart := model.DateOf(windowStart)
	winEnd := model.DateOf(windowEnd)

	for _, ev := range events {
		if ev.Start.IsZero() && ev.End.IsZero() {
			// Malformed event; a single corrupt entry must not abort the scan.
			continue
		}

		start := ev.StartDate()
		end := ev.EndDate()

		// Clamp to the window.
		if start.Before(winStart) {
			start = winStart
		}
		if end.After(winEnd) {
			end = winEnd
		}

		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			index[DayKey(d)]++
		}
	}

	return index
}

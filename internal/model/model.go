package model

import "time"

// Event is a single calendar event as returned by a provider. Recurring
// events are always expanded by the provider before they reach here, so an
// Event is one concrete occurrence.
type Event struct {
	ID      string
	Summary string

	// AllDay marks whole-day events. For these, Start is midnight of the
	// first day and End is midnight of the day after the last day
	// (exclusive end, as calendar backends report it).
	AllDay bool

	Start time.Time
	End   time.Time
}

// StartDate returns the calendar date of the event start.
func (e Event) StartDate() time.Time {
	return DateOf(e.Start)
}

// EndDate returns the last calendar date the event occupies. For all-day
// events the exclusive end boundary is pulled back by one day.
func (e Event) EndDate() time.Time {
	if e.AllDay {
		return DateOf(e.End).AddDate(0, 0, -1)
	}
	// A timed event ending exactly at midnight does not occupy the next day.
	end := e.End.Add(-time.Second)
	if end.Before(e.Start) {
		end = e.Start
	}
	return DateOf(end)
}

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

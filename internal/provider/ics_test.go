package provider

import (
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"nextavail/internal/model"
)

// Daily all-day recurrences across the November DST fall-back must still
// occupy exactly one calendar day each; the 25-hour day would otherwise pull
// the exclusive end back before the next midnight.
func TestExpandRecurring_AllDayAcrossFallBack(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}

	cal := ical.NewCalendar()
	ve := cal.AddEvent("uid-1")

	base := model.Event{
		ID:      "uid-1",
		Summary: "blocked",
		AllDay:  true,
		Start:   time.Date(2025, 11, 1, 0, 0, 0, 0, loc),
		End:     time.Date(2025, 11, 2, 0, 0, 0, 0, loc),
	}

	rangeStart := time.Date(2025, 11, 1, 0, 0, 0, 0, loc)
	rangeEnd := time.Date(2025, 11, 10, 0, 0, 0, 0, loc)

	out, err := expandRecurring(ve, base, "FREQ=DAILY;COUNT=3", rangeStart, rangeEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 occurrences, got %d", len(out))
	}

	for _, occ := range out {
		if !occ.EndDate().Equal(occ.StartDate()) {
			t.Errorf("occurrence starting %s spans %s to %s, want one day",
				occ.Start, occ.StartDate(), occ.EndDate())
		}
	}

	// Nov 2 is the 25-hour day; its exclusive end must be the next midnight.
	second := out[1]
	if !second.Start.Equal(time.Date(2025, 11, 2, 0, 0, 0, 0, loc)) {
		t.Fatalf("unexpected second occurrence start: %s", second.Start)
	}
	if !second.End.Equal(time.Date(2025, 11, 3, 0, 0, 0, 0, loc)) {
		t.Errorf("expected end at the next midnight, got %s", second.End)
	}
}

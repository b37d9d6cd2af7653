// Package grid computes the positioned month-grid model consumed by the
// calendar UI: week-row event segments, stacking slots, and per-day counts.
// It produces data only; markup is the display layer's concern.
package grid

import (
	"fmt"
	"hash/crc32"
	"sort"
	"time"

	"nextavail/internal/model"
)

// MaxBarsPerDay caps the stacked event bars rendered on a single day.
// Further events on that day fold into a "+N more" overflow count.
const MaxBarsPerDay = 2

// Options controls how the grid model is computed. Defaults are resolved by
// the caller at the boundary; the grid math applies them as given.
type Options struct {
	// IncludeWeekends selects the 7-column grid. When false, the grid is
	// Monday-Friday only and all cell indices live in a weekday-only index
	// space (weekend days are omitted entirely).
	IncludeWeekends bool

	// ColorEvents enables deterministic per-summary colors; otherwise all
	// bars use a neutral gray.
	ColorEvents bool

	// HighlightDate is the next available date (YYYY-MM-DD). A matching
	// day in this month is flagged for distinct display.
	HighlightDate string
}

// Segment is the portion of an event confined to one calendar week row.
type Segment struct {
	// StartCell is the zero-based grid cell where the segment starts,
	// counted across the whole grid (columns * rows).
	StartCell int `json:"start_cell"`

	// SpanDays is the number of cells the segment covers. A segment never
	// crosses a week-row boundary.
	SpanDays int `json:"span_days"`

	// Stack is the vertical slot: 0 or 1 for rendered bars, -1 for
	// overflow events folded into the "+N more" count.
	Stack int `json:"stack"`

	// Day is the day of month on which the segment starts.
	Day int `json:"day"`

	Summary string `json:"summary"`
	Color   string `json:"color"`
}

// Model is the computed month grid.
type Model struct {
	// Month in YYYY-MM form, plus a human label like "July 2025".
	Month      string `json:"month"`
	MonthLabel string `json:"month_label"`

	DaysInMonth int `json:"days_in_month"`

	// StartOffset is the number of leading empty cells before day 1. With
	// weekends excluded it counts only weekday columns.
	StartOffset int `json:"start_offset"`

	// Columns is 7, or 5 when weekends are excluded.
	Columns int `json:"columns"`

	Segments []Segment `json:"segments"`

	// EventsPerDay maps day-of-month to its total event count, feeding the
	// overflow label and day highlighting.
	EventsPerDay map[int]int `json:"events_per_day"`

	// HighlightDay is the day of month matching the next available date,
	// or 0 when none falls in this month.
	HighlightDay int `json:"highlight_day"`

	PrevMonth string `json:"prev_month"`
	NextMonth string `json:"next_month"`
}

// Overflow returns the "+N more" count for a day: total events minus the
// rendered bars, or 0 when everything fits.
func (m *Model) Overflow(day int) int {
	if n := m.EventsPerDay[day]; n > MaxBarsPerDay {
		return n - MaxBarsPerDay
	}
	return 0
}

// Build computes the grid model for the month containing monthStart.
// monthStart must be the first day of the month at midnight.
func Build(events []model.Event, monthStart time.Time, opts Options) Model {
	monthStart = model.DateOf(monthStart)
	monthEnd := monthStart.AddDate(0, 1, -1) // last day of month

	m := Model{
		Month:        monthStart.Format("2006-01"),
		MonthLabel:   monthStart.Format("January 2006"),
		DaysInMonth:  monthEnd.Day(),
		Columns:      7,
		EventsPerDay: make(map[int]int),
		PrevMonth:    monthStart.AddDate(0, -1, 0).Format("2006-01"),
		NextMonth:    monthStart.AddDate(0, 1, 0).Format("2006-01"),
	}

	startWeekday := int(monthStart.Weekday()) // 0=Sunday
	if opts.IncludeWeekends {
		m.StartOffset = startWeekday
	} else {
		m.Columns = 5
		// Count only weekday columns preceding the first of the month.
		for w := 0; w < startWeekday; w++ {
			if w >= 1 && w <= 5 {
				m.StartOffset++
			}
		}
	}

	var segments []Segment
	for _, ev := range events {
		if ev.Start.IsZero() && ev.End.IsZero() {
			continue
		}

		start, end, ok := clampToMonth(ev, monthStart, monthEnd)
		if !ok {
			continue
		}

		countEventDays(m.EventsPerDay, start, end, opts.IncludeWeekends)

		color := "#808080"
		if opts.ColorEvents {
			color = summaryColor(ev.Summary)
		}

		if opts.IncludeWeekends {
			segments = append(segments, splitFullWeek(start, end, startWeekday, ev.Summary, color)...)
		} else {
			segments = append(segments, splitWeekdaysOnly(start, end, monthStart, m.StartOffset, ev.Summary, color)...)
		}
	}

	m.Segments = assignStacks(segments)
	m.HighlightDay = highlightDay(opts.HighlightDate, monthStart)

	return m
}

// clampToMonth clips the event's occupied dates to the month. ok is false
// when the event does not touch the month at all.
func clampToMonth(ev model.Event, monthStart, monthEnd time.Time) (start, end time.Time, ok bool) {
	start = ev.StartDate()
	end = ev.EndDate()

	if start.Before(monthStart) {
		start = monthStart
	}
	if end.After(monthEnd) {
		end = monthEnd
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func countEventDays(perDay map[int]int, start, end time.Time, includeWeekends bool) {
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !includeWeekends && model.IsWeekend(d) {
			continue
		}
		perDay[d.Day()]++
	}
}

// splitFullWeek splits [start, end] into one segment per 7-column week row.
func splitFullWeek(start, end time.Time, startWeekday int, summary, color string) []Segment {
	var out []Segment

	startIndex := start.Day() - 1 + startWeekday
	endIndex := end.Day() - 1 + startWeekday

	current := startIndex
	for current <= endIndex {
		weekDay := current % 7
		daysLeftInWeek := 6 - weekDay
		segmentEnd := current + daysLeftInWeek
		if segmentEnd > endIndex {
			segmentEnd = endIndex
		}

		out = append(out, Segment{
			StartCell: current,
			SpanDays:  segmentEnd - current + 1,
			Day:       current - startWeekday + 1,
			Summary:   summary,
			Color:     color,
		})
		current = segmentEnd + 1
	}
	return out
}

// splitWeekdaysOnly splits [start, end] into segments over the 5-column
// weekday grid. Weekend days are skipped entirely; a segment runs at most to
// the Friday of its row.
func splitWeekdaysOnly(start, end, monthStart time.Time, startOffset int, summary, color string) []Segment {
	var out []Segment

	current := start
	for !current.After(end) {
		if model.IsWeekend(current) {
			current = current.AddDate(0, 0, 1)
			continue
		}

		startCell := startOffset + weekdaysBetween(monthStart, current)

		segmentEnd := current
		span := 1
		for segmentEnd.Before(end) {
			next := segmentEnd.AddDate(0, 0, 1)
			if model.IsWeekend(next) {
				break
			}
			segmentEnd = next
			span++
			if segmentEnd.Weekday() == time.Friday {
				break
			}
		}

		out = append(out, Segment{
			StartCell: startCell,
			SpanDays:  span,
			Day:       current.Day(),
			Summary:   summary,
			Color:     color,
		})
		current = segmentEnd.AddDate(0, 0, 1)
	}
	return out
}

// weekdaysBetween counts weekdays in [from, to), i.e. how many weekday
// cells precede to within the month.
func weekdaysBetween(from, to time.Time) int {
	n := 0
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		if !model.IsWeekend(d) {
			n++
		}
	}
	return n
}

// assignStacks groups segments by starting cell and hands out vertical
// slots: the first MaxBarsPerDay get stack 0..1, the rest stack -1.
func assignStacks(segments []Segment) []Segment {
	if len(segments) == 0 {
		return []Segment{}
	}

	grouped := make(map[int][]Segment)
	cells := make([]int, 0, len(grouped))
	for _, seg := range segments {
		if _, seen := grouped[seg.StartCell]; !seen {
			cells = append(cells, seg.StartCell)
		}
		grouped[seg.StartCell] = append(grouped[seg.StartCell], seg)
	}
	sort.Ints(cells)

	out := make([]Segment, 0, len(segments))
	for _, cell := range cells {
		for i, seg := range grouped[cell] {
			if i < MaxBarsPerDay {
				seg.Stack = i
			} else {
				seg.Stack = -1
			}
			out = append(out, seg)
		}
	}
	return out
}

// highlightDay returns the day of month of date when it falls inside the
// month starting at monthStart, else 0.
func highlightDay(date string, monthStart time.Time) int {
	if date == "" {
		return 0
	}
	d, err := time.ParseInLocation("2006-01-02", date, monthStart.Location())
	if err != nil {
		return 0
	}
	if d.Year() != monthStart.Year() || d.Month() != monthStart.Month() {
		return 0
	}
	return d.Day()
}

// summaryColor maps an event summary to a stable 24-bit color. Purely
// cosmetic; collisions are acceptable.
func summaryColor(summary string) string {
	h := crc32.ChecksumIEEE([]byte(summary))
	return fmt.Sprintf("#%06X", h&0xFFFFFF)
}

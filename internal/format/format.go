// Package format renders dates for display. Failures surface as a sentinel
// display string rather than an error, so widget output never breaks.
package format

import "time"

// InvalidDate is returned for input that cannot be parsed. Callers treat it
// as a valid (if unhelpful) display value, never as an error signal.
const InvalidDate = "Invalid date"

// acceptedLayouts are tried in order when parsing stored date strings.
var acceptedLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// Date formats a YYYY-MM-DD (or RFC3339) date string using a Go reference
// layout. An empty layout falls back to ISO dates.
func Date(value, layout string) string {
	if layout == "" {
		layout = "2006-01-02"
	}
	t, ok := parse(value)
	if !ok {
		return InvalidDate
	}
	return t.Format(layout)
}

// Time formats a time.Time using a Go reference layout, with the same
// empty-layout fallback as Date.
func Time(t time.Time, layout string) string {
	if layout == "" {
		layout = "2006-01-02"
	}
	if t.IsZero() {
		return InvalidDate
	}
	return t.Format(layout)
}

func parse(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range acceptedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

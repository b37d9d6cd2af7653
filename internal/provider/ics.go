package provider

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"nextavail/internal/config"
	applog "nextavail/internal/log"
	"nextavail/internal/model"
)

// maxOccurrencesPerEvent caps RRULE expansion so a pathological rule cannot
// blow up a window fetch.
const maxOccurrencesPerEvent = 5000

// ICS serves events from one or more ICS feed subscriptions. Fetches honor
// ETag/Last-Modified with a small disk cache, VEVENTs are parsed with
// golang-ical, and recurrences are expanded to single occurrences within
// the requested window.
type ICS struct {
	sources  []config.ICSConfig
	client   *http.Client
	cacheDir string
}

// NewICS creates the feed backend. cacheDir holds per-URL response caches;
// empty falls back to a relative dir for development runs.
func NewICS(sources []config.ICSConfig, cacheDir string) *ICS {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	return &ICS{
		sources:  sources,
		client:   &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
	}
}

// ListEvents returns single occurrences overlapping [timeMin, timeMax) from
// all configured feeds, sorted by start, capped at 2500 results. The
// calendarID argument is unused; feed selection is configuration-driven.
func (p *ICS) ListEvents(ctx context.Context, _ string, timeMin, timeMax time.Time) ([]model.Event, error) {
	if len(p.sources) == 0 {
		return nil, ErrNotConfigured
	}

	var events []model.Event
	var failed int

	for _, src := range p.sources {
		if src.URL == "" {
			continue
		}
		body, err := p.fetch(ctx, src.URL)
		if err != nil {
			applog.Error("ics fetch failed", err, "id", src.ID)
			failed++
			continue
		}
		evs, err := expandICS(body, timeMin, timeMax)
		if err != nil {
			applog.Error("ics parse failed", err, "id", src.ID)
			failed++
			continue
		}
		events = append(events, evs...)
	}

	// A window fetch with no usable source at all is fatal for the attempt.
	if len(events) == 0 && failed > 0 {
		return nil, errors.New("all ICS sources failed")
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	if len(events) > maxResultsPerCall {
		events = events[:maxResultsPerCall]
	}
	return events, nil
}

// icsCacheMeta holds HTTP cache metadata for a single feed URL.
type icsCacheMeta struct {
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// fetch retrieves one feed, reusing the cached body on 304 or network
// failure.
func (p *ICS) fetch(ctx context.Context, url string) ([]byte, error) {
	sum := sha256.Sum256([]byte(url))
	dir := filepath.Join(p.cacheDir, hex.EncodeToString(sum[:8]))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	metaFile := filepath.Join(dir, "meta.json")
	bodyFile := filepath.Join(dir, "body.ics")

	var meta icsCacheMeta
	if raw, err := os.ReadFile(metaFile); err == nil {
		_ = json.Unmarshal(raw, &meta)
	}
	cachedBody, _ := os.ReadFile(bodyFile)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			applog.Warn("ics fetch network error, using cached body", "err", err)
			return cachedBody, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		meta = icsCacheMeta{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}
		if raw, err := json.Marshal(&meta); err == nil {
			// Body first so meta never points at a missing body.
			_ = os.WriteFile(bodyFile, body, 0o600)
			_ = os.WriteFile(metaFile, raw, 0o600)
		}
		return body, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return nil, errors.New("304 Not Modified but no cached body")
		}
		return cachedBody, nil

	default:
		if len(cachedBody) > 0 {
			applog.Warn("ics fetch non-OK, using cached body", "status", resp.StatusCode)
			return cachedBody, nil
		}
		return nil, errors.New(resp.Status)
	}
}

// expandICS parses an ICS payload and expands every VEVENT into concrete
// occurrences within [rangeStart, rangeEnd). Malformed VEVENTs are skipped.
func expandICS(body []byte, rangeStart, rangeEnd time.Time) ([]model.Event, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var out []model.Event
	for _, ve := range cal.Events() {
		evs, err := expandVEvent(ve, rangeStart, rangeEnd)
		if err != nil {
			applog.Warn("skipping unparsable vevent", "err", err)
			continue
		}
		out = append(out, evs...)
	}
	return out, nil
}

func expandVEvent(ve *ical.VEvent, rangeStart, rangeEnd time.Time) ([]model.Event, error) {
	uid := ""
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		uid = p.Value
	}

	summary := ""
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		summary = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return nil, err
	}

	// All-day when DTSTART carries VALUE=DATE or a date-only value.
	allDay := false
	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			allDay = true
		}
		if !strings.Contains(p.Value, "T") {
			allDay = true
		}
	}

	end, err := ve.GetEndAt()
	if err != nil || end.IsZero() {
		// Missing DTEND: all-day events occupy one day, timed ones are
		// treated as instantaneous. AddDate keeps the exclusive end at
		// midnight across DST transitions.
		if allDay {
			end = start.AddDate(0, 0, 1)
		} else {
			end = start
		}
	}

	base := model.Event{ID: uid, Summary: summary, AllDay: allDay, Start: start, End: end}

	rawRRule := ""
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		rawRRule = p.Value
	}
	if rawRRule == "" {
		if start.After(rangeEnd) || end.Before(rangeStart) {
			return nil, nil
		}
		return []model.Event{base}, nil
	}

	return expandRecurring(ve, base, rawRRule, rangeStart, rangeEnd)
}

func expandRecurring(ve *ical.VEvent, base model.Event, rawRRule string, rangeStart, rangeEnd time.Time) ([]model.Event, error) {
	r, err := rrule.StrToRRule(rawRRule)
	if err != nil {
		return nil, err
	}
	r.DTStart(base.Start)

	var set rrule.Set
	set.RRule(r)

	for _, ex := range exDates(ve) {
		set.ExDate(ex.In(base.Start.Location()))
	}

	occTimes := set.Between(rangeStart.In(base.Start.Location()), rangeEnd.In(base.Start.Location()), true)
	if len(occTimes) > maxOccurrencesPerEvent {
		applog.Warn("truncated recurrence expansion", "uid", base.ID, "cap", maxOccurrencesPerEvent)
		occTimes = occTimes[:maxOccurrencesPerEvent]
	}

	dur := base.End.Sub(base.Start)
	out := make([]model.Event, 0, len(occTimes))
	for _, occStart := range occTimes {
		occ := base
		if base.AllDay {
			occ.Start = model.DateOf(occStart)
			// Calendar-day step, not 24h: a fall-back day is 25 hours
			// long and a fixed-duration add would land before midnight.
			occ.End = occ.Start.AddDate(0, 0, 1)
		} else {
			occ.Start = occStart
			occ.End = occStart.Add(dur)
		}
		out = append(out, occ)
	}
	return out, nil
}

// exDates collects EXDATE values in basic DATE/DATE-TIME/UTC forms.
func exDates(ve *ical.VEvent) []time.Time {
	var out []time.Time
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

func parseICSTime(v string) (time.Time, error) {
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.Local)
	default:
		return time.ParseInLocation("20060102", v, time.Local)
	}
}

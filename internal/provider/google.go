// Package provider implements calendar data backends. Each backend returns
// single-occurrence events for a time window; recurrence expansion happens
// here so the availability engine never sees recurrence rules.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"nextavail/internal/config"
	applog "nextavail/internal/log"
	"nextavail/internal/model"
)

// maxResultsPerCall is the per-request event cap applied by every backend.
const maxResultsPerCall = 2500

// ErrNotConfigured means the backend is missing required configuration
// (calendar id, credentials, or token).
var ErrNotConfigured = errors.New("calendar backend not configured")

// Google serves events from the Google Calendar API using a pre-provisioned
// OAuth token. The consent flow is out of scope; the token file is expected
// to exist and refresh via its refresh token.
type Google struct {
	svc *gcal.Service
}

// NewGoogle builds the Google backend from config. The token file must hold
// a JSON-encoded oauth2.Token.
func NewGoogle(ctx context.Context, cfg *config.GoogleConfig) (*Google, error) {
	if cfg == nil || cfg.CalendarID == "" || cfg.TokenFile == "" {
		return nil, ErrNotConfigured
	}

	raw, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gcal.CalendarReadonlyScope},
		Endpoint:     googleoauth.Endpoint,
	}

	svc, err := gcal.NewService(ctx, option.WithHTTPClient(oc.Client(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &Google{svc: svc}, nil
}

// ListEvents returns events overlapping [timeMin, timeMax), recurring events
// already expanded to single occurrences, capped at 2500 results.
func (g *Google) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]model.Event, error) {
	if calendarID == "" {
		return nil, ErrNotConfigured
	}

	resp, err := g.svc.Events.List(calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxResultsPerCall).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]model.Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		ev, ok := convertGoogleEvent(item)
		if !ok {
			// A single corrupt event must not abort the whole window.
			applog.Warn("skipping event with no usable start/end", "event_id", item.Id)
			continue
		}
		events = append(events, ev)
	}

	return events, nil
}

// convertGoogleEvent maps an API event to the internal model. Events carry
// either whole-day dates or full timestamps; ok is false when neither is
// present.
func convertGoogleEvent(item *gcal.Event) (model.Event, bool) {
	ev := model.Event{
		ID:      item.Id,
		Summary: item.Summary,
	}

	start, allDay, ok := parseEventTime(item.Start)
	if !ok {
		return model.Event{}, false
	}
	end, _, ok := parseEventTime(item.End)
	if !ok {
		return model.Event{}, false
	}

	ev.Start = start
	ev.End = end
	ev.AllDay = allDay
	return ev, true
}

func parseEventTime(edt *gcal.EventDateTime) (t time.Time, allDay, ok bool) {
	if edt == nil {
		return time.Time{}, false, false
	}
	if edt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, edt.DateTime); err == nil {
			return t, false, true
		}
		return time.Time{}, false, false
	}
	if edt.Date != "" {
		if t, err := time.Parse("2006-01-02", edt.Date); err == nil {
			return t, true, true
		}
	}
	return time.Time{}, false, false
}

package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nextavail/internal/avail"
	"nextavail/internal/cache"
	"nextavail/internal/config"
	"nextavail/internal/model"
)

type fakeProvider struct {
	events []model.Event
	err    error
	calls  int
}

func (f *fakeProvider) ListEvents(_ context.Context, _ string, _, _ time.Time) ([]model.Event, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func newTestServer(t *testing.T, prov avail.Provider) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.ContactEmail = "book@example.com"
	svc := avail.NewService(cfg, prov, cache.NewMemoryStore(), time.UTC)
	return NewServer(cfg, svc, prov, time.UTC)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("unexpected health response: %d %q", rec.Code, rec.Body.String())
	}
}

func TestNextDate_FreeCalendar(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/next-date", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	var resp nextDateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if resp.Fallback {
		t.Fatal("free calendar must not fall back")
	}
	if resp.Date == "" || resp.Formatted == "" {
		t.Fatalf("expected a date, got %+v", resp)
	}
	if resp.UpdatedAt == "" {
		t.Error("expected an update timestamp")
	}
}

func TestNextDate_ProviderDownFallsBack(t *testing.T) {
	s := newTestServer(t, &fakeProvider{err: errors.New("backend down")})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/next-date", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("failures surface as fallback, not HTTP errors: %d", rec.Code)
	}

	var resp nextDateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if !resp.Fallback || resp.Formatted != "Contact for availability" {
		t.Fatalf("expected fallback string, got %+v", resp)
	}
}

func TestCalendar_MonthParam(t *testing.T) {
	prov := &fakeProvider{events: []model.Event{{
		Summary: "away",
		AllDay:  true,
		Start:   time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 7, 8, 0, 0, 0, 0, time.UTC),
	}}}
	s := newTestServer(t, prov)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/calendar?month=2025-07", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	var resp calendarResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if resp.Month != "2025-07" || resp.DaysInMonth != 31 {
		t.Errorf("unexpected month model: %+v", resp.Model)
	}
	if len(resp.Segments) != 2 {
		t.Errorf("expected the Fri-Mon event split into 2 segments, got %d", len(resp.Segments))
	}
	if resp.ContactEmail != "book@example.com" {
		t.Errorf("expected contact email, got %q", resp.ContactEmail)
	}
	if resp.PrevMonth != "2025-06" || resp.NextMonth != "2025-08" {
		t.Errorf("unexpected navigation: %q %q", resp.PrevMonth, resp.NextMonth)
	}
}

func TestCalendar_NoProviderRendersEmptyMonth(t *testing.T) {
	cfg := config.DefaultConfig()
	svc := avail.NewService(cfg, nil, cache.NewMemoryStore(), time.UTC)
	s := NewServer(cfg, svc, nil, time.UTC)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/calendar?month=2025-07", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("missing backend must not fail the grid, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp calendarResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if resp.Month != "2025-07" || resp.DaysInMonth != 31 {
		t.Errorf("expected the requested month to render, got %+v", resp.Model)
	}
	if len(resp.Segments) != 0 {
		t.Errorf("expected no segments without a backend, got %d", len(resp.Segments))
	}
	if resp.HighlightDay != 0 {
		t.Errorf("nothing to highlight without a backend, got day %d", resp.HighlightDay)
	}
}

func TestCalendar_ResponseCached(t *testing.T) {
	prov := &fakeProvider{}
	s := newTestServer(t, prov)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/calendar?month=2025-07", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("unexpected status %d", rec.Code)
		}
	}

	// One availability fetch plus one month fetch; the second request is
	// served from the response cache.
	if prov.calls != 2 {
		t.Fatalf("expected 2 provider calls total, got %d", prov.calls)
	}
}

func TestCalendar_StaleEntriesEvicted(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	base := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	months := []string{"2025-07", "2025-08", "2025-09"}
	for _, month := range months {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/calendar?month="+month, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("unexpected status %d for %s", rec.Code, month)
		}
		now = now.Add(gridCacheTTL + time.Second)
	}

	// Each request arrived after the previous entry lapsed, so only the
	// latest survives.
	s.gridMu.RLock()
	defer s.gridMu.RUnlock()
	if len(s.gridCache) != 1 {
		t.Fatalf("expected 1 live cache entry, got %d", len(s.gridCache))
	}
	if _, ok := s.gridCache["month=2025-09"]; !ok {
		t.Error("expected the latest month to remain cached")
	}
}

func TestCalendar_InvalidMonthFallsBack(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/calendar?month=2025-13", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("invalid month must fall back, got %d", rec.Code)
	}

	var resp calendarResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if resp.Month == "2025-13" || resp.Month == "" {
		t.Errorf("expected a real month, got %q", resp.Month)
	}
}

func TestRefresh_RequiresPost(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/refresh", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestRefresh_Recomputes(t *testing.T) {
	prov := &fakeProvider{}
	s := newTestServer(t, prov)

	// Warm the cache.
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/next-date", nil))
	if prov.calls != 1 {
		t.Fatalf("expected 1 call after warmup, got %d", prov.calls)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if prov.calls != 2 {
		t.Fatalf("refresh must bypass the cache, got %d calls", prov.calls)
	}

	var resp nextDateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if resp.Date == "" || resp.Fallback {
		t.Fatalf("expected recomputed date, got %+v", resp)
	}
}

func TestBasicAuth(t *testing.T) {
	prov := &fakeProvider{}
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	svc := avail.NewService(cfg, prov, cache.NewMemoryStore(), time.UTC)
	s := NewServer(cfg, svc, prov, time.UTC)
	h := s.Handler()

	// /health stays open.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health must bypass auth, got %d", rec.Code)
	}

	// API requires credentials.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/next-date", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/next-date", nil)
	req.SetBasicAuth("admin", "secret")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with credentials, got %d", rec.Code)
	}
}

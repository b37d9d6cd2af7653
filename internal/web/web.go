// Package web exposes the HTTP API consumed by display widgets: the next
// available date, the month-grid model, and a cache refresh hook.
package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"nextavail/internal/avail"
	"nextavail/internal/config"
	"nextavail/internal/format"
	"nextavail/internal/grid"
	applog "nextavail/internal/log"
	"nextavail/internal/model"
)

// gridCacheTTL bounds how stale a cached month-grid response may be. The
// grid is a display surface; a short TTL avoids refetching the provider on
// every page interaction without holding data for long.
const gridCacheTTL = 30 * time.Second

// Server provides the HTTP API.
type Server struct {
	cfg      *config.Config
	svc      *avail.Service
	provider avail.Provider
	loc      *time.Location
	mux      *http.ServeMux

	// Response cache for /api/calendar keyed by the raw query.
	gridMu    sync.RWMutex
	gridCache map[string]gridCacheEntry

	// now is injectable for tests.
	now func() time.Time
}

type gridCacheEntry struct {
	resp      calendarResponse
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, svc *avail.Service, provider avail.Provider, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		cfg:       cfg,
		svc:       svc,
		provider:  provider,
		loc:       loc,
		mux:       http.NewServeMux(),
		gridCache: make(map[string]gridCacheEntry),
		now:       time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		applog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// StartServer starts an HTTP server bound to cfg.Listen.
func StartServer(cfg *config.Config, svc *avail.Service, provider avail.Provider, loc *time.Location) error {
	s := NewServer(cfg, svc, provider, loc)
	applog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
	return http.ListenAndServe(cfg.Listen, s.Handler())
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/next-date", s.handleNextDate)
	s.mux.HandleFunc("/api/calendar", s.handleCalendar)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="nextavail", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// nextDateResponse is the JSON response shape for /api/next-date.
type nextDateResponse struct {
	// Date is the ISO next available date, empty when unavailable.
	Date string `json:"date"`

	// Formatted is Date rendered with the configured pattern, or the
	// configured fallback string when no date could be computed.
	Formatted string `json:"formatted"`

	// Fallback is true when Formatted carries the fallback string.
	Fallback bool `json:"fallback"`

	UpdatedAt          string `json:"updated_at,omitempty"`
	UpdatedAtFormatted string `json:"updated_at_formatted,omitempty"`
}

// handleNextDate returns the next available date for display widgets.
//
// GET /api/next-date?format=<Go layout>
//
// Provider failures and an exhausted search horizon both surface as the
// configured fallback string, never as an HTTP error: the widget always has
// something to show.
func (s *Server) handleNextDate(w http.ResponseWriter, r *http.Request) {
	layout := r.URL.Query().Get("format")
	if layout == "" {
		layout = s.cfg.DateFormat
	}

	resp := nextDateResponse{}

	date, err := s.svc.NextDate(r.Context())
	if err != nil || date == "" {
		if err != nil {
			applog.Error("next date unavailable", err)
		}
		resp.Formatted = s.cfg.DateFallback
		resp.Fallback = true
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Date = date
	resp.Formatted = format.Date(date, layout)

	if updated, ok := s.svc.LastUpdated(); ok {
		resp.UpdatedAt = updated.Format(time.RFC3339)
		resp.UpdatedAtFormatted = format.Time(updated, layout)
	}

	writeJSON(w, http.StatusOK, resp)
}

// calendarResponse is the JSON response shape for /api/calendar.
type calendarResponse struct {
	grid.Model

	// Overflow maps day-of-month to its "+N more" count.
	Overflow map[int]int `json:"overflow"`

	// ContactEmail backs the contact link on the highlighted day.
	ContactEmail string `json:"contact_email,omitempty"`
}

// handleCalendar returns the positioned month-grid model.
//
// GET /api/calendar?month=YYYY-MM&include_weekends=1&color_events=1&highlight_available=1
//
// An invalid or missing month falls back to the month of the next available
// date, else the current month. Responses are cached briefly per query.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	cacheKey := r.URL.RawQuery
	cacheNow := s.now()

	s.gridMu.RLock()
	entry, hit := s.gridCache[cacheKey]
	s.gridMu.RUnlock()
	if hit && cacheNow.Sub(entry.updatedAt) < gridCacheTTL {
		writeJSON(w, http.StatusOK, entry.resp)
		return
	}

	q := r.URL.Query()

	// Display options resolve once here; the grid math never sees raw
	// query strings.
	opts := grid.Options{
		IncludeWeekends: parseBoolDefault(q.Get("include_weekends"), s.cfg.IncludeWeekends),
		ColorEvents:     parseBoolDefault(q.Get("color_events"), true),
	}
	highlight := parseBoolDefault(q.Get("highlight_available"), true)

	nextDate, err := s.svc.NextDate(r.Context())
	if err != nil {
		// The grid still renders without a highlight.
		nextDate = ""
	}
	if highlight {
		opts.HighlightDate = nextDate
	}

	monthStart := s.resolveMonth(q, nextDate)
	monthEnd := monthStart.AddDate(0, 1, 0)

	// Without a backend the month still renders, just with no events.
	var events []model.Event
	if s.provider != nil {
		events, err = s.provider.ListEvents(r.Context(), s.cfg.CalendarID(), monthStart, monthEnd)
		if err != nil {
			applog.Error("calendar month fetch failed", err, "month", monthStart.Format("2006-01"))
			writeError(w, http.StatusBadGateway, "failed to fetch calendar events")
			return
		}
	}

	m := grid.Build(events, monthStart, opts)

	overflow := make(map[int]int)
	for day := 1; day <= m.DaysInMonth; day++ {
		if n := m.Overflow(day); n > 0 {
			overflow[day] = n
		}
	}

	resp := calendarResponse{
		Model:        m,
		Overflow:     overflow,
		ContactEmail: s.cfg.ContactEmail,
	}

	s.gridMu.Lock()
	// Drop lapsed entries so varied query strings cannot grow the map
	// without bound.
	for k, e := range s.gridCache {
		if cacheNow.Sub(e.updatedAt) >= gridCacheTTL {
			delete(s.gridCache, k)
		}
	}
	s.gridCache[cacheKey] = gridCacheEntry{resp: resp, updatedAt: s.now()}
	s.gridMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh drops the cached date and recomputes it.
//
// POST /api/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	// Grid responses embed the highlight; drop them together with the date.
	s.gridMu.Lock()
	s.gridCache = make(map[string]gridCacheEntry)
	s.gridMu.Unlock()

	date, err := s.svc.Refresh(r.Context())
	if err != nil || date == "" {
		writeJSON(w, http.StatusOK, nextDateResponse{
			Formatted: s.cfg.DateFallback,
			Fallback:  true,
		})
		return
	}

	writeJSON(w, http.StatusOK, nextDateResponse{
		Date:      date,
		Formatted: format.Date(date, s.cfg.DateFormat),
	})
}

// resolveMonth picks the month to display: a strictly valid month parameter
// wins, then the next available date's month, then the current month.
func (s *Server) resolveMonth(q url.Values, nextDate string) time.Time {
	if raw := q.Get("month"); raw != "" {
		if t, err := time.ParseInLocation("2006-01", raw, s.loc); err == nil && t.Format("2006-01") == raw {
			return t
		}
		applog.Warn("invalid month parameter", "month", raw)
	}

	if nextDate != "" {
		if t, err := time.ParseInLocation("2006-01-02", nextDate, s.loc); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, s.loc)
		}
	}

	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
}

func parseBoolDefault(raw string, def bool) bool {
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

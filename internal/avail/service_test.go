package avail

import (
	"context"
	"errors"
	"testing"
	"time"

	"nextavail/internal/cache"
	"nextavail/internal/config"
	"nextavail/internal/model"
)

// fakeProvider serves a fixed event set and counts calls.
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

func newTestService(t *testing.T, prov Provider) *Service {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.FreeDays = 3

	svc := NewService(cfg, prov, cache.NewMemoryStore(), time.UTC)
	svc.now = func() time.Time { return day("2025-07-01") }
	return svc
}

func TestService_CachesComputedDate(t *testing.T) {
	prov := &fakeProvider{events: []model.Event{allDayEvent("busy", "2025-07-02", "2025-07-04")}}
	svc := newTestService(t, prov)

	first, err := svc.NextDate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != "2025-07-04" {
		t.Fatalf("expected 2025-07-04, got %s", first)
	}
	if prov.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", prov.calls)
	}

	// Second call within the TTL returns the cached value untouched.
	second, err := svc.NextDate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != first {
		t.Fatalf("cached value differs: %s vs %s", second, first)
	}
	if prov.calls != 1 {
		t.Fatalf("cached hit must not call the provider, got %d calls", prov.calls)
	}
}

func TestService_FailureNotCached(t *testing.T) {
	prov := &fakeProvider{err: errors.New("backend down")}
	svc := newTestService(t, prov)

	if _, err := svc.NextDate(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := svc.NextDate(context.Background()); err == nil {
		t.Fatal("expected error on retry")
	}
	// Both calls must have hit the provider: failures are never cached.
	if prov.calls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", prov.calls)
	}
}

func TestService_NoProvider(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.NextDate(context.Background())
	if !errors.Is(err, ErrNoCalendar) {
		t.Fatalf("expected ErrNoCalendar, got %v", err)
	}
}

func TestService_LastUpdated(t *testing.T) {
	prov := &fakeProvider{}
	svc := newTestService(t, prov)

	if _, ok := svc.LastUpdated(); ok {
		t.Fatal("expected no timestamp before first computation")
	}

	if _, err := svc.NextDate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, ok := svc.LastUpdated()
	if !ok {
		t.Fatal("expected timestamp after computation")
	}
	if !updated.Equal(day("2025-07-01")) {
		t.Fatalf("expected computation time, got %s", updated)
	}
}

func TestService_Refresh(t *testing.T) {
	prov := &fakeProvider{}
	svc := newTestService(t, prov)

	if _, err := svc.NextDate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prov.calls != 1 {
		t.Fatalf("expected 1 call, got %d", prov.calls)
	}

	// Refresh bypasses the still-valid cache entry.
	if _, err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prov.calls != 2 {
		t.Fatalf("refresh must recompute, got %d calls", prov.calls)
	}
}

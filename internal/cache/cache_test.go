package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func TestMemoryStore_SetGet(t *testing.T) {
	s := NewMemoryStore()

	if _, ok := s.Get("missing"); ok {
		t.Fatal("expected miss for unknown key")
	}

	if err := s.Set("k", "v", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := s.Get("k")
	if !ok || got != "v" {
		t.Fatalf("expected hit with v, got %q ok=%v", got, ok)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore()

	current := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	if err := s.Set("k", "v", 24*time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Just inside the TTL.
	current = current.Add(23 * time.Hour)
	if _, ok := s.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	// Past the TTL.
	current = current.Add(2 * time.Hour)
	if _, ok := s.Get("k"); ok {
		t.Fatal("expected miss after expiry")
	}
}

func TestMemoryStore_NoExpiry(t *testing.T) {
	s := NewMemoryStore()
	current := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	if err := s.Set("k", "v", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current = current.AddDate(1, 0, 0)
	if _, ok := s.Get("k"); !ok {
		t.Fatal("zero ttl must never expire")
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Set("k", "v", 0)

	if err := s.Delete("k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.Get("k"); ok {
		t.Fatal("expected miss after delete")
	}
	// Deleting a missing key is not an error.
	if err := s.Delete("k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	if _, ok := s.Get("missing"); ok {
		t.Fatal("expected miss for unknown key")
	}

	if err := s.Set("k", "v", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := s.Get("k")
	if !ok || got != "v" {
		t.Fatalf("expected hit with v, got %q ok=%v", got, ok)
	}

	// Overwrite.
	if err := s.Set("k", "v2", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := s.Get("k"); got != "v2" {
		t.Fatalf("expected overwritten value, got %q", got)
	}

	if err := s.Delete("k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.Get("k"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestSQLiteStore_TTLExpiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	current := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	if err := s.Set("k", "v", 24*time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current = current.Add(25 * time.Hour)
	if _, ok := s.Get("k"); ok {
		t.Fatal("expected miss after expiry")
	}
}

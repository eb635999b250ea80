package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trackerhq/tracker-core/internal/database"
)

// countingFetch returns a FetchFunc that records calls per key.
func countingFetch(calls *atomic.Int64) FetchFunc {
	return func(ctx context.Context, key Key) ([]byte, error) {
		calls.Add(1)
		return []byte(`{"key":"` + key.String() + `"}`), nil
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestGetFetchesOnceWhileFresh(t *testing.T) {
	var calls atomic.Int64
	s := NewStore(nil, countingFetch(&calls), slog.Default())
	defer s.Close()

	key := NewKey("pantry")
	for i := 0; i < 3; i++ {
		payload, err := s.Get(context.Background(), key)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(payload) == 0 {
			t.Fatal("empty payload")
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 fetch, got %d", got)
	}
}

func TestInvalidateMarksStaleAndRefetches(t *testing.T) {
	var calls atomic.Int64
	s := NewStore(nil, countingFetch(&calls), slog.Default())
	defer s.Close()

	ctx := context.Background()
	key := NewKey("budget", "2026", "08")
	if _, err := s.Get(ctx, key); err != nil {
		t.Fatalf("get: %v", err)
	}

	s.Invalidate(ctx, NewKey("budget"))

	waitFor(t, func() bool { return calls.Load() == 2 && !s.Stale(key) },
		"expected background refetch to clear stale flag")
}

// TestInvalidateIdempotent applies the same invalidation repeatedly and
// checks the stale set ends up identical to a single application.
func TestInvalidateIdempotent(t *testing.T) {
	var fail atomic.Bool
	s := NewStore(nil, func(ctx context.Context, key Key) ([]byte, error) {
		if fail.Load() {
			return nil, fmt.Errorf("offline")
		}
		return []byte(`{}`), nil
	}, slog.Default())
	defer s.Close()

	ctx := context.Background()
	s.Get(ctx, NewKey("pantry"))
	s.Get(ctx, NewKey("goals"))

	fail.Store(true)
	for i := 0; i < 5; i++ {
		s.Invalidate(ctx, NewKey("pantry"))
	}
	s.Close()

	if !s.Stale(NewKey("pantry")) {
		t.Error("pantry should remain stale while refetch fails")
	}
	if s.Stale(NewKey("goals")) {
		t.Error("goals should not be touched by a pantry invalidation")
	}
}

// TestInvalidateDuringRefetchIsNotLost pins the race between an event and an
// in-flight refetch: a fetch that started before the event read pre-event
// data, so it must not mark the entry fresh, and a further fetch must land.
func TestInvalidateDuringRefetchIsNotLost(t *testing.T) {
	var calls atomic.Int64
	entered := make(chan struct{})
	gate := make(chan struct{})
	s := NewStore(nil, func(ctx context.Context, key Key) ([]byte, error) {
		n := calls.Add(1)
		if n == 2 {
			close(entered)
			<-gate
		}
		return []byte(fmt.Sprintf(`{"v":%d}`, n)), nil
	}, slog.Default())
	defer s.Close()

	ctx := context.Background()
	key := NewKey("pantry")
	if _, err := s.Get(ctx, key); err != nil {
		t.Fatalf("get: %v", err)
	}

	// First event starts a background refetch and holds it mid-flight.
	s.Invalidate(ctx, NewKey("pantry"))
	<-entered

	// Second event lands while that fetch is still reading pre-event data.
	s.Invalidate(ctx, NewKey("pantry"))
	close(gate)
	s.Close()

	if s.Stale(key) {
		t.Error("entry should be fresh once a post-event fetch lands")
	}
	if got := calls.Load(); got < 3 {
		t.Errorf("expected a fetch after the second event, got %d calls", got)
	}

	before := calls.Load()
	if _, err := s.Get(ctx, key); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := calls.Load(); got != before {
		t.Errorf("fresh entry refetched: %d -> %d calls", before, got)
	}
}

func TestInvalidateUnknownKeyIsNoop(t *testing.T) {
	var calls atomic.Int64
	s := NewStore(nil, countingFetch(&calls), slog.Default())
	defer s.Close()

	s.Invalidate(context.Background(), NewKey("notifications"))
	s.Close()

	if got := calls.Load(); got != 0 {
		t.Errorf("invalidating an uncached key should not fetch, got %d calls", got)
	}
}

func TestGetServesStaleOnFetchFailure(t *testing.T) {
	var fail atomic.Bool
	s := NewStore(nil, func(ctx context.Context, key Key) ([]byte, error) {
		if fail.Load() {
			return nil, fmt.Errorf("connection refused")
		}
		return []byte(`{"items":[1]}`), nil
	}, slog.Default())
	defer s.Close()

	ctx := context.Background()
	key := NewKey("receipts")
	if _, err := s.Get(ctx, key); err != nil {
		t.Fatalf("initial get: %v", err)
	}

	fail.Store(true)
	s.Invalidate(ctx, NewKey("receipts"))
	s.Close()

	payload, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("expected stale payload, got error: %v", err)
	}
	if string(payload) != `{"items":[1]}` {
		t.Errorf("unexpected payload %s", payload)
	}
	if !s.Stale(key) {
		t.Error("entry should stay stale until a fetch succeeds")
	}
}

func TestGetErrorsWhenNothingCached(t *testing.T) {
	s := NewStore(nil, func(ctx context.Context, key Key) ([]byte, error) {
		return nil, fmt.Errorf("connection refused")
	}, slog.Default())
	defer s.Close()

	if _, err := s.Get(context.Background(), NewKey("pantry")); err == nil {
		t.Fatal("expected error with no cached fallback")
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	dbPath := t.TempDir() + "/cache.db"
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	var calls atomic.Int64
	s := NewStore(db, countingFetch(&calls), slog.Default())
	ctx := context.Background()
	key := NewKey("budget", "2026", "08")
	if _, err := s.Get(ctx, key); err != nil {
		t.Fatalf("get: %v", err)
	}
	s.Close()
	db.Close()

	// Reopen as a fresh process would.
	db2, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	t.Cleanup(func() { db2.Close() })

	s2 := NewStore(db2, func(ctx context.Context, key Key) ([]byte, error) {
		return nil, fmt.Errorf("offline")
	}, slog.Default())
	defer s2.Close()

	if err := s2.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s2.Len() != 1 {
		t.Fatalf("expected 1 hydrated entry, got %d", s2.Len())
	}
	if !s2.Stale(key) {
		t.Error("hydrated entries should start stale")
	}

	payload, err := s2.Get(ctx, key)
	if err != nil {
		t.Fatalf("offline get should serve persisted payload: %v", err)
	}
	if string(payload) != `{"key":"budget/2026/08"}` {
		t.Errorf("unexpected payload %s", payload)
	}
}

package cache

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc retrieves the server result for a concrete cache key.
type FetchFunc func(ctx context.Context, key Key) ([]byte, error)

// Store is a keyed cache of server query results. The sync core only ever
// marks entries stale; the store owns the refetch discipline, running at most
// one fetch per key at a time. When a database handle is provided, payloads
// survive restarts so the client stays usable offline.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	fetch   FetchFunc
	group   singleflight.Group
	wg      sync.WaitGroup
	db      *sql.DB
	logger  *slog.Logger
}

type entry struct {
	key       Key
	payload   []byte
	stale     bool
	fetchedAt time.Time

	// gen counts invalidations of this entry. A fetch records the gen it
	// started under; if the value moved while the fetch was in flight, the
	// result predates an event and must not clear the stale flag.
	gen uint64
}

// NewStore creates a Store. db may be nil for a memory-only cache.
func NewStore(db *sql.DB, fetch FetchFunc, logger *slog.Logger) *Store {
	return &Store{
		entries: make(map[string]*entry),
		fetch:   fetch,
		db:      db,
		logger:  logger,
	}
}

// Load hydrates the in-memory index from the cache database. Every persisted
// entry is marked stale: the data may have changed while the client was away,
// but it is still worth rendering until a refetch lands.
func (s *Store) Load(ctx context.Context) error {
	if s.db == nil {
		return nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, payload, fetched_at FROM cache_entries`)
	if err != nil {
		return fmt.Errorf("load cache: %w", err)
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	for rows.Next() {
		var keyStr, fetchedAt string
		var payload []byte
		if err := rows.Scan(&keyStr, &payload, &fetchedAt); err != nil {
			return fmt.Errorf("scan cache entry: %w", err)
		}
		e := &entry{key: ParseKey(keyStr), payload: payload, stale: true}
		if t, err := time.Parse(time.RFC3339, fetchedAt); err == nil {
			e.fetchedAt = t
		}
		s.entries[keyStr] = e
	}
	return rows.Err()
}

// Get returns the cached payload for key, fetching if the entry is missing or
// stale. If the fetch fails but a previous payload exists, that payload is
// returned instead: the application stays usable on last-known data.
func (s *Store) Get(ctx context.Context, key Key) ([]byte, error) {
	ks := key.String()

	s.mu.RLock()
	e, ok := s.entries[ks]
	if ok && !e.stale {
		payload := e.payload
		s.mu.RUnlock()
		return payload, nil
	}
	s.mu.RUnlock()

	payload, err := s.refresh(ctx, key)
	if err != nil {
		s.mu.RLock()
		e, ok := s.entries[ks]
		s.mu.RUnlock()
		if ok && e.payload != nil {
			s.logger.Warn("refetch failed, serving stale entry", "key", ks, "error", err)
			return e.payload, nil
		}
		return nil, err
	}
	return payload, nil
}

// Invalidate marks every entry matching one of the patterns stale and kicks
// off a background refetch for each. Invalidating an already-stale entry is a
// no-op beyond the redundant refetch, so replayed events are harmless.
func (s *Store) Invalidate(ctx context.Context, patterns ...Key) {
	s.mu.Lock()
	var matched []Key
	for _, e := range s.entries {
		for _, p := range patterns {
			if e.key.HasPrefix(p) {
				e.stale = true
				e.gen++
				matched = append(matched, e.key)
				break
			}
		}
	}
	s.mu.Unlock()

	if len(matched) == 0 {
		return
	}

	s.persistStale(ctx, matched)

	for _, key := range matched {
		key := key
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if _, err := s.refresh(context.WithoutCancel(ctx), key); err != nil {
				s.logger.Warn("background refetch failed", "key", key.String(), "error", err)
			}
		}()
	}
}

// Stale reports whether the entry for key exists and is marked stale.
func (s *Store) Stale(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key.String()]
	return ok && e.stale
}

// Has reports whether an entry for key exists, stale or not.
func (s *Store) Has(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[key.String()]
	return ok
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close waits for in-flight background refetches to finish. The database
// handle is owned by the caller and is not closed here.
func (s *Store) Close() {
	s.wg.Wait()
}

type fetchResult struct {
	payload []byte
	stale   bool
}

// refresh fetches key through the single-flight group and stores the result.
// A fetch observes the server as of its start: when an invalidation lands
// while it is in flight, the result predates that event, so the entry stays
// stale and the loop fetches once more instead of letting the old read mask
// the event.
func (s *Store) refresh(ctx context.Context, key Key) ([]byte, error) {
	ks := key.String()
	for {
		v, err, _ := s.group.Do(ks, func() (any, error) {
			s.mu.RLock()
			var startGen uint64
			if e, ok := s.entries[ks]; ok {
				startGen = e.gen
			}
			s.mu.RUnlock()

			payload, err := s.fetch(ctx, key)
			if err != nil {
				return nil, err
			}

			now := time.Now().UTC()
			s.mu.Lock()
			gen := startGen
			if e, ok := s.entries[ks]; ok {
				gen = e.gen
			}
			stale := gen != startGen
			s.entries[ks] = &entry{key: key, payload: payload, stale: stale, fetchedAt: now, gen: gen}
			s.mu.Unlock()

			s.persist(ctx, ks, payload, now, stale)
			return fetchResult{payload: payload, stale: stale}, nil
		})
		if err != nil {
			return nil, err
		}
		if res := v.(fetchResult); !res.stale {
			return res.payload, nil
		}
	}
}

func (s *Store) persist(ctx context.Context, key string, payload []byte, fetchedAt time.Time, stale bool) {
	if s.db == nil {
		return
	}
	staleFlag := 0
	if stale {
		staleFlag = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, payload, stale, fetched_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, stale = excluded.stale, fetched_at = excluded.fetched_at`,
		key, payload, staleFlag, fetchedAt.Format(time.RFC3339))
	if err != nil {
		s.logger.Warn("persist cache entry", "key", key, "error", err)
	}
}

func (s *Store) persistStale(ctx context.Context, keys []Key) {
	if s.db == nil {
		return
	}
	for _, key := range keys {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE cache_entries SET stale = 1 WHERE key = ?`, key.String()); err != nil {
			s.logger.Warn("persist stale flag", "key", key.String(), "error", err)
		}
	}
}

// Package snapshot holds the single current snapshot of aggregated tokens.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"token-aggregator/internal/cache"
	"token-aggregator/internal/domain"
	"token-aggregator/internal/logger"
	"token-aggregator/internal/observability"
)

// DefaultTTL is the lifetime of the cached snapshot entry.
const DefaultTTL = 60 * time.Second

// Store owns the current snapshot. Readers get an immutable value; the
// refresh loop replaces it as a whole.
type Store struct {
	current atomic.Pointer[domain.Snapshot]
	cache   cache.Cache
	ttl     time.Duration
	log     logrus.FieldLogger
}

// Options configures a Store. Cache may be nil.
type Options struct {
	Cache  cache.Cache
	TTL    time.Duration
	Logger logrus.FieldLogger
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &Store{
		cache: opts.Cache,
		ttl:   opts.TTL,
		log:   logger.Component(opts.Logger, "snapshot"),
	}
}

// Current returns the latest snapshot or nil before the first refresh.
func (s *Store) Current() *domain.Snapshot {
	return s.current.Load()
}

// Replace swaps in snap, writes the cache entry and invalidates cached
// query results. The swap always happens; cache failures are returned
// after it.
func (s *Store) Replace(ctx context.Context, snap *domain.Snapshot) error {
	s.current.Store(snap)
	observability.RecordSnapshot(snap.Len(), time.Now().Unix())

	if s.cache == nil {
		return nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	var setErr, delErr error
	if err := s.cache.Set(ctx, cache.PrefixSnapshot, string(data), s.ttl); err != nil {
		observability.RecordCacheError("set")
		setErr = fmt.Errorf("cache snapshot: %w", err)
	}
	// query views of the old snapshot must go even when the write failed
	if _, err := s.cache.DeleteByPattern(ctx, cache.PrefixQuery+"*"); err != nil {
		observability.RecordCacheError("delete_pattern")
		delErr = fmt.Errorf("invalidate query cache: %w", err)
	}
	return errors.Join(setErr, delErr)
}

// Cached returns the in-memory snapshot, falling back to the cache entry
// when nothing has been produced in this process yet.
func (s *Store) Cached(ctx context.Context) *domain.Snapshot {
	if snap := s.current.Load(); snap != nil {
		return snap
	}
	if s.cache == nil {
		return nil
	}

	raw, ok, err := s.cache.Get(ctx, cache.PrefixSnapshot)
	if err != nil {
		observability.RecordCacheError("get")
		s.log.WithError(err).Warn("read cached snapshot")
		return nil
	}
	observability.RecordCacheLookup("snapshot", ok)
	if !ok {
		return nil
	}

	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		s.log.WithError(err).Warn("decode cached snapshot")
		return nil
	}
	return &snap
}

// Warm seeds the store from the cache entry, e.g. after a restart with a
// shared cache. It reports whether a snapshot was loaded.
func (s *Store) Warm(ctx context.Context) bool {
	if s.current.Load() != nil {
		return true
	}
	snap := s.Cached(ctx)
	if snap == nil {
		return false
	}
	return s.current.CompareAndSwap(nil, snap)
}

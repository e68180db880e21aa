package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-aggregator/internal/cache"
	"token-aggregator/internal/domain"
)

func testSnapshot(addrs ...string) *domain.Snapshot {
	recs := make([]domain.AggregatedRecord, len(addrs))
	for i, a := range addrs {
		recs[i] = domain.AggregatedRecord{
			SourceRecord: domain.SourceRecord{Address: a, Price: 1, Volume: float64(i + 1)},
			Sources:      []domain.Source{domain.SourceJupiter},
		}
	}
	return domain.NewSnapshot(recs, 1700000000000)
}

func TestStore_ReplaceSwapsAndInvalidates(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory()
	s := NewStore(Options{Cache: c, TTL: time.Minute})

	assert.Nil(t, s.Current())

	require.NoError(t, c.Set(ctx, cache.PrefixQuery+"filter:x", "stale", 0))

	first := testSnapshot("a", "b")
	require.NoError(t, s.Replace(ctx, first))
	assert.Same(t, first, s.Current())

	_, ok, _ := c.Get(ctx, cache.PrefixQuery+"filter:x")
	assert.False(t, ok, "query cache should be invalidated")

	raw, ok, _ := c.Get(ctx, cache.PrefixSnapshot)
	require.True(t, ok)
	assert.Contains(t, raw, `"address":"a"`)

	second := testSnapshot("c")
	require.NoError(t, s.Replace(ctx, second))
	assert.Same(t, second, s.Current())
	// the first value is untouched
	assert.Equal(t, 2, first.Len())
}

func TestStore_WarmFromCache(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory()

	producer := NewStore(Options{Cache: c})
	require.NoError(t, producer.Replace(ctx, testSnapshot("a", "b")))

	restarted := NewStore(Options{Cache: c})
	require.Nil(t, restarted.Current())

	assert.Equal(t, 2, restarted.Cached(ctx).Len())
	assert.True(t, restarted.Warm(ctx))
	require.NotNil(t, restarted.Current())
	_, found := restarted.Current().Find("B")
	assert.True(t, found)
}

func TestStore_NoCache(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Options{})

	assert.Nil(t, s.Cached(ctx))
	assert.False(t, s.Warm(ctx))

	require.NoError(t, s.Replace(ctx, testSnapshot("a")))
	assert.Equal(t, 1, s.Cached(ctx).Len())
}

type failingCache struct{ cache.Cache }

func (failingCache) Set(context.Context, string, string, time.Duration) error {
	return errors.New("down")
}

func TestStore_ReplaceSwapsEvenWhenCacheFails(t *testing.T) {
	s := NewStore(Options{Cache: failingCache{cache.NewMemory()}})

	snap := testSnapshot("a")
	err := s.Replace(context.Background(), snap)
	assert.Error(t, err)
	assert.Same(t, snap, s.Current())
}

func TestStore_ReplaceInvalidatesWhenWriteFails(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory()
	require.NoError(t, mem.Set(ctx, cache.PrefixQuery+"filter:x", "stale", 0))
	s := NewStore(Options{Cache: failingCache{mem}})

	snap := testSnapshot("a")
	err := s.Replace(ctx, snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache snapshot")
	assert.Same(t, snap, s.Current())

	_, ok, _ := mem.Get(ctx, cache.PrefixQuery+"filter:x")
	assert.False(t, ok, "query cache should be invalidated")
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMemory() (*Memory, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	m := NewMemory()
	m.now = clock.now
	return m, clock
}

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory()

	_, ok, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", "v", 0))
	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestMemory()

	require.NoError(t, m.Set(ctx, "k", "v", time.Minute))
	clock.advance(59 * time.Second)
	_, ok, _ := m.Get(ctx, "k")
	assert.True(t, ok)

	clock.advance(time.Second)
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestMemory_DeleteByPattern(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory()

	require.NoError(t, m.Set(ctx, PrefixQuery+"a", "1", 0))
	require.NoError(t, m.Set(ctx, PrefixQuery+"b", "2", 0))
	require.NoError(t, m.Set(ctx, PrefixSnapshot, "3", 0))

	n, err := m.DeleteByPattern(ctx, PrefixQuery+"*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, _ := m.Get(ctx, PrefixSnapshot)
	assert.True(t, ok)

	_, err = m.DeleteByPattern(ctx, "[")
	assert.Error(t, err)
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory()

	require.NoError(t, m.Set(ctx, "a", "1", 0))
	require.NoError(t, m.Delete(ctx, "a", "missing"))
	_, ok, _ := m.Get(ctx, "a")
	assert.False(t, ok)
}

func TestMemory_IncrementWithExpiry(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestMemory()

	for want := int64(1); want <= 3; want++ {
		n, err := m.IncrementWithExpiry(ctx, "rl", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	// window does not slide on later hits
	clock.advance(time.Minute)
	n, err := m.IncrementWithExpiry(ctx, "rl", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemory_IncrementNonNumeric(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory()

	require.NoError(t, m.Set(ctx, "k", "abc", 0))
	_, err := m.IncrementWithExpiry(ctx, "k", time.Minute)
	assert.Error(t, err)
}

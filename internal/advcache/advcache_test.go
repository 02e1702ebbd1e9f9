package advcache_test

import (
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/testutil/faketime"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/advblocker/advfilter/internal/advcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Constants used in tests.
const (
	key = "key"
	val = 123

	nonExistingKey = "nonExistingKey"

	ttl = 100 * time.Millisecond
)

// newFakeClock returns a clock that returns now and a function to move it.
func newFakeClock() (c *faketime.Clock, advance func(d time.Duration)) {
	now := time.Now()
	c = &faketime.Clock{
		OnNow: func() (n time.Time) { return now },
	}

	return c, func(d time.Duration) { now = now.Add(d) }
}

// testCache checks the common behavior of the cache implementations.
func testCache(t *testing.T, cache advcache.Interface[string, int], advance func(d time.Duration)) {
	t.Helper()

	cache.Set(key, val)
	assert.Equal(t, 1, cache.Len())

	v, ok := cache.Get(key)
	assert.True(t, ok)
	assert.Equal(t, val, v)

	v, ok = cache.Get(nonExistingKey)
	assert.False(t, ok)
	assert.Zero(t, v)

	cache.Delete(key)
	_, ok = cache.Get(key)
	assert.False(t, ok)

	cache.SetWithExpire(key, val, ttl)
	_, ok = cache.Get(key)
	assert.True(t, ok)

	advance(2 * ttl)
	_, ok = cache.Get(key)
	assert.False(t, ok)

	cache.Set(key, val)
	cache.Clear()
	assert.Zero(t, cache.Len())
}

func TestLRU(t *testing.T) {
	t.Parallel()

	clock, advance := newFakeClock()
	cache := advcache.NewLRU[string, int](&advcache.LRUConfig{
		Clock: clock,
		Size:  10,
	})

	testCache(t, cache, advance)
}

func TestLRU_nilValue(t *testing.T) {
	t.Parallel()

	cache := advcache.NewLRU[string, *int](&advcache.LRUConfig{
		Size: 10,
	})

	cache.Set(key, nil)

	v, ok := cache.Get(key)
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestExpiring(t *testing.T) {
	t.Parallel()

	clock, advance := newFakeClock()
	cache, err := advcache.NewExpiring[string, int](&advcache.ExpiringConfig{
		Clock: clock,
		Size:  10,
	})
	require.NoError(t, err)

	testCache(t, cache, advance)
}

func TestEmpty(t *testing.T) {
	t.Parallel()

	cache := advcache.Empty[string, int]{}
	cache.Set(key, val)

	_, ok := cache.Get(key)
	assert.False(t, ok)
	assert.Zero(t, cache.Len())
}

func TestDefaultManager(t *testing.T) {
	t.Parallel()

	const cacheID = "cacheID"

	cache := advcache.NewLRU[string, int](&advcache.LRUConfig{
		Size: 10,
	})
	cache.Set(key, val)

	other, err := advcache.NewExpiring[string, int](&advcache.ExpiringConfig{
		Clock: timeutil.SystemClock{},
		Size:  10,
	})
	require.NoError(t, err)

	other.Set(key, val)

	m := advcache.NewDefaultManager()
	m.Add(cacheID, cache)
	m.Add("other", other)
	assert.Equal(t, []string{cacheID, "other"}, m.IDs())

	m.ClearByID(cacheID)
	assert.Zero(t, cache.Len())
	assert.Equal(t, 1, other.Len())

	assert.NotPanics(t, func() { m.ClearByID("non_existing_cache_id") })

	m.ClearAll()
	assert.Zero(t, other.Len())
}

func BenchmarkLRU(b *testing.B) {
	cache := advcache.NewLRU[int, int](&advcache.LRUConfig{
		Size: 10_000,
	})

	var ok bool

	b.ReportAllocs()
	for i := 0; b.Loop(); i++ {
		cache.Set(i, i)
		_, ok = cache.Get(i)
	}

	assert.True(b, ok)
}

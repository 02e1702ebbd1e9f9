package advcache

import (
	"fmt"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/bluele/gcache"
)

// LRUConfig is the configuration of an [LRU] cache.
type LRUConfig struct {
	// Clock is used to expire the items.  If nil, the system clock is used.
	Clock timeutil.Clock

	// Size is the maximum number of items.  It must be positive.
	Size int
}

// LRU is an [Interface] implementation based on a gcache LRU cache.  Values
// may be nil.
type LRU[K, T any] struct {
	cache gcache.Cache
}

// NewLRU returns a new LRU cache.  c must not be nil.
func NewLRU[K, T any](c *LRUConfig) (cache *LRU[K, T]) {
	b := gcache.New(c.Size).LRU()
	if c.Clock != nil {
		b = b.Clock(c.Clock)
	}

	return &LRU[K, T]{
		cache: b.Build(),
	}
}

// type check
var _ Interface[any, any] = (*LRU[any, any])(nil)

// Clear implements the [Interface] interface for *LRU.
func (c *LRU[K, T]) Clear() {
	c.cache.Purge()
}

// Get implements the [Interface] interface for *LRU.
func (c *LRU[K, T]) Get(key K) (val T, ok bool) {
	v, err := c.cache.Get(key)
	if errors.Is(err, gcache.KeyNotFoundError) {
		return val, false
	} else if err != nil {
		// Shouldn't happen, since there is no loader function.
		panic(fmt.Errorf("advcache: getting item: %w", err))
	}

	// v is nil for nil values of interface and pointer types, which can't be
	// asserted to T.
	if v == nil {
		return val, true
	}

	return v.(T), true
}

// Set implements the [Interface] interface for *LRU.
func (c *LRU[K, T]) Set(key K, val T) {
	err := c.cache.Set(key, val)
	if err != nil {
		// Shouldn't happen, since there is no serialization function.
		panic(fmt.Errorf("advcache: setting item: %w", err))
	}
}

// SetWithExpire implements the [Interface] interface for *LRU.
func (c *LRU[K, T]) SetWithExpire(key K, val T, ttl time.Duration) {
	err := c.cache.SetWithExpire(key, val, ttl)
	if err != nil {
		// Shouldn't happen, since there is no serialization function.
		panic(fmt.Errorf("advcache: setting item with expiration: %w", err))
	}
}

// Delete implements the [Interface] interface for *LRU.
func (c *LRU[K, T]) Delete(key K) {
	_ = c.cache.Remove(key)
}

// Len implements the [Interface] interface for *LRU.
func (c *LRU[K, T]) Len() (n int) {
	return c.cache.Len(false)
}

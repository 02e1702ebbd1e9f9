package advcache

import (
	"fmt"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/viktordanov/golang-lru/simplelru"
)

// ExpiringConfig is the configuration of an [Expiring] cache.
type ExpiringConfig struct {
	// Clock is used to expire the items.  It must not be nil.
	Clock timeutil.Clock

	// Size is the maximum number of items.  It must be positive.
	Size int
}

// expiringItem is a value with its expiration time.
type expiringItem[T any] struct {
	val T

	// deadline is the expiration time in Unix nanoseconds.  Zero means no
	// expiration.
	deadline int64
}

// Expiring is an [Interface] implementation based on a simple LRU cache
// protected by a mutex.  It's cheaper than [LRU] for caches with a lot of
// expiring items.
type Expiring[K comparable, T any] struct {
	clock timeutil.Clock

	// mu protects cache.
	mu    *sync.Mutex
	cache *simplelru.LRU[K, expiringItem[T]]
}

// NewExpiring returns a new expiring cache.  c must not be nil.
func NewExpiring[K comparable, T any](c *ExpiringConfig) (cache *Expiring[K, T], err error) {
	lru, err := simplelru.NewLRU[K, expiringItem[T]](c.Size, nil)
	if err != nil {
		return nil, fmt.Errorf("advcache: creating lru: %w", err)
	}

	return &Expiring[K, T]{
		clock: c.Clock,
		mu:    &sync.Mutex{},
		cache: lru,
	}, nil
}

// type check
var _ Interface[any, any] = (*Expiring[any, any])(nil)

// Clear implements the [Interface] interface for *Expiring.
func (c *Expiring[K, T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Purge()
}

// Get implements the [Interface] interface for *Expiring.  Expired items are
// removed.
func (c *Expiring[K, T]) Get(key K) (val T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.cache.Get(key)
	if !ok {
		return val, false
	}

	if item.deadline != 0 && c.clock.Now().UnixNano() > item.deadline {
		c.cache.Remove(key)

		return val, false
	}

	return item.val, true
}

// Set implements the [Interface] interface for *Expiring.
func (c *Expiring[K, T]) Set(key K, val T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(key, expiringItem[T]{val: val})
}

// SetWithExpire implements the [Interface] interface for *Expiring.
func (c *Expiring[K, T]) SetWithExpire(key K, val T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(key, expiringItem[T]{
		val:      val,
		deadline: c.clock.Now().Add(ttl).UnixNano(),
	})
}

// Delete implements the [Interface] interface for *Expiring.
func (c *Expiring[K, T]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Remove(key)
}

// Len implements the [Interface] interface for *Expiring.
func (c *Expiring[K, T]) Len() (n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cache.Len()
}

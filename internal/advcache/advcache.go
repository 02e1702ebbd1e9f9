// Package advcache contains the generic caches used by the filtering engine
// and the request adapter, and the manager that clears them by ID.
package advcache

import (
	"time"
)

// Interface is a key-value cache.  All methods must be safe for concurrent
// use.
type Interface[K, T any] interface {
	// Clearer removes every item.
	Clearer

	// Get returns the value for key.  ok is false if there is no such value or
	// if it has expired.
	Get(key K) (val T, ok bool)

	// Set stores val under key without expiration.
	Set(key K, val T)

	// SetWithExpire stores val under key for ttl.
	SetWithExpire(key K, val T, ttl time.Duration)

	// Delete removes the value for key, if any.
	Delete(key K)

	// Len returns the number of stored items, possibly including the expired
	// ones that weren't removed yet.
	Len() (n int)
}

// Clearer is the part of [Interface] used by the [Manager].
type Clearer interface {
	// Clear removes every item.
	Clear()
}

// Empty is an [Interface] implementation that stores nothing.
type Empty[K, T any] struct{}

// type check
var _ Interface[any, any] = Empty[any, any]{}

// Clear implements the [Interface] interface for Empty.
func (Empty[K, T]) Clear() {}

// Get implements the [Interface] interface for Empty.
func (Empty[K, T]) Get(_ K) (val T, ok bool) {
	return val, false
}

// Set implements the [Interface] interface for Empty.
func (Empty[K, T]) Set(_ K, _ T) {}

// SetWithExpire implements the [Interface] interface for Empty.
func (Empty[K, T]) SetWithExpire(_ K, _ T, _ time.Duration) {}

// Delete implements the [Interface] interface for Empty.
func (Empty[K, T]) Delete(_ K) {}

// Len implements the [Interface] interface for Empty.
func (Empty[K, T]) Len() (n int) {
	return 0
}

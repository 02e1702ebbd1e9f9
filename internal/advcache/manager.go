package advcache

import (
	"maps"
	"slices"
	"sync"
)

// Manager keeps track of the caches by their IDs.  All methods must be safe
// for concurrent use.
type Manager interface {
	// Add stores cache under id, replacing the previous one, if any.  cache
	// must not be nil.
	Add(id string, cache Clearer)

	// ClearByID clears the cache with the given id, if there is one.
	ClearByID(id string)
}

// DefaultManager is the [Manager] used in production.
type DefaultManager struct {
	// mu protects caches.
	mu     *sync.Mutex
	caches map[string]Clearer
}

// NewDefaultManager returns a new empty *DefaultManager.
func NewDefaultManager() (m *DefaultManager) {
	return &DefaultManager{
		mu:     &sync.Mutex{},
		caches: map[string]Clearer{},
	}
}

// type check
var _ Manager = (*DefaultManager)(nil)

// Add implements the [Manager] interface for *DefaultManager.
func (m *DefaultManager) Add(id string, cache Clearer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.caches[id] = cache
}

// ClearByID implements the [Manager] interface for *DefaultManager.
func (m *DefaultManager) ClearByID(id string) {
	m.mu.Lock()
	cache := m.caches[id]
	m.mu.Unlock()

	if cache != nil {
		cache.Clear()
	}
}

// ClearAll clears every stored cache.
func (m *DefaultManager) ClearAll() {
	m.mu.Lock()
	caches := slices.Collect(maps.Values(m.caches))
	m.mu.Unlock()

	for _, c := range caches {
		c.Clear()
	}
}

// IDs returns the sorted IDs of the stored caches.
func (m *DefaultManager) IDs() (ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Sorted(maps.Keys(m.caches))
}

// EmptyManager is the [Manager] that does nothing.
type EmptyManager struct{}

// type check
var _ Manager = EmptyManager{}

// Add implements the [Manager] interface for EmptyManager.
func (EmptyManager) Add(_ string, _ Clearer) {}

// ClearByID implements the [Manager] interface for EmptyManager.
func (EmptyManager) ClearByID(_ string) {}

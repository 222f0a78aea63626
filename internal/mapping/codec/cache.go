package codec

import (
	"reflect"

	"github.com/conduit-lang/docmap/internal/store"
)

// EntityCache is the identity map of one decode call. It maps keys to the instances
// being or already populated, so that a key resolves to a single live instance and
// reference cycles close on it. It also remembers which keys are known to be missing.
// An EntityCache is never shared between calls or goroutines.
type EntityCache struct {
	entities map[string]reflect.Value
	exists   map[string]bool
	hits     int
	misses   int
}

// CacheStats summarises the activity of an EntityCache
type CacheStats struct {
	Entities int
	Hits     int
	Misses   int
}

// NewEntityCache creates an empty cache
func NewEntityCache() *EntityCache {
	return &EntityCache{
		entities: make(map[string]reflect.Value),
		exists:   make(map[string]bool),
	}
}

// Get returns the instance registered for key
func (c *EntityCache) Get(key store.Key) (reflect.Value, bool) {
	v, ok := c.entities[key.String()]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

// Put registers the instance for key. It must be called before the instance is
// populated.
func (c *EntityCache) Put(key store.Key, instance reflect.Value) {
	s := key.String()
	c.entities[s] = instance
	c.exists[s] = true
}

// Exists returns the memoised existence of key; known is false when key was never
// looked up
func (c *EntityCache) Exists(key store.Key) (exists bool, known bool) {
	exists, known = c.exists[key.String()]
	return exists, known
}

// SetExists records whether key exists in the store
func (c *EntityCache) SetExists(key store.Key, exists bool) {
	c.exists[key.String()] = exists
}

// Len returns the number of registered instances
func (c *EntityCache) Len() int {
	return len(c.entities)
}

// Stats returns the cache statistics
func (c *EntityCache) Stats() CacheStats {
	return CacheStats{
		Entities: len(c.entities),
		Hits:     c.hits,
		Misses:   c.misses,
	}
}

// Flush drops every entry and resets the statistics
func (c *EntityCache) Flush() {
	c.entities = make(map[string]reflect.Value)
	c.exists = make(map[string]bool)
	c.hits = 0
	c.misses = 0
}

// Package cache is a keyed read-through cache for remote views.
//
// Every write to a key bumps that key's generation. A load records the
// generation it started under and only stores its result if the generation
// is unchanged when it finishes, so a slow load can never overwrite a newer
// Set, Update, Invalidate or Evict. Concurrent loads of the same key and
// generation share one call to the loader.
package cache

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Loader fetches the authoritative value for key.
type Loader[V any] func(ctx context.Context, key string) (V, error)

type entry[V any] struct {
	value V
	valid bool
}

type Cache[V any] struct {
	load  Loader[V]
	clone func(V) V
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry[V]
	gens    map[string]uint64
}

// New returns a cache backed by load. clone, if non-nil, is applied to
// every value handed in or out so callers never share cached memory.
func New[V any](load Loader[V], clone func(V) V) *Cache[V] {
	return &Cache[V]{
		load:    load,
		clone:   clone,
		entries: make(map[string]*entry[V]),
		gens:    make(map[string]uint64),
	}
}

func (c *Cache[V]) copy(v V) V {
	if c.clone == nil {
		return v
	}
	return c.clone(v)
}

// Get returns the cached value for key, loading it when missing or
// invalidated.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.valid {
		v := c.copy(e.value)
		c.mu.Unlock()
		return v, nil
	}
	gen := c.gens[key]
	c.mu.Unlock()

	res, err, _ := c.group.Do(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		v, err := c.load(ctx, key)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gens[key] != gen {
			// Superseded while loading; keep the newer state.
			if e, ok := c.entries[key]; ok && e.valid {
				return e.value, nil
			}
			return v, nil
		}
		c.entries[key] = &entry[V]{value: v, valid: true}
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copy(res.(V)), nil
}

// Peek returns whatever is cached for key, including values that have been
// invalidated but not yet reloaded. It never loads.
func (c *Cache[V]) Peek(key string) (v V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return v, false
	}
	return c.copy(e.value), true
}

// Fresh reports whether key holds a valid value.
func (c *Cache[V]) Fresh(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.valid
}

// Set stores v as the valid value for key.
func (c *Cache[V]) Set(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	c.entries[key] = &entry[V]{value: c.copy(v), valid: true}
}

// Update replaces the cached value for key with fn applied to a copy of
// it. It reports false, and does nothing, when key holds no value.
// Validity is preserved.
func (c *Cache[V]) Update(key string, fn func(V) V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.gens[key]++
	c.entries[key] = &entry[V]{value: fn(c.copy(e.value)), valid: e.valid}
	return true
}

// Invalidate marks key stale so the next Get reloads it. The stale value
// stays visible through Peek until then.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	if e, ok := c.entries[key]; ok {
		e.valid = false
	}
}

// Evict drops key entirely. Loads in flight for it are discarded.
func (c *Cache[V]) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	delete(c.entries, key)
}

// Keys returns the cached keys in no particular order.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Package cache implements a pinnable, TTL-expiring cache of arbitrary
// values keyed by string, used to memoize the results of lookups whose
// underlying objects don't change often (resolved bucket/container ids,
// listing roots).
package cache

import (
	"strings"
	"sync"
	"time"
)

// CreateFunc builds the value for a cache miss. It returns the value,
// whether that value should actually be cached, and an error. Errors can
// be cached too: a CreateFunc may return ok=true alongside a non-nil err
// so that a persistent failure isn't retried on every call.
type CreateFunc func(path string) (value interface{}, ok bool, err error)

type cacheEntry struct {
	value    interface{}
	err      error
	lastUsed time.Time
	pinCount int
}

// Cache is a string-keyed cache with optional TTL-based expiry and
// per-entry pinning to exempt hot entries from expiry.
type Cache struct {
	mu             sync.Mutex
	cache          map[string]*cacheEntry
	expireRunning  bool
	expireDuration time.Duration
	expireInterval time.Duration
}

// New returns an empty Cache with a 300s expiry and a 60s sweep interval.
func New() *Cache {
	return &Cache{
		cache:          make(map[string]*cacheEntry),
		expireDuration: 300 * time.Second,
		expireInterval: 60 * time.Second,
	}
}

// SetExpireDuration sets how old an entry may get before it is swept.
// 0 or negative disables caching entirely.
func (c *Cache) SetExpireDuration(age time.Duration) *Cache {
	c.mu.Lock()
	c.expireDuration = age
	c.mu.Unlock()
	return c
}

// SetExpireInterval sets how often the sweep runs while the cache is
// non-empty.
func (c *Cache) SetExpireInterval(interval time.Duration) *Cache {
	c.mu.Lock()
	c.expireInterval = interval
	c.mu.Unlock()
	return c
}

func (c *Cache) noCache() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expireDuration <= 0
}

// Get returns the cached value for path, calling create on a miss. The
// created value is only stored if create reports ok and the cache isn't
// disabled via SetExpireDuration(0).
func (c *Cache) Get(path string, create CreateFunc) (value interface{}, err error) {
	c.mu.Lock()
	if entry, found := c.cache[path]; found {
		entry.lastUsed = time.Now()
		value, err = entry.value, entry.err
		c.mu.Unlock()
		return value, err
	}
	c.mu.Unlock()

	value, ok, err := create(path)
	if ok && !c.noCache() {
		c.mu.Lock()
		c.cache[path] = &cacheEntry{value: value, err: err, lastUsed: time.Now()}
		c.mu.Unlock()
		c.kickExpire()
	}
	return value, err
}

// Put inserts value directly into the cache, bypassing create.
func (c *Cache) Put(path string, value interface{}) {
	if c.noCache() {
		return
	}
	c.mu.Lock()
	c.cache[path] = &cacheEntry{value: value, lastUsed: time.Now()}
	c.mu.Unlock()
	c.kickExpire()
}

// GetMaybe returns the cached value for path without calling create.
func (c *Cache) GetMaybe(path string) (value interface{}, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, found := c.cache[path]
	if !found {
		return nil, false
	}
	entry.lastUsed = time.Now()
	return entry.value, true
}

// Pin exempts path's entry, if present, from expiry until Unpin is
// called a matching number of times.
func (c *Cache) Pin(path string) {
	c.mu.Lock()
	if entry, found := c.cache[path]; found {
		entry.pinCount++
	}
	c.mu.Unlock()
}

// Unpin reverses one Pin call.
func (c *Cache) Unpin(path string) {
	c.mu.Lock()
	if entry, found := c.cache[path]; found && entry.pinCount > 0 {
		entry.pinCount--
	}
	c.mu.Unlock()
}

// Delete removes path's entry, returning whether it was present.
func (c *Cache) Delete(path string) bool {
	c.mu.Lock()
	_, found := c.cache[path]
	if found {
		delete(c.cache, path)
	}
	c.mu.Unlock()
	return found
}

// DeletePrefix removes every entry whose key has the given prefix,
// returning how many were removed.
func (c *Cache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	n := 0
	for k := range c.cache {
		if strings.HasPrefix(k, prefix) {
			delete(c.cache, k)
			n++
		}
	}
	c.mu.Unlock()
	return n
}

// Rename moves oldName's entry to newName. If newName already has an
// entry, oldName's entry is discarded and the existing destination
// value is returned instead of being overwritten.
func (c *Cache) Rename(oldName, newName string) (value interface{}, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	oldEntry, ok := c.cache[oldName]
	if !ok {
		return nil, false
	}
	delete(c.cache, oldName)
	if existing, ok := c.cache[newName]; ok {
		return existing.value, true
	}
	c.cache[newName] = oldEntry
	return oldEntry.value, true
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.cache = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

// Entries reports how many entries are currently cached.
func (c *Cache) Entries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// kickExpire starts the sweep loop if it isn't already running.
func (c *Cache) kickExpire() {
	c.mu.Lock()
	if !c.expireRunning {
		time.AfterFunc(c.expireInterval, c.cacheExpire)
		c.expireRunning = true
	}
	c.mu.Unlock()
}

// cacheExpire sweeps entries older than expireDuration (skipping pinned
// ones) and reschedules itself while entries remain.
func (c *Cache) cacheExpire() {
	c.mu.Lock()
	var stale []string
	for name, entry := range c.cache {
		if entry.pinCount == 0 && time.Since(entry.lastUsed) > c.expireDuration {
			stale = append(stale, name)
		}
	}
	for _, name := range stale {
		delete(c.cache, name)
	}
	if len(c.cache) != 0 {
		time.AfterFunc(c.expireInterval, c.cacheExpire)
		c.expireRunning = true
	} else {
		c.expireRunning = false
	}
	c.mu.Unlock()
}

// Package dircache implements the shared, server-keyed directory-listing
// cache described in spec.md §3 and §4.1: an LRU+TTL cache with
// fine-grained mutation operations that protocol operations call to keep
// cached listings coherent with the commands the engine has issued.
package dircache

import (
	"sync"
	"time"

	"github.com/transferengine/core/internal/direntry"
	"github.com/transferengine/core/internal/enginepath"
	"github.com/transferengine/core/internal/serverid"
)

const (
	minTTL     = 30 * time.Second
	maxTTL     = 24 * time.Hour
	defaultTTL = 10 * time.Minute

	evictAbsoluteEntries = 50_000
	evictFilesHigh       = 5_000_000
	evictEntriesLow      = 100
	evictFilesMid        = 1_000_000
	evictEntriesMid      = 1_000
)

type entry struct {
	listing *direntry.Listing
	// modTime is the monotonic "last touched" time reported by
	// Cache.GetChangeTime; TTL evaluation uses listing.FirstListTime.
	modTime time.Time
	elem    *listElem
}

// listElem is a thin alias so cache.go does not need to import
// container/list directly; defined in lru.go.
type listElem = listElementHandle

type bucket struct {
	server  serverid.Server
	entries map[string]*entry // keyed by Path.SafePath()
}

// Cache is the directory-listing cache. The zero value is not usable; use
// New.
type Cache struct {
	mu        sync.Mutex
	buckets   map[string]*bucket // keyed by serverid.Server.Key()
	lru       *lru
	fileCount int
	ttl       time.Duration
	now       func() time.Time
}

// New returns an empty cache with the default TTL.
func New() *Cache {
	return &Cache{
		buckets: make(map[string]*bucket),
		lru:     newLRU(),
		ttl:     defaultTTL,
		now:     time.Now,
	}
}

// SetTTL clamps d into [30s, 24h] and installs it.
func (c *Cache) SetTTL(d time.Duration) {
	if d < minTTL {
		d = minTTL
	}
	if d > maxTTL {
		d = maxTTL
	}
	c.mu.Lock()
	c.ttl = d
	c.mu.Unlock()
}

// FileCount returns the externally observable total entry count, for
// testing invariant P2.
func (c *Cache) FileCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fileCount
}

// LRULen returns the number of live LRU nodes, for testing invariant P3.
func (c *Cache) LRULen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.len()
}

func (c *Cache) bucketFor(s serverid.Server, create bool) *bucket {
	key := s.Key()
	b, ok := c.buckets[key]
	if !ok {
		if !create {
			return nil
		}
		b = &bucket{server: s, entries: make(map[string]*entry)}
		c.buckets[key] = b
	}
	return b
}

func (c *Cache) dropBucketIfEmpty(s serverid.Server) {
	key := s.Key()
	if b, ok := c.buckets[key]; ok && len(b.entries) == 0 {
		delete(c.buckets, key)
	}
}

// Store inserts or replaces the listing for (server, listing.Path).
func (c *Cache) Store(server serverid.Server, listing direntry.Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.bucketFor(server, true)
	key := listing.Path.SafePath()
	now := c.now()
	if old, ok := b.entries[key]; ok {
		c.fileCount -= len(old.listing.Entries)
		old.listing = listing.Clone()
		if old.listing.FirstListTime.IsZero() {
			old.listing.FirstListTime = now
		}
		old.modTime = now
		c.lru.moveToTail(old.elem)
		c.fileCount += len(old.listing.Entries)
	} else {
		cl := listing.Clone()
		if cl.FirstListTime.IsZero() {
			cl.FirstListTime = now
		}
		e := &entry{listing: cl, modTime: now}
		e.elem = c.lru.pushTailHandle(lruKey{server: server.Key(), path: key})
		b.entries[key] = e
		c.fileCount += len(cl.Entries)
	}
	c.prune()
}

// Lookup returns a deep copy of the cached listing for (server, path).
// allowUnsure controls whether a listing carrying any unsure_* flag is
// considered present. isOutdated reports whether the listing's age
// exceeds the configured TTL.
func (c *Cache) Lookup(server serverid.Server, path enginepath.Path, allowUnsure bool) (listing direntry.Listing, isOutdated bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.bucketFor(server, false)
	if b == nil {
		return direntry.Listing{}, false, false
	}
	e, found := b.entries[path.SafePath()]
	if !found {
		return direntry.Listing{}, false, false
	}
	if !allowUnsure && e.listing.Flags.AnyUnsure() {
		return direntry.Listing{}, false, false
	}
	c.lru.moveToTail(e.elem)
	outdated := c.now().Sub(e.listing.FirstListTime) > c.ttl
	return *e.listing.Clone(), outdated, true
}

// DoesExist is Lookup without copying the listing body.
func (c *Cache) DoesExist(server serverid.Server, path enginepath.Path) (flags direntry.ListingFlag, isOutdated bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.bucketFor(server, false)
	if b == nil {
		return 0, false, false
	}
	e, found := b.entries[path.SafePath()]
	if !found {
		return 0, false, false
	}
	c.lru.moveToTail(e.elem)
	outdated := c.now().Sub(e.listing.FirstListTime) > c.ttl
	return e.listing.Flags, outdated, true
}

// LookupFile performs the two-pass (case-sensitive, then case-insensitive)
// file search within the cached listing of path.
func (c *Cache) LookupFile(server serverid.Server, path enginepath.Path, filename string) (found direntry.Entry, dirDidExist bool, matchedCase bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.bucketFor(server, false)
	if b == nil {
		return direntry.Entry{}, false, false, false
	}
	e, present := b.entries[path.SafePath()]
	if !present {
		return direntry.Entry{}, false, false, false
	}
	dirDidExist = true
	c.lru.moveToTail(e.elem)
	if i := e.listing.IndexOf(filename); i >= 0 {
		return e.listing.Entries[i], dirDidExist, true, true
	}
	if idxs := e.listing.IndexOfFold(filename); len(idxs) > 0 {
		return e.listing.Entries[idxs[0]], dirDidExist, false, true
	}
	return direntry.Entry{}, dirDidExist, false, false
}

// GetChangeTime returns the entry's last modTime, for cache staleness UIs.
func (c *Cache) GetChangeTime(server serverid.Server, path enginepath.Path) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.bucketFor(server, false)
	if b == nil {
		return time.Time{}, false
	}
	e, ok := b.entries[path.SafePath()]
	if !ok {
		return time.Time{}, false
	}
	return e.modTime, true
}

// InvalidateServer drops the entire bucket for server.
func (c *Cache) InvalidateServer(server serverid.Server) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.bucketFor(server, false)
	if b == nil {
		return
	}
	for _, e := range b.entries {
		c.fileCount -= len(e.listing.Entries)
		c.lru.removeHandle(e.elem)
	}
	delete(c.buckets, server.Key())
}

// prune evicts LRU-head entries until none of the thresholds in spec.md §3
// are exceeded. Must be called with c.mu held.
func (c *Cache) prune() {
	for c.overThreshold() {
		h := c.lru.frontHandle()
		if h == nil {
			return
		}
		k := h.key()
		b, ok := c.buckets[k.server]
		if !ok {
			c.lru.removeHandle(h)
			continue
		}
		e, ok := b.entries[k.path]
		if !ok {
			c.lru.removeHandle(h)
			continue
		}
		c.fileCount -= len(e.listing.Entries)
		delete(b.entries, k.path)
		c.lru.removeHandle(h)
		if len(b.entries) == 0 {
			delete(c.buckets, k.server)
		}
	}
}

func (c *Cache) overThreshold() bool {
	n := c.lru.len()
	if n > evictAbsoluteEntries {
		return true
	}
	if c.fileCount > evictFilesMid && n > evictEntriesMid {
		return true
	}
	if c.fileCount > evictFilesHigh && n > evictEntriesLow {
		return true
	}
	return false
}

// Package pathcache implements the per-server symlink/case-resolution
// cache described in spec.md §3 and §4.2.
package pathcache

import (
	"sync"

	"github.com/transferengine/core/internal/enginepath"
	"github.com/transferengine/core/internal/serverid"
)

type mapKey struct {
	source enginepath.Path
	subdir string
}

// Cache maps (server, source-path, subdir) -> resolved target path.
type Cache struct {
	mu    sync.Mutex
	byKey map[string]map[mapKey]enginepath.Path
}

// New returns an empty path cache.
func New() *Cache {
	return &Cache{byKey: make(map[string]map[mapKey]enginepath.Path)}
}

// Store records that (source, subdir) resolves to target for server. An
// empty subdir records the canonical/resolved form of source itself.
func (c *Cache) Store(server serverid.Server, target, source enginepath.Path, subdir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.byKey[server.Key()]
	if !ok {
		m = make(map[mapKey]enginepath.Path)
		c.byKey[server.Key()] = m
	}
	m[mapKey{source: source, subdir: subdir}] = target
}

// Lookup returns the cached target for (server, source, subdir).
func (c *Cache) Lookup(server serverid.Server, source enginepath.Path, subdir string) (enginepath.Path, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.byKey[server.Key()]
	if !ok {
		return enginepath.Path{}, false
	}
	t, ok := m[mapKey{source: source, subdir: subdir}]
	return t, ok
}

// InvalidatePath erases the direct (path, subdir) mapping and every
// mapping whose source or target equals, or is beneath, the resolved
// target: the stored target of (path, subdir) if there is one, else
// path/subdir.
// This is O(n) in the server's map size, an accepted cost per spec.md
// §4.2.
func (c *Cache) InvalidatePath(server serverid.Server, path enginepath.Path, subdir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.byKey[server.Key()]
	if !ok {
		return
	}
	key := mapKey{source: path, subdir: subdir}
	target, hasStored := m[key]
	if !hasStored {
		target = path
		if subdir != "" {
			target = path.AddSegment(subdir)
		}
	}
	delete(m, key)
	for k, v := range m {
		if underOrEqual(k.source, target) || underOrEqual(v, target) {
			delete(m, k)
		}
	}
	if len(m) == 0 {
		delete(c.byKey, server.Key())
	}
}

func underOrEqual(p, base enginepath.Path) bool {
	return p.Equal(base) || base.IsParentOf(p, false)
}

// InvalidateServer drops every mapping for server.
func (c *Cache) InvalidateServer(server serverid.Server) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byKey, server.Key())
}

// Clear drops every mapping for every server.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey = make(map[string]map[mapKey]enginepath.Path)
}

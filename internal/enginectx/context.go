// Package enginectx bundles the per-process services every engine in a
// process shares, per spec.md §2's "Engine context" layer: caches, the
// capability registry, the rate limiter, the cache-lock table, the
// configuration oracle, and the event loop.
//
// DESIGN NOTES §9 ("Shared global state") calls for passing this context
// by reference through session constructors instead of using process
// singletons; Context is that object.
package enginectx

import (
	"sync"
	"time"

	"github.com/transferengine/core/internal/capability"
	"github.com/transferengine/core/internal/config"
	"github.com/transferengine/core/internal/dircache"
	"github.com/transferengine/core/internal/eventloop"
	"github.com/transferengine/core/internal/opstack"
	"github.com/transferengine/core/internal/pathcache"
	"github.com/transferengine/core/internal/ratelimit"
	"github.com/transferengine/core/internal/serverid"
)

// Context is the shared-service bundle of spec.md §2/§9.
type Context struct {
	DirCache     *dircache.Cache
	PathCache    *pathcache.Cache
	Capabilities *capability.Registry
	RateLimiter  *ratelimit.Limiter
	Locks        *opstack.LockTable
	Loop         *eventloop.Loop
	Options      config.Options

	mu             sync.Mutex
	recentFailures []FailedLogin
	liveEngines    map[string]EngineHandle
}

// FailedLogin is one entry in the process-global "recent failed logins"
// list of spec.md §4.5, guarded (per spec.md §5) by the same mutex as the
// live-engine list.
type FailedLogin struct {
	Server    serverid.Server
	Timestamp int64 // unix nanos; monotonic source supplied by caller
	Critical  bool
}

// EngineHandle is the minimal surface Context needs from a live engine to
// support cross-engine coordination (current-working-directory
// invalidation on mutating operations, exclusive-engine borrow).
type EngineHandle interface {
	ID() string
	Server() (serverid.Server, bool)
	CurrentPath() (path string, ok bool)
	InvalidateCurrentWorkingDir(path string)
}

// New builds a Context from its component services and the resolved
// option set.
func New(opts config.Options) *Context {
	dc := dircache.New()
	dc.SetTTL(time.Duration(opts.CacheTTLSeconds) * time.Second)
	return &Context{
		DirCache:     dc,
		PathCache:    pathcache.New(),
		Capabilities: capability.New(),
		RateLimiter:  ratelimit.New(opts.SpeedLimitInbound, opts.SpeedLimitOutbound),
		Locks:        opstack.NewLockTable(),
		Loop:         eventloop.New(),
		Options:      opts,
		liveEngines:  make(map[string]EngineHandle),
	}
}

// RegisterEngine adds a live engine so other sessions can invalidate its
// current working directory or borrow it, per spec.md §4.2 and §4.6.
func (c *Context) RegisterEngine(h EngineHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liveEngines[h.ID()] = h
}

// UnregisterEngine removes an engine on disconnect/destruction.
func (c *Context) UnregisterEngine(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.liveEngines, id)
}

// InvalidateCurrentWorkingDirs notifies every live engine, other than
// exceptID, whose current directory is path or a descendant of it, per
// spec.md §4.2's "Interaction" paragraph.
func (c *Context) InvalidateCurrentWorkingDirs(exceptID, path string) {
	c.mu.Lock()
	engines := make([]EngineHandle, 0, len(c.liveEngines))
	for id, h := range c.liveEngines {
		if id == exceptID {
			continue
		}
		engines = append(engines, h)
	}
	c.mu.Unlock()
	for _, h := range engines {
		h.InvalidateCurrentWorkingDir(path)
	}
}

// RecordFailedLogin appends to the process-global failed-login list used
// by the engine's retry back-off machinery (spec.md §4.5).
func (c *Context) RecordFailedLogin(f FailedLogin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recentFailures = append(c.recentFailures, f)
}

// RecentFailures returns every recorded failed-login entry for server.
func (c *Context) RecentFailures(server serverid.Server) []FailedLogin {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []FailedLogin
	for _, f := range c.recentFailures {
		if f.Server.Equal(server) {
			out = append(out, f)
		}
	}
	return out
}

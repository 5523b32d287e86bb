package session

import (
	"sync"
	"time"

	"github.com/transferengine/core/internal/enginectx"
	"github.com/transferengine/core/internal/enginelog"
	"github.com/transferengine/core/internal/enginepath"
	"github.com/transferengine/core/internal/eventloop"
	"github.com/transferengine/core/internal/notification"
	"github.com/transferengine/core/internal/opstack"
	"github.com/transferengine/core/internal/serverid"
)

// asyncEvent is what runAsync posts back onto the event loop once a
// blocking Transport call completes.
type asyncEvent struct {
	seq     uint64
	payload any
	err     error
}

// Base holds the state every concrete session (FTP, SFTP, object
// storage) shares: the owning engine context, the current server/path,
// the operation stack, held cache locks, and the notification/log
// plumbing. Concrete sessions embed Base and add their Transport.
type Base struct {
	id        string
	Ctx       *enginectx.Context
	Transport Transport
	Log       *enginelog.Logger

	mu            sync.Mutex
	server        serverid.Server
	serverKnown   bool
	currentPath   enginepath.Path
	pathKnown     bool
	stack         opstack.Stack
	heldLocks     []heldLock
	notifyFn      func(notification.Notification)
	asyncSeq      uint64
	pendingAsyncs map[uint64]bool
}

type heldLock struct {
	path string
	typ  opstack.LockType
}

// NewBase constructs a Base wired to ctx and transport, posting
// notifications to notifyFn and logging through the engine's logger.
func NewBase(id string, ctx *enginectx.Context, transport Transport, logger *enginelog.Logger, notifyFn func(notification.Notification)) *Base {
	b := &Base{
		id:            id,
		Ctx:           ctx,
		Transport:     transport,
		Log:           logger,
		notifyFn:      notifyFn,
		pendingAsyncs: make(map[uint64]bool),
	}
	ctx.Loop.Register(id, b.handleLoopEvent)
	return b
}

// Stack exposes the operation stack for the command dispatcher in
// dispatch.go.
func (b *Base) Stack() *opstack.Stack { return &b.stack }

// Notify posts n to the owning engine's notification queue.
func (b *Base) Notify(n notification.Notification) {
	if b.notifyFn != nil {
		b.notifyFn(n)
	}
}

// Logf is a convenience wrapper around b.Log.Logf for operations.
func (b *Base) Logf(level notification.LogLevel, format string, args ...any) {
	if b.Log != nil {
		b.Log.Logf(level, format, args...)
	}
}

// SetServer/Server record the connected server identity.
func (b *Base) SetServer(s serverid.Server) {
	b.mu.Lock()
	b.server = s
	b.serverKnown = true
	b.mu.Unlock()
}

func (b *Base) Server() (serverid.Server, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.server, b.serverKnown
}

// ClearServer is called on disconnect.
func (b *Base) ClearServer() {
	b.mu.Lock()
	b.server = serverid.Server{}
	b.serverKnown = false
	b.pathKnown = false
	b.mu.Unlock()
}

// SetCurrentPath/CurrentPath record the session's believed working
// directory, used by change-directory's path-cache short-circuit.
func (b *Base) SetCurrentPath(p enginepath.Path) {
	b.mu.Lock()
	b.currentPath = p
	b.pathKnown = true
	b.mu.Unlock()
}

func (b *Base) CurrentPathValue() (enginepath.Path, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentPath, b.pathKnown
}

// ID satisfies enginectx.EngineHandle.
func (b *Base) ID() string { return b.id }

// CurrentPath satisfies enginectx.EngineHandle (string form).
func (b *Base) CurrentPath() (string, bool) {
	p, ok := b.CurrentPathValue()
	if !ok {
		return "", false
	}
	return p.SafePath(), true
}

// InvalidateCurrentWorkingDir satisfies enginectx.EngineHandle: if this
// session's current directory is path or a descendant of it, the
// session forgets it so the next change-directory re-confirms with the
// server instead of trusting a stale path-cache hit.
func (b *Base) InvalidateCurrentWorkingDir(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.pathKnown {
		return
	}
	target := enginepath.New(b.currentPath.Syntax(), path)
	if b.currentPath.SafePath() == path || target.IsParentOf(b.currentPath, false) {
		b.pathKnown = false
	}
}

// AcquireLock attempts the named cache lock for this session, recording
// it on success so ReleaseAll can release everything this session holds
// when its owning operation pops.
func (b *Base) AcquireLock(serverKey, path string, typ opstack.LockType) bool {
	ok := b.Ctx.Locks.TryAcquire(serverKey, path, typ, b.id)
	if ok {
		b.mu.Lock()
		b.heldLocks = append(b.heldLocks, heldLock{path: path, typ: typ})
		b.mu.Unlock()
	}
	return ok
}

// ReleaseLock releases one specific lock this session holds, per
// spec.md §4.4 ("locks are released when the op that took them pops").
func (b *Base) ReleaseLock(serverKey, path string, typ opstack.LockType) {
	prev, _ := b.Ctx.Locks.Holder(serverKey, path, typ)
	waiters := b.Ctx.Locks.Release(serverKey, path, typ, b.id)
	b.mu.Lock()
	for i, h := range b.heldLocks {
		if h.path == path && h.typ == typ {
			b.heldLocks = append(b.heldLocks[:i], b.heldLocks[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	kick := waiters
	if next, ok := b.Ctx.Locks.Holder(serverKey, path, typ); ok && prev == b.id && next != b.id {
		kick = append([]string{next}, waiters...)
	}
	for _, w := range kick {
		// Every session parked on the lock, including the one Release
		// just made holder, gets a lockAvailableEvent; the operation
		// parked on the lock retries it when the event reaches its
		// ParseResponse.
		b.Ctx.Loop.Post(eventloop.Event{Source: w, Payload: lockAvailableEvent{}})
	}
}

// lockAvailableEvent is posted to re-kick a session parked on a cache
// lock once the holder releases it.
type lockAvailableEvent struct{}

// runAsync executes fn on a new goroutine and posts its result back onto
// the event loop as an asyncEvent addressed to this session, letting the
// calling Operation return WouldBlock without blocking the loop. This is
// the generalisation, across all three protocols, of the "subprocess
// reader task" pattern in spec.md §5.
func (b *Base) runAsync(fn func() (any, error)) uint64 {
	b.mu.Lock()
	b.asyncSeq++
	seq := b.asyncSeq
	b.pendingAsyncs[seq] = true
	b.mu.Unlock()

	go func() {
		payload, err := fn()
		b.Ctx.Loop.Post(eventloop.Event{Source: b.id, Payload: asyncEvent{seq: seq, payload: payload, err: err}})
	}()
	return seq
}

// handleLoopEvent is registered with the event loop under this session's
// ID; it feeds every event's payload to the operation stack.
func (b *Base) handleLoopEvent(ev eventloop.Event) {
	b.stack.Feed(ev.Payload)
}

// Connected reports whether Dial has succeeded and Disconnect has not
// since run.
func (b *Base) Connected() bool {
	_, ok := b.Server()
	return ok
}

// Cancel aborts the current operation chain: closes the transport, drops
// every frame of the stack without calling its SubcommandResult, forgets
// the server, and returns Canceled|Disconnected to the caller.
func (b *Base) Cancel() opstack.Result {
	_ = b.Transport.Close()
	b.stack.Reset()
	b.ClearServer()
	return opstack.Canceled | opstack.Disconnected
}

// now is overridable in tests.
var now = time.Now

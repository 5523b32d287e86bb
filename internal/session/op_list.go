package session

import (
	"strings"

	"github.com/transferengine/core/internal/command"
	"github.com/transferengine/core/internal/direntry"
	"github.com/transferengine/core/internal/enginepath"
	"github.com/transferengine/core/internal/notification"
	"github.com/transferengine/core/internal/opstack"
)

// misleadingEmptyListings is the set of error-message fragments known to
// come from servers that report a misleadingly empty listing when the
// data connection was in fact dropped mid-transfer, grounded on the
// source's hard-coded table of misbehaving server software (DESIGN NOTES
// §9's "string-matching heuristics... kept but isolated").
var misleadingEmptyListings = []string{
	"Microsoft FTP Service",
	"Windows_NT",
	"MikroTik",
}

type listState int

const (
	listInit listState = iota
	listWaitChangeDir
	listWaitLock
	listWaitList
	listDone
)

// ListOp implements the directory-listing operation of spec.md §4.4.2: it
// first tries a change-dir through the shared ChangeDirOp sub-operation,
// takes the per-(server,path) list cache lock so concurrent sessions don't
// both re-list the same directory, consults the cache, and otherwise asks
// the transport for a fresh listing before storing it.
type ListOp struct {
	base *Base

	Path    enginepath.Path
	Subdir  string
	Refresh bool

	state    listState
	resolved enginepath.Path
	lockHeld bool
}

func NewListOp(b *Base, path enginepath.Path, subdir string, flags command.ListFlag) *ListOp {
	return &ListOp{base: b, Path: path, Subdir: subdir, Refresh: flags&command.ListRefresh != 0}
}

func (op *ListOp) Name() string { return "List" }

func (op *ListOp) Send() opstack.Result {
	switch op.state {
	case listInit:
		op.state = listWaitChangeDir
		child := NewChangeDirOp(op.base, op.Path, op.Subdir)
		return op.base.Stack().Push(child)
	case listDone:
		return opstack.OK
	default:
		return opstack.WouldBlock
	}
}

func (op *ListOp) afterChangeDir() opstack.Result {
	server, ok := op.base.Server()
	if !ok {
		return opstack.NotConnected
	}
	op.resolved = op.Path
	if op.Subdir != "" {
		op.resolved = op.Path.AddSegment(op.Subdir)
	}
	if cur, known := op.base.CurrentPathValue(); known {
		op.resolved = cur
	}

	if !op.Refresh {
		if _, outdated, hit := op.base.Ctx.DirCache.Lookup(server, op.resolved, false); hit && !outdated {
			op.base.Notify(notification.Notification{Kind: notification.Listing, Path: op.resolved})
			op.state = listDone
			return opstack.OK
		}
	}

	if !op.base.AcquireLock(server.Key(), op.resolved.SafePath(), opstack.LockList) {
		op.state = listWaitLock
		op.base.Stack().SetWait(opstack.WaitingForLock)
		return opstack.WouldBlock
	}
	op.lockHeld = true
	return op.sendList()
}

func (op *ListOp) sendList() opstack.Result {
	op.state = listWaitList
	hidden := op.base.Ctx.Options.ViewHiddenFiles
	op.base.runAsync(func() (any, error) {
		return op.base.Transport.List(op.resolved, hidden)
	})
	return opstack.WouldBlock
}

func (op *ListOp) ParseResponse(event any) opstack.Result {
	if _, isLockWake := event.(lockAvailableEvent); isLockWake {
		if op.state != listWaitLock {
			return opstack.WouldBlock
		}
		server, _ := op.base.Server()
		if !op.base.AcquireLock(server.Key(), op.resolved.SafePath(), opstack.LockList) {
			return opstack.WouldBlock
		}
		op.lockHeld = true
		return op.sendList()
	}

	ev, ok := event.(asyncEvent)
	if !ok {
		return opstack.WouldBlock
	}

	switch op.state {
	case listWaitList:
		op.releaseLock()
		if ev.err != nil {
			if isMisleadingEmptyListingError(ev.err) {
				op.base.Logf(notification.LevelDebugWarning,
					"server reported an empty listing after a possible connection loss (%v); treating as error", ev.err)
			}
			return opstack.Error
		}
		entries, _ := ev.payload.([]direntry.Entry)
		listing := direntry.Listing{Path: op.resolved, Entries: entries}
		if hasDirEntry(entries) {
			listing.Flags |= direntry.ListingHasDirs
		}
		server, _ := op.base.Server()
		op.base.Ctx.DirCache.Store(server, listing)
		op.base.Notify(notification.Notification{Kind: notification.Listing, Path: op.resolved})
		op.state = listDone
		return opstack.OK

	default:
		return opstack.InternalError
	}
}

func isMisleadingEmptyListingError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, frag := range misleadingEmptyListings {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

func (op *ListOp) releaseLock() {
	if !op.lockHeld {
		return
	}
	server, _ := op.base.Server()
	op.base.ReleaseLock(server.Key(), op.resolved.SafePath(), opstack.LockList)
	op.lockHeld = false
}

func (op *ListOp) SubcommandResult(result opstack.Result, child opstack.Operation) opstack.Result {
	if op.state != listWaitChangeDir {
		return opstack.InternalError
	}
	if result.Terminal() && !result.Is(opstack.OK) {
		return result
	}
	return op.afterChangeDir()
}

func hasDirEntry(entries []direntry.Entry) bool {
	for _, e := range entries {
		if e.IsDir() {
			return true
		}
	}
	return false
}

package session

import (
	"os"
	"time"

	"github.com/transferengine/core/internal/capability"
	"github.com/transferengine/core/internal/command"
	"github.com/transferengine/core/internal/dircache"
	"github.com/transferengine/core/internal/enginepath"
	"github.com/transferengine/core/internal/eventloop"
	"github.com/transferengine/core/internal/notification"
	"github.com/transferengine/core/internal/opstack"
)

type transferState int

const (
	xferInit transferState = iota
	xferWaitChangeDir
	xferWaitRemoteSize
	xferWaitRemoteModTime
	xferWaitOverwriteReply
	xferWaitTransfer
	xferWaitSetModTime
	xferDone
)

// AsyncReply answers a pending AsyncRequest notification. It is posted
// back onto a session's event loop the same way a Transport result is, so
// FileTransferOp.ParseResponse sees it like any other event.
type AsyncReply struct {
	RequestID uint64
	Action    command.OverwriteAction
}

// Reply resumes a session parked on an outstanding AsyncRequest. Like
// runAsync, it posts onto the event loop rather than driving the stack
// directly, since a reply typically arrives from a goroutine other than
// the loop's (e.g. a UI callback).
func (b *Base) Reply(r AsyncReply) {
	b.Ctx.Loop.Post(eventloop.Event{Source: b.id, Payload: r})
}

// FileTransferOp implements the upload/download operation of spec.md
// §4.4.3: change-dir, probe the remote file's size/mtime, apply the
// resume policy (including the resume-bug workaround of P13), resolve an
// overwrite conflict, run the transfer, then preserve timestamps.
type FileTransferOp struct {
	base *Base

	LocalPath  string
	RemotePath enginepath.Path
	RemoteFile string
	Direction  command.Direction
	Settings   command.TransferSettings

	state            transferState
	remoteSize       int64
	remoteSizeKnown  bool
	remoteModTime    time.Time
	remoteModTimeOK  bool
	localSize        int64
	localExists      bool
	startOffset      int64
	useRest          bool
	requestID        uint64
	bytesTransferred int64
}

func NewFileTransferOp(b *Base, localPath string, remotePath enginepath.Path, remoteFile string, dir command.Direction, settings command.TransferSettings) *FileTransferOp {
	return &FileTransferOp{
		base:       b,
		LocalPath:  localPath,
		RemotePath: remotePath,
		RemoteFile: remoteFile,
		Direction:  dir,
		Settings:   settings,
	}
}

func (op *FileTransferOp) Name() string { return "FileTransfer" }

func (op *FileTransferOp) Send() opstack.Result {
	switch op.state {
	case xferInit:
		op.state = xferWaitChangeDir
		child := NewChangeDirOp(op.base, op.RemotePath, "")
		return op.base.Stack().Push(child)
	case xferDone:
		return opstack.OK
	default:
		return opstack.WouldBlock
	}
}

func (op *FileTransferOp) SubcommandResult(result opstack.Result, child opstack.Operation) opstack.Result {
	if op.state != xferWaitChangeDir {
		return opstack.InternalError
	}
	if result.Terminal() && !result.Is(opstack.OK) {
		return result
	}
	return op.afterChangeDir()
}

func (op *FileTransferOp) afterChangeDir() opstack.Result {
	if fi, err := os.Stat(op.LocalPath); err == nil {
		op.localExists = true
		op.localSize = fi.Size()
	}

	if !op.base.Transport.Caps().SupportsSize {
		return op.resolveOverwrite()
	}
	op.state = xferWaitRemoteSize
	op.base.runAsync(func() (any, error) {
		return op.base.Transport.Size(op.RemotePath, op.RemoteFile)
	})
	return opstack.WouldBlock
}

func (op *FileTransferOp) ParseResponse(event any) opstack.Result {
	if reply, ok := event.(AsyncReply); ok {
		if op.state != xferWaitOverwriteReply || reply.RequestID != op.requestID {
			return opstack.WouldBlock
		}
		return op.applyOverwriteDecision(reply.Action)
	}

	ev, ok := event.(asyncEvent)
	if !ok {
		return opstack.WouldBlock
	}

	switch op.state {
	case xferWaitRemoteSize:
		if ev.err == nil {
			if sz, ok := ev.payload.(int64); ok {
				op.remoteSize = sz
				op.remoteSizeKnown = true
			}
		}
		if op.base.Transport.Caps().SupportsMDTM {
			op.state = xferWaitRemoteModTime
			op.base.runAsync(func() (any, error) {
				return op.base.Transport.ModTime(op.RemotePath, op.RemoteFile)
			})
			return opstack.WouldBlock
		}
		return op.resolveOverwrite()

	case xferWaitRemoteModTime:
		if ev.err == nil {
			if t, ok := ev.payload.(time.Time); ok {
				op.remoteModTime = t
				op.remoteModTimeOK = true
			}
		}
		return op.resolveOverwrite()

	case xferWaitTransfer:
		if ev.err != nil {
			return opstack.Error
		}
		if n, ok := ev.payload.(int64); ok {
			op.bytesTransferred = n
		}
		return op.afterTransfer()

	case xferWaitSetModTime:
		// Best-effort: a failure here does not fail the whole transfer.
		op.finishNotify()
		op.state = xferDone
		return opstack.OK

	default:
		return opstack.InternalError
	}
}

// resolveOverwrite decides whether the transfer may proceed, matching
// spec.md §4.4.3's check_overwrite_file dispatch: a download onto an
// existing local file, or an upload over a remote file the engine already
// believes exists, asks the configured OverwriteAction.
func (op *FileTransferOp) resolveOverwrite() opstack.Result {
	conflict := false
	switch op.Direction {
	case command.Download:
		conflict = op.localExists && !op.Settings.Resume
	case command.Upload:
		conflict = op.remoteSizeKnown && op.remoteSize >= 0 && !op.Settings.Resume
	}

	if !conflict {
		return op.startTransfer()
	}

	switch op.Settings.OverwriteAction {
	case command.ActionOverwrite:
		return op.applyOverwriteDecision(command.ActionOverwrite)
	case command.ActionResume:
		return op.applyOverwriteDecision(command.ActionResume)
	case command.ActionSkip:
		return op.applyOverwriteDecision(command.ActionSkip)
	default:
		op.requestID++
		op.state = xferWaitOverwriteReply
		op.base.Stack().SetWait(opstack.WaitingForAsyncRequest)
		op.base.Notify(notification.Notification{
			Kind:      notification.AsyncRequest,
			AsyncKind: notification.AsyncFileExists,
			RequestID: op.requestID,
			Path:      op.RemotePath,
		})
		return opstack.WouldBlock
	}
}

func (op *FileTransferOp) applyOverwriteDecision(action command.OverwriteAction) opstack.Result {
	switch action {
	case command.ActionSkip:
		op.state = xferDone
		return opstack.OK
	case command.ActionResume:
		op.Settings.Resume = true
		return op.startTransfer()
	case command.ActionRename:
		switch op.Direction {
		case command.Download:
			op.LocalPath += ".1"
		case command.Upload:
			op.RemoteFile += ".1"
		}
		return op.startTransfer()
	default:
		return op.startTransfer()
	}
}

// startTransfer applies the resume-bug workaround of spec.md §8's P13: a
// resumed upload whose remote size crosses the 2GiB/4GiB boundary reported
// by capability.Resume2GBBug/Resume4GBBug is restarted from zero rather
// than trusted, since some servers wrap the reported size at those
// boundaries.
func (op *FileTransferOp) startTransfer() opstack.Result {
	op.startOffset = 0
	op.useRest = false

	if op.Settings.Resume {
		switch op.Direction {
		case command.Download:
			if op.localExists {
				op.startOffset = op.localSize
			}
		case command.Upload:
			if op.remoteSizeKnown && op.remoteSize > 0 {
				op.startOffset = op.remoteSize
			}
		}
		if op.resumeLooksWrapped() {
			op.startOffset = 0
		}
		if op.startOffset > 0 {
			op.useRest = true
		}
	}

	op.state = xferWaitTransfer
	switch op.Direction {
	case command.Download:
		offset := op.startOffset
		op.base.runAsync(func() (any, error) {
			return op.base.Transport.Retrieve(op.RemotePath, op.RemoteFile, op.LocalPath, offset)
		})
	case command.Upload:
		offset, useRest := op.startOffset, op.useRest
		op.base.runAsync(func() (any, error) {
			return op.base.Transport.Store(op.RemotePath, op.RemoteFile, op.LocalPath, offset, useRest)
		})
	}
	return opstack.WouldBlock
}

func (op *FileTransferOp) resumeLooksWrapped() bool {
	const twoGiB = 1 << 31
	const fourGiB = 1 << 32
	if op.Direction != command.Upload || !op.remoteSizeKnown {
		return false
	}
	server, ok := op.base.Server()
	if !ok {
		return false
	}
	if v := op.base.Ctx.Capabilities.Get(server, capability.Resume2GBBug); v.State == capability.Yes && op.remoteSize >= twoGiB {
		return true
	}
	if v := op.base.Ctx.Capabilities.Get(server, capability.Resume4GBBug); v.State == capability.Yes && op.remoteSize >= fourGiB {
		return true
	}
	return false
}

func (op *FileTransferOp) afterTransfer() opstack.Result {
	server, _ := op.base.Server()

	switch op.Direction {
	case command.Download:
		op.base.Ctx.DirCache.UpdateFile(server, op.RemotePath, op.RemoteFile, true, dircache.TypeFile, op.finalSize())
		if op.Settings.PreserveTimestamps && op.remoteModTimeOK {
			_ = os.Chtimes(op.LocalPath, op.remoteModTime, op.remoteModTime)
		}
		op.finishNotify()
		op.state = xferDone
		return opstack.OK

	case command.Upload:
		op.base.Ctx.DirCache.UpdateFile(server, op.RemotePath, op.RemoteFile, true, dircache.TypeFile, op.finalSize())
		if op.Settings.PreserveTimestamps && op.base.Transport.Caps().SupportsMFMT {
			if fi, err := os.Stat(op.LocalPath); err == nil {
				op.state = xferWaitSetModTime
				mtime := fi.ModTime()
				op.base.runAsync(func() (any, error) {
					return nil, op.base.Transport.SetModTime(op.RemotePath, op.RemoteFile, mtime)
				})
				return opstack.WouldBlock
			}
		}
		op.finishNotify()
		op.state = xferDone
		return opstack.OK
	}
	return opstack.InternalError
}

func (op *FileTransferOp) finalSize() int64 {
	if op.Direction == command.Upload {
		if fi, err := os.Stat(op.LocalPath); err == nil {
			return fi.Size()
		}
		return -1
	}
	return op.startOffset + op.bytesTransferred
}

func (op *FileTransferOp) finishNotify() {
	op.base.Notify(notification.Notification{
		Kind:          notification.TransferStatus,
		StartOffset:   op.startOffset,
		CurrentOffset: op.startOffset + op.bytesTransferred,
		TotalSize:     op.remoteSize,
		MadeProgress:  op.bytesTransferred > 0,
	})
}

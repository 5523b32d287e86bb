package session

import (
	"github.com/transferengine/core/internal/enginepath"
	"github.com/transferengine/core/internal/opstack"
)

// changeDirState enumerates the FTP change-directory states of
// spec.md §4.4.1 ("init -> {pwd | cwd | pwd_cwd | cwd_subdir |
// pwd_subdir}"). SFTP/object-storage transports report
// Caps().NeedsPwdConfirm == false and Caps().SupportsCDUP == false, which
// collapses this into a simple cwd-then-done chain, matching spec.md
// §4.4.5's "simpler linear chains over the same framework".
type changeDirState int

const (
	cdInit changeDirState = iota
	cdWaitCwd
	cdWaitPwdConfirm
	cdWaitSubdirCwd
	cdWaitMkdir
	cdDone
)

// ChangeDirOp is the change-directory operation of spec.md §4.4.1.
type ChangeDirOp struct {
	base *Base

	Target          enginepath.Path
	Subdir          string
	TryMkdirOnFail  bool
	LinkDiscovery   bool

	state        changeDirState
	mkdirPending bool
}

func NewChangeDirOp(b *Base, target enginepath.Path, subdir string) *ChangeDirOp {
	return &ChangeDirOp{base: b, Target: target, Subdir: subdir}
}

func (op *ChangeDirOp) Name() string { return "ChangeDir" }

func (op *ChangeDirOp) Send() opstack.Result {
	switch op.state {
	case cdInit:
		return op.init()
	case cdDone:
		return opstack.OK
	default:
		return opstack.WouldBlock
	}
}

func (op *ChangeDirOp) init() opstack.Result {
	if op.Target.IsEmpty() {
		if !op.base.Transport.Caps().NeedsPwdConfirm {
			op.state = cdDone
			return opstack.OK
		}
		op.state = cdWaitPwdConfirm
		return op.sendPwd()
	}

	server, ok := op.base.Server()
	if !ok {
		return opstack.NotConnected
	}
	if target, hit := op.base.Ctx.PathCache.Lookup(server, op.Target, ""); hit {
		if cur, known := op.base.CurrentPathValue(); known && cur.Equal(target) {
			op.state = cdDone
			return opstack.OK
		}
	}

	op.state = cdWaitCwd
	return op.sendCwd(op.Target)
}

func (op *ChangeDirOp) sendCwd(path enginepath.Path) opstack.Result {
	op.base.runAsync(func() (any, error) {
		err := op.base.Transport.Cwd(path)
		return path, err
	})
	return opstack.WouldBlock
}

func (op *ChangeDirOp) sendPwd() opstack.Result {
	op.base.runAsync(func() (any, error) {
		return op.base.Transport.Pwd()
	})
	return opstack.WouldBlock
}

func (op *ChangeDirOp) ParseResponse(event any) opstack.Result {
	ev, ok := event.(asyncEvent)
	if !ok {
		return opstack.WouldBlock
	}

	switch op.state {
	case cdWaitPwdConfirm:
		if ev.err != nil {
			return opstack.Error
		}
		p := ev.payload.(enginepath.Path)
		op.base.SetCurrentPath(p)
		if op.Subdir != "" {
			op.state = cdWaitSubdirCwd
			return op.sendCwd(p.AddSegment(op.Subdir))
		}
		op.state = cdDone
		return opstack.OK

	case cdWaitCwd:
		if ev.err != nil {
			if op.TryMkdirOnFail && !op.mkdirPending {
				op.mkdirPending = true
				op.state = cdWaitMkdir
				child := NewMkdirOp(op.base, op.Target)
				return op.base.Stack().Push(child)
			}
			if op.LinkDiscovery {
				return opstack.LinkNotDir
			}
			return opstack.Error
		}
		server, _ := op.base.Server()
		op.base.Ctx.PathCache.Store(server, op.Target, op.Target, "")
		op.base.SetCurrentPath(op.Target)
		if op.base.Transport.Caps().NeedsPwdConfirm {
			op.state = cdWaitPwdConfirm
			return op.sendPwd()
		}
		if op.Subdir != "" {
			op.state = cdWaitSubdirCwd
			return op.sendCwd(op.Target.AddSegment(op.Subdir))
		}
		op.state = cdDone
		return opstack.OK

	case cdWaitSubdirCwd:
		if ev.err != nil {
			return opstack.Error
		}
		full := op.Target.AddSegment(op.Subdir)
		server, _ := op.base.Server()
		op.base.Ctx.PathCache.Store(server, full, full, "")
		op.base.SetCurrentPath(full)
		op.state = cdDone
		return opstack.OK

	default:
		return opstack.InternalError
	}
}

func (op *ChangeDirOp) SubcommandResult(result opstack.Result, child opstack.Operation) opstack.Result {
	if op.state != cdWaitMkdir {
		return opstack.InternalError
	}
	if result != opstack.OK {
		return opstack.Error
	}
	op.state = cdWaitCwd
	return op.sendCwd(op.Target)
}

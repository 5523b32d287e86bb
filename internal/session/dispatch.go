package session

import (
	"github.com/transferengine/core/internal/command"
	"github.com/transferengine/core/internal/enginectx"
	"github.com/transferengine/core/internal/notification"
	"github.com/transferengine/core/internal/opstack"
	"github.com/transferengine/core/internal/serverid"
)

// Execute constructs and pushes the top-level Operation for cmd, enforcing
// the command preconditions of spec.md §3 (already_connected/not_connected/
// busy/syntax_error) before the stack ever sees the operation.
func (b *Base) Execute(cmd command.Command) opstack.Result {
	if b.Stack().Len() != 0 || b.Stack().Wait() != opstack.Idle {
		return opstack.Busy
	}

	switch cmd.Kind {
	case command.Connect:
		if b.Connected() {
			return opstack.AlreadyConnected
		}
		return b.Stack().Push(newConnectOp(b, cmd.Server, cmd.Credentials))

	case command.Disconnect:
		if !b.Connected() {
			return opstack.NotConnected
		}
		result := b.Cancel()
		b.Ctx.UnregisterEngine(b.ID())
		return result

	default:
		if !b.Connected() {
			return opstack.NotConnected
		}
	}

	switch cmd.Kind {
	case command.List:
		return b.Stack().Push(NewListOp(b, cmd.Path, cmd.Subdir, cmd.ListFlags))
	case command.FileTransfer:
		return b.Stack().Push(NewFileTransferOp(b, cmd.LocalPath, cmd.RemotePath, cmd.RemoteFile, cmd.Direction, cmd.Settings))
	case command.Raw:
		return b.Stack().Push(NewRawOp(b, cmd.Text))
	case command.Delete:
		if len(cmd.Files) == 0 {
			return opstack.SyntaxError
		}
		return b.Stack().Push(NewDeleteOp(b, cmd.Path, cmd.Files))
	case command.RemoveDir:
		return b.Stack().Push(NewRmdirOp(b, cmd.Path, cmd.Subdir))
	case command.Mkdir:
		return b.Stack().Push(NewMkdirOp(b, cmd.Path))
	case command.Rename:
		return b.Stack().Push(NewRenameOp(b, cmd.FromPath, cmd.FromFile, cmd.ToPath, cmd.ToFile))
	case command.Chmod:
		if cmd.Perm == "" {
			return opstack.SyntaxError
		}
		return b.Stack().Push(NewChmodOp(b, cmd.Path, cmd.File, cmd.Perm))
	default:
		return opstack.SyntaxError
	}
}

type connectState int

const (
	connInit connectState = iota
	connWaitDial
	connDone
)

// connectOp drives Transport.Dial and records the server identity on
// success, per spec.md §4.4's Connect handling.
type connectOp struct {
	base        *Base
	server      serverid.Server
	credentials serverid.Credentials
	state       connectState
}

func newConnectOp(b *Base, server serverid.Server, creds serverid.Credentials) *connectOp {
	return &connectOp{base: b, server: server, credentials: creds}
}

func (op *connectOp) Name() string { return "Connect" }

func (op *connectOp) Send() opstack.Result {
	switch op.state {
	case connInit:
		op.state = connWaitDial
		op.base.runAsync(func() (any, error) {
			return nil, op.base.Transport.Dial(op.server, op.credentials)
		})
		return opstack.WouldBlock
	case connDone:
		return opstack.OK
	default:
		return opstack.WouldBlock
	}
}

func (op *connectOp) ParseResponse(event any) opstack.Result {
	ev, ok := event.(asyncEvent)
	if !ok {
		return opstack.WouldBlock
	}
	if ev.err != nil {
		op.base.Ctx.RecordFailedLogin(failedLoginFrom(op.server))
		op.base.Notify(notification.Notification{Kind: notification.Log, Level: notification.LevelError, Text: ev.err.Error()})
		return opstack.PasswordFailed
	}
	op.base.SetServer(op.server)
	op.base.Ctx.RegisterEngine(op.base)
	op.state = connDone
	return opstack.OK
}

func (op *connectOp) SubcommandResult(opstack.Result, opstack.Operation) opstack.Result {
	return opstack.InternalError
}

func failedLoginFrom(server serverid.Server) enginectx.FailedLogin {
	return enginectx.FailedLogin{Server: server, Timestamp: now().UnixNano()}
}

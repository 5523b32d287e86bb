// Package engine implements the Engine facade of spec.md §4.5: one
// Engine owns exactly one session.Base, queues its notifications for a
// consuming UI/scheduler goroutine, and retries a lost connection with
// the backoff schedule spec.md §4.5 describes, grounded on the source's
// reconnect-on-failure loop around its control socket.
package engine

import (
	"fmt"
	"time"

	"github.com/transferengine/core/internal/command"
	"github.com/transferengine/core/internal/config"
	"github.com/transferengine/core/internal/enginectx"
	"github.com/transferengine/core/internal/enginelog"
	"github.com/transferengine/core/internal/eventloop"
	"github.com/transferengine/core/internal/notification"
	"github.com/transferengine/core/internal/opstack"
	"github.com/transferengine/core/internal/serverid"
	"github.com/transferengine/core/internal/session"
)

// Engine wraps one control session, adding the notification queue and
// the reconnect backoff that sit above the raw Execute/Transport layer.
type Engine struct {
	base   *session.Base
	ctx    *enginectx.Context
	queue  *notifyQueue
	server serverid.Server
	creds  serverid.Credentials

	reconnecting   bool
	reconnectTry   int
	reconnectTimer eventloop.TimerID
}

// New builds an Engine for id, wiring transport into a fresh session.Base
// whose event handler is registered with ctx.Loop. The session joins ctx's
// engine list (used for cross-engine invalidation) only once a Connect
// succeeds.
func New(id string, ctx *enginectx.Context, transport session.Transport, logger *enginelog.Logger) *Engine {
	e := &Engine{ctx: ctx}
	e.queue = newNotifyQueue(func() {})
	e.base = session.NewBase(id, ctx, transport, logger, e.queue.Push)
	return e
}

// ID returns the engine's session id.
func (e *Engine) ID() string { return e.base.ID() }

// Execute forwards cmd to the underlying session, remembering the
// server/credentials on a Connect so ScheduleReconnect can retry them.
func (e *Engine) Execute(cmd command.Command) opstack.Result {
	if cmd.Kind == command.Connect {
		e.server, e.creds = cmd.Server, cmd.Credentials
	}
	return e.base.Execute(cmd)
}

// NextNotification drains the engine's notification queue, per spec.md
// §4.5's "UI polls, engine never calls back into UI code" contract.
func (e *Engine) NextNotification() (notification.Notification, bool) {
	return e.queue.Next()
}

// PendingNotifications reports the current queue depth.
func (e *Engine) PendingNotifications() int { return e.queue.Len() }

// Reply answers a pending AsyncRequest (spec.md §4.4.3's overwrite
// prompt) issued by this engine's active FileTransferOp.
func (e *Engine) Reply(requestID uint64, action command.OverwriteAction) {
	e.base.Reply(session.AsyncReply{RequestID: requestID, Action: action})
}

// Connected reports whether the session currently believes it has a live
// connection.
func (e *Engine) Connected() bool { return e.base.Connected() }

// Server returns the server this engine last connected (or tried to
// connect) to, for the scheduler's "prefer an already-connected engine"
// dispatch rule.
func (e *Engine) Server() serverid.Server { return e.server }

// Cancel aborts whatever the engine is currently doing, per spec.md
// §5's cancellation contract, without unregistering or closing the
// transport the way Close does.
func (e *Engine) Cancel() opstack.Result { return e.base.Cancel() }

// ScheduleReconnect arranges one Connect retry after ReconnectDelaySeconds
// (5s when unset), unless ctx already records ReconnectCount recent
// failures for the server, in which case it queues an error log and gives
// up. The delay is the same for every attempt; it does not grow.
func (e *Engine) ScheduleReconnect(opts config.Options) {
	if e.reconnecting {
		return
	}
	failures := e.ctx.RecentFailures(e.server)
	if opts.ReconnectCount > 0 && len(failures) >= opts.ReconnectCount {
		e.queue.Push(notification.Notification{
			Kind:  notification.Log,
			Level: notification.LevelError,
			Text:  fmt.Sprintf("giving up reconnecting to %s after %d attempts", e.server, len(failures)),
		})
		return
	}

	delay := time.Duration(opts.ReconnectDelaySeconds) * time.Second
	if delay <= 0 {
		delay = 5 * time.Second
	}
	e.reconnecting = true
	e.reconnectTry++
	e.reconnectTimer = e.ctx.Loop.AfterFunc(delay, func() {
		e.reconnecting = false
		e.Execute(command.Command{Kind: command.Connect, Server: e.server, Credentials: e.creds, Retry: true})
	})
}

// CancelReconnect stops a pending reconnect: the retry timer armed by
// ScheduleReconnect is cancelled, so its Connect is never issued, and a
// later ScheduleReconnect may arm a new one.
func (e *Engine) CancelReconnect() {
	if e.reconnecting {
		e.ctx.Loop.Cancel(e.reconnectTimer)
	}
	e.reconnecting = false
}

// Close disconnects the session and unregisters it from ctx.
func (e *Engine) Close() {
	e.base.Cancel()
	e.ctx.UnregisterEngine(e.ID())
}

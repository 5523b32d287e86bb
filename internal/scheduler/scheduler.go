package scheduler

import (
	"time"

	"github.com/transferengine/core/internal/command"
	"github.com/transferengine/core/internal/config"
	"github.com/transferengine/core/internal/engine"
	"github.com/transferengine/core/internal/enginectx"
	"github.com/transferengine/core/internal/enginelog"
	"github.com/transferengine/core/internal/eventloop"
	"github.com/transferengine/core/internal/notification"
	"github.com/transferengine/core/internal/opstack"
	"github.com/transferengine/core/internal/serverid"
	"github.com/transferengine/core/internal/session"
)

// idleDisconnectDelay is spec.md §4.6's "connected but idle" timer.
const idleDisconnectDelay = 60 * time.Second

// Transport is the per-protocol session.Transport constructor a caller
// registers so the scheduler can create new engines on demand without
// needing to know FTP/SFTP/object-storage specifics itself.
type Transport func(serverid.Protocol) session.Transport

// Scheduler implements spec.md §4.6. All of its state is touched only
// from the event loop goroutine driving ctx.Loop (spec.md §5); it carries
// no mutex of its own.
type Scheduler struct {
	ctx    *enginectx.Context
	opts   config.Options
	logger *enginelog.Logger

	newTransport Transport
	maxEngines   int

	servers []*ServerItem
	engines []*engineData

	activeCount   int
	downloadCount int
	uploadCount   int

	hooks Hooks

	blockers         int
	shutdownTimer    eventloop.TimerID
	hasShutdownTimer bool

	seq int
}

// New builds a Scheduler bound to ctx. maxEngines caps total concurrently
// created engines; newTransport builds a fresh session.Transport for a
// server's protocol the first time an engine must be created for it.
func New(ctx *enginectx.Context, opts config.Options, logger *enginelog.Logger, maxEngines int, newTransport Transport) *Scheduler {
	return &Scheduler{
		ctx:          ctx,
		opts:         opts,
		logger:       logger,
		newTransport: newTransport,
		maxEngines:   maxEngines,
		hooks:        defaultHooks(),
	}
}

// SetHooks overrides the queue-completion-action side effects; zero
// fields keep the default no-op.
func (s *Scheduler) SetHooks(h Hooks) { s.hooks = h.withDefaults() }

// AddServer registers (or returns the existing) ServerItem for server.
func (s *Scheduler) AddServer(server serverid.Server, creds serverid.Credentials, maxConnections int) *ServerItem {
	for _, si := range s.servers {
		if si.Server.Equal(server) {
			return si
		}
	}
	si := &ServerItem{Server: server, Credentials: creds, MaxConnections: maxConnections}
	s.servers = append(s.servers, si)
	return si
}

// Enqueue appends cmd as a new file-item on server's queue and kicks the
// dispatcher.
func (s *Scheduler) Enqueue(si *ServerItem, cmd command.Command, priority, maxErrors int) *FileItem {
	it := &FileItem{Cmd: cmd, Priority: priority, MaxErrors: maxErrors, server: si}
	si.Queue = append(si.Queue, it)
	s.TryStartNextTransfer()
	return it
}

func (s *Scheduler) directionCapacity(dir command.Direction) bool {
	switch dir {
	case command.Download:
		return s.opts.ConcurrentDownloadLimit <= 0 || s.downloadCount < s.opts.ConcurrentDownloadLimit
	default:
		return s.opts.ConcurrentUploadLimit <= 0 || s.uploadCount < s.opts.ConcurrentUploadLimit
	}
}

// TryStartNextTransfer implements spec.md §4.6's try_start_next_transfer.
// It may start more than one transfer per call since it loops until no
// further dispatch is possible.
func (s *Scheduler) TryStartNextTransfer() {
	for {
		if s.opts.NumberOfTransfers > 0 && s.activeCount >= s.opts.NumberOfTransfers {
			return
		}
		downloadOK := s.directionCapacity(command.Download)
		uploadOK := s.directionCapacity(command.Upload)
		if !downloadOK && !uploadOK {
			return
		}
		dirOK := func(dir command.Direction, isTransfer bool) bool {
			if !isTransfer {
				return true
			}
			if dir == command.Download {
				return downloadOK
			}
			return uploadOK
		}

		si, it := s.pickItem(dirOK)
		if it == nil {
			return
		}
		ed := s.pickEngine(si)
		if ed == nil {
			return
		}
		s.dispatch(si, it, ed)
	}
}

// pickItem finds the highest-priority idle item across all servers whose
// direction still has capacity, skipping servers at their connection cap
// unless an idle engine is already connected to them.
func (s *Scheduler) pickItem(dirOK func(command.Direction, bool) bool) (*ServerItem, *FileItem) {
	var bestServer *ServerItem
	var bestItem *FileItem
	for _, si := range s.servers {
		it := si.nextIdle(dirOK)
		if it == nil {
			continue
		}
		if si.MaxConnections > 0 && si.inFlight >= si.MaxConnections && !s.hasIdleEngineFor(si.Server) {
			continue
		}
		if bestItem == nil || it.Priority > bestItem.Priority {
			bestServer, bestItem = si, it
		}
	}
	return bestServer, bestItem
}

func (s *Scheduler) hasIdleEngineFor(server serverid.Server) bool {
	for _, ed := range s.engines {
		if ed.connectedTo(server) {
			return true
		}
	}
	return false
}

// pickEngine selects an idle engine connected to si's server if one
// exists, else an idle, non-transient engine built for si's protocol,
// else creates a new one under maxEngines (none while a single-connection
// server's only slot is held by a busy borrowed engine).
// A created engine's transport is fixed to si's protocol for its whole
// lifetime (one session.Base, one Transport), so once a generic idle
// engine is handed a different server it keeps using the transport it was
// built with rather than being re-created — matching spec.md §4.6's
// engine reuse across a disconnect/reconnect cycle, not across protocols.
func (s *Scheduler) pickEngine(si *ServerItem) *engineData {
	for _, ed := range s.engines {
		if ed.connectedTo(si.Server) {
			return ed
		}
	}
	for _, ed := range s.engines {
		if ed.idle() && !ed.transient && ed.protocol == si.Server.Protocol {
			return ed
		}
	}
	// A server whose cap is exactly one connection can't be given a
	// second one: if the interactive session's borrowed engine already
	// occupies that single slot but is busy with its own operation, the
	// transfer must wait for it rather than dial a second connection.
	if si.MaxConnections == 1 && s.hasBusyTransientFor(si.Server) {
		return nil
	}
	if s.maxEngines > 0 && len(s.engines) >= s.maxEngines {
		return nil
	}
	return s.createEngine(si.Server.Protocol)
}

func (s *Scheduler) hasBusyTransientFor(server serverid.Server) bool {
	for _, ed := range s.engines {
		if ed.transient && !ed.idle() && ed.lastServer.Equal(server) {
			return true
		}
	}
	return false
}

func (s *Scheduler) createEngine(proto serverid.Protocol) *engineData {
	s.seq++
	id := syntheticID(s.seq)
	transport := s.newTransport(proto)
	eng := engine.New(id, s.ctx, transport, s.logger)
	ed := &engineData{eng: eng, protocol: proto}
	s.engines = append(s.engines, ed)
	return ed
}

func syntheticID(n int) string {
	const digits = "0123456789"
	if n == 0 {
		return "e0"
	}
	buf := make([]byte, 0, 8)
	buf = append(buf, 'e')
	start := len(buf)
	for n > 0 {
		buf = append(buf, digits[n%10])
		n /= 10
	}
	for i, j := start, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// dispatch binds it to ed and issues the matching command, per spec.md
// §4.6 step 5.
func (s *Scheduler) dispatch(si *ServerItem, it *FileItem, ed *engineData) {
	ed.cancelIdleTimer(s.ctx)

	it.state = ItemActive
	ed.active = true
	ed.current = it
	si.inFlight++
	s.activeCount++
	if dir, ok := it.direction(); ok {
		if dir == command.Download {
			s.downloadCount++
		} else {
			s.uploadCount++
		}
	}

	needsConnect := !ed.eng.Connected() || !ed.lastServer.Equal(si.Server)
	switch {
	case needsConnect:
		ed.state = StateConnect
		ed.statusLine = "connecting to " + si.Server.String()
		ed.eng.Execute(command.Command{Kind: command.Connect, Server: si.Server, Credentials: si.Credentials})
	case it.Cmd.Kind == command.Mkdir:
		ed.state = StateMkdir
		ed.statusLine = "creating directory on " + si.Server.String()
		ed.eng.Execute(it.Cmd)
	case it.Cmd.Kind == command.FileTransfer:
		ed.state = StateTransfer
		ed.statusLine = "transferring on " + si.Server.String()
		ed.eng.Execute(it.Cmd)
	default:
		ed.state = StateTransfer
		ed.statusLine = it.Cmd.Kind.String() + " on " + si.Server.String()
		ed.eng.Execute(it.Cmd)
	}
	ed.lastServer = si.Server
}

func (ed *engineData) cancelIdleTimer(ctx *enginectx.Context) {
	if ed.hasIdleTimer {
		ctx.Loop.Cancel(ed.idleTimer)
		ed.hasIdleTimer = false
	}
}

// Reason is the post-operation routing classification of spec.md §4.6.
type Reason int

const (
	ReasonSuccess Reason = iota
	ReasonFailure
	ReasonReset
	ReasonRetry
	ReasonRemove
)

func classify(r opstack.Result) Reason {
	switch {
	case r == opstack.OK:
		return ReasonSuccess
	case r.Is(opstack.Canceled):
		return ReasonRemove
	case r.Any(opstack.Disconnected | opstack.Timeout):
		return ReasonRetry
	default:
		return ReasonFailure
	}
}

// OnOperationCompleted routes one engine's OperationCompleted notification
// through spec.md §4.6's success|failure|reset|retry|remove classifier,
// then frees the engine and re-dispatches.
func (s *Scheduler) OnOperationCompleted(engineID string, n notification.Notification) {
	ed := s.engineByID(engineID)
	if ed == nil || ed.current == nil {
		return
	}
	it := ed.current
	si := it.server

	switch classify(n.Result) {
	case ReasonSuccess:
		it.state = ItemSucceeded
		si.remove(it)
	case ReasonFailure:
		it.ErrorCount++
		if it.MaxErrors > 0 && it.ErrorCount > it.MaxErrors {
			it.state = ItemFailed
		} else {
			it.state = ItemQueued
		}
	case ReasonReset:
		it.state = ItemQueued
	case ReasonRetry:
		it.state = ItemQueued
		s.switchEngine(si, ed)
	case ReasonRemove:
		si.remove(it)
	}

	s.freeEngine(ed)
	s.TryStartNextTransfer()
	s.maybeRunCompletionAction()
}

func (s *Scheduler) engineByID(id string) *engineData {
	for _, ed := range s.engines {
		if ed.eng.ID() == id {
			return ed
		}
	}
	return nil
}

// DrainNotifications polls every managed engine's notification queue once,
// forwarding each item to handle and routing OperationCompleted kinds
// through OnOperationCompleted so dispatch keeps moving. A driving
// consumer (cmd/transferengine, a UI) is expected to call this once per
// event-loop tick, per the "UI polls, engine never calls back" contract
// internal/engine documents on Engine.NextNotification.
func (s *Scheduler) DrainNotifications(handle func(engineID string, n notification.Notification)) {
	for _, ed := range s.engines {
		id := ed.eng.ID()
		for {
			n, ok := ed.eng.NextNotification()
			if !ok {
				break
			}
			if n.Kind == notification.OperationCompleted {
				s.OnOperationCompleted(id, n)
			}
			if handle != nil {
				handle(id, n)
			}
		}
	}
}

// EngineStatus reports one live engine's short human-readable status line,
// for a UI listing the connection pool.
func (s *Scheduler) EngineStatus(engineID string) (string, bool) {
	ed := s.engineByID(engineID)
	if ed == nil {
		return "", false
	}
	return ed.StatusLine(), true
}

// switchEngine looks for another idle engine already connected to si's
// server so a future dispatch avoids redialing the one that just dropped.
// The disconnected engine itself is left to its own reconnect backoff
// (engine.ScheduleReconnect), matching the source's "retry may also swap
// engines" note rather than forcing every item onto the same connection.
func (s *Scheduler) switchEngine(si *ServerItem, dropped *engineData) {
	dropped.lastServer = serverid.Server{}
	if !s.hasIdleEngineFor(si.Server) {
		dropped.eng.ScheduleReconnect(s.opts)
	}
}

func (s *Scheduler) freeEngine(ed *engineData) {
	it := ed.current
	si := it.server
	si.inFlight--
	s.activeCount--
	if dir, ok := it.direction(); ok {
		if dir == command.Download {
			s.downloadCount--
		} else {
			s.uploadCount--
		}
	}
	ed.active = false
	ed.current = nil
	ed.state = StateNone
	ed.statusLine = "idle, connected to " + ed.lastServer.String()

	if ed.transient {
		// A borrowed engine is never torn down by the scheduler's own
		// idle timer; it belongs to the interactive session, which gets
		// it back via RequestReturn, not via disconnectIdle.
		if ed.returnRequested {
			s.releaseInteractive(ed)
		}
		return
	}

	if ed.eng.Connected() {
		ed.idleTimer = s.ctx.Loop.AfterFunc(idleDisconnectDelay, func() { s.disconnectIdle(ed) })
		ed.hasIdleTimer = true
	}
}

func (s *Scheduler) disconnectIdle(ed *engineData) {
	ed.hasIdleTimer = false
	if !ed.idle() {
		return
	}
	ed.state = StateDisconnect
	ed.eng.Execute(command.Command{Kind: command.Disconnect})
	ed.lastServer = serverid.Server{}
	ed.state = StateNone
	ed.statusLine = "idle"
}

// maybeRunCompletionAction fires the configured action-after-completion
// hook once nothing remains queued or active anywhere, per spec.md §4.6.
func (s *Scheduler) maybeRunCompletionAction() {
	if s.activeCount > 0 {
		return
	}
	for _, si := range s.servers {
		if si.hasWork() {
			return
		}
	}
	s.runCompletionAction()
}

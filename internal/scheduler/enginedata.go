package scheduler

import (
	"github.com/transferengine/core/internal/engine"
	"github.com/transferengine/core/internal/eventloop"
	"github.com/transferengine/core/internal/serverid"
)

// EngineState mirrors spec.md §4.6's engine-data state field.
type EngineState int

const (
	StateNone EngineState = iota
	StateDisconnect
	StateConnect
	StateTransfer
	StateList
	StateMkdir
	StateAskPassword
	StateWaitPrimary
)

// engineData is one row of spec.md §4.6's engine-data vector, touched
// only from the scheduler's owning event-loop goroutine.
type engineData struct {
	eng             *engine.Engine
	protocol        serverid.Protocol
	active          bool
	transient       bool
	returnRequested bool
	state           EngineState
	current         *FileItem
	lastServer      serverid.Server
	statusLine      string

	idleTimer    eventloop.TimerID
	hasIdleTimer bool
}

// idle reports whether this engine has no bound item and isn't
// transient-and-borrowed.
func (ed *engineData) idle() bool { return !ed.active }

// StatusLine reports the short human-readable status a UI would show
// next to this engine's connection, per spec.md §4.6's status_line field.
func (ed *engineData) StatusLine() string { return ed.statusLine }

// connectedTo reports whether ed is idle, connected, and its last server
// matches server, the "idle engine already connected to that exact
// server" exception of spec.md §4.6 step 3/4.
func (ed *engineData) connectedTo(server serverid.Server) bool {
	return ed.idle() && ed.eng.Connected() && ed.lastServer.Equal(server)
}

package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transferengine/core/internal/command"
	"github.com/transferengine/core/internal/config"
	"github.com/transferengine/core/internal/direntry"
	"github.com/transferengine/core/internal/engine"
	"github.com/transferengine/core/internal/enginectx"
	"github.com/transferengine/core/internal/enginelog"
	"github.com/transferengine/core/internal/enginepath"
	"github.com/transferengine/core/internal/notification"
	"github.com/transferengine/core/internal/opstack"
	"github.com/transferengine/core/internal/serverid"
	"github.com/transferengine/core/internal/session"
)

// noopTransport satisfies session.Transport with no-op bodies; Dial
// always succeeds, letting tests connect an engine without a real wire.
type noopTransport struct{}

func (noopTransport) Caps() session.ProtoCaps { return session.ProtoCaps{} }
func (noopTransport) Dial(serverid.Server, serverid.Credentials) error { return nil }
func (noopTransport) Close() error                                    { return nil }
func (noopTransport) Pwd() (enginepath.Path, error)                   { return enginepath.Path{}, nil }
func (noopTransport) Cwd(enginepath.Path) error                       { return nil }
func (noopTransport) Cdup() error                                     { return nil }
func (noopTransport) Mkdir(enginepath.Path) error                     { return nil }
func (noopTransport) Rmdir(enginepath.Path) error                     { return nil }
func (noopTransport) List(enginepath.Path, bool) ([]direntry.Entry, error) {
	return nil, nil
}
func (noopTransport) Delete(enginepath.Path, string) error { return nil }
func (noopTransport) Rename(enginepath.Path, string, enginepath.Path, string) error {
	return nil
}
func (noopTransport) Chmod(enginepath.Path, string, string) error  { return nil }
func (noopTransport) Raw(string) (string, error)                   { return "", nil }
func (noopTransport) Size(enginepath.Path, string) (int64, error)  { return 0, nil }
func (noopTransport) ModTime(enginepath.Path, string) (time.Time, error) {
	return time.Time{}, nil
}
func (noopTransport) SetModTime(enginepath.Path, string, time.Time) error { return nil }
func (noopTransport) Retrieve(enginepath.Path, string, string, int64) (int64, error) {
	return 0, nil
}
func (noopTransport) Store(enginepath.Path, string, string, int64, bool) (int64, error) {
	return 0, nil
}

// newConnectedEngine builds a real *engine.Engine on ctx and drives its
// Connect through ctx.Loop until the async dial's result lands, so
// Connected()/Server() reflect a genuine connect rather than a hand-set
// private field no outside package could reach anyway.
func newConnectedEngine(t *testing.T, ctx *enginectx.Context, id string, srv serverid.Server) *engine.Engine {
	t.Helper()
	logger := enginelog.New(notification.LevelDebugDebug, enginelog.SinkFunc(func(notification.LogLevel, string) {}))
	eng := engine.New(id, ctx, noopTransport{}, logger)
	require.Equal(t, opstack.WouldBlock, eng.Execute(command.Command{Kind: command.Connect, Server: srv, Credentials: serverid.Credentials{}}))

	deadline := time.Now().Add(2 * time.Second)
	for !eng.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("engine never reached Connected() within the deadline")
		}
		ctx.Loop.Step()
		time.Sleep(time.Millisecond)
	}
	return eng
}

func TestRegisterInteractiveEngineIsBorrowedForItsOwnServer(t *testing.T) {
	srv := testServer("interactive-host")
	ctx := enginectx.New(config.Options{})
	eng := newConnectedEngine(t, ctx, "interactive", srv)

	s := New(ctx, config.Options{NumberOfTransfers: 1}, nil, 0, nil)
	s.RegisterInteractiveEngine(eng, srv.Protocol, srv)

	si := s.AddServer(srv, serverid.Credentials{}, 1)
	s.Enqueue(si, command.Command{Kind: command.Mkdir, Server: srv}, 0, 0)

	require.Len(t, s.engines, 1, "borrowing reuses the registered engine, it never dials a second connection")
	assert.True(t, s.engines[0].active)
	assert.True(t, s.engines[0].transient)
}

func TestMaxConnectionsOneNeverOpensSecondConnectionWhileBorrowBusy(t *testing.T) {
	srv := testServer("single-slot-host")
	ctx := enginectx.New(config.Options{})
	eng := newConnectedEngine(t, ctx, "interactive", srv)

	s := New(ctx, config.Options{NumberOfTransfers: 5}, nil, 0, func(serverid.Protocol) session.Transport {
		t.Fatal("a max_connections=1 server must never get a second dialed engine while its only slot is busy")
		return nil
	})
	s.RegisterInteractiveEngine(eng, srv.Protocol, srv)
	// Mark the borrowed engine busy with the interactive session's own
	// work, the way dispatch() would if it had been handed a transfer.
	s.engines[0].active = true

	si := s.AddServer(srv, serverid.Credentials{}, 1)
	it := s.Enqueue(si, command.Command{Kind: command.Mkdir, Server: srv}, 0, 0)

	assert.Equal(t, ItemQueued, it.state, "must wait for the borrowed engine rather than dial a second connection")
	assert.Len(t, s.engines, 1)
}

func TestRequestReturnReleasesIdleBorrowedEngineImmediately(t *testing.T) {
	srv := testServer("interactive-host")
	ctx := enginectx.New(config.Options{})
	eng := newConnectedEngine(t, ctx, "interactive", srv)

	s := New(ctx, config.Options{}, nil, 0, nil)
	var released string
	s.SetHooks(Hooks{EngineReleased: func(id string) { released = id }})
	s.RegisterInteractiveEngine(eng, srv.Protocol, srv)

	s.RequestReturn(eng)

	assert.Equal(t, eng.ID(), released)
	assert.Empty(t, s.engines, "an idle borrowed engine is handed back synchronously")
}

func TestRequestReturnOnBusyEngineWaitsForCompletion(t *testing.T) {
	srv := testServer("interactive-host")
	ctx := enginectx.New(config.Options{})
	eng := newConnectedEngine(t, ctx, "interactive", srv)

	s := New(ctx, config.Options{}, nil, 0, nil)
	var released string
	s.SetHooks(Hooks{EngineReleased: func(id string) { released = id }})
	s.RegisterInteractiveEngine(eng, srv.Protocol, srv)

	ed := s.engines[0]
	si := s.AddServer(srv, serverid.Credentials{}, 1)
	it := &FileItem{Cmd: command.Command{Kind: command.Mkdir, Server: srv}, server: si}
	si.Queue = []*FileItem{it}
	s.dispatch(si, it, ed)

	s.RequestReturn(eng)
	assert.Equal(t, StateWaitPrimary, ed.state)
	assert.Empty(t, released, "must not release while the transfer it is running is still active")

	s.freeEngine(ed)
	assert.Equal(t, eng.ID(), released, "freeing a return-requested engine hands it back")
	assert.NotContains(t, s.engines, ed)
}

func TestUnregisterInteractiveEngineDropsItImmediately(t *testing.T) {
	srv := testServer("interactive-host")
	ctx := enginectx.New(config.Options{})
	eng := newConnectedEngine(t, ctx, "interactive", srv)

	s := New(ctx, config.Options{}, nil, 0, nil)
	s.RegisterInteractiveEngine(eng, srv.Protocol, srv)
	require.Len(t, s.engines, 1)

	s.UnregisterInteractiveEngine(eng)
	assert.Empty(t, s.engines)
}

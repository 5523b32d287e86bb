package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transferengine/core/internal/config"
	"github.com/transferengine/core/internal/direntry"
	"github.com/transferengine/core/internal/enginectx"
	"github.com/transferengine/core/internal/enginelog"
	"github.com/transferengine/core/internal/enginepath"
	"github.com/transferengine/core/internal/notification"
	"github.com/transferengine/core/internal/serverid"
	"github.com/transferengine/core/internal/session"
)

// fakeTransport satisfies session.Transport with no-op bodies; these tests
// never let a reconnect timer fire, so none of its methods is called.
type fakeTransport struct {
	dialErr error
}

func (f *fakeTransport) Caps() session.ProtoCaps { return session.ProtoCaps{} }
func (f *fakeTransport) Dial(serverid.Server, serverid.Credentials) error { return f.dialErr }
func (f *fakeTransport) Close() error                                    { return nil }
func (f *fakeTransport) Pwd() (enginepath.Path, error)                   { return enginepath.Path{}, nil }
func (f *fakeTransport) Cwd(enginepath.Path) error                       { return nil }
func (f *fakeTransport) Cdup() error                                     { return nil }
func (f *fakeTransport) Mkdir(enginepath.Path) error                     { return nil }
func (f *fakeTransport) Rmdir(enginepath.Path) error                     { return nil }
func (f *fakeTransport) List(enginepath.Path, bool) ([]direntry.Entry, error) {
	return nil, nil
}
func (f *fakeTransport) Delete(enginepath.Path, string) error { return nil }
func (f *fakeTransport) Rename(enginepath.Path, string, enginepath.Path, string) error {
	return nil
}
func (f *fakeTransport) Chmod(enginepath.Path, string, string) error { return nil }
func (f *fakeTransport) Raw(string) (string, error)                 { return "", nil }
func (f *fakeTransport) Size(enginepath.Path, string) (int64, error) { return 0, nil }
func (f *fakeTransport) ModTime(enginepath.Path, string) (time.Time, error) {
	return time.Time{}, nil
}
func (f *fakeTransport) SetModTime(enginepath.Path, string, time.Time) error { return nil }
func (f *fakeTransport) Retrieve(enginepath.Path, string, string, int64) (int64, error) {
	return 0, nil
}
func (f *fakeTransport) Store(enginepath.Path, string, string, int64, bool) (int64, error) {
	return 0, nil
}

func newTestEngine(t *testing.T, opts config.Options) (*Engine, *enginectx.Context) {
	t.Helper()
	ctx := enginectx.New(opts)
	logger := enginelog.New(notification.LevelDebugDebug, enginelog.SinkFunc(func(notification.LogLevel, string) {}))
	e := New("eng1", ctx, &fakeTransport{}, logger)
	return e, ctx
}

func TestScheduleReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	opts := config.Options{ReconnectCount: 2, ReconnectDelaySeconds: 5}
	e, ctx := newTestEngine(t, opts)
	srv := serverid.Server{Protocol: serverid.ProtocolFTP, Host: "h", Port: 21, User: "u"}
	e.server = srv

	ctx.RecordFailedLogin(enginectx.FailedLogin{Server: srv})
	ctx.RecordFailedLogin(enginectx.FailedLogin{Server: srv})

	e.ScheduleReconnect(opts)

	assert.False(t, e.reconnecting, "giving up must not arm the reconnect-in-flight flag")
	n, ok := e.NextNotification()
	require.True(t, ok)
	assert.Equal(t, notification.Log, n.Kind)
	assert.Equal(t, notification.LevelError, n.Level)
}

func TestScheduleReconnectIsIdempotentWhileInFlight(t *testing.T) {
	opts := config.Options{ReconnectCount: 0, ReconnectDelaySeconds: 5}
	e, _ := newTestEngine(t, opts)
	e.server = serverid.Server{Protocol: serverid.ProtocolFTP, Host: "h", Port: 21, User: "u"}

	e.ScheduleReconnect(opts)
	assert.True(t, e.reconnecting)
	assert.Equal(t, 1, e.reconnectTry)

	e.ScheduleReconnect(opts)
	assert.Equal(t, 1, e.reconnectTry, "a second call while already reconnecting must be a no-op")
}

func TestCancelReconnectAllowsReschedule(t *testing.T) {
	opts := config.Options{ReconnectCount: 0, ReconnectDelaySeconds: 5}
	e, _ := newTestEngine(t, opts)
	e.server = serverid.Server{Protocol: serverid.ProtocolFTP, Host: "h", Port: 21, User: "u"}

	e.ScheduleReconnect(opts)
	require.True(t, e.reconnecting)

	e.CancelReconnect()
	assert.False(t, e.reconnecting)

	e.ScheduleReconnect(opts)
	assert.Equal(t, 2, e.reconnectTry)
}

func TestServerIsZeroBeforeAnyConnect(t *testing.T) {
	e, _ := newTestEngine(t, config.Options{})
	assert.True(t, e.Server().Equal(serverid.Server{}))
}

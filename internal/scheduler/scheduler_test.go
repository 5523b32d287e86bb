package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transferengine/core/internal/command"
	"github.com/transferengine/core/internal/config"
	"github.com/transferengine/core/internal/opstack"
	"github.com/transferengine/core/internal/serverid"
)

func testServer(name string) serverid.Server {
	return serverid.Server{Protocol: serverid.ProtocolFTP, Host: name, Port: 21, User: "u", Name: name}
}

func TestServerItemNextIdlePicksHighestPriority(t *testing.T) {
	si := &ServerItem{}
	low := &FileItem{Priority: 1, server: si}
	high := &FileItem{Priority: 5, server: si}
	si.Queue = []*FileItem{low, high}

	got := si.nextIdle(nil)
	assert.Same(t, high, got)
}

func TestServerItemNextIdleSkipsNonQueued(t *testing.T) {
	si := &ServerItem{}
	active := &FileItem{Priority: 10, state: ItemActive, server: si}
	queued := &FileItem{Priority: 1, state: ItemQueued, server: si}
	si.Queue = []*FileItem{active, queued}

	got := si.nextIdle(nil)
	assert.Same(t, queued, got)
}

func TestServerItemNextIdleRespectsDirectionFilter(t *testing.T) {
	si := &ServerItem{}
	dl := &FileItem{Priority: 1, server: si, Cmd: command.Command{Kind: command.FileTransfer, Direction: command.Download}}
	ul := &FileItem{Priority: 5, server: si, Cmd: command.Command{Kind: command.FileTransfer, Direction: command.Upload}}
	si.Queue = []*FileItem{dl, ul}

	onlyDownloads := func(dir command.Direction, isTransfer bool) bool {
		return !isTransfer || dir == command.Download
	}
	assert.Same(t, dl, si.nextIdle(onlyDownloads))
}

func TestServerItemRemoveAndHasWork(t *testing.T) {
	si := &ServerItem{}
	it := &FileItem{server: si}
	si.Queue = []*FileItem{it}
	require.True(t, si.hasWork())

	si.remove(it)
	assert.Empty(t, si.Queue)
	assert.False(t, si.hasWork())
}

func TestClassify(t *testing.T) {
	cases := []struct {
		result opstack.Result
		want   Reason
	}{
		{opstack.OK, ReasonSuccess},
		{opstack.Canceled, ReasonRemove},
		{opstack.Disconnected, ReasonRetry},
		{opstack.Timeout, ReasonRetry},
		{opstack.CriticalError, ReasonFailure},
		{opstack.PasswordFailed, ReasonFailure},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, classify(c.result), "result %s", c.result)
	}
}

func TestSchedulerAddServerDedupesByKey(t *testing.T) {
	s := &Scheduler{}
	a := s.AddServer(testServer("host1"), serverid.Credentials{}, 1)
	b := s.AddServer(testServer("host1"), serverid.Credentials{}, 4)

	assert.Same(t, a, b)
	assert.Len(t, s.servers, 1)
	// the second AddServer call for an already-known key is a no-op;
	// the first caller's MaxConnections wins.
	assert.Equal(t, 1, a.MaxConnections)
}

func TestDirectionCapacityUnlimitedWhenZero(t *testing.T) {
	s := &Scheduler{opts: config.Options{}}
	assert.True(t, s.directionCapacity(command.Download))
	assert.True(t, s.directionCapacity(command.Upload))
}

func TestDirectionCapacityRespectsLimit(t *testing.T) {
	s := &Scheduler{opts: config.Options{ConcurrentDownloadLimit: 2}, downloadCount: 2}
	assert.False(t, s.directionCapacity(command.Download))

	s.downloadCount = 1
	assert.True(t, s.directionCapacity(command.Download))
}

func TestAcquireActionBlockerDefersCompletion(t *testing.T) {
	s := &Scheduler{opts: config.Options{QueueCompletionAction: config.ActionDesktopNotify}, hooks: defaultHooks()}
	var notified bool
	s.hooks.Notify = func(string) { notified = true }

	b := s.AcquireActionBlocker()
	s.maybeRunCompletionAction()
	assert.False(t, notified, "blocker should defer the action")

	b.Release()
	assert.True(t, notified, "releasing the last blocker should run the deferred action")
}

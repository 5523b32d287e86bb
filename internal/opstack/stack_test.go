package opstack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOp is a scriptable Operation: sendResults are returned in order by
// successive Send calls (the last one repeats once exhausted).
type fakeOp struct {
	name          string
	sendResults   []Result
	sendCalls     int
	parseResult   Result
	parseCalls    int
	subResult     Result
	subCalls      int
	lastSubResult Result
	lastSubChild  Operation
}

func (f *fakeOp) Name() string { return f.name }

func (f *fakeOp) Send() Result {
	i := f.sendCalls
	if i >= len(f.sendResults) {
		i = len(f.sendResults) - 1
	}
	f.sendCalls++
	return f.sendResults[i]
}

func (f *fakeOp) ParseResponse(event any) Result {
	f.parseCalls++
	return f.parseResult
}

func (f *fakeOp) SubcommandResult(result Result, child Operation) Result {
	f.subCalls++
	f.lastSubResult = result
	f.lastSubChild = child
	return f.subResult
}

func TestPushDrivesContinueUntilTerminal(t *testing.T) {
	s := &Stack{}
	op := &fakeOp{name: "root", sendResults: []Result{Continue, Continue, OK}}

	result := s.Push(op)

	assert.Equal(t, OK, result)
	assert.Equal(t, 3, op.sendCalls)
	assert.Equal(t, 0, s.Len(), "a terminal result pops the operation")
}

func TestPushSuspendsOnWouldBlock(t *testing.T) {
	s := &Stack{}
	op := &fakeOp{name: "root", sendResults: []Result{WouldBlock}}

	result := s.Push(op)

	assert.Equal(t, WouldBlock, result)
	assert.Equal(t, 1, s.Len(), "a blocked operation stays on the stack")
	assert.Equal(t, WaitingForNetwork, s.Wait())
}

func TestPushResetsWaitReasonSetBeforePush(t *testing.T) {
	s := &Stack{}
	op := &fakeOp{name: "root", sendResults: []Result{WouldBlock}}
	s.SetWait(WaitingForLock)
	// SetWait before Push is reset to Idle by Push; verify a WouldBlock
	// result only defaults to WaitingForNetwork when nothing more specific
	// was set during Send.
	result := s.Push(op)
	assert.Equal(t, WouldBlock, result)
	assert.Equal(t, WaitingForNetwork, s.Wait())
}

func TestFeedOnEmptyStackIsInternalError(t *testing.T) {
	s := &Stack{}
	assert.Equal(t, InternalError, s.Feed("event"))
}

// P9/P10: pushing a child and terminating it invokes the parent's
// SubcommandResult exactly once with the child's result; the parent's OK
// from SubcommandResult then pops it too, without another Send.
func TestSubcommandResultInvokedOnceOnChildTermination(t *testing.T) {
	s := &Stack{}
	parent := &fakeOp{name: "parent", sendResults: []Result{WouldBlock}, subResult: OK}
	s.Push(parent)
	require.Equal(t, 1, s.Len())

	child := &fakeOp{name: "child", sendResults: []Result{OK}}
	result := s.Push(child)

	assert.Equal(t, OK, result)
	assert.Equal(t, 1, parent.subCalls)
	assert.Equal(t, OK, parent.lastSubResult)
	assert.Same(t, child, parent.lastSubChild)
	assert.Equal(t, 0, s.Len(), "parent's own OK pops it too")
}

func TestSubcommandResultCanKeepParentWaiting(t *testing.T) {
	s := &Stack{}
	parent := &fakeOp{name: "parent", sendResults: []Result{WouldBlock}, subResult: WouldBlock}
	s.Push(parent)

	child := &fakeOp{name: "child", sendResults: []Result{CriticalError}}
	result := s.Push(child)

	assert.Equal(t, WouldBlock, result)
	assert.Equal(t, 1, s.Len(), "parent remains on the stack, waiting again")
	assert.Equal(t, CriticalError, parent.lastSubResult)
}

func TestResetEmptiesStack(t *testing.T) {
	s := &Stack{}
	op := &fakeOp{name: "root", sendResults: []Result{WouldBlock}}
	s.Push(op)
	require.Equal(t, 1, s.Len())

	s.Reset()

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, Idle, s.Wait())
}

func TestFramesSnapshotIsACopy(t *testing.T) {
	s := &Stack{}
	op := &fakeOp{name: "root", sendResults: []Result{WouldBlock}}
	s.Push(op)

	snap := s.Frames()
	require.Len(t, snap, 1)
	snap[0] = nil

	assert.Same(t, op, s.Top(), "mutating the snapshot must not affect the live stack")
}

func TestResultIsAndAny(t *testing.T) {
	r := Disconnected | Timeout
	assert.True(t, r.Is(Disconnected))
	assert.False(t, r.Is(Disconnected|CriticalError))
	assert.True(t, r.Any(CriticalError|Timeout))
	assert.False(t, r.Any(CriticalError|PasswordFailed))
}

func TestResultTerminal(t *testing.T) {
	assert.False(t, Continue.Terminal())
	assert.False(t, WouldBlock.Terminal())
	assert.True(t, OK.Terminal())
	assert.True(t, CriticalError.Terminal())
}

func TestResultFatal(t *testing.T) {
	assert.True(t, CriticalError.Fatal())
	assert.True(t, PasswordFailed.Fatal())
	assert.False(t, Disconnected.Fatal())
	assert.False(t, Timeout.Fatal())
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "OK", OK.String())
	assert.Equal(t, "DISCONNECTED|TIMEOUT", (Disconnected | Timeout).String())
}

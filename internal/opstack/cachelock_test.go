package opstack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireGrantsFirstOwner(t *testing.T) {
	lt := NewLockTable()
	assert.True(t, lt.TryAcquire("s1", "/a", LockList, "owner1"))

	owner, ok := lt.Holder("s1", "/a", LockList)
	require.True(t, ok)
	assert.Equal(t, "owner1", owner)
}

func TestTryAcquireSameOwnerIsReentrant(t *testing.T) {
	lt := NewLockTable()
	require.True(t, lt.TryAcquire("s1", "/a", LockList, "owner1"))
	assert.True(t, lt.TryAcquire("s1", "/a", LockList, "owner1"))
}

func TestTryAcquireSecondOwnerQueuesAsWaiter(t *testing.T) {
	lt := NewLockTable()
	require.True(t, lt.TryAcquire("s1", "/a", LockList, "owner1"))
	assert.False(t, lt.TryAcquire("s1", "/a", LockList, "owner2"))
	// a repeated attempt by the same waiter must not duplicate the entry
	assert.False(t, lt.TryAcquire("s1", "/a", LockList, "owner2"))
}

func TestLockTypesAreIndependent(t *testing.T) {
	lt := NewLockTable()
	require.True(t, lt.TryAcquire("s1", "/a", LockList, "owner1"))
	assert.True(t, lt.TryAcquire("s1", "/a", LockMkdir, "owner2"), "different lock type on the same path is independent")
}

func TestReleaseHandsLockToNextWaiterAndReturnsRest(t *testing.T) {
	lt := NewLockTable()
	require.True(t, lt.TryAcquire("s1", "/a", LockList, "owner1"))
	require.False(t, lt.TryAcquire("s1", "/a", LockList, "owner2"))
	require.False(t, lt.TryAcquire("s1", "/a", LockList, "owner3"))

	rest := lt.Release("s1", "/a", LockList, "owner1")

	assert.Equal(t, []string{"owner3"}, rest, "Release returns every waiter except the one just promoted")
	owner, ok := lt.Holder("s1", "/a", LockList)
	require.True(t, ok)
	assert.Equal(t, "owner2", owner)
}

func TestReleaseByNonHolderIsNoop(t *testing.T) {
	lt := NewLockTable()
	require.True(t, lt.TryAcquire("s1", "/a", LockList, "owner1"))

	rest := lt.Release("s1", "/a", LockList, "owner2")

	assert.Nil(t, rest)
	owner, ok := lt.Holder("s1", "/a", LockList)
	require.True(t, ok)
	assert.Equal(t, "owner1", owner)
}

func TestReleaseWithNoWaitersClearsHolder(t *testing.T) {
	lt := NewLockTable()
	require.True(t, lt.TryAcquire("s1", "/a", LockList, "owner1"))

	rest := lt.Release("s1", "/a", LockList, "owner1")

	assert.Nil(t, rest)
	_, ok := lt.Holder("s1", "/a", LockList)
	assert.False(t, ok)
}

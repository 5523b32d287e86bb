package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transferengine/core/internal/notification"
)

func TestNotifyQueuePushWakesOnlyOncePerDrain(t *testing.T) {
	wakes := 0
	q := newNotifyQueue(func() { wakes++ })

	q.Push(notification.Notification{Kind: notification.Log})
	q.Push(notification.Notification{Kind: notification.Log})
	assert.Equal(t, 1, wakes, "a second push while still undrained must not wake again")
	assert.Equal(t, 2, q.Len())
}

func TestNotifyQueueNextRearmsWakeGate(t *testing.T) {
	wakes := 0
	q := newNotifyQueue(func() { wakes++ })

	q.Push(notification.Notification{Kind: notification.Log})
	_, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, 0, q.Len())

	q.Push(notification.Notification{Kind: notification.Log})
	assert.Equal(t, 2, wakes, "draining to empty must re-arm the gate for the next push")
}

func TestNotifyQueueNextOnEmptyReturnsFalse(t *testing.T) {
	q := newNotifyQueue(func() {})
	_, ok := q.Next()
	assert.False(t, ok)
}

func TestNotifyQueuePreservesFIFOOrder(t *testing.T) {
	q := newNotifyQueue(func() {})
	q.Push(notification.Notification{Kind: notification.Log, Text: "first"})
	q.Push(notification.Notification{Kind: notification.Log, Text: "second"})

	n1, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, "first", n1.Text)

	n2, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, "second", n2.Text)
}

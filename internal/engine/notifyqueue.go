package engine

import (
	"sync"

	"github.com/transferengine/core/internal/notification"
)

// notifyQueue is the per-engine notification queue of spec.md §4.5. The
// maySend flag gates the onWake callback so the consumer sees at most one
// wake-up per drain: Push fires onWake only while armed and disarms the
// gate, and Next re-arms it once the queue is empty.
type notifyQueue struct {
	mu       sync.Mutex
	items    []notification.Notification
	maySend  bool
	onWake   func()
}

func newNotifyQueue(onWake func()) *notifyQueue {
	return &notifyQueue{maySend: true, onWake: onWake}
}

// Push enqueues n and, if the queue is armed to notify, fires onWake
// exactly once until the consumer drains again.
func (q *notifyQueue) Push(n notification.Notification) {
	q.mu.Lock()
	q.items = append(q.items, n)
	wake := q.maySend
	if wake {
		q.maySend = false
	}
	q.mu.Unlock()
	if wake && q.onWake != nil {
		q.onWake()
	}
}

// Next pops the oldest queued notification, re-arming the wake gate once
// the queue drains to empty.
func (q *notifyQueue) Next() (notification.Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		q.maySend = true
		return notification.Notification{}, false
	}
	n := q.items[0]
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.maySend = true
	}
	return n, true
}

func (q *notifyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

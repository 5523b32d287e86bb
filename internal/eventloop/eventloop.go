// Package eventloop implements the single-threaded cooperative event
// dispatcher of spec.md §2/§5: a FIFO of typed events delivered to
// per-source handlers, plus scheduled timers. Worker goroutines (the
// subprocess reader tasks and the local-filesystem walker of spec.md §5)
// communicate with the loop only by posting events through Post; they
// never call handler code directly.
package eventloop

import (
	"container/heap"
	"sync"
	"time"
)

// Event is a typed message posted onto the loop.
type Event struct {
	// Source identifies the handler that owns this event (an engine id,
	// a scheduler tag, etc.).
	Source string
	Payload any
}

// Handler processes events for one Source.
type Handler func(Event)

// TimerID identifies a scheduled timer for cancellation.
type TimerID uint64

type timerEntry struct {
	id       TimerID
	fireAt   time.Time
	fn       func()
	index    int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].fireAt.Before(h[j].fireAt) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Loop is the event loop. Create with New, register handlers with
// Register, then run Step (or Run) from a single goroutine.
type Loop struct {
	mu       sync.Mutex
	handlers map[string]Handler
	queue    []Event
	timers   timerHeap
	nextID   TimerID
	wake     chan struct{}
	now      func() time.Time
}

// New returns an idle Loop.
func New() *Loop {
	return &Loop{
		handlers: make(map[string]Handler),
		wake:     make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Register installs the handler for Source id. Posting an event whose
// Source has no handler is silently dropped, mirroring a disconnected
// engine no longer interested in its own stale events.
func (l *Loop) Register(source string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[source] = h
}

// Unregister removes source's handler.
func (l *Loop) Unregister(source string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handlers, source)
}

// Post enqueues an event for later dispatch and wakes the loop if it is
// parked in Run. Safe to call from any goroutine; the goroutines started
// by session.Base.runAsync use it to hand their results back to the loop.
func (l *Loop) Post(ev Event) {
	l.mu.Lock()
	l.queue = append(l.queue, ev)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc schedules fn to run on the loop goroutine after d elapses.
// Returns a TimerID usable with Cancel.
func (l *Loop) AfterFunc(d time.Duration, fn func()) TimerID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	heap.Push(&l.timers, &timerEntry{id: id, fireAt: l.now().Add(d), fn: fn})
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return id
}

// Cancel prevents a pending timer from firing; a no-op if it already
// fired or does not exist.
func (l *Loop) Cancel(id TimerID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.timers {
		if e.id == id {
			heap.Remove(&l.timers, i)
			return
		}
	}
}

// Step drains one round: every currently-queued event is dispatched, then
// every timer due by now fires. It returns the duration until the next
// timer is due (or -1 if none are scheduled), for callers that want to
// sleep between Step calls instead of blocking on Run's channel.
func (l *Loop) Step() time.Duration {
	l.mu.Lock()
	events := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, ev := range events {
		l.mu.Lock()
		h := l.handlers[ev.Source]
		l.mu.Unlock()
		if h != nil {
			h(ev)
		}
	}

	now := l.now()
	for {
		l.mu.Lock()
		if l.timers.Len() == 0 {
			l.mu.Unlock()
			return -1
		}
		next := l.timers[0]
		if next.fireAt.After(now) {
			d := next.fireAt.Sub(now)
			l.mu.Unlock()
			return d
		}
		heap.Pop(&l.timers)
		l.mu.Unlock()
		next.fn()
	}
}

// Run drives Step in a loop until stop is closed. Intended to be called
// from the single designated event-loop goroutine.
func (l *Loop) Run(stop <-chan struct{}) {
	for {
		d := l.Step()
		var timer *time.Timer
		var timerC <-chan time.Time
		if d >= 0 {
			timer = time.NewTimer(d)
			timerC = timer.C
		}
		select {
		case <-stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-l.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-timerC:
		}
	}
}

// Package ratelimit implements the per-direction token-bucket rate
// limiter of spec.md §2/§5, shared across every session in a process.
//
// The spec requires a non-blocking "how many bytes may I send right now"
// poll rather than goroutine-blocking Wait, because every session runs on
// the single-threaded event loop (spec.md §5). This wraps
// golang.org/x/time/rate.Limiter, already a teacher dependency, instead
// of hand-rolling a bucket.
package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// Direction distinguishes inbound (download) from outbound (upload)
// traffic.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

// Limiter holds one token bucket per direction.
type Limiter struct {
	buckets [2]*rate.Limiter
	// There is no waiter list: a caller learns that an exhausted
	// direction has refilled only by polling OnRateAvailable.
}

// New builds a Limiter. A bytesPerSec of 0 means unlimited for that
// direction (rate.Inf with a fixed 1 MiB burst).
func New(inBytesPerSec, outBytesPerSec int) *Limiter {
	l := &Limiter{}
	l.buckets[Inbound] = newBucket(inBytesPerSec)
	l.buckets[Outbound] = newBucket(outBytesPerSec)
	return l
}

func newBucket(bytesPerSec int) *rate.Limiter {
	if bytesPerSec <= 0 {
		return rate.NewLimiter(rate.Inf, 1<<20)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec)
}

// SetLimit reconfigures a direction's rate; 0 disables limiting.
func (l *Limiter) SetLimit(dir Direction, bytesPerSec int) {
	if bytesPerSec <= 0 {
		l.buckets[dir].SetLimit(rate.Inf)
		return
	}
	l.buckets[dir].SetLimit(rate.Limit(bytesPerSec))
	l.buckets[dir].SetBurst(bytesPerSec)
}

// AvailableBytes returns the number of bytes that may be transferred right
// now without blocking, per spec.md §5. A negative return means "no
// limit configured"; zero means the caller must park and retry once
// OnRateAvailable would report true.
//
// golang.org/x/time/rate does not expose a token count in the version
// pinned here, only Reserve/Cancel; AvailableBytes probes with a
// zero-cost reservation and reports the bucket's full burst size when
// tokens are immediately available, 0 otherwise.
func (l *Limiter) AvailableBytes(dir Direction) int {
	b := l.buckets[dir]
	if b.Limit() == rate.Inf {
		return -1
	}
	now := time.Now()
	r := b.ReserveN(now, 1)
	if !r.OK() {
		return 0
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	if delay > 0 {
		return 0
	}
	return b.Burst()
}

// Consume deducts n bytes from dir's bucket immediately (used once a
// transfer operation has actually read/written n bytes).
func (l *Limiter) Consume(dir Direction, n int) {
	if n <= 0 {
		return
	}
	_ = l.buckets[dir].ReserveN(time.Now(), n)
}

// OnRateAvailable reports whether dir's bucket currently has spare
// capacity. It is a plain poll; the event loop does not call it.
func (l *Limiter) OnRateAvailable(dir Direction) bool {
	return l.AvailableBytes(dir) != 0
}

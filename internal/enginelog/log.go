// Package enginelog implements the leveled, deferral-aware logging
// described in spec.md §4.5 and §6.
//
// The teacher (rclone) logs through its own fs.Logf/fs.Debugf helpers
// rather than a third-party logging library — rclone is itself the
// ground truth for "the idiomatic way a Go CLI/engine like this logs",
// and that package is not on this module's dependency surface (it is
// rclone-internal). This package reimplements the same shape locally:
// a small leveled Logger interface plus a verbosity-gated sink, built on
// the standard library only. See DESIGN.md for the no-suitable-library
// justification this corresponds to.
package enginelog

import (
	"fmt"

	"github.com/transferengine/core/internal/notification"
)

// Sink receives every log record that clears the configured verbosity.
type Sink interface {
	Log(level notification.LogLevel, text string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(level notification.LogLevel, text string)

func (f SinkFunc) Log(level notification.LogLevel, text string) { f(level, text) }

// Logger gates records by verbosity and defers low-priority records in an
// unbounded slice. An error/status record flushes them ahead of itself;
// OperationEnded flushes them after a failed operation and drops them
// after a successful one, per spec.md §4.5's "Log-queue deferral".
type Logger struct {
	verbosity notification.LogLevel
	sink      Sink
	deferred  []deferredRecord
}

type deferredRecord struct {
	level notification.LogLevel
	text  string
}

// New returns a Logger that forwards records at or above verbosity
// importance (lower LogLevel values are more important per spec.md §6's
// ordering) directly to sink, deferring the rest.
func New(verbosity notification.LogLevel, sink Sink) *Logger {
	return &Logger{verbosity: verbosity, sink: sink}
}

// SetVerbosity reconfigures the gate at runtime (host option
// logging_debug_level / logging_detailed).
func (l *Logger) SetVerbosity(v notification.LogLevel) { l.verbosity = v }

func (l *Logger) Logf(level notification.LogLevel, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if level == notification.LevelError || level == notification.LevelStatus {
		l.FlushOnError()
		l.sink.Log(level, text)
		return
	}
	if level <= l.verbosity {
		l.sink.Log(level, text)
		return
	}
	l.deferred = append(l.deferred, deferredRecord{level: level, text: text})
}

// FlushOnError is called when an error/status record arrives; every
// buffered record is forwarded in order, then the buffer is cleared.
func (l *Logger) FlushOnError() {
	for _, r := range l.deferred {
		l.sink.Log(r.level, r.text)
	}
	l.deferred = l.deferred[:0]
}

// DropOnSuccess is called when the current operation ends OK; buffered
// low-priority records are discarded rather than shown.
func (l *Logger) DropOnSuccess() {
	l.deferred = l.deferred[:0]
}

// OperationEnded routes to FlushOnError or DropOnSuccess based on the
// terminal result of the operation that just completed.
func (l *Logger) OperationEnded(ok bool) {
	if ok {
		l.DropOnSuccess()
		return
	}
	l.FlushOnError()
}

// Package notification defines the asynchronous notification output of
// spec.md §6, drained by each consumer via Engine.NextNotification.
package notification

import (
	"time"

	"github.com/transferengine/core/internal/enginepath"
	"github.com/transferengine/core/internal/opstack"
)

// LogLevel mirrors spec.md §6's log-level set.
type LogLevel int

const (
	LevelStatus LogLevel = iota
	LevelError
	LevelCommand
	LevelResponse
	LevelDebugInfo
	LevelDebugWarning
	LevelDebugVerbose
	LevelDebugDebug
	LevelRawList
)

// Kind identifies which notification payload is populated.
type Kind int

const (
	Log Kind = iota
	OperationCompleted
	Listing
	TransferStatus
	LocalDirCreated
	AsyncRequest
	Active
)

// AsyncKind enumerates the AsyncRequest sub-kinds of spec.md §6.
type AsyncKind int

const (
	AsyncHostKey AsyncKind = iota
	AsyncChangedHostKey
	AsyncFileExists
	AsyncInteractiveLogin
	AsyncPassword
)

// Direction mirrors command.Direction for the Active notification without
// importing the command package (notifications never need the rest of a
// command's payload).
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

// Notification is the tagged union posted to a consumer's queue.
type Notification struct {
	Kind Kind

	// Log
	Level LogLevel
	Text  string

	// OperationCompleted
	CommandID uint64
	Result    opstack.Result

	// Listing
	Path enginepath.Path

	// TransferStatus
	StartOffset   int64
	CurrentOffset int64
	TotalSize     int64
	StartedAt     time.Time
	MadeProgress  bool

	// LocalDirCreated reuses Path.

	// AsyncRequest
	AsyncKind AsyncKind
	RequestID uint64

	// Active
	ActiveDirection Direction
}

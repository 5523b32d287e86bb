// Package command defines the tagged-union command input accepted by
// Engine.Execute, per spec.md §3 and §6.
package command

import (
	"github.com/transferengine/core/internal/enginepath"
	"github.com/transferengine/core/internal/serverid"
)

// Kind identifies which command payload is populated.
type Kind int

const (
	Connect Kind = iota
	Disconnect
	List
	FileTransfer
	Raw
	Delete
	RemoveDir
	Mkdir
	Rename
	Chmod
)

func (k Kind) String() string {
	switch k {
	case Connect:
		return "Connect"
	case Disconnect:
		return "Disconnect"
	case List:
		return "List"
	case FileTransfer:
		return "FileTransfer"
	case Raw:
		return "Raw"
	case Delete:
		return "Delete"
	case RemoveDir:
		return "RemoveDir"
	case Mkdir:
		return "Mkdir"
	case Rename:
		return "Rename"
	case Chmod:
		return "Chmod"
	default:
		return "Unknown"
	}
}

// Direction of a file transfer.
type Direction int

const (
	Download Direction = iota
	Upload
)

// ListFlag configures a List command.
type ListFlag uint32

const (
	ListRefresh ListFlag = 1 << iota
)

// TransferSettings carries per-transfer overrides.
type TransferSettings struct {
	ASCII              bool
	PreserveTimestamps bool
	Resume             bool
	OverwriteAction    OverwriteAction
}

// OverwriteAction is the consumer's policy for an existing destination
// file, per spec.md §4.4.3.
type OverwriteAction int

const (
	ActionAsk OverwriteAction = iota
	ActionOverwrite
	ActionResume
	ActionSkip
	ActionRename
)

// Command is the tagged union of spec.md §3. Exactly the fields relevant
// to Kind are populated by the caller; zero values elsewhere
// are ignored, matching the source's C++ tagged union collapsed into one
// Go struct with an explicit discriminant instead of an interface, since
// every command is dispatched purely on Kind and carries only plain data
// (no behavior) — see DESIGN NOTES §9.
type Command struct {
	ID   uint64
	Kind Kind

	// Connect
	Server      serverid.Server
	Credentials serverid.Credentials
	Retry       bool

	// List
	Path      enginepath.Path
	Subdir    string
	ListFlags ListFlag

	// FileTransfer
	LocalPath   string
	RemotePath  enginepath.Path
	RemoteFile  string
	Direction   Direction
	Settings    TransferSettings

	// Raw
	Text string

	// Delete
	Files []string

	// Rename
	FromPath enginepath.Path
	FromFile string
	ToPath   enginepath.Path
	ToFile   string

	// Chmod
	File string
	Perm string
}

// Package scheduler implements the transfer scheduler of spec.md §4.6:
// a pool of engines dispatching queued file-items to idle, server-matched
// connections, honoring per-server and per-direction concurrency limits,
// grounded on rclone's own transfer-queue dispatch (fs/accounting/transfer
// pacing, generalized here from a single fs.Fs worker pool to many
// independently-connected protocol sessions since spec.md §4.6 requires
// per-server connection caps the teacher's uniform worker pool has no
// equivalent of).
package scheduler

import (
	"github.com/transferengine/core/internal/command"
	"github.com/transferengine/core/internal/serverid"
)

// ItemState tracks a FileItem's position in the dispatch lifecycle.
type ItemState int

const (
	ItemQueued ItemState = iota
	ItemActive
	ItemSucceeded
	ItemFailed
)

// FileItem is one queued command.Command bound to a ServerItem, per
// spec.md §4.6's "vector of server-items (each with ordered file-items)".
type FileItem struct {
	Cmd        command.Command
	Priority   int
	ErrorCount int
	MaxErrors  int

	state  ItemState
	server *ServerItem
}

func (it *FileItem) State() ItemState { return it.state }

// direction reports the transfer direction for capacity accounting;
// non-transfer commands (mkdir, delete, rename, chmod) count against
// neither direction's limit.
func (it *FileItem) direction() (command.Direction, bool) {
	if it.Cmd.Kind != command.FileTransfer {
		return 0, false
	}
	return it.Cmd.Direction, true
}

// ServerItem holds one remote server's connection policy and its ordered
// queue of file-items.
type ServerItem struct {
	Server         serverid.Server
	Credentials    serverid.Credentials
	MaxConnections int

	Queue   []*FileItem
	inFlight int
}

// nextIdle returns the highest-priority queued item whose direction still
// has capacity, per tryStartNextTransfer step 3. dirOK is nil to accept
// any direction.
func (s *ServerItem) nextIdle(dirOK func(command.Direction, bool) bool) *FileItem {
	var best *FileItem
	for _, it := range s.Queue {
		if it.state != ItemQueued {
			continue
		}
		if dirOK != nil {
			dir, isTransfer := it.direction()
			if !dirOK(dir, isTransfer) {
				continue
			}
		}
		if best == nil || it.Priority > best.Priority {
			best = it
		}
	}
	return best
}

// remove drops it from the queue entirely (spec.md §4.6's "remove"
// routing outcome).
func (s *ServerItem) remove(it *FileItem) {
	for i, cand := range s.Queue {
		if cand == it {
			s.Queue = append(s.Queue[:i], s.Queue[i+1:]...)
			return
		}
	}
}

// hasWork reports whether any item is still queued or active.
func (s *ServerItem) hasWork() bool {
	for _, it := range s.Queue {
		if it.state == ItemQueued || it.state == ItemActive {
			return true
		}
	}
	return false
}

package scheduler

import "github.com/transferengine/core/internal/queuestore"

// ExportQueue snapshots every still-pending file item (queued or active)
// across every known server into the shape internal/queuestore persists,
// per spec.md §4.7's "the queue view is what gets saved." Items already
// succeeded or failed are not carried into a fresh on-disk queue; an item
// that was mid-transfer when the snapshot was taken comes back as freshly
// queued on the next Load rather than resuming a half-written
// destination, since only the caller knows whether a partial file is safe
// to append to.
func (s *Scheduler) ExportQueue() []queuestore.ServerSnapshot {
	out := make([]queuestore.ServerSnapshot, 0, len(s.servers))
	for _, si := range s.servers {
		snap := queuestore.ServerSnapshot{
			Server:         si.Server,
			Credentials:    si.Credentials,
			MaxConnections: si.MaxConnections,
		}
		for _, it := range si.Queue {
			if it.state != ItemQueued && it.state != ItemActive {
				continue
			}
			snap.Files = append(snap.Files, queuestore.FileSnapshot{
				Cmd:        it.Cmd,
				Priority:   it.Priority,
				ErrorCount: it.ErrorCount,
				MaxErrors:  it.MaxErrors,
			})
		}
		out = append(out, snap)
	}
	return out
}

// ImportQueue restores servers and file-items previously captured by
// ExportQueue (typically fed from queuestore.Load on startup),
// re-enqueueing each file as freshly queued work; Enqueue kicks the
// dispatcher after each file.
func (s *Scheduler) ImportQueue(servers []queuestore.ServerSnapshot) {
	for _, snap := range servers {
		si := s.AddServer(snap.Server, snap.Credentials, snap.MaxConnections)
		for _, f := range snap.Files {
			if f.InProgressEdit {
				continue
			}
			s.Enqueue(si, f.Cmd, f.Priority, f.MaxErrors)
		}
	}
}

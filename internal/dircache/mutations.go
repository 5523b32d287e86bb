package dircache

import (
	"github.com/transferengine/core/internal/direntry"
	"github.com/transferengine/core/internal/enginepath"
	"github.com/transferengine/core/internal/serverid"
)

// InvalidateFile marks every matching entry named filename (found via
// case-insensitive match against every listing whose path matches path
// case-insensitively) as unsure, and sets UnsureUnknown on the owning
// listing. It does not remove entries. wasDir reports whether any marked
// entry was a directory.
func (c *Cache) InvalidateFile(server serverid.Server, path enginepath.Path, filename string) (wasDir bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.bucketFor(server, false)
	if b == nil {
		return false
	}
	foldedPath := foldPath(path)
	for _, e := range b.entries {
		if !foldPath(e.listing.Path).Equal(foldedPath) {
			continue
		}
		touched := false
		for _, i := range e.listing.IndexOfFold(filename) {
			e.listing.Entries[i] = e.listing.Entries[i].WithFlag(direntry.FlagUnsure)
			if e.listing.Entries[i].IsDir() {
				wasDir = true
			}
			touched = true
		}
		if touched {
			e.listing.Flags |= direntry.UnsureUnknown
			e.modTime = c.now()
		}
	}
	return wasDir
}

// EntryType is the known or unknown kind of a path for UpdateFile.
type EntryType int

const (
	TypeUnknown EntryType = iota
	TypeFile
	TypeDir
)

// UpdateFile reconciles cached listings of path with knowledge that
// filename is now of the given type/size. If mayCreate is set, typ is not
// TypeUnknown and no entry (case-sensitive or -insensitive) exists, a
// synthetic unsure entry is appended.
func (c *Cache) UpdateFile(server serverid.Server, path enginepath.Path, filename string, mayCreate bool, typ EntryType, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.bucketFor(server, false)
	if b == nil {
		return
	}
	foldedPath := foldPath(path)
	for _, e := range b.entries {
		if !foldPath(e.listing.Path).Equal(foldedPath) {
			continue
		}
		before := len(e.listing.Entries)
		if i := e.listing.IndexOf(filename); i >= 0 {
			ent := e.listing.Entries[i]
			mismatch := (typ == TypeDir) != ent.IsDir() && typ != TypeUnknown
			switch {
			case mismatch:
				e.listing.Flags |= direntry.UnsureInvalid
			case typ == TypeDir:
				e.listing.Flags |= direntry.UnsureDirChanged
			case typ == TypeFile:
				e.listing.Flags |= direntry.UnsureFileChanged
			}
			ent.Size = size
			e.listing.Entries[i] = ent
			e.modTime = c.now()
			continue
		}
		idxs := e.listing.IndexOfFold(filename)
		if len(idxs) > 0 {
			for _, i := range idxs {
				e.listing.Entries[i] = e.listing.Entries[i].WithFlag(direntry.FlagUnsure)
			}
			e.modTime = c.now()
			continue
		}
		if mayCreate && typ != TypeUnknown {
			flags := direntry.FlagUnsure
			if typ == TypeDir {
				flags |= direntry.FlagDir
				e.listing.Flags |= direntry.UnsureDirAdded
			} else {
				e.listing.Flags |= direntry.UnsureFileAdded
			}
			e.listing.Entries = append(e.listing.Entries, direntry.Entry{
				Name:  filename,
				Size:  size,
				Flags: flags,
			})
			c.fileCount += len(e.listing.Entries) - before
			e.modTime = c.now()
		}
	}
}

// RemoveFile removes filename from the cached listing of path if a
// case-sensitive match exists; otherwise it flags case-insensitive
// matches unsure and marks the listing invalid.
func (c *Cache) RemoveFile(server serverid.Server, path enginepath.Path, filename string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeFileLocked(server, path, filename)
}

func (c *Cache) removeFileLocked(server serverid.Server, path enginepath.Path, filename string) {
	b := c.bucketFor(server, false)
	if b == nil {
		return
	}
	foldedPath := foldPath(path)
	for _, e := range b.entries {
		if !foldPath(e.listing.Path).Equal(foldedPath) {
			continue
		}
		if i := e.listing.IndexOf(filename); i >= 0 {
			e.listing.Entries = append(e.listing.Entries[:i], e.listing.Entries[i+1:]...)
			c.fileCount--
			e.modTime = c.now()
			continue
		}
		idxs := e.listing.IndexOfFold(filename)
		if len(idxs) > 0 {
			for _, i := range idxs {
				e.listing.Entries[i] = e.listing.Entries[i].WithFlag(direntry.FlagUnsure)
			}
			e.listing.Flags |= direntry.UnsureInvalid
			e.modTime = c.now()
		}
	}
}

// RemoveDir deletes every listing whose path equals parent/filename or is
// a descendant of it across every server bucket, then removes the entry
// named filename from the parent listing.
func (c *Cache) RemoveDir(server serverid.Server, parent enginepath.Path, filename string) {
	c.mu.Lock()
	target := parent.AddSegment(filename)
	foldedTarget := foldPath(target)
	for key, b := range c.buckets {
		for pkey, e := range b.entries {
			fp := foldPath(e.listing.Path)
			if fp.Equal(foldedTarget) || foldedTarget.IsParentOf(fp, false) {
				c.fileCount -= len(e.listing.Entries)
				c.lru.removeHandle(e.elem)
				delete(b.entries, pkey)
			}
		}
		if len(b.entries) == 0 {
			delete(c.buckets, key)
		}
	}
	c.removeFileLocked(server, parent, filename)
	c.mu.Unlock()
}

// Rename updates the cache after a successful remote rename. If the
// from-path listing is not cached, the whole server is invalidated
// (matching the source's conservative fallback).
func (c *Cache) Rename(server serverid.Server, fromPath enginepath.Path, fromFile string, toPath enginepath.Path, toFile string) {
	c.mu.Lock()

	b := c.bucketFor(server, false)
	if b == nil {
		c.mu.Unlock()
		return
	}
	srcEntry, srcPresent := b.entries[fromPath.SafePath()]
	if !srcPresent {
		c.mu.Unlock()
		c.InvalidateServer(server)
		return
	}

	sameDir := fromPath.Equal(toPath)
	if sameDir {
		idx := srcEntry.listing.IndexOf(fromFile)
		if idx < 0 {
			c.mu.Unlock()
			return
		}
		renamingDir := srcEntry.listing.Entries[idx].IsDir()
		if renamingDir {
			c.mu.Unlock()
			c.RemoveDir(server, fromPath, fromFile)
			c.mu.Lock()
			b = c.bucketFor(server, false)
			if b != nil {
				if e2, ok := b.entries[fromPath.SafePath()]; ok {
					e2.listing.Entries = append(e2.listing.Entries, direntry.Entry{
						Name:  toFile,
						Flags: direntry.FlagDir | direntry.FlagUnsure,
					})
					c.fileCount++
					e2.listing.Flags |= direntry.UnsureUnknown
					e2.modTime = c.now()
				}
			}
			c.mu.Unlock()
			return
		}
		ent := srcEntry.listing.Entries[idx]
		ent.Name = toFile
		ent = ent.WithFlag(direntry.FlagUnsure)
		srcEntry.listing.Entries[idx] = ent
		srcEntry.listing.Flags |= direntry.UnsureUnknown
		srcEntry.modTime = c.now()
		c.mu.Unlock()
		return
	}

	c.mu.Unlock()
	c.removeFileLocked2(server, fromPath, fromFile)
	c.UpdateFile(server, toPath, toFile, true, TypeUnknown, -1)
}

// removeFileLocked2 is RemoveFile without assuming the caller holds c.mu.
func (c *Cache) removeFileLocked2(server serverid.Server, path enginepath.Path, filename string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeFileLocked(server, path, filename)
}

func foldPath(p enginepath.Path) enginepath.Path { return p.CaseFold() }

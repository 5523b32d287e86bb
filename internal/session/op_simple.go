package session

import (
	"github.com/transferengine/core/internal/dircache"
	"github.com/transferengine/core/internal/enginepath"
	"github.com/transferengine/core/internal/notification"
	"github.com/transferengine/core/internal/opstack"
)

// linearState is the two-step "init -> done" shape shared by the simple
// FTP command operations of spec.md §4.4.4.
type linearState int

const (
	linInit linearState = iota
	linWaitReply
	linDone
)

// MkdirOp issues Mkdir(path) and, on success, records the created
// directory in the directory cache and invalidates any path-cache mapping
// for it, per spec.md §4.1/§4.2.
type MkdirOp struct {
	base  *Base
	Path  enginepath.Path
	state linearState
}

func NewMkdirOp(b *Base, path enginepath.Path) *MkdirOp { return &MkdirOp{base: b, Path: path} }
func (op *MkdirOp) Name() string                        { return "Mkdir" }

func (op *MkdirOp) Send() opstack.Result {
	if op.state == linDone {
		return opstack.OK
	}
	op.state = linWaitReply
	op.base.runAsync(func() (any, error) {
		return nil, op.base.Transport.Mkdir(op.Path)
	})
	return opstack.WouldBlock
}

func (op *MkdirOp) ParseResponse(event any) opstack.Result {
	ev, ok := event.(asyncEvent)
	if !ok {
		return opstack.WouldBlock
	}
	if ev.err != nil {
		return opstack.Error
	}
	server, _ := op.base.Server()
	if parent, ok := op.Path.Parent(); ok {
		op.base.Ctx.DirCache.UpdateFile(server, parent, lastSegment(op.Path), true, dircache.TypeDir, -1)
		op.base.Ctx.PathCache.InvalidatePath(server, parent, lastSegment(op.Path))
	}
	op.state = linDone
	return opstack.OK
}

func (op *MkdirOp) SubcommandResult(result opstack.Result, child opstack.Operation) opstack.Result {
	return opstack.InternalError
}

// RmdirOp issues RemoveDir and purges descendant listings, per spec.md
// §4.1's RemoveDir contract. As spec.md §9 notes, the source's own
// comment calls this path handling "not 100% foolproof"; that limitation
// is carried forward unchanged rather than silently hardened.
type RmdirOp struct {
	base   *Base
	Parent enginepath.Path
	Subdir string
	state  linearState
}

func NewRmdirOp(b *Base, parent enginepath.Path, subdir string) *RmdirOp {
	return &RmdirOp{base: b, Parent: parent, Subdir: subdir}
}
func (op *RmdirOp) Name() string { return "RemoveDir" }

func (op *RmdirOp) Send() opstack.Result {
	if op.state == linDone {
		return opstack.OK
	}
	op.state = linWaitReply
	target := op.Parent.AddSegment(op.Subdir)
	op.base.runAsync(func() (any, error) {
		return nil, op.base.Transport.Rmdir(target)
	})
	return opstack.WouldBlock
}

func (op *RmdirOp) ParseResponse(event any) opstack.Result {
	ev, ok := event.(asyncEvent)
	if !ok {
		return opstack.WouldBlock
	}
	if ev.err != nil {
		return opstack.Error
	}
	server, _ := op.base.Server()
	op.base.Ctx.DirCache.RemoveDir(server, op.Parent, op.Subdir)
	op.base.Ctx.PathCache.InvalidatePath(server, op.Parent, op.Subdir)
	op.state = linDone
	return opstack.OK
}

func (op *RmdirOp) SubcommandResult(opstack.Result, opstack.Operation) opstack.Result {
	return opstack.InternalError
}

// DeleteOp removes each named file under path.
type DeleteOp struct {
	base  *Base
	Path  enginepath.Path
	Files []string
	idx   int
	state linearState
}

func NewDeleteOp(b *Base, path enginepath.Path, files []string) *DeleteOp {
	return &DeleteOp{base: b, Path: path, Files: files}
}
func (op *DeleteOp) Name() string { return "Delete" }

func (op *DeleteOp) Send() opstack.Result {
	if op.idx >= len(op.Files) {
		return opstack.OK
	}
	op.state = linWaitReply
	file := op.Files[op.idx]
	op.base.runAsync(func() (any, error) {
		return nil, op.base.Transport.Delete(op.Path, file)
	})
	return opstack.WouldBlock
}

func (op *DeleteOp) ParseResponse(event any) opstack.Result {
	ev, ok := event.(asyncEvent)
	if !ok {
		return opstack.WouldBlock
	}
	if ev.err != nil {
		return opstack.Error
	}
	server, _ := op.base.Server()
	op.base.Ctx.DirCache.RemoveFile(server, op.Path, op.Files[op.idx])
	op.base.Ctx.PathCache.InvalidatePath(server, op.Path, op.Files[op.idx])
	op.idx++
	if op.idx >= len(op.Files) {
		return opstack.OK
	}
	return opstack.Continue
}

func (op *DeleteOp) SubcommandResult(opstack.Result, opstack.Operation) opstack.Result {
	return opstack.InternalError
}

// RenameOp renames one file/directory.
type RenameOp struct {
	base             *Base
	FromPath, ToPath enginepath.Path
	FromFile, ToFile string
	state            linearState
}

func NewRenameOp(b *Base, fromPath enginepath.Path, fromFile string, toPath enginepath.Path, toFile string) *RenameOp {
	return &RenameOp{base: b, FromPath: fromPath, FromFile: fromFile, ToPath: toPath, ToFile: toFile}
}
func (op *RenameOp) Name() string { return "Rename" }

func (op *RenameOp) Send() opstack.Result {
	if op.state == linDone {
		return opstack.OK
	}
	op.state = linWaitReply
	op.base.runAsync(func() (any, error) {
		return nil, op.base.Transport.Rename(op.FromPath, op.FromFile, op.ToPath, op.ToFile)
	})
	return opstack.WouldBlock
}

func (op *RenameOp) ParseResponse(event any) opstack.Result {
	ev, ok := event.(asyncEvent)
	if !ok {
		return opstack.WouldBlock
	}
	if ev.err != nil {
		return opstack.Error
	}
	server, _ := op.base.Server()
	op.base.Ctx.DirCache.Rename(server, op.FromPath, op.FromFile, op.ToPath, op.ToFile)
	op.base.Ctx.PathCache.InvalidatePath(server, op.FromPath, op.FromFile)
	op.base.Ctx.PathCache.InvalidatePath(server, op.ToPath, op.ToFile)
	op.base.Ctx.InvalidateCurrentWorkingDirs(op.base.ID(), op.FromPath.AddSegment(op.FromFile).SafePath())
	op.state = linDone
	return opstack.OK
}

func (op *RenameOp) SubcommandResult(opstack.Result, opstack.Operation) opstack.Result {
	return opstack.InternalError
}

// ChmodOp sets permissions on one file.
type ChmodOp struct {
	base       *Base
	Path       enginepath.Path
	File, Perm string
	state      linearState
}

func NewChmodOp(b *Base, path enginepath.Path, file, perm string) *ChmodOp {
	return &ChmodOp{base: b, Path: path, File: file, Perm: perm}
}
func (op *ChmodOp) Name() string { return "Chmod" }

func (op *ChmodOp) Send() opstack.Result {
	if op.state == linDone {
		return opstack.OK
	}
	op.state = linWaitReply
	op.base.runAsync(func() (any, error) {
		return nil, op.base.Transport.Chmod(op.Path, op.File, op.Perm)
	})
	return opstack.WouldBlock
}

func (op *ChmodOp) ParseResponse(event any) opstack.Result {
	ev, ok := event.(asyncEvent)
	if !ok {
		return opstack.WouldBlock
	}
	if ev.err != nil {
		return opstack.Error
	}
	server, _ := op.base.Server()
	op.base.Ctx.DirCache.InvalidateFile(server, op.Path, op.File)
	op.state = linDone
	return opstack.OK
}

func (op *ChmodOp) SubcommandResult(opstack.Result, opstack.Operation) opstack.Result {
	return opstack.InternalError
}

// RawOp sends an arbitrary command whose semantics are unknown to the
// engine; per spec.md §4.4.4 it invalidates both caches for the whole
// server rather than trying to reason about what changed.
type RawOp struct {
	base  *Base
	Text  string
	state linearState
}

func NewRawOp(b *Base, text string) *RawOp { return &RawOp{base: b, Text: text} }
func (op *RawOp) Name() string             { return "Raw" }

func (op *RawOp) Send() opstack.Result {
	if op.state == linDone {
		return opstack.OK
	}
	op.state = linWaitReply
	op.base.runAsync(func() (any, error) {
		return op.base.Transport.Raw(op.Text)
	})
	return opstack.WouldBlock
}

func (op *RawOp) ParseResponse(event any) opstack.Result {
	ev, ok := event.(asyncEvent)
	if !ok {
		return opstack.WouldBlock
	}
	if ev.err != nil {
		return opstack.Error
	}
	if reply, ok := ev.payload.(string); ok {
		op.base.Logf(notification.LevelResponse, "%s", reply)
	}
	server, _ := op.base.Server()
	op.base.Ctx.DirCache.InvalidateServer(server)
	op.base.Ctx.PathCache.InvalidateServer(server)
	op.state = linDone
	return opstack.OK
}

func (op *RawOp) SubcommandResult(opstack.Result, opstack.Operation) opstack.Result {
	return opstack.InternalError
}

func lastSegment(p enginepath.Path) string {
	segs := p.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

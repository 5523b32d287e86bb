package dircache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transferengine/core/internal/direntry"
	"github.com/transferengine/core/internal/enginepath"
)

func TestInvalidateFileMarksUnsureWithoutRemoving(t *testing.T) {
	c := New()
	srv := testServer("a")
	p := enginepath.New(enginepath.SyntaxUnix, "/home")
	l := listingAt(p, "a.txt", "b.txt")
	l.Entries[0].Flags |= direntry.FlagDir
	c.Store(srv, l)

	wasDir := c.InvalidateFile(srv, p, "a.txt")
	assert.True(t, wasDir)

	got, _, ok := c.Lookup(srv, p, true)
	require.True(t, ok)
	require.Len(t, got.Entries, 2)
	assert.True(t, got.Entries[0].IsUnsure())
	assert.False(t, got.Entries[1].IsUnsure())
	assert.True(t, got.Flags&direntry.UnsureUnknown != 0)
}

func TestInvalidateFileCaseInsensitive(t *testing.T) {
	c := New()
	srv := testServer("a")
	p := enginepath.New(enginepath.SyntaxUnix, "/home")
	c.Store(srv, listingAt(p, "README"))

	wasDir := c.InvalidateFile(srv, p, "readme")
	assert.False(t, wasDir)

	got, _, _ := c.Lookup(srv, p, true)
	assert.True(t, got.Entries[0].IsUnsure())
}

func TestUpdateFileExistingExactMatch(t *testing.T) {
	c := New()
	srv := testServer("a")
	p := enginepath.New(enginepath.SyntaxUnix, "/home")
	c.Store(srv, listingAt(p, "a.txt"))

	c.UpdateFile(srv, p, "a.txt", false, TypeFile, 42)

	got, _, _ := c.Lookup(srv, p, true)
	assert.Equal(t, int64(42), got.Entries[0].Size)
	assert.True(t, got.Flags&direntry.UnsureFileChanged != 0)
}

func TestUpdateFileTypeMismatchMarksInvalid(t *testing.T) {
	c := New()
	srv := testServer("a")
	p := enginepath.New(enginepath.SyntaxUnix, "/home")
	l := listingAt(p, "a.txt") // plain file entry
	c.Store(srv, l)

	c.UpdateFile(srv, p, "a.txt", false, TypeDir, 0)

	got, _, _ := c.Lookup(srv, p, true)
	assert.True(t, got.Flags&direntry.UnsureInvalid != 0)
}

func TestUpdateFileCreatesSyntheticEntryWhenMayCreate(t *testing.T) {
	c := New()
	srv := testServer("a")
	p := enginepath.New(enginepath.SyntaxUnix, "/home")
	c.Store(srv, listingAt(p))
	before := c.FileCount()

	c.UpdateFile(srv, p, "new.txt", true, TypeFile, 7)

	got, _, _ := c.Lookup(srv, p, true)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "new.txt", got.Entries[0].Name)
	assert.True(t, got.Entries[0].IsUnsure())
	assert.True(t, got.Flags&direntry.UnsureFileAdded != 0)
	assert.Equal(t, before+1, c.FileCount())
}

func TestUpdateFileNoCreateLeavesListingUntouched(t *testing.T) {
	c := New()
	srv := testServer("a")
	p := enginepath.New(enginepath.SyntaxUnix, "/home")
	c.Store(srv, listingAt(p))

	c.UpdateFile(srv, p, "new.txt", false, TypeFile, 7)

	got, _, _ := c.Lookup(srv, p, true)
	assert.Empty(t, got.Entries)
}

func TestRemoveFileExactMatch(t *testing.T) {
	c := New()
	srv := testServer("a")
	p := enginepath.New(enginepath.SyntaxUnix, "/home")
	c.Store(srv, listingAt(p, "a.txt", "b.txt"))

	c.RemoveFile(srv, p, "a.txt")

	got, _, _ := c.Lookup(srv, p, true)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "b.txt", got.Entries[0].Name)
	assert.Equal(t, 1, c.FileCount())
}

func TestRemoveFileCaseFoldMarksUnsureInvalid(t *testing.T) {
	c := New()
	srv := testServer("a")
	p := enginepath.New(enginepath.SyntaxUnix, "/home")
	c.Store(srv, listingAt(p, "README"))

	c.RemoveFile(srv, p, "readme")

	got, _, _ := c.Lookup(srv, p, true)
	require.Len(t, got.Entries, 1, "a folded-case miss never removes the entry outright")
	assert.True(t, got.Entries[0].IsUnsure())
	assert.True(t, got.Flags&direntry.UnsureInvalid != 0)
}

func TestRemoveDirDropsDescendantListings(t *testing.T) {
	c := New()
	srv := testServer("a")
	parent := enginepath.New(enginepath.SyntaxUnix, "/home")
	target := parent.AddSegment("sub")
	child := target.AddSegment("deep")

	l := listingAt(parent, "sub")
	l.Entries[0].Flags |= direntry.FlagDir
	c.Store(srv, l)
	c.Store(srv, listingAt(target, "f1"))
	c.Store(srv, listingAt(child, "f2"))

	c.RemoveDir(srv, parent, "sub")

	_, _, ok := c.Lookup(srv, target, true)
	assert.False(t, ok)
	_, _, ok = c.Lookup(srv, child, true)
	assert.False(t, ok)

	got, _, ok := c.Lookup(srv, parent, true)
	require.True(t, ok)
	assert.Empty(t, got.Entries, "the removed subdir's entry is also dropped from its parent listing")
	assert.Equal(t, 0, c.FileCount())
	assert.Equal(t, 1, c.LRULen(), "only the parent's own (now-empty) listing survives")
}

func TestRenameSameDirFile(t *testing.T) {
	c := New()
	srv := testServer("a")
	p := enginepath.New(enginepath.SyntaxUnix, "/home")
	c.Store(srv, listingAt(p, "old.txt"))

	c.Rename(srv, p, "old.txt", p, "new.txt")

	got, _, _ := c.Lookup(srv, p, true)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "new.txt", got.Entries[0].Name)
	assert.True(t, got.Entries[0].IsUnsure())
}

func TestRenameSameDirDirectory(t *testing.T) {
	c := New()
	srv := testServer("a")
	parent := enginepath.New(enginepath.SyntaxUnix, "/home")
	oldTarget := parent.AddSegment("old")

	l := listingAt(parent, "old")
	l.Entries[0].Flags |= direntry.FlagDir
	c.Store(srv, l)
	c.Store(srv, listingAt(oldTarget, "inner"))

	c.Rename(srv, parent, "old", parent, "new")

	_, _, ok := c.Lookup(srv, oldTarget, true)
	assert.False(t, ok, "the old directory's own listing is dropped, same as RemoveDir")

	got, _, ok := c.Lookup(srv, parent, true)
	require.True(t, ok)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "new", got.Entries[0].Name)
	assert.True(t, got.Entries[0].IsDir())
	assert.True(t, got.Entries[0].IsUnsure())
}

func TestRenameAcrossDirectories(t *testing.T) {
	c := New()
	srv := testServer("a")
	src := enginepath.New(enginepath.SyntaxUnix, "/a")
	dst := enginepath.New(enginepath.SyntaxUnix, "/b")
	c.Store(srv, listingAt(src, "f.txt"))
	c.Store(srv, listingAt(dst))

	c.Rename(srv, src, "f.txt", dst, "g.txt")

	srcListing, _, _ := c.Lookup(srv, src, true)
	assert.Empty(t, srcListing.Entries, "the source entry is dropped from its old listing")

	// UpdateFile's synthetic-entry path requires a known TypeFile/TypeDir;
	// Rename calls it with TypeUnknown for a cross-directory move, so the
	// destination listing is left untouched rather than gaining a guessed
	// entry (it stays stale until the next real list of that directory).
	dstListing, _, ok := c.Lookup(srv, dst, true)
	require.True(t, ok)
	assert.Empty(t, dstListing.Entries)
}

func TestRenameUncachedSourceInvalidatesServer(t *testing.T) {
	c := New()
	srv := testServer("a")
	other := enginepath.New(enginepath.SyntaxUnix, "/other")
	c.Store(srv, listingAt(other, "x"))

	src := enginepath.New(enginepath.SyntaxUnix, "/missing")
	dst := enginepath.New(enginepath.SyntaxUnix, "/dst")
	c.Rename(srv, src, "f", dst, "g")

	_, _, ok := c.Lookup(srv, other, true)
	assert.False(t, ok, "an uncached rename source falls back to invalidating the whole server")
}

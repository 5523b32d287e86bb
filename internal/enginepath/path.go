// Package enginepath implements the protocol-typed remote path value used
// throughout the transfer engine. Paths are cheap value objects: copying,
// comparing and hashing them never touches the network or the caches.
package enginepath

import (
	"strings"
)

// Syntax identifies which remote path grammar a Path follows.
type Syntax int

const (
	// SyntaxUnix is the default forward-slash rooted grammar used by
	// FTP, SFTP and object-storage "directories".
	SyntaxUnix Syntax = iota
	SyntaxVMS
	SyntaxDOS
	SyntaxMVS
)

// Path is an immutable, protocol-typed remote path.
//
// The zero value is the empty path "" in SyntaxUnix.
type Path struct {
	syntax   Syntax
	segments []string
	// absolute is true for paths rooted at the server's top ("/a/b").
	absolute bool
}

// New builds a Path from a slash-separated textual form using syntax.
func New(syntax Syntax, text string) Path {
	if text == "" {
		return Path{syntax: syntax}
	}
	sep := separator(syntax)
	absolute := strings.HasPrefix(text, sep)
	trimmed := strings.Trim(text, sep)
	var segs []string
	if trimmed != "" {
		segs = strings.Split(trimmed, sep)
	}
	return Path{syntax: syntax, segments: segs, absolute: absolute}
}

func separator(s Syntax) string {
	switch s {
	case SyntaxDOS:
		return "\\"
	default:
		return "/"
	}
}

// Syntax returns the path grammar.
func (p Path) Syntax() Syntax { return p.syntax }

// Segments returns a copy of the path's components, root to leaf.
func (p Path) Segments() []string {
	out := make([]string, len(p.segments))
	copy(out, p.segments)
	return out
}

// IsAbsolute reports whether the path is rooted.
func (p Path) IsAbsolute() bool { return p.absolute }

// IsEmpty reports whether the path has no segments and is not absolute.
func (p Path) IsEmpty() bool { return len(p.segments) == 0 && !p.absolute }

// AddSegment returns a new path with name appended.
func (p Path) AddSegment(name string) Path {
	segs := make([]string, len(p.segments)+1)
	copy(segs, p.segments)
	segs[len(p.segments)] = name
	return Path{syntax: p.syntax, segments: segs, absolute: p.absolute}
}

// Parent returns the path with its last segment removed and true, or the
// zero value and false if the path has no parent.
func (p Path) Parent() (Path, bool) {
	if len(p.segments) == 0 {
		return Path{}, false
	}
	segs := make([]string, len(p.segments)-1)
	copy(segs, p.segments[:len(p.segments)-1])
	return Path{syntax: p.syntax, segments: segs, absolute: p.absolute}, true
}

// IsParentOf reports whether p is an ancestor of other. If allowEqual is
// true, p is considered a parent of itself.
func (p Path) IsParentOf(other Path, allowEqual bool) bool {
	if p.Equal(other) {
		return allowEqual
	}
	if len(p.segments) >= len(other.segments) {
		return false
	}
	for i, s := range p.segments {
		if other.segments[i] != s {
			return false
		}
	}
	return true
}

// Equal reports whether two paths denote the same location, comparing
// case-sensitively. Case-insensitive comparisons are the caller's
// responsibility (see CaseFold) because case sensitivity is a
// server/filesystem property, not a path-syntax one.
func (p Path) Equal(other Path) bool {
	if p.syntax != other.syntax || p.absolute != other.absolute {
		return false
	}
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i, s := range p.segments {
		if other.segments[i] != s {
			return false
		}
	}
	return true
}

// CaseFold returns a copy of the path with every segment lower-cased, for
// use as a case-insensitive comparison/lookup key.
func (p Path) CaseFold() Path {
	segs := make([]string, len(p.segments))
	for i, s := range p.segments {
		segs[i] = strings.ToLower(s)
	}
	return Path{syntax: p.syntax, segments: segs, absolute: p.absolute}
}

// FormatFilename renders name as it would be sent on the wire for this
// path's syntax. omitPrefix suppresses a leading "./" for relative forms.
func (p Path) FormatFilename(name string, omitPrefix bool) string {
	full := p.AddSegment(name)
	s := full.SafePath()
	if omitPrefix {
		s = strings.TrimPrefix(s, "./")
	}
	return s
}

// SafePath renders a round-trippable textual form of the path.
func (p Path) SafePath() string {
	sep := separator(p.syntax)
	body := strings.Join(p.segments, sep)
	switch {
	case p.absolute:
		return sep + body
	case body == "":
		return "."
	default:
		return "." + sep + body
	}
}

// String implements fmt.Stringer.
func (p Path) String() string { return p.SafePath() }

// CommonParent returns the deepest path that is an ancestor of both p and
// other (or equal to one of them).
func (p Path) CommonParent(other Path) Path {
	if p.syntax != other.syntax || p.absolute != other.absolute {
		return Path{syntax: p.syntax, absolute: p.absolute}
	}
	n := len(p.segments)
	if len(other.segments) < n {
		n = len(other.segments)
	}
	i := 0
	for i < n && p.segments[i] == other.segments[i] {
		i++
	}
	segs := make([]string, i)
	copy(segs, p.segments[:i])
	return Path{syntax: p.syntax, segments: segs, absolute: p.absolute}
}

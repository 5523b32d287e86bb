// Package session implements the common control-session framework of
// spec.md §4.4: the operation stack driving FTP/SFTP/object-storage
// commands is shared code here, parameterized over a small Transport
// interface that each backend (backend/ftp, backend/sftp,
// backend/objectstorage) implements against its real wire protocol.
//
// This mirrors the source's abstract control-socket base (DESIGN NOTES
// §9): shared state — current path, operation stack, cache-lock
// accounting — lives in Base, embedded by each concrete session, rather
// than in a deep inheritance chain.
package session

import (
	"errors"
	"time"

	"github.com/transferengine/core/internal/direntry"
	"github.com/transferengine/core/internal/enginepath"
	"github.com/transferengine/core/internal/serverid"
)

// ErrNotSupported is returned by a Transport method the protocol has no
// equivalent for (e.g. CDUP over SFTP).
var ErrNotSupported = errors.New("session: not supported by this protocol")

// ProtoCaps describes which optional protocol features a Transport
// implementation can exercise, letting the shared FTP-flavored state
// machines degrade gracefully for SFTP/object-storage's simpler, more
// linear command sets (spec.md §4.4.5).
type ProtoCaps struct {
	SupportsCDUP        bool
	NeedsPwdConfirm     bool // CWD's success must be confirmed with PWD
	SupportsSize        bool
	SupportsMDTM        bool
	SupportsMFMT        bool
	SupportsRestStor    bool
	SupportsHiddenFlag  bool // LIST -a style hidden-file listing
	PathSyntax          enginepath.Syntax
}

// Transport is the per-protocol primitive command set. Every method
// blocks the calling goroutine; Base.runAsync is used to keep the event
// loop non-blocking by running these calls off-loop and posting their
// outcome back as an event (see base.go), which is how this interface
// stays compatible with spec.md §5's single-threaded dispatch model even
// though the underlying client libraries (jlaffaye/ftp, pkg/sftp,
// aws-sdk-go) are synchronous.
type Transport interface {
	Caps() ProtoCaps
	Dial(server serverid.Server, creds serverid.Credentials) error
	Close() error

	Pwd() (enginepath.Path, error)
	Cwd(path enginepath.Path) error
	Cdup() error
	Mkdir(path enginepath.Path) error
	Rmdir(path enginepath.Path) error
	List(path enginepath.Path, hidden bool) ([]direntry.Entry, error)
	Delete(path enginepath.Path, file string) error
	Rename(fromPath enginepath.Path, fromFile string, toPath enginepath.Path, toFile string) error
	Chmod(path enginepath.Path, file, perm string) error
	Raw(text string) (string, error)

	Size(path enginepath.Path, file string) (int64, error)
	ModTime(path enginepath.Path, file string) (time.Time, error)
	SetModTime(path enginepath.Path, file string, t time.Time) error

	// Retrieve downloads file into localPath, starting the remote read
	// at offset (0 for a fresh download). It returns the number of bytes
	// written.
	Retrieve(path enginepath.Path, file, localPath string, offset int64) (int64, error)
	// Store uploads localPath to file. If useRest is true the remote
	// write starts at offset via REST+STOR (or the SFTP/object-storage
	// equivalent); otherwise offset>0 means "append".
	Store(path enginepath.Path, file, localPath string, offset int64, useRest bool) (int64, error)
}

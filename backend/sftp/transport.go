// Package sftp implements session.Transport over SFTP using
// github.com/pkg/sftp and golang.org/x/crypto/ssh, grounded on the
// source's client split between an ssh transport and an sftp.Client
// riding on top of it. The source's internal-vs-external ssh client idiom
// (its ssh.go/ssh_internal.go, not kept in this module) is dropped in
// favor of a single golang.org/x/crypto/ssh client.
package sftp

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/transferengine/core/internal/direntry"
	"github.com/transferengine/core/internal/enginepath"
	"github.com/transferengine/core/internal/serverid"
	"github.com/transferengine/core/internal/session"
)

// Transport drives one SFTP session over one SSH connection, called from
// a single goroutine at a time by session.Base.runAsync.
type Transport struct {
	sshConn *ssh.Client
	client  *sftp.Client
	cwd     enginepath.Path
}

func New() *Transport {
	return &Transport{}
}

func (t *Transport) Caps() session.ProtoCaps {
	return session.ProtoCaps{
		SupportsCDUP:     false,
		NeedsPwdConfirm:  false,
		SupportsSize:     true,
		SupportsMDTM:     true,
		SupportsMFMT:     true,
		SupportsRestStor: true,
		PathSyntax:       enginepath.SyntaxUnix,
	}
}

func (t *Transport) Dial(server serverid.Server, creds serverid.Credentials) error {
	auth, err := authMethods(server, creds)
	if err != nil {
		return err
	}
	config := &ssh.ClientConfig{
		User:            server.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // host-key pinning is config-layer policy, not this transport's concern
		Timeout:         30 * time.Second,
	}
	addr := fmt.Sprintf("%s:%d", server.Host, server.Port)
	conn, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return err
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	t.sshConn, t.client = conn, client
	if wd, err := client.Getwd(); err == nil {
		t.cwd = enginepath.New(enginepath.SyntaxUnix, wd)
	}
	return nil
}

func authMethods(server serverid.Server, creds serverid.Credentials) ([]ssh.AuthMethod, error) {
	if server.Logon == serverid.LogonKeyFile {
		key, err := os.ReadFile(creds.KeyFilePath)
		if err != nil {
			return nil, err
		}
		var signer ssh.Signer
		if creds.Password != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(creds.Password))
		} else {
			signer, err = ssh.ParsePrivateKey(key)
		}
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return []ssh.AuthMethod{ssh.Password(creds.Password)}, nil
}

func (t *Transport) Close() error {
	var errs []error
	if t.client != nil {
		errs = append(errs, t.client.Close())
	}
	if t.sshConn != nil {
		errs = append(errs, t.sshConn.Close())
	}
	t.client, t.sshConn = nil, nil
	return errors.Join(errs...)
}

func (t *Transport) Pwd() (enginepath.Path, error) {
	wd, err := t.client.Getwd()
	if err != nil {
		return enginepath.Path{}, err
	}
	return enginepath.New(enginepath.SyntaxUnix, wd), nil
}

func (t *Transport) Cwd(path enginepath.Path) error {
	info, err := t.client.Stat(path.SafePath())
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("sftp: %s is not a directory", path.SafePath())
	}
	t.cwd = path
	return nil
}

func (t *Transport) Cdup() error { return session.ErrNotSupported }

func (t *Transport) Mkdir(path enginepath.Path) error {
	return t.client.Mkdir(path.SafePath())
}

func (t *Transport) Rmdir(path enginepath.Path) error {
	return t.client.RemoveDirectory(path.SafePath())
}

func (t *Transport) List(path enginepath.Path, hidden bool) ([]direntry.Entry, error) {
	infos, err := t.client.ReadDir(path.SafePath())
	if err != nil {
		return nil, err
	}
	out := make([]direntry.Entry, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if !hidden && len(name) > 0 && name[0] == '.' {
			continue
		}
		entry := direntry.Entry{
			Name:           name,
			Size:           info.Size(),
			ModTime:        info.ModTime(),
			HasModTime:     true,
			PreciseModTime: true,
			Permissions:    info.Mode().String(),
			HasPermissions: true,
		}
		if info.IsDir() {
			entry.Flags |= direntry.FlagDir
		}
		if info.Mode()&os.ModeSymlink != 0 {
			entry.Flags |= direntry.FlagLink
			if target, err := t.client.ReadLink(path.AddSegment(name).SafePath()); err == nil {
				entry.LinkTarget, entry.HasLinkTarget = target, true
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func (t *Transport) Delete(path enginepath.Path, file string) error {
	return t.client.Remove(path.AddSegment(file).SafePath())
}

func (t *Transport) Rename(fromPath enginepath.Path, fromFile string, toPath enginepath.Path, toFile string) error {
	return t.client.Rename(fromPath.AddSegment(fromFile).SafePath(), toPath.AddSegment(toFile).SafePath())
}

func (t *Transport) Chmod(path enginepath.Path, file, perm string) error {
	mode, err := parseOctalMode(perm)
	if err != nil {
		return err
	}
	return t.client.Chmod(path.AddSegment(file).SafePath(), mode)
}

func parseOctalMode(perm string) (os.FileMode, error) {
	var v uint32
	if _, err := fmt.Sscanf(perm, "%o", &v); err != nil {
		return 0, fmt.Errorf("sftp: invalid permission string %q: %w", perm, err)
	}
	return os.FileMode(v), nil
}

func (t *Transport) Raw(text string) (string, error) {
	return "", session.ErrNotSupported
}

func (t *Transport) Size(path enginepath.Path, file string) (int64, error) {
	info, err := t.client.Stat(path.AddSegment(file).SafePath())
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (t *Transport) ModTime(path enginepath.Path, file string) (time.Time, error) {
	info, err := t.client.Stat(path.AddSegment(file).SafePath())
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (t *Transport) SetModTime(path enginepath.Path, file string, mtime time.Time) error {
	return t.client.Chtimes(path.AddSegment(file).SafePath(), mtime, mtime)
}

func (t *Transport) Retrieve(path enginepath.Path, file, localPath string, offset int64) (int64, error) {
	remote, err := t.client.Open(path.AddSegment(file).SafePath())
	if err != nil {
		return 0, err
	}
	defer remote.Close()
	if offset > 0 {
		if _, err := remote.Seek(offset, io.SeekStart); err != nil {
			return 0, err
		}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(localPath, flags, 0o644)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	return io.Copy(out, remote)
}

func (t *Transport) Store(path enginepath.Path, file, localPath string, offset int64, useRest bool) (int64, error) {
	in, err := os.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	if useRest && offset > 0 {
		if _, err := in.Seek(offset, io.SeekStart); err != nil {
			return 0, err
		}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if useRest && offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	remote, err := t.client.OpenFile(path.AddSegment(file).SafePath(), flags)
	if err != nil {
		return 0, err
	}
	defer remote.Close()
	if useRest && offset > 0 {
		if _, err := remote.Seek(offset, io.SeekStart); err != nil {
			return 0, err
		}
	}

	return io.Copy(remote, in)
}

// Package serverid defines the server-identity value used as the cache
// and capability-registry key throughout the engine.
package serverid

import "fmt"

// Protocol identifies the wire protocol used to reach a server.
type Protocol int

const (
	ProtocolFTP Protocol = iota
	ProtocolFTPImplicitTLS
	ProtocolFTPExplicitTLS
	ProtocolSFTP
	ProtocolObjectStorage
)

// LogonType controls how credentials are supplied at connect time.
type LogonType int

const (
	LogonNormal LogonType = iota
	LogonAnonymous
	LogonAsk
	LogonInteractive
	LogonAccount
	LogonKeyFile
)

// Server is the identity half of a server definition. Equality ignores
// the saved password; password equality lives in Credentials, which
// travels alongside but is never hashed into the cache/capability key.
type Server struct {
	Protocol        Protocol
	Host            string
	Port            int
	User            string
	Logon           LogonType
	Encoding        string
	TimezoneOffset  int // minutes, 0 until discovered
	MaxConnections  int // 0 = unlimited
	PostLoginCmds   []string
	BypassProxy     bool
	Name            string
}

// Key returns a value usable as a map key; two Servers with equal Key
// values are the same server for cache/capability purposes.
func (s Server) Key() string {
	return fmt.Sprintf("%d|%s|%d|%s|%d|%s", s.Protocol, s.Host, s.Port, s.User, s.Logon, s.Encoding)
}

// Equal compares two servers ignoring credentials, consistent with §3.
func (s Server) Equal(o Server) bool { return s.Key() == o.Key() }

func (s Server) String() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("%s@%s:%d", s.User, s.Host, s.Port)
}

// Credentials travels alongside a Server but is excluded from Key/Equal.
type Credentials struct {
	Password    string
	KeyFilePath string
	Account     string
}

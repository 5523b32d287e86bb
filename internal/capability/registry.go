// Package capability implements the process-wide server-capability
// registry described in spec.md §3 and §4.3.
package capability

import (
	"sync"

	"github.com/transferengine/core/internal/serverid"
)

// TriState is the three-valued capability outcome.
type TriState int

const (
	Unknown TriState = iota
	Yes
	No
)

// Name enumerates the well-known capabilities the engine gates protocol
// choices on.
type Name string

const (
	Size           Name = "SIZE"
	MDTM           Name = "MDTM"
	MLSD           Name = "MLSD"
	MFMT           Name = "MFMT"
	UTF8           Name = "UTF8"
	CLNT           Name = "CLNT"
	ListHidden     Name = "LIST_HIDDEN"
	RestStor       Name = "REST_STOR"
	EPSV           Name = "EPSV"
	TimezoneOffset Name = "TIMEZONE_OFFSET" // integer option, minutes
	Resume2GBBug   Name = "RESUME_2GB_BUG"
	Resume4GBBug   Name = "RESUME_4GB_BUG"
	TLSResume      Name = "TLS_SESSION_RESUMPTION"
)

// Value is one capability record.
type Value struct {
	State      TriState
	StringOpt  string
	HasString  bool
	IntOpt     int
	HasInt     bool
}

// Registry is the server -> capability-name -> Value map.
type Registry struct {
	mu   sync.Mutex
	caps map[string]map[Name]Value
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{caps: make(map[string]map[Name]Value)}
}

// Get returns the capability record for (server, name), defaulting to
// Unknown with no options set.
func (r *Registry) Get(server serverid.Server, name Name) Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.caps[server.Key()]
	if !ok {
		return Value{State: Unknown}
	}
	v, ok := m[name]
	if !ok {
		return Value{State: Unknown}
	}
	return v
}

// Set replaces the entire record for (server, name).
func (r *Registry) Set(server serverid.Server, name Name, v Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.caps[server.Key()]
	if !ok {
		m = make(map[Name]Value)
		r.caps[server.Key()] = m
	}
	m[name] = v
}

// SetState is a convenience for the common case of setting only the
// tri-state outcome.
func (r *Registry) SetState(server serverid.Server, name Name, state TriState) {
	r.Set(server, name, Value{State: state})
}

// SetInt sets a capability's tri-state and integer option together (e.g.
// TimezoneOffset).
func (r *Registry) SetInt(server serverid.Server, name Name, state TriState, i int) {
	r.Set(server, name, Value{State: state, IntOpt: i, HasInt: true})
}

// SetString sets a capability's tri-state and string option together.
func (r *Registry) SetString(server serverid.Server, name Name, state TriState, s string) {
	r.Set(server, name, Value{State: state, StringOpt: s, HasString: true})
}

// InvalidateServer drops every capability recorded for server.
func (r *Registry) InvalidateServer(server serverid.Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.caps, server.Key())
}

package queuestore

import "time"

// currentSchemaVersion is the queue.sqlite3 schema version spec.md §4.7
// tracks and migrates on open.
const currentSchemaVersion = 2

// schemaMeta is the single-row table recording the on-disk schema
// version, analogous to SQLite's own user_version pragma but explicit so
// GORM's auto-migration can see it like any other table.
type schemaMeta struct {
	ID      uint `gorm:"primaryKey"`
	Version int
}

func (schemaMeta) TableName() string { return "schema_meta" }

// serverRow is one row of the `servers` table: a server-item's connection
// policy. Credentials travel alongside so a reloaded queue can resume
// without re-prompting, matching the source's behavior of persisting the
// full server definition it would otherwise need to re-ask the host for.
type serverRow struct {
	ID              uint `gorm:"primaryKey"`
	Protocol        int
	Host            string
	Port            int
	User            string
	Password        string
	Logon           int
	Encoding        string
	TimezoneOffset  int
	MaxConnections  int
	PostLoginCmds   string // newline-joined
	BypassProxy     bool
	Name            string

	Files []fileRow `gorm:"foreignKey:ServerID"`
}

func (serverRow) TableName() string { return "servers" }

// localPathRow and remotePathRow are the path-interning tables spec.md
// §4.7 calls for "enabling large queues with many repeated paths": every
// file row references one of each by id instead of repeating the text.
type localPathRow struct {
	ID   uint   `gorm:"primaryKey"`
	Path string `gorm:"uniqueIndex"`
}

func (localPathRow) TableName() string { return "local_paths" }

type remotePathRow struct {
	ID     uint   `gorm:"primaryKey"`
	Syntax int
	Path   string `gorm:"uniqueIndex:idx_remote_path_syntax_path"`
}

func (remotePathRow) TableName() string { return "remote_paths" }

// fileRow is one row of the `files` table: a single queued command.Command
// bound to its owning server.
type fileRow struct {
	ID       uint `gorm:"primaryKey"`
	ServerID uint `gorm:"index"`

	Kind          int
	LocalPathID   uint
	RemotePathID  uint
	RemoteFile    string
	Direction     int
	Priority      int
	ErrorCount    int
	MaxErrors     int
	ASCII         bool
	PreserveTimes bool
	Resume        bool
	Overwrite     int

	CreatedAt time.Time
}

func (fileRow) TableName() string { return "files" }

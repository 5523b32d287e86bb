// Package queuestore implements the on-disk queue persistence of
// spec.md §4.7: a single-file relational store, grounded on
// gorm.io/gorm + gorm.io/driver/sqlite, the stack already present in the
// teacher's transitive dependency graph (pulled in there for an
// alternate backend's metadata store) rather than a second, unrelated
// library for the same job.
package queuestore

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/transferengine/core/internal/command"
	"github.com/transferengine/core/internal/enginepath"
	"github.com/transferengine/core/internal/serverid"
)

// Store is the opened queue.sqlite3 handle. The zero value is not usable;
// use Open.
type Store struct {
	db     *gorm.DB
	kiosk  int
}

// Open creates or migrates the database at path and returns a Store.
// kioskMode mirrors config.Options.KioskMode: 2 makes Save a no-op and
// keeps Load from clearing a damaged table; Open still creates the tables
// of a new, empty database.
func Open(path string, kioskMode int) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("queuestore: open %s: %w", path, err)
	}
	if path == ":memory:" {
		// A pooled connection would otherwise hand out a second,
		// independent in-memory database to the next caller.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	s := &Store{db: db, kiosk: kioskMode}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if s.kiosk >= 2 {
		// Kiosk mode 2 is load-only; if the tables already exist, leave
		// them exactly as found rather than risk a schema write. A brand
		// new file still needs its tables to read anything back from, so
		// migration still runs against an empty database.
		var count int64
		if s.db.Migrator().HasTable(&schemaMeta{}) {
			s.db.Model(&schemaMeta{}).Count(&count)
		}
		if count > 0 {
			return nil
		}
	}
	if err := s.db.AutoMigrate(&schemaMeta{}, &serverRow{}, &localPathRow{}, &remotePathRow{}, &fileRow{}); err != nil {
		return fmt.Errorf("queuestore: migrate: %w", err)
	}
	var meta schemaMeta
	res := s.db.First(&meta)
	switch {
	case errors.Is(res.Error, gorm.ErrRecordNotFound):
		return s.db.Create(&schemaMeta{Version: currentSchemaVersion}).Error
	case res.Error != nil:
		return fmt.Errorf("queuestore: read schema_meta: %w", res.Error)
	case meta.Version < currentSchemaVersion:
		// No column/table changes exist yet between version 1 and 2 in
		// this engine's lifetime; migrating is just recording the bump,
		// since AutoMigrate above already brought every table's shape up
		// to date unconditionally.
		meta.Version = currentSchemaVersion
		return s.db.Save(&meta).Error
	}
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FileSnapshot is the persisted shape of one queued FileItem, passed in
// by the caller (internal/scheduler owns the live FileItem type; this
// package stays independent of it to avoid an import cycle).
type FileSnapshot struct {
	Cmd        command.Command
	Priority   int
	ErrorCount int
	MaxErrors  int
	// InProgressEdit excludes this item from Save, mirroring spec.md
	// §4.7's "excluding items marked as in-progress edits" (a queue row
	// currently open in a host UI rename/edit dialog).
	InProgressEdit bool
}

// ServerSnapshot is the persisted shape of one ServerItem and its queue.
type ServerSnapshot struct {
	Server         serverid.Server
	Credentials    serverid.Credentials
	MaxConnections int
	Files          []FileSnapshot
}

// Save replaces the on-disk queue with servers in a single transaction,
// then vacuums, matching spec.md §4.7's "commit; vacuum after a full
// re-save." A no-op under kiosk mode 2.
func (s *Store) Save(servers []ServerSnapshot) error {
	if s.kiosk >= 2 {
		return nil
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&fileRow{}).Error; err != nil {
			return err
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&serverRow{}).Error; err != nil {
			return err
		}
		for _, srv := range servers {
			row := serverRow{
				Protocol:       int(srv.Server.Protocol),
				Host:           srv.Server.Host,
				Port:           srv.Server.Port,
				User:           srv.Server.User,
				Password:       srv.Credentials.Password,
				Logon:          int(srv.Server.Logon),
				Encoding:       srv.Server.Encoding,
				TimezoneOffset: srv.Server.TimezoneOffset,
				MaxConnections: srv.Server.MaxConnections,
				PostLoginCmds:  strings.Join(srv.Server.PostLoginCmds, "\n"),
				BypassProxy:    srv.Server.BypassProxy,
				Name:           srv.Server.Name,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			for _, f := range srv.Files {
				if f.InProgressEdit {
					continue
				}
				localID, err := internLocalPath(tx, f.Cmd.LocalPath)
				if err != nil {
					return err
				}
				remoteID, err := internRemotePath(tx, f.Cmd.RemotePath)
				if err != nil {
					return err
				}
				fr := fileRow{
					ServerID:      row.ID,
					Kind:          int(f.Cmd.Kind),
					LocalPathID:   localID,
					RemotePathID:  remoteID,
					RemoteFile:    f.Cmd.RemoteFile,
					Direction:     int(f.Cmd.Direction),
					Priority:      f.Priority,
					ErrorCount:    f.ErrorCount,
					MaxErrors:     f.MaxErrors,
					ASCII:         f.Cmd.Settings.ASCII,
					PreserveTimes: f.Cmd.Settings.PreserveTimestamps,
					Resume:        f.Cmd.Settings.Resume,
					Overwrite:     int(f.Cmd.Settings.OverwriteAction),
				}
				if err := tx.Create(&fr).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("queuestore: save: %w", err)
	}
	return s.db.Exec("VACUUM").Error
}

func internLocalPath(tx *gorm.DB, path string) (uint, error) {
	if path == "" {
		return 0, nil
	}
	var row localPathRow
	res := tx.Where("path = ?", path).First(&row)
	if res.Error == nil {
		return row.ID, nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return 0, res.Error
	}
	row = localPathRow{Path: path}
	if err := tx.Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func internRemotePath(tx *gorm.DB, p enginepath.Path) (uint, error) {
	text := p.SafePath()
	var row remotePathRow
	res := tx.Where("syntax = ? AND path = ?", int(p.Syntax()), text).First(&row)
	if res.Error == nil {
		return row.ID, nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return 0, res.Error
	}
	row = remotePathRow{Syntax: int(p.Syntax()), Path: text}
	if err := tx.Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

// LoadResult is the outcome of a full queue reload.
type LoadResult struct {
	Servers []ServerSnapshot
	// HadErrors reports whether any row was malformed and skipped, per
	// spec.md §4.7's "if any row is malformed, set an error flag and
	// continue."
	HadErrors bool
}

// Load streams every server and its file rows back into snapshots,
// pre-populating the path tables into in-memory maps first so repeated
// paths are resolved with O(1) lookups rather than one query per file
// row. If any row is malformed, that row (or that server's remaining
// files) is skipped and HadErrors is set; on return, if HadErrors and
// kiosk mode allows writes, the on-disk tables are cleared so a future
// Save starts clean rather than perpetuating corruption.
func (s *Store) Load() (LoadResult, error) {
	var localRows []localPathRow
	if err := s.db.Find(&localRows).Error; err != nil {
		return LoadResult{}, fmt.Errorf("queuestore: load local_paths: %w", err)
	}
	localByID := make(map[uint]string, len(localRows))
	for _, r := range localRows {
		localByID[r.ID] = r.Path
	}

	var remoteRows []remotePathRow
	if err := s.db.Find(&remoteRows).Error; err != nil {
		return LoadResult{}, fmt.Errorf("queuestore: load remote_paths: %w", err)
	}
	remoteByID := make(map[uint]enginepath.Path, len(remoteRows))
	for _, r := range remoteRows {
		remoteByID[r.ID] = enginepath.New(enginepath.Syntax(r.Syntax), r.Path)
	}

	var serverRows []serverRow
	if err := s.db.Find(&serverRows).Error; err != nil {
		return LoadResult{}, fmt.Errorf("queuestore: load servers: %w", err)
	}

	result := LoadResult{Servers: make([]ServerSnapshot, 0, len(serverRows))}
	for _, sr := range serverRows {
		if sr.Host == "" {
			result.HadErrors = true
			continue
		}
		var postCmds []string
		if sr.PostLoginCmds != "" {
			postCmds = strings.Split(sr.PostLoginCmds, "\n")
		}
		snap := ServerSnapshot{
			Server: serverid.Server{
				Protocol:       serverid.Protocol(sr.Protocol),
				Host:           sr.Host,
				Port:           sr.Port,
				User:           sr.User,
				Logon:          serverid.LogonType(sr.Logon),
				Encoding:       sr.Encoding,
				TimezoneOffset: sr.TimezoneOffset,
				MaxConnections: sr.MaxConnections,
				PostLoginCmds:  postCmds,
				BypassProxy:    sr.BypassProxy,
				Name:           sr.Name,
			},
			Credentials:    serverid.Credentials{Password: sr.Password},
			MaxConnections: sr.MaxConnections,
		}

		var fileRows []fileRow
		if err := s.db.Where("server_id = ?", sr.ID).Find(&fileRows).Error; err != nil {
			result.HadErrors = true
			continue
		}
		for _, fr := range fileRows {
			remotePath, ok := remoteByID[fr.RemotePathID]
			if !ok {
				result.HadErrors = true
				continue
			}
			snap.Files = append(snap.Files, FileSnapshot{
				Cmd: command.Command{
					Kind:       command.Kind(fr.Kind),
					LocalPath:  localByID[fr.LocalPathID],
					RemotePath: remotePath,
					RemoteFile: fr.RemoteFile,
					Direction:  command.Direction(fr.Direction),
					Settings: command.TransferSettings{
						ASCII:              fr.ASCII,
						PreserveTimestamps: fr.PreserveTimes,
						Resume:             fr.Resume,
						OverwriteAction:    command.OverwriteAction(fr.Overwrite),
					},
				},
				Priority:   fr.Priority,
				ErrorCount: fr.ErrorCount,
				MaxErrors:  fr.MaxErrors,
			})
		}
		result.Servers = append(result.Servers, snap)
	}

	if result.HadErrors && s.kiosk < 2 {
		if err := s.clear(); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (s *Store) clear() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&fileRow{}).Error; err != nil {
			return err
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&serverRow{}).Error; err != nil {
			return err
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&localPathRow{}).Error; err != nil {
			return err
		}
		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&remotePathRow{}).Error
	})
}

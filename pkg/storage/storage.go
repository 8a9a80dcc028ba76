// Package storage keeps an append-only sqlite audit trail of device
// snapshots and scan jobs.
//
// The store is write-mostly: the service never restores state from it.
package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	defaultDBDirName  = ".descry"
	defaultDBFileName = "audit.sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS device_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL,
		name TEXT NOT NULL,
		vendor TEXT,
		model TEXT,
		type TEXT,
		status TEXT NOT NULL,
		host TEXT,
		last_error TEXT,
		seen_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_device_snapshots_device ON device_snapshots(device_id, seen_at DESC);`,
	`CREATE TABLE IF NOT EXISTS scan_jobs (
		job_uuid TEXT PRIMARY KEY,
		number INTEGER NOT NULL,
		device_id TEXT NOT NULL,
		device TEXT NOT NULL,
		host TEXT,
		status TEXT NOT NULL,
		pages INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		elapsed_seconds INTEGER,
		error TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_scan_jobs_started ON scan_jobs(started_at DESC);`,
}

// Store is an open audit database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the audit database at path. An empty path
// selects ~/.descry/audit.sqlite.
func Open(path string) (*Store, error) {
	path, err := resolveDatabasePath(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: open sqlite database failed")
	}
	if err := configureSQLite(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := prepareSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func resolveDatabasePath(custom string) (string, error) {
	if custom = strings.TrimSpace(custom); custom != "" {
		if err := ensureDirExists(filepath.Dir(custom)); err != nil {
			return "", err
		}
		return custom, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", pkgerrors.Wrap(err, "storage: locate user home failed")
	}
	dir := filepath.Join(home, defaultDBDirName)
	if err := ensureDirExists(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultDBFileName), nil
}

func ensureDirExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return pkgerrors.Wrapf(err, "storage: create dir %s failed", path)
	}
	return nil
}

func configureSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
		"PRAGMA busy_timeout=10000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return pkgerrors.Wrapf(err, "storage: execute %s failed", pragma)
		}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return nil
}

func prepareSchema(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return pkgerrors.Wrap(err, "storage: prepare schema failed")
		}
	}
	return nil
}

// execWithRetry retries statements that hit a locked database.
func (s *Store) execWithRetry(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	const maxAttempts = 3
	logStatement(stmt, args...)
	for attempt := 0; ; attempt++ {
		res, err := s.db.ExecContext(ctx, stmt, args...)
		if err == nil {
			return res, nil
		}
		if !isSQLiteBusy(err) || attempt == maxAttempts-1 {
			return nil, err
		}
		backoff := time.Duration(attempt+1) * 200 * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}

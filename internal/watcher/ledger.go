// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package watcher

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// PathState is the tracked snapshot for one watched path: {mtime, size,
// content_hash, status}.
type PathState struct {
	Path        string
	ModTime     time.Time
	Size        int64
	ContentHash string
	Status      string
}

// ChangeKind classifies a re-scan's finding for a path.
type ChangeKind string

const (
	ChangeNew      ChangeKind = "new"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// Ledger persists the watcher's path -> state map in sqlite so a restart
// does not reprocess every file in a watched tree.
type Ledger struct {
	db *sql.DB
}

// NewLedger opens (creating if absent) a sqlite-backed ledger at dbPath.
func NewLedger(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	schema := `
CREATE TABLE IF NOT EXISTS file_state (
	path TEXT PRIMARY KEY,
	mtime INTEGER NOT NULL,
	size INTEGER NOT NULL,
	content_hash TEXT NOT NULL,
	status TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

// Get returns the tracked state for path, if any.
func (l *Ledger) Get(path string) (PathState, bool) {
	row := l.db.QueryRow(`SELECT path, mtime, size, content_hash, status FROM file_state WHERE path = ?`, path)
	var st PathState
	var mtimeUnix int64
	if err := row.Scan(&st.Path, &mtimeUnix, &st.Size, &st.ContentHash, &st.Status); err != nil {
		return PathState{}, false
	}
	st.ModTime = time.Unix(mtimeUnix, 0)
	return st, true
}

// Upsert records the current state for path.
func (l *Ledger) Upsert(st PathState) error {
	_, err := l.db.Exec(`
INSERT INTO file_state (path, mtime, size, content_hash, status) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET mtime=excluded.mtime, size=excluded.size, content_hash=excluded.content_hash, status=excluded.status`,
		st.Path, st.ModTime.Unix(), st.Size, st.ContentHash, st.Status)
	return err
}

// Remove deletes a path's tracked state (used when a file disappears).
func (l *Ledger) Remove(path string) error {
	_, err := l.db.Exec(`DELETE FROM file_state WHERE path = ?`, path)
	return err
}

// All returns every tracked path's state, for re-scan comparison.
func (l *Ledger) All() ([]PathState, error) {
	rows, err := l.db.Query(`SELECT path, mtime, size, content_hash, status FROM file_state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PathState
	for rows.Next() {
		var st PathState
		var mtimeUnix int64
		if err := rows.Scan(&st.Path, &mtimeUnix, &st.Size, &st.ContentHash, &st.Status); err != nil {
			return nil, err
		}
		st.ModTime = time.Unix(mtimeUnix, 0)
		out = append(out, st)
	}
	return out, rows.Err()
}

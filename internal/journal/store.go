// Package journal records session lifecycle events in a local SQLite
// database so `zenoh-tailscale status` can report what the daemon did.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dmweis/zenoh-tailscale/internal/membership"
)

// Kind classifies a journal event.
type Kind string

const (
	KindStart       Kind = "start"
	KindReconfigure Kind = "reconfigure"
	KindStop        Kind = "stop"
)

// Event is a single lifecycle event.
type Event struct {
	ID       int64
	At       time.Time
	Kind     Kind
	SelfID   string
	Snapshot membership.Snapshot
	Listen   []string
	Connect  []string
}

const schema = `
CREATE TABLE IF NOT EXISTS session_events (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	at       TEXT NOT NULL,
	kind     TEXT NOT NULL,
	self_id  TEXT NOT NULL DEFAULT '',
	snapshot TEXT NOT NULL DEFAULT '{}',
	listen   TEXT NOT NULL DEFAULT '[]',
	connect  TEXT NOT NULL DEFAULT '[]'
)`

// Store is the SQLite-backed journal.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends ev. A zero At is replaced with the current time.
func (s *Store) Record(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	snap, err := json.Marshal(ev.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	listen, err := json.Marshal(nonNil(ev.Listen))
	if err != nil {
		return fmt.Errorf("encode listen endpoints: %w", err)
	}
	connect, err := json.Marshal(nonNil(ev.Connect))
	if err != nil {
		return fmt.Errorf("encode connect endpoints: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_events (at, kind, self_id, snapshot, listen, connect) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.At.UTC().Format(time.RFC3339Nano), string(ev.Kind), ev.SelfID, string(snap), string(listen), string(connect),
	)
	if err != nil {
		return fmt.Errorf("insert journal event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, kind, self_id, snapshot, listen, connect FROM session_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev                    Event
			at, kind              string
			snap, listen, connect string
		)
		if err := rows.Scan(&ev.ID, &at, &kind, &ev.SelfID, &snap, &listen, &connect); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		if ev.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse journal time %q: %w", at, err)
		}
		ev.Kind = Kind(kind)
		if err := json.Unmarshal([]byte(snap), &ev.Snapshot); err != nil {
			return nil, fmt.Errorf("decode journal snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(listen), &ev.Listen); err != nil {
			return nil, fmt.Errorf("decode journal listen endpoints: %w", err)
		}
		if err := json.Unmarshal([]byte(connect), &ev.Connect); err != nil {
			return nil, fmt.Errorf("decode journal connect endpoints: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return out, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

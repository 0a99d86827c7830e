// Package diag is the editor's structured diagnostics log: a small
// SQLite-backed event store (WAL mode, same pragmas as the engine this
// was adapted from) recording everything the hook/inject/history/match
// subsystems report, for `clink info --diag` and post-mortem debugging.
package diag

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Event is one recorded diagnostic row.
type Event struct {
	ID        int64
	Source    string // e.g. "history", "hook", "inject", "match"
	Name      string // e.g. "history_compacted", "hook_install_failed"
	Detail    string
	CreatedAt time.Time
}

// Log is a handle to the diagnostics database.
type Log struct {
	db     *sql.DB
	path   string
	ctx    context.Context
	cancel context.CancelFunc
}

// Open creates or attaches to the diagnostics database at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("diag: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("diag: ping: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Log{db: db, path: path, ctx: ctx, cancel: cancel}

	if err := l.initSchema(); err != nil {
		db.Close()
		cancel()
		return nil, err
	}
	return l, nil
}

func (l *Log) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		source     TEXT NOT NULL,
		name       TEXT NOT NULL,
		detail     TEXT DEFAULT '',
		created_at INTEGER DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_events_source ON events(source, created_at);
	CREATE INDEX IF NOT EXISTS idx_events_name ON events(name, created_at);
	`
	_, err := l.db.ExecContext(l.ctx, schema)
	return err
}

// Record appends one event. It never returns an error to callers that
// treat diagnostics as best-effort (see Reporter); Open callers that
// need to know about write failures should use RecordErr.
func (l *Log) Record(source, name, detail string) {
	_ = l.RecordErr(source, name, detail)
}

// RecordErr is Record with the underlying SQL error surfaced.
func (l *Log) RecordErr(source, name, detail string) error {
	_, err := l.db.ExecContext(l.ctx,
		"INSERT INTO events (source, name, detail) VALUES (?, ?, ?)", source, name, detail)
	return err
}

// Reporter adapts Log to the `func(event, detail string)` callback shape
// that history.Open and the match pipeline's OnFault expect, binding a
// fixed source label.
func (l *Log) Reporter(source string) func(event, detail string) {
	return func(event, detail string) { l.Record(source, event, detail) }
}

// Recent returns the last n events across all sources, most recent first.
func (l *Log) Recent(n int) ([]Event, error) {
	rows, err := l.db.QueryContext(l.ctx,
		"SELECT id, source, name, detail, created_at FROM events ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var createdUnix int64
		if err := rows.Scan(&e.ID, &e.Source, &e.Name, &e.Detail, &createdUnix); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(createdUnix, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// BySource returns the last n events from one source, most recent first.
func (l *Log) BySource(source string, n int) ([]Event, error) {
	rows, err := l.db.QueryContext(l.ctx,
		"SELECT id, source, name, detail, created_at FROM events WHERE source = ? ORDER BY id DESC LIMIT ?", source, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var createdUnix int64
		if err := rows.Scan(&e.ID, &e.Source, &e.Name, &e.Detail, &createdUnix); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(createdUnix, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes all events older than keep.
func (l *Log) Prune(keep time.Duration) error {
	cutoff := time.Now().Add(-keep).Unix()
	_, err := l.db.ExecContext(l.ctx, "DELETE FROM events WHERE created_at < ?", cutoff)
	return err
}

// Close checkpoints the WAL and releases the database handle.
func (l *Log) Close() error {
	l.cancel()
	_, _ = l.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return l.db.Close()
}

// Package ledger persists runs, rename events and inventory entries in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MalithGihan/opis-service/internal/inventory"
	"github.com/MalithGihan/opis-service/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	dir         TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	renamed     INTEGER NOT NULL DEFAULT 0,
	collisions  INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS renames (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq       INTEGER NOT NULL,
	from_path TEXT NOT NULL,
	to_path   TEXT NOT NULL,
	outcome   TEXT NOT NULL,
	reason    TEXT NOT NULL DEFAULT '',
	at        TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE TABLE IF NOT EXISTS entries (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	number      INTEGER NOT NULL,
	name        TEXT NOT NULL,
	designation TEXT NOT NULL,
	pages       INTEGER NOT NULL,
	format      TEXT NOT NULL,
	PRIMARY KEY (run_id, number)
);`

// Ledger is safe for concurrent use; writes are serialized on one connection.
type Ledger struct {
	db *sql.DB
}

// Summary is the per-run tally stored when a run finishes.
type Summary struct {
	Renamed    int
	Collisions int
	Failed     int
}

// Open creates or opens the ledger database at path with WAL journaling,
// a busy timeout and foreign keys enforced.
func Open(path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ledger: mkdir: %w", err)
		}
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(10000)")
	q.Add("_pragma", "synchronous(NORMAL)")
	dsn := url.URL{Scheme: "file", Opaque: (&url.URL{Path: path}).EscapedPath(), RawQuery: q.Encode()}
	db, err := sql.Open("sqlite", dsn.String())
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// Begin records the start of run id over dir.
func (l *Ledger) Begin(ctx context.Context, id, dir string) error {
	_, err := l.db.ExecContext(ctx, `INSERT INTO runs (id, dir, started_at) VALUES (?, ?, ?)`, id, dir, now())
	return err
}

// RecordRename appends one rename event with the next sequence for the run.
func (l *Ledger) RecordRename(ctx context.Context, runID string, ev types.RenameEvent) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO renames (run_id, seq, from_path, to_path, outcome, reason, at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM renames WHERE run_id = ?), ?, ?, ?, ?, ?)`,
		runID, runID, ev.From, ev.To, string(ev.Outcome), ev.Reason, now())
	return err
}

// RecordEntries stores the inventory of a run in one transaction.
func (l *Ledger) RecordEntries(ctx context.Context, runID string, entries []inventory.Entry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (run_id, number, name, designation, pages, format) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, runID, e.Number, e.Name, e.Designation, e.Pages, e.Format); err != nil {
			return fmt.Errorf("entry %d: %w", e.Number, err)
		}
	}
	return tx.Commit()
}

func (l *Ledger) Finish(ctx context.Context, runID string, s Summary) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, renamed = ?, collisions = ?, failed = ? WHERE id = ?`,
		now(), s.Renamed, s.Collisions, s.Failed, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ledger: unknown run %q", runID)
	}
	return nil
}

// Renames returns the events of a run in the order they were recorded.
func (l *Ledger) Renames(ctx context.Context, runID string) ([]types.RenameEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT from_path, to_path, outcome, reason FROM renames WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.RenameEvent
	for rows.Next() {
		var ev types.RenameEvent
		var outcome string
		if err := rows.Scan(&ev.From, &ev.To, &outcome, &ev.Reason); err != nil {
			return nil, err
		}
		ev.Outcome = types.RenameOutcome(outcome)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Entries returns the stored inventory of a run ordered by number.
func (l *Ledger) Entries(ctx context.Context, runID string) ([]inventory.Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT number, name, designation, pages, format FROM entries WHERE run_id = ? ORDER BY number`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []inventory.Entry
	for rows.Next() {
		var e inventory.Entry
		if err := rows.Scan(&e.Number, &e.Name, &e.Designation, &e.Pages, &e.Format); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists entries to SQLite.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a journal database.
// The path should be a file path or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			graph TEXT NOT NULL,
			step INTEGER NOT NULL,
			node TEXT NOT NULL,
			phase TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			next TEXT NOT NULL DEFAULT '',
			update_json BLOB,
			error TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_journal_run_id
		ON journal(run_id)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	e, err := prepare(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	var update []byte
	if len(e.Update) > 0 {
		update = e.Update
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO journal (run_id, graph, step, node, phase, label, next, update_json, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.RunID, e.Graph, e.Step, e.Node, e.Phase, e.Label, e.Next, update, e.Error,
		e.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// Entries implements Store.
func (s *SQLiteStore) Entries(ctx context.Context, runID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT graph, step, node, phase, label, next, update_json, error, timestamp
		FROM journal
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			update    []byte
			timestamp string
		)
		if err := rows.Scan(&e.Graph, &e.Step, &e.Node, &e.Phase, &e.Label, &e.Next,
			&update, &e.Error, &timestamp); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.RunID = runID
		if len(update) > 0 {
			e.Update = update
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}
	return entries, nil
}

// Runs implements Store.
func (s *SQLiteStore) Runs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id FROM journal
		GROUP BY run_id
		ORDER BY MIN(id)
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		runs = append(runs, id)
	}
	return runs, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

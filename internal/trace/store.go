package trace

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store is a SQLite-backed Recorder. Use ":memory:" for ephemeral
// stores in tests and the harness; a file path for the trace databases
// the CLI inspects.
type Store struct {
	db *sql.DB
}

// Open creates or opens a trace database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// Idempotent - safe to call on an existing database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to trace database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY and keeps :memory: databases on one backing store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends an event and returns nil on success. The Seq field of
// the passed event is ignored; the store assigns sequence numbers.
func (s *Store) Record(ctx context.Context, ev Event) error {
	if ev.Status != StatusOK && ev.Status != StatusFail {
		return fmt.Errorf("invalid event status %q", ev.Status)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (run, pipeline, step, status, detail) VALUES (?, ?, ?, ?, ?)`,
		ev.Run, ev.Pipeline, ev.Step, ev.Status, ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// List returns all events in sequence order. When run is non-empty, only
// that run's events are returned.
func (s *Store) List(ctx context.Context, run string) ([]Event, error) {
	query := `SELECT seq, run, pipeline, step, status, detail FROM events ORDER BY seq`
	args := []any{}
	if run != "" {
		query = `SELECT seq, run, pipeline, step, status, detail FROM events WHERE run = ? ORDER BY seq`
		args = append(args, run)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Seq, &ev.Run, &ev.Pipeline, &ev.Step, &ev.Status, &ev.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

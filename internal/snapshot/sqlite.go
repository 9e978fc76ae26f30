package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and creates if needed) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate snapshot database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		job        TEXT PRIMARY KEY,
		data       TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS runs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		job         TEXT NOT NULL,
		started_at  DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		emitted     INTEGER NOT NULL DEFAULT 0,
		snapshot    TEXT,
		error       TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_job ON runs(job, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, job string) (json.RawMessage, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE job = ?`, job).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for %s: %w", job, err)
	}
	return json.RawMessage(data), nil
}

func (s *SQLiteStore) Save(ctx context.Context, job string, snapshot json.RawMessage) error {
	query := `
		INSERT INTO snapshots (job, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(job) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, job, string(snapshot), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", job, err)
	}
	return nil
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run Run) error {
	query := `
		INSERT INTO runs (job, started_at, finished_at, emitted, snapshot, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.Job,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.Emitted,
		nullString(string(run.Snapshot)),
		nullString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to record run for %s: %w", run.Job, err)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, job string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT job, started_at, finished_at, emitted, snapshot, error
		FROM runs
		WHERE job = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, job, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for %s: %w", job, err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run         Run
			snapshot, e sql.NullString
		)
		if err := rows.Scan(&run.Job, &run.StartedAt, &run.FinishedAt, &run.Emitted, &snapshot, &e); err != nil {
			return nil, err
		}
		if snapshot.Valid {
			run.Snapshot = json.RawMessage(snapshot.String)
		}
		run.Error = e.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

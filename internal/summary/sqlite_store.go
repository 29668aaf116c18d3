package summary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/sweeper/internal/storage"
)

// SQLiteStore keeps the record as the single row of the summary table.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var (
	_ Store       = (*SQLiteStore)(nil)
	_ RunRecorder = (*SQLiteStore)(nil)
	_ FileOwner   = (*SQLiteStore)(nil)
)

// OpenSQLiteStore opens or creates the database at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	s := NewSQLiteStore(db)
	s.path = path
	return s, nil
}

// NewSQLiteStore wraps an already bootstrapped database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Files returns the database and its journal files. It is empty for a
// store built with NewSQLiteStore.
func (s *SQLiteStore) Files() []string {
	if s.path == "" {
		return nil
	}
	return []string{s.path, s.path + "-wal", s.path + "-shm", s.path + "-journal"}
}

func (s *SQLiteStore) Load(ctx context.Context) (Record, error) {
	var r Record
	err := s.db.QueryRowContext(ctx, "SELECT total_size, total_files FROM summary WHERE id = 1;").Scan(&r.TotalSize, &r.TotalFiles)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("read summary: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) Add(ctx context.Context, delta Record) (Record, error) {
	if delta.TotalSize < 0 || delta.TotalFiles < 0 {
		return Record{}, fmt.Errorf("summary delta must not be negative: %+v", delta)
	}
	if delta.IsZero() {
		return s.Load(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO summary (id, total_size, total_files, updated_at)
VALUES (1, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  total_size  = total_size + excluded.total_size,
  total_files = total_files + excluded.total_files,
  updated_at  = excluded.updated_at;`,
		delta.TotalSize, delta.TotalFiles, s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return Record{}, fmt.Errorf("update summary: %w", err)
	}

	var next Record
	if err := tx.QueryRowContext(ctx, "SELECT total_size, total_files FROM summary WHERE id = 1;").Scan(&next.TotalSize, &next.TotalFiles); err != nil {
		return Record{}, fmt.Errorf("read summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit tx: %w", err)
	}
	return next, nil
}

// RecordRun appends one run to the history.
func (s *SQLiteStore) RecordRun(ctx context.Context, run Run) error {
	if run.RecordedAt.IsZero() {
		run.RecordedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, root, mode, files, bytes, recorded_at) VALUES (?, ?, ?, ?, ?, ?);",
		run.ID, run.Root, run.Mode, run.Files, run.Bytes, run.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, root, mode, files, bytes, recorded_at FROM runs ORDER BY recorded_at DESC LIMIT ?;", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var at string
		if err := rows.Scan(&r.ID, &r.Root, &r.Mode, &r.Files, &r.Bytes, &at); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.RecordedAt, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at for run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

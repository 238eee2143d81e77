package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/semmidev/dbkeeper/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT    NOT NULL,
	db_name      TEXT    NOT NULL,
	engine       TEXT    NOT NULL,
	status       TEXT    NOT NULL,
	stage        TEXT    NOT NULL,
	location     TEXT    NOT NULL DEFAULT '',
	content_hash TEXT    NOT NULL DEFAULT '',
	archive_hash TEXT    NOT NULL DEFAULT '',
	size         INTEGER NOT NULL DEFAULT 0,
	error        TEXT    NOT NULL DEFAULT '',
	started_at   TEXT    NOT NULL,
	duration_ms  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_location ON runs(location);
`

// Store keeps one row per database per run in a SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Record(ctx context.Context, rec *domain.RunRecord) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, db_name, engine, status, stage, location, content_hash, archive_hash, size, error, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Database, string(rec.Engine), rec.Status, rec.Stage, rec.Location,
		rec.ContentHash, rec.ArchiveHash, rec.Size, rec.Error,
		rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// Recent returns the newest records first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, db_name, engine, status, stage, location, content_hash, archive_hash, size, error, started_at, duration_ms
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var records []domain.RunRecord
	for rows.Next() {
		var (
			rec        domain.RunRecord
			engine     string
			startedAt  string
			durationMS int64
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Database, &engine, &rec.Status, &rec.Stage,
			&rec.Location, &rec.ContentHash, &rec.ArchiveHash, &rec.Size, &rec.Error, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Engine = domain.Engine(engine)
		rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", startedAt, err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) ArchiveHash(ctx context.Context, location string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT archive_hash FROM runs
		 WHERE location = ? AND archive_hash != ''
		 ORDER BY id DESC LIMIT 1`, location,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("query archive hash: %w", err)
	}
	return hash, nil
}

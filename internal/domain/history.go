package domain

import (
	"context"
	"time"
)

// RunRecord is the persisted outcome of one database in one run.
type RunRecord struct {
	ID          int64
	RunID       string
	Database    string
	Engine      Engine
	Status      string
	Stage       string
	Location    string
	ContentHash string
	ArchiveHash string
	Size        int64
	Error       string
	StartedAt   time.Time
	Duration    time.Duration
}

type History interface {
	Record(ctx context.Context, rec *RunRecord) error
	Recent(ctx context.Context, limit int) ([]RunRecord, error)
	// ArchiveHash returns the digest stored for a location, or "" if unknown.
	ArchiveHash(ctx context.Context, location string) (string, error)
}

// Notifier announces the outcome of a run.
type Notifier interface {
	Notify(ctx context.Context, runID string, records []RunRecord) error
}

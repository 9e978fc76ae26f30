// Package snapshot persists trigger snapshots between scheduled runs.
package snapshot

import (
	"context"
	"encoding/json"
	"time"
)

// Run is the outcome of one scheduled job run.
type Run struct {
	Job        string
	StartedAt  time.Time
	FinishedAt time.Time
	Emitted    int
	Snapshot   json.RawMessage
	Error      string
}

// Store keeps the latest snapshot per job and a run history.
type Store interface {
	// Load returns the job's snapshot, or nil when there is none.
	Load(ctx context.Context, job string) (json.RawMessage, error)
	Save(ctx context.Context, job string, snapshot json.RawMessage) error
	RecordRun(ctx context.Context, run Run) error
	// ListRuns returns the job's most recent runs, newest first.
	ListRuns(ctx context.Context, job string, limit int) ([]Run, error)
	Close() error
}

// Package history persists task execution records and histogram snapshots.
//
// The scheduler core knows nothing about persistence: the daemon wires task
// done-callbacks to AppendRun and a maintenance task to PruneBefore. A
// disabled store (driver "none" or empty) satisfies the same interface and
// answers ErrDisabled, so callers need no special-casing.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"taskloop/pkg/binstats"
	"taskloop/pkg/logx"
)

var ErrDisabled = errors.New("history disabled")

// Config configures the store.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "" or "none": disabled
type Config struct {
	Driver string
	Path   string
}

// RunEntry records a single task execution.
type RunEntry struct {
	At      time.Time
	Manager string
	Task    string
	Elapsed time.Duration
}

// SnapshotEntry records a histogram snapshot for a task or a manager.
type SnapshotEntry struct {
	At    time.Time
	Owner string // "manager" or "manager/task"
	Stats binstats.Snapshot
}

type Store interface {
	AppendRun(ctx context.Context, e RunEntry) error
	AppendSnapshot(ctx context.Context, e SnapshotEntry) error
	RecentRuns(ctx context.Context, limit int) ([]RunEntry, error)
	// PruneBefore deletes runs and snapshots older than cutoff and returns
	// how many rows went away.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// Open creates the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		return disabledStore{}, nil
	case "sqlite":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("history: unknown driver " + cfg.Driver)
	}
}

type disabledStore struct{}

func (disabledStore) AppendRun(context.Context, RunEntry) error           { return ErrDisabled }
func (disabledStore) AppendSnapshot(context.Context, SnapshotEntry) error { return ErrDisabled }
func (disabledStore) RecentRuns(context.Context, int) ([]RunEntry, error) {
	return nil, ErrDisabled
}
func (disabledStore) PruneBefore(context.Context, time.Time) (int64, error) {
	return 0, ErrDisabled
}
func (disabledStore) Close() error { return nil }

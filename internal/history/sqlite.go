package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"taskloop/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("history: sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, e RunEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(at, manager, task, elapsed_us) VALUES(?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Manager, e.Task, e.Elapsed.Microseconds(),
	)
	return err
}

func (s *sqliteStore) AppendSnapshot(ctx context.Context, e SnapshotEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	bins, err := json.Marshal(e.Stats.Bins)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots(at, owner, unit_divider, count, bins) VALUES(?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Owner, int64(e.Stats.UnitDivider), int64(e.Stats.Count), string(bins),
	)
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, limit int) ([]RunEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, manager, task, elapsed_us FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RunEntry, 0, limit)
	for rows.Next() {
		var at string
		var e RunEntry
		var us int64
		if err := rows.Scan(&at, &e.Manager, &e.Task, &us); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("history: bad timestamp %q: %w", at, err)
		}
		e.At = ts
		e.Elapsed = time.Duration(us) * time.Microsecond
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	cut := cutoff.Format(time.RFC3339Nano)
	total := int64(0)
	for _, table := range []string{"runs", "snapshots"} {
		res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE at < ?`, cut)
		if err != nil {
			return total, err
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	if total > 0 {
		s.log.Debug("history pruned", logx.Int64("rows", total), logx.Time("cutoff", cutoff))
	}
	return total, nil
}

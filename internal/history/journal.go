// Package history keeps a journal of render attempts in SQLite. Only
// outcomes are stored, never frames.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"infodisplay/internal/scheduler"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var (
	// ErrDisabled is returned when no journal is configured.
	ErrDisabled = errors.New("run history is disabled")

	// ErrClosed is returned by a journal after Close.
	ErrClosed = errors.New("journal closed")
)

// DefaultMaxEntries is how many runs are kept when no limit is configured.
const DefaultMaxEntries = 5000

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	plugin      TEXT NOT NULL,
	forced      INTEGER NOT NULL,
	outcome     TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_plugin ON runs(plugin, seq);
`

// Summary aggregates the journal for one plugin.
type Summary struct {
	Plugin      string     `json:"plugin"`
	Rendered    int        `json:"rendered"`
	Failed      int        `json:"failed"`
	LastSuccess *time.Time `json:"last_success"`
}

// Journal is the SQLite-backed run journal. It implements
// scheduler.Observer.
type Journal struct {
	mu         sync.RWMutex
	db         *sql.DB
	logger     *zap.Logger
	maxEntries int
}

// Open opens or creates the journal database at path.
func Open(ctx context.Context, path string, maxEntries int, logger *zap.Logger) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("history path cannot be empty")
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Named("history").Info("Run journal opened", zap.String("path", path))

	return &Journal{
		db:         db,
		logger:     logger.Named("history"),
		maxEntries: maxEntries,
	}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// OnRun records a run. Errors are logged; the scheduler never waits on a
// broken journal for more than a few seconds.
func (j *Journal) OnRun(r scheduler.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := j.Record(ctx, r); err != nil {
		j.logger.Warn("Failed to record run", zap.String("plugin", r.Plugin), zap.Error(err))
	}
}

// Record stores one run and trims the journal to its maximum size.
func (j *Journal) Record(ctx context.Context, r scheduler.Result) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.db == nil {
		return ErrClosed
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, plugin, forced, outcome, started_at, duration_ns, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Plugin, r.Forced, string(r.Outcome),
		r.StartedAt.UnixNano(), int64(r.Duration), r.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM runs WHERE seq <= (SELECT MAX(seq) FROM runs) - ?`, j.maxEntries)
	if err != nil {
		return fmt.Errorf("failed to trim journal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first. An empty plugin matches
// every plugin.
func (j *Journal) Recent(ctx context.Context, plugin string, limit int) ([]scheduler.Result, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, plugin, forced, outcome, started_at, duration_ns, error FROM runs`
	args := []any{}
	if plugin != "" {
		query += ` WHERE plugin = ?`
		args = append(args, plugin)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []scheduler.Result
	for rows.Next() {
		var (
			id, name, outcome, errText string
			forced                     bool
			startedAt, durationNs      int64
		)
		if err := rows.Scan(&id, &name, &forced, &outcome, &startedAt, &durationNs, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("corrupt run id %q: %w", id, err)
		}
		out = append(out, scheduler.Result{
			ID:        parsed,
			Plugin:    name,
			Forced:    forced,
			Outcome:   scheduler.Outcome(outcome),
			StartedAt: time.Unix(0, startedAt).UTC(),
			Duration:  time.Duration(durationNs),
			Error:     errText,
		})
	}
	return out, rows.Err()
}

// Summaries returns per-plugin counts ordered by plugin name.
func (j *Journal) Summaries(ctx context.Context) ([]Summary, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.db == nil {
		return nil, ErrClosed
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT plugin,
		       SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END),
		       SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END),
		       MAX(CASE WHEN outcome = ? THEN started_at END)
		FROM runs GROUP BY plugin ORDER BY plugin`,
		string(scheduler.OutcomeRendered), string(scheduler.OutcomeFailed), string(scheduler.OutcomeRendered))
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var last sql.NullInt64
		if err := rows.Scan(&s.Plugin, &s.Rendered, &s.Failed, &last); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		if last.Valid {
			t := time.Unix(0, last.Int64).UTC()
			s.LastSuccess = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

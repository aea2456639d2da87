// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/crawl-console/internal/store"
)

// Schema creates the session history table.
const Schema = `
CREATE TABLE IF NOT EXISTS session_runs (
	id               UUID PRIMARY KEY,
	seed_url         TEXT NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	finished_at      TIMESTAMPTZ,
	status           TEXT NOT NULL,
	note             TEXT,
	results          BIGINT NOT NULL DEFAULT 0,
	success          BIGINT NOT NULL DEFAULT 0,
	errors           BIGINT NOT NULL DEFAULT 0,
	bytes            BIGINT NOT NULL DEFAULT 0,
	last_snapshot_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS session_runs_started_at_idx ON session_runs (started_at DESC);
`

const selectColumns = `id, seed_url, started_at, finished_at, status, note, results, success, errors, bytes, last_snapshot_at`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// SessionStore implements store.SessionRepository on Postgres.
type SessionStore struct {
	pool querier
}

var _ store.SessionRepository = (*SessionStore)(nil)

// NewSessionStore connects to Postgres using cfg.
func NewSessionStore(ctx context.Context, cfg Config) (*SessionStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &SessionStore{pool: pool}, nil
}

// NewSessionStoreWithPool wraps an existing pool (primarily for testing).
func NewSessionStoreWithPool(pool querier) (*SessionStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SessionStore{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *SessionStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the session_runs table when missing.
func (s *SessionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// UpsertSessionStart inserts a running session, or marks an existing one
// running again.
func (s *SessionStore) UpsertSessionStart(ctx context.Context, id uuid.UUID, seedURL string, startedAt time.Time) error {
	query := `
		INSERT INTO session_runs (id, seed_url, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, finished_at = NULL;
	`
	if _, err := s.pool.Exec(ctx, query, id, seedURL, startedAt, store.SessionRunning); err != nil {
		return fmt.Errorf("failed to upsert session start: %w", err)
	}
	return nil
}

// UpdateSessionStatus moves a session to status. A nil note keeps the
// existing one.
func (s *SessionStore) UpdateSessionStatus(
	ctx context.Context,
	id uuid.UUID,
	status store.SessionStatus,
	at time.Time,
	note *string,
) error {
	var finishedAt *time.Time
	if status.Finished() {
		finishedAt = &at
	}
	query := `
		UPDATE session_runs
		SET status = $1, note = COALESCE($2, note), finished_at = $3
		WHERE id = $4;
	`
	tag, err := s.pool.Exec(ctx, query, status, note, finishedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RecordSnapshot stores the latest snapshot counters.
func (s *SessionStore) RecordSnapshot(ctx context.Context, id uuid.UUID, counters store.Counters, at time.Time) error {
	query := `
		UPDATE session_runs
		SET results = $1, success = $2, errors = $3, bytes = $4, last_snapshot_at = $5
		WHERE id = $6;
	`
	tag, err := s.pool.Exec(ctx, query,
		counters.Results, counters.Success, counters.Errors, counters.Bytes, at, id)
	if err != nil {
		return fmt.Errorf("failed to record snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetSession loads one session by ID.
func (s *SessionStore) GetSession(ctx context.Context, id uuid.UUID) (store.SessionRun, error) {
	query := `SELECT ` + selectColumns + ` FROM session_runs WHERE id = $1;`
	run, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.SessionRun{}, store.ErrNotFound
		}
		return store.SessionRun{}, fmt.Errorf("failed to get session: %w", err)
	}
	return run, nil
}

// ListSessions returns sessions newest first.
func (s *SessionStore) ListSessions(
	ctx context.Context,
	status *store.SessionStatus,
	limit,
	offset int,
) ([]store.SessionRun, error) {
	query := `SELECT ` + selectColumns + ` FROM session_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	runs := []store.SessionRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.SessionRun, error) {
	var (
		run    store.SessionRun
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.SeedURL,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Note,
		&run.Counters.Results,
		&run.Counters.Success,
		&run.Counters.Errors,
		&run.Counters.Bytes,
		&run.LastSnapshotAt,
	)
	if err != nil {
		return store.SessionRun{}, err
	}
	run.Status = store.SessionStatus(status)
	return run, nil
}

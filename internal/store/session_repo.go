package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("session record not found")

// SessionStatus mirrors the session_runs status column.
type SessionStatus string

// Session statuses persisted in session_runs.status.
const (
	SessionRunning    SessionStatus = "running"
	SessionPaused     SessionStatus = "paused"
	SessionCompleted  SessionStatus = "completed"
	SessionTerminated SessionStatus = "terminated"
)

// ParseSessionStatus validates a status filter value.
func ParseSessionStatus(s string) (SessionStatus, error) {
	switch status := SessionStatus(s); status {
	case SessionRunning, SessionPaused, SessionCompleted, SessionTerminated:
		return status, nil
	default:
		return "", fmt.Errorf("unknown session status %q", s)
	}
}

// Finished reports whether the status ends a session.
func (s SessionStatus) Finished() bool {
	return s == SessionCompleted || s == SessionTerminated
}

// Counters are the headline numbers of the latest results snapshot.
type Counters struct {
	Results int64
	Success int64
	Errors  int64
	Bytes   int64
}

// SessionRun models one crawl session in the history.
type SessionRun struct {
	ID             uuid.UUID
	SeedURL        string
	StartedAt      time.Time
	FinishedAt     *time.Time
	Status         SessionStatus
	Note           *string
	Counters       Counters
	LastSnapshotAt *time.Time
}

// SessionRepository persists session history.
type SessionRepository interface {
	// UpsertSessionStart records a (re)started session as running.
	UpsertSessionStart(ctx context.Context, id uuid.UUID, seedURL string, startedAt time.Time) error
	// UpdateSessionStatus moves the session to status; finished statuses set finished_at.
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, status SessionStatus, at time.Time, note *string) error
	// RecordSnapshot overwrites the counters with those of the latest snapshot.
	RecordSnapshot(ctx context.Context, id uuid.UUID, counters Counters, at time.Time) error
	// GetSession loads a single session or returns ErrNotFound.
	GetSession(ctx context.Context, id uuid.UUID) (SessionRun, error)
	// ListSessions returns sessions newest first, filtered by optional status.
	ListSessions(ctx context.Context, status *SessionStatus, limit, offset int) ([]SessionRun, error)
}

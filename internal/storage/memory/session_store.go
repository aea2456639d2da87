package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/crawl-console/internal/store"
)

// SessionStore is an in-memory store.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]store.SessionRun
}

var _ store.SessionRepository = (*SessionStore)(nil)

// NewSessionStore constructs an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uuid.UUID]store.SessionRun)}
}

// UpsertSessionStart records a running session, keeping the original start
// time of a resumed one.
func (s *SessionStore) UpsertSessionStart(_ context.Context, id uuid.UUID, seedURL string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.sessions[id]
	if !ok {
		run = store.SessionRun{ID: id, SeedURL: seedURL, StartedAt: startedAt}
	}
	run.Status = store.SessionRunning
	run.FinishedAt = nil
	s.sessions[id] = run
	return nil
}

// UpdateSessionStatus moves a session to status.
func (s *SessionStore) UpdateSessionStatus(
	_ context.Context,
	id uuid.UUID,
	status store.SessionStatus,
	at time.Time,
	note *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	run.Status = status
	if note != nil {
		run.Note = pointerTo(*note)
	}
	run.FinishedAt = nil
	if status.Finished() {
		run.FinishedAt = pointerTo(at)
	}
	s.sessions[id] = run
	return nil
}

// RecordSnapshot stores the latest counters.
func (s *SessionStore) RecordSnapshot(_ context.Context, id uuid.UUID, counters store.Counters, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	run.Counters = counters
	run.LastSnapshotAt = pointerTo(at)
	s.sessions[id] = run
	return nil
}

// GetSession fetches a session by ID.
func (s *SessionStore) GetSession(_ context.Context, id uuid.UUID) (store.SessionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.sessions[id]
	if !ok {
		return store.SessionRun{}, store.ErrNotFound
	}
	return run, nil
}

// ListSessions returns sessions newest first.
func (s *SessionStore) ListSessions(
	_ context.Context,
	status *store.SessionStatus,
	limit,
	offset int,
) ([]store.SessionRun, error) {
	s.mu.RLock()
	runs := make([]store.SessionRun, 0, len(s.sessions))
	for _, run := range s.sessions {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if offset >= len(runs) {
		return []store.SessionRun{}, nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}

func pointerTo[T any](v T) *T {
	return &v
}

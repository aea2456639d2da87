package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-console/internal/progress"
	"github.com/JakeFAU/crawl-console/internal/store"
)

// ResetNote is recorded on sessions ended by a reset.
const ResetNote = "reset"

// StoreSink persists session lifecycle and snapshot counters via a
// store.SessionRepository. Snapshots are collapsed to the newest per session
// within a batch.
type StoreSink struct {
	repo   store.SessionRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.SessionRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies lifecycle changes in order, then writes the latest snapshot
// per session.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	latest := make(map[uuid.UUID]progress.Event)
	var order []uuid.UUID

	for _, evt := range batch {
		id, err := uuid.Parse(evt.SessionID)
		if err != nil {
			s.logger.Warn("skipping event with invalid session id",
				zap.String("session_id", evt.SessionID), zap.Error(err))
			continue
		}
		if evt.Stage == progress.StagePollOK {
			if _, seen := latest[id]; !seen {
				order = append(order, id)
			}
			latest[id] = evt
			continue
		}
		if err := s.handleLifecycle(ctx, id, evt); err != nil {
			return err
		}
	}

	for _, id := range order {
		evt := latest[id]
		counters := store.Counters{
			Results: int64(evt.Results),
			Success: int64(evt.Success),
			Errors:  int64(evt.Errors),
			Bytes:   evt.Bytes,
		}
		if err := s.repo.RecordSnapshot(ctx, id, counters, evt.TS); err != nil {
			return fmt.Errorf("record snapshot: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) handleLifecycle(ctx context.Context, id uuid.UUID, evt progress.Event) error {
	var (
		status store.SessionStatus
		note   *string
	)
	if evt.Note != "" {
		n := evt.Note
		note = &n
	}
	switch evt.Stage {
	case progress.StageSessionStart:
		if err := s.repo.UpsertSessionStart(ctx, id, evt.SeedURL, evt.TS); err != nil {
			return fmt.Errorf("upsert session start: %w", err)
		}
		return nil
	case progress.StageSessionResume:
		status = store.SessionRunning
	case progress.StageSessionPause:
		status = store.SessionPaused
	case progress.StageSessionComplete:
		status = store.SessionCompleted
	case progress.StageSessionTerminate:
		status = store.SessionTerminated
	case progress.StageSessionReset:
		status = store.SessionTerminated
		n := ResetNote
		note = &n
	default:
		return nil
	}
	if err := s.repo.UpdateSessionStatus(ctx, id, status, evt.TS, note); err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

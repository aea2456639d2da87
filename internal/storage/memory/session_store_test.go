package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/crawl-console/internal/store"
)

func TestSessionStoreLifecycle(t *testing.T) {
	t.Parallel()

	repo := NewSessionStore()
	ctx := context.Background()
	id := uuid.New()
	start := time.Unix(1700000000, 0).UTC()

	if err := repo.UpsertSessionStart(ctx, id, "https://example.com", start); err != nil {
		t.Fatalf("UpsertSessionStart() error = %v", err)
	}
	counters := store.Counters{Results: 3, Success: 2, Errors: 1, Bytes: 300}
	if err := repo.RecordSnapshot(ctx, id, counters, start.Add(time.Second)); err != nil {
		t.Fatalf("RecordSnapshot() error = %v", err)
	}
	if err := repo.UpdateSessionStatus(ctx, id, store.SessionPaused, start.Add(2*time.Second), nil); err != nil {
		t.Fatalf("UpdateSessionStatus paused error = %v", err)
	}
	if err := repo.UpsertSessionStart(ctx, id, "https://example.com", start.Add(3*time.Second)); err != nil {
		t.Fatalf("resume error = %v", err)
	}
	note := "finished"
	end := start.Add(time.Minute)
	if err := repo.UpdateSessionStatus(ctx, id, store.SessionCompleted, end, &note); err != nil {
		t.Fatalf("UpdateSessionStatus completed error = %v", err)
	}

	run, err := repo.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if !run.StartedAt.Equal(start) {
		t.Fatalf("expected resume to keep start time, got %v", run.StartedAt)
	}
	if run.Status != store.SessionCompleted || run.FinishedAt == nil || !run.FinishedAt.Equal(end) {
		t.Fatalf("expected completed with finish time, got %+v", run)
	}
	if run.Counters != counters || run.Note == nil || *run.Note != note {
		t.Fatalf("expected counters and note to persist, got %+v", run)
	}
}

func TestSessionStoreNotFound(t *testing.T) {
	t.Parallel()

	repo := NewSessionStore()
	ctx := context.Background()
	id := uuid.New()
	if _, err := repo.GetSession(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.RecordSnapshot(ctx, id, store.Counters{}, time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.UpdateSessionStatus(ctx, id, store.SessionTerminated, time.Now(), nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionStoreListOrderingAndFilter(t *testing.T) {
	t.Parallel()

	repo := NewSessionStore()
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for i, id := range ids {
		if err := repo.UpsertSessionStart(ctx, id, "https://example.com", base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("UpsertSessionStart() error = %v", err)
		}
	}
	if err := repo.UpdateSessionStatus(ctx, ids[0], store.SessionTerminated, base, nil); err != nil {
		t.Fatalf("UpdateSessionStatus() error = %v", err)
	}

	all, err := repo.ListSessions(ctx, nil, 0, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListSessions() = %v, %v", all, err)
	}
	if all[0].ID != ids[2] {
		t.Fatalf("expected newest first, got %v", all[0].ID)
	}

	running := store.SessionRunning
	page, err := repo.ListSessions(ctx, &running, 1, 1)
	if err != nil || len(page) != 1 || page[0].ID != ids[1] {
		t.Fatalf("unexpected filtered page %v err=%v", page, err)
	}

	empty, err := repo.ListSessions(ctx, nil, 10, 50)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty page, got %v err=%v", empty, err)
	}
}

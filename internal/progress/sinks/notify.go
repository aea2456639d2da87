package sinks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-console/internal/crawler"
	"github.com/JakeFAU/crawl-console/internal/progress"
)

// Notice is the payload published when a session ends.
type Notice struct {
	SessionID  string    `json:"session_id"`
	Status     string    `json:"status"`
	SeedURL    string    `json:"seed_url,omitempty"`
	Results    int       `json:"results"`
	Success    int       `json:"success"`
	Errors     int       `json:"errors"`
	Bytes      int64     `json:"bytes"`
	DurationMs int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
	Note       string    `json:"note,omitempty"`
}

// Attributes exposes routing attributes to publishers that support them.
func (n Notice) Attributes() map[string]string {
	return map[string]string{
		"session_id": n.SessionID,
		"status":     n.Status,
		"results":    strconv.Itoa(n.Results),
	}
}

// NotifySink publishes a Notice for completed and terminated sessions.
type NotifySink struct {
	publisher crawler.Publisher
	topic     string
	logger    *zap.Logger

	mu    sync.Mutex
	seeds map[string]string
	last  map[string]progress.Event
}

// NewNotifySink returns a sink publishing to topic. An empty topic lets the
// publisher use its default.
func NewNotifySink(publisher crawler.Publisher, topic string, logger *zap.Logger) *NotifySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifySink{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
		seeds:     make(map[string]string),
		last:      make(map[string]progress.Event),
	}
}

// Consume publishes one notice per finished session in the batch. All
// publishes are attempted; failures are joined.
func (s *NotifySink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		notice, ok := s.track(evt)
		if !ok {
			continue
		}
		id, err := s.publisher.Publish(ctx, s.topic, notice)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish notice for %s: %w", notice.SessionID, err))
			continue
		}
		s.logger.Debug("session notice published",
			zap.String("session_id", notice.SessionID),
			zap.String("status", notice.Status),
			zap.String("message_id", id))
	}
	return errors.Join(errs...)
}

func (s *NotifySink) track(evt progress.Event) (Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch evt.Stage {
	case progress.StageSessionStart:
		s.seeds[evt.SessionID] = evt.SeedURL
		return Notice{}, false
	case progress.StagePollOK:
		s.last[evt.SessionID] = evt
		return Notice{}, false
	case progress.StageSessionComplete, progress.StageSessionTerminate:
	default:
		return Notice{}, false
	}

	counts := evt
	if evt.Results == 0 {
		if prev, ok := s.last[evt.SessionID]; ok {
			counts = prev
		}
	}
	status := "completed"
	if evt.Stage == progress.StageSessionTerminate {
		status = "terminated"
	}
	notice := Notice{
		SessionID:  evt.SessionID,
		Status:     status,
		SeedURL:    s.seeds[evt.SessionID],
		Results:    counts.Results,
		Success:    counts.Success,
		Errors:     counts.Errors,
		Bytes:      counts.Bytes,
		DurationMs: evt.Dur.Milliseconds(),
		FinishedAt: evt.TS,
		Note:       evt.Note,
	}
	delete(s.seeds, evt.SessionID)
	delete(s.last, evt.SessionID)
	return notice, true
}

// Close implements the Sink interface; it performs no action.
func (s *NotifySink) Close(context.Context) error {
	return nil
}

package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-console/internal/progress"
)

// LogSink emits one structured log line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch. Poll errors log at warn.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("session_id", evt.SessionID),
			zap.String("stage", string(evt.Stage)),
			zap.Int("results", evt.Results),
			zap.Int("success", evt.Success),
			zap.Int("errors", evt.Errors),
			zap.Int64("bytes", evt.Bytes),
			zap.Int("completed_tasks", evt.CompletedTasks),
			zap.Int("total_tasks", evt.TotalTasks),
			zap.Duration("dur", evt.Dur),
		}
		if evt.SeedURL != "" {
			fields = append(fields, zap.String("seed_url", evt.SeedURL))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StagePollError {
			s.logger.Warn("progress event", fields...)
			continue
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

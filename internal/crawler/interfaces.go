package crawler

import (
	"context"
	"time"
)

// Engine is the remote crawl engine's REST surface.
type Engine interface {
	Start(ctx context.Context, cfg CrawlConfig) error
	Stop(ctx context.Context) error
	Terminate(ctx context.Context) error
	ClearDB(ctx context.Context) error
	Status(ctx context.Context) (Status, error)
	Results(ctx context.Context) ([]CrawlResult, error)
	DBResults(ctx context.Context) ([]CrawlResult, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes session notices to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces session IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

package export

import (
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-console/internal/crawler"
)

// Archiver copies artifacts into a blob store under
// <prefix>/<sessionID>/<filename>.
type Archiver struct {
	store  crawler.BlobStore
	prefix string
	logger *zap.Logger
}

// NewArchiver wires an Archiver to a blob store.
func NewArchiver(store crawler.BlobStore, prefix string, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{store: store, prefix: prefix, logger: logger.Named("archiver")}
}

// Archive writes the artifact and returns its URI.
func (a *Archiver) Archive(ctx context.Context, sessionID string, artifact Artifact) (string, error) {
	if sessionID == "" {
		sessionID = "adhoc"
	}
	key := path.Join(a.prefix, sessionID, artifact.Filename)
	uri, err := a.store.PutObject(ctx, key, artifact.ContentType, artifact.Data)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", key, err)
	}
	a.logger.Info("export archived",
		zap.String("session_id", sessionID),
		zap.String("uri", uri),
		zap.Int("bytes", len(artifact.Data)),
	)
	return uri, nil
}

// Package gcs archives export artifacts to Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"hash/crc32"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Artifacts below this size are sent in a single request.
const singleRequestLimit = 8 << 20

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Config names the destination bucket and the caching policy for archived
// exports.
type Config struct {
	Bucket       string
	CacheControl string
}

// BlobStore uploads export artifacts into one bucket.
type BlobStore struct {
	client       *storage.Client
	bucket       string
	cacheControl string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	cacheControl := cfg.CacheControl
	if cacheControl == "" {
		cacheControl = "private, max-age=0"
	}
	return &BlobStore{client: client, bucket: cfg.Bucket, cacheControl: cacheControl}, nil
}

// PutObject uploads an artifact with a CRC32C integrity check and a download
// filename taken from the object key. It returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("path is required")
	}
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = s.cacheControl
	w.ContentDisposition = fmt.Sprintf("attachment; filename=%q", path.Base(key))
	w.CRC32C = crc32.Checksum(data, castagnoli)
	w.SendCRC32C = true
	if len(data) < singleRequestLimit {
		w.ChunkSize = 0
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", key, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}

// Package uuid issues session identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/JakeFAU/crawl-console/internal/crawler"
)

// Generator hands out UUIDv7 strings, so session ids sort by creation time
// in history listings and blob paths.
type Generator struct{}

var _ crawler.IDGenerator = (*Generator)(nil)

// NewUUIDGenerator returns a Generator.
func NewUUIDGenerator() *Generator {
	return &Generator{}
}

// NewID returns a fresh session id.
func (*Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return id.String(), nil
}

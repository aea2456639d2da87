package settings

import (
	"context"
	"sync"
)

// MemoryStore keeps the settings blob in memory.
type MemoryStore struct {
	mu   sync.Mutex
	blob string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored settings or Defaults.
func (m *MemoryStore) Load(context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blob == "" {
		return Defaults(), nil
	}
	return Decode(m.blob), nil
}

// Save validates and stores s.
func (m *MemoryStore) Save(_ context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	blob, err := Encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blob = blob
	return nil
}

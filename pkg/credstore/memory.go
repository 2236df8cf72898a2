package credstore

import (
	"context"
	"sync"
)

// MemoryStore keeps credentials in process memory. It is the default for
// tests and for embedding the SDK in programs that manage persistence
// themselves.
type MemoryStore struct {
	mu    sync.RWMutex
	creds *Credentials
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, creds *Credentials) error {
	copied := *creds
	s.mu.Lock()
	s.creds = &copied
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (*Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return nil, ErrNotFound
	}
	copied := *s.creds
	return &copied, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.creds = nil
	s.mu.Unlock()
	return nil
}

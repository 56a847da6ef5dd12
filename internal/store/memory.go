package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is a concurrency-safe in-process store. It keeps the encoded
// document so it behaves like the durable backends, including corruption.
type MemoryStore struct {
	mu   sync.RWMutex
	data []byte

	// saveErr, when set, is returned by Save instead of writing.
	saveErr error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (RecentSelections, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Decode(s.data)
}

func (s *MemoryStore) Save(_ context.Context, records RecentSelections) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, s.saveErr)
	}

	b, err := Encode(records)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.data = b
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// SetRaw replaces the stored document verbatim.
func (s *MemoryStore) SetRaw(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = append([]byte(nil), b...)
}

// FailSaves makes every following Save return err. A nil err restores
// normal behaviour.
func (s *MemoryStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saveErr = err
}

package idempotency

import (
	"context"
	"sync"
)

const DefaultCapacity = 1000

// MemoryStore is a bounded in-process dedup ledger. Committed keys are kept
// in insertion order and the oldest is evicted once capacity is reached, so
// memory stays constant no matter how many deliveries arrive.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
	inflight map[string]struct{}
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
		inflight: make(map[string]struct{}),
	}
}

func (s *MemoryStore) TryBegin(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	if _, ok := s.inflight[key]; ok {
		return false, nil
	}
	s.inflight[key] = struct{}{}
	return true, nil
}

func (s *MemoryStore) Commit(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inflight, key)
	if _, ok := s.seen[key]; ok {
		return nil
	}

	if len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.seen, oldest)
	}
	s.seen[key] = struct{}{}
	s.order = append(s.order, key)
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inflight, key)
	return nil
}

// Len reports the number of committed keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

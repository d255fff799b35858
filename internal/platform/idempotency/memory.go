package idempotency

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	routingKey string
	expires    time.Time
}

// MemoryStore is a process-local Ledger. Entries expire after ttl.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

func (s *MemoryStore) Lookup(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.routingKey, true, nil
}

// Record keeps the first outcome written for a key. Expired entries are
// swept on write.
func (s *MemoryStore) Record(_ context.Context, key, routingKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
	if _, ok := s.entries[key]; ok {
		return nil
	}
	s.entries[key] = entry{routingKey: routingKey, expires: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Forget(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

package catalog

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps products in a map. It is used for local runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	m      map[int64]Product
	nextID int64

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:     make(map[int64]Product),
		locks: make(map[int64]*sync.Mutex),
	}
}

func (s *MemoryStore) FindByID(_ context.Context, id int64) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.m[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (s *MemoryStore) FindAll(_ context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.m))
	for _, p := range s.m {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Product) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// Save inserts or replaces a product. A zero ID gets the next free id.
func (s *MemoryStore) Save(_ context.Context, p Product) (Product, error) {
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextID++
		for s.m[s.nextID].ID != 0 {
			s.nextID++
		}
		p.ID = s.nextID
	} else if p.ID > s.nextID {
		s.nextID = p.ID
	}
	s.m[p.ID] = p
	return p, nil
}

func (s *MemoryStore) DeleteByID(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}

// Lock acquires per-product mutexes in ascending id order so overlapping
// callers cannot deadlock.
func (s *MemoryStore) Lock(ctx context.Context, ids []int64, fn func(ctx context.Context, repo Repository) error) error {
	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	held := make([]*sync.Mutex, 0, len(ordered))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}()
	for _, id := range ordered {
		l := s.lockFor(id)
		l.Lock()
		held = append(held, l)
	}
	return fn(ctx, s)
}

func (s *MemoryStore) lockFor(id int64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

package cases

import (
	"context"
	"sync"

	"github.com/sendaka/sendaka/internal/risk"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Case
	order []string // insertion order
}

// NewMemoryStore creates an in-memory case store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Case)}
}

func (s *MemoryStore) Create(ctx context.Context, c *Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := copyCase(c)
	s.byID[c.ID] = cp
	s.order = append(s.order, c.ID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, ErrCaseNotFound
	}
	return copyCase(c), nil
}

func (s *MemoryStore) List(ctx context.Context, f ListFilter) ([]*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	result := make([]*Case, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(result) < limit; i-- {
		c := s.byID[s.order[i]]
		if f.ActorID != "" && c.ActorID != f.ActorID {
			continue
		}
		if f.Region != "" && c.Region != f.Region {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		result = append(result, copyCase(c))
	}
	return result, nil
}

func (s *MemoryStore) Update(ctx context.Context, c *Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[c.ID]; !ok {
		return ErrCaseNotFound
	}
	s.byID[c.ID] = copyCase(c)
	return nil
}

func copyCase(c *Case) *Case {
	cp := *c
	cp.Signals = append([]risk.Signal(nil), c.Signals...)
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}

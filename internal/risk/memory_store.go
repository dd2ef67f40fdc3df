package risk

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments []*Assessment // insertion order
}

// NewMemoryStore creates an in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Record(ctx context.Context, a *Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	cp.Signals = append([]Signal(nil), a.Signals...)
	s.assessments = append(s.assessments, &cp)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, f ListFilter) ([]*Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	// Most recent first.
	result := make([]*Assessment, 0, limit)
	for i := len(s.assessments) - 1; i >= 0 && len(result) < limit; i-- {
		a := s.assessments[i]
		if f.ActorID != "" && a.ActorID != f.ActorID {
			continue
		}
		if f.Region != "" && a.Region != f.Region {
			continue
		}
		if f.Action != "" && a.Action != f.Action {
			continue
		}
		if !f.BeforeTime.IsZero() {
			// Pagination cursor: records at or after the cursor position are skipped.
			if a.EvaluatedAt.After(f.BeforeTime) {
				continue
			}
			if a.EvaluatedAt.Equal(f.BeforeTime) && a.ID >= f.BeforeID {
				continue
			}
		}
		cp := *a
		cp.Signals = append([]Signal(nil), a.Signals...)
		result = append(result, &cp)
	}
	return result, nil
}

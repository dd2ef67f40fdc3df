package cases

import (
	"context"
	"time"

	"github.com/sendaka/sendaka/internal/idgen"
	"github.com/sendaka/sendaka/internal/metrics"
	"github.com/sendaka/sendaka/internal/risk"
)

// Service owns case lifecycle transitions.
type Service struct {
	store Store
}

// NewService creates a case service backed by the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// OpenForAssessment creates a review case from a blocked assessment.
func (s *Service) OpenForAssessment(ctx context.Context, a *risk.Assessment) (*Case, error) {
	c := &Case{
		ID:           idgen.WithPrefix("case_"),
		ActorID:      a.ActorID,
		Region:       a.Region,
		AssessmentID: a.ID,
		Score:        a.Score,
		Level:        a.Level,
		Signals:      append([]risk.Signal(nil), a.Signals...),
		Status:       StatusOpen,
		OpenedAt:     time.Now(),
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	metrics.CasesOpenedTotal.Inc()
	return c, nil
}

// Resolve closes an open case. resolvedBy is the resolving operator's subject.
func (s *Service) Resolve(ctx context.Context, id, resolvedBy, note string) (*Case, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusResolved {
		return nil, ErrAlreadyClosed
	}

	now := time.Now()
	c.Status = StatusResolved
	c.ResolvedAt = &now
	c.ResolvedBy = resolvedBy
	c.Note = note
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}
	metrics.CasesResolvedTotal.Inc()
	return c, nil
}

// Reopen puts a resolved case back in review.
func (s *Service) Reopen(ctx context.Context, id string) (*Case, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusOpen {
		return nil, ErrAlreadyOpen
	}

	c.Status = StatusOpen
	c.ResolvedAt = nil
	c.ResolvedBy = ""
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get fetches a single case.
func (s *Service) Get(ctx context.Context, id string) (*Case, error) {
	return s.store.Get(ctx, id)
}

// List returns cases matching the filter, most recent first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Case, error) {
	return s.store.List(ctx, f)
}

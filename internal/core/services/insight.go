package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/core/ports/driving"
	"github.com/custodia-labs/sentinela/internal/logger"
)

// Ensure InsightService implements the interface.
var _ driving.InsightService = (*InsightService)(nil)

// InsightService persists detector output and drives the review workflow.
type InsightService struct {
	store driven.InsightStore
	now   func() time.Time
	log   *slog.Logger
}

// NewInsightService creates an insight service.
func NewInsightService(store driven.InsightStore) *InsightService {
	return &InsightService{
		store: store,
		now:   time.Now,
		log:   logger.For("insights"),
	}
}

// Persist inserts insights whose id is unseen and refreshes the scoring of
// the rest. Persisting the same batch twice creates nothing the second time.
func (s *InsightService) Persist(ctx context.Context, insights []domain.Insight) (created, refreshed int, err error) {
	for i := range insights {
		insight := insights[i]
		if insight.ID == "" {
			insight.AssignID()
		}
		// Detectors only ever produce DETECTED; review states come from people.
		insight.Status = domain.StatusDetected
		if insight.CreatedAt.IsZero() {
			insight.CreatedAt = s.now().UTC()
		}

		inserted, err := s.store.InsertIfAbsent(ctx, insight)
		if err != nil {
			return created, refreshed, fmt.Errorf("insert insight %s: %w", insight.ID, err)
		}
		if inserted {
			created++
			continue
		}
		if err := s.store.Refresh(ctx, insight); err != nil {
			return created, refreshed, fmt.Errorf("refresh insight %s: %w", insight.ID, err)
		}
		refreshed++
	}
	return created, refreshed, nil
}

// List returns insights ordered by severity then confidence, descending.
func (s *InsightService) List(ctx context.Context, filter domain.InsightFilter) ([]domain.Insight, error) {
	insights, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	domain.SortInsights(insights)
	if filter.Limit > 0 && len(insights) > filter.Limit {
		insights = insights[:filter.Limit]
	}
	return insights, nil
}

// Get retrieves an insight by ID.
func (s *InsightService) Get(ctx context.Context, id string) (*domain.Insight, error) {
	if id == "" {
		return nil, domain.ErrInvalidInput
	}
	return s.store.Get(ctx, id)
}

// UpdateStatus moves an insight through the review workflow.
func (s *InsightService) UpdateStatus(ctx context.Context, id string, status domain.InsightStatus) error {
	insight, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !insight.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, insight.Status, status)
	}
	if err := s.store.UpdateStatus(ctx, id, status); err != nil {
		return fmt.Errorf("update insight status: %w", err)
	}
	s.log.Info("insight status changed", "insight", id, "from", insight.Status, "to", status)
	return nil
}

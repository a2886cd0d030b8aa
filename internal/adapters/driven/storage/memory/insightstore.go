package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
)

// Ensure InsightStore implements the interface.
var _ driven.InsightStore = (*InsightStore)(nil)

// InsightStore is an in-memory implementation of driven.InsightStore.
type InsightStore struct {
	mu       sync.RWMutex
	insights map[string]domain.Insight
	order    []string
}

// NewInsightStore creates a new in-memory insight store.
func NewInsightStore() *InsightStore {
	return &InsightStore{
		insights: make(map[string]domain.Insight),
	}
}

// InsertIfAbsent stores the insight unless its ID exists.
func (s *InsightStore) InsertIfAbsent(_ context.Context, insight domain.Insight) (bool, error) {
	if insight.ID == "" {
		return false, domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.insights[insight.ID]; ok {
		return false, nil
	}
	insight.Evidence = slices.Clone(insight.Evidence)
	s.insights[insight.ID] = insight
	s.order = append(s.order, insight.ID)
	return true, nil
}

// Refresh updates the scoring and evidence of an existing insight.
func (s *InsightStore) Refresh(_ context.Context, insight domain.Insight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.insights[insight.ID]
	if !ok {
		return domain.ErrNotFound
	}
	current.Severity = insight.Severity
	current.Confidence = insight.Confidence
	current.ExposureAmount = insight.ExposureAmount
	current.Title = insight.Title
	current.Description = insight.Description
	current.Evidence = slices.Clone(insight.Evidence)
	s.insights[insight.ID] = current
	return nil
}

// Get retrieves an insight by ID.
func (s *InsightStore) Get(_ context.Context, id string) (*domain.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	insight, ok := s.insights[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	insight.Evidence = slices.Clone(insight.Evidence)
	return &insight, nil
}

// List returns insights passing the filter in insertion order.
func (s *InsightStore) List(_ context.Context, filter domain.InsightFilter) ([]domain.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Insight
	for _, id := range s.order {
		insight := s.insights[id]
		if !filter.Matches(&insight) {
			continue
		}
		if filter.EntityID != "" && !cites(insight, filter.EntityID) {
			continue
		}
		insight.Evidence = slices.Clone(insight.Evidence)
		out = append(out, insight)
	}
	return out, nil
}

func cites(insight domain.Insight, entityID string) bool {
	for _, ref := range insight.Evidence {
		if ref.EntityID == entityID {
			return true
		}
	}
	return false
}

// UpdateStatus sets the workflow status.
func (s *InsightStore) UpdateStatus(_ context.Context, id string, status domain.InsightStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	insight, ok := s.insights[id]
	if !ok {
		return domain.ErrNotFound
	}
	insight.Status = status
	s.insights[id] = insight
	return nil
}

// Links returns the evidence join rows for one insight, or all when id is empty.
func (s *InsightStore) Links(_ context.Context, insightID string) ([]domain.EvidenceLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.EvidenceLink
	for _, id := range s.order {
		if insightID != "" && id != insightID {
			continue
		}
		insight := s.insights[id]
		out = append(out, insight.Links()...)
	}
	return out, nil
}

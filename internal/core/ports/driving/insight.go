package driving

import (
	"context"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// InsightService manages persisted insights.
type InsightService interface {
	// Persist inserts new insights and refreshes existing ones.
	// It returns how many were new and how many were refreshed.
	Persist(ctx context.Context, insights []domain.Insight) (created, refreshed int, err error)

	// List returns insights ordered by severity then confidence, descending.
	List(ctx context.Context, filter domain.InsightFilter) ([]domain.Insight, error)

	// Get retrieves an insight by ID.
	Get(ctx context.Context, id string) (*domain.Insight, error)

	// UpdateStatus moves an insight through the review workflow.
	// Returns ErrInvalidTransition for disallowed moves.
	UpdateStatus(ctx context.Context, id string, status domain.InsightStatus) error
}

// GraphExporter pushes resolved data and insights to the graph store.
type GraphExporter interface {
	// Export upserts every entity, relationship, insight and evidence link.
	Export(ctx context.Context) (*GraphExportReport, error)
}

// GraphExportReport counts what an export pushed.
type GraphExportReport struct {
	Entities      int
	Relationships int
	Insights      int
	Links         int
}

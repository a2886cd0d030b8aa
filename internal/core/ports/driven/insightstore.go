package driven

import (
	"context"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// InsightStore persists insights and their evidence links.
type InsightStore interface {
	// InsertIfAbsent stores the insight and its evidence unless the ID exists.
	// It reports whether a row was inserted.
	InsertIfAbsent(ctx context.Context, insight domain.Insight) (bool, error)

	// Refresh updates severity, confidence, exposure and evidence of an
	// existing insight. Status and creation time are preserved.
	Refresh(ctx context.Context, insight domain.Insight) error

	// Get retrieves an insight by ID.
	Get(ctx context.Context, id string) (*domain.Insight, error)

	// List returns insights passing the filter. Order is unspecified.
	List(ctx context.Context, filter domain.InsightFilter) ([]domain.Insight, error)

	// UpdateStatus sets the workflow status.
	UpdateStatus(ctx context.Context, id string, status domain.InsightStatus) error

	// Links returns the evidence join rows, for one insight or all when id is empty.
	Links(ctx context.Context, insightID string) ([]domain.EvidenceLink, error)
}

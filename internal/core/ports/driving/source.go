package driving

import (
	"context"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// SourceService manages source configurations.
type SourceService interface {
	// Add creates a new source configuration.
	Add(ctx context.Context, source domain.Source) error

	// Get retrieves a source by ID.
	Get(ctx context.Context, id string) (*domain.Source, error)

	// List returns all configured sources.
	List(ctx context.Context) ([]domain.Source, error)

	// Update modifies an existing source configuration.
	Update(ctx context.Context, source domain.Source) error

	// Remove deletes a source and its collection state.
	Remove(ctx context.Context, id string) error

	// Sync mirrors sources declared in configuration into the store.
	// It returns the IDs of sources added or updated.
	Sync(ctx context.Context, declared []domain.Source) ([]string, error)

	// ValidateConfig validates source configuration for a strategy.
	ValidateConfig(ctx context.Context, strategy domain.Strategy, config map[string]string) error
}

package driven

import (
	"context"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// CollectorBuilder creates a Collector from a Source.
type CollectorBuilder func(source domain.Source) (Collector, error)

// CollectorFactory creates collectors from source configuration.
// It maintains a registry of strategies and their builders.
type CollectorFactory interface {
	// Create returns a Collector for the given source.
	// Returns ErrUnsupportedStrategy if the strategy is unknown.
	Create(ctx context.Context, source domain.Source) (Collector, error)

	// Register adds a builder for the given strategy.
	Register(strategy domain.Strategy, builder CollectorBuilder)

	// SupportedStrategies returns all registered strategies.
	SupportedStrategies() []domain.Strategy
}

package driving

import (
	"context"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// EntityLookup exposes resolved entities.
type EntityLookup interface {
	// Get returns an entity by ID.
	Get(ctx context.Context, id string) (*domain.CanonicalEntity, error)

	// FindByKey returns entities sharing the composite key built from a raw
	// name and disambiguator.
	FindByKey(ctx context.Context, name, disambiguator string) ([]domain.CanonicalEntity, error)

	// FindByIdentifier normalises a raw identifier and returns its holder.
	FindByIdentifier(ctx context.Context, raw string) (*domain.CanonicalEntity, error)

	// Decisions returns the resolver decision log, newest first.
	Decisions(ctx context.Context, limit int) ([]domain.Decision, error)

	// SuggestRelationships returns low-confidence kinship hints between public
	// employees and vendor partners. Hints never merge entities.
	SuggestRelationships(ctx context.Context) ([]domain.RelationshipHint, error)
}

package driven

import (
	"context"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// GraphStore is a graph-capable store with idempotent upsert by key.
// Upserting the same value twice leaves the graph unchanged.
type GraphStore interface {
	// UpsertEntities merges entity nodes keyed by entity ID.
	UpsertEntities(ctx context.Context, entities []domain.CanonicalEntity) error

	// UpsertRelationships merges typed edges keyed by (from, to, type).
	UpsertRelationships(ctx context.Context, rels []domain.Relationship) error

	// UpsertInsights merges insight nodes keyed by insight ID and links them to evidence.
	UpsertInsights(ctx context.Context, insights []domain.Insight, links []domain.EvidenceLink) error

	// Close releases the connection.
	Close(ctx context.Context) error
}

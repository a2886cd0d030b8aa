package driven

import (
	"context"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// EntityStore persists canonical entities and everything hanging off them.
type EntityStore interface {
	// Get retrieves an entity by ID.
	Get(ctx context.Context, id string) (*domain.CanonicalEntity, error)

	// FindByIdentifier returns the entity holding the identifier as its current
	// identifier or as an alias.
	// Returns ErrNotFound when none does.
	FindByIdentifier(ctx context.Context, id domain.Identifier) (*domain.CanonicalEntity, error)

	// FindByResolutionKey returns all entities sharing the composite key.
	FindByResolutionKey(ctx context.Context, key string) ([]domain.CanonicalEntity, error)

	// Save creates or updates an entity and its identifier index entry.
	Save(ctx context.Context, entity domain.CanonicalEntity) error

	// List returns all entities ordered by ID.
	List(ctx context.Context) ([]domain.CanonicalEntity, error)

	// PutSnapshot stores a snapshot, replacing any for the same (entity, period).
	PutSnapshot(ctx context.Context, snap domain.Snapshot) error

	// Snapshots returns snapshots for an entity, or all when entityID is empty.
	Snapshots(ctx context.Context, entityID string) ([]domain.Snapshot, error)

	// AppendEvent inserts the event unless its ID is present.
	// It reports whether a row was inserted.
	AppendEvent(ctx context.Context, event domain.Event) (bool, error)

	// Events returns events for an entity, or all when entityID is empty.
	Events(ctx context.Context, entityID string) ([]domain.Event, error)

	// PutRelationship creates or updates a relationship by (from, to, type).
	PutRelationship(ctx context.Context, rel domain.Relationship) error

	// Relationships returns relationships touching an entity, or all when entityID is empty.
	Relationships(ctx context.Context, entityID string) ([]domain.Relationship, error)

	// LogDecision appends a resolver decision.
	LogDecision(ctx context.Context, d domain.Decision) error

	// Decisions returns the decision log, newest first, bounded by limit (0 = all).
	Decisions(ctx context.Context, limit int) ([]domain.Decision, error)
}

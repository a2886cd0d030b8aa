package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
)

// Ensure EntityStore implements the interface.
var _ driven.EntityStore = (*EntityStore)(nil)

// EntityStore is an in-memory implementation of driven.EntityStore.
// Entities are copied in and out so callers never share maps with the store.
type EntityStore struct {
	mu            sync.RWMutex
	entities      map[string]domain.CanonicalEntity
	byIdentifier  map[string]string
	snapshots     map[string]map[string]domain.Snapshot
	events        map[string]domain.Event
	eventOrder    []string
	relationships map[string]domain.Relationship
	decisions     []domain.Decision
}

// NewEntityStore creates a new in-memory entity store.
func NewEntityStore() *EntityStore {
	return &EntityStore{
		entities:      make(map[string]domain.CanonicalEntity),
		byIdentifier:  make(map[string]string),
		snapshots:     make(map[string]map[string]domain.Snapshot),
		events:        make(map[string]domain.Event),
		relationships: make(map[string]domain.Relationship),
	}
}

func copyEntity(e domain.CanonicalEntity) domain.CanonicalEntity {
	e.Aliases = slices.Clone(e.Aliases)
	e.Attributes = maps.Clone(e.Attributes)
	return e
}

// Get retrieves an entity by ID.
func (s *EntityStore) Get(_ context.Context, id string) (*domain.CanonicalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	e = copyEntity(e)
	return &e, nil
}

// FindByIdentifier returns the entity holding the identifier or alias.
func (s *EntityStore) FindByIdentifier(_ context.Context, id domain.Identifier) (*domain.CanonicalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entityID, ok := s.byIdentifier[id.Key()]
	if !ok || id.IsZero() {
		return nil, domain.ErrNotFound
	}
	e := copyEntity(s.entities[entityID])
	return &e, nil
}

// FindByResolutionKey returns all entities sharing the composite key, ordered by ID.
func (s *EntityStore) FindByResolutionKey(_ context.Context, key string) ([]domain.CanonicalEntity, error) {
	if key == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CanonicalEntity
	for _, e := range s.entities {
		if e.ResolutionKey == key {
			out = append(out, copyEntity(e))
		}
	}
	slices.SortFunc(out, func(a, b domain.CanonicalEntity) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// Save creates or updates an entity and indexes its identifier and aliases.
// An identifier already indexed to another entity keeps its first holder.
func (s *EntityStore) Save(_ context.Context, entity domain.CanonicalEntity) error {
	if entity.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entity.ID] = copyEntity(entity)
	for _, id := range append([]domain.Identifier{entity.Identifier}, entity.Aliases...) {
		key := id.Key()
		if key == "" {
			continue
		}
		if _, taken := s.byIdentifier[key]; !taken {
			s.byIdentifier[key] = entity.ID
		}
	}
	return nil
}

// List returns all entities ordered by ID.
func (s *EntityStore) List(_ context.Context) ([]domain.CanonicalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CanonicalEntity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, copyEntity(e))
	}
	slices.SortFunc(out, func(a, b domain.CanonicalEntity) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// PutSnapshot stores a snapshot, replacing any for the same (entity, period).
func (s *EntityStore) PutSnapshot(_ context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	periods, ok := s.snapshots[snap.EntityID]
	if !ok {
		periods = make(map[string]domain.Snapshot)
		s.snapshots[snap.EntityID] = periods
	}
	snap.Parts = maps.Clone(snap.Parts)
	periods[snap.Period] = snap
	return nil
}

// Snapshots returns snapshots for an entity, or all when entityID is empty,
// ordered by entity then period.
func (s *EntityStore) Snapshots(_ context.Context, entityID string) ([]domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Snapshot
	for id, periods := range s.snapshots {
		if entityID != "" && id != entityID {
			continue
		}
		for _, snap := range periods {
			snap.Parts = maps.Clone(snap.Parts)
			out = append(out, snap)
		}
	}
	slices.SortFunc(out, func(a, b domain.Snapshot) int {
		if c := strings.Compare(a.EntityID, b.EntityID); c != 0 {
			return c
		}
		return strings.Compare(a.Period, b.Period)
	})
	return out, nil
}

// AppendEvent inserts the event unless its ID is present.
func (s *EntityStore) AppendEvent(_ context.Context, event domain.Event) (bool, error) {
	if event.ID == "" {
		return false, domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; ok {
		return false, nil
	}
	event.Attributes = maps.Clone(event.Attributes)
	event.Unnormalized = slices.Clone(event.Unnormalized)
	s.events[event.ID] = event
	s.eventOrder = append(s.eventOrder, event.ID)
	return true, nil
}

// Events returns events for an entity, or all when entityID is empty, in insertion order.
func (s *EntityStore) Events(_ context.Context, entityID string) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Event
	for _, id := range s.eventOrder {
		ev := s.events[id]
		if entityID != "" && ev.EntityID != entityID {
			continue
		}
		ev.Attributes = maps.Clone(ev.Attributes)
		out = append(out, ev)
	}
	return out, nil
}

// PutRelationship creates or updates a relationship by (from, to, type).
func (s *EntityStore) PutRelationship(_ context.Context, rel domain.Relationship) error {
	if rel.FromID == "" || rel.ToID == "" || rel.Type == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rel.Attributes = maps.Clone(rel.Attributes)
	s.relationships[rel.Key()] = rel
	return nil
}

// Relationships returns relationships touching an entity, or all when entityID is empty.
func (s *EntityStore) Relationships(_ context.Context, entityID string) ([]domain.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Relationship
	for _, rel := range s.relationships {
		if entityID != "" && rel.FromID != entityID && rel.ToID != entityID {
			continue
		}
		rel.Attributes = maps.Clone(rel.Attributes)
		out = append(out, rel)
	}
	slices.SortFunc(out, func(a, b domain.Relationship) int { return strings.Compare(a.Key(), b.Key()) })
	return out, nil
}

// LogDecision appends a resolver decision.
func (s *EntityStore) LogDecision(_ context.Context, d domain.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.CandidateIDs = slices.Clone(d.CandidateIDs)
	s.decisions = append(s.decisions, d)
	return nil
}

// Decisions returns the decision log, newest first, bounded by limit (0 = all).
func (s *EntityStore) Decisions(_ context.Context, limit int) ([]domain.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Decision, 0, len(s.decisions))
	for i := len(s.decisions) - 1; i >= 0; i-- {
		out = append(out, s.decisions[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

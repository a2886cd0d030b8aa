package domain

import (
	"slices"
	"strings"
	"time"
)

// DetectionSet is a point-in-time, read-only view of resolved data.
// Detectors share one set and must not modify it.
type DetectionSet struct {
	AsOf time.Time

	entities      map[string]CanonicalEntity
	events        []Event
	eventsByType  map[EventType][]Event
	snapshots     map[string][]Snapshot
	relationships []Relationship
}

// NewDetectionSet indexes entities, events, snapshots and relationships.
func NewDetectionSet(
	asOf time.Time,
	entities []CanonicalEntity,
	events []Event,
	snapshots []Snapshot,
	relationships []Relationship,
) *DetectionSet {
	set := &DetectionSet{
		AsOf:          asOf,
		entities:      make(map[string]CanonicalEntity, len(entities)),
		events:        slices.Clone(events),
		eventsByType:  make(map[EventType][]Event),
		snapshots:     make(map[string][]Snapshot),
		relationships: slices.Clone(relationships),
	}
	for _, e := range entities {
		set.entities[e.ID] = e
	}
	slices.SortStableFunc(set.events, func(a, b Event) int {
		if c := a.OccurredAt.Compare(b.OccurredAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	for _, ev := range set.events {
		set.eventsByType[ev.Type] = append(set.eventsByType[ev.Type], ev)
	}
	for _, s := range snapshots {
		set.snapshots[s.EntityID] = append(set.snapshots[s.EntityID], s)
	}
	for id := range set.snapshots {
		slices.SortFunc(set.snapshots[id], func(a, b Snapshot) int {
			return strings.Compare(a.Period, b.Period)
		})
	}
	return set
}

// Entity returns the entity with id.
func (s *DetectionSet) Entity(id string) (CanonicalEntity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// Entities returns all entities ordered by id.
func (s *DetectionSet) Entities() []CanonicalEntity {
	out := make([]CanonicalEntity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b CanonicalEntity) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Events returns all events ordered by occurrence.
func (s *DetectionSet) Events() []Event {
	return s.events
}

// EventsOf returns events of one type ordered by occurrence.
func (s *DetectionSet) EventsOf(t EventType) []Event {
	return s.eventsByType[t]
}

// Snapshots returns an entity's snapshots ordered by period.
func (s *DetectionSet) Snapshots(entityID string) []Snapshot {
	return s.snapshots[entityID]
}

// SnapshotEntities returns ids of entities holding snapshots, sorted.
func (s *DetectionSet) SnapshotEntities() []string {
	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Relationships returns relationships of the given type.
func (s *DetectionSet) Relationships(t RelationType) []Relationship {
	var out []Relationship
	for _, r := range s.relationships {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// DetectorOutcome is one detector's share of a detection run.
type DetectorOutcome struct {
	DetectorID string
	Insights   int
	Duration   time.Duration
	Err        error
}

// DetectionReport summarises a detection run.
type DetectionReport struct {
	RunID     string
	StartedAt time.Time
	Outcomes  []DetectorOutcome
	New       int
	Refreshed int
	Insights  []Insight
}

// Failed returns outcomes that ended in error.
func (r *DetectionReport) Failed() []DetectorOutcome {
	var out []DetectorOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

package domain

// ObservedSnapshot is a periodic value carried by an observation.
type ObservedSnapshot struct {
	Period string
	Value  float64

	// Part names an itemised component, e.g. one declared asset. Empty means
	// Value is the whole period.
	Part string
}

// Relation attaches a counterpart observation to the subject.
// The relationship runs subject -> counterpart unless Reverse is set.
type Relation struct {
	Type        RelationType
	Counterpart Observation
	Reverse     bool
	Attributes  map[string]string

	// BindEvents records the counterpart's entity id on the subject's events
	// under EvAttrRecipientID.
	BindEvents bool
}

// Observation is one typed sighting of an entity, produced by schema mapping
// from a raw row. The resolver turns it into a canonical entity plus attached
// snapshots, events and relationships.
type Observation struct {
	SourceID string
	Kind     EntityKind

	// RawIdentifier is the identifier exactly as the source printed it.
	RawIdentifier string

	// SequentialID is a source-local surrogate used when no real id is available.
	SequentialID string

	// Name is the raw name. The resolver normalises it.
	Name string

	// Disambiguator is the secondary resolution-key part, e.g. birth date.
	Disambiguator string

	Attributes map[string]string
	Snapshot   *ObservedSnapshot
	Events     []Event
	Related    []Relation

	// Unnormalized lists subject fields that failed normalisation.
	Unnormalized []string
}

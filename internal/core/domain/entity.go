package domain

import (
	"slices"
	"time"
)

// EntityKind distinguishes people from organisations.
type EntityKind string

const (
	// EntityPerson is identified by an 11-digit national id.
	EntityPerson EntityKind = "person"
	// EntityOrganization is identified by a 14-digit organisation id.
	EntityOrganization EntityKind = "organization"
)

// Well-known entity attribute keys.
const (
	AttrBirthDate  = "birth_date"
	AttrOffice     = "office"
	AttrDepartment = "department"
	AttrRole       = "role"
	AttrParty      = "party"
	AttrState      = "state"
	AttrOrigin     = "origin"
)

// CanonicalEntity is the deduplicated, cross-period view of one person or organisation.
// Created on first sighting and never deleted.
type CanonicalEntity struct {
	// ID is stable for the entity's lifetime, including across identifier upgrades.
	ID string

	// Kind is person or organization.
	Kind EntityKind

	// Identifier is the single current identifier. It may be upgraded over time.
	Identifier Identifier

	// Aliases are secondary lookup keys: identifiers replaced by an upgrade and
	// source-local surrogates seen next to a stronger identifier.
	Aliases []Identifier

	// CanonicalName is the normalised name.
	CanonicalName string

	// Attributes holds the latest seen attribute values.
	Attributes map[string]string

	// ResolutionKey is name plus secondary disambiguator (e.g. birth date).
	// Empty when the sighting carried no disambiguator.
	ResolutionKey string

	// CreatedAt is when the entity was first seen.
	CreatedAt time.Time

	// UpdatedAt is when the entity was last merged.
	UpdatedAt time.Time
}

// Attr returns an attribute value or "".
func (e *CanonicalEntity) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}

// HasAlias reports whether id is the identifier or one of the aliases.
func (e *CanonicalEntity) HasAlias(id Identifier) bool {
	if id.IsZero() {
		return false
	}
	if e.Identifier.Key() == id.Key() {
		return true
	}
	for _, a := range e.Aliases {
		if a.Key() == id.Key() {
			return true
		}
	}
	return false
}

// AddAlias records id as a lookup key unless already known.
func (e *CanonicalEntity) AddAlias(id Identifier) {
	if id.IsZero() || e.HasAlias(id) {
		return
	}
	e.Aliases = append(e.Aliases, id)
}

// ResolutionKey builds the composite key from a normalised name and a disambiguator.
func ResolutionKey(name, disambiguator string) string {
	if name == "" || disambiguator == "" {
		return ""
	}
	return name + "|" + disambiguator
}

// Snapshot is a periodic declared value, e.g. declared assets per election year.
// There is at most one per (entity, period).
type Snapshot struct {
	EntityID      string
	Period        string
	DeclaredValue float64

	// Parts holds itemised components when the source declares one row per
	// item. DeclaredValue is their sum; re-ingesting a part replaces it.
	Parts map[string]float64

	SourceID   string
	CapturedAt time.Time
}

// SetPart replaces one component and recomputes the declared value.
func (s *Snapshot) SetPart(key string, value float64) {
	if s.Parts == nil {
		s.Parts = make(map[string]float64)
	}
	s.Parts[key] = value
	keys := make([]string, 0, len(s.Parts))
	for k := range s.Parts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	total := 0.0
	for _, k := range keys {
		total += s.Parts[k]
	}
	s.DeclaredValue = total
}

// EventType classifies events.
type EventType string

const (
	// EventPayroll is a monthly pay entry for a public employee.
	EventPayroll EventType = "payroll"
	// EventTravel is a travel reimbursement (per diem).
	EventTravel EventType = "travel"
	// EventContract is a public contract or purchase awarded to a vendor.
	EventContract EventType = "contract"
	// EventSanction is a sanction-list entry against an entity.
	EventSanction EventType = "sanction"
	// EventDonation is an electoral donation made by the entity.
	EventDonation EventType = "donation"
)

// Well-known event attribute keys.
const (
	EvAttrRole         = "role"
	EvAttrWeeklyHours  = "weekly_hours"
	EvAttrContractType = "contract_type"
	EvAttrDepartment   = "department"
	EvAttrDestination  = "destination"
	EvAttrReason       = "reason"
	EvAttrSanctionType = "sanction_type"
	EvAttrCandidate    = "candidate"
	EvAttrNet          = "net"
	EvAttrOffice       = "office"
	EvAttrElection     = "election_year"
	EvAttrDescription  = "description"
	EvAttrReference    = "reference"
	EvAttrRecipientID  = "recipient_entity_id"
)

// Field names that may be flagged as unnormalised on an event.
const (
	FieldAmount     = "amount"
	FieldOccurredAt = "occurred_at"
)

// Event is an append-only fact about an entity.
type Event struct {
	// ID is a stable hash of the defining source fields; the dedup key.
	ID string

	EntityID   string
	Type       EventType
	OccurredAt time.Time
	OccurredTo time.Time
	Amount     float64
	Attributes map[string]string

	// Unnormalized lists fields that failed normalisation. Detectors treat them as absent.
	Unnormalized []string

	SourceID string
}

// Has reports whether field was normalised and may be used.
func (e *Event) Has(field string) bool {
	return !slices.Contains(e.Unnormalized, field)
}

// Attr returns an attribute value or "".
func (e *Event) Attr(key string) string {
	if e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}

// RelationType names a typed relationship between entities.
type RelationType string

const (
	// RelPartnerOf links a person or organisation to a company it is a partner of.
	RelPartnerOf RelationType = "PARTNER_OF"
	// RelDonatedTo links a donor to a candidate.
	RelDonatedTo RelationType = "DONATED_TO"
	// RelContractedBy links a vendor to the contracting department's organisation.
	RelContractedBy RelationType = "CONTRACTED_BY"
)

// Relationship is a row of the relationship table, keyed by (FromID, ToID, Type).
type Relationship struct {
	FromID     string
	ToID       string
	Type       RelationType
	Attributes map[string]string
	SourceID   string
}

// Key returns the relationship's identity.
func (r Relationship) Key() string {
	return r.FromID + "|" + string(r.Type) + "|" + r.ToID
}

// RelationshipHint is a low-confidence suggestion from the fuzzy name path.
// It never merges or creates identity.
type RelationshipHint struct {
	FromID     string
	ToID       string
	Reason     string
	Similarity float64
}

// DecisionKind classifies resolver decisions.
type DecisionKind string

const (
	// DecisionAmbiguousMerge records entities kept distinct for manual review.
	DecisionAmbiguousMerge DecisionKind = "ambiguous_merge"
	// DecisionIdentifierUpgrade records an identifier upgrade in place.
	DecisionIdentifierUpgrade DecisionKind = "identifier_upgrade"
)

// Decision is a resolver decision-log entry.
type Decision struct {
	Kind          DecisionKind
	EntityID      string
	CandidateIDs  []string
	ResolutionKey string
	Previous      Identifier
	Current       Identifier
	SourceID      string
	CreatedAt     time.Time
}

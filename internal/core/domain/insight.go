package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// Severity ranks an insight.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Rank orders severities; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity accepts a severity name in any case.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if sev.Rank() == 0 {
		return "", fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, s)
	}
	return sev, nil
}

// InsightStatus is the human verification workflow state.
type InsightStatus string

const (
	StatusDetected    InsightStatus = "DETECTED"
	StatusUnderReview InsightStatus = "UNDER_REVIEW"
	StatusEscalated   InsightStatus = "ESCALATED"
	StatusResolved    InsightStatus = "RESOLVED"
)

// allowedTransitions encodes mandatory review before escalation.
var allowedTransitions = map[InsightStatus][]InsightStatus{
	StatusDetected:    {StatusUnderReview},
	StatusUnderReview: {StatusEscalated, StatusResolved},
	StatusEscalated:   {StatusResolved},
}

// CanTransition reports whether a status change is allowed.
func (s InsightStatus) CanTransition(to InsightStatus) bool {
	return slices.Contains(allowedTransitions[s], to)
}

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (InsightStatus, error) {
	st := InsightStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusDetected, StatusUnderReview, StatusEscalated, StatusResolved:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
}

// EvidenceRole describes why a reference is cited.
type EvidenceRole string

const (
	RoleSubject      EvidenceRole = "subject"
	RoleCounterparty EvidenceRole = "counterparty"
	RoleEvent        EvidenceRole = "event"
	RoleSanction     EvidenceRole = "sanction"
	RoleSnapshot     EvidenceRole = "snapshot"
)

// EvidenceRef points at an entity or an event backing an insight.
type EvidenceRef struct {
	EntityID string
	EventID  string
	Role     EvidenceRole
}

// EvidenceLink is a row of the insight-evidence join.
type EvidenceLink struct {
	InsightID string
	EntityID  string
	EventID   string
	Role      EvidenceRole
}

// Insight is a scored, evidence-backed anomaly.
type Insight struct {
	// ID is a deterministic hash of (DetectorID, PrimaryKey, GroupingKey).
	ID string

	DetectorID string
	Severity   Severity

	// Confidence is in [0, 99].
	Confidence int

	ExposureAmount float64
	Title          string
	Description    string
	LegalBasisTag  string

	// Evidence is ordered and bounded by the detector's cap.
	Evidence []EvidenceRef

	Status    InsightStatus
	CreatedAt time.Time

	// PrimaryKey is the primary entity key the id is derived from.
	PrimaryKey string

	// GroupingKey is the detector-specific grouping the id is derived from.
	GroupingKey string
}

// InsightID computes the deterministic insight id.
func InsightID(detectorID, primaryKey, groupingKey string) string {
	h := sha256.New()
	h.Write([]byte(detectorID))
	h.Write([]byte{0})
	h.Write([]byte(primaryKey))
	h.Write([]byte{0})
	h.Write([]byte(groupingKey))
	return hex.EncodeToString(h.Sum(nil))
}

// AssignID sets ID from the detector, primary and grouping keys.
func (i *Insight) AssignID() {
	i.ID = InsightID(i.DetectorID, i.PrimaryKey, i.GroupingKey)
}

// Links returns the evidence as join rows.
func (i *Insight) Links() []EvidenceLink {
	links := make([]EvidenceLink, 0, len(i.Evidence))
	for _, ref := range i.Evidence {
		links = append(links, EvidenceLink{
			InsightID: i.ID,
			EntityID:  ref.EntityID,
			EventID:   ref.EventID,
			Role:      ref.Role,
		})
	}
	return links
}

// ClampConfidence rounds and bounds a raw confidence score into [0, 99].
func ClampConfidence(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(99, v))))
}

// SortInsights orders insights for presentation: severity desc, confidence desc.
// Ties fall back to exposure desc then id, so the order is total.
func SortInsights(insights []Insight) {
	slices.SortStableFunc(insights, func(a, b Insight) int {
		if d := b.Severity.Rank() - a.Severity.Rank(); d != 0 {
			return d
		}
		if d := b.Confidence - a.Confidence; d != 0 {
			return d
		}
		if a.ExposureAmount != b.ExposureAmount {
			if a.ExposureAmount > b.ExposureAmount {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// InsightFilter narrows insight listings.
type InsightFilter struct {
	DetectorID  string
	MinSeverity Severity
	Status      InsightStatus
	EntityID    string
	Limit       int
}

// Matches reports whether an insight passes the filter, ignoring Limit and EntityID.
func (f InsightFilter) Matches(i *Insight) bool {
	if f.DetectorID != "" && i.DetectorID != f.DetectorID {
		return false
	}
	if f.MinSeverity != "" && i.Severity.Rank() < f.MinSeverity.Rank() {
		return false
	}
	if f.Status != "" && i.Status != f.Status {
		return false
	}
	return true
}

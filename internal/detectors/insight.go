package detectors

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/identity"
)

var ptBR = message.NewPrinter(language.BrazilianPortuguese)

// newInsight starts a DETECTED insight with its ID and legal basis assigned.
func newInsight(detectorID, primaryKey, groupingKey, tag string) domain.Insight {
	in := domain.Insight{
		DetectorID:    detectorID,
		PrimaryKey:    primaryKey,
		GroupingKey:   groupingKey,
		LegalBasisTag: tag,
		Status:        domain.StatusDetected,
	}
	in.AssignID()
	return in
}

// evidence collects references up to a cap, dropping repeats.
type evidence struct {
	cap  int
	seen map[domain.EvidenceRef]bool
	refs []domain.EvidenceRef
}

func newEvidence(limit int) *evidence {
	return &evidence{cap: limit, seen: make(map[domain.EvidenceRef]bool)}
}

func (e *evidence) add(ref domain.EvidenceRef) {
	if e.seen[ref] || (e.cap > 0 && len(e.refs) >= e.cap) {
		return
	}
	e.seen[ref] = true
	e.refs = append(e.refs, ref)
}

func (e *evidence) entity(id string, role domain.EvidenceRole) {
	if id != "" {
		e.add(domain.EvidenceRef{EntityID: id, Role: role})
	}
}

func (e *evidence) event(ev domain.Event, role domain.EvidenceRole) {
	e.add(domain.EvidenceRef{EntityID: ev.EntityID, EventID: ev.ID, Role: role})
}

func (e *evidence) list() []domain.EvidenceRef {
	return e.refs
}

// amount returns the event amount when it was normalised.
func amount(ev domain.Event) (float64, bool) {
	if !ev.Has(domain.FieldAmount) {
		return 0, false
	}
	return ev.Amount, true
}

// dated reports whether the event carries a usable occurrence date.
func dated(ev domain.Event) bool {
	return ev.Has(domain.FieldOccurredAt) && !ev.OccurredAt.IsZero()
}

// groupKey normalises free text used as a grouping column.
func groupKey(raw string) string {
	return identity.NormalizeName(raw)
}

// displayName returns the entity's canonical name or its id.
func displayName(set *domain.DetectionSet, id string) string {
	if e, ok := set.Entity(id); ok && e.CanonicalName != "" {
		return e.CanonicalName
	}
	return id
}

// brl formats a value the way Brazilian portals print currency.
func brl(v float64) string {
	return "R$ " + ptBR.Sprintf("%.2f", v)
}

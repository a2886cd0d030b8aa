package detectors

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// Detector IDs over contract events.
const (
	BidSplittingID        = "bid_splitting"
	MarketConcentrationID = "market_concentration"
	SanctionsID           = "sanctions"
)

// departmentOf returns the normalised contracting department of a contract.
func departmentOf(ev domain.Event) string {
	return groupKey(ev.Attr(domain.EvAttrDepartment))
}

// BidSplitting flags vendors holding several contracts with one department,
// each below the dispensation limit, whose sum exceeds it.
type BidSplitting struct {
	limit      float64
	min        int
	confidence int
	cap        int
}

// NewBidSplitting creates the detector.
func NewBidSplitting(cfg Config) *BidSplitting {
	return &BidSplitting{
		limit:      cfg.DispensationLimit,
		min:        cfg.BidSplitMinContracts,
		confidence: cfg.BidSplitConfidence,
		cap:        cfg.EvidenceCap,
	}
}

// ID returns the detector identifier.
func (d *BidSplitting) ID() string { return BidSplittingID }

// Detect groups sub-limit contracts by (vendor, department).
func (d *BidSplitting) Detect(ctx context.Context, set *domain.DetectionSet) ([]domain.Insight, error) {
	type group struct {
		vendor, department string
		events             []domain.Event
		total              float64
	}
	groups := make(map[string]*group)
	var order []string
	for _, ev := range set.EventsOf(domain.EventContract) {
		value, ok := amount(ev)
		dept := departmentOf(ev)
		if !ok || value <= 0 || value >= d.limit || dept == "" {
			continue
		}
		key := ev.EntityID + "|" + dept
		g, ok := groups[key]
		if !ok {
			g = &group{vendor: ev.EntityID, department: dept}
			groups[key] = g
			order = append(order, key)
		}
		g.events = append(g.events, ev)
		g.total += value
	}
	slices.Sort(order)

	var out []domain.Insight
	for _, key := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g := groups[key]
		if len(g.events) < d.min || g.total <= d.limit {
			continue
		}
		in := newInsight(BidSplittingID, g.vendor, g.department, TagBidSplitting)
		in.Severity = domain.SeverityCritical
		in.Confidence = domain.ClampConfidence(float64(d.confidence))
		in.ExposureAmount = g.total
		in.Title = "Possible bid splitting: " + displayName(set, g.vendor)
		in.Description = fmt.Sprintf(
			"%d contracts with %s, each below the dispensation limit of %s, add up to %s (%s to %s).",
			len(g.events), g.department, brl(d.limit), brl(g.total),
			g.events[0].OccurredAt.Format("02/01/2006"),
			g.events[len(g.events)-1].OccurredAt.Format("02/01/2006"),
		)
		refs := newEvidence(d.cap)
		refs.entity(g.vendor, domain.RoleSubject)
		for _, ev := range g.events {
			refs.event(ev, domain.RoleEvent)
		}
		in.Evidence = refs.list()
		out = append(out, in)
	}
	return out, nil
}

// MarketConcentration flags the dominant vendor of a department.
type MarketConcentration struct {
	share        float64
	minContracts int
	minSpend     float64
	cap          int
}

// NewMarketConcentration creates the detector.
func NewMarketConcentration(cfg Config) *MarketConcentration {
	return &MarketConcentration{
		share:        cfg.ConcentrationShare,
		minContracts: cfg.ConcentrationMinContracts,
		minSpend:     cfg.ConcentrationMinSpend,
		cap:          cfg.EvidenceCap,
	}
}

// ID returns the detector identifier.
func (d *MarketConcentration) ID() string { return MarketConcentrationID }

// Detect computes each vendor's share of its department's spend and flags
// the top vendor when the share and volume clear the thresholds.
func (d *MarketConcentration) Detect(ctx context.Context, set *domain.DetectionSet) ([]domain.Insight, error) {
	type department struct {
		total     float64
		contracts int
		vendors   map[string]float64
		events    map[string][]domain.Event
	}
	depts := make(map[string]*department)
	for _, ev := range set.EventsOf(domain.EventContract) {
		value, ok := amount(ev)
		name := departmentOf(ev)
		if !ok || name == "" {
			continue
		}
		dep, ok := depts[name]
		if !ok {
			dep = &department{vendors: map[string]float64{}, events: map[string][]domain.Event{}}
			depts[name] = dep
		}
		dep.total += value
		dep.contracts++
		dep.vendors[ev.EntityID] += value
		dep.events[ev.EntityID] = append(dep.events[ev.EntityID], ev)
	}

	names := make([]string, 0, len(depts))
	for name := range depts {
		names = append(names, name)
	}
	slices.Sort(names)

	var out []domain.Insight
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dep := depts[name]
		if dep.contracts < d.minContracts || dep.total <= 0 {
			continue
		}
		top, spend := topVendor(dep.vendors)
		share := spend / dep.total
		if spend < d.minSpend || share <= d.share {
			continue
		}

		in := newInsight(MarketConcentrationID, top, name, TagConcentration)
		in.Severity = domain.SeverityHigh
		if share > 0.5 {
			in.Severity = domain.SeverityCritical
		}
		in.Confidence = domain.ClampConfidence(50 + share*40)
		in.ExposureAmount = spend
		in.Title = "Market concentration: " + displayName(set, top)
		in.Description = fmt.Sprintf(
			"%s holds %.0f%% of the %s spent by %s across %d contracts.",
			displayName(set, top), share*100, brl(dep.total), name, dep.contracts,
		)
		refs := newEvidence(d.cap)
		refs.entity(top, domain.RoleSubject)
		for _, ev := range dep.events[top] {
			refs.event(ev, domain.RoleEvent)
		}
		in.Evidence = refs.list()
		out = append(out, in)
	}
	return out, nil
}

// topVendor returns the vendor with the largest spend, ties broken by id.
func topVendor(vendors map[string]float64) (string, float64) {
	var best string
	var spend float64
	for id, v := range vendors {
		if best == "" || v > spend || (v == spend && strings.Compare(id, best) < 0) {
			best, spend = id, v
		}
	}
	return best, spend
}

// Sanctions flags contracts awarded to an entity while it was under sanction.
// The match is by resolved entity, so it follows the identifier the sanction
// list and the contract share.
type Sanctions struct {
	confidence int
	cap        int
}

// NewSanctions creates the detector.
func NewSanctions(cfg Config) *Sanctions {
	return &Sanctions{confidence: cfg.SanctionConfidence, cap: cfg.EvidenceCap}
}

// ID returns the detector identifier.
func (d *Sanctions) ID() string { return SanctionsID }

// Detect emits one insight per (entity, sanction) with at least one contract
// inside the sanction window.
func (d *Sanctions) Detect(ctx context.Context, set *domain.DetectionSet) ([]domain.Insight, error) {
	contracts := make(map[string][]domain.Event)
	for _, ev := range set.EventsOf(domain.EventContract) {
		contracts[ev.EntityID] = append(contracts[ev.EntityID], ev)
	}

	var out []domain.Insight
	for _, sanction := range set.EventsOf(domain.EventSanction) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var hits []domain.Event
		total := 0.0
		for _, c := range contracts[sanction.EntityID] {
			if !activeDuring(sanction, c) {
				continue
			}
			hits = append(hits, c)
			if v, ok := amount(c); ok {
				total += v
			}
		}
		if len(hits) == 0 {
			continue
		}

		in := newInsight(SanctionsID, sanction.EntityID, sanction.ID, TagSanctionedVendor)
		in.Severity = domain.SeverityCritical
		in.Confidence = domain.ClampConfidence(float64(d.confidence))
		in.ExposureAmount = total
		in.Title = "Contract with sanctioned entity: " + displayName(set, sanction.EntityID)
		in.Description = fmt.Sprintf(
			"%s is listed with sanction %q (%s) and holds %d contracts worth %s inside the sanction period.",
			displayName(set, sanction.EntityID), sanction.Attr(domain.EvAttrSanctionType),
			sanctionWindow(sanction), len(hits), brl(total),
		)
		refs := newEvidence(d.cap)
		refs.entity(sanction.EntityID, domain.RoleSubject)
		refs.event(sanction, domain.RoleSanction)
		for _, c := range hits {
			refs.event(c, domain.RoleEvent)
		}
		in.Evidence = refs.list()
		out = append(out, in)
	}
	return out, nil
}

// activeDuring reports whether a contract falls inside the sanction window.
// An undated contract or sanction start counts as overlapping; a zero end is open-ended.
func activeDuring(sanction, contract domain.Event) bool {
	if !dated(contract) || !dated(sanction) {
		return true
	}
	if contract.OccurredAt.Before(sanction.OccurredAt) {
		return false
	}
	return sanction.OccurredTo.IsZero() || !contract.OccurredAt.After(sanction.OccurredTo)
}

func sanctionWindow(ev domain.Event) string {
	from := "unknown start"
	if dated(ev) {
		from = ev.OccurredAt.Format("02/01/2006")
	}
	to := "open-ended"
	if !ev.OccurredTo.IsZero() {
		to = ev.OccurredTo.Format("02/01/2006")
	}
	return from + " to " + to
}

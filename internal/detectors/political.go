package detectors

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// Detector IDs over companies with an elected or candidate partner.
const (
	PoliticalPartnerID = "political_partner"
	DirectAwardID      = "direct_award"
)

// politicalLinks indexes, per company, the partners who hold or ran for office.
type politicalLinks struct {
	partners map[string][]string
	// qualification of a partner in a company, keyed by partner then company.
	roles map[[2]string]string
}

func linkPoliticians(set *domain.DetectionSet) politicalLinks {
	links := politicalLinks{partners: make(map[string][]string), roles: make(map[[2]string]string)}
	for _, rel := range set.Relationships(domain.RelPartnerOf) {
		person, ok := set.Entity(rel.FromID)
		if !ok || person.Kind != domain.EntityPerson || person.Attr(domain.AttrOffice) == "" {
			continue
		}
		if !slices.Contains(links.partners[rel.ToID], rel.FromID) {
			links.partners[rel.ToID] = append(links.partners[rel.ToID], rel.FromID)
		}
		links.roles[[2]string{rel.FromID, rel.ToID}] = rel.Attributes["qualification"]
	}
	for _, ids := range links.partners {
		slices.Sort(ids)
	}
	return links
}

func (l politicalLinks) role(partner, company string) string {
	if q := l.roles[[2]string{partner, company}]; q != "" {
		return strings.ToLower(q)
	}
	return "partner"
}

// politicalSeverity maps a score in [0, 1] to a severity band.
func politicalSeverity(score float64) domain.Severity {
	switch {
	case score >= 0.85:
		return domain.SeverityCritical
	case score >= 0.70:
		return domain.SeverityHigh
	default:
		return domain.SeverityMedium
	}
}

// PoliticalPartner flags politicians who are partners of companies paid by
// the state. The score grows with the logarithm of the amount received.
type PoliticalPartner struct {
	minAmount float64
	cap       int
}

// NewPoliticalPartner creates the detector.
func NewPoliticalPartner(cfg Config) *PoliticalPartner {
	return &PoliticalPartner{minAmount: cfg.PoliticalMinAmount, cap: cfg.EvidenceCap}
}

// ID returns the detector identifier.
func (d *PoliticalPartner) ID() string { return PoliticalPartnerID }

// Detect sums the contracts of each company with a political partner.
func (d *PoliticalPartner) Detect(ctx context.Context, set *domain.DetectionSet) ([]domain.Insight, error) {
	links := linkPoliticians(set)
	if len(links.partners) == 0 {
		return nil, nil
	}

	received := make(map[string][]domain.Event)
	for _, ev := range set.EventsOf(domain.EventContract) {
		if _, ok := links.partners[ev.EntityID]; ok {
			received[ev.EntityID] = append(received[ev.EntityID], ev)
		}
	}
	companies := make([]string, 0, len(received))
	for id := range received {
		companies = append(companies, id)
	}
	slices.Sort(companies)

	var out []domain.Insight
	for _, company := range companies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		contracts := received[company]
		total := 0.0
		for _, c := range contracts {
			if v, ok := amount(c); ok {
				total += v
			}
		}
		if total < d.minAmount {
			continue
		}
		slices.SortStableFunc(contracts, func(a, b domain.Event) int {
			return cmp.Or(cmp.Compare(b.Amount, a.Amount), strings.Compare(a.ID, b.ID))
		})

		score := politicalPartnerScore(total)
		for _, politician := range links.partners[company] {
			person, _ := set.Entity(politician)
			in := newInsight(PoliticalPartnerID, politician, company, TagPoliticalPartner)
			in.Severity = politicalSeverity(score)
			in.Confidence = domain.ClampConfidence(score * 99)
			in.ExposureAmount = total
			in.Title = "Politician is partner of a state supplier: " + person.CanonicalName
			in.Description = fmt.Sprintf(
				"%s (%s) is %s of %s, which received %s in %d contracts.",
				person.CanonicalName, officeLabel(person.Attr(domain.AttrOffice)),
				links.role(politician, company), displayName(set, company), brl(total), len(contracts),
			)
			refs := newEvidence(d.cap)
			refs.entity(politician, domain.RoleSubject)
			refs.entity(company, domain.RoleCounterparty)
			for _, c := range contracts {
				refs.event(c, domain.RoleEvent)
			}
			in.Evidence = refs.list()
			out = append(out, in)
		}
	}
	return out, nil
}

// politicalPartnerScore maps 50k to about 0.62 and 10M or more to 0.97.
func politicalPartnerScore(total float64) float64 {
	if total <= 0 {
		return 0
	}
	score := 0.5 + math.Min(0.47, (math.Log10(math.Max(total, 1))-4)/6)
	return math.Max(0.5, score)
}

// DirectAward flags contracts awarded without competitive bidding to a
// company with a political partner.
type DirectAward struct {
	minAmount  float64
	modalities []string
	cap        int
}

// NewDirectAward creates the detector.
func NewDirectAward(cfg Config) *DirectAward {
	modalities := make([]string, len(cfg.DirectAwardModalities))
	for i, m := range cfg.DirectAwardModalities {
		modalities[i] = groupKey(m)
	}
	return &DirectAward{minAmount: cfg.PoliticalMinAmount, modalities: modalities, cap: cfg.EvidenceCap}
}

// ID returns the detector identifier.
func (d *DirectAward) ID() string { return DirectAwardID }

// Detect checks each contract's modality and amount.
func (d *DirectAward) Detect(ctx context.Context, set *domain.DetectionSet) ([]domain.Insight, error) {
	links := linkPoliticians(set)
	if len(links.partners) == 0 {
		return nil, nil
	}

	var out []domain.Insight
	for _, ev := range set.EventsOf(domain.EventContract) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		politicians := links.partners[ev.EntityID]
		if len(politicians) == 0 || !d.direct(ev.Attr(domain.EvAttrContractType)) {
			continue
		}
		value, ok := amount(ev)
		if !ok || value < d.minAmount {
			continue
		}

		score := math.Min(1, 0.65+value/5_000_000*0.3)
		for _, politician := range politicians {
			person, _ := set.Entity(politician)
			in := newInsight(DirectAwardID, politician, ev.ID, TagDirectAward)
			in.Severity = politicalSeverity(score)
			in.Confidence = domain.ClampConfidence(score * 99)
			in.ExposureAmount = value
			in.Title = "Direct award to a company with a political partner: " + displayName(set, ev.EntityID)
			in.Description = fmt.Sprintf(
				"Contract %s by %s (%s) went to %s, where %s (%s) is %s. Object: %s",
				ev.Attr(domain.EvAttrReference), strings.ToLower(ev.Attr(domain.EvAttrContractType)), brl(value),
				displayName(set, ev.EntityID), person.CanonicalName, officeLabel(person.Attr(domain.AttrOffice)),
				links.role(politician, ev.EntityID), truncate(ev.Attr(domain.EvAttrDescription), 100),
			)
			refs := newEvidence(d.cap)
			refs.entity(politician, domain.RoleSubject)
			refs.entity(ev.EntityID, domain.RoleCounterparty)
			refs.event(ev, domain.RoleEvent)
			in.Evidence = refs.list()
			out = append(out, in)
		}
	}
	return out, nil
}

// direct reports whether a modality waives bidding.
func (d *DirectAward) direct(modality string) bool {
	modality = groupKey(modality)
	if modality == "" {
		return false
	}
	for _, m := range d.modalities {
		if strings.Contains(modality, m) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

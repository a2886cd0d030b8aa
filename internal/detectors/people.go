package detectors

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/identity"
)

// Detector IDs over people, their pay and their declared assets.
const (
	SurnameRelationshipID = "surname_relationship"
	DonationContractID    = "donation_contract"
	AssetGrowthID         = "asset_growth"
	SalaryCeilingID       = "salary_ceiling"
)

// SurnameRelationship flags public employees who share an uncommon surname
// with a partner of a company. It is informational and never CRITICAL.
type SurnameRelationship struct {
	matcher    *identity.SurnameMatcher
	confidence int
	cap        int
}

// NewSurnameRelationship creates the detector.
func NewSurnameRelationship(cfg Config) *SurnameRelationship {
	return &SurnameRelationship{
		matcher:    identity.NewSurnameMatcher(cfg.CommonSurnames, cfg.MinSurnameLength, 1),
		confidence: cfg.SurnameConfidence,
		cap:        cfg.EvidenceCap,
	}
}

// ID returns the detector identifier.
func (d *SurnameRelationship) ID() string { return SurnameRelationshipID }

// Detect joins employees and partners on their last surname.
func (d *SurnameRelationship) Detect(ctx context.Context, set *domain.DetectionSet) ([]domain.Insight, error) {
	companies := make(map[string][]string)
	bySurname := make(map[string][]string)
	for _, rel := range set.Relationships(domain.RelPartnerOf) {
		partner, ok := set.Entity(rel.FromID)
		if !ok || partner.Kind != domain.EntityPerson {
			continue
		}
		if _, seen := companies[rel.FromID]; !seen {
			if s := identity.LastSurname(partner.CanonicalName); d.matcher.Eligible(s) {
				bySurname[s] = append(bySurname[s], rel.FromID)
			}
		}
		companies[rel.FromID] = append(companies[rel.FromID], rel.ToID)
	}

	employees := make(map[string]bool)
	for _, ev := range set.EventsOf(domain.EventPayroll) {
		employees[ev.EntityID] = true
	}
	ids := make([]string, 0, len(employees))
	for id := range employees {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []domain.Insight
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		employee, ok := set.Entity(id)
		if !ok {
			continue
		}
		surname := identity.LastSurname(employee.CanonicalName)
		if !d.matcher.Eligible(surname) {
			continue
		}
		partners := slices.Clone(bySurname[surname])
		slices.Sort(partners)
		for _, partnerID := range partners {
			if partnerID == id {
				continue
			}
			firms := slices.Clone(companies[partnerID])
			slices.Sort(firms)
			names := make([]string, len(firms))
			for i, f := range firms {
				names[i] = displayName(set, f)
			}

			in := newInsight(SurnameRelationshipID, id, partnerID, TagNepotism)
			in.Severity = domain.SeverityHigh
			in.Confidence = domain.ClampConfidence(float64(d.confidence))
			in.Title = "Shared surname with company partner: " + employee.CanonicalName
			in.Description = fmt.Sprintf(
				"Employee %s (%s) shares the surname %s with %s, partner of %s. Kinship is not established; verify before acting.",
				employee.CanonicalName, employee.Attr(domain.AttrDepartment), surname,
				displayName(set, partnerID), strings.Join(names, ", "),
			)
			refs := newEvidence(d.cap)
			refs.entity(id, domain.RoleSubject)
			refs.entity(partnerID, domain.RoleCounterparty)
			for _, f := range firms {
				refs.entity(f, domain.RoleCounterparty)
			}
			in.Evidence = refs.list()
			out = append(out, in)
		}
	}
	return out, nil
}

// DonationContract flags campaign donors whose companies win contracts after the election.
type DonationContract struct {
	cfg Config
}

// NewDonationContract creates the detector.
func NewDonationContract(cfg Config) *DonationContract {
	return &DonationContract{cfg: cfg}
}

// ID returns the detector identifier.
func (d *DonationContract) ID() string { return DonationContractID }

// Detect links each donor to itself and to the companies it is a partner of,
// then sums their contracts dated after the election.
func (d *DonationContract) Detect(ctx context.Context, set *domain.DetectionSet) ([]domain.Insight, error) {
	election := d.cfg.ElectionDate
	donations := make(map[string][]domain.Event)
	for _, ev := range set.EventsOf(domain.EventDonation) {
		if dated(ev) && ev.OccurredAt.After(election) {
			continue
		}
		donations[ev.EntityID] = append(donations[ev.EntityID], ev)
	}
	postElection := make(map[string][]domain.Event)
	for _, ev := range set.EventsOf(domain.EventContract) {
		if dated(ev) && ev.OccurredAt.After(election) {
			postElection[ev.EntityID] = append(postElection[ev.EntityID], ev)
		}
	}
	firmsOf := make(map[string][]string)
	for _, rel := range set.Relationships(domain.RelPartnerOf) {
		firmsOf[rel.FromID] = append(firmsOf[rel.FromID], rel.ToID)
	}

	donors := make([]string, 0, len(donations))
	for id := range donations {
		donors = append(donors, id)
	}
	slices.Sort(donors)

	var out []domain.Insight
	for _, donor := range donors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		firms := append([]string{donor}, firmsOf[donor]...)
		slices.Sort(firms)
		firms = slices.Compact(firms)
		for _, firm := range firms {
			contracts := postElection[firm]
			if len(contracts) == 0 {
				continue
			}
			total := 0.0
			for _, c := range contracts {
				if v, ok := amount(c); ok {
					total += v
				}
			}
			donated := 0.0
			for _, dn := range donations[donor] {
				if v, ok := amount(dn); ok {
					donated += v
				}
			}

			in := newInsight(DonationContractID, firm, donor, TagDonationContract)
			in.Severity = domain.SeverityCritical
			in.Confidence = 80
			via := "directly"
			if firm != donor {
				in.Confidence = 65
				via = "through its partner " + displayName(set, donor)
			}
			in.ExposureAmount = total
			in.Title = "Donor awarded contracts after election: " + displayName(set, firm)
			in.Description = fmt.Sprintf(
				"%s donated %s to %s before the %s election and, %s, received %d contracts worth %s afterwards.",
				displayName(set, donor), brl(donated), recipients(set, donations[donor]),
				election.Format("02/01/2006"), via, len(contracts), brl(total),
			)
			refs := newEvidence(d.cfg.EvidenceCap)
			refs.entity(firm, domain.RoleSubject)
			if firm != donor {
				refs.entity(donor, domain.RoleCounterparty)
			}
			for _, dn := range donations[donor] {
				refs.event(dn, domain.RoleEvent)
				refs.entity(dn.Attr(domain.EvAttrRecipientID), domain.RoleCounterparty)
			}
			for _, c := range contracts {
				refs.event(c, domain.RoleEvent)
			}
			in.Evidence = refs.list()
			out = append(out, in)
		}
	}
	return out, nil
}

// recipients names the candidates of a donor's donations.
func recipients(set *domain.DetectionSet, donations []domain.Event) string {
	var names []string
	for _, dn := range donations {
		name := dn.Attr(domain.EvAttrCandidate)
		if id := dn.Attr(domain.EvAttrRecipientID); id != "" {
			name = displayName(set, id)
		}
		if name != "" && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "a campaign"
	}
	return strings.Join(names, ", ")
}

// officeIncome is the yearly income paid by each elected office.
var officeIncome = []struct {
	office string
	yearly float64
}{
	{"SENADOR", 936000},
	{"GOVERNADOR", 780000},
	{"DEPUTADO FEDERAL", 528000},
	{"DEPUTADO ESTADUAL", 312000},
	{"PREFEITO", 156000},
	{"VEREADOR", 96000},
}

const defaultYearlyIncome = 120000

// yearlyIncome returns the income paid by an office, matched by substring.
func yearlyIncome(office string) float64 {
	office = groupKey(office)
	for _, o := range officeIncome {
		if strings.Contains(office, o.office) {
			return o.yearly
		}
	}
	return defaultYearlyIncome
}

// AssetGrowth flags declared assets that grow faster than the office pays.
type AssetGrowth struct {
	minGap   float64
	multiple float64
	cap      int
}

// NewAssetGrowth creates the detector.
func NewAssetGrowth(cfg Config) *AssetGrowth {
	return &AssetGrowth{minGap: cfg.AssetMinGap, multiple: cfg.AssetMultiple, cap: cfg.EvidenceCap}
}

// ID returns the detector identifier.
func (d *AssetGrowth) ID() string { return AssetGrowthID }

// Detect compares consecutive yearly snapshots. The unexplained growth is the
// increase minus what the office paid over the elapsed years.
func (d *AssetGrowth) Detect(ctx context.Context, set *domain.DetectionSet) ([]domain.Insight, error) {
	var out []domain.Insight
	for _, id := range set.SnapshotEntities() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entity, _ := set.Entity(id)
		yearly := yearlyIncome(entity.Attr(domain.AttrOffice))

		snaps := set.Snapshots(id)
		for i := 1; i < len(snaps); i++ {
			prev, cur := snaps[i-1], snaps[i]
			y0, err0 := strconv.Atoi(prev.Period)
			y1, err1 := strconv.Atoi(cur.Period)
			if err0 != nil || err1 != nil || y1 <= y0 {
				continue
			}
			income := yearly * float64(max(1, y1-y0))
			gap := cur.DeclaredValue - prev.DeclaredValue - income
			if gap < d.minGap || gap < income*d.multiple {
				continue
			}
			ratio := gap / income
			score := 0.5 + 0.5*ratio/(ratio+2)

			in := newInsight(AssetGrowthID, id, prev.Period+"-"+cur.Period, TagAssetGrowth)
			in.Severity = assetSeverity(score)
			in.Confidence = domain.ClampConfidence(math.Round(score * 99))
			in.ExposureAmount = gap
			in.Title = "Asset growth beyond income: " + displayName(set, id)
			in.Description = fmt.Sprintf(
				"Declared assets went from %s in %s to %s in %s. Estimated income as %s was %s, leaving %s unexplained.",
				brl(prev.DeclaredValue), prev.Period, brl(cur.DeclaredValue), cur.Period,
				officeLabel(entity.Attr(domain.AttrOffice)), brl(income), brl(gap),
			)
			refs := newEvidence(d.cap)
			refs.entity(id, domain.RoleSubject)
			refs.add(domain.EvidenceRef{EntityID: id, EventID: snapshotRef(prev), Role: domain.RoleSnapshot})
			refs.add(domain.EvidenceRef{EntityID: id, EventID: snapshotRef(cur), Role: domain.RoleSnapshot})
			in.Evidence = refs.list()
			out = append(out, in)
		}
	}
	return out, nil
}

func assetSeverity(score float64) domain.Severity {
	switch {
	case score >= 0.9:
		return domain.SeverityCritical
	case score >= 0.75:
		return domain.SeverityHigh
	default:
		return domain.SeverityMedium
	}
}

func officeLabel(office string) string {
	if office == "" {
		return "an unknown office"
	}
	return office
}

// snapshotRef names a snapshot inside an evidence reference.
func snapshotRef(s domain.Snapshot) string {
	return "snapshot:" + s.Period
}

// SalaryCeiling flags gross pay above the constitutional ceiling.
type SalaryCeiling struct {
	ceiling float64
	cap     int
}

// NewSalaryCeiling creates the detector.
func NewSalaryCeiling(cfg Config) *SalaryCeiling {
	return &SalaryCeiling{ceiling: cfg.SalaryCeiling, cap: cfg.EvidenceCap}
}

// ID returns the detector identifier.
func (d *SalaryCeiling) ID() string { return SalaryCeilingID }

// Detect checks each pay entry against the ceiling.
func (d *SalaryCeiling) Detect(ctx context.Context, set *domain.DetectionSet) ([]domain.Insight, error) {
	var out []domain.Insight
	for _, ev := range set.EventsOf(domain.EventPayroll) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		gross, ok := amount(ev)
		if !ok || gross <= d.ceiling {
			continue
		}
		excess := gross - d.ceiling
		in := newInsight(SalaryCeilingID, ev.EntityID, ev.ID, TagSalaryCeiling)
		in.Severity = domain.SeverityHigh
		in.Confidence = domain.ClampConfidence(70 + 29*math.Min(1, excess/d.ceiling))
		in.ExposureAmount = excess
		in.Title = "Pay above ceiling: " + displayName(set, ev.EntityID)
		in.Description = fmt.Sprintf(
			"Gross pay of %s exceeds the ceiling of %s by %s.",
			brl(gross), brl(d.ceiling), brl(excess),
		)
		if dated(ev) {
			in.Description += " Period: " + ev.OccurredAt.Format("01/2006") + "."
		}
		refs := newEvidence(d.cap)
		refs.entity(ev.EntityID, domain.RoleSubject)
		refs.event(ev, domain.RoleEvent)
		in.Evidence = refs.list()
		out = append(out, in)
	}
	return out, nil
}

package detectors

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// StatisticalOutlierID identifies the pay outlier detector.
const StatisticalOutlierID = "statistical_outlier"

// StatisticalOutlier flags pay entries far above their peer group, where the
// peers share role, weekly hours, contract type and month.
type StatisticalOutlier struct {
	z        float64
	minGroup int
	cap      int
}

// NewStatisticalOutlier creates the detector.
func NewStatisticalOutlier(cfg Config) *StatisticalOutlier {
	return &StatisticalOutlier{z: cfg.OutlierZ, minGroup: cfg.OutlierMinGroup, cap: cfg.EvidenceCap}
}

// ID returns the detector identifier.
func (d *StatisticalOutlier) ID() string { return StatisticalOutlierID }

// Detect scores each entry against the rest of its group. Leaving the entry
// out keeps one large value from inflating the spread it is measured by.
func (d *StatisticalOutlier) Detect(ctx context.Context, set *domain.DetectionSet) ([]domain.Insight, error) {
	groups := make(map[string][]domain.Event)
	for _, ev := range set.EventsOf(domain.EventPayroll) {
		if _, ok := amount(ev); !ok || !dated(ev) {
			continue
		}
		groups[peerKey(ev)] = append(groups[peerKey(ev)], ev)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []domain.Insight
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		group := groups[key]
		if len(group) < d.minGroup {
			continue
		}
		stats := newGroupStats(group)
		for _, ev := range group {
			z, ok := stats.leaveOneOutZ(ev.Amount)
			if !ok || z <= d.z {
				continue
			}
			out = append(out, d.insight(set, ev, z, len(group)))
		}
	}
	return out, nil
}

func (d *StatisticalOutlier) insight(set *domain.DetectionSet, ev domain.Event, z float64, n int) domain.Insight {
	in := newInsight(StatisticalOutlierID, ev.EntityID, ev.ID, TagSalaryOutlier)
	in.Severity = outlierSeverity(z)
	in.Confidence = domain.ClampConfidence(45 + 8*z)
	in.ExposureAmount = ev.Amount
	in.Title = "Pay outlier: " + displayName(set, ev.EntityID)
	in.Description = fmt.Sprintf(
		"Pay of %s in %s is %.1f standard deviations above the %d peers with role %q, %sh weekly, contract %q.",
		brl(ev.Amount), ev.OccurredAt.Format("01/2006"), z, n-1,
		ev.Attr(domain.EvAttrRole), ev.Attr(domain.EvAttrWeeklyHours), ev.Attr(domain.EvAttrContractType),
	)
	refs := newEvidence(d.cap)
	refs.entity(ev.EntityID, domain.RoleSubject)
	refs.event(ev, domain.RoleEvent)
	in.Evidence = refs.list()
	return in
}

func outlierSeverity(z float64) domain.Severity {
	switch {
	case z > 4.5:
		return domain.SeverityCritical
	case z > 3.5:
		return domain.SeverityHigh
	default:
		return domain.SeverityMedium
	}
}

// peerKey groups pay entries by role, weekly hours, contract type and month.
func peerKey(ev domain.Event) string {
	return groupKey(ev.Attr(domain.EvAttrRole)) + "|" +
		ev.Attr(domain.EvAttrWeeklyHours) + "|" +
		groupKey(ev.Attr(domain.EvAttrContractType)) + "|" +
		ev.OccurredAt.Format("2006-01")
}

// groupStats holds a group's size, mean and sum of squared deviations.
type groupStats struct {
	n    int
	mean float64
	m2   float64
}

func newGroupStats(group []domain.Event) groupStats {
	s := groupStats{n: len(group)}
	for _, ev := range group {
		s.mean += ev.Amount
	}
	s.mean /= float64(s.n)
	for _, ev := range group {
		d := ev.Amount - s.mean
		s.m2 += d * d
	}
	return s
}

// leaveOneOutZ scores x against the other n-1 values of the group, using
// their sample standard deviation.
func (s groupStats) leaveOneOutZ(x float64) (float64, bool) {
	m := s.n - 1
	if m < 2 {
		return 0, false
	}
	restMean := (s.mean*float64(s.n) - x) / float64(m)
	restM2 := s.m2 - (x-s.mean)*(x-restMean)
	variance := restM2 / float64(m-1)
	if variance <= 1e-12*(restMean*restMean+1) {
		return 0, false
	}
	return (x - restMean) / math.Sqrt(variance), true
}

package detectors

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// Detector IDs over travel events.
const (
	BlockTravelID    = "block_travel"
	WeekendPaymentID = "weekend_payment"
)

// BlockTravel flags trips where many employees leave together for the same
// destination and reason.
type BlockTravel struct {
	min      int
	highCost float64
	cap      int
}

// NewBlockTravel creates the detector.
func NewBlockTravel(cfg Config) *BlockTravel {
	return &BlockTravel{
		min:      cfg.BlockTravelMinParticipants,
		highCost: cfg.BlockTravelHighCost,
		cap:      cfg.EvidenceCap,
	}
}

// ID returns the detector identifier.
func (d *BlockTravel) ID() string { return BlockTravelID }

// Detect groups reimbursements by (destination, departure date, reason).
func (d *BlockTravel) Detect(ctx context.Context, set *domain.DetectionSet) ([]domain.Insight, error) {
	type trip struct {
		destination, date, reason string
		people                    map[string]bool
		events                    []domain.Event
		total                     float64
	}
	trips := make(map[string]*trip)
	var order []string
	for _, ev := range set.EventsOf(domain.EventTravel) {
		dest := groupKey(ev.Attr(domain.EvAttrDestination))
		if dest == "" || !dated(ev) {
			continue
		}
		date := ev.OccurredAt.Format(time.DateOnly)
		reason := groupKey(ev.Attr(domain.EvAttrReason))
		key := dest + "|" + date + "|" + reason
		t, ok := trips[key]
		if !ok {
			t = &trip{destination: dest, date: date, reason: reason, people: map[string]bool{}}
			trips[key] = t
			order = append(order, key)
		}
		t.people[ev.EntityID] = true
		t.events = append(t.events, ev)
		if v, ok := amount(ev); ok {
			t.total += v
		}
	}
	slices.Sort(order)

	var out []domain.Insight
	for _, key := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := trips[key]
		n := len(t.people)
		if n < d.min {
			continue
		}
		in := newInsight(BlockTravelID, t.destination+"|"+t.date, t.reason, TagBlockTravel)
		switch {
		case n >= 8 || t.total > d.highCost:
			in.Severity = domain.SeverityCritical
		case n >= 5:
			in.Severity = domain.SeverityHigh
		default:
			in.Severity = domain.SeverityMedium
		}
		in.Confidence = domain.ClampConfidence(50 + float64(n)*5 + t.total/5000)
		in.ExposureAmount = t.total
		in.Title = fmt.Sprintf("Block travel: %d employees to %s", n, t.destination)
		in.Description = fmt.Sprintf(
			"%d employees left for %s on %s with reason %q. Combined cost: %s.",
			n, t.destination, t.date, t.reason, brl(t.total),
		)
		refs := newEvidence(d.cap)
		for _, ev := range t.events {
			refs.entity(ev.EntityID, domain.RoleSubject)
			refs.event(ev, domain.RoleEvent)
		}
		in.Evidence = refs.list()
		out = append(out, in)
	}
	return out, nil
}

// WeekendPayment flags reimbursements for trips starting on a Saturday or Sunday.
// Every hit needs manual verification of an official agenda.
type WeekendPayment struct {
	confidence int
	cap        int
}

// NewWeekendPayment creates the detector.
func NewWeekendPayment(cfg Config) *WeekendPayment {
	return &WeekendPayment{confidence: cfg.WeekendConfidence, cap: cfg.EvidenceCap}
}

// ID returns the detector identifier.
func (d *WeekendPayment) ID() string { return WeekendPaymentID }

// Detect checks the departure weekday of each reimbursement.
func (d *WeekendPayment) Detect(ctx context.Context, set *domain.DetectionSet) ([]domain.Insight, error) {
	var out []domain.Insight
	for _, ev := range set.EventsOf(domain.EventTravel) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !dated(ev) {
			continue
		}
		day := ev.OccurredAt.Weekday()
		if day != time.Saturday && day != time.Sunday {
			continue
		}
		value, priced := amount(ev)
		if priced && value <= 0 {
			continue
		}

		in := newInsight(WeekendPaymentID, ev.EntityID, ev.ID, TagWeekend)
		in.Severity = domain.SeverityMedium
		in.Confidence = domain.ClampConfidence(float64(d.confidence))
		in.ExposureAmount = value
		in.Title = "Weekend travel: " + displayName(set, ev.EntityID)
		in.Description = fmt.Sprintf(
			"Reimbursement of %s for a trip to %s starting on %s %s. Check for an official agenda.",
			brl(value), ev.Attr(domain.EvAttrDestination), day, ev.OccurredAt.Format("02/01/2006"),
		)
		refs := newEvidence(d.cap)
		refs.entity(ev.EntityID, domain.RoleSubject)
		refs.event(ev, domain.RoleEvent)
		in.Evidence = refs.list()
		out = append(out, in)
	}
	return out, nil
}

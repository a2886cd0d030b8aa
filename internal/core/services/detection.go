package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/core/ports/driving"
	"github.com/custodia-labs/sentinela/internal/logger"
)

// Ensure DetectionService implements the interface.
var _ driving.DetectionService = (*DetectionService)(nil)

// DetectionService runs the registered detectors over a snapshot of the
// entity store and persists what they find.
type DetectionService struct {
	entities driven.EntityStore
	registry driven.DetectorRegistry
	insights driving.InsightService
	now      func() time.Time
	log      *slog.Logger
}

// NewDetectionService creates a detection service.
func NewDetectionService(
	entities driven.EntityStore,
	registry driven.DetectorRegistry,
	insights driving.InsightService,
) *DetectionService {
	return &DetectionService{
		entities: entities,
		registry: registry,
		insights: insights,
		now:      time.Now,
		log:      logger.For("detector"),
	}
}

// Detectors returns the registered detector IDs.
func (s *DetectionService) Detectors() []string {
	all := s.registry.All()
	ids := make([]string, len(all))
	for i, d := range all {
		ids[i] = d.ID()
	}
	return ids
}

// Run evaluates every detector concurrently over one snapshot.
// A detector that fails or panics is reported in its outcome only.
func (s *DetectionService) Run(ctx context.Context) (*domain.DetectionReport, error) {
	report := &domain.DetectionReport{
		RunID:     uuid.NewString(),
		StartedAt: s.now().UTC(),
	}

	set, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	detectors := s.registry.All()
	outcomes := make([]domain.DetectorOutcome, len(detectors))
	found := make([][]domain.Insight, len(detectors))

	var g errgroup.Group
	for i, d := range detectors {
		g.Go(func() error {
			start := time.Now()
			insights, err := runDetector(ctx, d, set)
			outcomes[i] = domain.DetectorOutcome{
				DetectorID: d.ID(),
				Insights:   len(insights),
				Duration:   time.Since(start),
				Err:        err,
			}
			if err != nil {
				s.log.Error("detector failed", "detector", d.ID(), "run", report.RunID, "error", err)
				return nil
			}
			found[i] = insights
			return nil
		})
	}
	_ = g.Wait()
	report.Outcomes = outcomes

	seen := make(map[string]bool)
	for _, batch := range found {
		for _, insight := range batch {
			if insight.ID == "" {
				insight.AssignID()
			}
			if seen[insight.ID] {
				continue
			}
			seen[insight.ID] = true
			report.Insights = append(report.Insights, insight)
		}
	}

	report.New, report.Refreshed, err = s.insights.Persist(ctx, report.Insights)
	if err != nil {
		return report, fmt.Errorf("persist insights: %w", err)
	}
	domain.SortInsights(report.Insights)

	s.log.Info("detection finished",
		"run", report.RunID,
		"detectors", len(detectors),
		"failed", len(report.Failed()),
		"insights", len(report.Insights),
		"new", report.New,
		"refreshed", report.Refreshed,
	)
	return report, nil
}

// Snapshot reads a point-in-time detection set from the entity store.
func (s *DetectionService) Snapshot(ctx context.Context) (*domain.DetectionSet, error) {
	entities, err := s.entities.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	events, err := s.entities.Events(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	snapshots, err := s.entities.Snapshots(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	rels, err := s.entities.Relationships(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	return domain.NewDetectionSet(s.now().UTC(), entities, events, snapshots, rels), nil
}

// runDetector isolates one detector, turning a panic into its error.
func runDetector(ctx context.Context, d driven.Detector, set *domain.DetectionSet) (insights []domain.Insight, err error) {
	defer func() {
		if r := recover(); r != nil {
			insights = nil
			err = fmt.Errorf("detector %s panicked: %v", d.ID(), r)
		}
	}()
	return d.Detect(ctx, set)
}

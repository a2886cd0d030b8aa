package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/core/ports/driving"
	"github.com/custodia-labs/sentinela/internal/logger"
)

// Ensure GraphExporter implements the interface.
var _ driving.GraphExporter = (*GraphExporter)(nil)

// GraphExporter copies resolved data and insights into a graph store.
type GraphExporter struct {
	entities driven.EntityStore
	insights driven.InsightStore
	graph    driven.GraphStore
	log      *slog.Logger
}

// NewGraphExporter creates a graph exporter.
func NewGraphExporter(entities driven.EntityStore, insights driven.InsightStore, graph driven.GraphStore) *GraphExporter {
	return &GraphExporter{
		entities: entities,
		insights: insights,
		graph:    graph,
		log:      logger.For("graph"),
	}
}

// Export upserts entities first so relationship and evidence edges find
// both ends. Every upsert is a merge, so repeated exports are idempotent.
func (g *GraphExporter) Export(ctx context.Context) (*driving.GraphExportReport, error) {
	report := &driving.GraphExportReport{}

	entities, err := g.entities.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	if err := g.graph.UpsertEntities(ctx, entities); err != nil {
		return nil, fmt.Errorf("upsert entities: %w", err)
	}
	report.Entities = len(entities)

	rels, err := g.entities.Relationships(ctx, "")
	if err != nil {
		return report, fmt.Errorf("list relationships: %w", err)
	}
	if err := g.graph.UpsertRelationships(ctx, rels); err != nil {
		return report, fmt.Errorf("upsert relationships: %w", err)
	}
	report.Relationships = len(rels)

	insights, err := g.insights.List(ctx, domain.InsightFilter{})
	if err != nil {
		return report, fmt.Errorf("list insights: %w", err)
	}
	links, err := g.insights.Links(ctx, "")
	if err != nil {
		return report, fmt.Errorf("list evidence links: %w", err)
	}
	if err := g.graph.UpsertInsights(ctx, insights, links); err != nil {
		return report, fmt.Errorf("upsert insights: %w", err)
	}
	report.Insights = len(insights)
	report.Links = len(links)

	g.log.Info("graph export finished",
		"entities", report.Entities,
		"relationships", report.Relationships,
		"insights", report.Insights,
		"links", report.Links,
	)
	return report, nil
}

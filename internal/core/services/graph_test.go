package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sentinela/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
)

// graphFakeStore records upserts keyed the way a graph MERGE would.
type graphFakeStore struct {
	nodes   map[string]bool
	edges   map[string]bool
	links   map[domain.EvidenceLink]bool
	failRel error
}

func newGraphFakeStore() *graphFakeStore {
	return &graphFakeStore{nodes: map[string]bool{}, edges: map[string]bool{}, links: map[domain.EvidenceLink]bool{}}
}

func (g *graphFakeStore) UpsertEntities(_ context.Context, entities []domain.CanonicalEntity) error {
	for _, e := range entities {
		g.nodes["entity:"+e.ID] = true
	}
	return nil
}

func (g *graphFakeStore) UpsertRelationships(_ context.Context, rels []domain.Relationship) error {
	if g.failRel != nil {
		return g.failRel
	}
	for _, r := range rels {
		g.edges[r.Key()] = true
	}
	return nil
}

func (g *graphFakeStore) UpsertInsights(_ context.Context, insights []domain.Insight, links []domain.EvidenceLink) error {
	for _, in := range insights {
		g.nodes["insight:"+in.ID] = true
	}
	for _, l := range links {
		g.links[l] = true
	}
	return nil
}

func (g *graphFakeStore) Close(context.Context) error { return nil }

var _ driven.GraphStore = (*graphFakeStore)(nil)

func seedGraph(t *testing.T) (*memory.EntityStore, *memory.InsightStore) {
	t.Helper()
	ctx := context.Background()
	entities := memory.NewEntityStore()
	require.NoError(t, entities.Save(ctx, domain.CanonicalEntity{ID: "p1", Kind: domain.EntityPerson, CanonicalName: "ANA"}))
	require.NoError(t, entities.Save(ctx, domain.CanonicalEntity{ID: "o1", Kind: domain.EntityOrganization, CanonicalName: "ACME"}))
	require.NoError(t, entities.PutRelationship(ctx, domain.Relationship{FromID: "p1", ToID: "o1", Type: domain.RelPartnerOf}))

	insights := memory.NewInsightStore()
	in := domain.Insight{
		DetectorID:  "bid_splitting",
		PrimaryKey:  "o1",
		GroupingKey: "OBRAS",
		Severity:    domain.SeverityCritical,
		Status:      domain.StatusDetected,
		Evidence: []domain.EvidenceRef{
			{EntityID: "o1", Role: domain.RoleSubject},
			{EntityID: "p1", Role: domain.RoleCounterparty},
		},
	}
	in.AssignID()
	_, err := insights.InsertIfAbsent(ctx, in)
	require.NoError(t, err)
	return entities, insights
}

func TestGraphExporter_Export(t *testing.T) {
	entities, insights := seedGraph(t)
	graph := newGraphFakeStore()
	exporter := NewGraphExporter(entities, insights, graph)

	report, err := exporter.Export(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, report.Entities)
	assert.Equal(t, 1, report.Relationships)
	assert.Equal(t, 1, report.Insights)
	assert.Equal(t, 2, report.Links)
	assert.Len(t, graph.nodes, 3)
	assert.Len(t, graph.links, 2)
}

func TestGraphExporter_ExportTwiceIsIdempotent(t *testing.T) {
	entities, insights := seedGraph(t)
	graph := newGraphFakeStore()
	exporter := NewGraphExporter(entities, insights, graph)

	_, err := exporter.Export(context.Background())
	require.NoError(t, err)
	_, err = exporter.Export(context.Background())
	require.NoError(t, err)

	assert.Len(t, graph.nodes, 3)
	assert.Len(t, graph.edges, 1)
	assert.Len(t, graph.links, 2)
}

func TestGraphExporter_StopsOnStoreError(t *testing.T) {
	entities, insights := seedGraph(t)
	graph := newGraphFakeStore()
	graph.failRel = errors.New("connection reset")
	exporter := NewGraphExporter(entities, insights, graph)

	report, err := exporter.Export(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert relationships")
	assert.Equal(t, 2, report.Entities)
	assert.Zero(t, report.Insights)
}

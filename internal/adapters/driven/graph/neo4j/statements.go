package neo4j

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// batchSize bounds the rows sent in one UNWIND.
const batchSize = 500

// snapshotPrefix marks evidence pointing at a declared-asset snapshot
// rather than an event.
const snapshotPrefix = "snapshot:"

// statement is one parameterised Cypher query.
type statement struct {
	cypher string
	params map[string]any
}

// schemaStatements create the uniqueness constraints the MERGEs rely on.
var schemaStatements = []string{
	`CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
	`CREATE CONSTRAINT insight_id_unique IF NOT EXISTS FOR (i:Insight) REQUIRE i.id IS UNIQUE`,
}

// relType matches the relationship types safe to interpolate into Cypher.
var relType = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

func chunk[T any](rows []T, size int) [][]T {
	var out [][]T
	for len(rows) > size {
		out = append(out, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		out = append(out, rows)
	}
	return out
}

// entityStatements merges entity nodes, one statement per kind so the kind
// label is static text.
func entityStatements(entities []domain.CanonicalEntity, now time.Time) []statement {
	byKind := map[domain.EntityKind][]map[string]any{}
	for i := range entities {
		e := &entities[i]
		if e.ID == "" {
			continue
		}
		byKind[e.Kind] = append(byKind[e.Kind], entityProps(e, now))
	}

	var out []statement
	for _, kind := range []domain.EntityKind{domain.EntityPerson, domain.EntityOrganization} {
		label := "Person"
		if kind == domain.EntityOrganization {
			label = "Organization"
		}
		for _, rows := range chunk(byKind[kind], batchSize) {
			out = append(out, statement{
				cypher: `
UNWIND $rows AS n
MERGE (e:Entity {id: n.id})
SET e += n, e:` + label,
				params: map[string]any{"rows": rows},
			})
		}
	}
	return out
}

func entityProps(e *domain.CanonicalEntity, now time.Time) map[string]any {
	props := map[string]any{
		"id":              e.ID,
		"kind":            string(e.Kind),
		"name":            e.CanonicalName,
		"identifier":      e.Identifier.String(),
		"identifier_kind": string(e.Identifier.Kind),
		"synced_at":       now.UTC().Format(time.RFC3339Nano),
	}
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		props["attr_"+k] = e.Attributes[k]
	}
	return props
}

// relationshipStatements merges typed edges keyed by (from, type, to).
// Edge types come from the domain enum and are checked before interpolation.
func relationshipStatements(rels []domain.Relationship, now time.Time) ([]statement, error) {
	byType := map[domain.RelationType][]map[string]any{}
	var types []domain.RelationType
	for _, r := range rels {
		if r.FromID == "" || r.ToID == "" {
			continue
		}
		if !relType.MatchString(string(r.Type)) {
			return nil, fmt.Errorf("%w: relationship type %q", domain.ErrInvalidInput, r.Type)
		}
		if _, ok := byType[r.Type]; !ok {
			types = append(types, r.Type)
		}
		row := map[string]any{
			"from_id":   r.FromID,
			"to_id":     r.ToID,
			"source_id": r.SourceID,
			"synced_at": now.UTC().Format(time.RFC3339Nano),
		}
		for k, v := range r.Attributes {
			row["attr_"+k] = v
		}
		byType[r.Type] = append(byType[r.Type], row)
	}
	slices.Sort(types)

	var out []statement
	for _, t := range types {
		for _, rows := range chunk(byType[t], batchSize) {
			out = append(out, statement{
				cypher: `
UNWIND $rows AS r
MATCH (a:Entity {id: r.from_id})
MATCH (b:Entity {id: r.to_id})
MERGE (a)-[e:` + string(t) + `]->(b)
SET e += r`,
				params: map[string]any{"rows": rows},
			})
		}
	}
	return out, nil
}

// insightStatements merges insight nodes, then their evidence edges.
// A link is keyed by (insight, entity, role, event) so re-exports do not
// duplicate it.
func insightStatements(insights []domain.Insight, links []domain.EvidenceLink, now time.Time) []statement {
	nodes := make([]map[string]any, 0, len(insights))
	for _, in := range insights {
		if in.ID == "" {
			continue
		}
		nodes = append(nodes, map[string]any{
			"id":          in.ID,
			"detector":    in.DetectorID,
			"severity":    string(in.Severity),
			"confidence":  int64(in.Confidence),
			"exposure":    in.ExposureAmount,
			"title":       in.Title,
			"description": in.Description,
			"legal_basis": in.LegalBasisTag,
			"status":      string(in.Status),
			"created_at":  in.CreatedAt.UTC().Format(time.RFC3339Nano),
			"synced_at":   now.UTC().Format(time.RFC3339Nano),
		})
	}

	edges := make([]map[string]any, 0, len(links))
	for _, l := range links {
		if l.InsightID == "" || l.EntityID == "" {
			continue
		}
		edge := map[string]any{
			"insight_id": l.InsightID,
			"entity_id":  l.EntityID,
			"role":       string(l.Role),
			"event_id":   l.EventID,
			"period":     "",
		}
		if period, ok := strings.CutPrefix(l.EventID, snapshotPrefix); ok {
			edge["event_id"] = ""
			edge["period"] = period
		}
		edges = append(edges, edge)
	}

	var out []statement
	for _, rows := range chunk(nodes, batchSize) {
		out = append(out, statement{
			cypher: `
UNWIND $rows AS n
MERGE (i:Insight {id: n.id})
SET i += n`,
			params: map[string]any{"rows": rows},
		})
	}
	for _, rows := range chunk(edges, batchSize) {
		out = append(out, statement{
			cypher: `
UNWIND $rows AS l
MATCH (i:Insight {id: l.insight_id})
MATCH (e:Entity {id: l.entity_id})
MERGE (i)-[c:CITES {role: l.role, event_id: l.event_id, period: l.period}]->(e)`,
			params: map[string]any{"rows": rows},
		})
	}
	return out
}

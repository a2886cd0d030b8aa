// Package neo4j implements driven.GraphStore on a Neo4j database.
//
// Every write is a MERGE by key, so exporting the same data twice leaves the
// graph unchanged. Entities are (:Entity) nodes with a :Person or
// :Organization label, relationships are typed edges between them, and
// insights are (:Insight) nodes with CITES edges to the entities in their
// evidence.
package neo4j

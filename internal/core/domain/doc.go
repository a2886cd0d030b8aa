// Package domain defines the core business entities for Sentinela.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - RawRecord: One captured source row with its content hash
//   - Identifier: Full, Partial or Sequential national/organisation id
//   - CanonicalEntity: A resolved person or organisation
//   - Snapshot, Event, Relationship: Facts attached to entities
//   - Insight: A scored, evidence-backed anomaly
//   - Source: A configured data source
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain

// Package collectors wires the collection strategies to the factory the
// ingestion coordinator builds collectors from. Each strategy lives in its
// own sub-package and knows how to pull raw rows from one kind of source:
// paginated JSON APIs, bulk archives, stateful Faces pages and static tables.
package collectors

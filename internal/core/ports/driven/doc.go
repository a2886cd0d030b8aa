// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - Collector: Pulls raw rows from a government data source
//   - CollectorFactory: Creates collectors from source configuration
//   - SchemaMapper: Turns raw rows of a dataset into observations
//   - MapperRegistry: Selects the mapper for a dataset
//   - Detector: Pure anomaly rule over a detection set
//   - RawRecordStore: Raw row persistence with content-hash dedup
//   - EntityStore: Canonical entities, snapshots, events, relationships, decisions
//   - InsightStore: Insight persistence with insert-if-absent semantics
//   - SourceStore: Source configuration persistence
//   - SyncStateStore: Collection progress persistence
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
//   - GraphStore: Graph export target (Neo4j). Without it, graph export is disabled.
//   - SchedulerStore: Daemon task state. Only needed by the daemon.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, collector, or normaliser package
package driven

// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. It implements the pipeline stores through a single database:
//
//   - SourceStore and SyncStateStore: declared sources and their last run
//   - RawRecordStore: landed rows, unique per (table, content hash)
//   - EntityStore: canonical entities, identifier index, snapshots, events,
//     relationships and the resolver decision log
//   - InsightStore: insights and their evidence join rows
//   - SchedulerStore: scheduled task state and run history
//
// # Schema
//
// The schema is managed through versioned migrations in the migrations/
// directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.sentinela/data/sentinela.db
//
// # Thread Safety
//
// All operations are safe for concurrent use. Inserts that must happen at most
// once rely on unique constraints rather than read-then-write.
package sqlite

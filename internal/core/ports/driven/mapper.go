package driven

import "github.com/custodia-labs/sentinela/internal/core/domain"

// SchemaMapper turns raw rows of one dataset into typed observations.
// It owns the dataset's column aliasing.
type SchemaMapper interface {
	// Dataset returns the dataset (destination table) this mapper handles.
	Dataset() string

	// Aliases maps canonical column keys to the source column keys accepted for them.
	Aliases() map[string][]string

	// Map converts one row. A *domain.RowError means the row is skipped.
	Map(rec domain.RawRecord) ([]domain.Observation, error)
}

// MapperRegistry selects the schema mapper for a dataset.
type MapperRegistry interface {
	// Register adds a mapper.
	Register(m SchemaMapper)

	// Get returns the mapper for a dataset.
	Get(dataset string) (SchemaMapper, bool)

	// Datasets returns all registered datasets, sorted.
	Datasets() []string
}

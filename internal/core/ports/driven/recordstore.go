package driven

import (
	"context"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// RawRecordStore persists raw rows keyed by (table, content hash).
type RawRecordStore interface {
	// InsertIfNew stores the record unless its content hash is already present
	// in the table. It reports whether a row was inserted.
	InsertIfNew(ctx context.Context, table string, rec domain.RawRecord) (bool, error)

	// Has reports whether a content hash is present in the table.
	Has(ctx context.Context, table, contentHash string) (bool, error)

	// Count returns the number of rows in the table.
	Count(ctx context.Context, table string) (int, error)

	// List returns the table's rows in capture order.
	List(ctx context.Context, table string) ([]domain.RawRecord, error)
}

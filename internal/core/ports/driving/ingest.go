package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// IngestCoordinator runs collectors and commits their rows.
type IngestCoordinator interface {
	// Run collects the triggered sources, at most the configured number at once.
	// One source's failure never aborts the others; every trigger gets a report.
	Run(ctx context.Context, triggers []domain.Trigger) map[string]domain.CollectionReport

	// RunAll triggers every configured source.
	RunAll(ctx context.Context, force bool) (map[string]domain.CollectionReport, error)

	// Status returns the collection status for a source.
	Status(ctx context.Context, sourceID string) (*IngestStatus, error)
}

// IngestStatus represents the current state of a source's collection.
type IngestStatus struct {
	// SourceID identifies the source.
	SourceID string

	// Running indicates if collection is currently in progress.
	Running bool

	// RowsSeen is the count of rows read so far in the current or last run.
	RowsSeen int

	// RowsNew is the count of rows inserted so far.
	RowsNew int

	// ErrorCount is the number of skipped rows.
	ErrorCount int

	// LastSync is the last successful completion, zero if never.
	LastSync time.Time
}

package driven

import (
	"context"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// Collector pulls raw records from one government data source.
// Each strategy (paginated API, bulk archive, stateful protocol, static table)
// implements this interface.
type Collector interface {
	// Strategy returns the collection strategy.
	Strategy() domain.Strategy

	// SourceID returns the configured source ID.
	SourceID() string

	// Validate checks the collector is configured well enough to run.
	// It must not touch the network.
	Validate(ctx context.Context) error

	// Collect streams the source's rows.
	// The record channel is lazy and finite; every call starts a fresh session.
	// Non-fatal *domain.RowError values are sent on the error channel and the
	// run continues. Any other error ends the run. Both channels are closed
	// when the run completes.
	Collect(ctx context.Context) (<-chan domain.RawRecord, <-chan error)

	// Close releases resources. Collect after Close fails with ErrCollectorClosed.
	Close() error
}

package domain

import (
	"fmt"
	"strings"
	"time"
)

// Strategy names a collection strategy.
type Strategy string

const (
	// StrategyPaginatedAPI walks a JSON API page by page.
	StrategyPaginatedAPI Strategy = "paginated_api"
	// StrategyBulkArchive downloads a compressed archive of delimited files.
	StrategyBulkArchive Strategy = "bulk_archive"
	// StrategyStatefulProtocol drives a server-rendered UI session to an export.
	StrategyStatefulProtocol Strategy = "stateful_protocol"
	// StrategyStaticTable scrapes a rendered HTML table.
	StrategyStaticTable Strategy = "static_table"
)

// Strategies lists every supported strategy.
func Strategies() []Strategy {
	return []Strategy{StrategyPaginatedAPI, StrategyBulkArchive, StrategyStatefulProtocol, StrategyStaticTable}
}

// Source represents a configured government data source.
type Source struct {
	// ID is the unique identifier for the source.
	ID string

	// Strategy selects the collector.
	Strategy Strategy

	// Dataset is the destination table and selects the schema mapper.
	Dataset string

	// Name is the human-readable name for this source.
	Name string

	// Config contains strategy-specific configuration.
	Config map[string]string

	// RefreshInterval skips runs younger than this unless forced. Zero always runs.
	RefreshInterval time.Duration

	// CreatedAt is when the source was created.
	CreatedAt time.Time

	// UpdatedAt is when the source was last updated.
	UpdatedAt time.Time
}

// Validate checks the fields every strategy needs.
func (s *Source) Validate() error {
	var problems []string
	if s.ID == "" {
		problems = append(problems, "id is required")
	}
	if s.Dataset == "" {
		problems = append(problems, "dataset is required")
	}
	known := false
	for _, st := range Strategies() {
		if s.Strategy == st {
			known = true
			break
		}
	}
	if !known {
		problems = append(problems, fmt.Sprintf("unknown strategy %q", s.Strategy))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: source %s: %s", ErrConfigInvalid, s.ID, strings.Join(problems, "; "))
	}
	return nil
}

// DisplayName returns the name, falling back to the id.
func (s *Source) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// SyncState tracks the collection progress for a source.
type SyncState struct {
	// SourceID links to the Source being collected.
	SourceID string

	// LastSync is when the last successful run completed.
	LastSync time.Time

	// LastError is the last run's error, if any.
	LastError string

	// RowsNew is how many rows the last successful run inserted.
	RowsNew int
}

// Trigger asks the coordinator to collect one source.
type Trigger struct {
	SourceID     string
	ForceRefresh bool
}

// CollectionReport is the per-source outcome of a coordinator run.
type CollectionReport struct {
	SourceID    string
	RowsSeen    int
	RowsNew     int
	RowsSkipped int
	Duration    time.Duration

	// Fresh is set when the run was skipped because the last run is within the refresh interval.
	Fresh bool

	// Err is nil on success.
	Err error
}

// Failed reports whether the run ended in error.
func (r CollectionReport) Failed() bool {
	return r.Err != nil
}

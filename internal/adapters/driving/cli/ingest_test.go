package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driving"
)

// mockIngestCoordinator implements driving.IngestCoordinator for testing.
type mockIngestCoordinator struct {
	reports   map[string]domain.CollectionReport
	runAllErr error

	triggers []domain.Trigger
	force    bool
	ranAll   bool
}

func (m *mockIngestCoordinator) Run(_ context.Context, triggers []domain.Trigger) map[string]domain.CollectionReport {
	m.triggers = triggers
	out := make(map[string]domain.CollectionReport, len(triggers))
	for _, tr := range triggers {
		if r, ok := m.reports[tr.SourceID]; ok {
			out[tr.SourceID] = r
			continue
		}
		out[tr.SourceID] = domain.CollectionReport{
			SourceID: tr.SourceID,
			Err:      fmt.Errorf("source %s: %w", tr.SourceID, domain.ErrNotFound),
		}
	}
	return out
}

func (m *mockIngestCoordinator) RunAll(_ context.Context, force bool) (map[string]domain.CollectionReport, error) {
	m.ranAll = true
	m.force = force
	if m.runAllErr != nil {
		return nil, m.runAllErr
	}
	return m.reports, nil
}

func (m *mockIngestCoordinator) Status(_ context.Context, sourceID string) (*driving.IngestStatus, error) {
	return &driving.IngestStatus{SourceID: sourceID}, nil
}

func setupIngestTest(m *mockIngestCoordinator) func() {
	old := ingestCoordinator
	ingestCoordinator = m
	return func() {
		ingestCoordinator = old
	}
}

func TestIngestCmd_Use(t *testing.T) {
	assert.Equal(t, "ingest [source-id...]", ingestCmd.Use)
}

func TestIngestCmd_HasForceFlag(t *testing.T) {
	f := ingestCmd.Flags().Lookup("force")
	require.NotNil(t, f)
	assert.Equal(t, "false", f.DefValue)
}

func TestIngestCmd_AllSources(t *testing.T) {
	m := &mockIngestCoordinator{reports: map[string]domain.CollectionReport{
		"contracts": {SourceID: "contracts", RowsSeen: 120, RowsNew: 40, RowsSkipped: 2, Duration: 3 * time.Second},
		"payroll":   {SourceID: "payroll", Fresh: true},
	}}
	defer setupIngestTest(m)()

	out, err := executeCommand(t, "ingest")

	require.NoError(t, err)
	assert.True(t, m.ranAll)
	assert.False(t, m.force)
	assert.Contains(t, out, "Collecting all sources...")
	assert.Contains(t, out, "120 rows, 40 new, 2 skipped in 3s")
	assert.Contains(t, out, "fresh, skipped")
	assert.Contains(t, out, "Collected 2 source(s).")
}

func TestIngestCmd_ReportsAreSorted(t *testing.T) {
	m := &mockIngestCoordinator{reports: map[string]domain.CollectionReport{
		"zeta":  {SourceID: "zeta", Fresh: true},
		"alpha": {SourceID: "alpha", Fresh: true},
	}}
	defer setupIngestTest(m)()

	out, err := executeCommand(t, "ingest")

	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "alpha"), strings.Index(out, "zeta"))
}

func TestIngestCmd_SelectedSourcesWithForce(t *testing.T) {
	m := &mockIngestCoordinator{reports: map[string]domain.CollectionReport{
		"contracts": {SourceID: "contracts", RowsSeen: 5, RowsNew: 5},
		"sanctions": {SourceID: "sanctions", RowsSeen: 1},
	}}
	defer setupIngestTest(m)()

	out, err := executeCommand(t, "ingest", "--force", "contracts", "sanctions")

	require.NoError(t, err)
	assert.False(t, m.ranAll)
	assert.Equal(t, []domain.Trigger{
		{SourceID: "contracts", ForceRefresh: true},
		{SourceID: "sanctions", ForceRefresh: true},
	}, m.triggers)
	assert.Contains(t, out, "Collecting 2 source(s)...")
}

func TestIngestCmd_ForceDoesNotLeak(t *testing.T) {
	m := &mockIngestCoordinator{reports: map[string]domain.CollectionReport{}}
	defer setupIngestTest(m)()

	_, err := executeCommand(t, "ingest", "--force")
	require.NoError(t, err)
	assert.True(t, m.force)

	_, err = executeCommand(t, "ingest")
	require.NoError(t, err)
	assert.False(t, m.force)
}

func TestIngestCmd_FailedSourceReturnsError(t *testing.T) {
	m := &mockIngestCoordinator{reports: map[string]domain.CollectionReport{
		"travel":    {SourceID: "travel", Err: fmt.Errorf("login: %w", domain.ErrAuthentication)},
		"contracts": {SourceID: "contracts", RowsSeen: 3, RowsNew: 1},
	}}
	defer setupIngestTest(m)()

	out, err := executeCommand(t, "ingest")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 sources failed")
	assert.Contains(t, out, "FAILED (fatal)")
	assert.Contains(t, out, "3 rows, 1 new")
}

func TestIngestCmd_UnknownSource(t *testing.T) {
	m := &mockIngestCoordinator{}
	defer setupIngestTest(m)()

	_, err := executeCommand(t, "ingest", "missing")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 sources failed")
}

func TestIngestCmd_RunAllError(t *testing.T) {
	m := &mockIngestCoordinator{runAllErr: errors.New("store closed")}
	defer setupIngestTest(m)()

	_, err := executeCommand(t, "ingest")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest failed: store closed")
}

func TestIngestCmd_ServiceNotConfigured(t *testing.T) {
	old := ingestCoordinator
	ingestCoordinator = nil
	defer func() { ingestCoordinator = old }()

	_, err := executeCommand(t, "ingest")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest service not configured")
}

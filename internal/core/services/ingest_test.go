package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sentinela/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/normalisers"
)

// stubCollector replays a fixed set of rows and errors.
type stubCollector struct {
	source domain.Source
	rows   []domain.Payload
	errs   []error
	fatal  error
}

func (c *stubCollector) Strategy() domain.Strategy        { return c.source.Strategy }
func (c *stubCollector) SourceID() string                 { return c.source.ID }
func (c *stubCollector) Validate(_ context.Context) error { return nil }
func (c *stubCollector) Close() error                     { return nil }

func (c *stubCollector) Collect(ctx context.Context) (<-chan domain.RawRecord, <-chan error) {
	records := make(chan domain.RawRecord)
	errs := make(chan error, len(c.errs)+1)
	go func() {
		defer close(records)
		defer close(errs)
		for _, err := range c.errs {
			errs <- err
		}
		for _, p := range c.rows {
			rec := domain.RawRecord{SourceID: c.source.ID, Table: c.source.Dataset, Payload: p}
			select {
			case records <- rec:
			case <-ctx.Done():
				return
			}
		}
		if c.fatal != nil {
			errs <- c.fatal
		}
	}()
	return records, errs
}

// stubFactory serves collectors configured per source id.
type stubFactory struct {
	mu         sync.Mutex
	collectors map[string]*stubCollector
	creates    map[string]int
}

func newStubFactory() *stubFactory {
	return &stubFactory{collectors: make(map[string]*stubCollector), creates: make(map[string]int)}
}

func (f *stubFactory) Create(_ context.Context, source domain.Source) (driven.Collector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collectors[source.ID]
	if !ok {
		return nil, domain.ErrUnsupportedStrategy
	}
	f.creates[source.ID]++
	c.source = source
	return c, nil
}

func (f *stubFactory) Register(domain.Strategy, driven.CollectorBuilder) {}

func (f *stubFactory) SupportedStrategies() []domain.Strategy { return domain.Strategies() }

type ingestFixture struct {
	coordinator *IngestCoordinator
	factory     *stubFactory
	sources     *memory.SourceStore
	syncs       *memory.SyncStateStore
	records     *memory.RawRecordStore
	entities    *memory.EntityStore
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	f := &ingestFixture{
		factory:  newStubFactory(),
		sources:  memory.NewSourceStore(),
		syncs:    memory.NewSyncStateStore(),
		records:  memory.NewRawRecordStore(),
		entities: memory.NewEntityStore(),
	}
	f.coordinator = NewIngestCoordinator(
		f.sources, f.syncs, f.records, f.factory, normalisers.Default(),
		NewResolver(f.entities, DefaultResolverOptions()),
		IngestOptions{MaxConcurrent: 2},
	)
	return f
}

func (f *ingestFixture) addSource(t *testing.T, id, dataset string, c *stubCollector) {
	t.Helper()
	require.NoError(t, f.sources.Save(context.Background(), domain.Source{
		ID:       id,
		Strategy: domain.StrategyStaticTable,
		Dataset:  dataset,
	}))
	f.factory.collectors[id] = c
}

func payrollRow(name, cpf, gross string) domain.Payload {
	return domain.Payload{
		{Name: "nome", Value: name},
		{Name: "cpf", Value: cpf},
		{Name: "cargo", Value: "ANALISTA"},
		{Name: "competencia", Value: "03/2024"},
		{Name: "remuneracao_bruta", Value: gross},
	}
}

// ==================== Run ====================

func TestIngest_CommitsAndResolvesRows(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.addSource(t, "folha", normalisers.DatasetPayroll, &stubCollector{rows: []domain.Payload{
		payrollRow("Joao da Silva", validCPF, "5.000,00"),
		payrollRow("Maria Souza", otherValidCPF, "7.000,00"),
	}})

	reports := f.coordinator.Run(ctx, []domain.Trigger{{SourceID: "folha"}})

	require.Contains(t, reports, "folha")
	report := reports["folha"]
	require.NoError(t, report.Err)
	assert.Equal(t, 2, report.RowsSeen)
	assert.Equal(t, 2, report.RowsNew)

	count, err := f.records.Count(ctx, normalisers.DatasetPayroll)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rows, err := f.records.List(ctx, normalisers.DatasetPayroll)
	require.NoError(t, err)
	for _, row := range rows {
		assert.NotEmpty(t, row.ContentHash)
		assert.Equal(t, "folha", row.SourceID)
	}

	entities, err := f.entities.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entities, 2)
	events, err := f.entities.Events(ctx, "")
	require.NoError(t, err)
	assert.Len(t, events, 2)

	state, err := f.syncs.Get(ctx, "folha")
	require.NoError(t, err)
	assert.False(t, state.LastSync.IsZero())
	assert.Empty(t, state.LastError)
	assert.Equal(t, 2, state.RowsNew)
}

func TestIngest_SecondRunInsertsNothing(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.addSource(t, "folha", normalisers.DatasetPayroll, &stubCollector{rows: []domain.Payload{
		payrollRow("Joao da Silva", validCPF, "5.000,00"),
		payrollRow("Maria Souza", otherValidCPF, "7.000,00"),
	}})

	first := f.coordinator.Run(ctx, []domain.Trigger{{SourceID: "folha", ForceRefresh: true}})
	require.NoError(t, first["folha"].Err)

	second := f.coordinator.Run(ctx, []domain.Trigger{{SourceID: "folha", ForceRefresh: true}})
	require.NoError(t, second["folha"].Err)
	assert.Equal(t, 2, second["folha"].RowsSeen)
	assert.Zero(t, second["folha"].RowsNew)

	count, err := f.records.Count(ctx, normalisers.DatasetPayroll)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	events, err := f.entities.Events(ctx, "")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestIngest_ReorderedColumnsAreDuplicates(t *testing.T) {
	f := newIngestFixture(t)
	row := payrollRow("Joao da Silva", validCPF, "5.000,00")
	reordered := domain.Payload{row[4], row[2], row[0], row[3], row[1]}
	f.addSource(t, "folha", normalisers.DatasetPayroll, &stubCollector{rows: []domain.Payload{row, reordered}})

	reports := f.coordinator.Run(context.Background(), []domain.Trigger{{SourceID: "folha"}})

	assert.Equal(t, 2, reports["folha"].RowsSeen)
	assert.Equal(t, 1, reports["folha"].RowsNew)
}

func TestIngest_FailingSourceIsIsolated(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.addSource(t, "good", normalisers.DatasetPayroll, &stubCollector{rows: []domain.Payload{
		payrollRow("Joao da Silva", validCPF, "5.000,00"),
	}})
	f.addSource(t, "bad", normalisers.DatasetPayroll, &stubCollector{
		rows:  []domain.Payload{payrollRow("Maria Souza", otherValidCPF, "7.000,00")},
		fatal: domain.ErrAuthentication,
	})

	reports, err := f.coordinator.RunAll(ctx, false)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.NoError(t, reports["good"].Err)
	assert.Equal(t, 1, reports["good"].RowsNew)
	assert.ErrorIs(t, reports["bad"].Err, domain.ErrAuthentication)

	state, err := f.syncs.Get(ctx, "bad")
	require.NoError(t, err)
	assert.True(t, state.LastSync.IsZero())
	assert.NotEmpty(t, state.LastError)
}

func TestIngest_RowErrorsAreSkipped(t *testing.T) {
	f := newIngestFixture(t)
	f.addSource(t, "folha", normalisers.DatasetPayroll, &stubCollector{
		rows: []domain.Payload{
			payrollRow("Joao da Silva", validCPF, "5.000,00"),
			{{Name: "cargo", Value: "ANALISTA"}},
		},
		errs: []error{&domain.RowError{Row: 3, Err: domain.ErrMalformedPayload}},
	})

	report := f.coordinator.Run(context.Background(), []domain.Trigger{{SourceID: "folha"}})["folha"]

	require.NoError(t, report.Err)
	assert.Equal(t, 2, report.RowsSeen)
	assert.Equal(t, 2, report.RowsNew)
	assert.Equal(t, 2, report.RowsSkipped)
}

func TestIngest_UnknownSourceReportsError(t *testing.T) {
	f := newIngestFixture(t)

	reports := f.coordinator.Run(context.Background(), []domain.Trigger{{SourceID: "nope"}})

	require.Contains(t, reports, "nope")
	assert.ErrorIs(t, reports["nope"].Err, domain.ErrNotFound)
}

func TestIngest_MissingMapperIsConfigError(t *testing.T) {
	f := newIngestFixture(t)
	f.addSource(t, "odd", "unknown_dataset", &stubCollector{})

	report := f.coordinator.Run(context.Background(), []domain.Trigger{{SourceID: "odd"}})["odd"]

	assert.ErrorIs(t, report.Err, domain.ErrConfigInvalid)
}

func TestIngest_DuplicateTriggersRunOnce(t *testing.T) {
	f := newIngestFixture(t)
	f.addSource(t, "folha", normalisers.DatasetPayroll, &stubCollector{rows: []domain.Payload{
		payrollRow("Joao da Silva", validCPF, "5.000,00"),
	}})

	reports := f.coordinator.Run(context.Background(), []domain.Trigger{
		{SourceID: "folha"}, {SourceID: "folha"},
	})

	assert.Len(t, reports, 1)
	assert.Equal(t, 1, f.factory.creates["folha"])
}

// failingEventStore fails AppendEvent until failures runs out.
type failingEventStore struct {
	*memory.EntityStore
	failures int
}

func (s *failingEventStore) AppendEvent(ctx context.Context, event domain.Event) (bool, error) {
	if s.failures > 0 {
		s.failures--
		return false, errors.New("transient store failure")
	}
	return s.EntityStore.AppendEvent(ctx, event)
}

func TestIngest_ResolveFailureIsRetriedNextRun(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	entities := &failingEventStore{EntityStore: f.entities, failures: 1}
	f.coordinator = NewIngestCoordinator(
		f.sources, f.syncs, f.records, f.factory, normalisers.Default(),
		NewResolver(entities, DefaultResolverOptions()),
		IngestOptions{MaxConcurrent: 2},
	)
	f.addSource(t, "folha", normalisers.DatasetPayroll, &stubCollector{rows: []domain.Payload{
		payrollRow("Joao da Silva", validCPF, "5.000,00"),
	}})

	first := f.coordinator.Run(ctx, []domain.Trigger{{SourceID: "folha"}})["folha"]
	require.Error(t, first.Err)
	assert.Zero(t, first.RowsNew)
	count, err := f.records.Count(ctx, normalisers.DatasetPayroll)
	require.NoError(t, err)
	assert.Zero(t, count)

	second := f.coordinator.Run(ctx, []domain.Trigger{{SourceID: "folha", ForceRefresh: true}})["folha"]
	require.NoError(t, second.Err)
	assert.Equal(t, 1, second.RowsNew)

	events, err := f.entities.Events(ctx, "")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	count, err = f.records.Count(ctx, normalisers.DatasetPayroll)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// ==================== Freshness ====================

func TestIngest_FreshSourceIsSkipped(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.addSource(t, "folha", normalisers.DatasetPayroll, &stubCollector{rows: []domain.Payload{
		payrollRow("Joao da Silva", validCPF, "5.000,00"),
	}})
	src, err := f.sources.Get(ctx, "folha")
	require.NoError(t, err)
	src.RefreshInterval = time.Hour
	require.NoError(t, f.sources.Save(ctx, *src))
	require.NoError(t, f.syncs.Save(ctx, domain.SyncState{SourceID: "folha", LastSync: time.Now()}))

	report := f.coordinator.Run(ctx, []domain.Trigger{{SourceID: "folha"}})["folha"]
	assert.True(t, report.Fresh)
	assert.Zero(t, f.factory.creates["folha"])

	forced := f.coordinator.Run(ctx, []domain.Trigger{{SourceID: "folha", ForceRefresh: true}})["folha"]
	assert.False(t, forced.Fresh)
	assert.Equal(t, 1, forced.RowsNew)
}

func TestIngest_FailedLastRunIsNotFresh(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.addSource(t, "folha", normalisers.DatasetPayroll, &stubCollector{})
	src, err := f.sources.Get(ctx, "folha")
	require.NoError(t, err)
	src.RefreshInterval = time.Hour
	require.NoError(t, f.sources.Save(ctx, *src))
	require.NoError(t, f.syncs.Save(ctx, domain.SyncState{
		SourceID: "folha", LastSync: time.Now(), LastError: "boom",
	}))

	report := f.coordinator.Run(ctx, []domain.Trigger{{SourceID: "folha"}})["folha"]
	assert.False(t, report.Fresh)
	assert.Equal(t, 1, f.factory.creates["folha"])
}

// ==================== Status ====================

func TestIngest_StatusAfterRun(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.addSource(t, "folha", normalisers.DatasetPayroll, &stubCollector{rows: []domain.Payload{
		payrollRow("Joao da Silva", validCPF, "5.000,00"),
	}})

	idle, err := f.coordinator.Status(ctx, "folha")
	require.NoError(t, err)
	assert.False(t, idle.Running)
	assert.True(t, idle.LastSync.IsZero())

	f.coordinator.Run(ctx, []domain.Trigger{{SourceID: "folha"}})

	status, err := f.coordinator.Status(ctx, "folha")
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Equal(t, 1, status.RowsSeen)
	assert.Equal(t, 1, status.RowsNew)
	assert.False(t, status.LastSync.IsZero())
}

func TestIngest_ContextCancelledFailsRun(t *testing.T) {
	f := newIngestFixture(t)
	f.addSource(t, "folha", normalisers.DatasetPayroll, &stubCollector{rows: []domain.Payload{
		payrollRow("Joao da Silva", validCPF, "5.000,00"),
	}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := f.coordinator.Run(ctx, []domain.Trigger{{SourceID: "folha"}})["folha"]

	require.Error(t, report.Err)
	assert.True(t, errors.Is(report.Err, context.Canceled))
}

func TestMergeTriggers_KeepsForce(t *testing.T) {
	merged := mergeTriggers([]domain.Trigger{
		{SourceID: "a"}, {SourceID: "b"}, {SourceID: "a", ForceRefresh: true},
	})
	assert.Equal(t, []domain.Trigger{{SourceID: "a", ForceRefresh: true}, {SourceID: "b"}}, merged)
}

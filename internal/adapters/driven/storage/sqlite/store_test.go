package sqlite

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

var testTime = time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)

// setupTestStore creates a SQLite store in a temporary directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

// ==================== Store Creation Tests ====================

func TestNewStore_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)

	_, err = os.Stat(store.Path())
	assert.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SourceStore().Save(ctx, domain.Source{
		ID: "payroll", Strategy: domain.StrategyPaginatedAPI, Dataset: "servidores",
	}))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	source, err := reopened.SourceStore().Get(ctx, "payroll")
	require.NoError(t, err)
	assert.Equal(t, "servidores", source.Dataset)
}

// ==================== Source Store Tests ====================

func TestSourceStore_SaveAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	source := domain.Source{
		ID:              "travel",
		Strategy:        domain.StrategyBulkArchive,
		Dataset:         "viagens",
		Name:            "Travel reimbursements",
		Config:          map[string]string{"url": "https://example.org/viagens.zip", "member": "viagens.csv"},
		RefreshInterval: 6 * time.Hour,
		CreatedAt:       testTime,
		UpdatedAt:       testTime,
	}
	require.NoError(t, store.SourceStore().Save(ctx, source))

	got, err := store.SourceStore().Get(ctx, "travel")
	require.NoError(t, err)
	assert.Equal(t, source, *got)
}

func TestSourceStore_SaveUpdatesAndKeepsCreatedAt(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	sources := store.SourceStore()

	require.NoError(t, sources.Save(ctx, domain.Source{
		ID: "s", Strategy: domain.StrategyStaticTable, Dataset: "a", CreatedAt: testTime, UpdatedAt: testTime,
	}))
	later := testTime.Add(time.Hour)
	require.NoError(t, sources.Save(ctx, domain.Source{
		ID: "s", Strategy: domain.StrategyStaticTable, Dataset: "b", CreatedAt: later, UpdatedAt: later,
	}))

	got, err := sources.Get(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Dataset)
	assert.Equal(t, testTime, got.CreatedAt)
	assert.Equal(t, later, got.UpdatedAt)
}

func TestSourceStore_GetNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.SourceStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSourceStore_ListAndDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	sources := store.SourceStore()

	for _, id := range []string{"sanctions", "contracts", "payroll"} {
		require.NoError(t, sources.Save(ctx, domain.Source{ID: id, Strategy: domain.StrategyPaginatedAPI, Dataset: id}))
	}
	require.NoError(t, sources.Delete(ctx, "payroll"))

	list, err := sources.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "contracts", list[0].ID)
	assert.Equal(t, "sanctions", list[1].ID)
}

// ==================== Sync State Store Tests ====================

func TestSyncStateStore_Lifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	states := store.SyncStateStore()

	_, err := states.Get(ctx, "payroll")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	state := domain.SyncState{SourceID: "payroll", LastSync: testTime, RowsNew: 42}
	require.NoError(t, states.Save(ctx, state))

	state.LastError = "rate limited"
	state.RowsNew = 0
	require.NoError(t, states.Save(ctx, state))

	got, err := states.Get(ctx, "payroll")
	require.NoError(t, err)
	assert.Equal(t, state, *got)

	require.NoError(t, states.Delete(ctx, "payroll"))
	_, err = states.Get(ctx, "payroll")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ==================== Raw Record Store Tests ====================

func rawRecord(hash string, fields ...string) domain.RawRecord {
	var payload domain.Payload
	for i := 0; i+1 < len(fields); i += 2 {
		payload = payload.Set(fields[i], fields[i+1])
	}
	return domain.RawRecord{SourceID: "payroll", Payload: payload, ContentHash: hash, CapturedAt: testTime}
}

func TestRawRecordStore_InsertIfNew(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	records := store.RawRecordStore()

	inserted, err := records.InsertIfNew(ctx, "servidores", rawRecord("h1", "nome", "ANA", "cpf", "***.456.789-**"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = records.InsertIfNew(ctx, "servidores", rawRecord("h1", "nome", "ANA"))
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = records.InsertIfNew(ctx, "viagens", rawRecord("h1", "nome", "ANA"))
	require.NoError(t, err)
	assert.True(t, inserted, "dedup is scoped to the table")

	n, err := records.Count(ctx, "servidores")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	has, err := records.Has(ctx, "servidores", "h1")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = records.Has(ctx, "servidores", "h2")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRawRecordStore_ListKeepsFieldOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	records := store.RawRecordStore()

	first := rawRecord("h1", "z", "1", "a", "2")
	second := rawRecord("h2", "m", "3")
	for _, rec := range []domain.RawRecord{first, second} {
		_, err := records.InsertIfNew(ctx, "t", rec)
		require.NoError(t, err)
	}

	list, err := records.List(ctx, "t")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{"z", "a"}, list[0].Payload.Names())
	assert.Equal(t, "t", list[0].Table)
	assert.Equal(t, testTime, list[0].CapturedAt)
	assert.Equal(t, "h2", list[1].ContentHash)
}

func TestRawRecordStore_InvalidInput(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.RawRecordStore().InsertIfNew(ctx, "", rawRecord("h1"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = store.RawRecordStore().InsertIfNew(ctx, "t", rawRecord(""))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRawRecordStore_ConcurrentDuplicatesInsertOnce(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	records := store.RawRecordStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := records.InsertIfNew(ctx, "t", rawRecord("same"))
			assert.NoError(t, err)
			if inserted {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	n, err := records.Count(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// ==================== Entity Store Tests ====================

func testEntity(id string, identifier domain.Identifier) domain.CanonicalEntity {
	return domain.CanonicalEntity{
		ID:            id,
		Kind:          domain.EntityPerson,
		Identifier:    identifier,
		CanonicalName: "MARIA DE SOUZA",
		Attributes:    map[string]string{domain.AttrRole: "ANALISTA"},
		ResolutionKey: domain.ResolutionKey("MARIA DE SOUZA", "1980-05-01"),
		CreatedAt:     testTime,
		UpdatedAt:     testTime,
	}
}

func TestEntityStore_SaveAndFind(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	entities := store.EntityStore()

	e := testEntity("e1", domain.FullIdentifier("52998224725"))
	e.AddAlias(domain.SequentialIdentifier("tse", "10001"))
	require.NoError(t, entities.Save(ctx, e))

	got, err := entities.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, e, *got)

	byAlias, err := entities.FindByIdentifier(ctx, domain.SequentialIdentifier("tse", "10001"))
	require.NoError(t, err)
	assert.Equal(t, "e1", byAlias.ID)

	byKey, err := entities.FindByResolutionKey(ctx, e.ResolutionKey)
	require.NoError(t, err)
	require.Len(t, byKey, 1)
	assert.Equal(t, "e1", byKey[0].ID)

	_, err = entities.FindByIdentifier(ctx, domain.FullIdentifier("11144477735"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = entities.FindByIdentifier(ctx, domain.Identifier{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = entities.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEntityStore_IdentifierKeepsFirstHolder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	entities := store.EntityStore()

	id := domain.FullIdentifier("52998224725")
	require.NoError(t, entities.Save(ctx, testEntity("e1", id)))
	require.NoError(t, entities.Save(ctx, testEntity("e2", id)))

	got, err := entities.FindByIdentifier(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "e1", got.ID)
}

func TestEntityStore_UpgradeKeepsOldIdentifierAsAlias(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	entities := store.EntityStore()

	partial := domain.PartialIdentifier("982247", "***.982.247-**")
	e := testEntity("e1", partial)
	require.NoError(t, entities.Save(ctx, e))

	e.Identifier = domain.FullIdentifier("52998224725")
	e.AddAlias(partial)
	e.UpdatedAt = testTime.Add(time.Hour)
	require.NoError(t, entities.Save(ctx, e))

	for _, id := range []domain.Identifier{partial, e.Identifier} {
		got, err := entities.FindByIdentifier(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "e1", got.ID)
		assert.True(t, got.Identifier.IsFull())
	}

	list, err := entities.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, testTime, list[0].CreatedAt)
}

func TestEntityStore_Snapshots(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	entities := store.EntityStore()

	snap := domain.Snapshot{EntityID: "e1", Period: "2018", SourceID: "assets", CapturedAt: testTime}
	snap.SetPart("1", 100000)
	require.NoError(t, entities.PutSnapshot(ctx, snap))

	snap.SetPart("2", 50000)
	require.NoError(t, entities.PutSnapshot(ctx, snap))
	require.NoError(t, entities.PutSnapshot(ctx, domain.Snapshot{EntityID: "e1", Period: "2014", DeclaredValue: 10}))
	require.NoError(t, entities.PutSnapshot(ctx, domain.Snapshot{EntityID: "e2", Period: "2018", DeclaredValue: 20}))

	own, err := entities.Snapshots(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, own, 2)
	assert.Equal(t, "2014", own[0].Period)
	assert.Equal(t, snap, own[1])
	assert.InDelta(t, 150000, own[1].DeclaredValue, 1e-9)

	all, err := entities.Snapshots(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestEntityStore_Events(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	entities := store.EntityStore()

	ev := domain.Event{
		ID:           "ev1",
		EntityID:     "e1",
		Type:         domain.EventTravel,
		OccurredAt:   testTime,
		OccurredTo:   testTime.AddDate(0, 0, 2),
		Amount:       1520.75,
		Attributes:   map[string]string{domain.EvAttrDestination: "BRASILIA/DF"},
		Unnormalized: []string{domain.FieldAmount},
		SourceID:     "travel",
	}
	inserted, err := entities.AppendEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = entities.AppendEvent(ctx, ev)
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = entities.AppendEvent(ctx, domain.Event{ID: "ev0", EntityID: "e2", Type: domain.EventPayroll})
	require.NoError(t, err)

	all, err := entities.Events(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ev, all[0], "insertion order")
	assert.True(t, all[1].OccurredAt.IsZero())

	own, err := entities.Events(ctx, "e2")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "ev0", own[0].ID)

	_, err = entities.AppendEvent(ctx, domain.Event{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEntityStore_Relationships(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	entities := store.EntityStore()

	require.NoError(t, entities.PutRelationship(ctx, domain.Relationship{
		FromID: "p1", ToID: "c1", Type: domain.RelPartnerOf, Attributes: map[string]string{"share": "10"},
	}))
	require.NoError(t, entities.PutRelationship(ctx, domain.Relationship{
		FromID: "p1", ToID: "c1", Type: domain.RelPartnerOf, Attributes: map[string]string{"share": "50"},
	}))
	require.NoError(t, entities.PutRelationship(ctx, domain.Relationship{
		FromID: "c1", ToID: "k1", Type: domain.RelDonatedTo,
	}))
	require.NoError(t, entities.PutRelationship(ctx, domain.Relationship{
		FromID: "x", ToID: "y", Type: domain.RelContractedBy,
	}))

	touching, err := entities.Relationships(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, touching, 2)
	assert.Equal(t, domain.RelDonatedTo, touching[0].Type)
	assert.Equal(t, "50", touching[1].Attributes["share"])

	all, err := entities.Relationships(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	err = entities.PutRelationship(ctx, domain.Relationship{FromID: "a"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEntityStore_Decisions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	entities := store.EntityStore()

	for i := 0; i < 3; i++ {
		require.NoError(t, entities.LogDecision(ctx, domain.Decision{
			Kind:          domain.DecisionAmbiguousMerge,
			EntityID:      fmt.Sprintf("e%d", i),
			CandidateIDs:  []string{"a", "b"},
			ResolutionKey: "MARIA|1980",
			Previous:      domain.PartialIdentifier("982247", "***.982.247-**"),
			Current:       domain.FullIdentifier("52998224725"),
			CreatedAt:     testTime,
		}))
	}

	latest, err := entities.Decisions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "e2", latest[0].EntityID)
	assert.Equal(t, "e1", latest[1].EntityID)
	assert.Equal(t, []string{"a", "b"}, latest[0].CandidateIDs)
	assert.Equal(t, domain.FullIdentifier("52998224725"), latest[0].Current)

	all, err := entities.Decisions(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// ==================== Insight Store Tests ====================

func testInsight(detector, primary string, sev domain.Severity, refs ...domain.EvidenceRef) domain.Insight {
	in := domain.Insight{
		DetectorID:     detector,
		Severity:       sev,
		Confidence:     80,
		ExposureAmount: 60000,
		Title:          "title " + primary,
		Description:    "description",
		LegalBasisTag:  "Lei 14.133/2021",
		Evidence:       refs,
		Status:         domain.StatusDetected,
		CreatedAt:      testTime,
		PrimaryKey:     primary,
		GroupingKey:    "g",
	}
	in.AssignID()
	return in
}

func TestInsightStore_InsertIfAbsent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	insights := store.InsightStore()

	in := testInsight("bid_splitting", "v1", domain.SeverityCritical,
		domain.EvidenceRef{EntityID: "v1", Role: domain.RoleSubject},
		domain.EvidenceRef{EntityID: "v1", EventID: "ev1", Role: domain.RoleEvent},
	)
	inserted, err := insights.InsertIfAbsent(ctx, in)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = insights.InsertIfAbsent(ctx, in)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := insights.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, in, *got)

	_, err = insights.InsertIfAbsent(ctx, domain.Insight{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = insights.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInsightStore_RefreshKeepsStatus(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	insights := store.InsightStore()

	in := testInsight("sanctions", "v1", domain.SeverityHigh, domain.EvidenceRef{EntityID: "v1", Role: domain.RoleSubject})
	_, err := insights.InsertIfAbsent(ctx, in)
	require.NoError(t, err)
	require.NoError(t, insights.UpdateStatus(ctx, in.ID, domain.StatusUnderReview))

	in.Severity = domain.SeverityCritical
	in.Confidence = 95
	in.Status = domain.StatusDetected
	in.Evidence = []domain.EvidenceRef{
		{EntityID: "v1", Role: domain.RoleSubject},
		{EntityID: "v1", EventID: "s1", Role: domain.RoleSanction},
	}
	require.NoError(t, insights.Refresh(ctx, in))

	got, err := insights.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnderReview, got.Status)
	assert.Equal(t, domain.SeverityCritical, got.Severity)
	assert.Equal(t, 95, got.Confidence)
	assert.Equal(t, in.Evidence, got.Evidence)

	missing := testInsight("sanctions", "nobody", domain.SeverityLow)
	assert.ErrorIs(t, insights.Refresh(ctx, missing), domain.ErrNotFound)
	assert.ErrorIs(t, insights.UpdateStatus(ctx, missing.ID, domain.StatusResolved), domain.ErrNotFound)
}

func TestInsightStore_ListFilters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	insights := store.InsightStore()

	a := testInsight("bid_splitting", "v1", domain.SeverityCritical, domain.EvidenceRef{EntityID: "v1", Role: domain.RoleSubject})
	b := testInsight("weekend_payment", "p1", domain.SeverityMedium, domain.EvidenceRef{EntityID: "p1", Role: domain.RoleSubject})
	c := testInsight("weekend_payment", "p2", domain.SeverityMedium,
		domain.EvidenceRef{EntityID: "p2", Role: domain.RoleSubject},
		domain.EvidenceRef{EntityID: "v1", Role: domain.RoleCounterparty},
	)
	for _, in := range []domain.Insight{a, b, c} {
		_, err := insights.InsertIfAbsent(ctx, in)
		require.NoError(t, err)
	}
	require.NoError(t, insights.UpdateStatus(ctx, b.ID, domain.StatusUnderReview))

	tests := []struct {
		name   string
		filter domain.InsightFilter
		want   []string
	}{
		{"all", domain.InsightFilter{}, []string{a.ID, b.ID, c.ID}},
		{"detector", domain.InsightFilter{DetectorID: "weekend_payment"}, []string{b.ID, c.ID}},
		{"min severity", domain.InsightFilter{MinSeverity: domain.SeverityHigh}, []string{a.ID}},
		{"status", domain.InsightFilter{Status: domain.StatusUnderReview}, []string{b.ID}},
		{"entity", domain.InsightFilter{EntityID: "v1"}, []string{a.ID, c.ID}},
		{"combined", domain.InsightFilter{EntityID: "v1", DetectorID: "weekend_payment"}, []string{c.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := insights.List(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, in := range got {
				ids = append(ids, in.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	got, err := insights.List(ctx, domain.InsightFilter{DetectorID: "weekend_payment"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Len(t, got[1].Evidence, 2, "evidence is not narrowed by the entity join")
}

func TestInsightStore_Links(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	insights := store.InsightStore()

	a := testInsight("sanctions", "v1", domain.SeverityCritical,
		domain.EvidenceRef{EntityID: "v1", Role: domain.RoleSubject},
		domain.EvidenceRef{EntityID: "v1", EventID: "s1", Role: domain.RoleSanction},
	)
	b := testInsight("sanctions", "v2", domain.SeverityCritical, domain.EvidenceRef{EntityID: "v2", Role: domain.RoleSubject})
	for _, in := range []domain.Insight{a, b} {
		_, err := insights.InsertIfAbsent(ctx, in)
		require.NoError(t, err)
	}

	all, err := insights.Links(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, append(a.Links(), b.Links()...), all)

	one, err := insights.Links(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Links(), one)
}

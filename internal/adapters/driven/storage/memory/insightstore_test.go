package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

func storedInsight(id string, sev domain.Severity, entityID string) domain.Insight {
	return domain.Insight{
		ID:         id,
		DetectorID: "bid_splitting",
		Severity:   sev,
		Confidence: 80,
		Status:     domain.StatusDetected,
		Evidence:   []domain.EvidenceRef{{EntityID: entityID, Role: domain.RoleSubject}},
	}
}

func TestInsightStore_InsertIfAbsent(t *testing.T) {
	store := NewInsightStore()
	ctx := context.Background()

	ok, err := store.InsertIfAbsent(ctx, storedInsight("i1", domain.SeverityHigh, "e1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.InsertIfAbsent(ctx, storedInsight("i1", domain.SeverityLow, "e1"))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.Get(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityHigh, got.Severity)

	_, err = store.InsertIfAbsent(ctx, domain.Insight{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestInsightStore_RefreshKeepsStatus(t *testing.T) {
	store := NewInsightStore()
	ctx := context.Background()

	_, err := store.InsertIfAbsent(ctx, storedInsight("i1", domain.SeverityMedium, "e1"))
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(ctx, "i1", domain.StatusUnderReview))

	updated := storedInsight("i1", domain.SeverityCritical, "e2")
	updated.Status = domain.StatusDetected
	updated.ExposureAmount = 1000
	require.NoError(t, store.Refresh(ctx, updated))

	got, err := store.Get(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityCritical, got.Severity)
	assert.Equal(t, domain.StatusUnderReview, got.Status)
	assert.InDelta(t, 1000.0, got.ExposureAmount, 1e-9)
	assert.Equal(t, "e2", got.Evidence[0].EntityID)

	assert.ErrorIs(t, store.Refresh(ctx, storedInsight("missing", domain.SeverityLow, "e")), domain.ErrNotFound)
	assert.ErrorIs(t, store.UpdateStatus(ctx, "missing", domain.StatusResolved), domain.ErrNotFound)
}

func TestInsightStore_ListFilters(t *testing.T) {
	store := NewInsightStore()
	ctx := context.Background()
	for _, in := range []domain.Insight{
		storedInsight("i1", domain.SeverityLow, "e1"),
		storedInsight("i2", domain.SeverityHigh, "e2"),
		storedInsight("i3", domain.SeverityCritical, "e1"),
	} {
		_, err := store.InsertIfAbsent(ctx, in)
		require.NoError(t, err)
	}

	high, err := store.List(ctx, domain.InsightFilter{MinSeverity: domain.SeverityHigh})
	require.NoError(t, err)
	assert.Len(t, high, 2)

	forE1, err := store.List(ctx, domain.InsightFilter{EntityID: "e1"})
	require.NoError(t, err)
	assert.Len(t, forE1, 2)

	links, err := store.Links(ctx, "")
	require.NoError(t, err)
	assert.Len(t, links, 3)
	one, err := store.Links(ctx, "i2")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "e2", one[0].EntityID)
}

package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
)

func TestSourceStore_InterfaceCompliance(t *testing.T) {
	var _ driven.SourceStore = NewSourceStore()
}

func TestSourceStore_SaveAndGet(t *testing.T) {
	store := NewSourceStore()
	ctx := context.Background()

	source := domain.Source{
		ID:       "cgu-viagens",
		Strategy: domain.StrategyPaginatedAPI,
		Dataset:  "travel",
		Name:     "Viagens a serviço",
		Config:   map[string]string{"url": "https://api.example.gov.br/viagens"},
	}
	require.NoError(t, store.Save(ctx, source))

	saved, err := store.Get(ctx, "cgu-viagens")
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyPaginatedAPI, saved.Strategy)
	assert.Equal(t, "travel", saved.Dataset)
	assert.Equal(t, "https://api.example.gov.br/viagens", saved.Config["url"])
}

func TestSourceStore_SaveUpdates(t *testing.T) {
	store := NewSourceStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.Source{ID: "s", Name: "before"}))
	require.NoError(t, store.Save(ctx, domain.Source{ID: "s", Name: "after"}))

	saved, err := store.Get(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "after", saved.Name)
}

func TestSourceStore_SaveRequiresID(t *testing.T) {
	err := NewSourceStore().Save(context.Background(), domain.Source{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSourceStore_GetNotFound(t *testing.T) {
	_, err := NewSourceStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSourceStore_ListSorted(t *testing.T) {
	store := NewSourceStore()
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, store.Save(ctx, domain.Source{ID: id}))
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "c", list[2].ID)
}

func TestSourceStore_Delete(t *testing.T) {
	store := NewSourceStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, domain.Source{ID: "a"}))
	require.NoError(t, store.Save(ctx, domain.Source{ID: "b"}))

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "missing"))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)
}

func TestSourceStore_Concurrency(t *testing.T) {
	store := NewSourceStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("src-%d", n%10)
			_ = store.Save(ctx, domain.Source{ID: id})
			_, _ = store.Get(ctx, id)
			_, _ = store.List(ctx)
		}(i)
	}
	wg.Wait()

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 10)
}

package htmltable

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sentinela/internal/collectors/httpx"
	"github.com/custodia-labs/sentinela/internal/core/domain"
)

func newCollector(t *testing.T, body string, cfg map[string]string) *Collector {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	cfg["url"] = srv.URL
	src := domain.Source{ID: "obras", Strategy: domain.StrategyStaticTable, Dataset: "contracts", Config: cfg}
	parsed, err := ParseConfig(src)
	require.NoError(t, err)
	return New(src, parsed, httpx.NewClient(httpx.Policy{MaxAttempts: 1, RequestTimeout: 2 * time.Second}))
}

func collectAll(c *Collector) ([]domain.RawRecord, []error) {
	out, errs := c.Collect(context.Background())
	var recs []domain.RawRecord
	var all []error
	for out != nil || errs != nil {
		select {
		case r, ok := <-out:
			if !ok {
				out = nil
				continue
			}
			recs = append(recs, r)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			all = append(all, err)
		}
	}
	return recs, all
}

func TestCollector_ByTableIndex(t *testing.T) {
	c := newCollector(t, page, map[string]string{"table_index": "1"})

	recs, errs := collectAll(c)

	require.Len(t, recs, 2)
	assert.Equal(t, "contracts", recs[0].Table)
	assert.Equal(t, "ANA MARIA", recs[0].Payload.Value("nome"))
	require.Len(t, errs, 1)
	_, ok := domain.IsRowError(errs[0])
	assert.True(t, ok)
}

func TestCollector_ByTableID(t *testing.T) {
	c := newCollector(t, `<table id="t"><thead><tr><th>Obra</th></tr></thead><tbody><tr><td>Ponte</td></tr></tbody></table>`,
		map[string]string{"table_id": "t"})

	recs, errs := collectAll(c)

	assert.Empty(t, errs)
	require.Len(t, recs, 1)
	assert.Equal(t, "Ponte", recs[0].Payload.Value("obra"))
}

func TestCollector_Latin1Page(t *testing.T) {
	c := newCollector(t, "<table><tr><th>Descri\xe7\xe3o</th></tr><tr><td>Manuten\xe7\xe3o</td></tr></table>",
		map[string]string{"encoding": "windows-1252"})

	recs, errs := collectAll(c)

	assert.Empty(t, errs)
	require.Len(t, recs, 1)
	assert.Equal(t, "Manutenção", recs[0].Payload.Value("descricao"))
}

func TestCollector_MissingTable(t *testing.T) {
	c := newCollector(t, `<p>nada</p>`, map[string]string{"table_id": "x"})

	recs, errs := collectAll(c)

	assert.Empty(t, recs)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrMalformedPayload)
}

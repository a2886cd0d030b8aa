package apipage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sentinela/internal/collectors/httpx"
	"github.com/custodia-labs/sentinela/internal/core/domain"
)

func testClient() *httpx.Client {
	return httpx.NewClient(httpx.Policy{
		MaxAttempts:    2,
		BaseDelay:      time.Millisecond,
		MaxDelay:       time.Millisecond,
		Cooldown:       time.Millisecond,
		RequestTimeout: 2 * time.Second,
	})
}

// drain collects every record and the first fatal error.
func drain(t *testing.T, c *Collector) ([]domain.RawRecord, error) {
	t.Helper()
	out, errs := c.Collect(context.Background())
	var recs []domain.RawRecord
	var fatal error
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
			fatal = err
		}
	}
	return recs, fatal
}

// pagedServer serves total items across pages of size per page.
// The body shape is chosen by shape: "array", "wrapped", "counted".
func pagedServer(t *testing.T, total, size int, shape string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "k", r.Header.Get("chave-api-dados"))
		page, _ := strconv.Atoi(r.URL.Query().Get("pagina"))
		var items []map[string]any
		for i := (page - 1) * size; i < page*size && i < total; i++ {
			items = append(items, map[string]any{
				"id":    i,
				"Nome":  fmt.Sprintf("Servidor %d", i),
				"orgao": map[string]any{"sigla": "SEE"},
			})
		}
		if items == nil {
			items = []map[string]any{}
		}
		var body any = items
		switch shape {
		case "wrapped":
			body = map[string]any{"data": map[string]any{"itens": items}}
		case "counted":
			body = map[string]any{"itens": items, "totalPaginas": (total + size - 1) / size}
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newCollector(t *testing.T, cfg map[string]string) *Collector {
	t.Helper()
	src := domain.Source{ID: "cgu", Strategy: domain.StrategyPaginatedAPI, Dataset: "payroll", Config: cfg}
	parsed, err := ParseConfig(src)
	require.NoError(t, err)
	return New(src, parsed, testClient())
}

func TestCollect_StopsOnEmptyPage(t *testing.T) {
	srv, hits := pagedServer(t, 6, 3, "array")
	c := newCollector(t, map[string]string{"url": srv.URL, "header.chave-api-dados": "k"})

	recs, err := drain(t, c)

	require.NoError(t, err)
	assert.Len(t, recs, 6)
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
	assert.Equal(t, "payroll", recs[0].Table)
	assert.Equal(t, "Servidor 0", recs[0].Payload.Value("nome"))
	assert.Equal(t, "SEE", recs[0].Payload.Value("orgao_sigla"))
}

func TestCollect_StopsOnTotalPages(t *testing.T) {
	srv, hits := pagedServer(t, 6, 3, "counted")
	c := newCollector(t, map[string]string{
		"url":                    srv.URL,
		"header.chave-api-dados": "k",
		"items_field":            "itens",
		"total_pages_field":      "totalPaginas",
	})

	recs, err := drain(t, c)

	require.NoError(t, err)
	assert.Len(t, recs, 6)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestCollect_StopsOnShortPage(t *testing.T) {
	srv, hits := pagedServer(t, 7, 3, "wrapped")
	c := newCollector(t, map[string]string{
		"url":                    srv.URL,
		"header.chave-api-dados": "k",
		"items_field":            "data.itens",
		"size_param":             "tamanhoPagina",
		"page_size":              "3",
	})

	recs, err := drain(t, c)

	require.NoError(t, err)
	assert.Len(t, recs, 7)
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
}

func TestCollect_MaxPages(t *testing.T) {
	srv, hits := pagedServer(t, 100, 3, "array")
	c := newCollector(t, map[string]string{"url": srv.URL, "header.chave-api-dados": "k", "max_pages": "2"})

	recs, err := drain(t, c)

	require.NoError(t, err)
	assert.Len(t, recs, 6)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestCollect_AuthFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	c := newCollector(t, map[string]string{"url": srv.URL})

	recs, err := drain(t, c)

	assert.Empty(t, recs)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestCollect_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()
	c := newCollector(t, map[string]string{"url": srv.URL})

	_, err := drain(t, c)
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
}

func TestCollect_AfterClose(t *testing.T) {
	c := newCollector(t, map[string]string{"url": "http://127.0.0.1:1"})
	require.NoError(t, c.Close())

	_, err := drain(t, c)
	assert.ErrorIs(t, err, domain.ErrCollectorClosed)
	assert.ErrorIs(t, c.Validate(context.Background()), domain.ErrCollectorClosed)
}

func TestValidate_EmptyCredential(t *testing.T) {
	c := newCollector(t, map[string]string{"url": "http://x", "header.chave-api-dados": ""})
	assert.ErrorIs(t, c.Validate(context.Background()), domain.ErrConfigInvalid)
}

func TestParseConfig(t *testing.T) {
	_, err := ParseConfig(domain.Source{ID: "x", Config: map[string]string{}})
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)

	cfg, err := ParseConfig(domain.Source{ID: "x", Config: map[string]string{
		"url":          "https://api.example.gov/servidores?ano=2024",
		"query.mes":    "01",
		"size_param":   "tamanho",
		"page_size":    "500",
		"start_page":   "0",
		"header.Token": "t",
	}})
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.StartPage)

	u, err := cfg.pageURL(4)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.gov/servidores?ano=2024&mes=01&pagina=4&tamanho=500", u)
}

func TestFlatten(t *testing.T) {
	var obj map[string]any
	dec := json.NewDecoder(strings.NewReader(`{"Valor Líquido": 1234.5, "ativo": true, "obs": null, "tags": ["a"], "orgao": {"Código": "26"}}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&obj))

	p := Flatten(obj)

	assert.Equal(t, []string{"ativo", "obs", "orgao_codigo", "tags", "valor_liquido"}, p.Names())
	assert.Equal(t, "1234.5", p.Value("valor_liquido"))
	assert.Equal(t, "true", p.Value("ativo"))
	assert.Equal(t, "", p.Value("obs"))
	assert.Equal(t, `["a"]`, p.Value("tags"))
	assert.Equal(t, "26", p.Value("orgao_codigo"))
}

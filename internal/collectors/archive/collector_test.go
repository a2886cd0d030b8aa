package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sentinela/internal/collectors/httpx"
	"github.com/custodia-labs/sentinela/internal/core/domain"
)

func buildZip(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func serve(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newCollector(t *testing.T, cfg map[string]string) *Collector {
	t.Helper()
	src := domain.Source{ID: "tse-bens", Strategy: domain.StrategyBulkArchive, Dataset: "candidate_assets", Config: cfg}
	parsed, err := ParseConfig(src)
	require.NoError(t, err)
	client := httpx.NewClient(httpx.Policy{MaxAttempts: 1, RequestTimeout: 2 * time.Second})
	return New(src, parsed, client)
}

func drain(t *testing.T, c *Collector) ([]domain.RawRecord, []error) {
	t.Helper()
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

const bensAC = "\"SG_UF\";\"NM_CANDIDATO\";\"VR_BEM_CANDIDATO\"\n" +
	"\"AC\";\"JOS\xc9 SILVA\";\"150.000,00\"\n" +
	"\"AM\";\"OUTRO\";\"1,00\"\n" +
	"\"AC\";\"MARIA\"\n" +
	"\"AC\";\"ANA\";\"2.000,00\"\n"

func TestCollect_ReadsMatchingMemberWithFilters(t *testing.T) {
	data := buildZip(t, map[string]string{
		"leiame.pdf":                "not data",
		"bem_candidato_2024_AC.csv": bensAC,
		"bem_candidato_2024_BR.csv": "\"SG_UF\"\n\"AC\"\n",
	})
	srv := serve(t, data)
	c := newCollector(t, map[string]string{
		"url":            srv.URL,
		"member_pattern": `_AC\.csv$`,
		"filters":        "SG_UF=AC",
	})

	recs, errs := drain(t, c)

	require.Len(t, recs, 2)
	assert.Equal(t, "JOSÉ SILVA", recs[0].Payload.Value("nm_candidato"))
	assert.Equal(t, "candidate_assets", recs[0].Table)
	assert.Equal(t, "ANA", recs[1].Payload.Value("nm_candidato"))

	require.Len(t, errs, 1, "the short row is skipped and reported")
	_, ok := domain.IsRowError(errs[0])
	assert.True(t, ok)
}

func TestCollect_CorruptArchive(t *testing.T) {
	srv := serve(t, []byte("<html>not a zip</html>"))
	c := newCollector(t, map[string]string{"url": srv.URL})

	recs, errs := drain(t, c)

	assert.Empty(t, recs)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrMalformedPayload)
	assert.Equal(t, domain.FailureSkip, domain.Classify(errs[0]))
}

func TestCollect_CorruptMemberIsSkipped(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range []struct{ name, body string }{
		{"a.csv", "\"NM_CANDIDATO\"\n\"JOSE\"\n"},
		{"b.csv", "\"NM_CANDIDATO\"\n\"MARIA\"\n"},
	} {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: m.name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write([]byte(m.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	data := buf.Bytes()
	i := bytes.Index(data, []byte("JOSE"))
	require.GreaterOrEqual(t, i, 0)
	data[i] = 'X'

	srv := serve(t, data)
	c := newCollector(t, map[string]string{"url": srv.URL})

	recs, errs := drain(t, c)

	require.Len(t, recs, 1, "no row of the corrupt member is emitted")
	assert.Equal(t, "MARIA", recs[0].Payload.Value("nm_candidato"))
	require.Len(t, errs, 1)
	rowErr, ok := domain.IsRowError(errs[0])
	require.True(t, ok)
	assert.Equal(t, "a.csv", rowErr.Member)
	assert.ErrorIs(t, errs[0], domain.ErrMalformedPayload)
}

func TestCollect_NoDataMember(t *testing.T) {
	srv := serve(t, buildZip(t, map[string]string{"leiame.pdf": "x"}))
	c := newCollector(t, map[string]string{"url": srv.URL})

	_, errs := drain(t, c)

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrMalformedPayload)
}

func TestSelectMembers(t *testing.T) {
	data := buildZip(t, map[string]string{
		"dir/a.CSV": "x",
		"b.txt":     "x",
		"c.csv":     "x",
	})
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	names := func(files []*zip.File) []string {
		var out []string
		for _, f := range files {
			out = append(out, f.Name)
		}
		return out
	}

	all := SelectMembers(zr.File, &Config{Extension: ".csv"})
	assert.ElementsMatch(t, []string{"dir/a.CSV", "c.csv"}, names(all))

	txt := SelectMembers(zr.File, &Config{Extension: ".csv", MemberPattern: regexp.MustCompile(`^b\.`)})
	assert.Equal(t, []string{"b.txt"}, names(txt))

	fallback := SelectMembers(zr.File, &Config{Extension: ".csv", MemberPattern: regexp.MustCompile(`nomatch`)})
	assert.Len(t, fallback, 1)
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(domain.Source{ID: "x", Config: map[string]string{"url": "http://x", "extension": "txt"}})
	require.NoError(t, err)
	assert.Equal(t, ".txt", cfg.Extension)
	assert.Equal(t, "iso-8859-1", cfg.Format.Encoding)

	_, err = ParseConfig(domain.Source{ID: "x", Config: map[string]string{"url": "http://x", "member_pattern": "("}})
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)

	_, err = ParseConfig(domain.Source{ID: "x", Config: map[string]string{"url": "http://x", "encoding": "koi8"}})
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
}

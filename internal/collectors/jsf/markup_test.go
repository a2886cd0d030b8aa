package jsf

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

func serveHTML(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscoverActionID(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		label  string
		want   string
	}{
		{
			name:   "mojarra handler",
			markup: `<a href="#" onclick="mojarra.jsfcljs(document.getElementById('f'),{'f:j_idt45':'f:j_idt45'},'');return false">Exportar CSV</a>`,
			label:  "csv",
			want:   "f:j_idt45",
		},
		{
			name:   "primefaces ajax handler",
			markup: `<button id="f:b1" onclick="PrimeFaces.ab({s:&quot;f:j_idt12&quot;,f:&quot;f&quot;});return false;"><span>Gerar planilha</span></button>`,
			label:  "planilha",
			want:   "f:j_idt12",
		},
		{
			name:   "label only in handler",
			markup: `<a onclick="PrimeFaces.addSubmitParam('f',{'f:exportCsv':'f:exportCsv'}).submit('f')"><img src="x.png"></a>`,
			label:  "exportcsv",
			want:   "f:exportCsv",
		},
		{
			name:   "plain submit falls back to id",
			markup: `<input type="submit" id="f:baixar" name="f:baixar" value="Baixar CSV">`,
			label:  "CSV",
			want:   "f:baixar",
		},
		{
			name:   "title attribute",
			markup: `<button type="submit" name="f:xls" title="Exportar para CSV"></button>`,
			label:  "csv",
			want:   "f:xls",
		},
		{
			name: "first matching control wins",
			markup: `<a href="/ajuda">Ajuda</a>
<button onclick="mojarra.jsfcljs(f,{'f:pdf':'f:pdf'},'')">PDF</button>
<button onclick="mojarra.jsfcljs(f,{'f:csv':'f:csv'},'')">CSV</button>`,
			label: "CSV",
			want:  "f:csv",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiscoverActionID([]byte(tt.markup), tt.label)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiscoverActionID_NotFound(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		label  string
	}{
		{"no control", `<p>Exportar CSV</p>`, "csv"},
		{"link without handler", `<a href="/dados.csv">CSV</a>`, "csv"},
		{"empty label", `<button id="b">CSV</button>`, " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DiscoverActionID([]byte(tt.markup), tt.label)
			assert.ErrorIs(t, err, domain.ErrActionNotFound)
			assert.ErrorIs(t, err, domain.ErrProtocolState)
		})
	}
}

func TestFindDataTableID(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{"container", `<div id="f:t" class="ui-datatable ui-widget"><table role="grid"></table></div>`, "f:t"},
		{"grid id", `<table id="f:lista_data" role="grid"></table>`, "f:lista"},
		{"grid colon data", `<table id="f:lista:data" role="grid"></table>`, "f:lista"},
		{"tbody", `<table><tbody id="f:grade_data"></tbody></table>`, "f:grade"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindDataTableID([]byte(tt.markup))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FindDataTableID([]byte(`<table><tr><td>1</td></tr></table>`))
	assert.ErrorIs(t, err, domain.ErrProtocolState)
}

func TestParsePage(t *testing.T) {
	p, err := parsePage([]byte(`<form id="a"></form><form id="b"><input type="hidden" name="jakarta.faces.ViewState" value="tok"></form>`))
	require.NoError(t, err)
	assert.Equal(t, "tok", p.token)
	assert.Equal(t, viewStateJakarta, p.tokenField)
	assert.Equal(t, "b", p.formID)
}

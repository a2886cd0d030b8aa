package jsf

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/custodia-labs/sentinela/internal/collectors/httpx"
)

const (
	exportID = "form:j_idt31"
	tableID  = "form:tabela"
	yearID   = "form:ano"
)

// facesServer is a scripted Faces page. It rotates the view state on every
// ajax response and counts requests that echo a stale one.
type facesServer struct {
	mu sync.Mutex

	rows []row

	// Scripting.
	withExport        bool
	exportDeclines    bool
	dropViewState     bool
	requireDownload   bool
	serverErrorOnAjax bool

	// Observations.
	version     int
	stale       int
	year        string
	pageQueries []string
	sawCookie   bool
	exports     int
}

type row struct {
	name, role, year string
}

func newFacesServer(t *testing.T, n int) (*facesServer, *httptest.Server) {
	t.Helper()
	fs := &facesServer{withExport: true, requireDownload: true}
	for i := 1; i <= n; i++ {
		year := "2023"
		if i%2 == 0 {
			year = "2024"
		}
		fs.rows = append(fs.rows, row{name: fmt.Sprintf("SERVIDOR %03d", i), role: "Assessor", year: year})
	}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return fs, srv
}

func testPolicy() httpx.Policy {
	return httpx.Policy{MaxAttempts: 1, RequestTimeout: 2 * time.Second}
}

func (fs *facesServer) token() string {
	return "vs-" + strconv.Itoa(fs.version)
}

func (fs *facesServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if r.Method == http.MethodGet {
		fs.version = 0
		fs.year = ""
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		_, _ = w.Write([]byte(fs.page()))
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("javax.faces.ViewState") != fs.token() {
		fs.stale++
	}

	if r.Header.Get("Faces-Request") != "partial/ajax" {
		fs.export(w, r)
		return
	}
	if fs.serverErrorOnAjax {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><partial-response><error><error-name>javax.faces.application.ViewExpiredException</error-name><error-message><![CDATA[view expired]]></error-message></error></partial-response>`))
		return
	}

	fs.version++
	var fragment string
	switch src := r.PostForm.Get("javax.faces.source"); src {
	case yearID:
		fs.year = r.PostForm.Get(yearID + "_input")
	case tableID:
		first, _ := strconv.Atoi(r.PostForm.Get(tableID + "_first"))
		size, _ := strconv.Atoi(r.PostForm.Get(tableID + "_rows"))
		fs.pageQueries = append(fs.pageQueries, fmt.Sprintf("%d+%d", first, size))
		fragment = fs.rowsHTML(first, size)
	}

	w.Header().Set("Content-Type", "text/xml;charset=UTF-8")
	var b strings.Builder
	b.WriteString(`<?xml version='1.0' encoding='UTF-8'?><partial-response id="j_id1"><changes>`)
	if fragment != "" {
		fmt.Fprintf(&b, `<update id="%s"><![CDATA[%s]]></update>`, tableID, fragment)
	}
	if !fs.dropViewState {
		fmt.Fprintf(&b, `<update id="j_id1:javax.faces.ViewState:0"><![CDATA[%s]]></update>`, fs.token())
	}
	b.WriteString(`</changes></partial-response>`)
	_, _ = w.Write([]byte(b.String()))
}

func (fs *facesServer) export(w http.ResponseWriter, r *http.Request) {
	fs.exports++
	c, err := r.Cookie(DownloadCookie)
	fs.sawCookie = err == nil && c.Value == "true"

	ok := fs.withExport && !fs.exportDeclines && r.PostForm.Get(exportID) == exportID
	if fs.requireDownload && !fs.sawCookie {
		ok = false
	}
	if !ok {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(fs.page()))
		return
	}

	var b strings.Builder
	b.WriteString("Nome;Cargo;Ano\n")
	for _, rw := range fs.filtered() {
		fmt.Fprintf(&b, "%s;%s;%s\n", rw.name, rw.role, rw.year)
	}
	b.WriteString("JOSÉ DA CONCEIÇÃO;Secretário;2024\n")
	body, _ := charmap.ISO8859_1.NewEncoder().String(b.String())

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="servidores.csv"`)
	_, _ = w.Write([]byte(body))
}

func (fs *facesServer) filtered() []row {
	if fs.year == "" {
		return fs.rows
	}
	var out []row
	for _, rw := range fs.rows {
		if rw.year == fs.year {
			out = append(out, rw)
		}
	}
	return out
}

func (fs *facesServer) rowsHTML(first, size int) string {
	rows := fs.filtered()
	if first >= len(rows) {
		return `<tr class="ui-widget-content ui-datatable-empty-message"><td colspan="3">Nenhum registro encontrado.</td></tr>`
	}
	end := min(first+size, len(rows))
	var b strings.Builder
	for i, rw := range rows[first:end] {
		fmt.Fprintf(&b, `<tr data-ri="%d" class="ui-widget-content"><td role="gridcell"><span class="ui-column-title">Nome</span>%s</td><td role="gridcell">%s</td><td role="gridcell">%s</td></tr>`,
			first+i, rw.name, rw.role, rw.year)
	}
	return b.String()
}

func (fs *facesServer) page() string {
	button := ""
	if fs.withExport {
		button = fmt.Sprintf(`<button id="%[1]s" name="%[1]s" class="ui-button" type="submit"
  onclick="PrimeFaces.monitorDownload(start, stop);mojarra.jsfcljs(document.getElementById('form'),{'%[1]s':'%[1]s'},'');return false">
  <span class="ui-button-text">Exportar CSV</span></button>`, exportID)
	}
	return fmt.Sprintf(`<!DOCTYPE html><html><head><title>Servidores</title></head><body>
<form id="busca" action="/busca"><input type="text" name="q"></form>
<form id="form" name="form" method="post" action="/servidor/">
  <input type="hidden" name="form" value="form">
  <select id="%s_input" name="%s_input"><option value="">Todos</option><option value="2024">2024</option></select>
  %s
  <div id="%s" class="ui-datatable ui-widget">
    <table role="grid">
      <thead><tr><th><span class="ui-column-title">Nome</span></th><th><span class="ui-column-title">Cargo</span></th><th><span class="ui-column-title">Ano</span></th></tr></thead>
      <tbody id="%s_data" class="ui-datatable-data">%s</tbody>
    </table>
  </div>
  <input type="hidden" name="javax.faces.ViewState" id="j_id1:javax.faces.ViewState:0" value="%s" autocomplete="off">
</form></body></html>`, yearID, yearID, button, tableID, tableID, fs.rowsHTML(0, 10), fs.token())
}

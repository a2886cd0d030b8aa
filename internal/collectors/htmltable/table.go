// Package htmltable extracts rendered tables from server-side markup and
// collects sources that publish nothing but an HTML table.
package htmltable

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/identity"
)

// Table is a parsed table: column keys and cell text.
type Table struct {
	ID     string
	Header []string
	Rows   [][]string
}

// Parse returns every table in the document in order.
func Parse(r io.Reader) ([]Table, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %w", domain.ErrMalformedPayload, err)
	}
	var tables []Table
	walk(doc, func(n *html.Node) bool {
		if n.DataAtom == atom.Table {
			tables = append(tables, Extract(n))
			return false
		}
		return true
	})
	return tables, nil
}

// FindByID returns the first element with the id, or nil.
func FindByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && Attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Extract reads a table node. The header comes from thead, or from a first
// row made only of th cells. Column keys are canonicalised.
func Extract(table *html.Node) Table {
	t := Table{ID: Attr(table, "id")}
	var rows []*html.Node
	walk(table, func(n *html.Node) bool {
		if n != table && n.DataAtom == atom.Table {
			return false
		}
		if n.DataAtom == atom.Tr {
			rows = append(rows, n)
			return false
		}
		return true
	})

	for i, tr := range rows {
		cells, allTH := rowCells(tr, true)
		if i == 0 && t.Header == nil && (inHead(tr) || allTH) {
			cells, _ = rowCells(tr, false)
			t.Header = make([]string, len(cells))
			for j, c := range cells {
				t.Header[j] = identity.ColumnKey(c)
				if t.Header[j] == "" {
					t.Header[j] = fmt.Sprintf("col_%d", j)
				}
			}
			continue
		}
		if blank(cells) || emptyMessage(tr) {
			continue
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// ParseRows parses a fragment of bare <tr> elements, as returned by
// datatable pagination.
func ParseRows(fragment string) ([][]string, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "tbody", DataAtom: atom.Tbody}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: parse rows: %w", domain.ErrMalformedPayload, err)
	}
	var rows [][]string
	for _, n := range nodes {
		walk(n, func(c *html.Node) bool {
			if c.DataAtom == atom.Tr {
				cells, _ := rowCells(c, true)
				if !blank(cells) && !emptyMessage(c) {
					rows = append(rows, cells)
				}
				return false
			}
			return true
		})
	}
	return rows, nil
}

// Payloads converts rows to payloads keyed by the header. A row whose width
// differs from the header is reported as a *domain.RowError. Tables without
// a header use col_<n> keys.
func (t Table) Payloads() ([]domain.Payload, []error) {
	return RowsToPayloads(t.Header, t.Rows, 1)
}

// RowsToPayloads is Payloads over an explicit header. firstRow numbers the
// first row for error reports.
func RowsToPayloads(header []string, rows [][]string, firstRow int) ([]domain.Payload, []error) {
	var out []domain.Payload
	var errs []error
	for i, cells := range rows {
		keys := header
		if keys == nil {
			keys = make([]string, len(cells))
			for j := range cells {
				keys[j] = fmt.Sprintf("col_%d", j)
			}
		}
		if len(cells) != len(keys) {
			errs = append(errs, &domain.RowError{
				Row: firstRow + i,
				Err: fmt.Errorf("%w: %d cells, header has %d", domain.ErrMalformedPayload, len(cells), len(keys)),
			})
			continue
		}
		p := make(domain.Payload, len(cells))
		for j, v := range cells {
			p[j] = domain.Field{Name: keys[j], Value: v}
		}
		out = append(out, p)
	}
	return out, errs
}

func rowCells(tr *html.Node, skipTitles bool) ([]string, bool) {
	var cells []string
	allTH := true
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.DataAtom != atom.Td && c.DataAtom != atom.Th {
			continue
		}
		if c.DataAtom == atom.Td {
			allTH = false
		}
		cells = append(cells, text(c, skipTitles))
	}
	return cells, allTH && len(cells) > 0
}

func inHead(tr *html.Node) bool {
	for p := tr.Parent; p != nil; p = p.Parent {
		switch p.DataAtom {
		case atom.Thead:
			return true
		case atom.Table:
			return false
		}
	}
	return false
}

// Text returns the collapsed text content of n. Responsive column titles
// (ui-column-title spans) repeated inside body cells are skipped.
func Text(n *html.Node) string {
	return text(n, true)
}

func text(n *html.Node, skipTitles bool) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if skipTitles && n.Type == html.ElementNode && strings.Contains(Attr(n, "class"), "ui-column-title") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// Attr returns an attribute value or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// Walk visits nodes depth-first; fn returns false to skip children.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	walk(n, fn)
}

func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// emptyMessage reports the placeholder row a datatable renders when it has no data.
func emptyMessage(tr *html.Node) bool {
	return strings.Contains(Attr(tr, "class"), "ui-datatable-empty-message")
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

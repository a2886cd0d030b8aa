package jsf

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/custodia-labs/sentinela/internal/collectors/htmltable"
	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// View state field names. Jakarta Faces renamed the javax namespace.
const (
	viewStateJavax   = "javax.faces.ViewState"
	viewStateJakarta = "jakarta.faces.ViewState"
)

var (
	// mojarra.jsfcljs(form,{'form:j_idt45':'form:j_idt45'},'') and
	// PrimeFaces.addSubmitParam('form',{'form:btn':'form:btn'}).
	handlerParamRe = regexp.MustCompile(`\{\s*'([^']+)'`)

	// PrimeFaces.ab({s:"form:btn",...}).
	handlerSourceRe = regexp.MustCompile(`\bs\s*:\s*["']([^"']+)["']`)
)

// page is a parsed document plus the protocol fields read from it.
type page struct {
	doc        *html.Node
	token      string
	tokenField string
	formID     string
}

func parsePage(markup []byte) (*page, error) {
	doc, err := html.Parse(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("%w: parse page: %w", domain.ErrMalformedPayload, err)
	}
	p := &page{doc: doc}
	p.token, p.tokenField = viewState(doc)
	p.formID = formID(doc)
	return p, nil
}

// viewState returns the first view state input's value and field name.
func viewState(root *html.Node) (string, string) {
	var value, name string
	htmltable.Walk(root, func(n *html.Node) bool {
		if name != "" {
			return false
		}
		if n.DataAtom == atom.Input {
			switch htmltable.Attr(n, "name") {
			case viewStateJavax, viewStateJakarta:
				name = htmltable.Attr(n, "name")
				value = htmltable.Attr(n, "value")
				return false
			}
		}
		return true
	})
	return value, name
}

// formID returns the id of the form carrying the view state, falling back to
// the first form with an id.
func formID(root *html.Node) string {
	var first, withState string
	htmltable.Walk(root, func(n *html.Node) bool {
		if withState != "" {
			return false
		}
		if n.DataAtom == atom.Form {
			id := htmltable.Attr(n, "id")
			if id == "" {
				return true
			}
			if first == "" {
				first = id
			}
			if tok, _ := viewState(n); tok != "" {
				withState = id
			}
			return false
		}
		return true
	})
	if withState != "" {
		return withState
	}
	return first
}

// DiscoverActionID locates the control whose visible text, title, value or
// inline handler mentions label, and returns the component id its handler
// submits. Controls without a recognisable handler yield their own id.
func DiscoverActionID(markup []byte, label string) (string, error) {
	doc, err := html.Parse(bytes.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("%w: parse page: %w", domain.ErrMalformedPayload, err)
	}
	return discoverAction(doc, label)
}

func discoverAction(doc *html.Node, label string) (string, error) {
	want := strings.ToLower(strings.TrimSpace(label))
	if want == "" {
		return "", fmt.Errorf("%w: empty label", domain.ErrActionNotFound)
	}

	var found string
	htmltable.Walk(doc, func(n *html.Node) bool {
		if found != "" {
			return false
		}
		if n.Type != html.ElementNode || !actionable(n) {
			return true
		}
		onclick := htmltable.Attr(n, "onclick")
		visible := strings.ToLower(strings.Join([]string{
			htmltable.Text(n),
			htmltable.Attr(n, "title"),
			htmltable.Attr(n, "value"),
			htmltable.Attr(n, "aria-label"),
		}, " "))
		if !strings.Contains(visible, want) && !strings.Contains(strings.ToLower(onclick), want) {
			return true
		}
		if id := handlerTarget(onclick); id != "" {
			found = id
			return false
		}
		if submits(n) {
			if id := htmltable.Attr(n, "id"); id != "" {
				found = id
			} else if name := htmltable.Attr(n, "name"); name != "" {
				found = name
			}
		}
		return found == ""
	})
	if found == "" {
		return "", fmt.Errorf("%w: no control labelled %q", domain.ErrActionNotFound, label)
	}
	return found, nil
}

func actionable(n *html.Node) bool {
	switch n.DataAtom {
	case atom.A, atom.Button, atom.Input:
		return true
	}
	return htmltable.Attr(n, "onclick") != ""
}

func submits(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Button:
		t := strings.ToLower(htmltable.Attr(n, "type"))
		return t == "" || t == "submit"
	case atom.Input:
		t := strings.ToLower(htmltable.Attr(n, "type"))
		return t == "submit" || t == "image"
	}
	return false
}

func handlerTarget(onclick string) string {
	if onclick == "" {
		return ""
	}
	if m := handlerParamRe.FindStringSubmatch(onclick); m != nil {
		return m[1]
	}
	if m := handlerSourceRe.FindStringSubmatch(onclick); m != nil {
		return m[1]
	}
	return ""
}

// FindDataTableID returns the client id of the page's datatable component.
func FindDataTableID(markup []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("%w: parse page: %w", domain.ErrMalformedPayload, err)
	}
	if id := dataTableID(doc); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: no datatable on page", domain.ErrProtocolState)
}

func dataTableID(doc *html.Node) string {
	var container, grid string
	htmltable.Walk(doc, func(n *html.Node) bool {
		if container != "" {
			return false
		}
		if n.Type != html.ElementNode {
			return true
		}
		id := htmltable.Attr(n, "id")
		if id != "" && hasClass(n, "ui-datatable") {
			container = id
			return false
		}
		if grid == "" && id != "" && htmltable.Attr(n, "role") == "grid" {
			grid = strings.TrimSuffix(strings.TrimSuffix(id, "_data"), ":data")
		}
		if grid == "" && n.DataAtom == atom.Tbody && strings.HasSuffix(id, "_data") {
			grid = strings.TrimSuffix(id, "_data")
		}
		return true
	})
	if container != "" {
		return container
	}
	return grid
}

// tableHeader reads the datatable's column keys from the rendered page.
func tableHeader(doc *html.Node, tableID string) []string {
	n := htmltable.FindByID(doc, tableID)
	if n == nil {
		return nil
	}
	return htmltable.Extract(n).Header
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(htmltable.Attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

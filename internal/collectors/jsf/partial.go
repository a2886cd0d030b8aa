package jsf

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"

	"github.com/custodia-labs/sentinela/internal/collectors/htmltable"
	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// Update is one <update> of a partial response. Content is the text of its
// CDATA block.
type Update struct {
	ID      string `xml:"id,attr"`
	Content string `xml:",chardata"`
}

// PartialResponse is the envelope a Faces ajax request answers with.
type PartialResponse struct {
	XMLName xml.Name `xml:"partial-response"`
	Updates []Update `xml:"changes>update"`
	Error   *struct {
		Name    string `xml:"error-name"`
		Message string `xml:"error-message"`
	} `xml:"error"`
	Redirect *struct {
		URL string `xml:"url,attr"`
	} `xml:"redirect"`
}

// ParsePartialResponse decodes a partial-response envelope. The XML
// declaration's encoding is honoured.
func ParsePartialResponse(body []byte) (*PartialResponse, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	var pr PartialResponse
	if err := dec.Decode(&pr); err != nil {
		return nil, fmt.Errorf("%w: partial response: %w", domain.ErrMalformedPayload, err)
	}
	return &pr, nil
}

// Err reports a server-side error or redirect. A redirect means the view
// expired and the session is gone.
func (pr *PartialResponse) Err() error {
	if pr.Error != nil {
		return fmt.Errorf("server error %s: %s", strings.TrimSpace(pr.Error.Name), strings.TrimSpace(pr.Error.Message))
	}
	if pr.Redirect != nil {
		return fmt.Errorf("redirected to %s", pr.Redirect.URL)
	}
	return nil
}

// ViewState returns the rotated view state carried by the envelope, either
// as its own update or as a hidden input inside a re-rendered fragment.
func (pr *PartialResponse) ViewState() string {
	for _, u := range pr.Updates {
		if strings.Contains(u.ID, viewStateJavax) || strings.Contains(u.ID, viewStateJakarta) {
			return strings.TrimSpace(u.Content)
		}
	}
	for _, u := range pr.Updates {
		if !strings.Contains(u.Content, "ViewState") {
			continue
		}
		ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
		nodes, err := html.ParseFragment(strings.NewReader(u.Content), ctx)
		if err != nil {
			continue
		}
		for _, n := range nodes {
			if tok, _ := viewState(n); tok != "" {
				return tok
			}
		}
	}
	return ""
}

// Fragment returns the content of the update with id.
func (pr *PartialResponse) Fragment(id string) (string, bool) {
	for _, u := range pr.Updates {
		if u.ID == id {
			return u.Content, true
		}
	}
	return "", false
}

// Rows returns the table rows rendered for tableID. When the server
// re-rendered a wrapper instead, every non view-state fragment is searched.
func (pr *PartialResponse) Rows(tableID string) ([][]string, error) {
	if frag, ok := pr.Fragment(tableID); ok {
		return fragmentRows(frag, tableID)
	}
	var all [][]string
	for _, u := range pr.Updates {
		if strings.Contains(u.ID, "ViewState") {
			continue
		}
		rows, err := fragmentRows(u.Content, tableID)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

// fragmentRows reads rows from either bare <tr> elements (a pagination
// update) or a full re-rendered datatable.
func fragmentRows(frag, tableID string) ([][]string, error) {
	trimmed := strings.TrimSpace(frag)
	if strings.HasPrefix(trimmed, "<tr") {
		return htmltable.ParseRows(trimmed)
	}
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(frag), ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: parse fragment: %w", domain.ErrMalformedPayload, err)
	}
	for _, n := range nodes {
		if t := htmltable.FindByID(n, tableID); t != nil {
			return htmltable.Extract(t).Rows, nil
		}
	}
	return nil, nil
}

package jsf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/transform"

	"github.com/custodia-labs/sentinela/internal/collectors/httpx"
	"github.com/custodia-labs/sentinela/internal/collectors/tabular"
	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/logger"
)

// DownloadCookie is the marker PrimeFaces requires before it streams a file
// instead of re-rendering the view.
const DownloadCookie = "primefaces.download"

// Session is one browser-equivalent visit to a Faces page. It is not safe
// for concurrent use; every request depends on the previous response.
type Session struct {
	client   *httpx.Client
	jar      http.CookieJar
	pageURL  *url.URL
	header   http.Header
	encoding string
	log      *slog.Logger

	state      State
	markup     []byte
	page       *page
	token      string
	tokenField string
	formID     string
	filters    []filter
}

type filter struct {
	field string
	value string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithHeader sends extra headers on every request.
func WithHeader(h http.Header) SessionOption {
	return func(s *Session) {
		for k, vs := range h {
			s.header[k] = append([]string(nil), vs...)
		}
	}
}

// WithPageEncoding declares the page's character set. Default: utf-8.
func WithPageEncoding(name string) SessionOption {
	return func(s *Session) { s.encoding = name }
}

// NewSession prepares a session with its own cookie jar.
func NewSession(policy httpx.Policy, pageURL string, opts ...SessionOption) (*Session, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: page url %q", domain.ErrConfigInvalid, pageURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	s := &Session{
		jar:     jar,
		pageURL: u,
		header:  make(http.Header),
		log:     logger.For("jsf"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := tabular.Decoder(s.encoding); err != nil {
		return nil, err
	}
	s.client = httpx.NewClient(policy,
		httpx.WithHTTPClient(&http.Client{Jar: jar}),
		httpx.WithHeader("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8"),
		httpx.WithLogger(s.log),
	)
	return s, nil
}

// State returns the current protocol state.
func (s *Session) State() State {
	return s.state
}

// Token returns the current view state.
func (s *Session) Token() string {
	return s.token
}

// Markup returns the page as last loaded, decoded to UTF-8.
func (s *Session) Markup() []byte {
	return s.markup
}

// FormID returns the id of the form the session submits.
func (s *Session) FormID() string {
	return s.formID
}

func (s *Session) fail(step string, cause error) error {
	err := &StateError{State: s.state, Step: step, Cause: cause}
	s.state = StateFailed
	return err
}

// AcquireSession loads the page and reads its view state.
func (s *Session) AcquireSession(ctx context.Context) ([]byte, string, error) {
	const step = "acquire session"
	if s.state != StateInit {
		return nil, "", s.fail(step, fmt.Errorf("session already started"))
	}

	body, err := s.client.GetBytes(ctx, s.pageURL.String(), s.header)
	if err != nil {
		return nil, "", s.fail(step, err)
	}
	if body, err = s.decode(body); err != nil {
		return nil, "", s.fail(step, err)
	}
	p, err := parsePage(body)
	if err != nil {
		return nil, "", s.fail(step, err)
	}
	if p.token == "" {
		return nil, "", s.fail(step, fmt.Errorf("page carries no view state"))
	}

	s.markup, s.page = body, p
	s.token, s.tokenField, s.formID = p.token, p.tokenField, p.formID
	s.state = StatePageLoaded
	s.log.Debug("session acquired", "url", s.pageURL.Path, "form", s.formID)
	return body, s.token, nil
}

// ApplyFilter simulates a change event on an input component. The server's
// rotated view state replaces the current one; an envelope without one
// invalidates the session.
func (s *Session) ApplyFilter(ctx context.Context, fieldID, value string) (string, error) {
	const step = "apply filter"
	if !s.state.ready() {
		return "", s.fail(step, fmt.Errorf("no page loaded"))
	}

	form := s.baseForm()
	form.Set("javax.faces.source", fieldID)
	form.Set("javax.faces.partial.ajax", "true")
	form.Set("javax.faces.partial.execute", fieldID)
	form.Set("javax.faces.partial.render", "@form")
	form.Set("javax.faces.behavior.event", "change")
	form.Set("javax.faces.partial.event", "change")
	form.Set(fieldID, value)
	form.Set(fieldID+"_input", value)

	pr, err := s.ajax(ctx, form)
	if err != nil {
		return "", s.fail(step, err)
	}
	if err := s.rotate(pr); err != nil {
		return "", s.fail(step, err)
	}
	s.filters = slices.DeleteFunc(s.filters, func(f filter) bool { return f.field == fieldID })
	s.filters = append(s.filters, filter{field: fieldID, value: value})
	s.state = StateFilterApplied
	return s.token, nil
}

// TriggerExport submits the export control with every active filter and
// the download marker. Success is recognised only by an attachment
// Content-Disposition; the server answers 200 with a re-rendered page when
// it declines.
func (s *Session) TriggerExport(ctx context.Context, actionID string) ([]byte, string, error) {
	if !s.state.ready() {
		return nil, "", s.fail("trigger export", fmt.Errorf("no page loaded"))
	}
	s.jar.SetCookies(s.pageURL, []*http.Cookie{{Name: DownloadCookie, Value: "true", Path: "/"}})

	form := s.baseForm()
	form.Set(actionID, actionID)
	s.state = StateExportTriggered

	resp, err := s.client.PostForm(ctx, s.pageURL.String(), form, s.requestHeader())
	if err != nil {
		return nil, "", s.fail("trigger export", err)
	}
	defer resp.Body.Close()

	filename, ok := attachment(resp.Header.Get("Content-Disposition"))
	if !ok {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, "", s.fail("download", fmt.Errorf("%w: %s answered %s without an attachment",
			domain.ErrExportFailed, actionID, resp.Header.Get("Content-Type")))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", s.fail("download", fmt.Errorf("%w: read export: %w", domain.ErrExportFailed, err))
	}
	s.state = StateDownloaded
	s.log.Debug("export downloaded", "action", actionID, "file", filename, "bytes", len(data))
	return data, filename, nil
}

// PageFunc receives one datatable page. Returning an error stops paging.
type PageFunc func(page int, rows [][]string) error

// Paginate walks the datatable through ajax pagination requests, chaining
// the view state from each response into the next. Paging stops on an empty
// page, a page shorter than rows, or after maxPages.
func (s *Session) Paginate(ctx context.Context, tableID string, rows, maxPages int, fn PageFunc) error {
	const step = "paginate"
	if !s.state.ready() {
		return s.fail(step, fmt.Errorf("no page loaded"))
	}
	if rows <= 0 {
		rows = 50
	}
	for page := 0; maxPages <= 0 || page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return s.fail(step, err)
		}

		form := s.baseForm()
		form.Set("javax.faces.source", tableID)
		form.Set("javax.faces.partial.ajax", "true")
		form.Set("javax.faces.partial.execute", tableID)
		form.Set("javax.faces.partial.render", tableID)
		form.Set(tableID, tableID)
		form.Set(tableID+"_pagination", "true")
		form.Set(tableID+"_first", strconv.Itoa(page*rows))
		form.Set(tableID+"_rows", strconv.Itoa(rows))
		form.Set(tableID+"_page", strconv.Itoa(page+1))
		form.Set(tableID+"_skipChildren", "true")
		form.Set(tableID+"_encodeFeature", "true")

		pr, err := s.ajax(ctx, form)
		if err != nil {
			return s.fail(step, fmt.Errorf("page %d: %w", page, err))
		}
		if err := s.rotate(pr); err != nil {
			return s.fail(step, fmt.Errorf("page %d: %w", page, err))
		}
		got, err := pr.Rows(tableID)
		if err != nil {
			return s.fail(step, fmt.Errorf("page %d: %w", page, err))
		}
		if len(got) == 0 {
			return nil
		}
		if err := fn(page, got); err != nil {
			return err
		}
		if len(got) < rows {
			return nil
		}
	}
	s.log.Warn("max pages reached", "table", tableID, "max_pages", maxPages)
	return nil
}

// Header returns the column keys of a datatable on the loaded page.
func (s *Session) Header(tableID string) []string {
	if s.page == nil {
		return nil
	}
	return tableHeader(s.page.doc, tableID)
}

func (s *Session) baseForm() url.Values {
	form := url.Values{}
	if s.formID != "" {
		form.Set(s.formID, s.formID)
		form.Set(s.formID+"_SUBMIT", "1")
	}
	field := s.tokenField
	if field == "" {
		field = viewStateJavax
	}
	form.Set(field, s.token)
	for _, f := range s.filters {
		form.Set(f.field, f.value)
		form.Set(f.field+"_input", f.value)
	}
	return form
}

func (s *Session) requestHeader() http.Header {
	h := s.header.Clone()
	h.Set("Referer", s.pageURL.String())
	return h
}

func (s *Session) ajax(ctx context.Context, form url.Values) (*PartialResponse, error) {
	h := s.requestHeader()
	h.Set("Faces-Request", "partial/ajax")
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("Accept", "application/xml, text/xml, */*; q=0.01")

	resp, err := s.client.PostForm(ctx, s.pageURL.String(), form, h)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read partial response: %w", domain.ErrTransientNetwork, err)
	}
	pr, err := ParsePartialResponse(body)
	if err != nil {
		return nil, err
	}
	if err := pr.Err(); err != nil {
		return nil, err
	}
	return pr, nil
}

// rotate replaces the view state from an envelope. A missing view state
// means the next request would be rejected.
func (s *Session) rotate(pr *PartialResponse) error {
	tok := pr.ViewState()
	if tok == "" {
		return fmt.Errorf("response carried no view state")
	}
	s.token = tok
	return nil
}

func (s *Session) decode(body []byte) ([]byte, error) {
	dec, err := tabular.Decoder(s.encoding)
	if err != nil || dec == nil {
		return body, err
	}
	out, _, err := transform.Bytes(dec, body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", domain.ErrMalformedPayload, s.encoding, err)
	}
	return out, nil
}

// attachment parses a Content-Disposition header.
func attachment(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	disp, params, err := mime.ParseMediaType(header)
	if err != nil {
		return "", strings.HasPrefix(strings.ToLower(strings.TrimSpace(header)), "attachment")
	}
	if disp != "attachment" {
		return "", false
	}
	return params["filename"], true
}

package apipage

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/custodia-labs/sentinela/internal/collectors/httpx"
	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// Config holds the parsed configuration for a paginated JSON API source.
type Config struct {
	// URL is the collection endpoint.
	URL string

	// PageParam names the page-number query parameter. Default: "pagina".
	PageParam string

	// SizeParam names the page-size query parameter. Empty sends none.
	SizeParam string

	// PageSize is the requested page size. Zero disables the short-page check.
	PageSize int

	// StartPage is the first page number. Default: 1.
	StartPage int

	// MaxPages bounds a run. Default: 10000.
	MaxPages int

	// ItemsField is the dotted path to the item array. Empty means the body is the array.
	ItemsField string

	// TotalPagesField is the dotted path to an explicit page count, if the API has one.
	TotalPagesField string

	// Query holds extra query parameters (query.<name>).
	Query url.Values

	// Header holds request headers (header.<Name>).
	Header http.Header
}

// ParseConfig parses a source's config map into a Config struct.
func ParseConfig(source domain.Source) (*Config, error) {
	u, err := httpx.RequireString(source, "url")
	if err != nil {
		return nil, err
	}
	if _, err := url.Parse(u); err != nil {
		return nil, fmt.Errorf("%w: source %s: url: %w", domain.ErrConfigInvalid, source.ID, err)
	}

	cfg := &Config{
		URL:             u,
		PageParam:       httpx.StringOr(source, "page_param", "pagina"),
		SizeParam:       httpx.StringOr(source, "size_param", ""),
		ItemsField:      httpx.StringOr(source, "items_field", ""),
		TotalPagesField: httpx.StringOr(source, "total_pages_field", ""),
		Query:           make(url.Values),
		Header:          httpx.HeadersFromConfig(source.Config),
	}
	if cfg.PageSize, err = httpx.IntOr(source, "page_size", 0); err != nil {
		return nil, err
	}
	if cfg.StartPage, err = httpx.IntOr(source, "start_page", 1); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = httpx.IntOr(source, "max_pages", 10000); err != nil {
		return nil, err
	}
	if cfg.PageSize < 0 || cfg.MaxPages < 1 {
		return nil, fmt.Errorf("%w: source %s: page_size and max_pages must be positive", domain.ErrConfigInvalid, source.ID)
	}
	for k, v := range httpx.Prefixed(source.Config, "query.") {
		cfg.Query.Set(k, v)
	}
	return cfg, nil
}

// pageURL returns the URL for page n.
func (c *Config) pageURL(n int) (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range c.Query {
		q[k] = vs
	}
	q.Set(c.PageParam, fmt.Sprint(n))
	if c.SizeParam != "" && c.PageSize > 0 {
		q.Set(c.SizeParam, fmt.Sprint(c.PageSize))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

package jsf

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/custodia-labs/sentinela/internal/collectors/httpx"
	"github.com/custodia-labs/sentinela/internal/collectors/tabular"
	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// Mode selects how rows are pulled from the page.
type Mode string

const (
	// ModeAuto tries the export control and falls back to pagination.
	ModeAuto Mode = "auto"
	// ModeExport only uses the export control.
	ModeExport Mode = "export"
	// ModePaginate only pages through the datatable.
	ModePaginate Mode = "paginate"
)

// Field is a filter component and the value to set on it.
type Field struct {
	ID    string
	Value string
}

// Config holds the parsed configuration for a stateful-protocol source.
type Config struct {
	URL string

	// ExportLabel is matched against control text and handlers. Default: CSV.
	ExportLabel string

	// Fields are applied in id order before exporting or paging.
	Fields []Field

	// TableID is the datatable client id. Discovered when empty.
	TableID string

	// Rows per pagination request. Default: 50.
	Rows int

	// MaxPages bounds pagination. Default: 500.
	MaxPages int

	Mode Mode

	// PageEncoding is the declared charset of the page. Default: utf-8.
	PageEncoding string

	// Export is the format of the exported file.
	Export tabular.Options

	Header http.Header
}

// ParseConfig parses a source's config map into a Config struct.
func ParseConfig(source domain.Source) (*Config, error) {
	u, err := httpx.RequireString(source, "url")
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		URL:          u,
		ExportLabel:  httpx.StringOr(source, "export_label", "CSV"),
		TableID:      httpx.StringOr(source, "table_id", ""),
		Mode:         Mode(httpx.StringOr(source, "mode", string(ModeAuto))),
		PageEncoding: httpx.StringOr(source, "page_encoding", "utf-8"),
		Header:       httpx.HeadersFromConfig(source.Config),
	}
	switch cfg.Mode {
	case ModeAuto, ModeExport, ModePaginate:
	default:
		return nil, fmt.Errorf("%w: source %s: unknown mode %q", domain.ErrConfigInvalid, source.ID, cfg.Mode)
	}
	if cfg.Rows, err = httpx.IntOr(source, "rows", 50); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = httpx.IntOr(source, "max_pages", 500); err != nil {
		return nil, err
	}
	if cfg.Rows <= 0 {
		return nil, fmt.Errorf("%w: source %s: rows must be positive", domain.ErrConfigInvalid, source.ID)
	}
	if _, err := tabular.Decoder(cfg.PageEncoding); err != nil {
		return nil, fmt.Errorf("source %s: %w", source.ID, err)
	}
	if cfg.Export, err = tabular.OptionsFromConfig(source.Config, "iso-8859-1"); err != nil {
		return nil, fmt.Errorf("source %s: %w", source.ID, err)
	}

	for id, v := range httpx.Prefixed(source.Config, "field.") {
		cfg.Fields = append(cfg.Fields, Field{ID: id, Value: v})
	}
	sort.Slice(cfg.Fields, func(i, j int) bool { return cfg.Fields[i].ID < cfg.Fields[j].ID })
	return cfg, nil
}

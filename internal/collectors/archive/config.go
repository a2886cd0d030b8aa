package archive

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/custodia-labs/sentinela/internal/collectors/httpx"
	"github.com/custodia-labs/sentinela/internal/collectors/tabular"
	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// Config holds the parsed configuration for a bulk-archive source.
type Config struct {
	// URL is the archive location.
	URL string

	// MemberPattern selects members by name. Nil selects by extension only.
	MemberPattern *regexp.Regexp

	// Extension is the data file extension. Default: ".csv".
	Extension string

	// Format describes the delimited files inside.
	Format tabular.Options

	// Header holds request headers (header.<Name>).
	Header http.Header
}

// ParseConfig parses a source's config map into a Config struct.
// Archives default to ISO-8859-1, the encoding electoral bulk files ship in.
func ParseConfig(source domain.Source) (*Config, error) {
	u, err := httpx.RequireString(source, "url")
	if err != nil {
		return nil, err
	}
	format, err := tabular.OptionsFromConfig(source.Config, "iso-8859-1")
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", source.ID, err)
	}

	cfg := &Config{
		URL:       u,
		Extension: strings.ToLower(httpx.StringOr(source, "extension", ".csv")),
		Format:    format,
		Header:    httpx.HeadersFromConfig(source.Config),
	}
	if !strings.HasPrefix(cfg.Extension, ".") {
		cfg.Extension = "." + cfg.Extension
	}
	if p := httpx.StringOr(source, "member_pattern", ""); p != "" {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: source %s: member_pattern: %w", domain.ErrConfigInvalid, source.ID, err)
		}
		cfg.MemberPattern = re
	}
	return cfg, nil
}

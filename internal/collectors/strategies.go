package collectors

import (
	"slices"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// ConfigKey documents one source config key.
type ConfigKey struct {
	Key         string
	Description string
	Default     string
	Required    bool
}

// StrategyInfo describes a strategy for listings and config validation.
type StrategyInfo struct {
	Strategy    domain.Strategy
	Description string
	ConfigKeys  []ConfigKey
}

// commonKeys apply to every HTTP strategy.
var commonKeys = []ConfigKey{
	{Key: "url", Description: "Endpoint or page URL", Required: true},
	{Key: "header.<Name>", Description: "Request header; env:VAR reads the environment"},
	{Key: "min_delay", Description: "Minimum delay between requests", Default: "700ms"},
}

var formatKeys = []ConfigKey{
	{Key: "encoding", Description: "Declared file encoding: utf-8, iso-8859-1, windows-1252"},
	{Key: "delimiter", Description: "Field delimiter", Default: ";"},
	{Key: "skip_lines", Description: "Metadata lines before the header", Default: "0"},
	{Key: "filters", Description: "Keep rows where COL=value (comma separated)"},
}

// Strategies describes the built-in strategies.
func Strategies() []StrategyInfo {
	return []StrategyInfo{
		{
			Strategy:    domain.StrategyPaginatedAPI,
			Description: "JSON API walked page by page",
			ConfigKeys: append(slices.Clone(commonKeys),
				ConfigKey{Key: "page_param", Description: "Page number parameter", Default: "pagina"},
				ConfigKey{Key: "size_param", Description: "Page size parameter"},
				ConfigKey{Key: "page_size", Description: "Requested page size; enables the short-page stop"},
				ConfigKey{Key: "start_page", Description: "First page number", Default: "1"},
				ConfigKey{Key: "max_pages", Description: "Page bound per run", Default: "10000"},
				ConfigKey{Key: "items_field", Description: "Dotted path to the item array"},
				ConfigKey{Key: "total_pages_field", Description: "Dotted path to the page count"},
				ConfigKey{Key: "query.<name>", Description: "Extra query parameter"},
			),
		},
		{
			Strategy:    domain.StrategyBulkArchive,
			Description: "Zip archive of delimited files",
			ConfigKeys: append(append(slices.Clone(commonKeys), formatKeys...),
				ConfigKey{Key: "member_pattern", Description: "Regular expression selecting members"},
				ConfigKey{Key: "extension", Description: "Data file extension", Default: ".csv"},
			),
		},
		{
			Strategy:    domain.StrategyStatefulProtocol,
			Description: "JavaServer Faces page driven through its export control or datatable",
			ConfigKeys: append(append(slices.Clone(commonKeys), formatKeys...),
				ConfigKey{Key: "export_label", Description: "Label of the export control", Default: "CSV"},
				ConfigKey{Key: "field.<component id>", Description: "Filter value applied before export"},
				ConfigKey{Key: "mode", Description: "auto, export or paginate", Default: "auto"},
				ConfigKey{Key: "table_id", Description: "Datatable client id; discovered when empty"},
				ConfigKey{Key: "rows", Description: "Rows per datatable page", Default: "50"},
				ConfigKey{Key: "max_pages", Description: "Datatable page bound", Default: "500"},
				ConfigKey{Key: "page_encoding", Description: "Declared page encoding", Default: "utf-8"},
			),
		},
		{
			Strategy:    domain.StrategyStaticTable,
			Description: "Rendered HTML table",
			ConfigKeys: append(slices.Clone(commonKeys),
				ConfigKey{Key: "table_id", Description: "Table element id"},
				ConfigKey{Key: "table_index", Description: "Table position when no id is given", Default: "0"},
				ConfigKey{Key: "encoding", Description: "Declared page encoding", Default: "utf-8"},
			),
		},
	}
}

// Describe returns the info for one strategy.
func Describe(strategy domain.Strategy) (StrategyInfo, bool) {
	for _, info := range Strategies() {
		if info.Strategy == strategy {
			return info, true
		}
	}
	return StrategyInfo{}, false
}

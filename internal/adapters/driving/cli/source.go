package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sentinela/internal/collectors"
	"github.com/custodia-labs/sentinela/internal/core/domain"
)

var (
	sourceAddStrategy string
	sourceAddDataset  string
	sourceAddName     string
	sourceAddInterval time.Duration
	sourceAddSettings []string
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage data sources",
	Long: `Sources are usually declared in the [sources] tables of config.toml and
mirrored into the store at startup. These commands inspect them and manage
ad-hoc sources.`,
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources",
	Args:  cobra.NoArgs,
	RunE:  runSourceList,
}

var sourceShowCmd = &cobra.Command{
	Use:   "show <source-id>",
	Short: "Show a source configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceShow,
}

var sourceAddCmd = &cobra.Command{
	Use:   "add <source-id>",
	Short: "Add a source",
	Example: `  sentinela source add sanctions --strategy paginated_api --dataset ceis \
    --set url=https://api.portaldatransparencia.gov.br/api-de-dados/ceis \
    --set api_key=env:CGU_API_KEY`,
	Args: cobra.ExactArgs(1),
	RunE: runSourceAdd,
}

var sourceRemoveCmd = &cobra.Command{
	Use:   "remove <source-id>",
	Short: "Remove a source and its collection state",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceRemove,
}

var sourceStrategiesCmd = &cobra.Command{
	Use:         "strategies [strategy]",
	Short:       "List collector strategies, or the config keys of one",
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{skipBootstrap: "true"},
	RunE:        runSourceStrategies,
}

func init() {
	flags := sourceAddCmd.Flags()
	flags.StringVar(&sourceAddStrategy, "strategy", "", "Collector strategy (see 'source strategies')")
	flags.StringVar(&sourceAddDataset, "dataset", "", "Dataset name, which selects the schema mapper")
	flags.StringVar(&sourceAddName, "name", "", "Display name")
	flags.DurationVar(&sourceAddInterval, "refresh-interval", 0, "Skip collection while the last run is newer than this")
	flags.StringArrayVar(&sourceAddSettings, "set", nil, "Strategy setting as key=value (repeatable)")

	sourceCmd.AddCommand(sourceListCmd)
	sourceCmd.AddCommand(sourceShowCmd)
	sourceCmd.AddCommand(sourceAddCmd)
	sourceCmd.AddCommand(sourceRemoveCmd)
	sourceCmd.AddCommand(sourceStrategiesCmd)
	rootCmd.AddCommand(sourceCmd)
}

func runSourceList(cmd *cobra.Command, _ []string) error {
	if sourceService == nil {
		return errors.New("source service not configured")
	}

	sources, err := sourceService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing sources: %w", err)
	}
	if len(sources) == 0 {
		cmd.Println("No sources configured.")
		return nil
	}
	for _, s := range sources {
		cmd.Printf("%-20s %-18s %-24s %s\n", s.ID, s.Strategy, s.Dataset, s.DisplayName())
	}
	return nil
}

func runSourceShow(cmd *cobra.Command, args []string) error {
	if sourceService == nil {
		return errors.New("source service not configured")
	}

	s, err := sourceService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("getting source: %w", err)
	}

	cmd.Printf("ID:        %s\n", s.ID)
	cmd.Printf("Name:      %s\n", s.DisplayName())
	cmd.Printf("Strategy:  %s\n", s.Strategy)
	cmd.Printf("Dataset:   %s\n", s.Dataset)
	if s.RefreshInterval > 0 {
		cmd.Printf("Refresh:   %s\n", s.RefreshInterval)
	}
	keys := make([]string, 0, len(s.Config))
	for k := range s.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Printf("  %s = %s\n", k, maskSetting(k, s.Config[k]))
	}
	return nil
}

func runSourceAdd(cmd *cobra.Command, args []string) error {
	if sourceService == nil {
		return errors.New("source service not configured")
	}

	settings, err := parseSettings(sourceAddSettings)
	if err != nil {
		return err
	}
	source := domain.Source{
		ID:              args[0],
		Strategy:        domain.Strategy(sourceAddStrategy),
		Dataset:         sourceAddDataset,
		Name:            sourceAddName,
		Config:          settings,
		RefreshInterval: sourceAddInterval,
	}
	if err := sourceService.Add(cmd.Context(), source); err != nil {
		return fmt.Errorf("adding source: %w", err)
	}
	cmd.Printf("Source %s added.\n", source.ID)
	return nil
}

func runSourceRemove(cmd *cobra.Command, args []string) error {
	if sourceService == nil {
		return errors.New("source service not configured")
	}

	if err := sourceService.Remove(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("removing source: %w", err)
	}
	cmd.Printf("Source %s removed.\n", args[0])
	return nil
}

func runSourceStrategies(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		for _, info := range collectors.Strategies() {
			cmd.Printf("%-18s %s\n", info.Strategy, info.Description)
		}
		return nil
	}

	info, ok := collectors.Describe(domain.Strategy(args[0]))
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedStrategy, args[0])
	}
	cmd.Printf("%s: %s\n\n", info.Strategy, info.Description)
	for _, key := range info.ConfigKeys {
		line := fmt.Sprintf("  %-22s %s", key.Key, key.Description)
		if key.Required {
			line += " (required)"
		}
		if key.Default != "" {
			line += fmt.Sprintf(" [default %s]", key.Default)
		}
		cmd.Println(line)
	}
	return nil
}

// parseSettings turns repeated key=value flags into a config map.
func parseSettings(pairs []string) (map[string]string, error) {
	settings := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: setting %q is not key=value", domain.ErrInvalidInput, pair)
		}
		settings[key] = value
	}
	return settings, nil
}

// maskSetting hides secrets that were stored literally rather than as env references.
func maskSetting(key, value string) string {
	lower := strings.ToLower(key)
	secret := strings.Contains(lower, "key") || strings.Contains(lower, "token") || strings.Contains(lower, "password")
	if !secret || strings.HasPrefix(value, "env:") {
		return value
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

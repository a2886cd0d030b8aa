package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

var (
	entityFindID            string
	entityFindName          string
	entityFindDisambiguator string
	entityDecisionsLimit    int
)

var entityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Inspect resolved entities",
	Long: `Look up the canonical people and organisations the resolver built,
and review the decisions it logged while merging them.`,
}

var entityShowCmd = &cobra.Command{
	Use:   "show <entity-id>",
	Short: "Show a canonical entity",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntityShow,
}

var entityFindCmd = &cobra.Command{
	Use:   "find",
	Short: "Find entities by identifier or by name and disambiguator",
	Long: `Find a canonical entity.

With --id, the raw national identifier is normalised first, so masked and
punctuated forms are accepted. With --name and --disambiguator (for example
a birth date), every entity sharing the composite key is listed.`,
	Args: cobra.NoArgs,
	RunE: runEntityFind,
}

var entityDecisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Show the resolver decision log, newest first",
	Args:  cobra.NoArgs,
	RunE:  runEntityDecisions,
}

var entityHintsCmd = &cobra.Command{
	Use:   "hints",
	Short: "Suggest possible kinship between employees and vendor partners",
	Long: `Compares surnames of public employees and company partners.
Hints are suggestions for manual review and never merge entities.`,
	Args: cobra.NoArgs,
	RunE: runEntityHints,
}

func init() {
	entityFindCmd.Flags().StringVar(&entityFindID, "id", "", "Raw national identifier")
	entityFindCmd.Flags().StringVar(&entityFindName, "name", "", "Name as it appears in the source")
	entityFindCmd.Flags().StringVar(&entityFindDisambiguator, "disambiguator", "", "Secondary key, such as a birth date")
	entityDecisionsCmd.Flags().IntVar(&entityDecisionsLimit, "limit", 20, "Maximum number of entries (0 = all)")

	entityCmd.AddCommand(entityShowCmd)
	entityCmd.AddCommand(entityFindCmd)
	entityCmd.AddCommand(entityDecisionsCmd)
	entityCmd.AddCommand(entityHintsCmd)
	rootCmd.AddCommand(entityCmd)
}

func runEntityShow(cmd *cobra.Command, args []string) error {
	if entityLookup == nil {
		return errors.New("entity service not configured")
	}

	entity, err := entityLookup.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("getting entity: %w", err)
	}
	printEntity(cmd, entity)
	return nil
}

func runEntityFind(cmd *cobra.Command, _ []string) error {
	if entityLookup == nil {
		return errors.New("entity service not configured")
	}

	ctx := cmd.Context()
	switch {
	case entityFindID != "":
		entity, err := entityLookup.FindByIdentifier(ctx, entityFindID)
		if err != nil {
			return fmt.Errorf("finding entity: %w", err)
		}
		printEntity(cmd, entity)
	case entityFindName != "":
		entities, err := entityLookup.FindByKey(ctx, entityFindName, entityFindDisambiguator)
		if err != nil {
			return fmt.Errorf("finding entities: %w", err)
		}
		if len(entities) == 0 {
			cmd.Println("No entities found.")
			return nil
		}
		for i := range entities {
			if i > 0 {
				cmd.Println()
			}
			printEntity(cmd, &entities[i])
		}
	default:
		return fmt.Errorf("%w: either --id or --name is required", domain.ErrInvalidInput)
	}
	return nil
}

func runEntityDecisions(cmd *cobra.Command, _ []string) error {
	if entityLookup == nil {
		return errors.New("entity service not configured")
	}

	decisions, err := entityLookup.Decisions(cmd.Context(), entityDecisionsLimit)
	if err != nil {
		return fmt.Errorf("listing decisions: %w", err)
	}
	if len(decisions) == 0 {
		cmd.Println("No decisions logged.")
		return nil
	}

	for _, d := range decisions {
		switch d.Kind {
		case domain.DecisionIdentifierUpgrade:
			cmd.Printf("%s  upgrade    %s: %s -> %s (source %s)\n",
				d.CreatedAt.Format("2006-01-02 15:04"), d.EntityID, d.Previous, d.Current, d.SourceID)
		default:
			cmd.Printf("%s  ambiguous  key %q kept distinct: %v (source %s)\n",
				d.CreatedAt.Format("2006-01-02 15:04"), d.ResolutionKey, d.CandidateIDs, d.SourceID)
		}
	}
	return nil
}

func runEntityHints(cmd *cobra.Command, _ []string) error {
	if entityLookup == nil {
		return errors.New("entity service not configured")
	}

	hints, err := entityLookup.SuggestRelationships(cmd.Context())
	if err != nil {
		return fmt.Errorf("suggesting relationships: %w", err)
	}
	if len(hints) == 0 {
		cmd.Println("No hints.")
		return nil
	}
	for _, h := range hints {
		cmd.Printf("%.2f  %s ~ %s  %s\n", h.Similarity, h.FromID, h.ToID, h.Reason)
	}
	return nil
}

func printEntity(cmd *cobra.Command, e *domain.CanonicalEntity) {
	cmd.Printf("ID:          %s\n", e.ID)
	cmd.Printf("Kind:        %s\n", e.Kind)
	cmd.Printf("Name:        %s\n", e.CanonicalName)
	cmd.Printf("Identifier:  %s (%s)\n", e.Identifier, e.Identifier.Kind)
	for _, alias := range e.Aliases {
		cmd.Printf("Alias:       %s (%s)\n", alias, alias.Kind)
	}
	if e.ResolutionKey != "" {
		cmd.Printf("Key:         %s\n", e.ResolutionKey)
	}

	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Printf("  %-12s %s\n", k+":", e.Attributes[k])
	}
}

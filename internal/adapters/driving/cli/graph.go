package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Mirror entities and insights into the graph database",
}

var graphExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export entities, relationships and insights to Neo4j",
	Long: `Upserts every canonical entity, its relationships and every stored
insight into the configured Neo4j database. Exports are idempotent, so
running this again only refreshes what changed.`,
	Args: cobra.NoArgs,
	RunE: runGraphExport,
}

func init() {
	graphCmd.AddCommand(graphExportCmd)
	rootCmd.AddCommand(graphCmd)
}

func runGraphExport(cmd *cobra.Command, _ []string) error {
	if graphExporter == nil {
		return errors.New("graph store not configured (set neo4j.uri)")
	}

	cmd.Println("Exporting to graph...")
	report, err := graphExporter.Export(cmd.Context())
	if err != nil {
		return fmt.Errorf("graph export failed: %w", err)
	}
	cmd.Printf("Exported %d entities, %d relationships, %d insights and %d evidence links.\n",
		report.Entities, report.Relationships, report.Insights, report.Links)
	return nil
}

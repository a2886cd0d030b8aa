package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driving"
)

var ingestForce bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [source-id...]",
	Short: "Collect rows from configured sources",
	Long: `Runs the collectors for configured sources, stores rows not seen before
and resolves them into canonical entities.

If source IDs are provided, only those sources are collected. Otherwise,
every configured source is collected. Sources whose last successful run is
newer than their refresh interval are skipped unless --force is given.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "Collect even when the source is fresh")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestCoordinator == nil {
		return errors.New("ingest service not configured")
	}

	ctx := cmd.Context()

	var reports map[string]domain.CollectionReport
	if len(args) > 0 {
		triggers := make([]domain.Trigger, 0, len(args))
		for _, id := range args {
			triggers = append(triggers, domain.Trigger{SourceID: id, ForceRefresh: ingestForce})
		}
		cmd.Printf("Collecting %d source(s)...\n", len(triggers))
		reports = ingestWithProgress(ctx, cmd, ingestCoordinator, triggers)
	} else {
		cmd.Println("Collecting all sources...")
		var err error
		reports, err = ingestCoordinator.RunAll(ctx, ingestForce)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
	}

	return printCollectionReports(cmd, reports)
}

// ingestWithProgress runs the triggers while showing row counts for a
// single source on an interactive terminal.
func ingestWithProgress(
	ctx context.Context,
	cmd *cobra.Command,
	coordinator driving.IngestCoordinator,
	triggers []domain.Trigger,
) map[string]domain.CollectionReport {
	if len(triggers) != 1 || !isTerminal(os.Stdout) {
		return coordinator.Run(ctx, triggers)
	}

	done := make(chan map[string]domain.CollectionReport, 1)
	go func() {
		done <- coordinator.Run(ctx, triggers)
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	sourceID := triggers[0].SourceID
	lastCount := 0
	for {
		select {
		case reports := <-done:
			if lastCount > 0 {
				cmd.Println()
			}
			return reports
		case <-ticker.C:
			// Best effort: a status error only skips this refresh.
			status, err := coordinator.Status(ctx, sourceID)
			if err == nil && status != nil && status.RowsSeen > lastCount {
				cmd.Printf("\rCollecting %s... %d rows (%d new)", sourceID, status.RowsSeen, status.RowsNew)
				lastCount = status.RowsSeen
			}
		}
	}
}

// printCollectionReports prints one line per source and fails when any source failed.
func printCollectionReports(cmd *cobra.Command, reports map[string]domain.CollectionReport) error {
	ids := make([]string, 0, len(reports))
	for id := range reports {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	failed := 0
	for _, id := range ids {
		r := reports[id]
		switch {
		case r.Failed():
			failed++
			cmd.Printf("  %-24s FAILED (%s): %v\n", id, domain.Classify(r.Err), r.Err)
		case r.Fresh:
			cmd.Printf("  %-24s fresh, skipped\n", id)
		default:
			cmd.Printf("  %-24s %d rows, %d new, %d skipped in %s\n",
				id, r.RowsSeen, r.RowsNew, r.RowsSkipped, r.Duration.Round(time.Millisecond))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(reports))
	}
	cmd.Printf("Collected %d source(s).\n", len(reports))
	return nil
}

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

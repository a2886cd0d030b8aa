package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var detectList bool

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run the anomaly detectors",
	Long: `Runs every registered detector over the resolved entities and events,
then stores the insights they produce. Insights already stored are refreshed
in place and keep their review status.

A detector that fails is reported and does not stop the others.`,
	Args: cobra.NoArgs,
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().BoolVar(&detectList, "list", false, "List registered detectors and exit")
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, _ []string) error {
	if detectionService == nil {
		return errors.New("detection service not configured")
	}

	if detectList {
		for _, id := range detectionService.Detectors() {
			cmd.Println(id)
		}
		return nil
	}

	cmd.Println("Running detectors...")
	report, err := detectionService.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	for _, o := range report.Outcomes {
		if o.Err != nil {
			cmd.Printf("  %-24s FAILED: %v\n", o.DetectorID, o.Err)
			continue
		}
		cmd.Printf("  %-24s %d insight(s) in %s\n", o.DetectorID, o.Insights, o.Duration.Round(time.Millisecond))
	}
	cmd.Printf("Run %s: %d new, %d refreshed.\n", report.RunID, report.New, report.Refreshed)

	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d detectors failed", len(failed), len(report.Outcomes))
	}
	return nil
}

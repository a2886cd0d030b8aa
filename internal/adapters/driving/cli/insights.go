package cli

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/detectors"
)

var (
	insightsDetector    string
	insightsMinSeverity string
	insightsStatus      string
	insightsEntity      string
	insightsLimit       int
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Review detected insights",
	Long: `List, inspect and review insights produced by the detectors.

Insights move through DETECTED, UNDER_REVIEW, ESCALATED and RESOLVED.
Escalating or resolving requires the insight to be under review first.`,
}

var insightsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List insights, most severe first",
	Args:  cobra.NoArgs,
	RunE:  runInsightsList,
}

var insightsShowCmd = &cobra.Command{
	Use:   "show <insight-id>",
	Short: "Show an insight and its evidence",
	Args:  cobra.ExactArgs(1),
	RunE:  runInsightsShow,
}

var insightsStatusCmd = &cobra.Command{
	Use:   "status <insight-id> <status>",
	Short: "Move an insight through the review workflow",
	Args:  cobra.ExactArgs(2),
	RunE:  runInsightsStatus,
}

func init() {
	flags := insightsListCmd.Flags()
	flags.StringVar(&insightsDetector, "detector", "", "Only insights from this detector")
	flags.StringVar(&insightsMinSeverity, "min-severity", "", "Minimum severity (LOW, MEDIUM, HIGH, CRITICAL)")
	flags.StringVar(&insightsStatus, "status", "", "Only insights in this status")
	flags.StringVar(&insightsEntity, "entity", "", "Only insights citing this entity")
	flags.IntVar(&insightsLimit, "limit", 50, "Maximum number of insights (0 = all)")

	insightsCmd.AddCommand(insightsListCmd)
	insightsCmd.AddCommand(insightsShowCmd)
	insightsCmd.AddCommand(insightsStatusCmd)
	rootCmd.AddCommand(insightsCmd)
}

func runInsightsList(cmd *cobra.Command, _ []string) error {
	if insightService == nil {
		return errors.New("insight service not configured")
	}

	filter := domain.InsightFilter{
		DetectorID: insightsDetector,
		EntityID:   insightsEntity,
		Limit:      insightsLimit,
	}
	if insightsMinSeverity != "" {
		sev, err := domain.ParseSeverity(insightsMinSeverity)
		if err != nil {
			return err
		}
		filter.MinSeverity = sev
	}
	if insightsStatus != "" {
		status, err := domain.ParseStatus(insightsStatus)
		if err != nil {
			return err
		}
		filter.Status = status
	}

	insights, err := insightService.List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("listing insights: %w", err)
	}
	if len(insights) == 0 {
		cmd.Println("No insights found.")
		return nil
	}

	for _, in := range insights {
		cmd.Printf("%-8s %2d%%  %-14s %s  %s\n",
			in.Severity, in.Confidence, in.Status, shortID(in.ID), in.Title)
	}
	return nil
}

func runInsightsShow(cmd *cobra.Command, args []string) error {
	if insightService == nil {
		return errors.New("insight service not configured")
	}

	id, err := resolveInsightID(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	in, err := insightService.Get(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("getting insight: %w", err)
	}

	cmd.Printf("ID:          %s\n", in.ID)
	cmd.Printf("Detector:    %s\n", in.DetectorID)
	cmd.Printf("Title:       %s\n", in.Title)
	cmd.Printf("Severity:    %s\n", in.Severity)
	cmd.Printf("Confidence:  %d%%\n", in.Confidence)
	cmd.Printf("Exposure:    %.2f\n", in.ExposureAmount)
	cmd.Printf("Status:      %s\n", in.Status)
	cmd.Printf("Detected:    %s\n", in.CreatedAt.Format("2006-01-02 15:04"))
	cmd.Printf("\n%s\n", in.Description)
	if citation := detectors.LegalBasis(in.LegalBasisTag); citation != "" {
		cmd.Printf("\nLegal basis (%s): %s\n", in.LegalBasisTag, citation)
	}

	if len(in.Evidence) > 0 {
		cmd.Println("\nEvidence:")
		for _, ref := range in.Evidence {
			target := ref.EntityID
			if ref.EventID != "" {
				target += " / " + ref.EventID
			}
			cmd.Printf("  %-12s %s\n", ref.Role, target)
		}
	}
	return nil
}

func runInsightsStatus(cmd *cobra.Command, args []string) error {
	if insightService == nil {
		return errors.New("insight service not configured")
	}

	status, err := domain.ParseStatus(args[1])
	if err != nil {
		return err
	}
	id, err := resolveInsightID(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := insightService.UpdateStatus(cmd.Context(), id, status); err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	cmd.Printf("Insight %s is now %s.\n", shortID(id), status)
	return nil
}

// shortIDLength is how many hex characters of an insight id are shown in tables.
const shortIDLength = 12

// shortID abbreviates a hex insight id for tables.
func shortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}

// resolveInsightID expands an abbreviated id shown by "insights list".
func resolveInsightID(ctx context.Context, arg string) (string, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if len(arg) == sha256.Size*2 {
		return arg, nil
	}
	all, err := insightService.List(ctx, domain.InsightFilter{})
	if err != nil {
		return "", fmt.Errorf("listing insights: %w", err)
	}
	var matches []string
	for _, in := range all {
		if strings.HasPrefix(in.ID, arg) {
			matches = append(matches, in.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("insight %s: %w", arg, domain.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: id prefix %s matches %d insights", domain.ErrInvalidInput, arg, len(matches))
	}
}

// Package cli provides the sentinela command-line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/core/ports/driving"
	"github.com/custodia-labs/sentinela/internal/logger"
)

// Services holds the driving ports the commands call.
// Nil fields leave the matching commands unconfigured.
type Services struct {
	Ingest    driving.IngestCoordinator
	Detection driving.DetectionService
	Insights  driving.InsightService
	Entities  driving.EntityLookup
	Sources   driving.SourceService
	Graph     driving.GraphExporter
	Scheduler driving.Scheduler
	Config    driven.ConfigStore
}

// Bootstrap builds the services once flags are parsed.
// The returned cleanup runs after the command finishes.
type Bootstrap func(configDir string) (*Services, func(), error)

// skipBootstrap marks commands that run without services.
const skipBootstrap = "skip-bootstrap"

var (
	version   = "dev"
	bootstrap Bootstrap
	cleanup   func()

	verbose   bool
	configDir string

	ingestCoordinator driving.IngestCoordinator
	detectionService  driving.DetectionService
	insightService    driving.InsightService
	entityLookup      driving.EntityLookup
	sourceService     driving.SourceService
	graphExporter     driving.GraphExporter
	scheduler         driving.Scheduler
	configStore       driven.ConfigStore
)

var rootCmd = &cobra.Command{
	Use:   "sentinela",
	Short: "Detect anomalies in public spending data",
	Long: `Sentinela collects public-spending datasets from government portals,
resolves the people and companies they mention into canonical entities,
and runs anomaly detectors that produce reviewable insights.`,
	SilenceUsage:      true,
	PersistentPreRunE: runBootstrap,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Configuration directory (default ~/.sentinela)")
}

// SetVersion sets the version printed by the version command.
func SetVersion(v string) {
	version = v
}

// SetBootstrap registers the function that wires services for a command.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// SetServices installs the driving ports used by the commands.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	ingestCoordinator = s.Ingest
	detectionService = s.Detection
	insightService = s.Insights
	entityLookup = s.Entities
	sourceService = s.Sources
	graphExporter = s.Graph
	scheduler = s.Scheduler
	configStore = s.Config
}

// Execute runs the root command and releases whatever the bootstrap opened.
func Execute() error {
	err := rootCmd.Execute()
	if cleanup != nil {
		cleanup()
		cleanup = nil
	}
	return err
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if bootstrap == nil || cmd.Annotations[skipBootstrap] == "true" {
		return nil
	}
	services, done, err := bootstrap(configDir)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	SetServices(services)
	cleanup = done
	return nil
}

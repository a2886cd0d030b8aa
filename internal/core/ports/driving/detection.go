package driving

import (
	"context"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// DetectionService runs every registered detector over the resolved data.
type DetectionService interface {
	// Run evaluates all detectors concurrently and persists their insights.
	// A failing detector is reported in the outcome and does not affect the others.
	Run(ctx context.Context) (*domain.DetectionReport, error)

	// Detectors returns the registered detector IDs.
	Detectors() []string
}

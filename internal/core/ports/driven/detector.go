package driven

import (
	"context"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// Detector is a pure rule over a detection set.
// Detectors share no mutable state and must not modify the set.
type Detector interface {
	// ID returns the stable detector identifier, part of every insight ID.
	ID() string

	// Detect returns candidate insights with IDs assigned and status DETECTED.
	Detect(ctx context.Context, set *domain.DetectionSet) ([]domain.Insight, error)
}

// DetectorRegistry holds the detectors a run executes.
type DetectorRegistry interface {
	// Register adds a detector. A second detector with the same ID replaces the first.
	Register(d Detector)

	// Get returns a detector by ID.
	Get(id string) (Detector, bool)

	// All returns the registered detectors ordered by ID.
	All() []Detector
}

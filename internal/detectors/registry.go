package detectors

import (
	"slices"
	"strings"
	"sync"

	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.DetectorRegistry = (*Registry)(nil)

// Registry maps detector IDs to detectors.
type Registry struct {
	mu        sync.RWMutex
	detectors map[string]driven.Detector
}

// NewRegistry creates an empty detector registry.
func NewRegistry() *Registry {
	return &Registry{
		detectors: make(map[string]driven.Detector),
	}
}

// Register adds a detector. A later detector with the same ID replaces the earlier one.
func (r *Registry) Register(d driven.Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors[d.ID()] = d
}

// Get returns the detector with the given ID.
func (r *Registry) Get(id string) (driven.Detector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[id]
	return d, ok
}

// All returns the registered detectors ordered by ID.
func (r *Registry) All() []driven.Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]driven.Detector, 0, len(r.detectors))
	for _, d := range r.detectors {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b driven.Detector) int { return strings.Compare(a.ID(), b.ID()) })
	return out
}

// RegisterDefaults registers every built-in detector with cfg, skipping the
// IDs listed in cfg.Disabled.
func RegisterDefaults(r *Registry, cfg Config) {
	all := []driven.Detector{
		NewStatisticalOutlier(cfg),
		NewBidSplitting(cfg),
		NewBlockTravel(cfg),
		NewMarketConcentration(cfg),
		NewSanctions(cfg),
		NewWeekendPayment(cfg),
		NewSurnameRelationship(cfg),
		NewDonationContract(cfg),
		NewAssetGrowth(cfg),
		NewSalaryCeiling(cfg),
		NewPoliticalPartner(cfg),
		NewDirectAward(cfg),
	}
	for _, d := range all {
		if slices.Contains(cfg.Disabled, d.ID()) {
			continue
		}
		r.Register(d)
	}
}

// Default returns a registry holding every built-in detector with default thresholds.
func Default() *Registry {
	r := NewRegistry()
	RegisterDefaults(r, DefaultConfig())
	return r
}

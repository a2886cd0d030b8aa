package normalisers

import (
	"slices"
	"sync"

	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.MapperRegistry = (*Registry)(nil)

// Dataset names handled by the built-in mappers.
const (
	DatasetPayroll         = "payroll"
	DatasetTravel          = "travel"
	DatasetContracts       = "contracts"
	DatasetSanctions       = "sanctions"
	DatasetDonations       = "donations"
	DatasetCandidates      = "candidates"
	DatasetCandidateAssets = "candidate_assets"
	DatasetPartners        = "partners"
)

// Registry maps dataset names to their schema mappers.
type Registry struct {
	mu      sync.RWMutex
	mappers map[string]driven.SchemaMapper
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{mappers: make(map[string]driven.SchemaMapper)}
}

// Default creates a registry holding every built-in mapper.
func Default() *Registry {
	r := NewRegistry()
	RegisterDefaults(r)
	return r
}

// RegisterDefaults registers the built-in mappers.
func RegisterDefaults(r *Registry) {
	r.Register(NewPayroll())
	r.Register(NewTravel())
	r.Register(NewContracts())
	r.Register(NewSanctions())
	r.Register(NewDonations())
	r.Register(NewCandidates())
	r.Register(NewCandidateAssets())
	r.Register(NewPartners())
}

// Register adds a mapper, replacing any mapper for the same dataset.
func (r *Registry) Register(m driven.SchemaMapper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappers[m.Dataset()] = m
}

// Get returns the mapper for a dataset.
func (r *Registry) Get(dataset string) (driven.SchemaMapper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mappers[dataset]
	return m, ok
}

// Datasets returns all registered dataset names, sorted.
func (r *Registry) Datasets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.mappers))
	for name := range r.mappers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

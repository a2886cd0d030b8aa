package collectors

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/custodia-labs/sentinela/internal/collectors/apipage"
	"github.com/custodia-labs/sentinela/internal/collectors/archive"
	"github.com/custodia-labs/sentinela/internal/collectors/htmltable"
	"github.com/custodia-labs/sentinela/internal/collectors/httpx"
	"github.com/custodia-labs/sentinela/internal/collectors/jsf"
	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/logger"
)

// Ensure Factory implements the interface.
var _ driven.CollectorFactory = (*Factory)(nil)

// Factory builds collectors by strategy. Every collector gets its own
// rate limiter, so the minimum request delay is per source.
type Factory struct {
	mu       sync.RWMutex
	policy   httpx.Policy
	builders map[domain.Strategy]driven.CollectorBuilder
}

// NewFactory creates a factory with the built-in strategies registered.
func NewFactory(policy httpx.Policy) *Factory {
	f := &Factory{
		policy:   policy,
		builders: make(map[domain.Strategy]driven.CollectorBuilder),
	}
	f.Register(domain.StrategyPaginatedAPI, f.buildPaginatedAPI)
	f.Register(domain.StrategyBulkArchive, f.buildBulkArchive)
	f.Register(domain.StrategyStatefulProtocol, f.buildStatefulProtocol)
	f.Register(domain.StrategyStaticTable, f.buildStaticTable)
	return f
}

// Create returns a Collector for the given source.
func (f *Factory) Create(ctx context.Context, source domain.Source) (driven.Collector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	build, ok := f.builders[source.Strategy]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedStrategy, source.Strategy)
	}
	c, err := build(source)
	if err != nil {
		return nil, fmt.Errorf("create %s collector for %s: %w", source.Strategy, source.ID, err)
	}
	return c, nil
}

// Register adds or replaces the builder for a strategy.
func (f *Factory) Register(strategy domain.Strategy, builder driven.CollectorBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[strategy] = builder
}

// SupportedStrategies returns all registered strategies, sorted.
func (f *Factory) SupportedStrategies() []domain.Strategy {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.Strategy, 0, len(f.builders))
	for s := range f.builders {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// sourcePolicy applies a source's min_delay override.
func (f *Factory) sourcePolicy(source domain.Source) (httpx.Policy, error) {
	p := f.policy
	if v := source.Config["min_delay"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return p, fmt.Errorf("%w: source %s: min_delay %q", domain.ErrConfigInvalid, source.ID, v)
		}
		p.MinDelay = d
	}
	return p, nil
}

func (f *Factory) client(source domain.Source) (*httpx.Client, error) {
	p, err := f.sourcePolicy(source)
	if err != nil {
		return nil, err
	}
	return httpx.NewClient(p, httpx.WithLogger(logger.For("httpx").With("source", source.ID))), nil
}

func (f *Factory) buildPaginatedAPI(source domain.Source) (driven.Collector, error) {
	cfg, err := apipage.ParseConfig(source)
	if err != nil {
		return nil, err
	}
	client, err := f.client(source)
	if err != nil {
		return nil, err
	}
	return apipage.New(source, cfg, client), nil
}

func (f *Factory) buildBulkArchive(source domain.Source) (driven.Collector, error) {
	cfg, err := archive.ParseConfig(source)
	if err != nil {
		return nil, err
	}
	client, err := f.client(source)
	if err != nil {
		return nil, err
	}
	return archive.New(source, cfg, client), nil
}

func (f *Factory) buildStatefulProtocol(source domain.Source) (driven.Collector, error) {
	cfg, err := jsf.ParseConfig(source)
	if err != nil {
		return nil, err
	}
	p, err := f.sourcePolicy(source)
	if err != nil {
		return nil, err
	}
	return jsf.New(source, cfg, p), nil
}

func (f *Factory) buildStaticTable(source domain.Source) (driven.Collector, error) {
	cfg, err := htmltable.ParseConfig(source)
	if err != nil {
		return nil, err
	}
	client, err := f.client(source)
	if err != nil {
		return nil, err
	}
	return htmltable.New(source, cfg, client), nil
}

// Command sentinela collects public-spending data and flags anomalies.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/custodia-labs/sentinela/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sentinela/internal/adapters/driven/graph/neo4j"
	"github.com/custodia-labs/sentinela/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sentinela/internal/adapters/driving/cli"
	"github.com/custodia-labs/sentinela/internal/collectors"
	"github.com/custodia-labs/sentinela/internal/collectors/httpx"
	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/core/services"
	"github.com/custodia-labs/sentinela/internal/detectors"
	"github.com/custodia-labs/sentinela/internal/logger"
	"github.com/custodia-labs/sentinela/internal/normalisers"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap opens the stores and wires every service the commands use.
func bootstrap(configDir string) (*cli.Services, func(), error) {
	cfg, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	detectorCfg, err := detectors.ConfigFrom(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	dataDir := ""
	if configDir != "" {
		dataDir = filepath.Join(configDir, "data")
	}
	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	logger.Debug("store: %s", store.Path())

	factory := collectors.NewFactory(httpPolicy(cfg))
	resolver := services.NewResolver(store.EntityStore(), resolverOptions(cfg))
	ingest := services.NewIngestCoordinator(
		store.SourceStore(),
		store.SyncStateStore(),
		store.RawRecordStore(),
		factory,
		normalisers.Default(),
		resolver,
		ingestOptions(cfg),
	)

	registry := detectors.NewRegistry()
	detectors.RegisterDefaults(registry, detectorCfg)
	insights := services.NewInsightService(store.InsightStore())
	detection := services.NewDetectionService(store.EntityStore(), registry, insights)

	sources := services.NewSourceService(store.SourceStore(), store.SyncStateStore(), factory)
	ctx := context.Background()
	declared, err := services.DeclaredSources(cfg)
	if err == nil {
		_, err = sources.Sync(ctx, declared)
	}
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("sources: %w", err)
	}

	svc := &cli.Services{
		Ingest:    ingest,
		Detection: detection,
		Insights:  insights,
		Entities:  resolver,
		Sources:   sources,
		Scheduler: services.NewScheduler(schedulerConfig(cfg), store.SchedulerStore(), ingest, detection),
		Config:    cfg,
	}

	var graph *neo4j.Store
	if graphCfg := neo4j.ConfigFrom(cfg); graphCfg.URI != "" {
		graph, err = neo4j.New(ctx, graphCfg)
		if err != nil {
			// The rest of the pipeline works without the graph mirror.
			logger.Warn("graph store unavailable: %v", err)
		} else {
			svc.Graph = services.NewGraphExporter(store.EntityStore(), store.InsightStore(), graph)
		}
	}

	cleanup := func() {
		if graph != nil {
			if err := graph.Close(context.Background()); err != nil {
				logger.Warn("closing graph store: %v", err)
			}
		}
		if err := store.Close(); err != nil {
			logger.Warn("closing store: %v", err)
		}
	}
	return svc, cleanup, nil
}

func httpPolicy(cfg driven.ConfigStore) httpx.Policy {
	p := httpx.DefaultPolicy()
	if v := cfg.GetInt("pipeline.retry.max_attempts"); v > 0 {
		p.MaxAttempts = v
	}
	setDuration(cfg, "pipeline.retry.base_delay", &p.BaseDelay)
	setDuration(cfg, "pipeline.retry.max_delay", &p.MaxDelay)
	setDuration(cfg, "pipeline.rate.cooldown", &p.Cooldown)
	setDuration(cfg, "pipeline.rate.min_delay", &p.MinDelay)
	setDuration(cfg, "pipeline.request_timeout", &p.RequestTimeout)
	return p
}

func ingestOptions(cfg driven.ConfigStore) services.IngestOptions {
	opts := services.DefaultIngestOptions()
	if v := cfg.GetInt("pipeline.max_concurrent_sources"); v > 0 {
		opts.MaxConcurrent = v
	}
	setDuration(cfg, "pipeline.source_deadline", &opts.SourceDeadline)
	return opts
}

func resolverOptions(cfg driven.ConfigStore) services.ResolverOptions {
	opts := services.DefaultResolverOptions()
	if v := cfg.GetStringSlice("resolver.common_surnames"); len(v) > 0 {
		opts.CommonSurnames = v
	}
	if v := cfg.GetInt("resolver.min_surname_length"); v > 0 {
		opts.MinSurnameLength = v
	}
	if v := cfg.GetFloat("resolver.similarity_threshold"); v > 0 {
		opts.SimilarityThreshold = v
	}
	return opts
}

// schedulerConfig reads scheduler.enabled and scheduler.<task>.{enabled,interval}
// over the defaults.
func schedulerConfig(cfg driven.ConfigStore) domain.SchedulerConfig {
	sc := domain.DefaultSchedulerConfig()
	if _, ok := cfg.Get("scheduler.enabled"); ok {
		sc.Enabled = cfg.GetBool("scheduler.enabled")
	}
	for id, task := range sc.TaskConfigs {
		prefix := "scheduler." + id + "."
		if _, ok := cfg.Get(prefix + "enabled"); ok {
			task.Enabled = cfg.GetBool(prefix + "enabled")
		}
		setDuration(cfg, prefix+"interval", &task.Interval)
		sc.TaskConfigs[id] = task
	}
	return sc
}

func setDuration(cfg driven.ConfigStore, key string, dst *time.Duration) {
	if d := cfg.GetDuration(key); d > 0 {
		*dst = d
	}
}

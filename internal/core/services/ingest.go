package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/core/ports/driving"
	"github.com/custodia-labs/sentinela/internal/fingerprint"
	"github.com/custodia-labs/sentinela/internal/logger"
)

// Ensure IngestCoordinator implements the interface.
var _ driving.IngestCoordinator = (*IngestCoordinator)(nil)

// IngestOptions bounds a coordinator run.
type IngestOptions struct {
	// MaxConcurrent caps how many sources collect at once.
	MaxConcurrent int

	// SourceDeadline bounds one source's run.
	SourceDeadline time.Duration
}

// DefaultIngestOptions returns the default bounds.
func DefaultIngestOptions() IngestOptions {
	return IngestOptions{
		MaxConcurrent:  4,
		SourceDeadline: 30 * time.Minute,
	}
}

// IngestCoordinator runs collectors, commits new rows and resolves them.
type IngestCoordinator struct {
	sources  driven.SourceStore
	syncs    driven.SyncStateStore
	records  driven.RawRecordStore
	factory  driven.CollectorFactory
	mappers  driven.MapperRegistry
	resolver *Resolver
	opts     IngestOptions
	now      func() time.Time
	log      *slog.Logger

	// tables serialises writers per destination table.
	tables *keyedMutex

	mu     sync.RWMutex
	active map[string]*driving.IngestStatus
	last   map[string]driving.IngestStatus
}

// NewIngestCoordinator creates a coordinator.
func NewIngestCoordinator(
	sources driven.SourceStore,
	syncs driven.SyncStateStore,
	records driven.RawRecordStore,
	factory driven.CollectorFactory,
	mappers driven.MapperRegistry,
	resolver *Resolver,
	opts IngestOptions,
) *IngestCoordinator {
	defaults := DefaultIngestOptions()
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaults.MaxConcurrent
	}
	if opts.SourceDeadline <= 0 {
		opts.SourceDeadline = defaults.SourceDeadline
	}
	return &IngestCoordinator{
		sources:  sources,
		syncs:    syncs,
		records:  records,
		factory:  factory,
		mappers:  mappers,
		resolver: resolver,
		opts:     opts,
		now:      time.Now,
		log:      logger.For("coordinator"),
		tables:   newKeyedMutex(),
		active:   make(map[string]*driving.IngestStatus),
		last:     make(map[string]driving.IngestStatus),
	}
}

// Run collects the triggered sources, at most MaxConcurrent at once.
// Every trigger gets a report; one source's failure never affects another.
func (o *IngestCoordinator) Run(ctx context.Context, triggers []domain.Trigger) map[string]domain.CollectionReport {
	reports := make(map[string]domain.CollectionReport, len(triggers))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(o.opts.MaxConcurrent)
	for _, trigger := range mergeTriggers(triggers) {
		g.Go(func() error {
			report := o.runSource(ctx, trigger)
			mu.Lock()
			reports[trigger.SourceID] = report
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// RunAll triggers every configured source.
func (o *IngestCoordinator) RunAll(ctx context.Context, force bool) (map[string]domain.CollectionReport, error) {
	sources, err := o.sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	triggers := make([]domain.Trigger, 0, len(sources))
	for _, src := range sources {
		triggers = append(triggers, domain.Trigger{SourceID: src.ID, ForceRefresh: force})
	}
	return o.Run(ctx, triggers), nil
}

// Status returns the live status of a running source, or the last run's.
func (o *IngestCoordinator) Status(ctx context.Context, sourceID string) (*driving.IngestStatus, error) {
	o.mu.RLock()
	if status, ok := o.active[sourceID]; ok {
		snapshot := *status
		o.mu.RUnlock()
		return &snapshot, nil
	}
	last, ok := o.last[sourceID]
	o.mu.RUnlock()

	status := &driving.IngestStatus{SourceID: sourceID}
	if ok {
		*status = last
		status.Running = false
	}
	state, err := o.syncs.Get(ctx, sourceID)
	switch {
	case err == nil:
		status.LastSync = state.LastSync
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("get sync state: %w", err)
	}
	return status, nil
}

// mergeTriggers drops duplicate source ids, keeping force if any duplicate asked for it.
func mergeTriggers(triggers []domain.Trigger) []domain.Trigger {
	index := make(map[string]int, len(triggers))
	var out []domain.Trigger
	for _, t := range triggers {
		if i, ok := index[t.SourceID]; ok {
			out[i].ForceRefresh = out[i].ForceRefresh || t.ForceRefresh
			continue
		}
		index[t.SourceID] = len(out)
		out = append(out, t)
	}
	return out
}

// runSource collects one source and never panics or returns an error; the
// outcome is the report.
func (o *IngestCoordinator) runSource(ctx context.Context, trigger domain.Trigger) domain.CollectionReport {
	start := o.now()
	report := domain.CollectionReport{SourceID: trigger.SourceID}

	src, err := o.sources.Get(ctx, trigger.SourceID)
	if err != nil {
		report.Err = fmt.Errorf("get source %s: %w", trigger.SourceID, err)
		return report
	}

	if !trigger.ForceRefresh && o.fresh(ctx, src, start) {
		report.Fresh = true
		o.log.Info("source is fresh, skipping", "source", src.ID, "refresh_interval", src.RefreshInterval)
		return report
	}

	status, ok := o.begin(src.ID)
	if !ok {
		report.Err = fmt.Errorf("source %s: %w", src.ID, domain.ErrIngestInProgress)
		return report
	}
	defer o.end(src.ID)

	o.log.Info("collection started", "source", src.ID, "strategy", src.Strategy, "dataset", src.Dataset)
	err = o.collect(ctx, src, status, &report)
	report.Duration = o.now().Sub(start)
	report.Err = err

	state := domain.SyncState{SourceID: src.ID, RowsNew: report.RowsNew}
	if err != nil {
		state.LastError = err.Error()
		if prev, perr := o.syncs.Get(ctx, src.ID); perr == nil {
			state.LastSync = prev.LastSync
			state.RowsNew = prev.RowsNew
		}
		o.log.Error("collection failed",
			"source", src.ID,
			"rows_seen", report.RowsSeen,
			"rows_new", report.RowsNew,
			"duration", report.Duration,
			"class", domain.Classify(err).String(),
			"error", err,
		)
	} else {
		state.LastSync = o.now().UTC()
		o.log.Info("collection finished",
			"source", src.ID,
			"rows_seen", report.RowsSeen,
			"rows_new", report.RowsNew,
			"rows_skipped", report.RowsSkipped,
			"duration", report.Duration,
		)
	}
	if serr := o.syncs.Save(context.WithoutCancel(ctx), state); serr != nil {
		o.log.Error("save sync state failed", "source", src.ID, "error", serr)
	}
	return report
}

// fresh reports whether the last successful run is within the refresh interval.
func (o *IngestCoordinator) fresh(ctx context.Context, src *domain.Source, now time.Time) bool {
	if src.RefreshInterval <= 0 {
		return false
	}
	state, err := o.syncs.Get(ctx, src.ID)
	if err != nil || state.LastSync.IsZero() || state.LastError != "" {
		return false
	}
	return now.Sub(state.LastSync) < src.RefreshInterval
}

// collect drives one collector to completion under the source deadline.
func (o *IngestCoordinator) collect(
	ctx context.Context,
	src *domain.Source,
	status *driving.IngestStatus,
	report *domain.CollectionReport,
) error {
	mapper, ok := o.mappers.Get(src.Dataset)
	if !ok {
		return fmt.Errorf("%w: source %s: no schema mapper for dataset %q", domain.ErrConfigInvalid, src.ID, src.Dataset)
	}

	collector, err := o.factory.Create(ctx, *src)
	if err != nil {
		return err
	}
	defer collector.Close()
	if err := collector.Validate(ctx); err != nil {
		return fmt.Errorf("validate collector: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, o.opts.SourceDeadline)
	defer cancel()

	records, errs := collector.Collect(runCtx)
	var fatal error
	for records != nil || errs != nil {
		select {
		case <-runCtx.Done():
			return fmt.Errorf("collect %s: %w", src.ID, runCtx.Err())

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if rowErr, isRow := domain.IsRowError(err); isRow {
				o.skipped(status, report)
				o.log.Warn("row skipped", "source", src.ID, "member", rowErr.Member, "row", rowErr.Row, "error", rowErr.Err)
				continue
			}
			if fatal == nil {
				fatal = err
			}

		case rec, ok := <-records:
			if !ok {
				records = nil
				continue
			}
			o.count(status, report, func(s *driving.IngestStatus, r *domain.CollectionReport) {
				s.RowsSeen++
				r.RowsSeen++
			})
			if err := o.commit(runCtx, src, mapper, rec, status, report); err != nil {
				return err
			}
		}
	}
	if fatal != nil {
		return fmt.Errorf("collect %s: %w", src.ID, fatal)
	}
	if err := runCtx.Err(); err != nil {
		return fmt.Errorf("collect %s: %w", src.ID, err)
	}
	return nil
}

// commit maps and resolves a row whose content hash is unknown, then stores
// it. The hash is recorded only after resolution succeeds, so a row whose
// resolution failed is collected again on the next run. Known rows are never
// re-mapped.
func (o *IngestCoordinator) commit(
	ctx context.Context,
	src *domain.Source,
	mapper driven.SchemaMapper,
	rec domain.RawRecord,
	status *driving.IngestStatus,
	report *domain.CollectionReport,
) error {
	rec.SourceID = src.ID
	rec.Table = src.Dataset
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = o.now().UTC()
	}
	if rec.ContentHash == "" {
		hash, err := fingerprint.Record(rec.Payload)
		if err != nil {
			o.skipped(status, report)
			o.log.Warn("row skipped", "source", src.ID, "error", err)
			return nil
		}
		rec.ContentHash = hash
	}

	unlock := o.tables.Lock(rec.Table)
	defer unlock()

	known, err := o.records.Has(ctx, rec.Table, rec.ContentHash)
	if err != nil {
		return fmt.Errorf("check row: %w", err)
	}
	if known {
		return nil
	}

	mapped := true
	observations, err := mapper.Map(rec)
	if err != nil {
		mapped = false
		o.log.Warn("row not mapped", "source", src.ID, "hash", rec.ContentHash, "error", err)
	}
	for _, obs := range observations {
		if _, err := o.resolver.Resolve(ctx, obs); err != nil {
			if errors.Is(err, domain.ErrValidation) {
				o.log.Warn("observation not resolved", "source", src.ID, "hash", rec.ContentHash, "error", err)
				continue
			}
			return fmt.Errorf("resolve row: %w", err)
		}
	}

	inserted, err := o.records.InsertIfNew(ctx, rec.Table, rec)
	if err != nil {
		return fmt.Errorf("store row: %w", err)
	}
	if inserted {
		o.count(status, report, func(s *driving.IngestStatus, r *domain.CollectionReport) {
			s.RowsNew++
			r.RowsNew++
		})
	}
	if !mapped {
		o.skipped(status, report)
	}
	return nil
}

func (o *IngestCoordinator) skipped(status *driving.IngestStatus, report *domain.CollectionReport) {
	o.count(status, report, func(s *driving.IngestStatus, r *domain.CollectionReport) {
		s.ErrorCount++
		r.RowsSkipped++
	})
}

// count applies fn under the status lock so Status readers see consistent counters.
func (o *IngestCoordinator) count(
	status *driving.IngestStatus,
	report *domain.CollectionReport,
	fn func(*driving.IngestStatus, *domain.CollectionReport),
) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(status, report)
}

func (o *IngestCoordinator) begin(sourceID string) (*driving.IngestStatus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, running := o.active[sourceID]; running {
		return nil, false
	}
	status := &driving.IngestStatus{SourceID: sourceID, Running: true}
	o.active[sourceID] = status
	return status, true
}

func (o *IngestCoordinator) end(sourceID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if status, ok := o.active[sourceID]; ok {
		final := *status
		final.Running = false
		o.last[sourceID] = final
	}
	delete(o.active, sourceID)
}

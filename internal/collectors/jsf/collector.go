package jsf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sentinela/internal/collectors/htmltable"
	"github.com/custodia-labs/sentinela/internal/collectors/httpx"
	"github.com/custodia-labs/sentinela/internal/collectors/tabular"
	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/logger"
)

// Ensure Collector implements the interface.
var _ driven.Collector = (*Collector)(nil)

// Collector pulls a Faces page through its export control, or its
// datatable when the page has none. Every Collect opens a fresh session.
type Collector struct {
	source domain.Source
	config *Config
	policy httpx.Policy
	log    *slog.Logger
	mu     sync.Mutex
	closed bool
}

// New creates a stateful-protocol collector.
func New(source domain.Source, cfg *Config, policy httpx.Policy) *Collector {
	return &Collector{source: source, config: cfg, policy: policy, log: logger.For("jsf")}
}

// Strategy returns the collection strategy.
func (c *Collector) Strategy() domain.Strategy {
	return domain.StrategyStatefulProtocol
}

// SourceID returns the source identifier.
func (c *Collector) SourceID() string {
	return c.source.ID
}

// Validate checks the collector is usable.
func (c *Collector) Validate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrCollectorClosed
	}
	for k, vs := range c.config.Header {
		if len(vs) == 0 || vs[0] == "" {
			return fmt.Errorf("%w: source %s: header %s resolved empty", domain.ErrConfigInvalid, c.source.ID, k)
		}
	}
	return ctx.Err()
}

// Collect runs one session and streams its rows.
func (c *Collector) Collect(ctx context.Context) (<-chan domain.RawRecord, <-chan error) {
	out := make(chan domain.RawRecord)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			errs <- domain.ErrCollectorClosed
			return
		}
		c.mu.Unlock()

		if err := c.run(ctx, out, errs); err != nil {
			select {
			case errs <- err:
			case <-ctx.Done():
			}
		}
	}()

	return out, errs
}

func (c *Collector) run(ctx context.Context, out chan<- domain.RawRecord, errs chan<- error) error {
	if c.config.Mode == ModePaginate {
		return c.paginate(ctx, out, errs)
	}
	err := c.export(ctx, out, errs)
	if err == nil || c.config.Mode == ModeExport {
		return err
	}
	if !errors.Is(err, domain.ErrActionNotFound) && !errors.Is(err, domain.ErrExportFailed) {
		return err
	}
	c.log.Warn("export unavailable, paging datatable", "source", c.source.ID, "error", err)
	return c.paginate(ctx, out, errs)
}

// open starts a session and applies the configured filters in order.
func (c *Collector) open(ctx context.Context) (*Session, error) {
	s, err := NewSession(c.policy, c.config.URL,
		WithHeader(c.config.Header),
		WithPageEncoding(c.config.PageEncoding),
	)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.AcquireSession(ctx); err != nil {
		return nil, err
	}
	for _, f := range c.config.Fields {
		if _, err := s.ApplyFilter(ctx, f.ID, f.Value); err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.ID, err)
		}
	}
	return s, nil
}

func (c *Collector) export(ctx context.Context, out chan<- domain.RawRecord, errs chan<- error) error {
	s, err := c.open(ctx)
	if err != nil {
		return err
	}
	actionID, err := discoverAction(s.page.doc, c.config.ExportLabel)
	if err != nil {
		return &StateError{State: s.State(), Step: "discover action", Cause: err}
	}
	data, filename, err := s.TriggerExport(ctx, actionID)
	if err != nil {
		return err
	}
	c.log.Info("export received", "source", c.source.ID, "file", filename, "bytes", len(data))

	r, err := tabular.NewReader(bytes.NewReader(data), c.config.Export)
	if err != nil {
		return fmt.Errorf("read export %s: %w", filename, err)
	}
	return r.Stream(ctx, c.source.ID, c.source.Dataset, out, errs)
}

func (c *Collector) paginate(ctx context.Context, out chan<- domain.RawRecord, errs chan<- error) error {
	s, err := c.open(ctx)
	if err != nil {
		return err
	}
	tableID := c.config.TableID
	if tableID == "" {
		if tableID, err = FindDataTableID(s.Markup()); err != nil {
			return &StateError{State: s.State(), Step: "find datatable", Cause: err}
		}
	}
	header := s.Header(tableID)

	next := 1
	return s.Paginate(ctx, tableID, c.config.Rows, c.config.MaxPages, func(page int, rows [][]string) error {
		payloads, rowErrs := htmltable.RowsToPayloads(header, rows, next)
		next += len(rows)
		for _, rowErr := range rowErrs {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case errs <- rowErr:
			}
		}
		now := time.Now().UTC()
		for _, p := range payloads {
			if !c.config.Export.Keep(p) {
				continue
			}
			rec := domain.RawRecord{SourceID: c.source.ID, Table: c.source.Dataset, Payload: p, CapturedAt: now}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- rec:
			}
		}
		c.log.Debug("page collected", "source", c.source.ID, "page", page, "rows", len(rows))
		return nil
	})
}

// Close releases resources.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

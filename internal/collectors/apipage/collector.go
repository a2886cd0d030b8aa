// Package apipage collects sources that expose a paginated JSON API.
package apipage

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/custodia-labs/sentinela/internal/collectors/httpx"
	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/logger"
)

// Ensure Collector implements the interface.
var _ driven.Collector = (*Collector)(nil)

// Collector walks a JSON API page by page.
type Collector struct {
	source domain.Source
	config *Config
	client *httpx.Client
	mu     sync.Mutex
	closed bool
}

// New creates a paginated-API collector.
func New(source domain.Source, cfg *Config, client *httpx.Client) *Collector {
	return &Collector{source: source, config: cfg, client: client}
}

// Strategy returns the collection strategy.
func (c *Collector) Strategy() domain.Strategy {
	return domain.StrategyPaginatedAPI
}

// SourceID returns the source identifier.
func (c *Collector) SourceID() string {
	return c.source.ID
}

// Validate checks the configuration. Header credentials must have resolved.
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

// Collect fetches pages until an empty page, the declared page count, or a
// short page, checked in that order.
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

		if err := c.run(ctx, out); err != nil {
			select {
			case errs <- err:
			case <-ctx.Done():
			}
		}
	}()

	return out, errs
}

func (c *Collector) run(ctx context.Context, out chan<- domain.RawRecord) error {
	log := logger.For("apipage").With("source", c.source.ID)
	cfg := c.config

	for n, fetched := cfg.StartPage, 0; fetched < cfg.MaxPages; n, fetched = n+1, fetched+1 {
		pageURL, err := cfg.pageURL(n)
		if err != nil {
			return fmt.Errorf("%w: page url: %w", domain.ErrConfigInvalid, err)
		}
		body, err := c.fetch(ctx, pageURL)
		if err != nil {
			return fmt.Errorf("page %d: %w", n, err)
		}
		page, err := decodePage(body, cfg.ItemsField, cfg.TotalPagesField)
		if err != nil {
			return fmt.Errorf("page %d: %w", n, err)
		}
		log.Debug("page fetched", "page", n, "items", len(page.Items))

		if len(page.Items) == 0 {
			return nil
		}
		now := time.Now().UTC()
		for _, item := range page.Items {
			rec := domain.RawRecord{
				SourceID:   c.source.ID,
				Table:      c.source.Dataset,
				Payload:    Flatten(item),
				CapturedAt: now,
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- rec:
			}
		}

		if page.HasTotal {
			if n-cfg.StartPage+1 >= page.TotalPages {
				return nil
			}
			continue
		}
		if cfg.PageSize > 0 && len(page.Items) < cfg.PageSize {
			return nil
		}
	}
	log.Warn("max pages reached", "max_pages", cfg.MaxPages)
	return nil
}

func (c *Collector) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	header := c.config.Header.Clone()
	if header.Get("Accept") == "" {
		header.Set("Accept", "application/json")
	}
	resp, err := c.client.Get(ctx, pageURL, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrTransientNetwork, err)
	}
	return body, nil
}

// Close releases resources.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

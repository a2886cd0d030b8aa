package htmltable

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/text/transform"

	"github.com/custodia-labs/sentinela/internal/collectors/httpx"
	"github.com/custodia-labs/sentinela/internal/collectors/tabular"
	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
)

// Ensure Collector implements the interface.
var _ driven.Collector = (*Collector)(nil)

// Config holds the parsed configuration for a static-table source.
type Config struct {
	URL string

	// TableID selects the table by id. When empty, TableIndex is used.
	TableID    string
	TableIndex int

	// Encoding is the declared page encoding. Default: utf-8.
	Encoding string

	Header http.Header
}

// ParseConfig parses a source's config map into a Config struct.
func ParseConfig(source domain.Source) (*Config, error) {
	u, err := httpx.RequireString(source, "url")
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		URL:      u,
		TableID:  httpx.StringOr(source, "table_id", ""),
		Encoding: httpx.StringOr(source, "encoding", "utf-8"),
		Header:   httpx.HeadersFromConfig(source.Config),
	}
	if cfg.TableIndex, err = httpx.IntOr(source, "table_index", 0); err != nil {
		return nil, err
	}
	if _, err := tabular.Decoder(cfg.Encoding); err != nil {
		return nil, fmt.Errorf("source %s: %w", source.ID, err)
	}
	return cfg, nil
}

// Collector scrapes one rendered table.
type Collector struct {
	source domain.Source
	config *Config
	client *httpx.Client
	mu     sync.Mutex
	closed bool
}

// New creates a static-table collector.
func New(source domain.Source, cfg *Config, client *httpx.Client) *Collector {
	return &Collector{source: source, config: cfg, client: client}
}

// Strategy returns the collection strategy.
func (c *Collector) Strategy() domain.Strategy {
	return domain.StrategyStaticTable
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
	return ctx.Err()
}

// Collect fetches the page and streams the selected table's rows.
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
	body, err := c.client.GetBytes(ctx, c.config.URL, c.config.Header)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	table, err := c.selectTable(body)
	if err != nil {
		return err
	}

	payloads, rowErrs := table.Payloads()
	for _, rowErr := range rowErrs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case errs <- rowErr:
		}
	}
	now := time.Now().UTC()
	for _, p := range payloads {
		rec := domain.RawRecord{SourceID: c.source.ID, Table: c.source.Dataset, Payload: p, CapturedAt: now}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- rec:
		}
	}
	return nil
}

func (c *Collector) selectTable(body []byte) (Table, error) {
	dec, _ := tabular.Decoder(c.config.Encoding)
	if dec != nil {
		decoded, _, err := transform.Bytes(dec, body)
		if err != nil {
			return Table{}, fmt.Errorf("%w: decode %s: %w", domain.ErrMalformedPayload, c.config.Encoding, err)
		}
		body = decoded
	}

	if c.config.TableID != "" {
		doc, err := html.Parse(bytes.NewReader(body))
		if err != nil {
			return Table{}, fmt.Errorf("%w: parse html: %w", domain.ErrMalformedPayload, err)
		}
		n := FindByID(doc, c.config.TableID)
		if n == nil {
			return Table{}, fmt.Errorf("%w: table %q not found", domain.ErrMalformedPayload, c.config.TableID)
		}
		return Extract(n), nil
	}

	tables, err := Parse(bytes.NewReader(body))
	if err != nil {
		return Table{}, err
	}
	if c.config.TableIndex < 0 || c.config.TableIndex >= len(tables) {
		return Table{}, fmt.Errorf("%w: page has %d tables, want index %d", domain.ErrMalformedPayload, len(tables), c.config.TableIndex)
	}
	return tables[c.config.TableIndex], nil
}

// Close releases resources.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

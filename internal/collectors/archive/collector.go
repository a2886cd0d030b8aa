// Package archive collects sources published as compressed bulk archives of
// delimited text files.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/custodia-labs/sentinela/internal/collectors/httpx"
	"github.com/custodia-labs/sentinela/internal/collectors/tabular"
	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/logger"
)

// Ensure Collector implements the interface.
var _ driven.Collector = (*Collector)(nil)

// Collector downloads an archive and streams the rows of its data files.
type Collector struct {
	source domain.Source
	config *Config
	client *httpx.Client
	mu     sync.Mutex
	closed bool
}

// New creates a bulk-archive collector.
func New(source domain.Source, cfg *Config, client *httpx.Client) *Collector {
	return &Collector{source: source, config: cfg, client: client}
}

// Strategy returns the collection strategy.
func (c *Collector) Strategy() domain.Strategy {
	return domain.StrategyBulkArchive
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

// Collect downloads the archive and streams every selected member.
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
	log := logger.For("archive").With("source", c.source.ID)

	data, err := c.client.GetBytes(ctx, c.config.URL, c.config.Header)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("%w: open archive: %w", domain.ErrMalformedPayload, err)
	}

	members := SelectMembers(zr.File, c.config)
	if len(members) == 0 {
		return fmt.Errorf("%w: no %s member in archive", domain.ErrMalformedPayload, c.config.Extension)
	}

	for _, f := range members {
		log.Info("reading member", "member", f.Name, "bytes", f.UncompressedSize64)
		err := c.readMember(ctx, f, out, errs)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrMalformedPayload) {
			return fmt.Errorf("member %s: %w", f.Name, err)
		}
		log.Warn("member skipped", "member", f.Name, "error", err)
		select {
		case errs <- &domain.RowError{Member: f.Name, Err: err}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *Collector) readMember(ctx context.Context, f *zip.File, out chan<- domain.RawRecord, errs chan<- error) error {
	body, err := spool(f)
	if err != nil {
		return err
	}
	defer discard(body)

	r, err := tabular.NewReader(body, c.config.Format)
	if err != nil {
		return err
	}
	return r.Stream(ctx, c.source.ID, c.source.Dataset, out, errs)
}

// spool decompresses a member into a temporary file. The zip checksum is
// only checked at the end of the member, so no row is emitted before it passes.
func spool(f *zip.File) (*os.File, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedPayload, err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "sentinela-member-*")
	if err != nil {
		return nil, fmt.Errorf("spool member: %w", err)
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		discard(tmp)
		return nil, fmt.Errorf("%w: read: %w", domain.ErrMalformedPayload, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		discard(tmp)
		return nil, fmt.Errorf("spool member: %w", err)
	}
	return tmp, nil
}

func discard(f *os.File) {
	_ = f.Close()
	_ = os.Remove(f.Name())
}

// SelectMembers picks data files: every member matching the pattern, else
// the first member with the extension. Without a pattern every member with
// the extension is read.
func SelectMembers(files []*zip.File, cfg *Config) []*zip.File {
	var byExt []*zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.EqualFold(path.Ext(f.Name), cfg.Extension) {
			byExt = append(byExt, f)
		}
	}
	if cfg.MemberPattern == nil {
		return byExt
	}

	var matched []*zip.File
	for _, f := range files {
		if !f.FileInfo().IsDir() && cfg.MemberPattern.MatchString(path.Base(f.Name)) {
			matched = append(matched, f)
		}
	}
	if len(matched) > 0 {
		return matched
	}
	if len(byExt) > 0 {
		return byExt[:1]
	}
	return nil
}

// Close releases resources.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Package tabular decodes delimited text in a declared encoding into raw rows.
// Encodings are never sniffed: sources declare them.
package tabular

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/identity"
)

// Options describe one source's file format.
type Options struct {
	// Encoding is utf-8 (default), iso-8859-1/latin1 or windows-1252.
	Encoding string

	// Delimiter defaults to ';'.
	Delimiter rune

	// SkipLines are metadata lines before the header.
	SkipLines int

	// Filters keep only rows whose column equals the value. Keys are column keys.
	Filters map[string]string
}

// OptionsFromConfig reads encoding, delimiter, skip_lines and filters
// ("COL=value,COL2=value") from a source config.
func OptionsFromConfig(cfg map[string]string, defaultEncoding string) (Options, error) {
	opts := Options{Encoding: cfg["encoding"], Delimiter: ';'}
	if opts.Encoding == "" {
		opts.Encoding = defaultEncoding
	}
	if _, err := Decoder(opts.Encoding); err != nil {
		return opts, err
	}
	if d := cfg["delimiter"]; d != "" {
		if d == `\t` || d == "tab" {
			d = "\t"
		}
		r, size := utf8.DecodeRuneInString(d)
		if size != len(d) {
			return opts, fmt.Errorf("%w: delimiter %q must be one character", domain.ErrConfigInvalid, d)
		}
		opts.Delimiter = r
	}
	if s := cfg["skip_lines"]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("%w: skip_lines %q", domain.ErrConfigInvalid, s)
		}
		opts.SkipLines = n
	}
	if f := cfg["filters"]; f != "" {
		opts.Filters = make(map[string]string)
		for _, pair := range strings.Split(f, ",") {
			k, v, ok := strings.Cut(pair, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return opts, fmt.Errorf("%w: filter %q", domain.ErrConfigInvalid, pair)
			}
			opts.Filters[identity.ColumnKey(k)] = strings.TrimSpace(v)
		}
	}
	return opts, nil
}

// Decoder returns the transformer for a declared encoding, nil for UTF-8.
func Decoder(name string) (transform.Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported encoding %q", domain.ErrConfigInvalid, name)
	}
}

// Reader yields one payload per data row.
type Reader struct {
	csv     *csv.Reader
	header  []string
	filters map[string]string
	line    int
}

// NewReader decodes r, skips metadata lines and reads the header.
func NewReader(r io.Reader, opts Options) (*Reader, error) {
	dec, err := Decoder(opts.Encoding)
	if err != nil {
		return nil, err
	}
	if dec != nil {
		r = transform.NewReader(r, dec)
	}
	br := bufio.NewReader(r)
	if err := skipBOM(br); err != nil {
		return nil, err
	}
	for i := 0; i < opts.SkipLines; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			return nil, fmt.Errorf("%w: skip line %d: %w", domain.ErrMalformedPayload, i+1, err)
		}
	}

	cr := csv.NewReader(br)
	cr.Comma = opts.Delimiter
	if cr.Comma == 0 {
		cr.Comma = ';'
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	raw, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", domain.ErrMalformedPayload)
		}
		return nil, fmt.Errorf("%w: header: %w", domain.ErrMalformedPayload, err)
	}
	header := make([]string, len(raw))
	for i, h := range raw {
		header[i] = identity.ColumnKey(h)
		if header[i] == "" {
			header[i] = fmt.Sprintf("col_%d", i)
		}
	}

	return &Reader{csv: cr, header: header, filters: opts.Filters, line: opts.SkipLines + 1}, nil
}

// Header returns the canonical column keys.
func (r *Reader) Header() []string {
	return r.header
}

// Next returns the next kept row. It returns io.EOF at the end and a
// *domain.RowError for a row that cannot be read; reading may continue after it.
func (r *Reader) Next() (domain.Payload, error) {
	for {
		rec, err := r.csv.Read()
		r.line++
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &domain.RowError{Row: r.line, Err: fmt.Errorf("%w: %w", domain.ErrMalformedPayload, err)}
			}
			return nil, fmt.Errorf("%w: read: %w", domain.ErrMalformedPayload, err)
		}
		if blank(rec) {
			continue
		}
		if len(rec) != len(r.header) {
			return nil, &domain.RowError{
				Row: r.line,
				Err: fmt.Errorf("%w: %d fields, header has %d", domain.ErrMalformedPayload, len(rec), len(r.header)),
			}
		}
		p := make(domain.Payload, len(rec))
		for i, v := range rec {
			p[i] = domain.Field{Name: r.header[i], Value: strings.TrimSpace(v)}
		}
		if !r.keep(p) {
			continue
		}
		return p, nil
	}
}

func (r *Reader) keep(p domain.Payload) bool {
	return Options{Filters: r.filters}.Keep(p)
}

// Keep reports whether a row passes every filter. Comparison ignores case.
func (o Options) Keep(p domain.Payload) bool {
	for col, want := range o.Filters {
		if got, ok := p.Get(col); !ok || !strings.EqualFold(got, want) {
			return false
		}
	}
	return true
}

// Stream sends every kept row on out. Row errors go to errs and reading
// continues; the returned error is fatal.
func (r *Reader) Stream(
	ctx context.Context, sourceID, table string,
	out chan<- domain.RawRecord, errs chan<- error,
) error {
	for {
		p, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if _, ok := domain.IsRowError(err); ok {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case errs <- err:
				}
				continue
			}
			return err
		}
		rec := domain.RawRecord{SourceID: sourceID, Table: table, Payload: p, CapturedAt: time.Now().UTC()}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- rec:
		}
	}
}

func skipBOM(br *bufio.Reader) error {
	head, err := br.Peek(3)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return fmt.Errorf("%w: %w", domain.ErrMalformedPayload, err)
	}
	if bytes.HasPrefix(head, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	return nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

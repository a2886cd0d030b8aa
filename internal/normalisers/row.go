package normalisers

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/fingerprint"
	"github.com/custodia-labs/sentinela/internal/identity"
)

// aliasTable maps a canonical field to the column keys it is published under,
// in order of preference.
type aliasTable map[string][]string

func (a aliasTable) clone() map[string][]string {
	out := make(map[string][]string, len(a))
	for k, v := range maps.All(a) {
		out[k] = slices.Clone(v)
	}
	return out
}

// dateLayouts are tried in order for full dates.
var dateLayouts = []string{
	"02/01/2006",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02-01-2006",
	"02.01.2006",
}

// periodLayouts are tried in order for month periods.
var periodLayouts = []string{
	"01/2006",
	"2006-01",
	"200601",
	"2006/01",
	"1/2006",
}

// row reads canonical fields out of one raw record.
type row struct {
	rec     domain.RawRecord
	aliases aliasTable
}

func newRow(rec domain.RawRecord, aliases aliasTable) row {
	return row{rec: rec, aliases: aliases}
}

// lookup returns the trimmed value of the first alias holding content, and
// whether any alias column exists at all.
func (r row) lookup(field string) (string, bool) {
	present := false
	for _, col := range r.aliases[field] {
		v, ok := r.rec.Payload.Get(col)
		if !ok {
			continue
		}
		present = true
		if v = strings.TrimSpace(v); v != "" {
			return v, true
		}
	}
	return "", present
}

// get returns the value of field or "".
func (r row) get(field string) string {
	v, _ := r.lookup(field)
	return v
}

// amount parses a monetary field. Null markers read as zero. A missing column
// or an unparseable value reports false.
func (r row) amount(field string) (float64, bool) {
	v, present := r.lookup(field)
	if !present {
		return 0, false
	}
	f, err := identity.ParseDecimal(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// date parses a date field. Missing or unparseable values report false.
func (r row) date(field string) (time.Time, bool) {
	return parseDate(r.get(field))
}

// period parses a month period field to its first day.
func (r row) period(field string) (time.Time, bool) {
	return parsePeriod(r.get(field))
}

func parseDate(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parsePeriod(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range periodLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	if t, ok := parseDate(v); ok {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// yearMonth builds a period from separate year and month columns.
func yearMonth(year, month string) (time.Time, bool) {
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil || y < 1900 {
		return time.Time{}, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(month))
	if err != nil || m < 1 || m > 12 {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(m), 1, 0, 0, 0, 0, time.UTC), true
}

// idKind guesses the entity kind from an identifier's shape.
func idKind(raw string, fallback domain.EntityKind) domain.EntityKind {
	if raw == "" {
		return fallback
	}
	_, kind, _ := identity.NormalizeAnyID(raw)
	return kind
}

// digits keeps only ASCII digits.
func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// subjectKey identifies an observation's subject inside event ids.
func subjectKey(obs *domain.Observation) string {
	return strings.Join([]string{
		digits(obs.RawIdentifier),
		obs.SequentialID,
		identity.NormalizeName(obs.Name),
	}, "|")
}

// eventID hashes an event's type with its defining fields.
func eventID(t domain.EventType, parts ...string) string {
	return fingerprint.Of(append([]string{string(t)}, parts...)...)
}

// formatAmount renders an amount for inclusion in an event id.
func formatAmount(v float64, ok bool) string {
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// addFlag appends field unless already present.
func addFlag(flags []string, field string) []string {
	if slices.Contains(flags, field) {
		return flags
	}
	return append(flags, field)
}

// attrs builds an attribute map, dropping empty values.
func attrs(kv ...string) map[string]string {
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			out[kv[i]] = kv[i+1]
		}
	}
	return out
}

// skip reports a row that cannot yield any observation.
func skip(rec domain.RawRecord, format string, args ...any) error {
	return &domain.RowError{Err: fmt.Errorf("%w: %s row %s: %s", domain.ErrValidation, rec.Table, short(rec.ContentHash), fmt.Sprintf(format, args...))}
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

package domain

import "time"

// Field is one column of a raw row.
type Field struct {
	Name  string
	Value string
}

// Payload is an ordered field map. Order follows the source's column order;
// content hashing ignores it.
type Payload []Field

// Get returns the value for name and whether it was present.
func (p Payload) Get(name string) (string, bool) {
	for _, f := range p {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Value returns the value for name, or "" when absent.
func (p Payload) Value(name string) string {
	v, _ := p.Get(name)
	return v
}

// Set replaces the value for name, appending the field when absent.
func (p Payload) Set(name, value string) Payload {
	for i := range p {
		if p[i].Name == name {
			p[i].Value = value
			return p
		}
	}
	return append(p, Field{Name: name, Value: value})
}

// Names returns the column names in order.
func (p Payload) Names() []string {
	names := make([]string, len(p))
	for i, f := range p {
		names[i] = f.Name
	}
	return names
}

// Map returns an unordered copy of the payload.
func (p Payload) Map() map[string]string {
	m := make(map[string]string, len(p))
	for _, f := range p {
		m[f.Name] = f.Value
	}
	return m
}

// RawRecord is one captured source row. Immutable once stored.
type RawRecord struct {
	// SourceID links to the Source that produced this row.
	SourceID string

	// Table is the destination table (the source's dataset).
	Table string

	// Payload is the row, with column names already canonicalised.
	Payload Payload

	// ContentHash is the stable hash over the normalised field values.
	// It is the dedup key within Table.
	ContentHash string

	// CapturedAt is when the row was first stored.
	CapturedAt time.Time
}

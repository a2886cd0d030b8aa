package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
)

// Ensure RawRecordStore implements the interface.
var _ driven.RawRecordStore = (*RawRecordStore)(nil)

// RawRecordStore is an in-memory implementation of driven.RawRecordStore.
type RawRecordStore struct {
	mu     sync.RWMutex
	tables map[string]*table
}

// table keeps rows in capture order with a hash index.
type table struct {
	rows   []domain.RawRecord
	hashes map[string]bool
}

// NewRawRecordStore creates a new in-memory raw record store.
func NewRawRecordStore() *RawRecordStore {
	return &RawRecordStore{
		tables: make(map[string]*table),
	}
}

// InsertIfNew stores the record unless its content hash is already in the table.
func (s *RawRecordStore) InsertIfNew(_ context.Context, tableName string, rec domain.RawRecord) (bool, error) {
	if tableName == "" || rec.ContentHash == "" {
		return false, domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tableName]
	if !ok {
		t = &table{hashes: make(map[string]bool)}
		s.tables[tableName] = t
	}
	if t.hashes[rec.ContentHash] {
		return false, nil
	}
	rec.Table = tableName
	rec.Payload = append(domain.Payload(nil), rec.Payload...)
	t.rows = append(t.rows, rec)
	t.hashes[rec.ContentHash] = true
	return true, nil
}

// Has reports whether a content hash is present in the table.
func (s *RawRecordStore) Has(_ context.Context, tableName, contentHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[tableName]
	if !ok {
		return false, nil
	}
	return t.hashes[contentHash], nil
}

// Count returns the number of rows in the table.
func (s *RawRecordStore) Count(_ context.Context, tableName string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[tableName]
	if !ok {
		return 0, nil
	}
	return len(t.rows), nil
}

// List returns the table's rows in capture order.
func (s *RawRecordStore) List(_ context.Context, tableName string) ([]domain.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[tableName]
	if !ok {
		return nil, nil
	}
	return append([]domain.RawRecord(nil), t.rows...), nil
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
)

// ==================== Raw Record Store ====================

// rawRecordStore implements driven.RawRecordStore.
// Dedup rides on the UNIQUE (table_name, content_hash) constraint.
type rawRecordStore struct {
	store *Store
}

var _ driven.RawRecordStore = (*rawRecordStore)(nil)

// InsertIfNew stores the record unless its content hash is already in the table.
func (s *rawRecordStore) InsertIfNew(ctx context.Context, table string, rec domain.RawRecord) (bool, error) {
	if table == "" || rec.ContentHash == "" {
		return false, domain.ErrInvalidInput
	}
	payload, err := marshalJSON(rec.Payload)
	if err != nil {
		return false, fmt.Errorf("marshalling payload: %w", err)
	}

	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO raw_records (table_name, source_id, content_hash, payload, captured_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(table_name, content_hash) DO NOTHING
	`, table, rec.SourceID, rec.ContentHash, payload, formatNullableTime(rec.CapturedAt))
	if err != nil {
		return false, fmt.Errorf("inserting raw record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking inserted rows: %w", err)
	}
	return n == 1, nil
}

// Has reports whether a content hash is present in the table.
func (s *rawRecordStore) Has(ctx context.Context, table, contentHash string) (bool, error) {
	var one int
	err := s.store.db.QueryRowContext(ctx, `
		SELECT 1 FROM raw_records WHERE table_name = ? AND content_hash = ?
	`, table, contentHash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking raw record: %w", err)
	}
	return true, nil
}

// Count returns the number of rows in the table.
func (s *rawRecordStore) Count(ctx context.Context, table string) (int, error) {
	var n int
	if err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM raw_records WHERE table_name = ?", table).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting raw records: %w", err)
	}
	return n, nil
}

// List returns the table's rows in capture order.
func (s *rawRecordStore) List(ctx context.Context, table string) ([]domain.RawRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT source_id, content_hash, payload, captured_at
		FROM raw_records WHERE table_name = ?
		ORDER BY id
	`, table)
	if err != nil {
		return nil, fmt.Errorf("querying raw records: %w", err)
	}
	defer rows.Close()

	var records []domain.RawRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		rec := domain.RawRecord{Table: table}
		var payload string
		var capturedAt sql.NullString
		if err := rows.Scan(&rec.SourceID, &rec.ContentHash, &payload, &capturedAt); err != nil {
			return nil, fmt.Errorf("scanning raw record: %w", err)
		}
		if err := unmarshalJSON(payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("unmarshalling payload: %w", err)
		}
		rec.CapturedAt = parseNullableTime(capturedAt)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating raw records: %w", err)
	}
	return records, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
)

// ==================== Entity Store ====================

// entityStore implements driven.EntityStore.
type entityStore struct {
	store *Store
}

var _ driven.EntityStore = (*entityStore)(nil)

const entityColumns = `id, kind, identifier, aliases, canonical_name, attributes, resolution_key, created_at, updated_at`

// Get retrieves an entity by ID.
func (s *entityStore) Get(ctx context.Context, id string) (*domain.CanonicalEntity, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	return scanEntityRow(row)
}

// FindByIdentifier returns the entity holding the identifier or alias.
func (s *entityStore) FindByIdentifier(ctx context.Context, id domain.Identifier) (*domain.CanonicalEntity, error) {
	if id.IsZero() {
		return nil, domain.ErrNotFound
	}
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+prefixed("e.", entityColumns)+`
		FROM entity_identifiers i JOIN entities e ON e.id = i.entity_id
		WHERE i.identifier_key = ?
	`, id.Key())
	return scanEntityRow(row)
}

// FindByResolutionKey returns all entities sharing the composite key, ordered by ID.
func (s *entityStore) FindByResolutionKey(ctx context.Context, key string) ([]domain.CanonicalEntity, error) {
	if key == "" {
		return nil, nil
	}
	return s.query(ctx, `SELECT `+entityColumns+` FROM entities WHERE resolution_key = ? ORDER BY id`, key)
}

// Save creates or updates an entity and indexes its identifier and aliases.
// An identifier already indexed to another entity keeps its first holder.
func (s *entityStore) Save(ctx context.Context, entity domain.CanonicalEntity) error {
	if entity.ID == "" {
		return domain.ErrInvalidInput
	}
	identifier, err := marshalJSON(entity.Identifier)
	if err != nil {
		return fmt.Errorf("marshalling identifier: %w", err)
	}
	aliases, err := marshalJSON(entity.Aliases)
	if err != nil {
		return fmt.Errorf("marshalling aliases: %w", err)
	}
	attributes, err := marshalJSON(entity.Attributes)
	if err != nil {
		return fmt.Errorf("marshalling attributes: %w", err)
	}

	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entities (`+entityColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				kind = excluded.kind,
				identifier = excluded.identifier,
				aliases = excluded.aliases,
				canonical_name = excluded.canonical_name,
				attributes = excluded.attributes,
				resolution_key = excluded.resolution_key,
				updated_at = excluded.updated_at
		`, entity.ID, string(entity.Kind), identifier, aliases, entity.CanonicalName, attributes,
			entity.ResolutionKey, formatNullableTime(entity.CreatedAt), formatNullableTime(entity.UpdatedAt))
		if err != nil {
			return fmt.Errorf("saving entity: %w", err)
		}

		for _, id := range append([]domain.Identifier{entity.Identifier}, entity.Aliases...) {
			if id.IsZero() {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO entity_identifiers (identifier_key, entity_id) VALUES (?, ?)
				ON CONFLICT(identifier_key) DO NOTHING
			`, id.Key(), entity.ID); err != nil {
				return fmt.Errorf("indexing identifier: %w", err)
			}
		}
		return nil
	})
}

// List returns all entities ordered by ID.
func (s *entityStore) List(ctx context.Context) ([]domain.CanonicalEntity, error) {
	return s.query(ctx, `SELECT `+entityColumns+` FROM entities ORDER BY id`)
}

func (s *entityStore) query(ctx context.Context, q string, args ...any) ([]domain.CanonicalEntity, error) {
	rows, err := s.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var out []domain.CanonicalEntity //nolint:prealloc // size unknown from query
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}
	return out, nil
}

// PutSnapshot stores a snapshot, replacing any for the same (entity, period).
func (s *entityStore) PutSnapshot(ctx context.Context, snap domain.Snapshot) error {
	var parts any
	if len(snap.Parts) > 0 {
		encoded, err := marshalJSON(snap.Parts)
		if err != nil {
			return fmt.Errorf("marshalling snapshot parts: %w", err)
		}
		parts = encoded
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO snapshots (entity_id, period, declared_value, parts, source_id, captured_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, period) DO UPDATE SET
			declared_value = excluded.declared_value,
			parts = excluded.parts,
			source_id = excluded.source_id,
			captured_at = excluded.captured_at
	`, snap.EntityID, snap.Period, snap.DeclaredValue, parts, snap.SourceID, formatNullableTime(snap.CapturedAt))
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// Snapshots returns snapshots for an entity, or all when entityID is empty,
// ordered by entity then period.
func (s *entityStore) Snapshots(ctx context.Context, entityID string) ([]domain.Snapshot, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT entity_id, period, declared_value, parts, source_id, captured_at
		FROM snapshots
		WHERE ? = '' OR entity_id = ?
		ORDER BY entity_id, period
	`, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.Snapshot //nolint:prealloc // size unknown from query
	for rows.Next() {
		var snap domain.Snapshot
		var parts, capturedAt sql.NullString
		if err := rows.Scan(&snap.EntityID, &snap.Period, &snap.DeclaredValue,
			&parts, &snap.SourceID, &capturedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		if err := unmarshalJSON(parts.String, &snap.Parts); err != nil {
			return nil, fmt.Errorf("unmarshalling snapshot parts: %w", err)
		}
		snap.CapturedAt = parseNullableTime(capturedAt)
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return out, nil
}

// AppendEvent inserts the event unless its ID is present.
func (s *entityStore) AppendEvent(ctx context.Context, event domain.Event) (bool, error) {
	if event.ID == "" {
		return false, domain.ErrInvalidInput
	}
	attributes, err := marshalJSON(event.Attributes)
	if err != nil {
		return false, fmt.Errorf("marshalling event attributes: %w", err)
	}
	var unnormalized any
	if len(event.Unnormalized) > 0 {
		encoded, err := marshalJSON(event.Unnormalized)
		if err != nil {
			return false, fmt.Errorf("marshalling unnormalized fields: %w", err)
		}
		unnormalized = encoded
	}

	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO events (id, entity_id, type, occurred_at, occurred_to, amount, attributes, unnormalized, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, event.ID, event.EntityID, string(event.Type), formatNullableTime(event.OccurredAt),
		formatNullableTime(event.OccurredTo), event.Amount, attributes, unnormalized, event.SourceID)
	if err != nil {
		return false, fmt.Errorf("appending event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking inserted rows: %w", err)
	}
	return n == 1, nil
}

// Events returns events for an entity, or all when entityID is empty, in insertion order.
func (s *entityStore) Events(ctx context.Context, entityID string) ([]domain.Event, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, entity_id, type, occurred_at, occurred_to, amount, attributes, unnormalized, source_id
		FROM events
		WHERE ? = '' OR entity_id = ?
		ORDER BY rowid
	`, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event //nolint:prealloc // size unknown from query
	for rows.Next() {
		var ev domain.Event
		var typ, attributes string
		var occurredAt, occurredTo, unnormalized sql.NullString
		if err := rows.Scan(&ev.ID, &ev.EntityID, &typ, &occurredAt, &occurredTo, &ev.Amount,
			&attributes, &unnormalized, &ev.SourceID); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.Type = domain.EventType(typ)
		ev.OccurredAt = parseNullableTime(occurredAt)
		ev.OccurredTo = parseNullableTime(occurredTo)
		if err := unmarshalJSON(attributes, &ev.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshalling event attributes: %w", err)
		}
		if err := unmarshalJSON(unnormalized.String, &ev.Unnormalized); err != nil {
			return nil, fmt.Errorf("unmarshalling unnormalized fields: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return out, nil
}

// PutRelationship creates or updates a relationship by (from, to, type).
func (s *entityStore) PutRelationship(ctx context.Context, rel domain.Relationship) error {
	if rel.FromID == "" || rel.ToID == "" || rel.Type == "" {
		return domain.ErrInvalidInput
	}
	attributes, err := marshalJSON(rel.Attributes)
	if err != nil {
		return fmt.Errorf("marshalling relationship attributes: %w", err)
	}
	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO relationships (from_id, to_id, type, attributes, source_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(from_id, to_id, type) DO UPDATE SET
			attributes = excluded.attributes,
			source_id = excluded.source_id
	`, rel.FromID, rel.ToID, string(rel.Type), attributes, rel.SourceID)
	if err != nil {
		return fmt.Errorf("saving relationship: %w", err)
	}
	return nil
}

// Relationships returns relationships touching an entity, or all when entityID is empty.
// Rows are ordered by (from, type, to).
func (s *entityStore) Relationships(ctx context.Context, entityID string) ([]domain.Relationship, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT from_id, to_id, type, attributes, source_id
		FROM relationships
		WHERE ? = '' OR from_id = ? OR to_id = ?
		ORDER BY from_id, type, to_id
	`, entityID, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	var out []domain.Relationship //nolint:prealloc // size unknown from query
	for rows.Next() {
		var rel domain.Relationship
		var typ, attributes string
		if err := rows.Scan(&rel.FromID, &rel.ToID, &typ, &attributes, &rel.SourceID); err != nil {
			return nil, fmt.Errorf("scanning relationship: %w", err)
		}
		rel.Type = domain.RelationType(typ)
		if err := unmarshalJSON(attributes, &rel.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshalling relationship attributes: %w", err)
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relationships: %w", err)
	}
	return out, nil
}

// LogDecision appends a resolver decision.
func (s *entityStore) LogDecision(ctx context.Context, d domain.Decision) error {
	candidates, err := marshalJSON(d.CandidateIDs)
	if err != nil {
		return fmt.Errorf("marshalling candidates: %w", err)
	}
	previous, err := marshalJSON(d.Previous)
	if err != nil {
		return fmt.Errorf("marshalling previous identifier: %w", err)
	}
	current, err := marshalJSON(d.Current)
	if err != nil {
		return fmt.Errorf("marshalling current identifier: %w", err)
	}
	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO decisions (kind, entity_id, candidate_ids, resolution_key, previous, current, source_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, string(d.Kind), d.EntityID, candidates, d.ResolutionKey, previous, current,
		d.SourceID, formatNullableTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("logging decision: %w", err)
	}
	return nil
}

// Decisions returns the decision log, newest first, bounded by limit (0 = all).
func (s *entityStore) Decisions(ctx context.Context, limit int) ([]domain.Decision, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT kind, entity_id, candidate_ids, resolution_key, previous, current, source_id, created_at
		FROM decisions
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	out := []domain.Decision{}
	for rows.Next() {
		var d domain.Decision
		var kind, candidates, previous, current string
		var createdAt sql.NullString
		if err := rows.Scan(&kind, &d.EntityID, &candidates, &d.ResolutionKey,
			&previous, &current, &d.SourceID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		d.Kind = domain.DecisionKind(kind)
		d.CreatedAt = parseNullableTime(createdAt)
		if err := errors.Join(
			unmarshalJSON(candidates, &d.CandidateIDs),
			unmarshalJSON(previous, &d.Previous),
			unmarshalJSON(current, &d.Current),
		); err != nil {
			return nil, fmt.Errorf("unmarshalling decision: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating decisions: %w", err)
	}
	return out, nil
}

// ==================== Helper Functions ====================

func scanEntityRow(row *sql.Row) (*domain.CanonicalEntity, error) {
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return e, err
}

func scanEntity(row scanner) (*domain.CanonicalEntity, error) {
	var e domain.CanonicalEntity
	var kind, identifier, aliases, attributes string
	var createdAt, updatedAt sql.NullString
	if err := row.Scan(&e.ID, &kind, &identifier, &aliases, &e.CanonicalName, &attributes,
		&e.ResolutionKey, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning entity: %w", err)
	}
	e.Kind = domain.EntityKind(kind)
	e.CreatedAt = parseNullableTime(createdAt)
	e.UpdatedAt = parseNullableTime(updatedAt)
	if err := errors.Join(
		unmarshalJSON(identifier, &e.Identifier),
		unmarshalJSON(aliases, &e.Aliases),
		unmarshalJSON(attributes, &e.Attributes),
	); err != nil {
		return nil, fmt.Errorf("unmarshalling entity %s: %w", e.ID, err)
	}
	return &e, nil
}

// prefixed qualifies each column of a comma-separated list with a table alias.
func prefixed(alias, columns string) string {
	return alias + strings.ReplaceAll(columns, ", ", ", "+alias)
}

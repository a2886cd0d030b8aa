package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
)

// ==================== Insight Store ====================

// insightStore implements driven.InsightStore.
// Evidence lives in insight_evidence, one row per reference in emission order.
type insightStore struct {
	store *Store
}

var _ driven.InsightStore = (*insightStore)(nil)

const insightColumns = `i.id, i.detector_id, i.severity, i.confidence, i.exposure_amount, i.title,
	i.description, i.legal_basis_tag, i.status, i.primary_key, i.grouping_key, i.created_at`

// InsertIfAbsent stores the insight and its evidence unless its ID exists.
func (s *insightStore) InsertIfAbsent(ctx context.Context, insight domain.Insight) (bool, error) {
	if insight.ID == "" {
		return false, domain.ErrInvalidInput
	}
	inserted := false
	err := s.store.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO insights (id, detector_id, severity, severity_rank, confidence, exposure_amount,
				title, description, legal_basis_tag, status, primary_key, grouping_key, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, insight.ID, insight.DetectorID, string(insight.Severity), insight.Severity.Rank(),
			insight.Confidence, insight.ExposureAmount, insight.Title, insight.Description,
			insight.LegalBasisTag, string(insight.Status), insight.PrimaryKey, insight.GroupingKey,
			formatNullableTime(insight.CreatedAt))
		if err != nil {
			return fmt.Errorf("inserting insight: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking inserted rows: %w", err)
		}
		if n == 0 {
			return nil
		}
		inserted = true
		return insertEvidence(ctx, tx, insight.ID, insight.Evidence)
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// Refresh updates the scoring and evidence of an existing insight.
func (s *insightStore) Refresh(ctx context.Context, insight domain.Insight) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE insights SET
				severity = ?, severity_rank = ?, confidence = ?, exposure_amount = ?,
				title = ?, description = ?
			WHERE id = ?
		`, string(insight.Severity), insight.Severity.Rank(), insight.Confidence,
			insight.ExposureAmount, insight.Title, insight.Description, insight.ID)
		if err != nil {
			return fmt.Errorf("refreshing insight: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking updated rows: %w", err)
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM insight_evidence WHERE insight_id = ?", insight.ID); err != nil {
			return fmt.Errorf("clearing evidence: %w", err)
		}
		return insertEvidence(ctx, tx, insight.ID, insight.Evidence)
	})
}

// Get retrieves an insight by ID.
func (s *insightStore) Get(ctx context.Context, id string) (*domain.Insight, error) {
	insights, err := s.query(ctx, "i.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(insights) == 0 {
		return nil, domain.ErrNotFound
	}
	return &insights[0], nil
}

// List returns insights passing the filter in insertion order.
func (s *insightStore) List(ctx context.Context, filter domain.InsightFilter) ([]domain.Insight, error) {
	var where []string
	var args []any
	if filter.DetectorID != "" {
		where = append(where, "i.detector_id = ?")
		args = append(args, filter.DetectorID)
	}
	if filter.MinSeverity != "" {
		where = append(where, "i.severity_rank >= ?")
		args = append(args, filter.MinSeverity.Rank())
	}
	if filter.Status != "" {
		where = append(where, "i.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.EntityID != "" {
		where = append(where, "EXISTS (SELECT 1 FROM insight_evidence c WHERE c.insight_id = i.id AND c.entity_id = ?)")
		args = append(args, filter.EntityID)
	}
	cond := "1 = 1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	return s.query(ctx, cond, args...)
}

// UpdateStatus sets the workflow status.
func (s *insightStore) UpdateStatus(ctx context.Context, id string, status domain.InsightStatus) error {
	res, err := s.store.db.ExecContext(ctx, "UPDATE insights SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("updating insight status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Links returns the evidence join rows for one insight, or all when id is empty.
func (s *insightStore) Links(ctx context.Context, insightID string) ([]domain.EvidenceLink, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT e.insight_id, e.entity_id, e.event_id, e.role
		FROM insight_evidence e JOIN insights i ON i.id = e.insight_id
		WHERE ? = '' OR e.insight_id = ?
		ORDER BY i.rowid, e.position
	`, insightID, insightID)
	if err != nil {
		return nil, fmt.Errorf("querying evidence links: %w", err)
	}
	defer rows.Close()

	var links []domain.EvidenceLink //nolint:prealloc // size unknown from query
	for rows.Next() {
		var link domain.EvidenceLink
		var role string
		if err := rows.Scan(&link.InsightID, &link.EntityID, &link.EventID, &role); err != nil {
			return nil, fmt.Errorf("scanning evidence link: %w", err)
		}
		link.Role = domain.EvidenceRole(role)
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating evidence links: %w", err)
	}
	return links, nil
}

// query loads insights matching cond with their evidence in one pass.
// Rows arrive grouped by insight, evidence in position order.
func (s *insightStore) query(ctx context.Context, cond string, args ...any) ([]domain.Insight, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+insightColumns+`, e.entity_id, e.event_id, e.role
		FROM insights i LEFT JOIN insight_evidence e ON e.insight_id = i.id
		WHERE `+cond+`
		ORDER BY i.rowid, e.position
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying insights: %w", err)
	}
	defer rows.Close()

	var out []domain.Insight
	for rows.Next() {
		var in domain.Insight
		var severity, status string
		var createdAt, entityID, eventID, role sql.NullString
		if err := rows.Scan(&in.ID, &in.DetectorID, &severity, &in.Confidence, &in.ExposureAmount,
			&in.Title, &in.Description, &in.LegalBasisTag, &status, &in.PrimaryKey, &in.GroupingKey,
			&createdAt, &entityID, &eventID, &role); err != nil {
			return nil, fmt.Errorf("scanning insight: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].ID != in.ID {
			in.Severity = domain.Severity(severity)
			in.Status = domain.InsightStatus(status)
			in.CreatedAt = parseNullableTime(createdAt)
			out = append(out, in)
		}
		if role.Valid {
			last := &out[len(out)-1]
			last.Evidence = append(last.Evidence, domain.EvidenceRef{
				EntityID: entityID.String,
				EventID:  eventID.String,
				Role:     domain.EvidenceRole(role.String),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating insights: %w", err)
	}
	return out, nil
}

func insertEvidence(ctx context.Context, tx *sql.Tx, insightID string, refs []domain.EvidenceRef) error {
	if len(refs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO insight_evidence (insight_id, position, entity_id, event_id, role)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i, ref := range refs {
		if _, err := stmt.ExecContext(ctx, insightID, i, ref.EntityID, ref.EventID, string(ref.Role)); err != nil {
			return fmt.Errorf("saving evidence: %w", err)
		}
	}
	return nil
}

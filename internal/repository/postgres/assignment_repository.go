package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// AssignmentRepository persists campaign/contact assignments. Assigning the
// same pair twice is a no-op.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Assign creates assignment rows for the given contacts.
func (r *AssignmentRepository) Assign(ctx context.Context, campaignID uuid.UUID, contactIDs []uuid.UUID) error {
	if len(contactIDs) == 0 {
		return nil
	}

	query := `INSERT INTO campaign_contacts (campaign_id, contact_id, created_at)
		VALUES (:campaign_id, :contact_id, :created_at)
		ON CONFLICT (campaign_id, contact_id) DO NOTHING`

	now := time.Now().UTC()
	rows := make([]map[string]any, 0, len(contactIDs))
	for _, id := range contactIDs {
		rows = append(rows, map[string]any{
			"campaign_id": campaignID,
			"contact_id":  id,
			"created_at":  now,
		})
	}

	if _, err := r.db.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("assignments: bulk insert: %w", err)
	}
	return nil
}

// ListContactIDs returns assigned contact ids with keyset pagination so the
// sweep can walk large pools in batches.
func (r *AssignmentRepository) ListContactIDs(ctx context.Context, campaignID uuid.UUID, afterID *uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 200
	}

	var (
		rows *sqlx.Rows
		err  error
	)
	if afterID != nil {
		rows, err = r.db.QueryxContext(ctx, `SELECT contact_id FROM campaign_contacts
			WHERE campaign_id = $1 AND contact_id > $2 ORDER BY contact_id ASC LIMIT $3`,
			campaignID, *afterID, limit)
	} else {
		rows, err = r.db.QueryxContext(ctx, `SELECT contact_id FROM campaign_contacts
			WHERE campaign_id = $1 ORDER BY contact_id ASC LIMIT $2`, campaignID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("assignments: list: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("assignments: scan: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assignments: rows err: %w", err)
	}

	return ids, nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// AttemptLedger implements the idempotent send-attempt ledger. The composite
// uniqueness constraint on (campaign_id, contact_id, step_number) is enforced
// by Postgres itself, which is what makes concurrent claims from independent
// worker processes safe.
type AttemptLedger struct {
	db *sqlx.DB
}

// NewAttemptLedger constructs the ledger.
func NewAttemptLedger(db *sqlx.DB) *AttemptLedger {
	return &AttemptLedger{db: db}
}

// TryClaim inserts the ledger row for (campaign, contact, step). The first
// caller wins and gets true; everyone else gets false, which must be treated
// as a successful no-op. Rows are never updated or deleted.
func (l *AttemptLedger) TryClaim(ctx context.Context, campaignID, contactID uuid.UUID, stepNumber int) (bool, error) {
	res, err := l.db.ExecContext(ctx, `INSERT INTO send_attempts (campaign_id, contact_id, step_number, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (campaign_id, contact_id, step_number) DO NOTHING`,
		campaignID, contactID, stepNumber)
	if err != nil {
		return false, fmt.Errorf("attempt ledger: claim: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("attempt ledger: rows affected: %w", err)
	}
	return n == 1, nil
}

// MaxClaimedStep returns the highest claimed step number for the contact
// within the campaign, or 0 when no step has been claimed.
func (l *AttemptLedger) MaxClaimedStep(ctx context.Context, campaignID, contactID uuid.UUID) (int, error) {
	var max sql.NullInt64
	err := l.db.QueryRowxContext(ctx, `SELECT MAX(step_number) FROM send_attempts
		WHERE campaign_id = $1 AND contact_id = $2`, campaignID, contactID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("attempt ledger: max claimed step: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64), nil
}

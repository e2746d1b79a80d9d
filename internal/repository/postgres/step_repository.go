package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/cold-outreach-engine/internal/domain"
)

// CampaignStepRepository persists the ordered step sequence of a campaign.
type CampaignStepRepository struct {
	db *sqlx.DB
}

// NewCampaignStepRepository creates a new repository.
func NewCampaignStepRepository(db *sqlx.DB) *CampaignStepRepository {
	return &CampaignStepRepository{db: db}
}

// Replace replaces all steps for a campaign in one transaction.
func (r *CampaignStepRepository) Replace(ctx context.Context, campaignID uuid.UUID, steps []domain.CampaignStep) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM campaign_steps WHERE campaign_id = $1`, campaignID); err != nil {
			return fmt.Errorf("campaign steps: delete existing: %w", err)
		}

		if len(steps) == 0 {
			return nil
		}

		stmt, err := tx.PreparexContext(ctx, `INSERT INTO campaign_steps
			(campaign_id, step_number, delay_days, is_active, subject, body)
			VALUES ($1, $2, $3, $4, $5, $6)`)
		if err != nil {
			return fmt.Errorf("campaign steps: prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, s := range steps {
			if _, err := stmt.ExecContext(ctx, campaignID, s.StepNumber, s.DelayDays, s.IsActive, s.Subject, s.Body); err != nil {
				return fmt.Errorf("campaign steps: insert step %d: %w", s.StepNumber, err)
			}
		}
		return nil
	})
}

// List retrieves a campaign's steps ordered by step number.
func (r *CampaignStepRepository) List(ctx context.Context, campaignID uuid.UUID) ([]domain.CampaignStep, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT step_number, delay_days, is_active, subject, body
		FROM campaign_steps WHERE campaign_id = $1 ORDER BY step_number ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign steps: query: %w", err)
	}
	defer rows.Close()

	var steps []domain.CampaignStep
	for rows.Next() {
		var row struct {
			StepNumber int    `db:"step_number"`
			DelayDays  int    `db:"delay_days"`
			IsActive   bool   `db:"is_active"`
			Subject    string `db:"subject"`
			Body       string `db:"body"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("campaign steps: scan: %w", err)
		}
		steps = append(steps, domain.CampaignStep{
			StepNumber: row.StepNumber,
			DelayDays:  row.DelayDays,
			IsActive:   row.IsActive,
			Subject:    row.Subject,
			Body:       row.Body,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign steps: rows err: %w", err)
	}

	return steps, nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/cold-outreach-engine/internal/domain"
	"github.com/acme/cold-outreach-engine/internal/repository"
)

// CampaignRepository implements repository.CampaignRepository using PostgreSQL.
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository constructs a new repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `id, name, status, daily_send_limit, window_start_minute, window_end_minute,
	weekdays_only, time_zone, from_account_id, created_at, updated_at, started_at, completed_at`

// Create inserts a new campaign.
func (r *CampaignRepository) Create(ctx context.Context, campaign *domain.Campaign) error {
	q := `INSERT INTO campaigns (
		id, name, status, daily_send_limit, window_start_minute, window_end_minute,
		weekdays_only, time_zone, from_account_id, created_at, updated_at, started_at, completed_at
	) VALUES (
		:id, :name, :status, :daily_send_limit, :window_start_minute, :window_end_minute,
		:weekdays_only, :time_zone, :from_account_id, :created_at, :updated_at, :started_at, :completed_at
	)`

	if _, err := r.db.NamedExecContext(ctx, q, campaignParams(campaign)); err != nil {
		return fmt.Errorf("campaign repo: insert: %w", err)
	}
	return nil
}

// Get fetches a campaign by id. Steps are loaded separately by the step
// repository.
func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)

	var record campaignRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign repo: get: %w", err)
	}

	campaign := record.toDomain()
	return &campaign, nil
}

// Update updates campaign metadata.
func (r *CampaignRepository) Update(ctx context.Context, campaign *domain.Campaign) error {
	q := `UPDATE campaigns SET
		name = :name,
		status = :status,
		daily_send_limit = :daily_send_limit,
		window_start_minute = :window_start_minute,
		window_end_minute = :window_end_minute,
		weekdays_only = :weekdays_only,
		time_zone = :time_zone,
		from_account_id = :from_account_id,
		updated_at = :updated_at,
		started_at = :started_at,
		completed_at = :completed_at
	 WHERE id = :id`

	res, err := r.db.NamedExecContext(ctx, q, campaignParams(campaign))
	if err != nil {
		return fmt.Errorf("campaign repo: update: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateStatus updates campaign status.
func (r *CampaignRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("campaign repo: update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List returns campaigns with keyset pagination.
func (r *CampaignRepository) List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sqlx.Rows
		err  error
	)
	if afterID != nil {
		rows, err = r.db.QueryxContext(ctx, `SELECT `+campaignColumns+`
			FROM campaigns WHERE id > $1 ORDER BY id ASC LIMIT $2`, *afterID, limit)
	} else {
		rows, err = r.db.QueryxContext(ctx, `SELECT `+campaignColumns+`
			FROM campaigns ORDER BY id ASC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list: %w", err)
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

// ListByStatus returns campaigns filtered by status.
func (r *CampaignRepository) ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT `+campaignColumns+`
		FROM campaigns WHERE status = $1 ORDER BY updated_at ASC LIMIT $2`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list by status: %w", err)
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

func scanCampaigns(rows *sqlx.Rows) ([]*domain.Campaign, error) {
	var results []*domain.Campaign
	for rows.Next() {
		var record campaignRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("campaign repo: scan: %w", err)
		}
		campaign := record.toDomain()
		results = append(results, &campaign)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign repo: rows err: %w", err)
	}
	return results, nil
}

func campaignParams(campaign *domain.Campaign) map[string]any {
	return map[string]any{
		"id":                  campaign.ID,
		"name":                campaign.Name,
		"status":              campaign.Status,
		"daily_send_limit":    campaign.DailySendLimit,
		"window_start_minute": campaign.SendingWindow.Start.Hour*60 + campaign.SendingWindow.Start.Minute,
		"window_end_minute":   campaign.SendingWindow.End.Hour*60 + campaign.SendingWindow.End.Minute,
		"weekdays_only":       campaign.SendingWindow.WeekdaysOnly,
		"time_zone":           campaign.TimeZone,
		"from_account_id":     campaign.FromAccountID,
		"created_at":          campaign.CreatedAt,
		"updated_at":          campaign.UpdatedAt,
		"started_at":          campaign.StartedAt,
		"completed_at":        campaign.CompletedAt,
	}
}

type campaignRecord struct {
	ID                uuid.UUID      `db:"id"`
	Name              string         `db:"name"`
	Status            string         `db:"status"`
	DailySendLimit    int            `db:"daily_send_limit"`
	WindowStartMinute int            `db:"window_start_minute"`
	WindowEndMinute   int            `db:"window_end_minute"`
	WeekdaysOnly      bool           `db:"weekdays_only"`
	TimeZone          string         `db:"time_zone"`
	FromAccountID     sql.NullString `db:"from_account_id"`
	CreatedAt         sql.NullTime   `db:"created_at"`
	UpdatedAt         sql.NullTime   `db:"updated_at"`
	StartedAt         sql.NullTime   `db:"started_at"`
	CompletedAt       sql.NullTime   `db:"completed_at"`
}

func (r campaignRecord) toDomain() domain.Campaign {
	campaign := domain.Campaign{
		ID:             r.ID,
		Name:           r.Name,
		Status:         domain.CampaignStatus(r.Status),
		DailySendLimit: r.DailySendLimit,
		SendingWindow: domain.SendingWindow{
			Start:        minuteToClock(r.WindowStartMinute),
			End:          minuteToClock(r.WindowEndMinute),
			WeekdaysOnly: r.WeekdaysOnly,
		},
		TimeZone:      r.TimeZone,
		FromAccountID: r.FromAccountID.String,
		CreatedAt:     r.CreatedAt.Time,
		UpdatedAt:     r.UpdatedAt.Time,
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		campaign.StartedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		campaign.CompletedAt = &t
	}
	return campaign
}

func minuteToClock(min int) domain.ClockTime {
	return domain.ClockTime{Hour: min / 60, Minute: min % 60}
}

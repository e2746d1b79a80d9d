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

// CampaignStatisticsRepository implements repository.CampaignStatisticsRepository.
type CampaignStatisticsRepository struct {
	db *sqlx.DB
}

// NewCampaignStatisticsRepository builds the repository.
func NewCampaignStatisticsRepository(db *sqlx.DB) *CampaignStatisticsRepository {
	return &CampaignStatisticsRepository{db: db}
}

// Ensure ensures a row exists for the campaign.
func (r *CampaignStatisticsRepository) Ensure(ctx context.Context, campaignID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO campaign_statistics (campaign_id)
		VALUES ($1) ON CONFLICT (campaign_id) DO NOTHING`, campaignID)
	if err != nil {
		return fmt.Errorf("campaign stats: ensure: %w", err)
	}
	return nil
}

// Get retrieves statistics.
func (r *CampaignStatisticsRepository) Get(ctx context.Context, campaignID uuid.UUID) (*domain.CampaignStats, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT emails_sent, emails_delivered, emails_opened, emails_replied,
		delivery_rate, open_rate, reply_rate, updated_at
		FROM campaign_statistics WHERE campaign_id = $1`, campaignID)

	var record statsRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign stats: get: %w", err)
	}

	stats := record.toDomain()
	return &stats, nil
}

// CountOutcomes aggregates sent/delivered counts from the message ledger.
// Read-only, so safe to run concurrently with active sending.
func (r *CampaignStatisticsRepository) CountOutcomes(ctx context.Context, campaignID uuid.UUID) (int64, int64, error) {
	var sent, delivered int64
	err := r.db.QueryRowxContext(ctx, `SELECT
			COUNT(*) FILTER (WHERE m.direction = $2),
			COUNT(*) FILTER (WHERE m.direction = $2 AND m.delivered_at IS NOT NULL)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.campaign_id = $1`, campaignID, domain.DirectionOutbound).Scan(&sent, &delivered)
	if err != nil {
		return 0, 0, fmt.Errorf("campaign stats: count outcomes: %w", err)
	}
	return sent, delivered, nil
}

// Upsert writes the recomputed aggregate. Opened/replied counts are
// materialized by the inbound-sync collaborator and written through as given.
func (r *CampaignStatisticsRepository) Upsert(ctx context.Context, campaignID uuid.UUID, stats *domain.CampaignStats) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO campaign_statistics
		(campaign_id, emails_sent, emails_delivered, emails_opened, emails_replied,
		 delivery_rate, open_rate, reply_rate, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (campaign_id) DO UPDATE SET
			emails_sent = EXCLUDED.emails_sent,
			emails_delivered = EXCLUDED.emails_delivered,
			emails_opened = EXCLUDED.emails_opened,
			emails_replied = EXCLUDED.emails_replied,
			delivery_rate = EXCLUDED.delivery_rate,
			open_rate = EXCLUDED.open_rate,
			reply_rate = EXCLUDED.reply_rate,
			updated_at = NOW()`,
		campaignID, stats.EmailsSent, stats.EmailsDelivered, stats.EmailsOpened, stats.EmailsReplied,
		stats.DeliveryRate, stats.OpenRate, stats.ReplyRate)
	if err != nil {
		return fmt.Errorf("campaign stats: upsert: %w", err)
	}
	return nil
}

type statsRecord struct {
	EmailsSent      int64        `db:"emails_sent"`
	EmailsDelivered int64        `db:"emails_delivered"`
	EmailsOpened    int64        `db:"emails_opened"`
	EmailsReplied   int64        `db:"emails_replied"`
	DeliveryRate    float64      `db:"delivery_rate"`
	OpenRate        float64      `db:"open_rate"`
	ReplyRate       float64      `db:"reply_rate"`
	UpdatedAt       sql.NullTime `db:"updated_at"`
}

func (r statsRecord) toDomain() domain.CampaignStats {
	return domain.CampaignStats{
		EmailsSent:      r.EmailsSent,
		EmailsDelivered: r.EmailsDelivered,
		EmailsOpened:    r.EmailsOpened,
		EmailsReplied:   r.EmailsReplied,
		DeliveryRate:    r.DeliveryRate,
		OpenRate:        r.OpenRate,
		ReplyRate:       r.ReplyRate,
		UpdatedAt:       r.UpdatedAt.Time,
	}
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/cold-outreach-engine/internal/domain"
	"github.com/acme/cold-outreach-engine/internal/repository"
)

// ConversationRepository persists per-(contact, campaign) conversations.
type ConversationRepository struct {
	db *sqlx.DB
}

// NewConversationRepository constructs the repository.
func NewConversationRepository(db *sqlx.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

const conversationColumns = `id, campaign_id, contact_id, subject, status, last_message_at, created_at`

// FindOrCreate returns the conversation for the (contact, campaign) pair,
// creating it lazily on first send. Concurrent creators converge on the same
// row via the pair's uniqueness constraint.
func (r *ConversationRepository) FindOrCreate(ctx context.Context, conversation *domain.Conversation) (*domain.Conversation, error) {
	_, err := r.db.ExecContext(ctx, `INSERT INTO conversations (id, campaign_id, contact_id, subject, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (campaign_id, contact_id) DO NOTHING`,
		conversation.ID, conversation.CampaignID, conversation.ContactID,
		conversation.Subject, conversation.Status, conversation.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("conversation repo: insert: %w", err)
	}

	row := r.db.QueryRowxContext(ctx, `SELECT `+conversationColumns+` FROM conversations
		WHERE campaign_id = $1 AND contact_id = $2`, conversation.CampaignID, conversation.ContactID)

	var record conversationRecord
	if err := row.StructScan(&record); err != nil {
		return nil, fmt.Errorf("conversation repo: fetch after insert: %w", err)
	}

	result := record.toDomain()
	return &result, nil
}

// FindByPair fetches the conversation for a (campaign, contact) pair, or
// ErrNotFound when no send has happened yet.
func (r *ConversationRepository) FindByPair(ctx context.Context, campaignID, contactID uuid.UUID) (*domain.Conversation, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+conversationColumns+` FROM conversations
		WHERE campaign_id = $1 AND contact_id = $2`, campaignID, contactID)

	var record conversationRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("conversation repo: find by pair: %w", err)
	}

	result := record.toDomain()
	return &result, nil
}

// Get fetches a conversation by id.
func (r *ConversationRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)

	var record conversationRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("conversation repo: get: %w", err)
	}

	result := record.toDomain()
	return &result, nil
}

// TouchLastMessage advances the last-message timestamp.
func (r *ConversationRepository) TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE conversations SET last_message_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("conversation repo: touch last message: %w", err)
	}
	return nil
}

// ListByCampaign lists conversations for a campaign.
func (r *ConversationRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT `+conversationColumns+` FROM conversations
		WHERE campaign_id = $1 ORDER BY created_at ASC LIMIT $2`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation repo: list: %w", err)
	}
	defer rows.Close()

	var results []domain.Conversation
	for rows.Next() {
		var record conversationRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("conversation repo: scan: %w", err)
		}
		results = append(results, record.toDomain())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation repo: rows err: %w", err)
	}

	return results, nil
}

type conversationRecord struct {
	ID            uuid.UUID    `db:"id"`
	CampaignID    uuid.UUID    `db:"campaign_id"`
	ContactID     uuid.UUID    `db:"contact_id"`
	Subject       string       `db:"subject"`
	Status        string       `db:"status"`
	LastMessageAt sql.NullTime `db:"last_message_at"`
	CreatedAt     time.Time    `db:"created_at"`
}

func (r conversationRecord) toDomain() domain.Conversation {
	conversation := domain.Conversation{
		ID:         r.ID,
		CampaignID: r.CampaignID,
		ContactID:  r.ContactID,
		Subject:    r.Subject,
		Status:     domain.ConversationStatus(r.Status),
		CreatedAt:  r.CreatedAt,
	}
	if r.LastMessageAt.Valid {
		t := r.LastMessageAt.Time
		conversation.LastMessageAt = &t
	}
	return conversation
}

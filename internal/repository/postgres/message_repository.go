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

// MessageRepository persists messages.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs the repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `id, conversation_id, direction, subject, content, sent_at, delivered_at`

// Create inserts a message.
func (r *MessageRepository) Create(ctx context.Context, message *domain.Message) error {
	q := `INSERT INTO messages (id, conversation_id, direction, subject, content, sent_at, delivered_at)
		VALUES (:id, :conversation_id, :direction, :subject, :content, :sent_at, :delivered_at)`

	params := map[string]any{
		"id":              message.ID,
		"conversation_id": message.ConversationID,
		"direction":       message.Direction,
		"subject":         message.Subject,
		"content":         message.Content,
		"sent_at":         message.SentAt,
		"delivered_at":    message.DeliveredAt,
	}

	if _, err := r.db.NamedExecContext(ctx, q, params); err != nil {
		return fmt.Errorf("message repo: insert: %w", err)
	}
	return nil
}

// Get fetches a message by id.
func (r *MessageRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)

	var record messageRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("message repo: get: %w", err)
	}

	message := record.toDomain()
	return &message, nil
}

// MarkDelivered records provider delivery confirmation.
func (r *MessageRepository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET delivered_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("message repo: mark delivered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("message repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// LatestOutbound returns the most recent outbound message in a conversation,
// or ErrNotFound. Step delays count from this message's sent_at.
func (r *MessageRepository) LatestOutbound(ctx context.Context, conversationID uuid.UUID) (*domain.Message, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1 AND direction = $2
		ORDER BY sent_at DESC LIMIT 1`, conversationID, domain.DirectionOutbound)

	var record messageRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("message repo: latest outbound: %w", err)
	}

	message := record.toDomain()
	return &message, nil
}

// CountOutboundSince counts outbound messages created for a campaign at or
// after the given instant. The daily cap tracker calls this with local
// midnight.
func (r *MessageRepository) CountOutboundSince(ctx context.Context, campaignID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.campaign_id = $1 AND m.direction = $2 AND m.sent_at >= $3`,
		campaignID, domain.DirectionOutbound, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("message repo: count outbound since: %w", err)
	}
	return count, nil
}

// ListByConversation lists messages oldest first.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1 ORDER BY sent_at ASC LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("message repo: list: %w", err)
	}
	defer rows.Close()

	var results []domain.Message
	for rows.Next() {
		var record messageRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("message repo: scan: %w", err)
		}
		results = append(results, record.toDomain())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message repo: rows err: %w", err)
	}

	return results, nil
}

type messageRecord struct {
	ID             uuid.UUID    `db:"id"`
	ConversationID uuid.UUID    `db:"conversation_id"`
	Direction      string       `db:"direction"`
	Subject        string       `db:"subject"`
	Content        string       `db:"content"`
	SentAt         time.Time    `db:"sent_at"`
	DeliveredAt    sql.NullTime `db:"delivered_at"`
}

func (r messageRecord) toDomain() domain.Message {
	message := domain.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Direction:      domain.MessageDirection(r.Direction),
		Subject:        r.Subject,
		Content:        r.Content,
		SentAt:         r.SentAt,
	}
	if r.DeliveredAt.Valid {
		t := r.DeliveredAt.Time
		message.DeliveredAt = &t
	}
	return message
}

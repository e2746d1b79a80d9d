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

// ContactRepository persists contact records.
type ContactRepository struct {
	db *sqlx.DB
}

// NewContactRepository constructs the repository.
func NewContactRepository(db *sqlx.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// Create inserts a contact.
func (r *ContactRepository) Create(ctx context.Context, contact *domain.Contact) error {
	q := `INSERT INTO contacts (id, email, name, contacted_at, created_at)
		VALUES (:id, :email, :name, :contacted_at, :created_at)`

	params := map[string]any{
		"id":           contact.ID,
		"email":        contact.Email,
		"name":         contact.Name,
		"contacted_at": contact.ContactedAt,
		"created_at":   contact.CreatedAt,
	}

	if _, err := r.db.NamedExecContext(ctx, q, params); err != nil {
		return fmt.Errorf("contact repo: insert: %w", err)
	}
	return nil
}

// Get fetches a contact by id.
func (r *ContactRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT id, email, name, contacted_at, created_at
		FROM contacts WHERE id = $1`, id)

	var record contactRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("contact repo: get: %w", err)
	}

	contact := record.toDomain()
	return &contact, nil
}

// MarkContacted stamps the first-contact timestamp. Subsequent sends keep the
// original stamp.
func (r *ContactRepository) MarkContacted(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE contacts SET contacted_at = $1
		WHERE id = $2 AND contacted_at IS NULL`, at, id)
	if err != nil {
		return fmt.Errorf("contact repo: mark contacted: %w", err)
	}
	return nil
}

type contactRecord struct {
	ID          uuid.UUID    `db:"id"`
	Email       string       `db:"email"`
	Name        string       `db:"name"`
	ContactedAt sql.NullTime `db:"contacted_at"`
	CreatedAt   time.Time    `db:"created_at"`
}

func (r contactRecord) toDomain() domain.Contact {
	contact := domain.Contact{
		ID:        r.ID,
		Email:     r.Email,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
	}
	if r.ContactedAt.Valid {
		t := r.ContactedAt.Time
		contact.ContactedAt = &t
	}
	return contact
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/acme/cold-outreach-engine/internal/domain"
	apperrors "github.com/acme/cold-outreach-engine/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// CampaignRepository manages campaign metadata persistence.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *domain.Campaign) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	Update(ctx context.Context, campaign *domain.Campaign) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CampaignStatus) error
	List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.Campaign, error)
	ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error)
}

// CampaignStepRepository manages the ordered step sequence of a campaign.
type CampaignStepRepository interface {
	Replace(ctx context.Context, campaignID uuid.UUID, steps []domain.CampaignStep) error
	List(ctx context.Context, campaignID uuid.UUID) ([]domain.CampaignStep, error)
}

// ContactRepository manages contact records. The engine reads contacts and
// only ever writes the contacted marker.
type ContactRepository interface {
	Create(ctx context.Context, contact *domain.Contact) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Contact, error)
	MarkContacted(ctx context.Context, id uuid.UUID, at time.Time) error
}

// AssignmentRepository manages the many-to-many campaign/contact assignment.
// The sweep only reads assignments; creation belongs to the assignment
// collaborator surface.
type AssignmentRepository interface {
	Assign(ctx context.Context, campaignID uuid.UUID, contactIDs []uuid.UUID) error
	ListContactIDs(ctx context.Context, campaignID uuid.UUID, afterID *uuid.UUID, limit int) ([]uuid.UUID, error)
}

// AttemptLedger is the idempotency primitive: one write-once row per
// (campaign, contact, step). TryClaim returns false when the row already
// exists, which callers must treat as a successful no-op.
type AttemptLedger interface {
	TryClaim(ctx context.Context, campaignID, contactID uuid.UUID, stepNumber int) (bool, error)
	MaxClaimedStep(ctx context.Context, campaignID, contactID uuid.UUID) (int, error)
}

// ConversationRepository manages per-(contact, campaign) conversations.
type ConversationRepository interface {
	FindOrCreate(ctx context.Context, conversation *domain.Conversation) (*domain.Conversation, error)
	FindByPair(ctx context.Context, campaignID, contactID uuid.UUID) (*domain.Conversation, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]domain.Conversation, error)
}

// MessageRepository manages individual messages.
type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	LatestOutbound(ctx context.Context, conversationID uuid.UUID) (*domain.Message, error)
	CountOutboundSince(ctx context.Context, campaignID uuid.UUID, since time.Time) (int64, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.Message, error)
}

// CampaignStatisticsRepository keeps aggregate counters.
type CampaignStatisticsRepository interface {
	Ensure(ctx context.Context, campaignID uuid.UUID) error
	Get(ctx context.Context, campaignID uuid.UUID) (*domain.CampaignStats, error)
	CountOutcomes(ctx context.Context, campaignID uuid.UUID) (sent, delivered int64, err error)
	Upsert(ctx context.Context, campaignID uuid.UUID, stats *domain.CampaignStats) error
}

// DeliveryEventStore is the append-only operational log of worker decisions.
type DeliveryEventStore interface {
	Append(ctx context.Context, event domain.DeliveryEvent) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, day time.Time, limit int, pagingState []byte) ([]domain.DeliveryEvent, []byte, error)
}

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CampaignStatus enumerates lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// ClockTime is a wall-clock time of day without a date, parsed from "HH:MM".
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses an "HH:MM" string.
func ParseClockTime(value string) (ClockTime, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(value, "%d:%d", &hour, &minute); err != nil {
		return ClockTime{}, fmt.Errorf("clock time %q: %w", value, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("clock time %q: out of range", value)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

// Ordinal flattens the clock time for ordering comparisons.
func (c ClockTime) Ordinal() int {
	return c.Hour*100 + c.Minute
}

// String renders the canonical "HH:MM" form.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// SendingWindow is the daily local-time range during which a campaign may
// send. Windows that cross midnight (Start > End) are rejected up front.
type SendingWindow struct {
	Start        ClockTime
	End          ClockTime
	WeekdaysOnly bool
}

// Validate checks the window is well formed.
func (w SendingWindow) Validate() error {
	if w.Start.Ordinal() > w.End.Ordinal() {
		return fmt.Errorf("sending window %s-%s crosses midnight", w.Start, w.End)
	}
	return nil
}

// Campaign models a multi-step cold-outreach sequence definition.
type Campaign struct {
	ID             uuid.UUID
	Name           string
	Status         CampaignStatus
	DailySendLimit int
	SendingWindow  SendingWindow
	TimeZone       string
	FromAccountID  string
	Steps          []CampaignStep
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// Step returns the step with the given number, or nil.
func (c *Campaign) Step(number int) *CampaignStep {
	for i := range c.Steps {
		if c.Steps[i].StepNumber == number {
			return &c.Steps[i]
		}
	}
	return nil
}

// CampaignStep is one message in a campaign's ordered sequence. DelayDays
// counts from the previous step's send and is ignored for step 1. Inactive
// steps are skipped entirely, not delayed.
type CampaignStep struct {
	StepNumber int
	DelayDays  int
	IsActive   bool
	Subject    string
	Body       string
}

// Contact is a recipient. The engine reads contacts and only ever writes the
// contacted marker.
type Contact struct {
	ID          uuid.UUID
	Email       string
	Name        string
	ContactedAt *time.Time
	CreatedAt   time.Time
}

// SendAttempt is the write-once ledger row proving a (campaign, contact,
// step) has been claimed. At most one row per key exists, ever.
type SendAttempt struct {
	CampaignID uuid.UUID
	ContactID  uuid.UUID
	StepNumber int
	CreatedAt  time.Time
}

// ConversationStatus enumerates conversation states.
type ConversationStatus string

const (
	ConversationStatusOpen   ConversationStatus = "open"
	ConversationStatusClosed ConversationStatus = "closed"
)

// Conversation groups all messages exchanged with a contact within one
// campaign. Created lazily on first send.
type Conversation struct {
	ID            uuid.UUID
	CampaignID    uuid.UUID
	ContactID     uuid.UUID
	Subject       string
	Status        ConversationStatus
	LastMessageAt *time.Time
	CreatedAt     time.Time
}

// MessageDirection distinguishes outbound sends from inbound replies.
type MessageDirection string

const (
	DirectionOutbound MessageDirection = "outbound"
	DirectionInbound  MessageDirection = "inbound"
)

// Message is one actual send (or received reply) within a conversation.
// DeliveredAt stays nil until the provider confirms delivery.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Direction      MessageDirection
	Subject        string
	Content        string
	SentAt         time.Time
	DeliveredAt    *time.Time
}

// CampaignStats aggregates per-campaign counters. Opened and replied counts
// are materialized by the inbound-sync collaborator; the aggregator preserves
// them and derives the rates.
type CampaignStats struct {
	EmailsSent      int64
	EmailsDelivered int64
	EmailsOpened    int64
	EmailsReplied   int64
	DeliveryRate    float64
	OpenRate        float64
	ReplyRate       float64
	UpdatedAt       time.Time
}

package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SendJobSchemaVersion pins the wire schema so producers and consumers stay
// in lockstep across deploys.
const SendJobSchemaVersion = 1

// SendJob instructs a worker to send one campaign step to one contact.
type SendJob struct {
	SchemaVersion int       `json:"schema_version"`
	CampaignID    uuid.UUID `json:"campaign_id"`
	ContactID     uuid.UUID `json:"contact_id"`
	StepNumber    int       `json:"step_number"`
	FromAccountID string    `json:"from_account_id,omitempty"`
	TraceID       string    `json:"trace_id"`

	// MessageID is zero for fresh jobs. Retries of a provider failure carry
	// the message created on the first attempt, so the worker re-invokes the
	// provider against the existing row instead of no-opping on the claim.
	MessageID uuid.UUID `json:"message_id,omitempty"`

	Attempt     int     `json:"attempt"`
	MaxAttempts int     `json:"max_attempts"`
	RetryBaseMs int64   `json:"retry_base_ms"`
	RetryMaxMs  int64   `json:"retry_max_ms"`
	RetryJitter float64 `json:"retry_jitter"`

	// NotBefore delays processing: sweep spread offsets and window deferrals
	// both land here. Zero means process immediately.
	NotBefore  time.Time `json:"not_before"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Key derives the deterministic job key. Duplicate enqueues of the same
// logical job share a key and therefore a partition; the ledger remains the
// authoritative dedup layer.
func (j SendJob) Key() []byte {
	return []byte(fmt.Sprintf("%s:%s:%d", j.CampaignID, j.ContactID, j.StepNumber))
}

// Outcome labels carried by OutcomeMessage.
const (
	OutcomeDelivered = "delivered"
	OutcomeDeferred  = "deferred"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
)

// OutcomeMessage reports the result of processing a send job.
type OutcomeMessage struct {
	Job         SendJob    `json:"job"`
	Outcome     string     `json:"outcome"`
	Retryable   bool       `json:"retryable"`
	NextAttempt *time.Time `json:"next_attempt,omitempty"`
	MessageID   uuid.UUID  `json:"message_id,omitempty"`
	Error       string     `json:"error,omitempty"`
	DurationMs  int64      `json:"duration_ms"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

// RetryMessage parks a job on a retry tier until NotBefore passes.
type RetryMessage struct {
	Job       SendJob   `json:"job"`
	NotBefore time.Time `json:"not_before"`
}

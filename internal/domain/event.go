package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryOutcome labels one worker decision in the operational event log.
type DeliveryOutcome string

const (
	OutcomeClaimed      DeliveryOutcome = "claimed"
	OutcomeDeferred     DeliveryOutcome = "deferred"
	OutcomeSkipped      DeliveryOutcome = "skipped"
	OutcomeDelivered    DeliveryOutcome = "delivered"
	OutcomeFailed       DeliveryOutcome = "failed"
	OutcomeDeadLettered DeliveryOutcome = "dead_lettered"
)

// DeliveryEvent is one append-only record of a worker decision for a
// (campaign, contact, step) job attempt. Events are audit data: the ledger
// and message tables remain the source of truth.
type DeliveryEvent struct {
	ID         uuid.UUID
	CampaignID uuid.UUID
	ContactID  uuid.UUID
	StepNumber int
	Attempt    int
	TraceID    string
	Outcome    DeliveryOutcome
	Error      string
	OccurredAt time.Time
}

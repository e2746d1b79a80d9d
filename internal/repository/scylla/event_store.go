package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/cold-outreach-engine/internal/domain"
)

// EventStore appends delivery events to Scylla, partitioned per campaign and
// day. The log is the operational audit trail: every worker decision lands
// here, including dead-letters that have no other user-visible surface.
type EventStore struct {
	session *gocql.Session
}

// NewEventStore creates a new event store.
func NewEventStore(session *gocql.Session) *EventStore {
	return &EventStore{session: session}
}

// Append writes one delivery event.
func (s *EventStore) Append(ctx context.Context, event domain.DeliveryEvent) error {
	bucket := bucketDate(event.OccurredAt)
	if err := s.session.Query(`INSERT INTO delivery_events_by_campaign
		(campaign_id, bucket, event_id, contact_id, step_number, attempt, trace_id, outcome, error, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.CampaignID.String(), bucket, event.ID.String(), event.ContactID.String(),
		event.StepNumber, event.Attempt, event.TraceID, string(event.Outcome), event.Error, event.OccurredAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("event store: insert delivery event: %w", err)
	}
	return nil
}

// ListByCampaign pages through a campaign's events for one local day.
func (s *EventStore) ListByCampaign(ctx context.Context, campaignID uuid.UUID, day time.Time, limit int, pagingState []byte) ([]domain.DeliveryEvent, []byte, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.session.Query(`SELECT event_id, contact_id, step_number, attempt, trace_id, outcome, error, occurred_at
		FROM delivery_events_by_campaign WHERE campaign_id = ? AND bucket = ?`,
		campaignID.String(), bucketDate(day)).WithContext(ctx)
	query = query.PageSize(limit)
	if len(pagingState) > 0 {
		query = query.PageState(pagingState)
	}

	iter := query.Iter()
	events := make([]domain.DeliveryEvent, 0, limit)

	var (
		eventIDStr   string
		contactIDStr string
		stepNumber   int
		attempt      int
		traceID      string
		outcome      string
		errMsg       string
		occurredAt   time.Time
	)

	for iter.Scan(&eventIDStr, &contactIDStr, &stepNumber, &attempt, &traceID, &outcome, &errMsg, &occurredAt) {
		eventID, err := uuid.Parse(eventIDStr)
		if err != nil {
			continue
		}
		contactID, err := uuid.Parse(contactIDStr)
		if err != nil {
			continue
		}

		events = append(events, domain.DeliveryEvent{
			ID:         eventID,
			CampaignID: campaignID,
			ContactID:  contactID,
			StepNumber: stepNumber,
			Attempt:    attempt,
			TraceID:    traceID,
			Outcome:    domain.DeliveryOutcome(outcome),
			Error:      errMsg,
			OccurredAt: occurredAt,
		})
	}

	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("event store: iter close: %w", err)
	}

	return events, iter.PageState(), nil
}

func bucketDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/acme/cold-outreach-engine/internal/domain"
	"github.com/acme/cold-outreach-engine/internal/repository"
	"github.com/acme/cold-outreach-engine/internal/window"
)

// Scheduler decides which step, if any, is due for a contact right now.
// It only ever proposes the step after the highest claimed one, so the
// sequence stays strictly monotonic and gap-free in the ledger.
type Scheduler struct {
	ledger        repository.AttemptLedger
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
}

// NewScheduler constructs a step scheduler.
func NewScheduler(
	ledger repository.AttemptLedger,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
) *Scheduler {
	return &Scheduler{
		ledger:        ledger,
		conversations: conversations,
		messages:      messages,
	}
}

// NextDueStep returns the step due for the contact at now, or nil when
// nothing is due: the sequence is exhausted, the next step's delay has not
// elapsed, or the next step is inactive (inactive steps end consideration at
// that point rather than being jumped over, so a re-activated step resumes
// cleanly from the ledger).
func (s *Scheduler) NextDueStep(ctx context.Context, campaign *domain.Campaign, contactID uuid.UUID, now time.Time) (*domain.CampaignStep, error) {
	lastClaimed, err := s.ledger.MaxClaimedStep(ctx, campaign.ID, contactID)
	if err != nil {
		return nil, fmt.Errorf("sequence: max claimed step: %w", err)
	}

	candidate := campaign.Step(lastClaimed + 1)
	if candidate == nil || !candidate.IsActive {
		return nil, nil
	}

	if candidate.StepNumber == 1 {
		return candidate, nil
	}

	conversation, err := s.conversations.FindByPair(ctx, campaign.ID, contactID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// A claimed earlier step with no conversation means the first
			// send never went through; hold the sequence rather than jump
			// ahead.
			return nil, nil
		}
		return nil, fmt.Errorf("sequence: find conversation: %w", err)
	}

	last, err := s.messages.LatestOutbound(ctx, conversation.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("sequence: latest outbound: %w", err)
	}

	if daysSince(last.SentAt, now) < candidate.DelayDays {
		return nil, nil
	}
	return candidate, nil
}

// RemainingCapacity returns how many more messages the campaign may send
// today: dailySendLimit minus outbound messages created since local midnight,
// floored at zero. The sweep reads this once per campaign pass; bounded
// overshoot from in-flight jobs is an accepted trade-off.
func RemainingCapacity(ctx context.Context, messages repository.MessageRepository, campaign *domain.Campaign, now time.Time) (int, error) {
	midnight := window.LocalMidnight(campaign, now)
	sent, err := messages.CountOutboundSince(ctx, campaign.ID, midnight)
	if err != nil {
		return 0, fmt.Errorf("sequence: count sent today: %w", err)
	}

	remaining := campaign.DailySendLimit - int(sent)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func daysSince(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}

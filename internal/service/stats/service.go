package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/acme/cold-outreach-engine/internal/domain"
	"github.com/acme/cold-outreach-engine/internal/repository"
)

// Service recomputes campaign aggregates from the message tables. Counters
// are derived, never incremented, so a replayed outcome cannot drift them.
type Service struct {
	stats repository.CampaignStatisticsRepository
}

// NewService constructs a stats service.
func NewService(stats repository.CampaignStatisticsRepository) *Service {
	return &Service{stats: stats}
}

// Recompute refreshes the campaign's aggregate row. Opened and replied
// counts come from inbound tracking outside this engine and are preserved
// as stored.
func (s *Service) Recompute(ctx context.Context, campaignID uuid.UUID) (*domain.CampaignStats, error) {
	sent, delivered, err := s.stats.CountOutcomes(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("stats service: count outcomes: %w", err)
	}

	if err := s.stats.Ensure(ctx, campaignID); err != nil {
		return nil, fmt.Errorf("stats service: ensure row: %w", err)
	}
	existing, err := s.stats.Get(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("stats service: load existing: %w", err)
	}

	updated := &domain.CampaignStats{
		EmailsSent:      sent,
		EmailsDelivered: delivered,
		EmailsOpened:    existing.EmailsOpened,
		EmailsReplied:   existing.EmailsReplied,
		UpdatedAt:       time.Now().UTC(),
	}
	updated.DeliveryRate = rate(delivered, sent)
	updated.OpenRate = rate(existing.EmailsOpened, sent)
	updated.ReplyRate = rate(existing.EmailsReplied, sent)

	if err := s.stats.Upsert(ctx, campaignID, updated); err != nil {
		return nil, fmt.Errorf("stats service: upsert: %w", err)
	}
	return updated, nil
}

// rate is a percentage, 0 when nothing was sent.
func rate(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

package stats

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/cold-outreach-engine/internal/domain"
)

type fakeStatsRepo struct {
	sent      int64
	delivered int64
	stored    map[uuid.UUID]*domain.CampaignStats
}

func (f *fakeStatsRepo) Ensure(_ context.Context, campaignID uuid.UUID) error {
	if _, ok := f.stored[campaignID]; !ok {
		f.stored[campaignID] = &domain.CampaignStats{}
	}
	return nil
}

func (f *fakeStatsRepo) Get(_ context.Context, campaignID uuid.UUID) (*domain.CampaignStats, error) {
	s, ok := f.stored[campaignID]
	if !ok {
		return &domain.CampaignStats{}, nil
	}
	copied := *s
	return &copied, nil
}

func (f *fakeStatsRepo) CountOutcomes(_ context.Context, _ uuid.UUID) (int64, int64, error) {
	return f.sent, f.delivered, nil
}

func (f *fakeStatsRepo) Upsert(_ context.Context, campaignID uuid.UUID, stats *domain.CampaignStats) error {
	copied := *stats
	f.stored[campaignID] = &copied
	return nil
}

func TestRecomputeDerivesRates(t *testing.T) {
	repo := &fakeStatsRepo{sent: 10, delivered: 8, stored: map[uuid.UUID]*domain.CampaignStats{}}
	svc := NewService(repo)
	campaignID := uuid.New()

	stats, err := svc.Recompute(context.Background(), campaignID)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if stats.EmailsSent != 10 || stats.EmailsDelivered != 8 {
		t.Fatalf("counts = %d/%d, want 10/8", stats.EmailsSent, stats.EmailsDelivered)
	}
	if stats.DeliveryRate != 80 {
		t.Fatalf("delivery rate = %v, want 80", stats.DeliveryRate)
	}
	if stored := repo.stored[campaignID]; stored == nil || stored.EmailsSent != 10 {
		t.Fatal("expected recomputed stats persisted")
	}
}

func TestRecomputePreservesInboundCounters(t *testing.T) {
	repo := &fakeStatsRepo{sent: 4, delivered: 4, stored: map[uuid.UUID]*domain.CampaignStats{}}
	svc := NewService(repo)
	campaignID := uuid.New()
	repo.stored[campaignID] = &domain.CampaignStats{
		EmailsOpened:  3,
		EmailsReplied: 1,
		UpdatedAt:     time.Now().Add(-time.Hour),
	}

	stats, err := svc.Recompute(context.Background(), campaignID)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if stats.EmailsOpened != 3 || stats.EmailsReplied != 1 {
		t.Fatalf("inbound counters = %d/%d, want 3/1", stats.EmailsOpened, stats.EmailsReplied)
	}
	if stats.OpenRate != 75 {
		t.Fatalf("open rate = %v, want 75", stats.OpenRate)
	}
	if stats.ReplyRate != 25 {
		t.Fatalf("reply rate = %v, want 25", stats.ReplyRate)
	}
}

func TestRecomputeZeroSentHasZeroRates(t *testing.T) {
	repo := &fakeStatsRepo{stored: map[uuid.UUID]*domain.CampaignStats{}}
	svc := NewService(repo)

	stats, err := svc.Recompute(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if stats.DeliveryRate != 0 || stats.OpenRate != 0 || stats.ReplyRate != 0 {
		t.Fatalf("rates must be zero with nothing sent, got %+v", stats)
	}
}

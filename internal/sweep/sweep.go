package sweep

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/cold-outreach-engine/internal/config"
	"github.com/acme/cold-outreach-engine/internal/domain"
	"github.com/acme/cold-outreach-engine/internal/queue"
	"github.com/acme/cold-outreach-engine/internal/repository"
	"github.com/acme/cold-outreach-engine/internal/service/sequence"
	"github.com/acme/cold-outreach-engine/internal/window"
	"github.com/acme/cold-outreach-engine/pkg/logger"
)

// CampaignLister yields active campaigns with steps populated.
type CampaignLister interface {
	ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error)
}

// StepPlanner decides which step is due for a contact.
type StepPlanner interface {
	NextDueStep(ctx context.Context, campaign *domain.Campaign, contactID uuid.UUID, now time.Time) (*domain.CampaignStep, error)
}

// Dispatcher pushes send jobs onto the dispatch topic.
type Dispatcher interface {
	Dispatch(ctx context.Context, job queue.SendJob) error
}

// Locker serializes passes per campaign across replicas.
type Locker interface {
	Acquire(ctx context.Context, campaignID uuid.UUID) (string, bool, error)
	Release(ctx context.Context, campaignID uuid.UUID, token string) error
}

// Result summarizes one sweep pass.
type Result struct {
	CampaignsSeen    int `json:"campaigns_seen"`
	CampaignsSkipped int `json:"campaigns_skipped"`
	CampaignsFailed  int `json:"campaigns_failed"`
	JobsEnqueued     int `json:"jobs_enqueued"`
}

// Sweep walks active campaigns and enqueues every job that is due right
// now. It holds no state between passes; any replica can run one at any
// time and the per-campaign lock plus the attempt ledger keep concurrent
// passes harmless.
type Sweep struct {
	lister      CampaignLister
	assignments repository.AssignmentRepository
	messages    repository.MessageRepository
	planner     StepPlanner
	dispatcher  Dispatcher
	locker      Locker
	cfg         config.SweepConfig
	retry       config.RetryConfig
	log         *logger.Logger
	now         func() time.Time
}

// New constructs a sweep.
func New(
	lister CampaignLister,
	assignments repository.AssignmentRepository,
	messages repository.MessageRepository,
	planner StepPlanner,
	dispatcher Dispatcher,
	locker Locker,
	cfg config.SweepConfig,
	retry config.RetryConfig,
	log *logger.Logger,
) *Sweep {
	if cfg.CampaignFetchLimit <= 0 {
		cfg.CampaignFetchLimit = 100
	}
	if cfg.ContactBatchSize <= 0 {
		cfg.ContactBatchSize = 500
	}
	return &Sweep{
		lister:      lister,
		assignments: assignments,
		messages:    messages,
		planner:     planner,
		dispatcher:  dispatcher,
		locker:      locker,
		cfg:         cfg,
		retry:       retry,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Pass runs one sweep over all active campaigns. Failures are isolated per
// campaign: one broken campaign never blocks the rest.
func (s *Sweep) Pass(ctx context.Context) (Result, error) {
	tracer := otel.Tracer("outreach.sweep")
	sctx, span := tracer.Start(ctx, "sweep.pass")
	defer span.End()

	var result Result

	campaigns, err := s.lister.ListByStatus(sctx, domain.CampaignStatusActive, s.cfg.CampaignFetchLimit)
	if err != nil {
		span.RecordError(err)
		return result, err
	}
	span.SetAttributes(attribute.Int("campaign.count", len(campaigns)))

	for _, campaign := range campaigns {
		result.CampaignsSeen++

		enqueued, skipped, err := s.sweepCampaign(sctx, tracer, campaign)
		result.JobsEnqueued += enqueued
		if skipped {
			result.CampaignsSkipped++
			continue
		}
		if err != nil {
			result.CampaignsFailed++
			s.log.Error("sweep: campaign pass failed",
				zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
		}
	}

	span.SetAttributes(attribute.Int("jobs.enqueued", result.JobsEnqueued))
	return result, nil
}

func (s *Sweep) sweepCampaign(ctx context.Context, tracer trace.Tracer, campaign *domain.Campaign) (int, bool, error) {
	cctx, span := tracer.Start(ctx, "sweep.campaign", trace.WithAttributes(
		attribute.String("campaign.id", campaign.ID.String()),
	))
	defer span.End()

	token, acquired, err := s.locker.Acquire(cctx, campaign.ID)
	if err != nil {
		span.RecordError(err)
		return 0, false, err
	}
	if !acquired {
		return 0, true, nil
	}
	defer func() {
		if err := s.locker.Release(cctx, campaign.ID, token); err != nil {
			s.log.Warn("sweep: lock release failed",
				zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
		}
	}()

	now := s.now()
	if !window.Sendable(campaign, now) {
		return 0, true, nil
	}

	capacity, err := sequence.RemainingCapacity(cctx, s.messages, campaign, now)
	if err != nil {
		span.RecordError(err)
		return 0, false, err
	}
	if capacity == 0 {
		return 0, true, nil
	}

	enqueued, err := s.enqueueDue(cctx, campaign, now, capacity)
	if err != nil {
		span.RecordError(err)
	}
	span.SetAttributes(attribute.Int("jobs.enqueued", enqueued))
	return enqueued, false, err
}

// enqueueDue walks the campaign's contacts in batches and dispatches a job
// per due step until daily capacity runs out. An enqueue failure aborts the
// campaign's pass; anything already enqueued stands, and the ledger absorbs
// the re-enqueue on the next pass.
func (s *Sweep) enqueueDue(ctx context.Context, campaign *domain.Campaign, now time.Time, capacity int) (int, error) {
	spread := newSpreader(now, s.cfg.SpreadStep)
	enqueued := 0

	var afterID *uuid.UUID
	for {
		contactIDs, err := s.assignments.ListContactIDs(ctx, campaign.ID, afterID, s.cfg.ContactBatchSize)
		if err != nil {
			return enqueued, err
		}
		if len(contactIDs) == 0 {
			return enqueued, nil
		}

		for _, contactID := range contactIDs {
			step, err := s.planner.NextDueStep(ctx, campaign, contactID, now)
			if err != nil {
				return enqueued, err
			}
			if step == nil {
				continue
			}

			job := queue.SendJob{
				SchemaVersion: queue.SendJobSchemaVersion,
				CampaignID:    campaign.ID,
				ContactID:     contactID,
				StepNumber:    step.StepNumber,
				FromAccountID: campaign.FromAccountID,
				TraceID:       uuid.NewString(),
				Attempt:       1,
				MaxAttempts:   s.retry.MaxAttempts,
				RetryBaseMs:   s.retry.BaseDelay.Milliseconds(),
				RetryMaxMs:    s.retry.MaxDelay.Milliseconds(),
				RetryJitter:   s.retry.Jitter,
				NotBefore:     spread.next(),
				EnqueuedAt:    now,
			}
			if err := s.dispatcher.Dispatch(ctx, job); err != nil {
				return enqueued, err
			}
			enqueued++

			capacity--
			if capacity == 0 {
				return enqueued, nil
			}
		}

		if len(contactIDs) < s.cfg.ContactBatchSize {
			return enqueued, nil
		}
		last := contactIDs[len(contactIDs)-1]
		afterID = &last
	}
}

// spreader staggers job NotBefore stamps so a big batch does not land on
// the provider in one burst. Offsets never cross into the next minute, so
// spread jobs cannot leak past a window that closes on the hour.
type spreader struct {
	base   time.Time
	step   time.Duration
	limit  time.Duration
	offset time.Duration
}

func newSpreader(now time.Time, step time.Duration) *spreader {
	return &spreader{
		base:  now,
		step:  step,
		limit: now.Truncate(time.Minute).Add(time.Minute).Sub(now),
	}
}

func (s *spreader) next() time.Time {
	at := s.base.Add(s.offset)
	if s.step > 0 {
		s.offset += s.step
		if s.offset >= s.limit {
			s.offset = 0
		}
	}
	return at
}

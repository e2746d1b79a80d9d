package send

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/cold-outreach-engine/internal/delivery"
	"github.com/acme/cold-outreach-engine/internal/domain"
	"github.com/acme/cold-outreach-engine/internal/queue"
	"github.com/acme/cold-outreach-engine/internal/repository"
	"github.com/acme/cold-outreach-engine/internal/template"
	"github.com/acme/cold-outreach-engine/internal/window"
	"github.com/acme/cold-outreach-engine/pkg/logger"
)

// Service executes one send job end to end: re-validate, claim, create the
// message, invoke the provider, record the result. It is safe to call with
// the same job any number of times; the attempt ledger collapses duplicates.
type Service struct {
	campaigns      repository.CampaignRepository
	steps          repository.CampaignStepRepository
	contacts       repository.ContactRepository
	conversations  repository.ConversationRepository
	messages       repository.MessageRepository
	ledger         repository.AttemptLedger
	events         repository.DeliveryEventStore
	provider       delivery.Provider
	renderer       template.Renderer
	requestTimeout time.Duration
	log            *logger.Logger
	now            func() time.Time
}

// NewService constructs the send service.
func NewService(
	campaigns repository.CampaignRepository,
	steps repository.CampaignStepRepository,
	contacts repository.ContactRepository,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	ledger repository.AttemptLedger,
	events repository.DeliveryEventStore,
	provider delivery.Provider,
	renderer template.Renderer,
	requestTimeout time.Duration,
	log *logger.Logger,
) *Service {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Service{
		campaigns:      campaigns,
		steps:          steps,
		contacts:       contacts,
		conversations:  conversations,
		messages:       messages,
		ledger:         ledger,
		events:         events,
		provider:       provider,
		renderer:       renderer,
		requestTimeout: requestTimeout,
		log:            log,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Process handles one dequeued job and returns the outcome to publish. The
// returned error marks infrastructure failures only; business rejections
// (paused campaign, duplicate claim, provider refusal) come back as outcomes.
func (s *Service) Process(ctx context.Context, job queue.SendJob) (queue.OutcomeMessage, error) {
	started := s.now()

	if job.SchemaVersion != queue.SendJobSchemaVersion {
		s.log.Warn("send service: dropping job with unknown schema version",
			zap.Int("schema_version", job.SchemaVersion), zap.String("trace_id", job.TraceID))
		return s.discard(ctx, job, started, "unknown schema version"), nil
	}

	campaign, err := s.loadCampaign(ctx, job.CampaignID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.discard(ctx, job, started, "campaign not found"), nil
		}
		return queue.OutcomeMessage{}, err
	}
	if campaign.Status != domain.CampaignStatusActive {
		return s.discard(ctx, job, started, fmt.Sprintf("campaign is %s", campaign.Status)), nil
	}

	// The window is re-checked at processing time: a job may sit on the queue
	// long enough for the window to close. Deferral does not consume an
	// attempt.
	if !window.Sendable(campaign, started) {
		next := window.NextOpening(campaign, started)
		s.appendEvent(ctx, job, domain.OutcomeDeferred, "outside sending window")
		return queue.OutcomeMessage{
			Job:         job,
			Outcome:     queue.OutcomeDeferred,
			NextAttempt: &next,
			DurationMs:  s.sinceMs(started),
			OccurredAt:  s.now(),
		}, nil
	}

	claimed, err := s.ledger.TryClaim(ctx, job.CampaignID, job.ContactID, job.StepNumber)
	if err != nil {
		return queue.OutcomeMessage{}, fmt.Errorf("send service: claim attempt: %w", err)
	}

	if !claimed {
		if job.MessageID == uuid.Nil {
			// A duplicate of a job some other worker already owns. The claim
			// winner handles delivery; this copy vanishes.
			return s.discard(ctx, job, started, "step already claimed"), nil
		}
		return s.redeliver(ctx, campaign, job, started)
	}

	s.appendEvent(ctx, job, domain.OutcomeClaimed, "")
	return s.deliverFresh(ctx, campaign, job, started)
}

// deliverFresh runs the first delivery of a claimed step: create the
// conversation and message rows, then invoke the provider.
func (s *Service) deliverFresh(ctx context.Context, campaign *domain.Campaign, job queue.SendJob, started time.Time) (queue.OutcomeMessage, error) {
	step := campaign.Step(job.StepNumber)
	if step == nil {
		s.log.Warn("send service: claimed job references missing step",
			zap.String("campaign_id", job.CampaignID.String()),
			zap.Int("step_number", job.StepNumber),
			zap.String("trace_id", job.TraceID))
		return s.discard(ctx, job, started, "step no longer exists"), nil
	}

	contact, err := s.contacts.Get(ctx, job.ContactID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("send service: claimed job references missing contact",
				zap.String("contact_id", job.ContactID.String()),
				zap.String("trace_id", job.TraceID))
			return s.discard(ctx, job, started, "contact no longer exists"), nil
		}
		return queue.OutcomeMessage{}, fmt.Errorf("send service: load contact: %w", err)
	}

	subject := s.renderer.Render(step.Subject, contact)
	body := s.renderer.Render(step.Body, contact)
	now := s.now()

	conversation, err := s.conversations.FindOrCreate(ctx, &domain.Conversation{
		ID:         uuid.New(),
		CampaignID: campaign.ID,
		ContactID:  contact.ID,
		Subject:    subject,
		Status:     domain.ConversationStatusOpen,
		CreatedAt:  now,
	})
	if err != nil {
		return queue.OutcomeMessage{}, fmt.Errorf("send service: conversation: %w", err)
	}

	message := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conversation.ID,
		Direction:      domain.DirectionOutbound,
		Subject:        subject,
		Content:        body,
		SentAt:         now,
	}
	if err := s.messages.Create(ctx, message); err != nil {
		return queue.OutcomeMessage{}, fmt.Errorf("send service: create message: %w", err)
	}

	return s.invokeProvider(ctx, campaign, job, contact, conversation, message, subject, body, started)
}

// redeliver retries the provider call for a message created by an earlier
// attempt of the same job. A message that was delivered in the meantime
// makes the retry a no-op.
func (s *Service) redeliver(ctx context.Context, campaign *domain.Campaign, job queue.SendJob, started time.Time) (queue.OutcomeMessage, error) {
	message, err := s.messages.Get(ctx, job.MessageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("send service: retry job references missing message",
				zap.String("message_id", job.MessageID.String()),
				zap.String("trace_id", job.TraceID))
			return s.discard(ctx, job, started, "message no longer exists"), nil
		}
		return queue.OutcomeMessage{}, fmt.Errorf("send service: load message: %w", err)
	}
	if message.DeliveredAt != nil {
		return s.discard(ctx, job, started, "message already delivered"), nil
	}

	contact, err := s.contacts.Get(ctx, job.ContactID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.discard(ctx, job, started, "contact no longer exists"), nil
		}
		return queue.OutcomeMessage{}, fmt.Errorf("send service: load contact: %w", err)
	}

	conversation, err := s.conversations.Get(ctx, message.ConversationID)
	if err != nil {
		return queue.OutcomeMessage{}, fmt.Errorf("send service: load conversation: %w", err)
	}

	return s.invokeProvider(ctx, campaign, job, contact, conversation, message, message.Subject, message.Content, started)
}

func (s *Service) invokeProvider(
	ctx context.Context,
	campaign *domain.Campaign,
	job queue.SendJob,
	contact *domain.Contact,
	conversation *domain.Conversation,
	message *domain.Message,
	subject, body string,
	started time.Time,
) (queue.OutcomeMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	result, err := s.provider.SendEmail(callCtx, delivery.EmailRequest{
		MessageID:     message.ID.String(),
		FromAccountID: campaign.FromAccountID,
		ToEmail:       contact.Email,
		Subject:       subject,
		Body:          body,
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return queue.OutcomeMessage{}, fmt.Errorf("send service: provider: %w", err)
	}

	if result.Accepted {
		deliveredAt := s.now()
		if err := s.messages.MarkDelivered(ctx, message.ID, deliveredAt); err != nil {
			return queue.OutcomeMessage{}, fmt.Errorf("send service: mark delivered: %w", err)
		}
		if err := s.conversations.TouchLastMessage(ctx, conversation.ID, deliveredAt); err != nil {
			return queue.OutcomeMessage{}, fmt.Errorf("send service: touch conversation: %w", err)
		}
		if err := s.contacts.MarkContacted(ctx, contact.ID, deliveredAt); err != nil {
			return queue.OutcomeMessage{}, fmt.Errorf("send service: mark contacted: %w", err)
		}
		s.appendEvent(ctx, job, domain.OutcomeDelivered, "")
		return queue.OutcomeMessage{
			Job:        job,
			Outcome:    queue.OutcomeDelivered,
			MessageID:  message.ID,
			DurationMs: s.sinceMs(started),
			OccurredAt: s.now(),
		}, nil
	}

	s.appendEvent(ctx, job, domain.OutcomeFailed, result.Error)
	return queue.OutcomeMessage{
		Job:        job,
		Outcome:    queue.OutcomeFailed,
		Retryable:  result.Retryable,
		MessageID:  message.ID,
		Error:      result.Error,
		DurationMs: s.sinceMs(started),
		OccurredAt: s.now(),
	}, nil
}

func (s *Service) loadCampaign(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	campaign, err := s.campaigns.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("send service: load campaign: %w", err)
	}
	steps, err := s.steps.List(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("send service: load steps: %w", err)
	}
	campaign.Steps = steps
	return campaign, nil
}

// discard drops a job that must not (or cannot) be sent. The skip lands in
// the event log so an operator can see why a contact never got the step.
func (s *Service) discard(ctx context.Context, job queue.SendJob, started time.Time, reason string) queue.OutcomeMessage {
	s.appendEvent(ctx, job, domain.OutcomeSkipped, reason)
	return queue.OutcomeMessage{
		Job:        job,
		Outcome:    queue.OutcomeDiscarded,
		Error:      reason,
		DurationMs: s.sinceMs(started),
		OccurredAt: s.now(),
	}
}

// appendEvent records an audit event. Event log failures never fail the job.
func (s *Service) appendEvent(ctx context.Context, job queue.SendJob, outcome domain.DeliveryOutcome, detail string) {
	event := domain.DeliveryEvent{
		ID:         uuid.New(),
		CampaignID: job.CampaignID,
		ContactID:  job.ContactID,
		StepNumber: job.StepNumber,
		Attempt:    job.Attempt,
		TraceID:    job.TraceID,
		Outcome:    outcome,
		Error:      detail,
		OccurredAt: s.now(),
	}
	if err := s.events.Append(ctx, event); err != nil {
		s.log.Warn("send service: delivery event append failed",
			zap.Error(err), zap.String("trace_id", job.TraceID))
	}
}

func (s *Service) sinceMs(started time.Time) int64 {
	return s.now().Sub(started).Milliseconds()
}

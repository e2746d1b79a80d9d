package status

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/cold-outreach-engine/internal/app"
	"github.com/acme/cold-outreach-engine/internal/domain"
	"github.com/acme/cold-outreach-engine/internal/queue"
)

// Worker consumes send outcomes: it refreshes stats, routes retryable
// failures to the tiered retry topics and parks exhausted jobs on the
// dead-letter topic.
type Worker struct {
	container *app.Container
}

// New creates a status worker.
func New(container *app.Container) *Worker {
	return &Worker{container: container}
}

// Run processes outcome events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.container.Config
	groupID := cfg.Kafka.ConsumerGroupID + "-status"
	reader := w.container.Kafka.NewReader(cfg.Kafka.OutcomeTopic, groupID)
	defer reader.Close()

	logger := w.container.Logger

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("status worker: fetch", zap.Error(err))
			continue
		}

		var outcome queue.OutcomeMessage
		if err := json.Unmarshal(msg.Value, &outcome); err != nil {
			logger.Error("status worker: unmarshal", zap.Error(err))
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		w.handleOutcome(ctx, outcome)

		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error("status worker: commit", zap.Error(err))
		}
	}
}

func (w *Worker) handleOutcome(ctx context.Context, outcome queue.OutcomeMessage) {
	logger := w.container.Logger
	tracer := otel.Tracer("outreach.statusworker")
	sctx, span := tracer.Start(ctx, "send.outcome", trace.WithAttributes(
		attribute.String("campaign.id", outcome.Job.CampaignID.String()),
		attribute.String("contact.id", outcome.Job.ContactID.String()),
		attribute.Int("step.number", outcome.Job.StepNumber),
		attribute.Int("attempt", outcome.Job.Attempt),
		attribute.String("outcome", outcome.Outcome),
	))
	defer span.End()

	switch outcome.Outcome {
	case queue.OutcomeDelivered:
		w.recompute(sctx, span, outcome.Job.CampaignID)

	case queue.OutcomeDeferred:
		// Deferral re-parks the job untouched: the attempt counter does not
		// move because the provider was never invoked.
		if outcome.NextAttempt == nil {
			logger.Warn("status worker: deferred outcome without next attempt",
				zap.String("trace_id", outcome.Job.TraceID))
			return
		}
		w.scheduleRetry(sctx, span, outcome.Job, *outcome.NextAttempt)

	case queue.OutcomeFailed:
		if outcome.Retryable && outcome.NextAttempt != nil {
			job := outcome.Job
			job.Attempt++
			job.MessageID = outcome.MessageID
			w.scheduleRetry(sctx, span, job, *outcome.NextAttempt)
			return
		}
		w.deadLetter(sctx, span, outcome)
		w.recompute(sctx, span, outcome.Job.CampaignID)

	case queue.OutcomeDiscarded:
		// Nothing to do; the job evaporated by design.
	}
}

func (w *Worker) recompute(ctx context.Context, span trace.Span, campaignID uuid.UUID) {
	if _, err := w.container.Services().Stats.Recompute(ctx, campaignID); err != nil {
		span.RecordError(err)
		w.container.Logger.Error("status worker: recompute stats", zap.Error(err))
	}
}

func (w *Worker) scheduleRetry(ctx context.Context, span trace.Span, job queue.SendJob, notBefore time.Time) {
	job.NotBefore = notBefore
	tier := job.Attempt - 1
	if tier < 1 {
		tier = 1
	}
	retryMsg := queue.RetryMessage{Job: job, NotBefore: notBefore}
	if err := w.container.Dispatchers().Retry.Schedule(ctx, tier, retryMsg); err != nil {
		span.RecordError(err)
		w.container.Logger.Error("status worker: schedule retry", zap.Error(err))
	}
}

func (w *Worker) deadLetter(ctx context.Context, span trace.Span, outcome queue.OutcomeMessage) {
	logger := w.container.Logger

	if err := w.container.Dispatchers().DeadLetter.Publish(ctx, outcome); err != nil {
		span.RecordError(err)
		logger.Error("status worker: dead letter publish", zap.Error(err))
		return
	}

	event := domain.DeliveryEvent{
		ID:         uuid.New(),
		CampaignID: outcome.Job.CampaignID,
		ContactID:  outcome.Job.ContactID,
		StepNumber: outcome.Job.StepNumber,
		Attempt:    outcome.Job.Attempt,
		TraceID:    outcome.Job.TraceID,
		Outcome:    domain.OutcomeDeadLettered,
		Error:      outcome.Error,
		OccurredAt: time.Now().UTC(),
	}
	if err := w.container.Repositories().Events.Append(ctx, event); err != nil {
		span.RecordError(err)
		logger.Warn("status worker: append dead letter event", zap.Error(err))
	}
}

package send

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/cold-outreach-engine/internal/app"
	"github.com/acme/cold-outreach-engine/internal/queue"
)

// Worker consumes send jobs from the dispatch topic and executes them.
type Worker struct {
	container *app.Container
	rng       *rand.Rand
}

// New creates a send worker.
func New(container *app.Container) *Worker {
	return &Worker{
		container: container,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run starts the worker loop.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.container.Config
	reader := w.container.Kafka.NewReader(cfg.Kafka.DispatchTopic, cfg.Kafka.ConsumerGroupID)
	defer reader.Close()

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.container.Logger.Error("send worker: fetch message", zap.Error(err))
			continue
		}

		if err := w.processMessage(ctx, reader, m); err != nil {
			w.container.Logger.Error("send worker: process", zap.Error(err))
		}
	}
}

func (w *Worker) processMessage(ctx context.Context, reader *kafka.Reader, m kafka.Message) error {
	var job queue.SendJob
	if err := json.Unmarshal(m.Value, &job); err != nil {
		_ = reader.CommitMessages(ctx, m)
		return fmt.Errorf("unmarshal job: %w", err)
	}

	tracer := otel.Tracer("outreach.sendworker")
	sctx, span := tracer.Start(ctx, "send.job", trace.WithAttributes(
		attribute.String("campaign.id", job.CampaignID.String()),
		attribute.String("contact.id", job.ContactID.String()),
		attribute.Int("step.number", job.StepNumber),
		attribute.Int("attempt", job.Attempt),
	))
	defer span.End()

	// Spread offsets and window deferrals land here; the partition stalls
	// until NotBefore passes, which is acceptable because all jobs on it
	// carry comparable offsets.
	if err := w.sleepUntil(sctx, job.NotBefore); err != nil {
		span.RecordError(err)
		return err
	}

	outcome, err := w.container.Services().Send.Process(sctx, job)
	if err != nil {
		// Infrastructure failure: leave the message uncommitted so the
		// fetch is retried. The ledger makes the replay safe.
		span.RecordError(err)
		return err
	}

	if outcome.Outcome == queue.OutcomeFailed {
		outcome.Retryable = outcome.Retryable && job.Attempt < job.MaxAttempts
		if outcome.Retryable {
			next := w.computeNextAttempt(job)
			outcome.NextAttempt = &next
		}
	}

	if err := w.container.Dispatchers().Outcomes.Publish(sctx, outcome); err != nil {
		span.RecordError(err)
		return fmt.Errorf("publish outcome: %w", err)
	}

	if err := reader.CommitMessages(sctx, m); err != nil {
		span.RecordError(err)
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}

func (w *Worker) sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (w *Worker) computeNextAttempt(job queue.SendJob) time.Time {
	base := time.Duration(job.RetryBaseMs) * time.Millisecond
	if base <= 0 {
		base = 2 * time.Second
	}
	maxDelay := time.Duration(job.RetryMaxMs) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = 2 * time.Minute
	}

	exponent := math.Pow(2, float64(job.Attempt-1))
	delay := time.Duration(exponent) * base
	if delay > maxDelay {
		delay = maxDelay
	}

	if job.RetryJitter > 0 {
		jitterFraction := w.rng.Float64()*job.RetryJitter - (job.RetryJitter / 2)
		delay += time.Duration(float64(delay) * jitterFraction)
		if delay < base {
			delay = base
		}
	}

	return time.Now().UTC().Add(delay)
}

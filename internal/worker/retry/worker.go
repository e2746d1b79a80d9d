package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/cold-outreach-engine/internal/app"
	"github.com/acme/cold-outreach-engine/internal/queue"
)

// Worker drains the tiered retry topics. Each tier gets its own consumer
// goroutine; a tier holding a far-future job blocks only itself.
type Worker struct {
	container *app.Container
}

// New creates a retry worker.
func New(container *app.Container) *Worker {
	return &Worker{container: container}
}

// Run consumes every configured retry tier until cancelled.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.container.Config
	if len(cfg.Kafka.RetryTopics) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(cfg.Kafka.RetryTopics))
	var wg sync.WaitGroup

	for idx, topic := range cfg.Kafka.RetryTopics {
		wg.Add(1)
		go func(topic string, tier int) {
			defer wg.Done()
			if err := w.consumeTopic(ctx, topic, tier); err != nil && ctx.Err() == nil {
				errCh <- err
			}
		}(topic, idx+1)
	}

	select {
	case <-ctx.Done():
		wg.Wait()
		return ctx.Err()
	case err := <-errCh:
		cancel()
		wg.Wait()
		return err
	}
}

func (w *Worker) consumeTopic(ctx context.Context, topic string, tier int) error {
	cfg := w.container.Config
	groupID := cfg.Kafka.RetryConsumerGroupID
	if groupID == "" {
		groupID = fmt.Sprintf("%s-retry-%d", cfg.Kafka.ConsumerGroupID, tier)
	} else {
		groupID = fmt.Sprintf("%s-%d", groupID, tier)
	}

	reader := w.container.Kafka.NewReader(topic, groupID)
	defer reader.Close()

	dispatcher := w.container.Dispatchers().Jobs
	logger := w.container.Logger

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("retry worker: fetch", zap.Error(err))
			continue
		}

		var retryMsg queue.RetryMessage
		if err := json.Unmarshal(msg.Value, &retryMsg); err != nil {
			logger.Error("retry worker: unmarshal", zap.Error(err))
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		tracer := otel.Tracer("outreach.retryworker")
		sctx, span := tracer.Start(ctx, "retry.redispatch", trace.WithAttributes(
			attribute.String("campaign.id", retryMsg.Job.CampaignID.String()),
			attribute.String("contact.id", retryMsg.Job.ContactID.String()),
			attribute.Int("attempt", retryMsg.Job.Attempt),
			attribute.Int("tier", tier),
		))

		if sleepErr := w.sleepUntil(sctx, retryMsg.NotBefore); sleepErr != nil {
			span.RecordError(sleepErr)
			span.End()
			return sleepErr
		}

		job := retryMsg.Job
		job.NotBefore = time.Time{}
		job.EnqueuedAt = time.Now().UTC()

		if err := dispatcher.Dispatch(sctx, job); err != nil {
			span.RecordError(err)
			span.End()
			logger.Error("retry worker: dispatch", zap.Error(err))
			continue
		}

		if err := reader.CommitMessages(sctx, msg); err != nil {
			span.RecordError(err)
			logger.Error("retry worker: commit", zap.Error(err))
		}
		span.End()
	}
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

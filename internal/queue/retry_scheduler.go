package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// RetryScheduler parks jobs on tiered retry topics. Tier N holds jobs whose
// Nth attempt failed (or that were deferred outside the sending window);
// the retry worker re-dispatches them once their NotBefore passes.
type RetryScheduler struct {
	writers []*kafka.Writer
}

// NewRetryScheduler constructs a scheduler from configured retry topics.
func NewRetryScheduler(k *Kafka, topics []string) *RetryScheduler {
	writers := make([]*kafka.Writer, 0, len(topics))
	for _, topic := range topics {
		writers = append(writers, k.NewWriter(topic))
	}
	return &RetryScheduler{writers: writers}
}

// Schedule publishes the message to the retry topic for the given tier
// (1-based). Tiers beyond the configured topics clamp to the last one.
func (r *RetryScheduler) Schedule(ctx context.Context, tier int, msg RetryMessage) error {
	if len(r.writers) == 0 {
		return fmt.Errorf("retry scheduler: no retry topics configured")
	}
	if tier < 1 {
		return fmt.Errorf("retry scheduler: tier %d out of range", tier)
	}
	if tier > len(r.writers) {
		tier = len(r.writers)
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("retry scheduler: marshal message: %w", err)
	}

	record := kafka.Message{
		Key:   msg.Job.Key(),
		Value: value,
		Time:  time.Now().UTC(),
	}

	if err := r.writers[tier-1].WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("retry scheduler: write: %w", err)
	}
	return nil
}

// Close closes all writers.
func (r *RetryScheduler) Close() error {
	var err error
	for _, w := range r.writers {
		if w == nil {
			continue
		}
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

package delivery

import (
	"context"
	"time"
)

// EmailRequest carries one rendered message to the provider.
type EmailRequest struct {
	MessageID     string
	FromAccountID string
	ToEmail       string
	Subject       string
	Body          string
}

// Result captures the outcome of a delivery attempt.
type Result struct {
	Accepted   bool
	ProviderID string
	Duration   time.Duration
	Retryable  bool
	Error      string
}

// Provider abstracts the email sending integration. SendEmail returns a
// non-nil error only for invocation failures (context cancellation,
// transport breakdown); a provider-side rejection comes back as a Result
// with Accepted false.
type Provider interface {
	SendEmail(ctx context.Context, req EmailRequest) (Result, error)
}

package mock

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/acme/cold-outreach-engine/internal/config"
	"github.com/acme/cold-outreach-engine/internal/delivery"
)

// Provider simulates an email provider.
type Provider struct {
	successRate float64
	rng         *rand.Rand
}

// NewProvider constructs a mock provider.
func NewProvider(cfg config.DeliveryConfig) *Provider {
	rate := cfg.SuccessRate
	if rate <= 0 || rate > 1 {
		rate = 0.9
	}
	return &Provider{
		successRate: rate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SendEmail simulates a delivery attempt.
func (p *Provider) SendEmail(ctx context.Context, req delivery.EmailRequest) (delivery.Result, error) {
	latency := time.Duration(50+p.rng.Intn(450)) * time.Millisecond

	select {
	case <-ctx.Done():
		return delivery.Result{Duration: latency, Retryable: true, Error: ctx.Err().Error()}, ctx.Err()
	case <-time.After(latency):
	}

	if p.rng.Float64() <= p.successRate {
		return delivery.Result{
			Accepted:   true,
			ProviderID: uuid.NewString(),
			Duration:   latency,
		}, nil
	}

	retryable := p.rng.Float64() < 0.7
	return delivery.Result{Duration: latency, Retryable: retryable, Error: "simulated provider rejection"}, nil
}

package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/acme/cold-outreach-engine/internal/config"
	"github.com/acme/cold-outreach-engine/internal/delivery"
	deliveryMock "github.com/acme/cold-outreach-engine/internal/delivery/mock"
	"github.com/acme/cold-outreach-engine/internal/infra/db"
	"github.com/acme/cold-outreach-engine/internal/infra/redis"
	"github.com/acme/cold-outreach-engine/internal/queue"
	"github.com/acme/cold-outreach-engine/internal/repository"
	pgrepo "github.com/acme/cold-outreach-engine/internal/repository/postgres"
	scyllarepo "github.com/acme/cold-outreach-engine/internal/repository/scylla"
	campaignsvc "github.com/acme/cold-outreach-engine/internal/service/campaign"
	sendsvc "github.com/acme/cold-outreach-engine/internal/service/send"
	"github.com/acme/cold-outreach-engine/internal/service/sequence"
	statssvc "github.com/acme/cold-outreach-engine/internal/service/stats"
	"github.com/acme/cold-outreach-engine/internal/service/sweeplock"
	"github.com/acme/cold-outreach-engine/internal/sweep"
	"github.com/acme/cold-outreach-engine/internal/template"
	"github.com/acme/cold-outreach-engine/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		repositories *repositories
		services     *services
		dispatchers  *dispatchers
		providers    *providers
	}
}

type repositories struct {
	Campaigns     repository.CampaignRepository
	Steps         repository.CampaignStepRepository
	Contacts      repository.ContactRepository
	Assignments   repository.AssignmentRepository
	Ledger        repository.AttemptLedger
	Conversations repository.ConversationRepository
	Messages      repository.MessageRepository
	Stats         repository.CampaignStatisticsRepository
	Events        repository.DeliveryEventStore
}

type services struct {
	Campaign *campaignsvc.Service
	Sequence *sequence.Scheduler
	Send     *sendsvc.Service
	Stats    *statssvc.Service
	Sweep    *sweep.Sweep
}

type dispatchers struct {
	Jobs       *queue.JobDispatcher
	Outcomes   *queue.OutcomePublisher
	Retry      *queue.RetryScheduler
	DeadLetter *queue.DeadLetterPublisher
}

type providers struct {
	Email delivery.Provider
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	return &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		repos := &repositories{
			Campaigns:     pgrepo.NewCampaignRepository(c.Postgres.DB()),
			Steps:         pgrepo.NewCampaignStepRepository(c.Postgres.DB()),
			Contacts:      pgrepo.NewContactRepository(c.Postgres.DB()),
			Assignments:   pgrepo.NewAssignmentRepository(c.Postgres.DB()),
			Ledger:        pgrepo.NewAttemptLedger(c.Postgres.DB()),
			Conversations: pgrepo.NewConversationRepository(c.Postgres.DB()),
			Messages:      pgrepo.NewMessageRepository(c.Postgres.DB()),
			Stats:         pgrepo.NewCampaignStatisticsRepository(c.Postgres.DB()),
			Events:        scyllarepo.NewEventStore(c.Scylla.Session()),
		}

		disp := &dispatchers{
			Jobs:       queue.NewJobDispatcher(c.Kafka, c.Config.Kafka.DispatchTopic),
			Outcomes:   queue.NewOutcomePublisher(c.Kafka, c.Config.Kafka.OutcomeTopic),
			Retry:      queue.NewRetryScheduler(c.Kafka, c.Config.Kafka.RetryTopics),
			DeadLetter: queue.NewDeadLetterPublisher(c.Kafka, c.Config.Kafka.DeadLetterTopic),
		}

		providers := &providers{
			Email: deliveryMock.NewProvider(c.Config.Delivery),
		}

		svcs := &services{
			Campaign: campaignsvc.NewService(repos.Campaigns, repos.Steps, repos.Assignments, repos.Stats),
			Sequence: sequence.NewScheduler(repos.Ledger, repos.Conversations, repos.Messages),
			Stats:    statssvc.NewService(repos.Stats),
		}

		svcs.Send = sendsvc.NewService(
			repos.Campaigns,
			repos.Steps,
			repos.Contacts,
			repos.Conversations,
			repos.Messages,
			repos.Ledger,
			repos.Events,
			providers.Email,
			template.NewTokenRenderer(),
			c.Config.Delivery.RequestTimeout,
			c.Logger.Named("send"),
		)

		lock := sweeplock.NewLock(c.Redis.Inner(), c.Config.Sweep.LockKeyPrefix, c.Config.Sweep.LockTTL)
		svcs.Sweep = sweep.New(
			svcs.Campaign,
			repos.Assignments,
			repos.Messages,
			svcs.Sequence,
			disp.Jobs,
			lock,
			c.Config.Sweep,
			c.Config.Retry,
			c.Logger.Named("sweep"),
		)

		c.components.repositories = repos
		c.components.dispatchers = disp
		c.components.services = svcs
		c.components.providers = providers
	})
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Services exposes initialized services.
func (c *Container) Services() *services {
	c.initComponents()
	return c.components.services
}

// Dispatchers exposes Kafka dispatchers.
func (c *Container) Dispatchers() *dispatchers {
	c.initComponents()
	return c.components.dispatchers
}

// Providers exposes external providers.
func (c *Container) Providers() *providers {
	c.initComponents()
	return c.components.providers
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if d := c.components.dispatchers; d != nil {
		if d.Jobs != nil {
			if err := d.Jobs.Close(); err != nil {
				errs = append(errs, fmt.Errorf("job dispatcher close: %w", err))
			}
		}
		if d.Outcomes != nil {
			if err := d.Outcomes.Close(); err != nil {
				errs = append(errs, fmt.Errorf("outcome publisher close: %w", err))
			}
		}
		if d.Retry != nil {
			if err := d.Retry.Close(); err != nil {
				errs = append(errs, fmt.Errorf("retry scheduler close: %w", err))
			}
		}
		if d.DeadLetter != nil {
			if err := d.DeadLetter.Close(); err != nil {
				errs = append(errs, fmt.Errorf("dead letter close: %w", err))
			}
		}
	}
	if c.Kafka != nil {
		if err := c.Kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	topics := []string{c.Config.Kafka.DispatchTopic, c.Config.Kafka.OutcomeTopic}
	if err := c.Kafka.EnsureTopics(ctx, topics, 48, 1); err != nil {
		return err
	}

	if len(c.Config.Kafka.RetryTopics) > 0 {
		if err := c.Kafka.EnsureTopics(ctx, c.Config.Kafka.RetryTopics, 48, 1); err != nil {
			return err
		}
	}

	if c.Config.Kafka.DeadLetterTopic != "" {
		if err := c.Kafka.EnsureTopics(ctx, []string{c.Config.Kafka.DeadLetterTopic}, 12, 1); err != nil {
			return err
		}
	}

	return nil
}

package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/acme/cold-outreach-engine/internal/domain"
	"github.com/acme/cold-outreach-engine/internal/repository"
	apperrors "github.com/acme/cold-outreach-engine/pkg/errors"
)

// Service orchestrates campaign lifecycle operations.
type Service struct {
	repo        repository.CampaignRepository
	stepRepo    repository.CampaignStepRepository
	assignments repository.AssignmentRepository
	statsRepo   repository.CampaignStatisticsRepository
}

// NewService constructs a campaign service.
func NewService(
	repo repository.CampaignRepository,
	steps repository.CampaignStepRepository,
	assignments repository.AssignmentRepository,
	stats repository.CampaignStatisticsRepository,
) *Service {
	return &Service{
		repo:        repo,
		stepRepo:    steps,
		assignments: assignments,
		statsRepo:   stats,
	}
}

// CreateCampaignInput captures campaign creation parameters.
type CreateCampaignInput struct {
	Name           string
	TimeZone       string
	FromAccountID  string
	DailySendLimit int
	WindowStart    string
	WindowEnd      string
	WeekdaysOnly   bool
	Steps          []StepInput
}

// StepInput expresses one step of the outreach sequence.
type StepInput struct {
	StepNumber int
	DelayDays  int
	IsActive   bool
	Subject    string
	Body       string
}

// UpdateCampaignInput captures updatable properties. Nil fields are left
// unchanged.
type UpdateCampaignInput struct {
	ID             uuid.UUID
	Name           *string
	DailySendLimit *int
	WindowStart    *string
	WindowEnd      *string
	WeekdaysOnly   *bool
	Steps          *[]StepInput
}

// Create provisions a new campaign in draft status.
func (s *Service) Create(ctx context.Context, input CreateCampaignInput) (*domain.Campaign, error) {
	window, err := parseWindow(input.WindowStart, input.WindowEnd, input.WeekdaysOnly)
	if err != nil {
		return nil, err
	}
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	campaign := &domain.Campaign{
		ID:             uuid.New(),
		Name:           input.Name,
		Status:         domain.CampaignStatusDraft,
		DailySendLimit: input.DailySendLimit,
		SendingWindow:  window,
		TimeZone:       input.TimeZone,
		FromAccountID:  input.FromAccountID,
		Steps:          toDomainSteps(input.Steps),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("campaign service: create campaign: %w", err)
	}

	if err := s.stepRepo.Replace(ctx, campaign.ID, campaign.Steps); err != nil {
		return nil, fmt.Errorf("campaign service: store steps: %w", err)
	}

	if err := s.statsRepo.Ensure(ctx, campaign.ID); err != nil {
		return nil, fmt.Errorf("campaign service: ensure stats: %w", err)
	}

	return campaign, nil
}

// Get retrieves a campaign by id including its step sequence.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	campaign, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	steps, err := s.stepRepo.List(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("campaign service: list steps: %w", err)
	}
	campaign.Steps = steps
	return campaign, nil
}

// List returns campaigns after the given cursor.
func (s *Service) List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.Campaign, error) {
	return s.repo.List(ctx, afterID, limit)
}

// ListByStatus returns campaigns filtered by status with steps populated.
func (s *Service) ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error) {
	campaigns, err := s.repo.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	for _, c := range campaigns {
		steps, err := s.stepRepo.List(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("campaign service: list steps: %w", err)
		}
		c.Steps = steps
	}
	return campaigns, nil
}

// Update modifies campaign metadata and, when provided, replaces the step
// sequence. Steps of an active campaign may change; the ledger keeps already
// contacted steps from re-sending.
func (s *Service) Update(ctx context.Context, input UpdateCampaignInput) (*domain.Campaign, error) {
	campaign, err := s.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		campaign.Name = *input.Name
	}
	if input.DailySendLimit != nil {
		if *input.DailySendLimit <= 0 {
			return nil, fmt.Errorf("%w: daily send limit must be positive", apperrors.ErrValidation)
		}
		campaign.DailySendLimit = *input.DailySendLimit
	}
	if input.WindowStart != nil || input.WindowEnd != nil || input.WeekdaysOnly != nil {
		start := campaign.SendingWindow.Start.String()
		end := campaign.SendingWindow.End.String()
		weekdays := campaign.SendingWindow.WeekdaysOnly
		if input.WindowStart != nil {
			start = *input.WindowStart
		}
		if input.WindowEnd != nil {
			end = *input.WindowEnd
		}
		if input.WeekdaysOnly != nil {
			weekdays = *input.WeekdaysOnly
		}
		window, err := parseWindow(start, end, weekdays)
		if err != nil {
			return nil, err
		}
		campaign.SendingWindow = window
	}

	campaign.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, campaign); err != nil {
		return nil, err
	}

	if input.Steps != nil {
		if err := validateSteps(*input.Steps); err != nil {
			return nil, err
		}
		campaign.Steps = toDomainSteps(*input.Steps)
		if err := s.stepRepo.Replace(ctx, campaign.ID, campaign.Steps); err != nil {
			return nil, fmt.Errorf("campaign service: update steps: %w", err)
		}
	}

	return campaign, nil
}

// Activate transitions a campaign into active status, making it visible to
// the sweep.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) error {
	campaign, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if campaign.Status == domain.CampaignStatusActive {
		return nil
	}
	if campaign.Status == domain.CampaignStatusCompleted {
		return fmt.Errorf("%w: cannot activate a completed campaign", apperrors.ErrConflict)
	}
	if len(campaign.Steps) == 0 {
		return fmt.Errorf("%w: campaign has no steps", apperrors.ErrValidation)
	}

	now := time.Now().UTC()
	campaign.Status = domain.CampaignStatusActive
	if campaign.StartedAt == nil {
		campaign.StartedAt = &now
	}
	campaign.UpdatedAt = now
	return s.repo.Update(ctx, campaign)
}

// Pause stops the sweep from picking the campaign up. Jobs already on the
// queue resolve against the stored status when a worker processes them.
func (s *Service) Pause(ctx context.Context, id uuid.UUID) error {
	campaign, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if campaign.Status != domain.CampaignStatusActive {
		return fmt.Errorf("%w: only active campaigns can be paused", apperrors.ErrConflict)
	}
	campaign.Status = domain.CampaignStatusPaused
	campaign.UpdatedAt = time.Now().UTC()
	return s.repo.Update(ctx, campaign)
}

// Complete marks a campaign as completed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) error {
	campaign, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	campaign.Status = domain.CampaignStatusCompleted
	campaign.CompletedAt = &now
	campaign.UpdatedAt = now
	return s.repo.Update(ctx, campaign)
}

// Stats retrieves aggregated statistics.
func (s *Service) Stats(ctx context.Context, id uuid.UUID) (*domain.CampaignStats, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.statsRepo.Get(ctx, id)
}

// AssignContacts enrolls contacts into a campaign. Already assigned contacts
// are skipped.
func (s *Service) AssignContacts(ctx context.Context, campaignID uuid.UUID, contactIDs []uuid.UUID) error {
	if len(contactIDs) == 0 {
		return nil
	}
	if _, err := s.repo.Get(ctx, campaignID); err != nil {
		return err
	}
	if err := s.assignments.Assign(ctx, campaignID, contactIDs); err != nil {
		return fmt.Errorf("campaign service: assign contacts: %w", err)
	}
	return nil
}

func parseWindow(start, end string, weekdaysOnly bool) (domain.SendingWindow, error) {
	startClock, err := domain.ParseClockTime(start)
	if err != nil {
		return domain.SendingWindow{}, fmt.Errorf("%w: window start: %v", apperrors.ErrValidation, err)
	}
	endClock, err := domain.ParseClockTime(end)
	if err != nil {
		return domain.SendingWindow{}, fmt.Errorf("%w: window end: %v", apperrors.ErrValidation, err)
	}
	window := domain.SendingWindow{Start: startClock, End: endClock, WeekdaysOnly: weekdaysOnly}
	if err := window.Validate(); err != nil {
		return domain.SendingWindow{}, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	return window, nil
}

func toDomainSteps(inputs []StepInput) []domain.CampaignStep {
	steps := make([]domain.CampaignStep, 0, len(inputs))
	for _, in := range inputs {
		steps = append(steps, domain.CampaignStep{
			StepNumber: in.StepNumber,
			DelayDays:  in.DelayDays,
			IsActive:   in.IsActive,
			Subject:    in.Subject,
			Body:       in.Body,
		})
	}
	return steps
}

func validateSteps(steps []StepInput) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", apperrors.ErrValidation)
	}
	for i, step := range steps {
		if step.StepNumber != i+1 {
			return fmt.Errorf("%w: step numbers must be dense starting at 1", apperrors.ErrValidation)
		}
		if step.DelayDays < 0 {
			return fmt.Errorf("%w: step %d delay must not be negative", apperrors.ErrValidation, step.StepNumber)
		}
		if step.Subject == "" {
			return fmt.Errorf("%w: step %d subject is required", apperrors.ErrValidation, step.StepNumber)
		}
		if step.Body == "" {
			return fmt.Errorf("%w: step %d body is required", apperrors.ErrValidation, step.StepNumber)
		}
	}
	return nil
}

func validateCreateInput(input CreateCampaignInput) error {
	if input.Name == "" {
		return fmt.Errorf("%w: campaign name is required", apperrors.ErrValidation)
	}
	if input.TimeZone == "" {
		return fmt.Errorf("%w: time zone is required", apperrors.ErrValidation)
	}
	if _, err := time.LoadLocation(input.TimeZone); err != nil {
		return fmt.Errorf("%w: invalid time zone %s: %v", apperrors.ErrValidation, input.TimeZone, err)
	}
	if input.FromAccountID == "" {
		return fmt.Errorf("%w: from account is required", apperrors.ErrValidation)
	}
	if input.DailySendLimit <= 0 {
		return fmt.Errorf("%w: daily send limit must be positive", apperrors.ErrValidation)
	}
	return validateSteps(input.Steps)
}

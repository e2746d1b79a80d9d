package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/cold-outreach-engine/internal/config"
	"github.com/acme/cold-outreach-engine/internal/domain"
	"github.com/acme/cold-outreach-engine/internal/queue"
	"github.com/acme/cold-outreach-engine/pkg/logger"
)

type fakeLister struct {
	campaigns []*domain.Campaign
}

func (f *fakeLister) ListByStatus(_ context.Context, status domain.CampaignStatus, _ int) ([]*domain.Campaign, error) {
	var out []*domain.Campaign
	for _, c := range f.campaigns {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeAssignments struct {
	contacts map[uuid.UUID][]uuid.UUID
}

func (f *fakeAssignments) Assign(_ context.Context, campaignID uuid.UUID, contactIDs []uuid.UUID) error {
	f.contacts[campaignID] = append(f.contacts[campaignID], contactIDs...)
	return nil
}

func (f *fakeAssignments) ListContactIDs(_ context.Context, campaignID uuid.UUID, afterID *uuid.UUID, limit int) ([]uuid.UUID, error) {
	all := f.contacts[campaignID]
	start := 0
	if afterID != nil {
		for i, id := range all {
			if id == *afterID {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

type fakeCapacityMessages struct {
	sentToday int64
}

func (f *fakeCapacityMessages) Create(_ context.Context, _ *domain.Message) error { return nil }
func (f *fakeCapacityMessages) Get(_ context.Context, _ uuid.UUID) (*domain.Message, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeCapacityMessages) MarkDelivered(_ context.Context, _ uuid.UUID, _ time.Time) error {
	return nil
}
func (f *fakeCapacityMessages) LatestOutbound(_ context.Context, _ uuid.UUID) (*domain.Message, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeCapacityMessages) CountOutboundSince(_ context.Context, _ uuid.UUID, _ time.Time) (int64, error) {
	return f.sentToday, nil
}
func (f *fakeCapacityMessages) ListByConversation(_ context.Context, _ uuid.UUID, _ int) ([]domain.Message, error) {
	return nil, nil
}

type fakePlanner struct {
	due map[uuid.UUID]*domain.CampaignStep
}

func (f *fakePlanner) NextDueStep(_ context.Context, _ *domain.Campaign, contactID uuid.UUID, _ time.Time) (*domain.CampaignStep, error) {
	return f.due[contactID], nil
}

type fakeDispatcher struct {
	jobs    []queue.SendJob
	failing bool
}

func (f *fakeDispatcher) Dispatch(_ context.Context, job queue.SendJob) error {
	if f.failing {
		return errors.New("broker unavailable")
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeLocker struct {
	held     map[uuid.UUID]bool
	releases int
}

func (f *fakeLocker) Acquire(_ context.Context, campaignID uuid.UUID) (string, bool, error) {
	if f.held[campaignID] {
		return "", false, nil
	}
	return "token", true, nil
}

func (f *fakeLocker) Release(_ context.Context, _ uuid.UUID, _ string) error {
	f.releases++
	return nil
}

func activeCampaign() *domain.Campaign {
	return &domain.Campaign{
		ID:             uuid.New(),
		Status:         domain.CampaignStatusActive,
		DailySendLimit: 10,
		TimeZone:       "UTC",
		FromAccountID:  "acct-1",
		SendingWindow: domain.SendingWindow{
			Start: domain.ClockTime{Hour: 0},
			End:   domain.ClockTime{Hour: 23, Minute: 59},
		},
		Steps: []domain.CampaignStep{
			{StepNumber: 1, IsActive: true, Subject: "a", Body: "b"},
		},
	}
}

type fixture struct {
	sweep       *Sweep
	lister      *fakeLister
	assignments *fakeAssignments
	messages    *fakeCapacityMessages
	planner     *fakePlanner
	dispatcher  *fakeDispatcher
	locker      *fakeLocker
}

func newFixture() *fixture {
	f := &fixture{
		lister:      &fakeLister{},
		assignments: &fakeAssignments{contacts: map[uuid.UUID][]uuid.UUID{}},
		messages:    &fakeCapacityMessages{},
		planner:     &fakePlanner{due: map[uuid.UUID]*domain.CampaignStep{}},
		dispatcher:  &fakeDispatcher{},
		locker:      &fakeLocker{held: map[uuid.UUID]bool{}},
	}
	log := &logger.Logger{Logger: zap.NewNop()}
	f.sweep = New(
		f.lister, f.assignments, f.messages, f.planner, f.dispatcher, f.locker,
		config.SweepConfig{CampaignFetchLimit: 10, ContactBatchSize: 2},
		config.RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute, Jitter: 0.2},
		log,
	)
	return f
}

func (f *fixture) addCampaign(c *domain.Campaign, contacts ...uuid.UUID) {
	f.lister.campaigns = append(f.lister.campaigns, c)
	f.assignments.contacts[c.ID] = contacts
}

func TestPassEnqueuesDueJobs(t *testing.T) {
	f := newFixture()
	campaign := activeCampaign()
	due := uuid.New()
	idle := uuid.New()
	f.addCampaign(campaign, due, idle)
	f.planner.due[due] = &campaign.Steps[0]

	result, err := f.sweep.Pass(context.Background())
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if result.JobsEnqueued != 1 {
		t.Fatalf("jobs enqueued = %d, want 1", result.JobsEnqueued)
	}

	job := f.dispatcher.jobs[0]
	if job.CampaignID != campaign.ID || job.ContactID != due || job.StepNumber != 1 {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.Attempt != 1 || job.MaxAttempts != 3 {
		t.Fatalf("unexpected attempt bookkeeping %+v", job)
	}
	if job.SchemaVersion != queue.SendJobSchemaVersion {
		t.Fatalf("schema version = %d", job.SchemaVersion)
	}
	if f.locker.releases != 1 {
		t.Fatalf("lock releases = %d, want 1", f.locker.releases)
	}
}

func TestPassPaginatesContactBatches(t *testing.T) {
	f := newFixture()
	campaign := activeCampaign()
	contacts := make([]uuid.UUID, 5)
	for i := range contacts {
		contacts[i] = uuid.New()
	}
	f.addCampaign(campaign, contacts...)
	for _, id := range contacts {
		f.planner.due[id] = &campaign.Steps[0]
	}

	result, err := f.sweep.Pass(context.Background())
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if result.JobsEnqueued != 5 {
		t.Fatalf("jobs enqueued = %d, want 5 across batches", result.JobsEnqueued)
	}
}

func TestPassStopsAtDailyCapacity(t *testing.T) {
	f := newFixture()
	campaign := activeCampaign()
	campaign.DailySendLimit = 3
	contacts := make([]uuid.UUID, 5)
	for i := range contacts {
		contacts[i] = uuid.New()
		f.planner.due[contacts[i]] = &campaign.Steps[0]
	}
	f.addCampaign(campaign, contacts...)

	result, err := f.sweep.Pass(context.Background())
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if result.JobsEnqueued != 3 {
		t.Fatalf("jobs enqueued = %d, want capacity 3", result.JobsEnqueued)
	}
}

func TestPassSubtractsTodaysSends(t *testing.T) {
	f := newFixture()
	campaign := activeCampaign()
	campaign.DailySendLimit = 3
	f.messages.sentToday = 3
	due := uuid.New()
	f.planner.due[due] = &campaign.Steps[0]
	f.addCampaign(campaign, due)

	result, err := f.sweep.Pass(context.Background())
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if result.JobsEnqueued != 0 {
		t.Fatalf("jobs enqueued = %d, want 0 at cap", result.JobsEnqueued)
	}
	if result.CampaignsSkipped != 1 {
		t.Fatalf("campaigns skipped = %d, want 1", result.CampaignsSkipped)
	}
}

func TestPassSkipsLockedCampaign(t *testing.T) {
	f := newFixture()
	campaign := activeCampaign()
	due := uuid.New()
	f.planner.due[due] = &campaign.Steps[0]
	f.addCampaign(campaign, due)
	f.locker.held[campaign.ID] = true

	result, err := f.sweep.Pass(context.Background())
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if result.JobsEnqueued != 0 || result.CampaignsSkipped != 1 {
		t.Fatalf("locked campaign must be skipped, got %+v", result)
	}
}

func TestPassSkipsClosedWindow(t *testing.T) {
	f := newFixture()
	campaign := activeCampaign()
	campaign.SendingWindow = domain.SendingWindow{
		Start: domain.ClockTime{Hour: 9},
		End:   domain.ClockTime{Hour: 17},
	}
	due := uuid.New()
	f.planner.due[due] = &campaign.Steps[0]
	f.addCampaign(campaign, due)
	// A Tuesday evening, outside the window.
	f.sweep.now = func() time.Time {
		return time.Date(2024, 1, 2, 20, 0, 0, 0, time.UTC)
	}

	result, err := f.sweep.Pass(context.Background())
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if result.JobsEnqueued != 0 || result.CampaignsSkipped != 1 {
		t.Fatalf("closed window must skip, got %+v", result)
	}
}

func TestPassIsolatesCampaignFailures(t *testing.T) {
	f := newFixture()
	broken := activeCampaign()
	healthy := activeCampaign()
	brokenContact := uuid.New()
	healthyContact := uuid.New()
	f.planner.due[brokenContact] = &broken.Steps[0]
	f.planner.due[healthyContact] = &healthy.Steps[0]
	f.addCampaign(broken, brokenContact)
	f.addCampaign(healthy, healthyContact)

	calls := 0
	f.sweep.dispatcher = dispatchFunc(func(ctx context.Context, job queue.SendJob) error {
		calls++
		if job.CampaignID == broken.ID {
			return errors.New("broker unavailable")
		}
		return f.dispatcher.Dispatch(ctx, job)
	})

	result, err := f.sweep.Pass(context.Background())
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if result.CampaignsFailed != 1 {
		t.Fatalf("campaigns failed = %d, want 1", result.CampaignsFailed)
	}
	if result.JobsEnqueued != 1 {
		t.Fatalf("jobs enqueued = %d, want healthy campaign to proceed", result.JobsEnqueued)
	}
}

type dispatchFunc func(ctx context.Context, job queue.SendJob) error

func (f dispatchFunc) Dispatch(ctx context.Context, job queue.SendJob) error {
	return f(ctx, job)
}

func TestSpreaderStaysWithinMinute(t *testing.T) {
	now := time.Date(2024, 1, 2, 10, 0, 30, 0, time.UTC)
	s := newSpreader(now, 10*time.Second)

	seen := map[time.Time]bool{}
	for i := 0; i < 10; i++ {
		at := s.next()
		if at.Before(now) {
			t.Fatalf("offset %v before base", at)
		}
		if !at.Before(now.Truncate(time.Minute).Add(time.Minute)) {
			t.Fatalf("offset %v leaked past the minute boundary", at)
		}
		seen[at] = true
	}
	if len(seen) < 2 {
		t.Fatal("expected staggered timestamps")
	}
}

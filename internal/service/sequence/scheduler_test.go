package sequence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/cold-outreach-engine/internal/domain"
	"github.com/acme/cold-outreach-engine/internal/repository"
)

type fakeLedger struct {
	maxStep map[string]int
}

func (f *fakeLedger) TryClaim(_ context.Context, campaignID, contactID uuid.UUID, stepNumber int) (bool, error) {
	key := campaignID.String() + ":" + contactID.String()
	if f.maxStep[key] >= stepNumber {
		return false, nil
	}
	f.maxStep[key] = stepNumber
	return true, nil
}

func (f *fakeLedger) MaxClaimedStep(_ context.Context, campaignID, contactID uuid.UUID) (int, error) {
	return f.maxStep[campaignID.String()+":"+contactID.String()], nil
}

type fakeConversations struct {
	byPair map[string]*domain.Conversation
}

func (f *fakeConversations) FindOrCreate(_ context.Context, c *domain.Conversation) (*domain.Conversation, error) {
	key := c.CampaignID.String() + ":" + c.ContactID.String()
	if existing, ok := f.byPair[key]; ok {
		return existing, nil
	}
	f.byPair[key] = c
	return c, nil
}

func (f *fakeConversations) FindByPair(_ context.Context, campaignID, contactID uuid.UUID) (*domain.Conversation, error) {
	if c, ok := f.byPair[campaignID.String()+":"+contactID.String()]; ok {
		return c, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeConversations) Get(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	for _, c := range f.byPair {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeConversations) TouchLastMessage(_ context.Context, id uuid.UUID, at time.Time) error {
	for _, c := range f.byPair {
		if c.ID == id {
			c.LastMessageAt = &at
		}
	}
	return nil
}

func (f *fakeConversations) ListByCampaign(_ context.Context, campaignID uuid.UUID, _ int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	for _, c := range f.byPair {
		if c.CampaignID == campaignID {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeMessages struct {
	messages []*domain.Message
	// campaignOf maps conversation ids to campaigns for the daily count.
	campaignOf map[uuid.UUID]uuid.UUID
}

func (f *fakeMessages) Create(_ context.Context, m *domain.Message) error {
	f.messages = append(f.messages, m)
	return nil
}

func (f *fakeMessages) Get(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	for _, m := range f.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeMessages) MarkDelivered(_ context.Context, id uuid.UUID, at time.Time) error {
	for _, m := range f.messages {
		if m.ID == id {
			m.DeliveredAt = &at
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeMessages) LatestOutbound(_ context.Context, conversationID uuid.UUID) (*domain.Message, error) {
	var latest *domain.Message
	for _, m := range f.messages {
		if m.ConversationID != conversationID || m.Direction != domain.DirectionOutbound {
			continue
		}
		if latest == nil || m.SentAt.After(latest.SentAt) {
			latest = m
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

func (f *fakeMessages) CountOutboundSince(_ context.Context, campaignID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	for _, m := range f.messages {
		if f.campaignOf[m.ConversationID] != campaignID {
			continue
		}
		if m.Direction == domain.DirectionOutbound && !m.SentAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeMessages) ListByConversation(_ context.Context, conversationID uuid.UUID, _ int) ([]domain.Message, error) {
	var out []domain.Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func threeStepCampaign() *domain.Campaign {
	return &domain.Campaign{
		ID:             uuid.New(),
		Status:         domain.CampaignStatusActive,
		DailySendLimit: 50,
		TimeZone:       "UTC",
		SendingWindow: domain.SendingWindow{
			Start: domain.ClockTime{Hour: 9},
			End:   domain.ClockTime{Hour: 17},
		},
		Steps: []domain.CampaignStep{
			{StepNumber: 1, DelayDays: 0, IsActive: true, Subject: "hello", Body: "hi"},
			{StepNumber: 2, DelayDays: 3, IsActive: true, Subject: "ping", Body: "bump"},
			{StepNumber: 3, DelayDays: 2, IsActive: true, Subject: "last", Body: "bye"},
		},
	}
}

func newTestScheduler() (*Scheduler, *fakeLedger, *fakeConversations, *fakeMessages) {
	ledger := &fakeLedger{maxStep: map[string]int{}}
	conversations := &fakeConversations{byPair: map[string]*domain.Conversation{}}
	messages := &fakeMessages{campaignOf: map[uuid.UUID]uuid.UUID{}}
	return NewScheduler(ledger, conversations, messages), ledger, conversations, messages
}

func TestNextDueStepFirstStepImmediatelyDue(t *testing.T) {
	scheduler, _, _, _ := newTestScheduler()
	campaign := threeStepCampaign()
	contactID := uuid.New()

	step, err := scheduler.NextDueStep(context.Background(), campaign, contactID, time.Now().UTC())
	if err != nil {
		t.Fatalf("NextDueStep: %v", err)
	}
	if step == nil || step.StepNumber != 1 {
		t.Fatalf("expected step 1 to be due, got %+v", step)
	}
}

func TestNextDueStepWaitsForDelay(t *testing.T) {
	scheduler, ledger, conversations, messages := newTestScheduler()
	campaign := threeStepCampaign()
	contactID := uuid.New()
	sentAt := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	// Step 1 claimed and sent at T.
	if _, err := ledger.TryClaim(context.Background(), campaign.ID, contactID, 1); err != nil {
		t.Fatal(err)
	}
	conv := &domain.Conversation{ID: uuid.New(), CampaignID: campaign.ID, ContactID: contactID}
	if _, err := conversations.FindOrCreate(context.Background(), conv); err != nil {
		t.Fatal(err)
	}
	messages.messages = append(messages.messages, &domain.Message{
		ID: uuid.New(), ConversationID: conv.ID, Direction: domain.DirectionOutbound, SentAt: sentAt,
	})

	// Step 2 requires 3 days: at T+2d nothing is due.
	step, err := scheduler.NextDueStep(context.Background(), campaign, contactID, sentAt.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("NextDueStep: %v", err)
	}
	if step != nil {
		t.Fatalf("expected nothing due at T+2d, got step %d", step.StepNumber)
	}

	// At T+3d step 2 is due.
	step, err = scheduler.NextDueStep(context.Background(), campaign, contactID, sentAt.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("NextDueStep: %v", err)
	}
	if step == nil || step.StepNumber != 2 {
		t.Fatalf("expected step 2 at T+3d, got %+v", step)
	}
}

func TestNextDueStepExhaustedSequence(t *testing.T) {
	scheduler, ledger, _, _ := newTestScheduler()
	campaign := threeStepCampaign()
	contactID := uuid.New()

	for n := 1; n <= 3; n++ {
		if _, err := ledger.TryClaim(context.Background(), campaign.ID, contactID, n); err != nil {
			t.Fatal(err)
		}
	}

	step, err := scheduler.NextDueStep(context.Background(), campaign, contactID, time.Now().UTC())
	if err != nil {
		t.Fatalf("NextDueStep: %v", err)
	}
	if step != nil {
		t.Fatalf("expected exhausted sequence, got step %d", step.StepNumber)
	}
}

func TestNextDueStepSkipsInactiveCandidate(t *testing.T) {
	scheduler, ledger, _, _ := newTestScheduler()
	campaign := threeStepCampaign()
	campaign.Steps[1].IsActive = false
	contactID := uuid.New()

	if _, err := ledger.TryClaim(context.Background(), campaign.ID, contactID, 1); err != nil {
		t.Fatal(err)
	}

	step, err := scheduler.NextDueStep(context.Background(), campaign, contactID, time.Now().UTC())
	if err != nil {
		t.Fatalf("NextDueStep: %v", err)
	}
	if step != nil {
		t.Fatalf("expected nothing due past an inactive step, got %+v", step)
	}
}

func TestNextDueStepMissingConversationHoldsSequence(t *testing.T) {
	scheduler, ledger, _, _ := newTestScheduler()
	campaign := threeStepCampaign()
	contactID := uuid.New()

	// Step 1 claimed but no conversation or message exists (crash between
	// claim and send).
	if _, err := ledger.TryClaim(context.Background(), campaign.ID, contactID, 1); err != nil {
		t.Fatal(err)
	}

	step, err := scheduler.NextDueStep(context.Background(), campaign, contactID, time.Now().UTC())
	if err != nil {
		t.Fatalf("NextDueStep: %v", err)
	}
	if step != nil {
		t.Fatalf("expected sequence to hold without a conversation, got %+v", step)
	}
}

func TestRemainingCapacity(t *testing.T) {
	_, _, conversations, messages := newTestScheduler()
	campaign := threeStepCampaign()
	campaign.DailySendLimit = 2
	contactID := uuid.New()

	conv := &domain.Conversation{ID: uuid.New(), CampaignID: campaign.ID, ContactID: contactID}
	if _, err := conversations.FindOrCreate(context.Background(), conv); err != nil {
		t.Fatal(err)
	}
	messages.campaignOf[conv.ID] = campaign.ID

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	got, err := RemainingCapacity(context.Background(), messages, campaign, now)
	if err != nil {
		t.Fatalf("RemainingCapacity: %v", err)
	}
	if got != 2 {
		t.Fatalf("RemainingCapacity = %d, want 2", got)
	}

	// One message today, one yesterday: only today's counts.
	messages.messages = append(messages.messages,
		&domain.Message{ID: uuid.New(), ConversationID: conv.ID, Direction: domain.DirectionOutbound, SentAt: now.Add(-time.Hour)},
		&domain.Message{ID: uuid.New(), ConversationID: conv.ID, Direction: domain.DirectionOutbound, SentAt: now.AddDate(0, 0, -1)},
	)

	got, err = RemainingCapacity(context.Background(), messages, campaign, now)
	if err != nil {
		t.Fatalf("RemainingCapacity: %v", err)
	}
	if got != 1 {
		t.Fatalf("RemainingCapacity = %d, want 1", got)
	}

	// Over the cap floors at zero.
	messages.messages = append(messages.messages,
		&domain.Message{ID: uuid.New(), ConversationID: conv.ID, Direction: domain.DirectionOutbound, SentAt: now.Add(-2 * time.Hour)},
		&domain.Message{ID: uuid.New(), ConversationID: conv.ID, Direction: domain.DirectionOutbound, SentAt: now.Add(-3 * time.Hour)},
	)

	got, err = RemainingCapacity(context.Background(), messages, campaign, now)
	if err != nil {
		t.Fatalf("RemainingCapacity: %v", err)
	}
	if got != 0 {
		t.Fatalf("RemainingCapacity = %d, want 0", got)
	}
}

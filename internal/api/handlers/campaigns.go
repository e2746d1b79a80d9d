package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/cold-outreach-engine/internal/domain"
	campaignsvc "github.com/acme/cold-outreach-engine/internal/service/campaign"
	"github.com/acme/cold-outreach-engine/internal/service/common"
)

type createCampaignRequest struct {
	Name           string        `json:"name"`
	TimeZone       string        `json:"time_zone"`
	FromAccountID  string        `json:"from_account_id"`
	DailySendLimit int           `json:"daily_send_limit"`
	WindowStart    string        `json:"window_start"`
	WindowEnd      string        `json:"window_end"`
	WeekdaysOnly   bool          `json:"weekdays_only"`
	Steps          []stepRequest `json:"steps"`
}

type stepRequest struct {
	StepNumber int    `json:"step_number"`
	DelayDays  int    `json:"delay_days"`
	IsActive   *bool  `json:"is_active"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

type updateCampaignRequest struct {
	Name           *string        `json:"name"`
	DailySendLimit *int           `json:"daily_send_limit"`
	WindowStart    *string        `json:"window_start"`
	WindowEnd      *string        `json:"window_end"`
	WeekdaysOnly   *bool          `json:"weekdays_only"`
	Steps          *[]stepRequest `json:"steps"`
}

type campaignResponse struct {
	ID             uuid.UUID             `json:"id"`
	Name           string                `json:"name"`
	Status         domain.CampaignStatus `json:"status"`
	TimeZone       string                `json:"time_zone"`
	FromAccountID  string                `json:"from_account_id"`
	DailySendLimit int                   `json:"daily_send_limit"`
	WindowStart    string                `json:"window_start"`
	WindowEnd      string                `json:"window_end"`
	WeekdaysOnly   bool                  `json:"weekdays_only"`
	Steps          []stepResponse        `json:"steps"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	StartedAt      *time.Time            `json:"started_at,omitempty"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
}

type stepResponse struct {
	StepNumber int    `json:"step_number"`
	DelayDays  int    `json:"delay_days"`
	IsActive   bool   `json:"is_active"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

type campaignStatsResponse struct {
	EmailsSent      int64     `json:"emails_sent"`
	EmailsDelivered int64     `json:"emails_delivered"`
	EmailsOpened    int64     `json:"emails_opened"`
	EmailsReplied   int64     `json:"emails_replied"`
	DeliveryRate    float64   `json:"delivery_rate"`
	OpenRate        float64   `json:"open_rate"`
	ReplyRate       float64   `json:"reply_rate"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type listCampaignsResponse struct {
	Campaigns []campaignResponse `json:"campaigns"`
}

type eventResponse struct {
	ID         uuid.UUID `json:"id"`
	ContactID  uuid.UUID `json:"contact_id"`
	StepNumber int       `json:"step_number"`
	Attempt    int       `json:"attempt"`
	TraceID    string    `json:"trace_id"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type listEventsResponse struct {
	Events   []eventResponse `json:"events"`
	NextPage string          `json:"next_page_token,omitempty"`
}

func (h *HandlerSet) createCampaign(ctx *fiber.Ctx) error {
	var req createCampaignRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	campaign, err := h.campaigns.Create(ctx.Context(), campaignsvc.CreateCampaignInput{
		Name:           req.Name,
		TimeZone:       req.TimeZone,
		FromAccountID:  req.FromAccountID,
		DailySendLimit: req.DailySendLimit,
		WindowStart:    req.WindowStart,
		WindowEnd:      req.WindowEnd,
		WeekdaysOnly:   req.WeekdaysOnly,
		Steps:          toStepInputs(req.Steps),
	})
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusCreated).JSON(toCampaignResponse(campaign))
}

func (h *HandlerSet) listCampaigns(ctx *fiber.Ctx) error {
	limit, _ := strconv.Atoi(ctx.Query("limit", "50"))
	var afterID *uuid.UUID
	if afterStr := ctx.Query("after_id"); afterStr != "" {
		if id, err := uuid.Parse(afterStr); err == nil {
			afterID = &id
		}
	}

	campaigns, err := h.campaigns.List(ctx.Context(), afterID, limit)
	if err != nil {
		return translateError(err)
	}

	resp := listCampaignsResponse{Campaigns: make([]campaignResponse, 0, len(campaigns))}
	for _, c := range campaigns {
		full, err := h.campaigns.Get(ctx.Context(), c.ID)
		if err != nil {
			return translateError(err)
		}
		resp.Campaigns = append(resp.Campaigns, toCampaignResponse(full))
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

func (h *HandlerSet) getCampaign(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	campaign, err := h.campaigns.Get(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toCampaignResponse(campaign))
}

func (h *HandlerSet) updateCampaign(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	var req updateCampaignRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	input := campaignsvc.UpdateCampaignInput{
		ID:             id,
		Name:           req.Name,
		DailySendLimit: req.DailySendLimit,
		WindowStart:    req.WindowStart,
		WindowEnd:      req.WindowEnd,
		WeekdaysOnly:   req.WeekdaysOnly,
	}
	if req.Steps != nil {
		steps := toStepInputs(*req.Steps)
		input.Steps = &steps
	}

	campaign, err := h.campaigns.Update(ctx.Context(), input)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toCampaignResponse(campaign))
}

func (h *HandlerSet) activateCampaign(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := h.campaigns.Activate(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) pauseCampaign(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := h.campaigns.Pause(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) completeCampaign(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := h.campaigns.Complete(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) campaignStats(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	stats, err := h.campaigns.Stats(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(campaignStatsResponse{
		EmailsSent:      stats.EmailsSent,
		EmailsDelivered: stats.EmailsDelivered,
		EmailsOpened:    stats.EmailsOpened,
		EmailsReplied:   stats.EmailsReplied,
		DeliveryRate:    stats.DeliveryRate,
		OpenRate:        stats.OpenRate,
		ReplyRate:       stats.ReplyRate,
		UpdatedAt:       stats.UpdatedAt,
	})
}

func (h *HandlerSet) assignContacts(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	var req struct {
		ContactIDs []uuid.UUID `json:"contact_ids"`
	}
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.campaigns.AssignContacts(ctx.Context(), id, req.ContactIDs); err != nil {
		return translateError(err)
	}

	return ctx.SendStatus(http.StatusAccepted)
}

func (h *HandlerSet) listCampaignEvents(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	day := time.Now().UTC()
	if dayStr := ctx.Query("day"); dayStr != "" {
		parsed, err := time.Parse("2006-01-02", dayStr)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid day, expected YYYY-MM-DD")
		}
		day = parsed
	}

	limit, _ := strconv.Atoi(ctx.Query("limit", "100"))

	var paging []byte
	if token := ctx.Query("page_token", ""); token != "" {
		paging, err = common.DecodeBase64(token)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid page token")
		}
	}

	events, next, err := h.events.ListByCampaign(ctx.Context(), id, day, limit, paging)
	if err != nil {
		return translateError(err)
	}

	resp := listEventsResponse{Events: make([]eventResponse, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, eventResponse{
			ID:         e.ID,
			ContactID:  e.ContactID,
			StepNumber: e.StepNumber,
			Attempt:    e.Attempt,
			TraceID:    e.TraceID,
			Outcome:    string(e.Outcome),
			Error:      e.Error,
			OccurredAt: e.OccurredAt,
		})
	}
	if len(next) > 0 {
		resp.NextPage = common.EncodeBase64(next)
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

func toStepInputs(reqs []stepRequest) []campaignsvc.StepInput {
	steps := make([]campaignsvc.StepInput, 0, len(reqs))
	for _, s := range reqs {
		active := true
		if s.IsActive != nil {
			active = *s.IsActive
		}
		steps = append(steps, campaignsvc.StepInput{
			StepNumber: s.StepNumber,
			DelayDays:  s.DelayDays,
			IsActive:   active,
			Subject:    s.Subject,
			Body:       s.Body,
		})
	}
	return steps
}

func toCampaignResponse(campaign *domain.Campaign) campaignResponse {
	resp := campaignResponse{
		ID:             campaign.ID,
		Name:           campaign.Name,
		Status:         campaign.Status,
		TimeZone:       campaign.TimeZone,
		FromAccountID:  campaign.FromAccountID,
		DailySendLimit: campaign.DailySendLimit,
		WindowStart:    campaign.SendingWindow.Start.String(),
		WindowEnd:      campaign.SendingWindow.End.String(),
		WeekdaysOnly:   campaign.SendingWindow.WeekdaysOnly,
		Steps:          make([]stepResponse, 0, len(campaign.Steps)),
		CreatedAt:      campaign.CreatedAt,
		UpdatedAt:      campaign.UpdatedAt,
		StartedAt:      campaign.StartedAt,
		CompletedAt:    campaign.CompletedAt,
	}

	for _, step := range campaign.Steps {
		resp.Steps = append(resp.Steps, stepResponse{
			StepNumber: step.StepNumber,
			DelayDays:  step.DelayDays,
			IsActive:   step.IsActive,
			Subject:    step.Subject,
			Body:       step.Body,
		})
	}

	return resp
}

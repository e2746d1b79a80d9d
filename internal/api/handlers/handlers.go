package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/cold-outreach-engine/internal/app"
	"github.com/acme/cold-outreach-engine/internal/repository"
	campaignsvc "github.com/acme/cold-outreach-engine/internal/service/campaign"
	"github.com/acme/cold-outreach-engine/internal/sweep"
)

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	container *app.Container
	campaigns *campaignsvc.Service
	contacts  repository.ContactRepository
	events    repository.DeliveryEventStore
	sweeper   *sweep.Sweep
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(container *app.Container) *HandlerSet {
	services := container.Services()
	repos := container.Repositories()
	return &HandlerSet{
		container: container,
		campaigns: services.Campaign,
		contacts:  repos.Contacts,
		events:    repos.Events,
		sweeper:   services.Sweep,
	}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	campaigns := v1.Group("/campaigns")
	campaigns.Post("/", h.createCampaign)
	campaigns.Get("/", h.listCampaigns)
	campaigns.Get("/:id", h.getCampaign)
	campaigns.Put("/:id", h.updateCampaign)
	campaigns.Post("/:id/activate", h.activateCampaign)
	campaigns.Post("/:id/pause", h.pauseCampaign)
	campaigns.Post("/:id/complete", h.completeCampaign)
	campaigns.Get("/:id/stats", h.campaignStats)
	campaigns.Post("/:id/contacts", h.assignContacts)
	campaigns.Get("/:id/events", h.listCampaignEvents)

	contacts := v1.Group("/contacts")
	contacts.Post("/", h.createContact)
	contacts.Get("/:id", h.getContact)

	sweeps := v1.Group("/sweep")
	sweeps.Post("/run", h.runSweep)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.container.Logger.Error("request failed", zap.Error(err))
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": ctx.GetRespHeader("Trace-Id"),
	})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.Context(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)

	if err := h.container.Postgres.DB().PingContext(healthCtx); err != nil {
		errs["postgres"] = err.Error()
	}

	if err := h.container.Redis.Inner().Ping(healthCtx).Err(); err != nil {
		errs["redis"] = err.Error()
	}

	if err := h.container.Scylla.Session().Query("SELECT now() FROM system.local").WithContext(healthCtx).Exec(); err != nil {
		errs["scylla"] = err.Error()
	}

	status := fiber.StatusOK
	if len(errs) > 0 {
		status = fiber.StatusServiceUnavailable
	}

	return ctx.Status(status).JSON(fiber.Map{"status": "ok", "errors": errs})
}

func (h *HandlerSet) runSweep(ctx *fiber.Ctx) error {
	result, err := h.sweeper.Pass(ctx.Context())
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(fiber.StatusOK).JSON(result)
}

package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/cold-outreach-engine/internal/domain"
)

type createContactRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type contactResponse struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	ContactedAt *time.Time `json:"contacted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (h *HandlerSet) createContact(ctx *fiber.Ctx) error {
	var req createContactRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return fiber.NewError(http.StatusBadRequest, "valid email is required")
	}

	contact := &domain.Contact{
		ID:        uuid.New(),
		Email:     req.Email,
		Name:      strings.TrimSpace(req.Name),
		CreatedAt: time.Now().UTC(),
	}
	if err := h.contacts.Create(ctx.Context(), contact); err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusCreated).JSON(toContactResponse(contact))
}

func (h *HandlerSet) getContact(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid contact id")
	}

	contact, err := h.contacts.Get(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toContactResponse(contact))
}

func toContactResponse(contact *domain.Contact) contactResponse {
	return contactResponse{
		ID:          contact.ID,
		Email:       contact.Email,
		Name:        contact.Name,
		ContactedAt: contact.ContactedAt,
		CreatedAt:   contact.CreatedAt,
	}
}

package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CoachCareBack/internal/models"
)

type clientApplicationService interface {
	GetClient(ctx context.Context, actorID int64, clientID int64) (*models.User, error)
	ListMyClients(ctx context.Context, actorID int64) ([]models.UserSummary, error)
}

type ClientHandler struct {
	service clientApplicationService
}

func NewClientHandler(service clientApplicationService) *ClientHandler {
	return &ClientHandler{service: service}
}

func (h *ClientHandler) ListClients(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}

	clients, err := h.service.ListMyClients(c.Context(), actorID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"clients": clients})
}

func (h *ClientHandler) GetClient(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}
	clientID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid client id")
	}

	client, err := h.service.GetClient(c.Context(), actorID, clientID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"client": client})
}

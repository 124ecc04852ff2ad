package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CoachCareBack/internal/models"
	"github.com/saeid-a/CoachCareBack/internal/services"
	chatws "github.com/saeid-a/CoachCareBack/internal/websocket"
)

type adminApplicationService interface {
	AssignChatDoctor(ctx context.Context, actorID int64, clientID int64, doctorID int64) (*services.ChatAssignment, error)
	AssignCoach(ctx context.Context, actorID int64, clientID int64, coachID int64) (*models.User, error)
	SetUserRole(ctx context.Context, actorID int64, userID int64, role string) (*models.User, error)
	SetSubscriptionStatus(ctx context.Context, actorID int64, userID int64, status string) (*models.User, error)
}

type reassignmentNotifier interface {
	NotifyReassignment(assignment *services.ChatAssignment)
}

type AdminHandler struct {
	service  adminApplicationService
	notifier reassignmentNotifier
}

func NewAdminHandler(service adminApplicationService, hub *chatws.Hub) *AdminHandler {
	handler := &AdminHandler{service: service}
	if hub != nil {
		handler.notifier = hub
	}
	return handler
}

type assignDoctorRequest struct {
	DoctorID int64 `json:"doctor_id"`
}

type assignCoachRequest struct {
	CoachID int64 `json:"coach_id"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type subscriptionRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandler) AssignChatDoctor(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}
	clientID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid client id")
	}

	var req assignDoctorRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.DoctorID <= 0 {
		return badRequest(c, "doctor_id is required")
	}

	assignment, err := h.service.AssignChatDoctor(c.Context(), actorID, clientID, req.DoctorID)
	if err != nil {
		return mapServiceError(c, err)
	}

	if h.notifier != nil {
		h.notifier.NotifyReassignment(assignment)
	}
	return c.JSON(fiber.Map{"assignment": assignment})
}

func (h *AdminHandler) AssignCoach(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}
	clientID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid client id")
	}

	var req assignCoachRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.CoachID <= 0 {
		return badRequest(c, "coach_id is required")
	}

	client, err := h.service.AssignCoach(c.Context(), actorID, clientID, req.CoachID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"client": client})
}

func (h *AdminHandler) SetRole(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid user id")
	}

	var req roleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	if msg := validateRoleRequest(req); msg != "" {
		return badRequest(c, msg)
	}

	user, err := h.service.SetUserRole(c.Context(), actorID, userID, req.Role)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"user": user})
}

func (h *AdminHandler) SetSubscription(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid user id")
	}

	var req subscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if msg := validateSubscriptionRequest(req); msg != "" {
		return badRequest(c, msg)
	}

	user, err := h.service.SetSubscriptionStatus(c.Context(), actorID, userID, req.Status)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"user": user})
}

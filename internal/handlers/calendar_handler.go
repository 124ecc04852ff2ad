package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CoachCareBack/internal/models"
	"github.com/saeid-a/CoachCareBack/internal/services"
)

type calendarApplicationService interface {
	CreateCalendarCall(ctx context.Context, actorID int64, input services.CreateCalendarCallInput) (*models.CalendarEventView, error)
	UpdateEvent(ctx context.Context, actorID int64, eventID int64, input services.UpdateEventInput) (*models.CalendarEventView, error)
	CancelEvent(ctx context.Context, actorID int64, eventID int64) (*models.CalendarEvent, error)
	GetEvent(ctx context.Context, actorID int64, eventID int64) (*models.CalendarEventView, error)
	GetEventsByDate(ctx context.Context, actorID int64, date string) ([]models.CalendarEventView, error)
	GetEventsByDateRange(ctx context.Context, actorID int64, startDate string, endDate string) ([]models.CalendarEventView, error)
	GetTodaysAppointments(ctx context.Context, actorID int64, query services.TodaysAppointmentsQuery) ([]models.TodaysAppointment, error)
}

type CalendarHandler struct {
	service calendarApplicationService
}

func NewCalendarHandler(service calendarApplicationService) *CalendarHandler {
	return &CalendarHandler{service: service}
}

type createCalendarCallRequest struct {
	ClientID  int64   `json:"client_id"`
	CoachID   *int64  `json:"coach_id"`
	Date      string  `json:"date"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Reason    string  `json:"reason"`
	Notes     *string `json:"notes"`
}

type updateEventRequest struct {
	Date      *string `json:"date"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Reason    *string `json:"reason"`
	Notes     *string `json:"notes"`
}

func (h *CalendarHandler) CreateCall(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req createCalendarCallRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if msg := validateCreateCallRequest(req); msg != "" {
		return badRequest(c, msg)
	}

	input := services.CreateCalendarCallInput{
		ClientID:  req.ClientID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    req.Reason,
		Notes:     trimmedOrNil(req.Notes),
	}
	if req.CoachID != nil {
		input.CoachID = *req.CoachID
	}

	event, err := h.service.CreateCalendarCall(c.Context(), actorID, input)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"event": event})
}

func (h *CalendarHandler) UpdateEvent(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}
	eventID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid event id")
	}

	var req updateEventRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if msg := validateUpdateEventRequest(req); msg != "" {
		return badRequest(c, msg)
	}

	event, err := h.service.UpdateEvent(c.Context(), actorID, eventID, services.UpdateEventInput{
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    req.Reason,
		Notes:     req.Notes,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"event": event})
}

func (h *CalendarHandler) CancelEvent(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}
	eventID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid event id")
	}

	event, err := h.service.CancelEvent(c.Context(), actorID, eventID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "event": event})
}

func (h *CalendarHandler) GetEvent(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}
	eventID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid event id")
	}

	event, err := h.service.GetEvent(c.Context(), actorID, eventID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"event": event})
}

func (h *CalendarHandler) ListByDate(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}
	date := c.Query("date")
	if date == "" {
		return badRequest(c, "date is required")
	}

	events, err := h.service.GetEventsByDate(c.Context(), actorID, date)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"date": date, "events": events})
}

func (h *CalendarHandler) ListByRange(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}
	startDate := c.Query("start_date")
	endDate := c.Query("end_date")
	if startDate == "" || endDate == "" {
		return badRequest(c, "start_date and end_date are required")
	}

	events, err := h.service.GetEventsByDateRange(c.Context(), actorID, startDate, endDate)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"start_date": startDate,
		"end_date":   endDate,
		"events":     events,
	})
}

// Today lists the day's appointments that have not ended yet; pass
// ?include_past=true to also get the finished ones, marked completed.
func (h *CalendarHandler) Today(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}

	// A zero limit lets the service apply its default.
	appointments, err := h.service.GetTodaysAppointments(c.Context(), actorID, services.TodaysAppointmentsQuery{
		Date:        c.Query("date"),
		Limit:       parsePositiveInt(c.Query("limit"), 0),
		IncludePast: c.QueryBool("include_past"),
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"appointments": appointments})
}

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CoachCareBack/internal/middleware"
	"github.com/saeid-a/CoachCareBack/internal/services"
	"go.uber.org/zap"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var serviceErrorMappings = []errorMapping{
	{services.ErrUnauthorized, fiber.StatusUnauthorized, "unauthorized"},
	{services.ErrAccessDenied, fiber.StatusForbidden, "access_denied"},
	{services.ErrNotFound, fiber.StatusNotFound, "not_found"},
	{services.ErrInvalidRange, fiber.StatusBadRequest, "invalid_range"},
	{services.ErrInvalidInput, fiber.StatusBadRequest, "invalid_input"},
	{services.ErrOverlapConflict, fiber.StatusConflict, "overlap_conflict"},
	{services.ErrSubscriptionInactive, fiber.StatusPaymentRequired, "subscription_inactive"},
	{services.ErrInvalidStateTransition, fiber.StatusUnprocessableEntity, "invalid_state"},
	{services.ErrStorageUnavailable, fiber.StatusServiceUnavailable, "storage_unavailable"},
}

// mapServiceError renders a service error. Domain errors keep their message,
// which already carries the detail; anything else is logged and hidden.
func mapServiceError(c *fiber.Ctx, err error) error {
	for _, mapping := range serviceErrorMappings {
		if errors.Is(err, mapping.target) {
			return c.Status(mapping.status).JSON(fiber.Map{
				"error": err.Error(),
				"code":  mapping.code,
			})
		}
	}

	middleware.LoggerFrom(c).Error("request failed",
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
		"code":  "internal",
	})
}

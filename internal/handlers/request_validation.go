package handlers

import (
	"strings"

	"github.com/saeid-a/CoachCareBack/internal/models"
)

var allowedMessageTypes = map[string]struct{}{
	models.MessageTypeText:  {},
	models.MessageTypeImage: {},
	models.MessageTypeVoice: {},
}

func validateCreateCallRequest(req createCalendarCallRequest) string {
	if req.ClientID <= 0 {
		return "client_id is required"
	}
	if req.CoachID != nil && *req.CoachID <= 0 {
		return "coach_id must be positive"
	}
	if strings.TrimSpace(req.Date) == "" {
		return "date is required"
	}
	if strings.TrimSpace(req.StartTime) == "" || strings.TrimSpace(req.EndTime) == "" {
		return "start_time and end_time are required"
	}
	if strings.TrimSpace(req.Reason) == "" {
		return "reason is required"
	}
	return ""
}

func validateUpdateEventRequest(req updateEventRequest) string {
	if req.Date == nil && req.StartTime == nil && req.EndTime == nil && req.Reason == nil && req.Notes == nil {
		return "at least one field must be provided"
	}
	if req.Reason != nil && strings.TrimSpace(*req.Reason) == "" {
		return "reason must not be empty"
	}
	return ""
}

func validateSendMessageRequest(req sendMessageRequest) string {
	if req.MessageType == "" {
		return ""
	}
	if _, ok := allowedMessageTypes[req.MessageType]; !ok {
		return "message_type must be one of: text, image, voice"
	}
	return ""
}

func validateRoleRequest(req roleRequest) string {
	if !models.IsValidRole(req.Role) {
		return "role must be one of: client, coach, admin"
	}
	return ""
}

func validateSubscriptionRequest(req subscriptionRequest) string {
	if !models.IsValidSubscriptionStatus(req.Status) {
		return "status must be one of: active, trial, expired, none"
	}
	return ""
}

package handlers

import (
	"context"
	"errors"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CoachCareBack/internal/middleware"
	"github.com/saeid-a/CoachCareBack/internal/models"
	"github.com/saeid-a/CoachCareBack/internal/services"
	chatws "github.com/saeid-a/CoachCareBack/internal/websocket"
	"github.com/saeid-a/CoachCareBack/pkg/utils"
)

type chatApplicationService interface {
	GetMyConversation(ctx context.Context, actorID int64) (*models.Conversation, error)
	ListConversations(ctx context.Context, actorID int64, input services.ConversationListInput) ([]models.ConversationSummary, error)
	ListMessages(ctx context.Context, actorID int64, conversationID int64, page int, limit int) ([]models.ChatMessage, int, error)
	MarkConversationRead(ctx context.Context, actorID int64, conversationID int64) error
	SendMessage(ctx context.Context, actorID int64, input services.SendMessageInput) (*services.ChatDelivery, error)
	EditMessage(ctx context.Context, actorID int64, messageID int64, newContent string) (*services.ChatDelivery, error)
	DeleteMessage(ctx context.Context, actorID int64, messageID int64, placeholder string) (*services.DeleteMessageResult, error)
	SetConversationFlags(ctx context.Context, actorID int64, conversationID int64, input services.ConversationFlagsInput) (*models.Conversation, error)
	CreateMediaUpload(ctx context.Context, actorID int64, conversationID int64, kind string, contentType string) (*services.MediaUpload, error)
}

type ChatHandler struct {
	service   chatApplicationService
	hub       *chatws.Hub
	jwtSecret string
}

func NewChatHandler(service chatApplicationService, hub *chatws.Hub, jwtSecret string) *ChatHandler {
	return &ChatHandler{
		service:   service,
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}

type sendMessageRequest struct {
	Content       string  `json:"content"`
	MessageType   string  `json:"message_type"`
	MediaURL      *string `json:"media_url"`
	MediaDuration *int    `json:"media_duration"`
}

type editMessageRequest struct {
	Content string `json:"content"`
}

type conversationFlagsRequest struct {
	IsPinned   *bool `json:"is_pinned"`
	IsPriority *bool `json:"is_priority"`
}

type mediaUploadRequest struct {
	Kind        string `json:"kind"`
	ContentType string `json:"content_type"`
}

func (h *ChatHandler) MyConversation(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}

	conversation, err := h.service.GetMyConversation(c.Context(), actorID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}

	page, limit := pageParams(c)
	conversations, err := h.service.ListConversations(c.Context(), actorID, services.ConversationListInput{
		Status: c.Query("status"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"conversations": conversations,
		"page":          page,
		"limit":         limit,
	})
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}
	conversationID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid conversation id")
	}

	page, limit := pageParams(c)
	messages, total, err := h.service.ListMessages(c.Context(), actorID, conversationID, page, limit)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"messages":   messages,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}
	conversationID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid conversation id")
	}

	if err := h.service.MarkConversationRead(c.Context(), actorID, conversationID); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}
	conversationID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid conversation id")
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if msg := validateSendMessageRequest(req); msg != "" {
		return badRequest(c, msg)
	}

	delivery, err := h.service.SendMessage(c.Context(), actorID, services.SendMessageInput{
		ConversationID: conversationID,
		Content:        req.Content,
		MessageType:    req.MessageType,
		MediaURL:       req.MediaURL,
		MediaDuration:  req.MediaDuration,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	h.notify(chatws.EventMessageCreated, delivery)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": delivery.Message})
}

func (h *ChatHandler) EditMessage(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}
	messageID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid message id")
	}

	var req editMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	delivery, err := h.service.EditMessage(c.Context(), actorID, messageID, req.Content)
	if err != nil {
		return mapServiceError(c, err)
	}

	h.notify(chatws.EventMessageUpdated, delivery)
	return c.JSON(fiber.Map{"success": true, "message": delivery.Message})
}

func (h *ChatHandler) DeleteMessage(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}
	messageID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid message id")
	}

	placeholder := services.DeletedPlaceholder(c.Get(fiber.HeaderAcceptLanguage))
	result, err := h.service.DeleteMessage(c.Context(), actorID, messageID, placeholder)
	if err != nil {
		return mapServiceError(c, err)
	}

	if result.AlreadyDeleted {
		return c.JSON(fiber.Map{"success": true, "alreadyDeleted": true})
	}

	h.notify(chatws.EventMessageDeleted, result.Delivery)
	response := fiber.Map{"success": true, "alreadyDeleted": false}
	if result.Delivery != nil {
		response["message"] = result.Delivery.Message
	}
	return c.JSON(response)
}

func (h *ChatHandler) SetFlags(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}
	conversationID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid conversation id")
	}

	var req conversationFlagsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	conversation, err := h.service.SetConversationFlags(c.Context(), actorID, conversationID, services.ConversationFlagsInput{
		IsPinned:   req.IsPinned,
		IsPriority: req.IsPriority,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) CreateMediaUpload(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return unauthorized(c)
	}
	conversationID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid conversation id")
	}

	var req mediaUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	upload, err := h.service.CreateMediaUpload(
		c.Context(),
		actorID,
		conversationID,
		strings.ToLower(strings.TrimSpace(req.Kind)),
		req.ContentType,
	)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"upload": upload})
}

func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	client := chatws.NewClient(h.hub, conn, userID)

	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump(h.service)
}

func (h *ChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		tokenString, _ = middleware.BearerToken(c.Get(fiber.HeaderAuthorization))
	}
	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}

func (h *ChatHandler) notify(eventType string, delivery *services.ChatDelivery) {
	if h.hub == nil {
		return
	}
	h.hub.NotifyDelivery(eventType, delivery)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/saeid-a/CoachCareBack/internal/models"
	"github.com/saeid-a/CoachCareBack/internal/observ"
	"github.com/saeid-a/CoachCareBack/internal/repository"
	"go.uber.org/zap"
)

const (
	maxMessageRunes   = 4000
	maxPreviewRunes   = 100
	mediaKeyPrefix    = "chat/"
	defaultChatLimit  = 20
	maxChatLimit      = 50
	maxVoiceDuration  = 15 * 60
	imagePreviewLabel = "[image]"
	voicePreviewLabel = "[voice]"
)

type ChatService struct {
	store   Store
	access  *AccessService
	storage StorageService
	logger  *zap.Logger
	now     func() time.Time
}

// NewChatService accepts a nil storage; media uploads then fail with
// ErrStorageUnavailable and stored media references are returned as is.
func NewChatService(store Store, access *AccessService, storage StorageService, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		store:   store,
		access:  access,
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

type ChatDelivery struct {
	Conversation *models.Conversation
	Message      *models.ChatMessage
	RecipientID  int64
}

type SendMessageInput struct {
	ConversationID int64
	Content        string
	MessageType    string
	MediaURL       *string
	MediaDuration  *int
}

type DeleteMessageResult struct {
	AlreadyDeleted bool
	Delivery       *ChatDelivery
}

type ConversationListInput struct {
	Status string
	Page   int
	Limit  int
}

type ConversationFlagsInput struct {
	IsPinned   *bool
	IsPriority *bool
}

type MediaUpload struct {
	UploadURL string    `json:"upload_url"`
	Method    string    `json:"method"`
	ObjectKey string    `json:"object_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GetMyConversation returns the client's active conversation with their
// assigned chat doctor, creating it on first use.
func (s *ChatService) GetMyConversation(ctx context.Context, actorID int64) (*models.Conversation, error) {
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := RequireRole(actor, models.RoleClient); err != nil {
		return nil, err
	}
	if actor.AssignedChatDoctorID == nil {
		return nil, fmt.Errorf("%w: no chat doctor assigned", ErrNotFound)
	}
	doctorID := *actor.AssignedChatDoctorID

	conversations := s.store.Repos().Conversations
	conversation, err := conversations.GetActiveForPair(ctx, actor.ID, doctorID)
	if err == nil {
		return conversation, nil
	}
	if !repository.IsNotFound(err) {
		return nil, err
	}

	conversation, err = conversations.Create(ctx, actor.ID, doctorID)
	if errors.Is(err, repository.ErrDuplicate) {
		return conversations.GetActiveForPair(ctx, actor.ID, doctorID)
	}
	return conversation, err
}

func (s *ChatService) ListConversations(
	ctx context.Context,
	actorID int64,
	input ConversationListInput,
) ([]models.ConversationSummary, error) {
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, err
	}

	status := strings.TrimSpace(input.Status)
	if status != "" && status != models.ConversationActive && status != models.ConversationArchived {
		return nil, fmt.Errorf("%w: status must be active or archived", ErrInvalidInput)
	}
	page, limit := normalizePage(input.Page, input.Limit, defaultChatLimit, maxChatLimit)

	filter := repository.ConversationListFilter{
		Status:   status,
		ViewerID: actor.ID,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleCoach:
		filter.CoachID = actor.ID
	case models.RoleClient:
		filter.ClientID = actor.ID
	default:
		return nil, ErrAccessDenied
	}

	return s.store.Repos().Conversations.List(ctx, filter)
}

// ListMessages pages through a conversation newest first. Participants also
// mark the counterpart's messages read; admins read without side effects.
func (s *ChatService) ListMessages(
	ctx context.Context,
	actorID int64,
	conversationID int64,
	page int,
	limit int,
) ([]models.ChatMessage, int, error) {
	if conversationID <= 0 || page <= 0 || limit <= 0 {
		return nil, 0, ErrInvalidInput
	}
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, 0, err
	}
	conversation, err := s.access.RequireConversationAccess(ctx, actor, conversationID)
	if err != nil {
		return nil, 0, err
	}

	var (
		messages []models.ChatMessage
		total    int
	)
	err = s.store.WithinTx(ctx, func(repos Repos) error {
		messages, total, err = repos.Messages.ListByConversation(ctx, conversationID, limit, (page-1)*limit)
		if err != nil {
			return err
		}
		if !conversation.HasParticipant(actor.ID) {
			return nil
		}
		return markRead(ctx, repos, conversation, actor.ID)
	})
	if err != nil {
		return nil, 0, err
	}

	if conversation.HasParticipant(actor.ID) {
		for i := range messages {
			if messages[i].SenderID != actor.ID {
				messages[i].IsRead = true
			}
		}
	}
	s.presignMedia(ctx, messages)

	return messages, total, nil
}

func (s *ChatService) MarkConversationRead(ctx context.Context, actorID int64, conversationID int64) error {
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return err
	}
	conversation, err := s.access.RequireConversationAccess(ctx, actor, conversationID)
	if err != nil {
		return err
	}
	if !conversation.HasParticipant(actor.ID) {
		return nil
	}
	return s.store.WithinTx(ctx, func(repos Repos) error {
		return markRead(ctx, repos, conversation, actor.ID)
	})
}

// SendMessage enforces the messaging policy:
//   - admins are read-only
//   - clients may only write to their current chat doctor and need an
//     active or trial subscription
//   - coaches may only write while still assigned as the client's chat doctor
func (s *ChatService) SendMessage(
	ctx context.Context,
	actorID int64,
	input SendMessageInput,
) (*ChatDelivery, error) {
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleAdmin {
		return nil, fmt.Errorf("%w: admins have read-only access to conversations", ErrAccessDenied)
	}
	if input.ConversationID <= 0 {
		return nil, fmt.Errorf("%w: conversation_id is required", ErrInvalidInput)
	}

	normalized, err := normalizeMessage(input)
	if err != nil {
		return nil, err
	}

	var delivery *ChatDelivery
	err = s.store.WithinTx(ctx, func(repos Repos) error {
		conversation, err := authorizeSend(ctx, repos, actor, input.ConversationID)
		if err != nil {
			return err
		}

		message, err := repos.Messages.Create(ctx, repository.CreateMessageInput{
			ConversationID: conversation.ID,
			SenderID:       actor.ID,
			Content:        normalized.Content,
			MessageType:    normalized.MessageType,
			MediaURL:       normalized.MediaURL,
			MediaDuration:  normalized.MediaDuration,
		})
		if err != nil {
			return err
		}

		recipientID := conversation.Counterpart(actor.ID)
		recipientRole := models.RoleCoach
		if recipientID == conversation.ClientID {
			recipientRole = models.RoleClient
		}
		preview := messagePreview(normalized.MessageType, normalized.Content)
		if err := repos.Conversations.RecordMessage(ctx, conversation.ID, recipientRole, preview, message.CreatedAt); err != nil {
			return err
		}

		delivery = &ChatDelivery{
			Conversation: conversation,
			Message:      message,
			RecipientID:  recipientID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observ.ChatMessagesSent.WithLabelValues(normalized.MessageType).Inc()
	s.presignMedia(ctx, []models.ChatMessage{*delivery.Message})
	return delivery, nil
}

func (s *ChatService) EditMessage(
	ctx context.Context,
	actorID int64,
	messageID int64,
	newContent string,
) (*ChatDelivery, error) {
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(newContent)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > maxMessageRunes {
		return nil, fmt.Errorf("%w: content exceeds %d characters", ErrInvalidInput, maxMessageRunes)
	}

	repos := s.store.Repos()
	message, err := repos.Messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, notFound(err)
	}
	if message.SenderID != actor.ID {
		return nil, fmt.Errorf("%w: only the sender can edit a message", ErrAccessDenied)
	}
	if message.IsDeleted {
		return nil, fmt.Errorf("%w: message is deleted", ErrInvalidStateTransition)
	}

	updated, err := repos.Messages.UpdateContent(ctx, messageID, content)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: message is deleted", ErrInvalidStateTransition)
		}
		return nil, err
	}

	return s.deliveryFor(ctx, actor.ID, updated)
}

// DeleteMessage soft-deletes a message by overwriting it with placeholder.
// Deleting twice reports AlreadyDeleted and leaves deleted_at as it was.
func (s *ChatService) DeleteMessage(
	ctx context.Context,
	actorID int64,
	messageID int64,
	placeholder string,
) (*DeleteMessageResult, error) {
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, err
	}

	repos := s.store.Repos()
	message, err := repos.Messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, notFound(err)
	}
	if message.SenderID != actor.ID {
		return nil, fmt.Errorf("%w: only the sender can delete a message", ErrAccessDenied)
	}
	if message.IsDeleted {
		return &DeleteMessageResult{AlreadyDeleted: true}, nil
	}

	if strings.TrimSpace(placeholder) == "" {
		placeholder = DefaultDeletedPlaceholder
	}
	deleted, err := repos.Messages.SoftDelete(ctx, messageID, placeholder)
	if err != nil {
		if repository.IsNotFound(err) {
			return &DeleteMessageResult{AlreadyDeleted: true}, nil
		}
		return nil, err
	}

	if message.MediaURL != nil && isMediaKey(*message.MediaURL) && s.storage != nil {
		if err := s.storage.DeleteObject(ctx, *message.MediaURL); err != nil {
			s.logger.Warn("chat media cleanup failed", zap.Int64("message_id", messageID), zap.Error(err))
		}
	}

	delivery, err := s.deliveryFor(ctx, actor.ID, deleted)
	if err != nil {
		return nil, err
	}
	return &DeleteMessageResult{Delivery: delivery}, nil
}

// SetConversationFlags toggles the coach-side pin and priority markers.
func (s *ChatService) SetConversationFlags(
	ctx context.Context,
	actorID int64,
	conversationID int64,
	input ConversationFlagsInput,
) (*models.Conversation, error) {
	if input.IsPinned == nil && input.IsPriority == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := RequireRole(actor, models.RoleCoach, models.RoleAdmin); err != nil {
		return nil, err
	}
	if _, err := s.access.RequireConversationAccess(ctx, actor, conversationID); err != nil {
		return nil, err
	}

	conversation, err := s.store.Repos().Conversations.SetFlags(ctx, conversationID, input.IsPinned, input.IsPriority)
	if err != nil {
		return nil, notFound(err)
	}
	return conversation, nil
}

// CreateMediaUpload issues a presigned PUT URL for an image or voice note.
// The returned object key is what the client later sends as media_url.
func (s *ChatService) CreateMediaUpload(
	ctx context.Context,
	actorID int64,
	conversationID int64,
	kind string,
	contentType string,
) (*MediaUpload, error) {
	if s.storage == nil {
		return nil, ErrStorageUnavailable
	}
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleAdmin {
		return nil, fmt.Errorf("%w: admins have read-only access to conversations", ErrAccessDenied)
	}
	conversation, err := s.access.RequireConversationAccess(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}

	contentType = strings.ToLower(strings.TrimSpace(contentType))
	switch kind {
	case models.MessageTypeImage:
		if !strings.HasPrefix(contentType, "image/") {
			return nil, fmt.Errorf("%w: image uploads need an image/* content type", ErrInvalidInput)
		}
	case models.MessageTypeVoice:
		if !strings.HasPrefix(contentType, "audio/") {
			return nil, fmt.Errorf("%w: voice uploads need an audio/* content type", ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("%w: kind must be image or voice", ErrInvalidInput)
	}

	objectKey := fmt.Sprintf("%s%s%s", mediaKeyFolder(conversation.ID), uuid.NewString(), mediaExtension(contentType))
	uploadURL, err := s.storage.PresignUpload(ctx, objectKey, contentType)
	if err != nil {
		return nil, err
	}

	return &MediaUpload{
		UploadURL: uploadURL,
		Method:    "PUT",
		ObjectKey: objectKey,
		ExpiresAt: s.now().Add(DefaultPresignedURLExpiry).UTC(),
	}, nil
}

func (s *ChatService) deliveryFor(ctx context.Context, actorID int64, message *models.ChatMessage) (*ChatDelivery, error) {
	conversation, err := s.store.Repos().Conversations.GetByID(ctx, message.ConversationID)
	if err != nil {
		return nil, notFound(err)
	}
	return &ChatDelivery{
		Conversation: conversation,
		Message:      message,
		RecipientID:  conversation.Counterpart(actorID),
	}, nil
}

// presignMedia swaps stored object keys for download URLs in place.
func (s *ChatService) presignMedia(ctx context.Context, messages []models.ChatMessage) {
	if s.storage == nil {
		return
	}
	for i := range messages {
		key := messages[i].MediaURL
		if key == nil || !isMediaKey(*key) {
			continue
		}
		url, err := s.storage.PresignDownload(ctx, *key)
		if err != nil {
			s.logger.Warn("presign chat media failed", zap.Int64("message_id", messages[i].ID), zap.Error(err))
			continue
		}
		messages[i].MediaURL = &url
	}
}

func authorizeSend(
	ctx context.Context,
	repos Repos,
	actor *models.User,
	conversationID int64,
) (*models.Conversation, error) {
	switch actor.Role {
	case models.RoleClient:
		// Re-read under lock so a concurrent reassignment cannot slip between
		// the check and the insert.
		client, err := repos.Users.GetByIDForUpdate(ctx, actor.ID)
		if err != nil {
			return nil, notFound(err)
		}
		if client.AssignedChatDoctorID == nil {
			return nil, fmt.Errorf("%w: no chat doctor assigned", ErrAccessDenied)
		}
		conversation, err := repos.Conversations.GetByID(ctx, conversationID)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil, fmt.Errorf("%w: not your current conversation", ErrAccessDenied)
			}
			return nil, err
		}
		if conversation.ClientID != client.ID ||
			conversation.CoachID != *client.AssignedChatDoctorID ||
			conversation.Status != models.ConversationActive {
			return nil, fmt.Errorf("%w: not your current conversation", ErrAccessDenied)
		}
		if !client.CanMessage() {
			return nil, ErrSubscriptionInactive
		}
		return conversation, nil

	case models.RoleCoach:
		conversation, err := repos.Conversations.GetByID(ctx, conversationID)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil, fmt.Errorf("%w: not your conversation", ErrAccessDenied)
			}
			return nil, err
		}
		if conversation.CoachID != actor.ID {
			return nil, fmt.Errorf("%w: not your conversation", ErrAccessDenied)
		}
		client, err := repos.Users.GetByIDForUpdate(ctx, conversation.ClientID)
		if err != nil {
			return nil, notFound(err)
		}
		if !client.IsAssignedChatDoctor(actor.ID) || conversation.Status != models.ConversationActive {
			return nil, fmt.Errorf("%w: client is no longer assigned to you", ErrAccessDenied)
		}
		return conversation, nil
	}

	return nil, ErrAccessDenied
}

func markRead(ctx context.Context, repos Repos, conversation *models.Conversation, readerID int64) error {
	if err := repos.Messages.MarkConversationRead(ctx, conversation.ID, readerID); err != nil {
		return err
	}
	side := models.RoleCoach
	if readerID == conversation.ClientID {
		side = models.RoleClient
	}
	return repos.Conversations.ResetUnread(ctx, conversation.ID, side)
}

type normalizedMessage struct {
	MessageType   string
	Content       string
	MediaURL      *string
	MediaDuration *int
}

func normalizeMessage(input SendMessageInput) (normalizedMessage, error) {
	out := normalizedMessage{
		MessageType: strings.TrimSpace(input.MessageType),
		Content:     strings.TrimSpace(input.Content),
	}
	if out.MessageType == "" {
		out.MessageType = models.MessageTypeText
	}
	if utf8.RuneCountInString(out.Content) > maxMessageRunes {
		return out, fmt.Errorf("%w: content exceeds %d characters", ErrInvalidInput, maxMessageRunes)
	}

	switch out.MessageType {
	case models.MessageTypeText:
		if out.Content == "" {
			return out, fmt.Errorf("%w: content is required", ErrInvalidInput)
		}
		return out, nil
	case models.MessageTypeImage, models.MessageTypeVoice:
	default:
		return out, fmt.Errorf("%w: message_type must be text, image or voice", ErrInvalidInput)
	}

	if input.MediaURL == nil || strings.TrimSpace(*input.MediaURL) == "" {
		return out, fmt.Errorf("%w: media_url is required for %s messages", ErrInvalidInput, out.MessageType)
	}
	mediaURL := strings.TrimSpace(*input.MediaURL)
	if !isMediaKey(mediaURL) && !strings.HasPrefix(mediaURL, "https://") {
		return out, fmt.Errorf("%w: media_url must be an uploaded object key or https URL", ErrInvalidInput)
	}
	if isMediaKey(mediaURL) && !strings.HasPrefix(mediaURL, mediaKeyFolder(input.ConversationID)) {
		return out, fmt.Errorf("%w: media belongs to another conversation", ErrInvalidInput)
	}
	out.MediaURL = &mediaURL

	if out.MessageType == models.MessageTypeVoice && input.MediaDuration != nil {
		duration := *input.MediaDuration
		if duration <= 0 || duration > maxVoiceDuration {
			return out, fmt.Errorf("%w: media_duration must be between 1 and %d seconds", ErrInvalidInput, maxVoiceDuration)
		}
		out.MediaDuration = &duration
	}
	return out, nil
}

func messagePreview(messageType, content string) string {
	switch messageType {
	case models.MessageTypeImage:
		return imagePreviewLabel
	case models.MessageTypeVoice:
		return voicePreviewLabel
	}
	if utf8.RuneCountInString(content) <= maxPreviewRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:maxPreviewRunes-1]) + "…"
}

func mediaKeyFolder(conversationID int64) string {
	return fmt.Sprintf("%s%d/", mediaKeyPrefix, conversationID)
}

func isMediaKey(value string) bool {
	return strings.HasPrefix(value, mediaKeyPrefix)
}

func mediaExtension(contentType string) string {
	extensions, err := mime.ExtensionsByType(contentType)
	if err != nil || len(extensions) == 0 {
		return ""
	}
	return extensions[0]
}

func normalizePage(page, limit, defaultLimit, maxLimit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

func FormatChatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}

package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/saeid-a/CoachCareBack/internal/models"
	"go.uber.org/zap"
)

type stubStorage struct {
	uploadKey   string
	uploadType  string
	deletedKeys []string
	deleteErr   error
}

func (s *stubStorage) PresignUpload(_ context.Context, objectKey, contentType string) (string, error) {
	s.uploadKey = objectKey
	s.uploadType = contentType
	return "https://bucket.example.com/" + objectKey + "?upload", nil
}

func (s *stubStorage) PresignDownload(_ context.Context, objectKey string) (string, error) {
	return "https://bucket.example.com/" + objectKey + "?download", nil
}

func (s *stubStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.deletedKeys = append(s.deletedKeys, objectKey)
	return s.deleteErr
}

type chatFixture struct {
	*accessFixture
	service      *ChatService
	storage      *stubStorage
	conversation *models.Conversation
}

func newChatFixture() *chatFixture {
	f := &chatFixture{accessFixture: newAccessFixture(), storage: &stubStorage{}}
	f.service = NewChatService(f.store, f.access, f.storage, zap.NewNop())
	f.service.now = func() time.Time { return calendarNow }
	f.conversation = f.store.addConversation(f.client.ID, f.coach.ID, models.ConversationActive)
	return f
}

func (f *chatFixture) send(t *testing.T, actor *models.User, content string) *ChatDelivery {
	t.Helper()
	delivery, err := f.service.SendMessage(context.Background(), actor.ID, SendMessageInput{
		ConversationID: f.conversation.ID,
		Content:        content,
	})
	if err != nil {
		t.Fatalf("send %q: %v", content, err)
	}
	return delivery
}

func TestSendMessageFromClientUpdatesConversation(t *testing.T) {
	f := newChatFixture()

	delivery := f.send(t, f.client, "  hello coach  ")
	if delivery.RecipientID != f.coach.ID {
		t.Fatalf("expected recipient %d, got %d", f.coach.ID, delivery.RecipientID)
	}
	if delivery.Message.Content != "hello coach" || delivery.Message.MessageType != models.MessageTypeText {
		t.Fatalf("unexpected message %+v", delivery.Message)
	}

	conversation := f.store.conversation(f.conversation.ID)
	if conversation.UnreadByCoach != 1 || conversation.UnreadByClient != 0 {
		t.Fatalf("expected coach unread 1, got coach=%d client=%d", conversation.UnreadByCoach, conversation.UnreadByClient)
	}
	if conversation.LastMessagePreview == nil || *conversation.LastMessagePreview != "hello coach" {
		t.Fatalf("unexpected preview %v", conversation.LastMessagePreview)
	}
	if conversation.LastMessageAt == nil || !conversation.LastMessageAt.Equal(delivery.Message.CreatedAt) {
		t.Fatalf("expected last_message_at %s, got %v", delivery.Message.CreatedAt, conversation.LastMessageAt)
	}

	f.send(t, f.client, "second")
	f.send(t, f.coach, "reply")
	conversation = f.store.conversation(f.conversation.ID)
	if conversation.UnreadByCoach != 2 || conversation.UnreadByClient != 1 {
		t.Fatalf("expected coach=2 client=1, got coach=%d client=%d", conversation.UnreadByCoach, conversation.UnreadByClient)
	}
}

func TestSendMessageAdminIsReadOnly(t *testing.T) {
	f := newChatFixture()

	_, err := f.service.SendMessage(context.Background(), f.admin.ID, SendMessageInput{
		ConversationID: f.conversation.ID,
		Content:        "hi",
	})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestSendMessageRequiresActiveSubscription(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	for _, status := range []string{models.SubscriptionExpired, models.SubscriptionNone} {
		if err := f.store.Repos().Users.SetSubscriptionStatus(ctx, f.client.ID, status); err != nil {
			t.Fatalf("set status: %v", err)
		}
		_, err := f.service.SendMessage(ctx, f.client.ID, SendMessageInput{ConversationID: f.conversation.ID, Content: "hi"})
		if !errors.Is(err, ErrSubscriptionInactive) {
			t.Fatalf("%s: expected ErrSubscriptionInactive, got %v", status, err)
		}
	}

	if err := f.store.Repos().Users.SetSubscriptionStatus(ctx, f.client.ID, models.SubscriptionTrial); err != nil {
		t.Fatalf("set status: %v", err)
	}
	f.send(t, f.client, "trial works")

	// Coaches can still reach a lapsed client.
	if err := f.store.Repos().Users.SetSubscriptionStatus(ctx, f.client.ID, models.SubscriptionExpired); err != nil {
		t.Fatalf("set status: %v", err)
	}
	f.send(t, f.coach, "please renew")
}

func TestSendMessageClientOnlyToCurrentDoctor(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	foreign := f.store.addConversation(f.otherUser.ID, f.otherCoach.ID, models.ConversationActive)
	stale := f.store.addConversation(f.client.ID, f.otherCoach.ID, models.ConversationArchived)

	for _, conversationID := range []int64{foreign.ID, stale.ID, 424242} {
		_, err := f.service.SendMessage(ctx, f.client.ID, SendMessageInput{ConversationID: conversationID, Content: "hi"})
		if !errors.Is(err, ErrAccessDenied) {
			t.Fatalf("conversation %d: expected ErrAccessDenied, got %v", conversationID, err)
		}
	}
}

func TestSendMessageCoachLosesAccessAfterReassignment(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	f.send(t, f.coach, "welcome")

	if err := f.store.Repos().Users.SetAssignedChatDoctor(ctx, f.client.ID, f.otherCoach.ID); err != nil {
		t.Fatalf("reassign: %v", err)
	}

	_, err := f.service.SendMessage(ctx, f.coach.ID, SendMessageInput{ConversationID: f.conversation.ID, Content: "still here?"})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	_, err = f.service.SendMessage(ctx, f.otherCoach.ID, SendMessageInput{ConversationID: f.conversation.ID, Content: "hijack"})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("new doctor on old conversation: expected ErrAccessDenied, got %v", err)
	}
}

func TestSendMessageValidatesMedia(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	own := mediaKeyFolder(f.conversation.ID) + "photo.jpg"
	foreign := mediaKeyFolder(f.conversation.ID+100) + "photo.jpg"

	cases := []SendMessageInput{
		{ConversationID: f.conversation.ID, Content: "  "},
		{ConversationID: f.conversation.ID, MessageType: "video", MediaURL: &own},
		{ConversationID: f.conversation.ID, MessageType: models.MessageTypeImage},
		{ConversationID: f.conversation.ID, MessageType: models.MessageTypeImage, MediaURL: &foreign},
		{ConversationID: f.conversation.ID, MessageType: models.MessageTypeImage, MediaURL: ptr("http://insecure.example.com/a.jpg")},
		{ConversationID: f.conversation.ID, MessageType: models.MessageTypeVoice, MediaURL: &own, MediaDuration: ptr(0)},
		{ConversationID: f.conversation.ID, Content: strings.Repeat("x", maxMessageRunes+1)},
	}
	for i, input := range cases {
		if _, err := f.service.SendMessage(ctx, f.client.ID, input); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}

	delivery, err := f.service.SendMessage(ctx, f.client.ID, SendMessageInput{
		ConversationID: f.conversation.ID,
		MessageType:    models.MessageTypeImage,
		MediaURL:       &own,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delivery.Message.MediaURL == nil || !strings.HasSuffix(*delivery.Message.MediaURL, "?download") {
		t.Fatalf("expected presigned download url, got %v", delivery.Message.MediaURL)
	}
	if stored := f.store.message(delivery.Message.ID); stored.MediaURL == nil || *stored.MediaURL != own {
		t.Fatalf("expected object key to be stored, got %v", stored.MediaURL)
	}
	if preview := f.store.conversation(f.conversation.ID).LastMessagePreview; preview == nil || *preview != imagePreviewLabel {
		t.Fatalf("expected image preview label, got %v", preview)
	}
}

func TestEditMessageSenderOnly(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	delivery := f.send(t, f.client, "typo")

	if _, err := f.service.EditMessage(ctx, f.coach.ID, delivery.Message.ID, "fixed"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if _, err := f.service.EditMessage(ctx, f.admin.ID, delivery.Message.ID, "fixed"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("admin: expected ErrAccessDenied, got %v", err)
	}
	if _, err := f.service.EditMessage(ctx, f.client.ID, delivery.Message.ID, " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.service.EditMessage(ctx, f.client.ID, 9999, "fixed"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	edited, err := f.service.EditMessage(ctx, f.client.ID, delivery.Message.ID, "fixed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if edited.Message.Content != "fixed" || !edited.Message.IsEdited || edited.Message.EditedAt == nil {
		t.Fatalf("unexpected edit result %+v", edited.Message)
	}
	if edited.RecipientID != f.coach.ID {
		t.Fatalf("expected recipient %d, got %d", f.coach.ID, edited.RecipientID)
	}
}

func TestDeleteMessageIsSoftAndIdempotent(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	key := mediaKeyFolder(f.conversation.ID) + "voice.ogg"
	delivery, err := f.service.SendMessage(ctx, f.client.ID, SendMessageInput{
		ConversationID: f.conversation.ID,
		MessageType:    models.MessageTypeVoice,
		MediaURL:       &key,
		MediaDuration:  ptr(42),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := f.service.DeleteMessage(ctx, f.coach.ID, delivery.Message.ID, ""); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}

	first, err := f.service.DeleteMessage(ctx, f.client.ID, delivery.Message.ID, "Nachricht gelöscht")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.AlreadyDeleted || first.Delivery == nil {
		t.Fatalf("expected fresh delete, got %+v", first)
	}
	stored := f.store.message(delivery.Message.ID)
	if !stored.IsDeleted || stored.DeletedAt == nil || stored.Content != "Nachricht gelöscht" {
		t.Fatalf("expected soft delete with placeholder, got %+v", stored)
	}
	if stored.MediaURL != nil || stored.MediaDuration != nil {
		t.Fatal("expected media to be cleared")
	}
	if len(f.storage.deletedKeys) != 1 || f.storage.deletedKeys[0] != key {
		t.Fatalf("expected media object cleanup, got %v", f.storage.deletedKeys)
	}
	deletedAt := *stored.DeletedAt

	second, err := f.service.DeleteMessage(ctx, f.client.ID, delivery.Message.ID, "")
	if err != nil {
		t.Fatalf("second delete: unexpected error: %v", err)
	}
	if !second.AlreadyDeleted {
		t.Fatal("expected AlreadyDeleted on second delete")
	}
	if again := f.store.message(delivery.Message.ID); !again.DeletedAt.Equal(deletedAt) {
		t.Fatalf("deleted_at changed from %s to %s", deletedAt, again.DeletedAt)
	}

	if _, err := f.service.EditMessage(ctx, f.client.ID, delivery.Message.ID, "revive"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("edit after delete: expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestDeleteMessageDefaultsPlaceholderAndToleratesStorageErrors(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	f.storage.deleteErr = errors.New("bucket down")
	key := mediaKeyFolder(f.conversation.ID) + "scan.jpg"
	delivery, err := f.service.SendMessage(ctx, f.coach.ID, SendMessageInput{
		ConversationID: f.conversation.ID,
		MessageType:    models.MessageTypeImage,
		MediaURL:       &key,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	// Storage cleanup failures do not fail the delete.
	if _, err := f.service.DeleteMessage(ctx, f.coach.ID, delivery.Message.ID, " "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.store.message(delivery.Message.ID).Content; got != DefaultDeletedPlaceholder {
		t.Fatalf("expected default placeholder, got %q", got)
	}
}

func TestListMessagesMarksCounterpartMessagesRead(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	f.send(t, f.client, "one")
	f.send(t, f.client, "two")
	own := f.send(t, f.coach, "three")

	// Admin reads without side effects.
	if _, _, err := f.service.ListMessages(ctx, f.admin.ID, f.conversation.ID, 1, 20); err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if got := f.store.conversation(f.conversation.ID).UnreadByCoach; got != 2 {
		t.Fatalf("admin read changed unread count to %d", got)
	}

	messages, total, err := f.service.ListMessages(ctx, f.coach.ID, f.conversation.ID, 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(messages) != 2 {
		t.Fatalf("expected 2 of 3 messages, got %d of %d", len(messages), total)
	}
	if messages[0].ID != own.Message.ID {
		t.Fatal("expected newest message first")
	}
	conversation := f.store.conversation(f.conversation.ID)
	if conversation.UnreadByCoach != 0 || conversation.UnreadByClient != 1 {
		t.Fatalf("expected coach unread reset only, got coach=%d client=%d", conversation.UnreadByCoach, conversation.UnreadByClient)
	}
	if f.store.message(own.Message.ID).IsRead {
		t.Fatal("coach's own message should stay unread")
	}

	if _, _, err := f.service.ListMessages(ctx, f.otherCoach.ID, f.conversation.ID, 1, 20); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestGetMyConversationCreatesOnce(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	client := f.store.addUser(models.User{
		Email:                "fresh@example.com",
		Role:                 models.RoleClient,
		AssignedChatDoctorID: ptr(f.otherCoach.ID),
	})

	first, err := f.service.GetMyConversation(ctx, client.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.service.GetMyConversation(ctx, client.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID || first.CoachID != f.otherCoach.ID {
		t.Fatalf("expected the same conversation with the doctor, got %d and %d", first.ID, second.ID)
	}

	if _, err := f.service.GetMyConversation(ctx, f.otherUser.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unassigned client: expected ErrNotFound, got %v", err)
	}
	if _, err := f.service.GetMyConversation(ctx, f.coach.ID); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("coach: expected ErrAccessDenied, got %v", err)
	}
}

func TestListConversationsByRole(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	f.store.addConversation(f.otherUser.ID, f.otherCoach.ID, models.ConversationActive)
	f.send(t, f.client, "ping")

	coachView, err := f.service.ListConversations(ctx, f.coach.ID, ConversationListInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(coachView) != 1 || coachView[0].UnreadCount != 1 {
		t.Fatalf("expected one conversation with 1 unread, got %+v", coachView)
	}
	if coachView[0].Counterpart == nil || coachView[0].Counterpart.ID != f.client.ID {
		t.Fatal("expected the client as counterpart")
	}

	adminView, err := f.service.ListConversations(ctx, f.admin.ID, ConversationListInput{Status: models.ConversationActive})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(adminView) != 2 {
		t.Fatalf("expected admin to see 2 conversations, got %d", len(adminView))
	}

	if _, err := f.service.ListConversations(ctx, f.admin.ID, ConversationListInput{Status: "deleted"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSetConversationFlags(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	conversation, err := f.service.SetConversationFlags(ctx, f.coach.ID, f.conversation.ID, ConversationFlagsInput{IsPinned: ptr(true)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !conversation.IsPinned || conversation.IsPriority {
		t.Fatalf("unexpected flags %+v", conversation)
	}
	if _, err := f.service.SetConversationFlags(ctx, f.client.ID, f.conversation.ID, ConversationFlagsInput{IsPinned: ptr(true)}); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("client: expected ErrAccessDenied, got %v", err)
	}
	if _, err := f.service.SetConversationFlags(ctx, f.coach.ID, f.conversation.ID, ConversationFlagsInput{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty: expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateMediaUpload(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	upload, err := f.service.CreateMediaUpload(ctx, f.client.ID, f.conversation.ID, models.MessageTypeImage, "image/png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(upload.ObjectKey, mediaKeyFolder(f.conversation.ID)) || !strings.HasSuffix(upload.ObjectKey, ".png") {
		t.Fatalf("unexpected object key %q", upload.ObjectKey)
	}
	if upload.Method != "PUT" || f.storage.uploadType != "image/png" {
		t.Fatalf("unexpected upload %+v", upload)
	}
	if !upload.ExpiresAt.Equal(calendarNow.Add(DefaultPresignedURLExpiry)) {
		t.Fatalf("unexpected expiry %s", upload.ExpiresAt)
	}

	if _, err := f.service.CreateMediaUpload(ctx, f.client.ID, f.conversation.ID, models.MessageTypeVoice, "image/png"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("mismatched type: expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.service.CreateMediaUpload(ctx, f.otherCoach.ID, f.conversation.ID, models.MessageTypeImage, "image/png"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("outsider: expected ErrAccessDenied, got %v", err)
	}

	noStorage := NewChatService(f.store, f.access, nil, zap.NewNop())
	if _, err := noStorage.CreateMediaUpload(ctx, f.client.ID, f.conversation.ID, models.MessageTypeImage, "image/png"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestMessagePreview(t *testing.T) {
	long := strings.Repeat("é", maxPreviewRunes+10)
	preview := messagePreview(models.MessageTypeText, long)
	if got := len([]rune(preview)); got != maxPreviewRunes {
		t.Fatalf("expected %d runes, got %d", maxPreviewRunes, got)
	}
	if messagePreview(models.MessageTypeVoice, "") != voicePreviewLabel {
		t.Fatal("expected voice label")
	}
	if messagePreview(models.MessageTypeText, "short") != "short" {
		t.Fatal("expected short text unchanged")
	}
}

func TestDeletedPlaceholder(t *testing.T) {
	cases := map[string]string{
		"":                      DefaultDeletedPlaceholder,
		"de-DE,de;q=0.9":        "Diese Nachricht wurde gelöscht",
		"fr":                    "Ce message a été supprimé",
		"ja":                    DefaultDeletedPlaceholder,
		"es-MX,en;q=0.5":        "Este mensaje fue eliminado",
		"not a language header": DefaultDeletedPlaceholder,
	}
	for header, want := range cases {
		if got := DeletedPlaceholder(header); got != want {
			t.Fatalf("DeletedPlaceholder(%q) = %q, want %q", header, got, want)
		}
	}
}

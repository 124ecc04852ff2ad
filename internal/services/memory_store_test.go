package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/CoachCareBack/internal/models"
	"github.com/saeid-a/CoachCareBack/internal/repository"
)

// memoryStore mirrors the Postgres repositories closely enough for service
// tests. Transactions are serialized, which stands in for the coach advisory
// lock; there is no rollback.
type memoryStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	clock  time.Time
	nextID int64

	users         map[int64]*models.User
	events        map[int64]*models.CalendarEvent
	conversations map[int64]*models.Conversation
	messages      map[int64]*models.ChatMessage
	lockedCoaches []int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		clock:         time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC),
		users:         make(map[int64]*models.User),
		events:        make(map[int64]*models.CalendarEvent),
		conversations: make(map[int64]*models.Conversation),
		messages:      make(map[int64]*models.ChatMessage),
	}
}

func (s *memoryStore) Repos() Repos {
	return Repos{
		Users:         memoryUsers{s},
		Calendar:      memoryCalendar{s},
		Conversations: memoryConversations{s},
		Messages:      memoryMessages{s},
	}
}

func (s *memoryStore) WithinTx(_ context.Context, fn func(Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s.Repos())
}

// tick must be called with mu held.
func (s *memoryStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memoryStore) addUser(user models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = s.id()
	if user.SubscriptionStatus == "" {
		user.SubscriptionStatus = models.SubscriptionNone
	}
	user.CreatedAt = s.tick()
	user.UpdatedAt = user.CreatedAt
	stored := user
	s.users[user.ID] = &stored
	return &user
}

func (s *memoryStore) addConversation(clientID, coachID int64, status string) *models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	conversation := &models.Conversation{
		ID:        s.id(),
		ClientID:  clientID,
		CoachID:   coachID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == models.ConversationArchived {
		conversation.ArchivedAt = &now
	}
	s.conversations[conversation.ID] = conversation
	copied := *conversation
	return &copied
}

func (s *memoryStore) user(id int64) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[id]
}

func (s *memoryStore) conversation(id int64) models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.conversations[id]
}

func (s *memoryStore) message(id int64) models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.messages[id]
}

type memoryUsers struct{ s *memoryStore }

func (r memoryUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (r memoryUsers) GetByIDForUpdate(ctx context.Context, id int64) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r memoryUsers) GetSummaries(_ context.Context, ids []int64) (map[int64]models.UserSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[int64]models.UserSummary, len(ids))
	for _, id := range ids {
		if user, ok := r.s.users[id]; ok {
			out[id] = summaryOf(user)
		}
	}
	return out, nil
}

func (r memoryUsers) ListClientsForCoach(_ context.Context, coachID int64) ([]models.UserSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.UserSummary, 0)
	for _, user := range r.s.users {
		if user.Role == models.RoleClient && (user.IsAssignedCoach(coachID) || user.IsAssignedChatDoctor(coachID)) {
			out = append(out, summaryOf(user))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memoryUsers) SetAssignedCoach(_ context.Context, clientID, coachID int64) error {
	return r.update(clientID, func(u *models.User) { u.AssignedCoachID = &coachID })
}

func (r memoryUsers) SetAssignedChatDoctor(_ context.Context, clientID, doctorID int64) error {
	return r.update(clientID, func(u *models.User) { u.AssignedChatDoctorID = &doctorID })
}

func (r memoryUsers) SetRole(_ context.Context, userID int64, role string) error {
	return r.update(userID, func(u *models.User) { u.Role = role })
}

func (r memoryUsers) SetSubscriptionStatus(_ context.Context, userID int64, status string) error {
	return r.update(userID, func(u *models.User) { u.SubscriptionStatus = status })
}

func (r memoryUsers) update(id int64, apply func(*models.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	apply(user)
	user.UpdatedAt = r.s.tick()
	return nil
}

func summaryOf(user *models.User) models.UserSummary {
	return models.UserSummary{
		ID:        user.ID,
		FullName:  user.FullName,
		AvatarURL: user.AvatarURL,
		Phone:     user.Phone,
	}
}

type memoryCalendar struct{ s *memoryStore }

func (r memoryCalendar) LockCoach(_ context.Context, coachID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.lockedCoaches = append(r.s.lockedCoaches, coachID)
	return nil
}

func (r memoryCalendar) Create(_ context.Context, input repository.CreateEventInput) (*models.CalendarEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.tick()
	event := &models.CalendarEvent{
		ID:        r.s.id(),
		CoachID:   input.CoachID,
		ClientID:  input.ClientID,
		EventType: input.EventType,
		Date:      input.Date.Format(DateLayout),
		StartTime: input.StartTime,
		EndTime:   input.EndTime,
		StartAt:   input.StartAt,
		EndAt:     input.EndAt,
		Reason:    input.Reason,
		Notes:     input.Notes,
		Status:    models.EventStatusScheduled,
		CreatedBy: input.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.s.events[event.ID] = event
	copied := *event
	return &copied, nil
}

func (r memoryCalendar) GetByID(_ context.Context, eventID int64) (*models.CalendarEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	event, ok := r.s.events[eventID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *event
	return &copied, nil
}

func (r memoryCalendar) GetByIDForUpdate(ctx context.Context, eventID int64) (*models.CalendarEvent, error) {
	return r.GetByID(ctx, eventID)
}

func (r memoryCalendar) Update(_ context.Context, eventID int64, input repository.UpdateEventInput) (*models.CalendarEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	event, ok := r.s.events[eventID]
	if !ok || event.Status != models.EventStatusScheduled {
		return nil, pgx.ErrNoRows
	}
	event.Date = input.Date.Format(DateLayout)
	event.StartTime = input.StartTime
	event.EndTime = input.EndTime
	event.StartAt = input.StartAt
	event.EndAt = input.EndAt
	event.Reason = input.Reason
	event.Notes = input.Notes
	event.UpdatedAt = r.s.tick()
	copied := *event
	return &copied, nil
}

func (r memoryCalendar) Cancel(_ context.Context, eventID int64) (*models.CalendarEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	event, ok := r.s.events[eventID]
	if !ok || event.Status != models.EventStatusScheduled {
		return nil, pgx.ErrNoRows
	}
	now := r.s.tick()
	event.Status = models.EventStatusCancelled
	event.CancelledAt = &now
	event.UpdatedAt = now
	copied := *event
	return &copied, nil
}

func (r memoryCalendar) List(_ context.Context, filter repository.EventListFilter) ([]models.CalendarEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	from := filter.FromDate.Format(DateLayout)
	to := filter.ToDate.Format(DateLayout)

	out := make([]models.CalendarEvent, 0)
	for _, event := range r.s.events {
		if event.Date < from || event.Date > to {
			continue
		}
		if filter.CoachID != 0 && event.CoachID != filter.CoachID {
			continue
		}
		if filter.ClientID != 0 && event.ClientID != filter.ClientID {
			continue
		}
		if !filter.IncludeCancelled && event.Status == models.EventStatusCancelled {
			continue
		}
		out = append(out, *event)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartAt.Before(out[j].StartAt)
	})
	return out, nil
}

type memoryConversations struct{ s *memoryStore }

func (r memoryConversations) Create(_ context.Context, clientID, coachID int64) (*models.Conversation, error) {
	r.s.mu.Lock()
	for _, c := range r.s.conversations {
		if c.ClientID == clientID && c.CoachID == coachID && c.Status == models.ConversationActive {
			r.s.mu.Unlock()
			return nil, repository.ErrDuplicate
		}
	}
	r.s.mu.Unlock()
	return r.s.addConversation(clientID, coachID, models.ConversationActive), nil
}

func (r memoryConversations) GetByID(_ context.Context, conversationID int64) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[conversationID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (r memoryConversations) GetActiveForPair(_ context.Context, clientID, coachID int64) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.conversations {
		if c.ClientID == clientID && c.CoachID == coachID && c.Status == models.ConversationActive {
			copied := *c
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r memoryConversations) GetLatestForPair(_ context.Context, clientID, coachID int64) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *models.Conversation
	for _, c := range r.s.conversations {
		if c.ClientID != clientID || c.CoachID != coachID {
			continue
		}
		switch {
		case best == nil:
			best = c
		case c.Status == models.ConversationActive && best.Status != models.ConversationActive:
			best = c
		case c.Status == best.Status && c.UpdatedAt.After(best.UpdatedAt):
			best = c
		}
	}
	if best == nil {
		return nil, pgx.ErrNoRows
	}
	copied := *best
	return &copied, nil
}

func (r memoryConversations) ArchiveActiveForClient(_ context.Context, clientID, keepCoachID int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]int64, 0)
	for _, c := range r.s.conversations {
		if c.ClientID == clientID && c.CoachID != keepCoachID && c.Status == models.ConversationActive {
			now := r.s.tick()
			c.Status = models.ConversationArchived
			c.ArchivedAt = &now
			c.UpdatedAt = now
			ids = append(ids, c.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r memoryConversations) Reactivate(_ context.Context, conversationID int64) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[conversationID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c.Status = models.ConversationActive
	c.ArchivedAt = nil
	c.UpdatedAt = r.s.tick()
	copied := *c
	return &copied, nil
}

func (r memoryConversations) RecordMessage(_ context.Context, conversationID int64, recipientRole, preview string, sentAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[conversationID]
	if !ok {
		return pgx.ErrNoRows
	}
	if recipientRole == models.RoleClient {
		c.UnreadByClient++
	} else {
		c.UnreadByCoach++
	}
	c.LastMessageAt = &sentAt
	c.LastMessagePreview = &preview
	c.UpdatedAt = r.s.tick()
	return nil
}

func (r memoryConversations) ResetUnread(_ context.Context, conversationID int64, readerRole string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[conversationID]
	if !ok {
		return nil
	}
	if readerRole == models.RoleClient {
		c.UnreadByClient = 0
	} else {
		c.UnreadByCoach = 0
	}
	return nil
}

func (r memoryConversations) SetFlags(_ context.Context, conversationID int64, pinned, priority *bool) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[conversationID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if pinned != nil {
		c.IsPinned = *pinned
	}
	if priority != nil {
		c.IsPriority = *priority
	}
	copied := *c
	return &copied, nil
}

func (r memoryConversations) List(_ context.Context, filter repository.ConversationListFilter) ([]models.ConversationSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.ConversationSummary, 0)
	for _, c := range r.s.conversations {
		if filter.ClientID != 0 && c.ClientID != filter.ClientID {
			continue
		}
		if filter.CoachID != 0 && c.CoachID != filter.CoachID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		counterpartID := c.ClientID
		unread := c.UnreadByCoach
		if c.ClientID == filter.ViewerID {
			counterpartID = c.CoachID
			unread = c.UnreadByClient
		}
		summary := models.ConversationSummary{Conversation: *c, UnreadCount: unread}
		if user, ok := r.s.users[counterpartID]; ok {
			counterpart := summaryOf(user)
			summary.Counterpart = &counterpart
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPinned != out[j].IsPinned {
			return out[i].IsPinned
		}
		return out[i].ID > out[j].ID
	})
	if filter.Offset >= len(out) {
		return []models.ConversationSummary{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type memoryMessages struct{ s *memoryStore }

func (r memoryMessages) Create(_ context.Context, input repository.CreateMessageInput) (*models.ChatMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	message := &models.ChatMessage{
		ID:             r.s.id(),
		ConversationID: input.ConversationID,
		SenderID:       input.SenderID,
		Content:        input.Content,
		MessageType:    input.MessageType,
		MediaURL:       input.MediaURL,
		MediaDuration:  input.MediaDuration,
		CreatedAt:      r.s.tick(),
	}
	r.s.messages[message.ID] = message
	copied := *message
	return &copied, nil
}

func (r memoryMessages) GetByID(_ context.Context, messageID int64) (*models.ChatMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	message, ok := r.s.messages[messageID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *message
	return &copied, nil
}

func (r memoryMessages) UpdateContent(_ context.Context, messageID int64, content string) (*models.ChatMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	message, ok := r.s.messages[messageID]
	if !ok || message.IsDeleted {
		return nil, pgx.ErrNoRows
	}
	now := r.s.tick()
	message.Content = content
	message.IsEdited = true
	message.EditedAt = &now
	copied := *message
	return &copied, nil
}

func (r memoryMessages) SoftDelete(_ context.Context, messageID int64, placeholder string) (*models.ChatMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	message, ok := r.s.messages[messageID]
	if !ok || message.IsDeleted {
		return nil, pgx.ErrNoRows
	}
	now := r.s.tick()
	message.Content = placeholder
	message.MediaURL = nil
	message.MediaDuration = nil
	message.IsDeleted = true
	message.DeletedAt = &now
	copied := *message
	return &copied, nil
}

func (r memoryMessages) ListByConversation(_ context.Context, conversationID int64, limit, offset int) ([]models.ChatMessage, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := make([]models.ChatMessage, 0)
	for _, message := range r.s.messages {
		if message.ConversationID == conversationID {
			all = append(all, *message)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset >= total {
		return []models.ChatMessage{}, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (r memoryMessages) MarkConversationRead(_ context.Context, conversationID, readerID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, message := range r.s.messages {
		if message.ConversationID == conversationID && message.SenderID != readerID {
			message.IsRead = true
		}
	}
	return nil
}

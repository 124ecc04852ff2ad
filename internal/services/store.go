package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/saeid-a/CoachCareBack/internal/models"
	"github.com/saeid-a/CoachCareBack/internal/repository"
)

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*models.User, error)
	GetSummaries(ctx context.Context, ids []int64) (map[int64]models.UserSummary, error)
	ListClientsForCoach(ctx context.Context, coachID int64) ([]models.UserSummary, error)
	SetAssignedCoach(ctx context.Context, clientID, coachID int64) error
	SetAssignedChatDoctor(ctx context.Context, clientID, doctorID int64) error
	SetRole(ctx context.Context, userID int64, role string) error
	SetSubscriptionStatus(ctx context.Context, userID int64, status string) error
}

type CalendarStore interface {
	LockCoach(ctx context.Context, coachID int64) error
	Create(ctx context.Context, input repository.CreateEventInput) (*models.CalendarEvent, error)
	GetByID(ctx context.Context, eventID int64) (*models.CalendarEvent, error)
	GetByIDForUpdate(ctx context.Context, eventID int64) (*models.CalendarEvent, error)
	Update(ctx context.Context, eventID int64, input repository.UpdateEventInput) (*models.CalendarEvent, error)
	Cancel(ctx context.Context, eventID int64) (*models.CalendarEvent, error)
	List(ctx context.Context, filter repository.EventListFilter) ([]models.CalendarEvent, error)
}

type ConversationStore interface {
	Create(ctx context.Context, clientID, coachID int64) (*models.Conversation, error)
	GetByID(ctx context.Context, conversationID int64) (*models.Conversation, error)
	GetActiveForPair(ctx context.Context, clientID, coachID int64) (*models.Conversation, error)
	GetLatestForPair(ctx context.Context, clientID, coachID int64) (*models.Conversation, error)
	ArchiveActiveForClient(ctx context.Context, clientID, keepCoachID int64) ([]int64, error)
	Reactivate(ctx context.Context, conversationID int64) (*models.Conversation, error)
	RecordMessage(ctx context.Context, conversationID int64, recipientRole, preview string, sentAt time.Time) error
	ResetUnread(ctx context.Context, conversationID int64, readerRole string) error
	SetFlags(ctx context.Context, conversationID int64, pinned, priority *bool) (*models.Conversation, error)
	List(ctx context.Context, filter repository.ConversationListFilter) ([]models.ConversationSummary, error)
}

type MessageStore interface {
	Create(ctx context.Context, input repository.CreateMessageInput) (*models.ChatMessage, error)
	GetByID(ctx context.Context, messageID int64) (*models.ChatMessage, error)
	UpdateContent(ctx context.Context, messageID int64, content string) (*models.ChatMessage, error)
	SoftDelete(ctx context.Context, messageID int64, placeholder string) (*models.ChatMessage, error)
	ListByConversation(ctx context.Context, conversationID int64, limit, offset int) ([]models.ChatMessage, int, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID int64) error
}

// Repos bundles the stores bound to one connection or transaction.
type Repos struct {
	Users         UserStore
	Calendar      CalendarStore
	Conversations ConversationStore
	Messages      MessageStore
}

type Store interface {
	Repos() Repos
	// WithinTx runs fn against stores bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(Repos) error) error
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func reposFor(db repository.DBTX) Repos {
	return Repos{
		Users:         repository.NewUserRepository(db),
		Calendar:      repository.NewCalendarRepository(db),
		Conversations: repository.NewConversationRepository(db),
		Messages:      repository.NewMessageRepository(db),
	}
}

func (s *PostgresStore) Repos() Repos {
	return reposFor(s.db)
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Repos) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(reposFor(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

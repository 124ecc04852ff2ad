package services

import (
	"context"
	"fmt"

	"github.com/saeid-a/CoachCareBack/internal/models"
	"github.com/saeid-a/CoachCareBack/internal/repository"
)

// AccessService resolves callers and gates access to clients and
// conversations. It never writes.
type AccessService struct {
	store Store
}

func NewAccessService(store Store) *AccessService {
	return &AccessService{store: store}
}

// RequireAuth loads the caller from the database so that role and
// assignment changes apply to tokens issued earlier.
func (a *AccessService) RequireAuth(ctx context.Context, actorID int64) (*models.User, error) {
	if actorID <= 0 {
		return nil, ErrUnauthorized
	}
	user, err := a.store.Repos().Users.GetByID(ctx, actorID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return user, nil
}

func RequireRole(user *models.User, allowed ...string) error {
	if user == nil {
		return ErrUnauthorized
	}
	for _, role := range allowed {
		if user.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %s may not perform this action", ErrAccessDenied, user.Role)
}

// CanAccessClient: admins always, coaches for clients they coach, clients for
// themselves.
func CanAccessClient(actor *models.User, client *models.User) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleCoach:
		return client.IsAssignedCoach(actor.ID)
	case models.RoleClient:
		return actor.ID == client.ID
	}
	return false
}

func CanAccessConversation(actor *models.User, conversation *models.Conversation) bool {
	if actor.Role == models.RoleAdmin {
		return true
	}
	return conversation.HasParticipant(actor.ID)
}

func (a *AccessService) RequireClientAccess(
	ctx context.Context,
	actor *models.User,
	clientID int64,
) (*models.User, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	client, err := a.store.Repos().Users.GetByID(ctx, clientID)
	if err != nil {
		return nil, notFound(err)
	}
	if !CanAccessClient(actor, client) {
		return nil, ErrAccessDenied
	}
	return client, nil
}

func (a *AccessService) RequireConversationAccess(
	ctx context.Context,
	actor *models.User,
	conversationID int64,
) (*models.Conversation, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	conversation, err := a.store.Repos().Conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, notFound(err)
	}
	if !CanAccessConversation(actor, conversation) {
		return nil, ErrAccessDenied
	}
	return conversation, nil
}

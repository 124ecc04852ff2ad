package services

import (
	"context"

	"github.com/saeid-a/CoachCareBack/internal/models"
)

type ClientService struct {
	store  Store
	access *AccessService
}

func NewClientService(store Store, access *AccessService) *ClientService {
	return &ClientService{store: store, access: access}
}

func (s *ClientService) GetClient(ctx context.Context, actorID int64, clientID int64) (*models.User, error) {
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.access.RequireClientAccess(ctx, actor, clientID)
}

// ListMyClients returns the clients a coach works with as diet coach or chat
// doctor.
func (s *ClientService) ListMyClients(ctx context.Context, actorID int64) ([]models.UserSummary, error) {
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := RequireRole(actor, models.RoleCoach); err != nil {
		return nil, err
	}
	return s.store.Repos().Users.ListClientsForCoach(ctx, actor.ID)
}

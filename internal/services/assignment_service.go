package services

import (
	"context"
	"fmt"

	"github.com/saeid-a/CoachCareBack/internal/models"
	"github.com/saeid-a/CoachCareBack/internal/repository"
)

// AssignmentService holds the admin operations that change who a client
// works with and what a user may do.
type AssignmentService struct {
	store  Store
	access *AccessService
}

func NewAssignmentService(store Store, access *AccessService) *AssignmentService {
	return &AssignmentService{store: store, access: access}
}

type ChatAssignment struct {
	ClientID                int64                `json:"client_id"`
	DoctorID                int64                `json:"doctor_id"`
	PreviousDoctorID        *int64               `json:"previous_doctor_id"`
	Changed                 bool                 `json:"changed"`
	Conversation            *models.Conversation `json:"conversation"`
	ArchivedConversationIDs []int64              `json:"archived_conversation_ids"`
}

// AssignChatDoctor moves a client's chat to doctorID. The old doctor's
// conversation is archived, never deleted, and an earlier conversation with
// the new doctor is reactivated instead of creating a duplicate. Assigning
// the current doctor changes nothing.
func (s *AssignmentService) AssignChatDoctor(
	ctx context.Context,
	actorID int64,
	clientID int64,
	doctorID int64,
) (*ChatAssignment, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if clientID <= 0 || doctorID <= 0 {
		return nil, fmt.Errorf("%w: client and doctor ids are required", ErrInvalidInput)
	}

	result := &ChatAssignment{
		ClientID:                clientID,
		DoctorID:                doctorID,
		ArchivedConversationIDs: []int64{},
	}
	err := s.store.WithinTx(ctx, func(repos Repos) error {
		client, err := repos.Users.GetByIDForUpdate(ctx, clientID)
		if err != nil {
			return notFound(err)
		}
		if client.Role != models.RoleClient {
			return fmt.Errorf("%w: user %d is not a client", ErrInvalidInput, clientID)
		}
		doctor, err := repos.Users.GetByID(ctx, doctorID)
		if err != nil {
			return notFound(err)
		}
		if doctor.Role != models.RoleCoach {
			return fmt.Errorf("%w: user %d is not a coach", ErrInvalidInput, doctorID)
		}

		result.PreviousDoctorID = client.AssignedChatDoctorID
		if client.IsAssignedChatDoctor(doctorID) {
			conversation, err := repos.Conversations.GetActiveForPair(ctx, clientID, doctorID)
			if err != nil && !repository.IsNotFound(err) {
				return err
			}
			result.Conversation = conversation
			return nil
		}

		archived, err := repos.Conversations.ArchiveActiveForClient(ctx, clientID, doctorID)
		if err != nil {
			return err
		}
		result.ArchivedConversationIDs = archived

		if err := repos.Users.SetAssignedChatDoctor(ctx, clientID, doctorID); err != nil {
			return err
		}

		conversation, err := repos.Conversations.GetLatestForPair(ctx, clientID, doctorID)
		switch {
		case repository.IsNotFound(err):
			conversation, err = repos.Conversations.Create(ctx, clientID, doctorID)
		case err != nil:
		case conversation.Status == models.ConversationArchived:
			conversation, err = repos.Conversations.Reactivate(ctx, conversation.ID)
		}
		if err != nil {
			return err
		}

		result.Conversation = conversation
		result.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AssignCoach sets the client's diet coach, which is what gates coach access
// to the client's record and calendar.
func (s *AssignmentService) AssignCoach(
	ctx context.Context,
	actorID int64,
	clientID int64,
	coachID int64,
) (*models.User, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	var client *models.User
	err := s.store.WithinTx(ctx, func(repos Repos) error {
		var err error
		client, err = repos.Users.GetByIDForUpdate(ctx, clientID)
		if err != nil {
			return notFound(err)
		}
		if client.Role != models.RoleClient {
			return fmt.Errorf("%w: user %d is not a client", ErrInvalidInput, clientID)
		}
		coach, err := repos.Users.GetByID(ctx, coachID)
		if err != nil {
			return notFound(err)
		}
		if coach.Role != models.RoleCoach {
			return fmt.Errorf("%w: user %d is not a coach", ErrInvalidInput, coachID)
		}
		if err := repos.Users.SetAssignedCoach(ctx, clientID, coachID); err != nil {
			return err
		}
		client.AssignedCoachID = &coachID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (s *AssignmentService) SetUserRole(
	ctx context.Context,
	actorID int64,
	userID int64,
	role string,
) (*models.User, error) {
	actor, err := s.requireAdmin(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !models.IsValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if actor.ID == userID && role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: admins cannot demote themselves", ErrInvalidInput)
	}

	users := s.store.Repos().Users
	if err := users.SetRole(ctx, userID, role); err != nil {
		return nil, notFound(err)
	}
	user, err := users.GetByID(ctx, userID)
	return user, notFound(err)
}

func (s *AssignmentService) SetSubscriptionStatus(
	ctx context.Context,
	actorID int64,
	userID int64,
	status string,
) (*models.User, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if !models.IsValidSubscriptionStatus(status) {
		return nil, fmt.Errorf("%w: unknown subscription status %q", ErrInvalidInput, status)
	}

	users := s.store.Repos().Users
	if err := users.SetSubscriptionStatus(ctx, userID, status); err != nil {
		return nil, notFound(err)
	}
	user, err := users.GetByID(ctx, userID)
	return user, notFound(err)
}

func (s *AssignmentService) requireAdmin(ctx context.Context, actorID int64) (*models.User, error) {
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := RequireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	return actor, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/saeid-a/CoachCareBack/internal/models"
	"github.com/saeid-a/CoachCareBack/internal/observ"
	"github.com/saeid-a/CoachCareBack/internal/repository"
)

const (
	defaultAppointmentLimit = 10
	maxAppointmentLimit     = 50
	maxRangeDays            = 366
)

type CalendarService struct {
	store    Store
	access   *AccessService
	location *time.Location
	now      func() time.Time
}

func NewCalendarService(store Store, access *AccessService, location *time.Location) *CalendarService {
	if location == nil {
		location = time.Local
	}
	return &CalendarService{
		store:    store,
		access:   access,
		location: location,
		now:      time.Now,
	}
}

type CreateCalendarCallInput struct {
	ClientID int64
	// CoachID is honoured for admins only; coaches always book for themselves.
	CoachID   int64
	Date      string
	StartTime string
	EndTime   string
	Reason    string
	Notes     *string
}

// UpdateEventInput holds optional changes; nil fields keep the stored value.
type UpdateEventInput struct {
	Date      *string
	StartTime *string
	EndTime   *string
	Reason    *string
	Notes     *string
}

func (s *CalendarService) CreateCalendarCall(
	ctx context.Context,
	actorID int64,
	input CreateCalendarCallInput,
) (*models.CalendarEventView, error) {
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := RequireRole(actor, models.RoleCoach, models.RoleAdmin); err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidInput)
	}
	if input.ClientID <= 0 {
		return nil, fmt.Errorf("%w: client_id is required", ErrInvalidInput)
	}

	slot, err := ResolveSlot(input.Date, input.StartTime, input.EndTime, s.location)
	if err != nil {
		return nil, err
	}

	client, err := s.access.RequireClientAccess(ctx, actor, input.ClientID)
	if err != nil {
		return nil, err
	}
	if client.Role != models.RoleClient {
		return nil, fmt.Errorf("%w: user %d is not a client", ErrInvalidInput, client.ID)
	}

	coachID, err := s.resolveCoach(ctx, actor, client, input.CoachID)
	if err != nil {
		return nil, err
	}

	var event *models.CalendarEvent
	err = s.store.WithinTx(ctx, func(repos Repos) error {
		if err := repos.Calendar.LockCoach(ctx, coachID); err != nil {
			return err
		}
		if err := ensureNoOverlap(ctx, repos.Calendar, coachID, slot, 0); err != nil {
			return err
		}

		created, err := repos.Calendar.Create(ctx, repository.CreateEventInput{
			CoachID:   coachID,
			ClientID:  client.ID,
			EventType: models.EventTypePhoneCall,
			Date:      slot.Date.DBValue(),
			StartTime: slot.Start.String(),
			EndTime:   slot.End.String(),
			StartAt:   slot.StartAt,
			EndAt:     slot.EndAt,
			Reason:    reason,
			Notes:     trimOptional(input.Notes),
			CreatedBy: actor.ID,
		})
		if err != nil {
			return err
		}
		event = created
		return nil
	})
	if err != nil {
		return nil, bookingError(err)
	}

	observ.CalendarEventsCreated.Inc()
	return s.viewFor(ctx, event)
}

func (s *CalendarService) UpdateEvent(
	ctx context.Context,
	actorID int64,
	eventID int64,
	input UpdateEventInput,
) (*models.CalendarEventView, error) {
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := RequireRole(actor, models.RoleCoach, models.RoleAdmin); err != nil {
		return nil, err
	}

	existing, err := s.store.Repos().Calendar.GetByID(ctx, eventID)
	if err != nil {
		return nil, notFound(err)
	}
	if !canManageEvent(actor, existing) {
		return nil, ErrAccessDenied
	}

	var updated *models.CalendarEvent
	err = s.store.WithinTx(ctx, func(repos Repos) error {
		if err := repos.Calendar.LockCoach(ctx, existing.CoachID); err != nil {
			return err
		}
		current, err := repos.Calendar.GetByIDForUpdate(ctx, eventID)
		if err != nil {
			return notFound(err)
		}
		if current.Status == models.EventStatusCancelled {
			return fmt.Errorf("%w: event is cancelled", ErrInvalidStateTransition)
		}

		date := valueOr(input.Date, current.Date)
		startTime := valueOr(input.StartTime, current.StartTime)
		endTime := valueOr(input.EndTime, current.EndTime)
		slot, err := ResolveSlot(date, startTime, endTime, s.location)
		if err != nil {
			return err
		}

		reason := strings.TrimSpace(valueOr(input.Reason, current.Reason))
		if reason == "" {
			return fmt.Errorf("%w: reason is required", ErrInvalidInput)
		}
		notes := current.Notes
		if input.Notes != nil {
			notes = trimOptional(input.Notes)
		}

		if err := ensureNoOverlap(ctx, repos.Calendar, current.CoachID, slot, current.ID); err != nil {
			return err
		}

		updated, err = repos.Calendar.Update(ctx, current.ID, repository.UpdateEventInput{
			Date:      slot.Date.DBValue(),
			StartTime: slot.Start.String(),
			EndTime:   slot.End.String(),
			StartAt:   slot.StartAt,
			EndAt:     slot.EndAt,
			Reason:    reason,
			Notes:     notes,
		})
		return notFound(err)
	})
	if err != nil {
		return nil, bookingError(err)
	}

	return s.viewFor(ctx, updated)
}

// CancelEvent is idempotent: cancelling a cancelled event returns it as is.
func (s *CalendarService) CancelEvent(
	ctx context.Context,
	actorID int64,
	eventID int64,
) (*models.CalendarEvent, error) {
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := RequireRole(actor, models.RoleCoach, models.RoleAdmin); err != nil {
		return nil, err
	}

	calendar := s.store.Repos().Calendar
	event, err := calendar.GetByID(ctx, eventID)
	if err != nil {
		return nil, notFound(err)
	}
	if !canManageEvent(actor, event) {
		return nil, ErrAccessDenied
	}
	if event.Status == models.EventStatusCancelled {
		return event, nil
	}

	cancelled, err := calendar.Cancel(ctx, eventID)
	if err != nil {
		if repository.IsNotFound(err) {
			// Lost a race with another cancel.
			event, err := calendar.GetByID(ctx, eventID)
			return event, notFound(err)
		}
		return nil, err
	}
	return cancelled, nil
}

func (s *CalendarService) GetEvent(
	ctx context.Context,
	actorID int64,
	eventID int64,
) (*models.CalendarEventView, error) {
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, err
	}
	event, err := s.store.Repos().Calendar.GetByID(ctx, eventID)
	if err != nil {
		return nil, notFound(err)
	}
	if !canViewEvent(actor, event) {
		return nil, ErrAccessDenied
	}
	return s.viewFor(ctx, event)
}

func (s *CalendarService) GetEventsByDate(
	ctx context.Context,
	actorID int64,
	date string,
) ([]models.CalendarEventView, error) {
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, err
	}
	day, err := ParseEventDate(date)
	if err != nil {
		return nil, err
	}
	return s.listEvents(ctx, actor, day, day)
}

func (s *CalendarService) GetEventsByDateRange(
	ctx context.Context,
	actorID int64,
	startDate string,
	endDate string,
) ([]models.CalendarEventView, error) {
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, err
	}
	from, err := ParseEventDate(startDate)
	if err != nil {
		return nil, err
	}
	to, err := ParseEventDate(endDate)
	if err != nil {
		return nil, err
	}

	span := from.DaysUntil(to)
	if span < 0 {
		return nil, fmt.Errorf("%w: end_date %s is before start_date %s", ErrInvalidRange, to, from)
	}
	if span > maxRangeDays {
		return nil, fmt.Errorf("%w: date range may not exceed %d days", ErrInvalidInput, maxRangeDays)
	}
	return s.listEvents(ctx, actor, from, to)
}

// TodaysAppointmentsQuery selects the day (empty means today in the calendar
// zone) and page size. Events that already ended are left out unless
// IncludePast is set, in which case they are reported as completed.
type TodaysAppointmentsQuery struct {
	Date        string
	Limit       int
	IncludePast bool
}

// GetTodaysAppointments returns the day's scheduled events, each with a status
// derived from the current time.
func (s *CalendarService) GetTodaysAppointments(
	ctx context.Context,
	actorID int64,
	query TodaysAppointmentsQuery,
) ([]models.TodaysAppointment, error) {
	actor, err := s.access.RequireAuth(ctx, actorID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	day := DateOf(now, s.location)
	if strings.TrimSpace(query.Date) != "" {
		day, err = ParseEventDate(query.Date)
		if err != nil {
			return nil, err
		}
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultAppointmentLimit
	}
	if limit > maxAppointmentLimit {
		limit = maxAppointmentLimit
	}

	views, err := s.listEvents(ctx, actor, day, day)
	if err != nil {
		return nil, err
	}

	appointments := make([]models.TodaysAppointment, 0, len(views))
	for _, view := range views {
		status := DeriveAppointmentStatus(now, view.StartAt, view.EndAt)
		if !view.EndAt.After(now) {
			if !query.IncludePast {
				continue
			}
			status = models.AppointmentCompleted
		}
		minutes := 0
		if until := view.StartAt.Sub(now); until > 0 {
			minutes = int(math.Ceil(until.Minutes()))
		}
		appointments = append(appointments, models.TodaysAppointment{
			CalendarEventView: view,
			Status:            status,
			MinutesUntilStart: minutes,
		})
	}

	sort.SliceStable(appointments, func(i, j int) bool {
		return appointments[i].StartAt.Before(appointments[j].StartAt)
	})
	if len(appointments) > limit {
		appointments = appointments[:limit]
	}
	return appointments, nil
}

func (s *CalendarService) listEvents(
	ctx context.Context,
	actor *models.User,
	from CalendarDate,
	to CalendarDate,
) ([]models.CalendarEventView, error) {
	filter := repository.EventListFilter{
		FromDate: from.DBValue(),
		ToDate:   to.DBValue(),
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

	events, err := s.store.Repos().Calendar.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, events)
}

func (s *CalendarService) resolveCoach(
	ctx context.Context,
	actor *models.User,
	client *models.User,
	requestedCoachID int64,
) (int64, error) {
	if actor.Role == models.RoleCoach {
		if requestedCoachID != 0 && requestedCoachID != actor.ID {
			return 0, fmt.Errorf("%w: coaches can only book their own calendar", ErrAccessDenied)
		}
		return actor.ID, nil
	}

	coachID := requestedCoachID
	if coachID == 0 && client.AssignedCoachID != nil {
		coachID = *client.AssignedCoachID
	}
	if coachID == 0 {
		return 0, fmt.Errorf("%w: coach_id is required when the client has no assigned coach", ErrInvalidInput)
	}

	coach, err := s.store.Repos().Users.GetByID(ctx, coachID)
	if err != nil {
		return 0, notFound(err)
	}
	if coach.Role != models.RoleCoach {
		return 0, fmt.Errorf("%w: user %d is not a coach", ErrInvalidInput, coachID)
	}
	return coachID, nil
}

func (s *CalendarService) viewFor(ctx context.Context, event *models.CalendarEvent) (*models.CalendarEventView, error) {
	views, err := s.enrich(ctx, []models.CalendarEvent{*event})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *CalendarService) enrich(ctx context.Context, events []models.CalendarEvent) ([]models.CalendarEventView, error) {
	clientIDs := make([]int64, 0, len(events))
	seen := make(map[int64]struct{}, len(events))
	for _, event := range events {
		if _, ok := seen[event.ClientID]; ok {
			continue
		}
		seen[event.ClientID] = struct{}{}
		clientIDs = append(clientIDs, event.ClientID)
	}

	summaries, err := s.store.Repos().Users.GetSummaries(ctx, clientIDs)
	if err != nil {
		return nil, err
	}

	views := make([]models.CalendarEventView, 0, len(events))
	for _, event := range events {
		view := models.CalendarEventView{CalendarEvent: event}
		if summary, ok := summaries[event.ClientID]; ok {
			view.ClientName = summary.FullName
			view.ClientAvatarURL = summary.AvatarURL
			view.ClientPhone = summary.Phone
		}
		views = append(views, view)
	}
	return views, nil
}

// ensureNoOverlap scans the coach's live events on the slot's day. Callers
// hold the coach lock.
func ensureNoOverlap(
	ctx context.Context,
	calendar CalendarStore,
	coachID int64,
	slot Slot,
	excludeEventID int64,
) error {
	events, err := calendar.List(ctx, repository.EventListFilter{
		CoachID:  coachID,
		FromDate: slot.Date.DBValue(),
		ToDate:   slot.Date.DBValue(),
	})
	if err != nil {
		return err
	}
	for _, event := range events {
		if event.ID == excludeEventID || event.Status == models.EventStatusCancelled {
			continue
		}
		if Overlaps(slot.StartAt, slot.EndAt, event.StartAt, event.EndAt) {
			return fmt.Errorf("%w: %s-%s is already booked", ErrOverlapConflict, event.StartTime, event.EndTime)
		}
	}
	return nil
}

func bookingError(err error) error {
	switch {
	case errors.Is(err, repository.ErrEventOverlap):
		observ.CalendarOverlapConflicts.Inc()
		return ErrOverlapConflict
	case errors.Is(err, ErrOverlapConflict):
		observ.CalendarOverlapConflicts.Inc()
		return err
	}
	return err
}

func canManageEvent(actor *models.User, event *models.CalendarEvent) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleCoach:
		return event.CoachID == actor.ID
	}
	return false
}

func canViewEvent(actor *models.User, event *models.CalendarEvent) bool {
	return canManageEvent(actor, event) || (actor.Role == models.RoleClient && event.ClientID == actor.ID)
}

func valueOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return strings.TrimSpace(*value)
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

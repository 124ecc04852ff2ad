package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/CoachCareBack/internal/models"
)

const eventDateLayout = "2006-01-02"

const eventColumns = `id, coach_id, client_id, event_type, event_date, start_time, end_time,
	start_at, end_at, reason, notes, status, created_by, cancelled_at, created_at, updated_at`

type CreateEventInput struct {
	CoachID   int64
	ClientID  int64
	EventType string
	Date      time.Time
	StartTime string
	EndTime   string
	StartAt   time.Time
	EndAt     time.Time
	Reason    string
	Notes     *string
	CreatedBy int64
}

// UpdateEventInput carries the full post-merge state of a rescheduled event.
type UpdateEventInput struct {
	Date      time.Time
	StartTime string
	EndTime   string
	StartAt   time.Time
	EndAt     time.Time
	Reason    string
	Notes     *string
}

// EventListFilter selects events whose date lies in [FromDate, ToDate].
// Zero CoachID / ClientID mean "any".
type EventListFilter struct {
	CoachID          int64
	ClientID         int64
	FromDate         time.Time
	ToDate           time.Time
	IncludeCancelled bool
}

type CalendarRepository struct {
	db DBTX
}

func NewCalendarRepository(db DBTX) *CalendarRepository {
	return &CalendarRepository{db: db}
}

func scanEvent(row pgx.Row) (*models.CalendarEvent, error) {
	var (
		event     models.CalendarEvent
		eventDate time.Time
	)
	err := row.Scan(
		&event.ID,
		&event.CoachID,
		&event.ClientID,
		&event.EventType,
		&eventDate,
		&event.StartTime,
		&event.EndTime,
		&event.StartAt,
		&event.EndAt,
		&event.Reason,
		&event.Notes,
		&event.Status,
		&event.CreatedBy,
		&event.CancelledAt,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	event.Date = eventDate.Format(eventDateLayout)
	return &event, nil
}

// LockCoach serialises bookings for one coach until the transaction ends.
func (r *CalendarRepository) LockCoach(ctx context.Context, coachID int64) error {
	_, err := r.db.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", coachID)
	return err
}

func (r *CalendarRepository) Create(ctx context.Context, input CreateEventInput) (*models.CalendarEvent, error) {
	query := `
		INSERT INTO calendar_events (
			coach_id, client_id, event_type, event_date, start_time, end_time,
			start_at, end_at, reason, notes, status, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'scheduled', $11)
		RETURNING ` + eventColumns

	event, err := scanEvent(r.db.QueryRow(
		ctx,
		query,
		input.CoachID,
		input.ClientID,
		input.EventType,
		input.Date,
		input.StartTime,
		input.EndTime,
		input.StartAt,
		input.EndAt,
		input.Reason,
		input.Notes,
		input.CreatedBy,
	))
	if err != nil {
		return nil, translatePgError(err)
	}
	return event, nil
}

func (r *CalendarRepository) GetByID(ctx context.Context, eventID int64) (*models.CalendarEvent, error) {
	return scanEvent(r.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM calendar_events WHERE id = $1`, eventID))
}

func (r *CalendarRepository) GetByIDForUpdate(ctx context.Context, eventID int64) (*models.CalendarEvent, error) {
	return scanEvent(r.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM calendar_events WHERE id = $1 FOR UPDATE`, eventID))
}

func (r *CalendarRepository) Update(
	ctx context.Context,
	eventID int64,
	input UpdateEventInput,
) (*models.CalendarEvent, error) {
	query := `
		UPDATE calendar_events
		SET event_date = $2,
		    start_time = $3,
		    end_time = $4,
		    start_at = $5,
		    end_at = $6,
		    reason = $7,
		    notes = $8,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'
		RETURNING ` + eventColumns

	event, err := scanEvent(r.db.QueryRow(
		ctx,
		query,
		eventID,
		input.Date,
		input.StartTime,
		input.EndTime,
		input.StartAt,
		input.EndAt,
		input.Reason,
		input.Notes,
	))
	if err != nil {
		return nil, translatePgError(err)
	}
	return event, nil
}

// Cancel flips a scheduled event to cancelled. It returns pgx.ErrNoRows when
// the event is missing or already cancelled.
func (r *CalendarRepository) Cancel(ctx context.Context, eventID int64) (*models.CalendarEvent, error) {
	query := `
		UPDATE calendar_events
		SET status = 'cancelled', cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'
		RETURNING ` + eventColumns
	return scanEvent(r.db.QueryRow(ctx, query, eventID))
}

func (r *CalendarRepository) List(ctx context.Context, filter EventListFilter) ([]models.CalendarEvent, error) {
	args := []any{filter.FromDate, filter.ToDate}
	whereParts := []string{"event_date BETWEEN $1 AND $2"}

	if filter.CoachID != 0 {
		args = append(args, filter.CoachID)
		whereParts = append(whereParts, fmt.Sprintf("coach_id = $%d", len(args)))
	}
	if filter.ClientID != 0 {
		args = append(args, filter.ClientID)
		whereParts = append(whereParts, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if !filter.IncludeCancelled {
		whereParts = append(whereParts, "status <> 'cancelled'")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM calendar_events
		WHERE %s
		ORDER BY start_at ASC, id ASC
	`, eventColumns, strings.Join(whereParts, " AND "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]models.CalendarEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

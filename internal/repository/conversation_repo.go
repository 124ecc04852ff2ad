package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/CoachCareBack/internal/models"
)

const conversationColumns = `id, client_id, coach_id, status, unread_by_client, unread_by_coach,
	last_message_at, last_message_preview, is_pinned, is_priority, archived_at, created_at, updated_at`

// ConversationListFilter narrows the listing. Zero ids and an empty status
// mean "any". ViewerID decides which side's counterpart and unread counter
// are reported.
type ConversationListFilter struct {
	ClientID int64
	CoachID  int64
	Status   string
	ViewerID int64
	Limit    int
	Offset   int
}

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var conversation models.Conversation
	err := row.Scan(
		&conversation.ID,
		&conversation.ClientID,
		&conversation.CoachID,
		&conversation.Status,
		&conversation.UnreadByClient,
		&conversation.UnreadByCoach,
		&conversation.LastMessageAt,
		&conversation.LastMessagePreview,
		&conversation.IsPinned,
		&conversation.IsPriority,
		&conversation.ArchivedAt,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// Create inserts an active conversation. A concurrent insert for the same
// active pair surfaces as ErrDuplicate.
func (r *ConversationRepository) Create(ctx context.Context, clientID, coachID int64) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (client_id, coach_id, status)
		VALUES ($1, $2, 'active')
		RETURNING ` + conversationColumns
	conversation, err := scanConversation(r.db.QueryRow(ctx, query, clientID, coachID))
	if err != nil {
		return nil, translatePgError(err)
	}
	return conversation, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	return scanConversation(r.db.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, conversationID))
}

func (r *ConversationRepository) GetActiveForPair(ctx context.Context, clientID, coachID int64) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE client_id = $1 AND coach_id = $2 AND status = 'active'
	`
	return scanConversation(r.db.QueryRow(ctx, query, clientID, coachID))
}

// GetLatestForPair returns the most recently touched conversation of the pair
// regardless of status.
func (r *ConversationRepository) GetLatestForPair(ctx context.Context, clientID, coachID int64) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE client_id = $1 AND coach_id = $2
		ORDER BY (status = 'active') DESC, updated_at DESC, id DESC
		LIMIT 1
	`
	return scanConversation(r.db.QueryRow(ctx, query, clientID, coachID))
}

// ArchiveActiveForClient archives every active conversation of the client
// except the one with keepCoachID and returns the archived ids.
func (r *ConversationRepository) ArchiveActiveForClient(
	ctx context.Context,
	clientID int64,
	keepCoachID int64,
) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE conversations
		SET status = 'archived', archived_at = NOW(), updated_at = NOW()
		WHERE client_id = $1 AND coach_id <> $2 AND status = 'active'
		RETURNING id
	`, clientID, keepCoachID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ConversationRepository) Reactivate(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	query := `
		UPDATE conversations
		SET status = 'active', archived_at = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + conversationColumns
	conversation, err := scanConversation(r.db.QueryRow(ctx, query, conversationID))
	if err != nil {
		return nil, translatePgError(err)
	}
	return conversation, nil
}

// RecordMessage bumps the unread counter of the recipient side and refreshes
// the last-message fields.
func (r *ConversationRepository) RecordMessage(
	ctx context.Context,
	conversationID int64,
	recipientRole string,
	preview string,
	sentAt time.Time,
) error {
	counter := "unread_by_coach"
	if recipientRole == models.RoleClient {
		counter = "unread_by_client"
	}

	query := fmt.Sprintf(`
		UPDATE conversations
		SET %[1]s = %[1]s + 1,
		    last_message_at = $2,
		    last_message_preview = $3,
		    updated_at = NOW()
		WHERE id = $1
	`, counter)

	tag, err := r.db.Exec(ctx, query, conversationID, sentAt, preview)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ConversationRepository) ResetUnread(ctx context.Context, conversationID int64, readerRole string) error {
	counter := "unread_by_coach"
	if readerRole == models.RoleClient {
		counter = "unread_by_client"
	}
	_, err := r.db.Exec(ctx, fmt.Sprintf(`
		UPDATE conversations
		SET %s = 0
		WHERE id = $1
	`, counter), conversationID)
	return err
}

func (r *ConversationRepository) SetFlags(
	ctx context.Context,
	conversationID int64,
	pinned *bool,
	priority *bool,
) (*models.Conversation, error) {
	query := `
		UPDATE conversations
		SET is_pinned = COALESCE($2, is_pinned),
		    is_priority = COALESCE($3, is_priority),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + conversationColumns
	return scanConversation(r.db.QueryRow(ctx, query, conversationID, pinned, priority))
}

func (r *ConversationRepository) List(
	ctx context.Context,
	filter ConversationListFilter,
) ([]models.ConversationSummary, error) {
	args := []any{filter.ViewerID}
	whereParts := []string{"TRUE"}

	if filter.ClientID != 0 {
		args = append(args, filter.ClientID)
		whereParts = append(whereParts, fmt.Sprintf("c.client_id = $%d", len(args)))
	}
	if filter.CoachID != 0 {
		args = append(args, filter.CoachID)
		whereParts = append(whereParts, fmt.Sprintf("c.coach_id = $%d", len(args)))
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("c.status = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	// The counterpart is the coach when the viewer is the client, otherwise
	// the client.
	query := fmt.Sprintf(`
		SELECT
			c.id, c.client_id, c.coach_id, c.status, c.unread_by_client, c.unread_by_coach,
			c.last_message_at, c.last_message_preview, c.is_pinned, c.is_priority,
			c.archived_at, c.created_at, c.updated_at,
			u.id, u.full_name, u.avatar_url, u.phone
		FROM conversations c
		JOIN users u ON u.id = CASE WHEN c.client_id = $1 THEN c.coach_id ELSE c.client_id END
		WHERE %s
		ORDER BY c.is_pinned DESC, COALESCE(c.last_message_at, c.updated_at) DESC, c.id DESC
		LIMIT $%d OFFSET $%d
	`, strings.Join(whereParts, " AND "), len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var (
			summary     models.ConversationSummary
			counterpart models.UserSummary
		)
		if err := rows.Scan(
			&summary.ID,
			&summary.ClientID,
			&summary.CoachID,
			&summary.Status,
			&summary.UnreadByClient,
			&summary.UnreadByCoach,
			&summary.LastMessageAt,
			&summary.LastMessagePreview,
			&summary.IsPinned,
			&summary.IsPriority,
			&summary.ArchivedAt,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&counterpart.ID,
			&counterpart.FullName,
			&counterpart.AvatarURL,
			&counterpart.Phone,
		); err != nil {
			return nil, err
		}

		summary.Counterpart = &counterpart
		if summary.ClientID == filter.ViewerID {
			summary.UnreadCount = summary.UnreadByClient
		} else {
			summary.UnreadCount = summary.UnreadByCoach
		}
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

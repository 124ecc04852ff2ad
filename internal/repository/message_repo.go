package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/CoachCareBack/internal/models"
)

const messageColumns = `id, conversation_id, sender_id, content, message_type, media_url,
	media_duration_seconds, is_read, is_edited, edited_at, is_deleted, deleted_at, created_at`

type CreateMessageInput struct {
	ConversationID int64
	SenderID       int64
	Content        string
	MessageType    string
	MediaURL       *string
	MediaDuration  *int
}

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

func scanMessage(row pgx.Row) (*models.ChatMessage, error) {
	var message models.ChatMessage
	err := row.Scan(
		&message.ID,
		&message.ConversationID,
		&message.SenderID,
		&message.Content,
		&message.MessageType,
		&message.MediaURL,
		&message.MediaDuration,
		&message.IsRead,
		&message.IsEdited,
		&message.EditedAt,
		&message.IsDeleted,
		&message.DeletedAt,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *MessageRepository) Create(ctx context.Context, input CreateMessageInput) (*models.ChatMessage, error) {
	query := `
		INSERT INTO messages (conversation_id, sender_id, content, message_type, media_url, media_duration_seconds, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING ` + messageColumns

	return scanMessage(r.db.QueryRow(
		ctx,
		query,
		input.ConversationID,
		input.SenderID,
		input.Content,
		input.MessageType,
		input.MediaURL,
		input.MediaDuration,
	))
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID int64) (*models.ChatMessage, error) {
	return scanMessage(r.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, messageID))
}

// UpdateContent edits a message that has not been deleted.
func (r *MessageRepository) UpdateContent(ctx context.Context, messageID int64, content string) (*models.ChatMessage, error) {
	query := `
		UPDATE messages
		SET content = $2, is_edited = TRUE, edited_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
		RETURNING ` + messageColumns
	return scanMessage(r.db.QueryRow(ctx, query, messageID, content))
}

// SoftDelete replaces the content with placeholder and drops the media
// reference. It returns pgx.ErrNoRows when the message is already deleted,
// leaving deleted_at untouched.
func (r *MessageRepository) SoftDelete(ctx context.Context, messageID int64, placeholder string) (*models.ChatMessage, error) {
	query := `
		UPDATE messages
		SET content = $2, media_url = NULL, media_duration_seconds = NULL,
		    is_deleted = TRUE, deleted_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
		RETURNING ` + messageColumns
	return scanMessage(r.db.QueryRow(ctx, query, messageID, placeholder))
}

func (r *MessageRepository) ListByConversation(
	ctx context.Context,
	conversationID int64,
	limit int,
	offset int,
) ([]models.ChatMessage, int, error) {
	totalQuery := `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1
	`

	var total int
	if err := r.db.QueryRow(ctx, totalQuery, conversationID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, *message)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

func (r *MessageRepository) MarkConversationRead(
	ctx context.Context,
	conversationID int64,
	readerID int64,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE
		WHERE conversation_id = $1
		  AND sender_id <> $2
		  AND is_read = FALSE
	`, conversationID, readerID)
	return err
}

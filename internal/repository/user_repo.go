package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/CoachCareBack/internal/models"
)

const userColumns = `id, email, password_hash, role, full_name, avatar_url, phone,
	assigned_coach_id, assigned_chat_doctor_id, subscription_status, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.FullName,
		&user.AvatarURL,
		&user.Phone,
		&user.AssignedCoachID,
		&user.AssignedChatDoctorID,
		&user.SubscriptionStatus,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, password_hash, role, full_name, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, subscription_status, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, user.Email, user.PasswordHash, user.Role, user.FullName, user.Phone).
		Scan(&user.ID, &user.SubscriptionStatus, &user.CreatedAt, &user.UpdatedAt)
	return translatePgError(err)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// GetByIDForUpdate locks the user row until the surrounding transaction ends.
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// GetSummaries returns display fields keyed by user id. Unknown ids are
// absent from the map.
func (r *UserRepository) GetSummaries(ctx context.Context, ids []int64) (map[int64]models.UserSummary, error) {
	summaries := make(map[int64]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return summaries, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, full_name, avatar_url, phone
		FROM users
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var summary models.UserSummary
		if err := rows.Scan(&summary.ID, &summary.FullName, &summary.AvatarURL, &summary.Phone); err != nil {
			return nil, err
		}
		summaries[summary.ID] = summary
	}
	return summaries, rows.Err()
}

func (r *UserRepository) ListClientsForCoach(ctx context.Context, coachID int64) ([]models.UserSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, full_name, avatar_url, phone
		FROM users
		WHERE role = 'client'
		  AND (assigned_coach_id = $1 OR assigned_chat_doctor_id = $1)
		ORDER BY full_name NULLS LAST, id
	`, coachID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]models.UserSummary, 0)
	for rows.Next() {
		var summary models.UserSummary
		if err := rows.Scan(&summary.ID, &summary.FullName, &summary.AvatarURL, &summary.Phone); err != nil {
			return nil, err
		}
		clients = append(clients, summary)
	}
	return clients, rows.Err()
}

func (r *UserRepository) SetAssignedCoach(ctx context.Context, clientID, coachID int64) error {
	return r.updateOne(ctx, `UPDATE users SET assigned_coach_id = $2, updated_at = NOW() WHERE id = $1`, clientID, coachID)
}

func (r *UserRepository) SetAssignedChatDoctor(ctx context.Context, clientID, doctorID int64) error {
	return r.updateOne(ctx, `UPDATE users SET assigned_chat_doctor_id = $2, updated_at = NOW() WHERE id = $1`, clientID, doctorID)
}

func (r *UserRepository) SetRole(ctx context.Context, userID int64, role string) error {
	return r.updateOne(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, userID, role)
}

func (r *UserRepository) SetSubscriptionStatus(ctx context.Context, userID int64, status string) error {
	return r.updateOne(ctx, `UPDATE users SET subscription_status = $2, updated_at = NOW() WHERE id = $1`, userID, status)
}

func (r *UserRepository) updateOne(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

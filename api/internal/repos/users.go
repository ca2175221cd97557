package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esheo1787/qc-management-system/api/internal/models"
)

type UsersRepo struct {
	pool *pgxpool.Pool
}

func NewUsersRepo(pool *pgxpool.Pool) *UsersRepo {
	return &UsersRepo{pool: pool}
}

const userColumns = `user_id, username, role, api_key, subject, is_active, created_at`

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(&user.UserID, &user.Username, &user.Role, &user.APIKey, &user.Subject, &user.IsActive, &user.CreatedAt)
	return user, err
}

// GetUserByAPIKey resolves an X-API-Key credential. Inactive users do not
// authenticate.
func (r *UsersRepo) GetUserByAPIKey(ctx context.Context, apiKey string) (models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE api_key = $1 AND is_active
	`, apiKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, NotFoundf("no active user for API key")
	}
	return user, err
}

// GetUserBySubject resolves a verified JWT to a provisioned user. Tokens for
// unknown subjects fall back to a username match on the subject claim.
func (r *UsersRepo) GetUserBySubject(ctx context.Context, subject string) (models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE (subject = $1 OR username = $1) AND is_active
		ORDER BY subject = $1 DESC
		LIMIT 1
	`, subject))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, NotFoundf("no active user for subject %s", subject)
	}
	return user, err
}

func (r *UsersRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE user_id = $1
	`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, NotFoundf("user %s not found", userID)
	}
	return user, err
}

func (r *UsersRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// ListActiveWorkers feeds the capacity rollup, which covers WORKER users only.
func (r *UsersRepo) ListActiveWorkers(ctx context.Context) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = $1 AND is_active
		ORDER BY username
	`, models.RoleWorker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

package store

import (
	"context"

	"fullsound/internal/models"
)

// CreateUser inserts a registered account
func (q *queries) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	row := q.db.QueryRowxContext(ctx, query, user.Username, user.Email, user.PasswordHash, user.Role)
	return translate(row.Scan(&user.ID, &user.CreatedAt))
}

// GetUserByID retrieves a user by ID
func (q *queries) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := q.get(ctx, &user,
		"SELECT id, username, email, password_hash, role, created_at FROM users WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByLogin retrieves a user by username or email
func (q *queries) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	var user models.User
	err := q.get(ctx, &user,
		`SELECT id, username, email, password_hash, role, created_at FROM users
		WHERE username = $1 OR LOWER(email) = LOWER($1) LIMIT 1`, login)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

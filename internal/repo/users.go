// Package repo implements the durable-store access layer on PostgreSQL.
// Services depend on the small interfaces declared next to them, so these
// types are the production adapters and tests run on in-memory fakes.
package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"pulse-backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Insert(ctx context.Context, username, displayName, passwordHash string) (*models.User, error) {
	var u models.User
	query := `INSERT INTO users (username, display_name, password_hash) VALUES ($1, $2, $3)
		RETURNING id, username, display_name, created_at`
	err := r.pool.QueryRow(ctx, query, username, displayName, passwordHash).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	query := `SELECT id, username, display_name, password_hash, created_at FROM users WHERE username = $1`
	err := r.pool.QueryRow(ctx, query, username).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetInfo(ctx context.Context, userID int) (*models.UserInfo, error) {
	var info models.UserInfo
	query := `SELECT id, username, display_name FROM users WHERE id = $1`
	err := r.pool.QueryRow(ctx, query, userID).
		Scan(&info.ID, &info.Username, &info.DisplayName)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

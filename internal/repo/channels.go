package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pulse-backend/internal/models"
)

type ChannelRepo struct {
	pool *pgxpool.Pool
}

func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

func (r *ChannelRepo) GetByID(ctx context.Context, id string) (*models.Channel, error) {
	var c models.Channel
	query := `SELECT id, server_id, name, last_message, last_message_at, created_at
		FROM channels WHERE id = $1`
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&c.ID, &c.ServerID, &c.Name, &c.LastMessage, &c.LastMessageAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Role returns the member's role in the channel, or ErrNoRow for non-members.
func (r *ChannelRepo) Role(ctx context.Context, channelID string, userID int) (string, error) {
	query := `SELECT role FROM channel_members WHERE channel_id = $1 AND user_id = $2`
	var role string
	if err := r.pool.QueryRow(ctx, query, channelID, userID).Scan(&role); err != nil {
		return "", err
	}
	return role, nil
}

// MemberIDs returns every accepted member of the channel, for per-recipient
// notification evaluation.
func (r *ChannelRepo) MemberIDs(ctx context.Context, channelID string) ([]int, error) {
	query := `SELECT user_id FROM channel_members WHERE channel_id = $1`
	rows, err := r.pool.Query(ctx, query, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateLastActivity refreshes the denormalized last-message fields.
func (r *ChannelRepo) UpdateLastActivity(ctx context.Context, id, preview string, at time.Time) error {
	query := `UPDATE channels SET last_message = $2, last_message_at = $3 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, preview, at)
	return err
}

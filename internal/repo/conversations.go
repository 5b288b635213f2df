package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pulse-backend/internal/models"
)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

// GetOrCreate returns the conversation for the ordered pair, creating it on
// first contact. The (user_a_id, user_b_id) unique constraint makes the
// create idempotent under a race; the loser of the race re-reads.
func (r *ConversationRepo) GetOrCreate(ctx context.Context, userA, userB int) (*models.Conversation, bool, error) {
	a, b := models.CanonicalPair(userA, userB)

	conv, err := r.getByPair(ctx, a, b)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	id := uuid.New().String()
	query := `INSERT INTO conversations (id, user_a_id, user_b_id) VALUES ($1, $2, $3)
		ON CONFLICT (user_a_id, user_b_id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, query, id, a, b)
	if err != nil {
		return nil, false, err
	}
	if tag.RowsAffected() == 0 {
		conv, err := r.getByPair(ctx, a, b)
		return conv, false, err
	}

	conv, err = r.GetByID(ctx, id)
	return conv, true, err
}

func (r *ConversationRepo) getByPair(ctx context.Context, a, b int) (*models.Conversation, error) {
	var c models.Conversation
	query := `SELECT id, user_a_id, user_b_id, last_message, last_message_at, created_at
		FROM conversations WHERE user_a_id = $1 AND user_b_id = $2`
	err := r.pool.QueryRow(ctx, query, a, b).
		Scan(&c.ID, &c.UserAID, &c.UserBID, &c.LastMessage, &c.LastMessageAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	query := `SELECT id, user_a_id, user_b_id, last_message, last_message_at, created_at
		FROM conversations WHERE id = $1`
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&c.ID, &c.UserAID, &c.UserBID, &c.LastMessage, &c.LastMessageAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdatePreview refreshes the denormalized last-message fields.
func (r *ConversationRepo) UpdatePreview(ctx context.Context, id, preview string, at time.Time) error {
	query := `UPDATE conversations SET last_message = $2, last_message_at = $3 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, preview, at)
	return err
}

// ListFor returns the user's conversations with the other participant's
// display attributes, newest activity first.
func (r *ConversationRepo) ListFor(ctx context.Context, userID int) ([]models.ConversationListItem, error) {
	query := `SELECT c.id, u.id, u.username, u.display_name, c.last_message, c.last_message_at
		FROM conversations c
		JOIN users u ON u.id = CASE WHEN c.user_a_id = $1 THEN c.user_b_id ELSE c.user_a_id END
		WHERE c.user_a_id = $1 OR c.user_b_id = $1
		ORDER BY c.last_message_at DESC NULLS LAST`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.ConversationListItem
	for rows.Next() {
		var it models.ConversationListItem
		if err := rows.Scan(&it.ConversationID, &it.OtherUser.ID, &it.OtherUser.Username,
			&it.OtherUser.DisplayName, &it.LastMessage, &it.LastMessageAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

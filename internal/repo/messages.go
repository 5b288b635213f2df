package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pulse-backend/internal/models"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// Insert persists a channel message. Ordering is the store's write order:
// created_at with the serial id as tiebreak.
func (r *MessageRepo) Insert(ctx context.Context, msg *models.Message) error {
	query := `INSERT INTO messages (channel_id, user_id, content, attachment_url, reply_to_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		msg.ChannelID, msg.UserID, msg.Content, msg.AttachmentURL, msg.ReplyToID).
		Scan(&msg.ID, &msg.CreatedAt, &msg.UpdatedAt)
}

func (r *MessageRepo) GetByID(ctx context.Context, id int) (*models.Message, error) {
	var m models.Message
	query := `SELECT m.id, m.channel_id, m.user_id, u.username, u.display_name,
			m.content, m.attachment_url, m.reply_to_id, m.reactions,
			m.edited, m.deleted, m.created_at, m.updated_at
		FROM messages m JOIN users u ON u.id = m.user_id
		WHERE m.id = $1`
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.ChannelID, &m.UserID, &m.Username, &m.DisplayName,
		&m.Content, &m.AttachmentURL, &m.ReplyToID, &m.Reactions,
		&m.Edited, &m.Deleted, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Edit replaces the content of a live message and sets the edited flag.
// Soft-deleted rows are excluded, so editing a deleted message reports no row.
func (r *MessageRepo) Edit(ctx context.Context, id int, content string) (*models.Message, error) {
	query := `UPDATE messages SET content = $2, edited = true, updated_at = now()
		WHERE id = $1 AND deleted = false`
	tag, err := r.pool.Exec(ctx, query, id, content)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNoRow
	}
	return r.GetByID(ctx, id)
}

// SoftDelete replaces the content with the fixed placeholder and marks the
// row deleted. The row is never physically removed.
func (r *MessageRepo) SoftDelete(ctx context.Context, id int) error {
	query := `UPDATE messages
		SET content = $2, attachment_url = NULL, deleted = true, updated_at = now()
		WHERE id = $1 AND deleted = false`
	tag, err := r.pool.Exec(ctx, query, id, models.DeletedPlaceholder)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRow
	}
	return nil
}

// AddReaction appends the emoji to the message's reaction set if absent and
// returns the resulting set. Adding a present emoji leaves the set unchanged.
func (r *MessageRepo) AddReaction(ctx context.Context, id int, emoji string) ([]string, error) {
	query := `UPDATE messages
		SET reactions = CASE WHEN $2 = ANY(reactions) THEN reactions
			ELSE array_append(reactions, $2) END
		WHERE id = $1 AND deleted = false
		RETURNING reactions`
	var reactions []string
	if err := r.pool.QueryRow(ctx, query, id, emoji).Scan(&reactions); err != nil {
		return nil, err
	}
	return reactions, nil
}

// Recent returns up to limit live-ordering rows, oldest first.
func (r *MessageRepo) Recent(ctx context.Context, channelID string, limit int) ([]models.Message, error) {
	query := `SELECT m.id, m.channel_id, m.user_id, u.username, u.display_name,
			m.content, m.attachment_url, m.reply_to_id, m.reactions,
			m.edited, m.deleted, m.created_at, m.updated_at
		FROM messages m JOIN users u ON u.id = m.user_id
		WHERE m.channel_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(
			&m.ID, &m.ChannelID, &m.UserID, &m.Username, &m.DisplayName,
			&m.Content, &m.AttachmentURL, &m.ReplyToID, &m.Reactions,
			&m.Edited, &m.Deleted, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CountUnread counts messages newer than the viewer's read marker that were
// authored by someone else.
func (r *MessageRepo) CountUnread(ctx context.Context, channelID string, viewerID int, since time.Time) (int, error) {
	query := `SELECT count(*) FROM messages
		WHERE channel_id = $1 AND user_id <> $2 AND created_at > $3 AND deleted = false`
	var n int
	if err := r.pool.QueryRow(ctx, query, channelID, viewerID, since).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pulse-backend/internal/models"
)

type DirectMessageRepo struct {
	pool *pgxpool.Pool
}

func NewDirectMessageRepo(pool *pgxpool.Pool) *DirectMessageRepo {
	return &DirectMessageRepo{pool: pool}
}

func (r *DirectMessageRepo) Insert(ctx context.Context, msg *models.DirectMessage) error {
	query := `INSERT INTO direct_messages (conversation_id, sender_id, content, attachment_url, reply_to_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		msg.ConversationID, msg.SenderID, msg.Content, msg.AttachmentURL, msg.ReplyToID).
		Scan(&msg.ID, &msg.CreatedAt, &msg.UpdatedAt)
}

func (r *DirectMessageRepo) GetByID(ctx context.Context, id int) (*models.DirectMessage, error) {
	var m models.DirectMessage
	query := `SELECT d.id, d.conversation_id, d.sender_id, u.username, u.display_name,
			d.content, d.attachment_url, d.reply_to_id, d.reactions,
			d.edited, d.deleted, d.is_read, d.created_at, d.updated_at
		FROM direct_messages d JOIN users u ON u.id = d.sender_id
		WHERE d.id = $1`
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.DisplayName,
		&m.Content, &m.AttachmentURL, &m.ReplyToID, &m.Reactions,
		&m.Edited, &m.Deleted, &m.IsRead, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *DirectMessageRepo) Edit(ctx context.Context, id int, content string) (*models.DirectMessage, error) {
	query := `UPDATE direct_messages SET content = $2, edited = true, updated_at = now()
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

func (r *DirectMessageRepo) SoftDelete(ctx context.Context, id int) error {
	query := `UPDATE direct_messages
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

func (r *DirectMessageRepo) AddReaction(ctx context.Context, id int, emoji string) ([]string, error) {
	query := `UPDATE direct_messages
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

func (r *DirectMessageRepo) Recent(ctx context.Context, conversationID string, limit int) ([]models.DirectMessage, error) {
	query := `SELECT d.id, d.conversation_id, d.sender_id, u.username, u.display_name,
			d.content, d.attachment_url, d.reply_to_id, d.reactions,
			d.edited, d.deleted, d.is_read, d.created_at, d.updated_at
		FROM direct_messages d JOIN users u ON u.id = d.sender_id
		WHERE d.conversation_id = $1
		ORDER BY d.created_at DESC, d.id DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.DirectMessage
	for rows.Next() {
		var m models.DirectMessage
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.DisplayName,
			&m.Content, &m.AttachmentURL, &m.ReplyToID, &m.Reactions,
			&m.Edited, &m.Deleted, &m.IsRead, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead flags every message in the conversation sent to readerID as read
// and returns how many rows flipped.
func (r *DirectMessageRepo) MarkRead(ctx context.Context, conversationID string, readerID int) (int, error) {
	query := `UPDATE direct_messages SET is_read = true
		WHERE conversation_id = $1 AND sender_id <> $2 AND is_read = false`
	tag, err := r.pool.Exec(ctx, query, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *DirectMessageRepo) CountUnread(ctx context.Context, conversationID string, viewerID int, since time.Time) (int, error) {
	query := `SELECT count(*) FROM direct_messages
		WHERE conversation_id = $1 AND sender_id <> $2 AND created_at > $3 AND deleted = false`
	var n int
	if err := r.pool.QueryRow(ctx, query, conversationID, viewerID, since).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

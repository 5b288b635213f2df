package models

import "time"

// DeletedPlaceholder replaces the content of a soft-deleted message. The row
// keeps its id and timestamps so reply chains stay resolvable.
const DeletedPlaceholder = "This message has been deleted"

// AttachmentPlaceholder stands in for non-text content in previews and
// notification bodies.
const AttachmentPlaceholder = "[attachment]"

// Message is a channel message. Reactions are a flat set of distinct emoji
// with no per-user attribution; adding one already present is a no-op.
type Message struct {
	ID            int       `json:"id"`
	ChannelID     string    `json:"channel_id"`
	UserID        int       `json:"user_id"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"display_name,omitempty"`
	Content       *string   `json:"content"`
	AttachmentURL *string   `json:"attachment_url,omitempty"`
	ReplyToID     *int      `json:"reply_to_id,omitempty"`
	ReplyTo       *Message  `json:"reply_to,omitempty"`
	Reactions     []string  `json:"reactions"`
	Edited        bool      `json:"edited"`
	Deleted       bool      `json:"deleted"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PreviewText returns the text shown in notification bodies.
func (m *Message) PreviewText() string {
	if m.Content != nil && *m.Content != "" {
		return *m.Content
	}
	return AttachmentPlaceholder
}

// DirectMessage mirrors Message for two-party conversations. IsRead is set
// once the recipient marks the conversation read; a read DM can no longer be
// deleted by the sender.
type DirectMessage struct {
	ID             int            `json:"id"`
	ConversationID string         `json:"conversation_id"`
	SenderID       int            `json:"sender_id"`
	SenderName     string         `json:"sender_name"`
	DisplayName    string         `json:"display_name,omitempty"`
	Content        *string        `json:"content"`
	AttachmentURL  *string        `json:"attachment_url,omitempty"`
	ReplyToID      *int           `json:"reply_to_id,omitempty"`
	ReplyTo        *DirectMessage `json:"reply_to,omitempty"`
	Reactions      []string       `json:"reactions"`
	Edited         bool           `json:"edited"`
	Deleted        bool           `json:"deleted"`
	IsRead         bool           `json:"is_read"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Preview returns the text shown in conversation lists and notifications.
func (m *DirectMessage) Preview() string {
	if m.Content != nil && *m.Content != "" {
		return *m.Content
	}
	return AttachmentPlaceholder
}

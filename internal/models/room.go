package models

import "time"

// Channel is a many-member room inside a server. Channel CRUD lives outside
// this subsystem; the relay only reads membership and last-activity fields.
type Channel struct {
	ID            string     `json:"id"`
	ServerID      string     `json:"server_id"`
	Name          string     `json:"name"`
	LastMessage   *string    `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Channel member roles. Moderators and admins may edit or delete messages
// they did not author.
const (
	RoleMember    = "member"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Conversation is the two-party DM container. Participants are stored in
// canonical order (smaller user id first) so the pair is unique and
// get-or-create is idempotent.
type Conversation struct {
	ID            string     `json:"id"`
	UserAID       int        `json:"user_a_id"`
	UserBID       int        `json:"user_b_id"`
	LastMessage   *string    `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID int) int {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

// Has reports whether userID participates in the conversation.
func (c *Conversation) Has(userID int) bool {
	return c.UserAID == userID || c.UserBID == userID
}

// CanonicalPair orders two user ids for conversation lookup.
func CanonicalPair(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

type CreateConversationRequest struct {
	RecipientID int `json:"recipient_id"`
}

type ConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	IsNew          bool   `json:"is_new"`
}

// ConversationListItem is the denormalized row for conversation lists.
type ConversationListItem struct {
	ConversationID string     `json:"conversation_id"`
	OtherUser      UserInfo   `json:"other_user"`
	LastMessage    *string    `json:"last_message,omitempty"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	UnreadCount    int        `json:"unread_count"`
}
